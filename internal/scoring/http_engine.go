// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package scoring

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/mahiru/internal/config"
	"github.com/tomtom215/mahiru/internal/logging"
	"github.com/tomtom215/mahiru/internal/metrics"
)

// errRejectedInput marks a 4xx from the engine. The engine is healthy; the
// request was bad, so it must not count against the breaker.
var errRejectedInput = errors.New("engine rejected input")

// HTTPEngine calls a calculator service over HTTP:
//
//	POST {base}/difficulty   DifficultyRequest  -> Attributes
//	POST {base}/performance  PerformanceRequest -> {"pp": float}
//
// Calls go through a circuit breaker so that a dead engine fails jobs fast
// instead of holding the serial queue on timeouts.
type HTTPEngine struct {
	name       string
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[[]byte]
}

var _ Engine = (*HTTPEngine)(nil)

// NewHTTPEngine creates a client named name (used for breaker metrics) for
// the service at baseURL.
func NewHTTPEngine(name, baseURL string, cfg config.EngineConfig) *HTTPEngine {
	cbName := "engine-" + name
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	failures := cfg.BreakerFailures
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errRejectedInput) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", stateToString(from)).Str("to", stateToString(to)).Msg("engine circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},
	})

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &HTTPEngine{
		name:       name,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		cb:         cb,
	}
}

// Difficulty implements Engine.
func (e *HTTPEngine) Difficulty(ctx context.Context, req DifficultyRequest) (Attributes, error) {
	body, err := e.post(ctx, "/difficulty", req)
	if err != nil {
		return Attributes{}, err
	}
	var attrs Attributes
	if err := json.Unmarshal(body, &attrs); err != nil {
		return Attributes{}, fmt.Errorf("decode %s difficulty: %w", e.name, err)
	}
	return attrs, nil
}

// Performance implements Engine.
func (e *HTTPEngine) Performance(ctx context.Context, req PerformanceRequest) (float64, error) {
	body, err := e.post(ctx, "/performance", req)
	if err != nil {
		return 0, err
	}
	var out struct {
		PP float64 `json:"pp"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("decode %s performance: %w", e.name, err)
	}
	return out.PP, nil
}

// State reports the breaker state for status endpoints.
func (e *HTTPEngine) State() string {
	return stateToString(e.cb.State())
}

func (e *HTTPEngine) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", path, err)
	}

	return e.cb.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", e.name, path, err)
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("%s %s: read body: %w", e.name, path, err)
		}

		switch {
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%s %s returned status %d: %s", e.name, path, resp.StatusCode, strings.TrimSpace(string(body)))
		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("%w: %s %s returned status %d: %s", errRejectedInput, e.name, path, resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return body, nil
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
