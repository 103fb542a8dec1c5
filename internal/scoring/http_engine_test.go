// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package scoring

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/mahiru/internal/config"
	"github.com/tomtom215/mahiru/internal/models"
)

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		Timeout:            5 * time.Second,
		BreakerMaxRequests: 1,
		BreakerInterval:    time.Minute,
		BreakerTimeout:     time.Minute,
		BreakerFailures:    3,
	}
}

func TestHTTPEngine_DifficultyAndPerformance(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		switch r.URL.Path {
		case "/difficulty":
			var req DifficultyRequest
			if err := json.Unmarshal(body, &req); err != nil {
				t.Errorf("decode difficulty request: %v", err)
			}
			if req.BeatmapHash != "abc" || len(req.Mods) != 2 {
				t.Errorf("difficulty request = %+v", req)
			}
			_, _ = w.Write([]byte(`{"star_rating":6.5,"max_combo":1200,"values":{"aim":3.1}}`))
		case "/performance":
			var req PerformanceRequest
			if err := json.Unmarshal(body, &req); err != nil {
				t.Errorf("decode performance request: %v", err)
			}
			if req.Attributes.StarRating != 6.5 || req.Score.ID != "s1" {
				t.Errorf("performance request = %+v", req)
			}
			_, _ = w.Write([]byte(`{"pp":412.75}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	e := NewHTTPEngine("test-ok", server.URL+"/", testEngineConfig())
	ctx := context.Background()

	attrs, err := e.Difficulty(ctx, DifficultyRequest{BeatmapHash: "abc", Mods: ParseModSet([]string{"HDDT"})})
	if err != nil {
		t.Fatalf("Difficulty() error = %v", err)
	}
	if attrs.StarRating != 6.5 || attrs.MaxCombo != 1200 || attrs.Values["aim"] != 3.1 {
		t.Errorf("Difficulty() = %+v", attrs)
	}

	pp, err := e.Performance(ctx, PerformanceRequest{Attributes: attrs, Score: models.Score{ID: "s1"}})
	if err != nil {
		t.Fatalf("Performance() error = %v", err)
	}
	if pp != 412.75 {
		t.Errorf("Performance() = %v, want 412.75", pp)
	}
	if e.State() != "closed" {
		t.Errorf("State() = %s, want closed", e.State())
	}
}

func TestHTTPEngine_BreakerOpensOnServerErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "calculator down", http.StatusBadGateway)
	}))
	defer server.Close()

	e := NewHTTPEngine("test-5xx", server.URL, testEngineConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := e.Difficulty(ctx, DifficultyRequest{BeatmapHash: "abc"}); err == nil {
			t.Fatalf("call %d: Difficulty() error = nil", i)
		}
	}
	if e.State() != "open" {
		t.Fatalf("State() = %s, want open", e.State())
	}

	_, err := e.Difficulty(ctx, DifficultyRequest{BeatmapHash: "abc"})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Difficulty() with open breaker error = %v, want ErrOpenState", err)
	}
	if n := hits.Load(); n != 3 {
		t.Errorf("server hit %d times, want 3", n)
	}
}

func TestHTTPEngine_ClientErrorsDoNotTripBreaker(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown beatmap", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	e := NewHTTPEngine("test-4xx", server.URL, testEngineConfig())
	for i := 0; i < 10; i++ {
		_, err := e.Difficulty(context.Background(), DifficultyRequest{BeatmapHash: "zzz"})
		if !errors.Is(err, errRejectedInput) {
			t.Fatalf("Difficulty() error = %v, want rejected input", err)
		}
	}
	if e.State() != "closed" {
		t.Errorf("State() = %s, want closed", e.State())
	}
}

func TestHTTPEngine_BadResponseBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	e := NewHTTPEngine("test-body", server.URL, testEngineConfig())
	if _, err := e.Performance(context.Background(), PerformanceRequest{}); err == nil {
		t.Error("Performance() error = nil, want decode error")
	}
}
