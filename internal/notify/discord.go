// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/mahiru/internal/logging"
	"github.com/tomtom215/mahiru/internal/metrics"
)

var (
	errRateLimited = errors.New("discord notification rate limited")
	errQueueFull   = errors.New("discord dispatch queue full")
	errSinkClosed  = errors.New("discord sink closed")
)

const defaultDiscordQueueSize = 64

// DiscordConfig configures the Discord sink.
type DiscordConfig struct {
	WebhookURL string
	// RatePerSec and Burst bound webhook posts. Posts over the limit are
	// dropped.
	RatePerSec float64
	Burst      int
	// IncludeSweepJobs posts per-player outcomes of full sweeps. When false
	// only the aggregate message is posted.
	IncludeSweepJobs bool
	// QueueSize bounds outcomes waiting for delivery. Outcomes arriving
	// while it is full are dropped.
	QueueSize int
}

type discordMessage struct {
	ctx     context.Context
	origin  Origin
	outcome Outcome
}

// DiscordSink posts outcomes to a Discord webhook, mentioning the requester
// when the origin carries one. Posts happen on a background worker, so
// Notify never waits on the network. Call Close to flush and stop it.
type DiscordSink struct {
	webhookURL   string
	client       *http.Client
	limiter      *rate.Limiter
	includeSweep bool
	log          zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	pending chan discordMessage
	done    chan struct{}
}

var _ Sink = (*DiscordSink)(nil)

// NewDiscordSink creates a Discord sink.
func NewDiscordSink(cfg DiscordConfig) *DiscordSink {
	limit := rate.Limit(cfg.RatePerSec)
	if cfg.RatePerSec <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	queueSize := cfg.QueueSize
	if queueSize < 1 {
		queueSize = defaultDiscordQueueSize
	}
	n := &DiscordSink{
		webhookURL:   cfg.WebhookURL,
		client:       &http.Client{Timeout: 10 * time.Second},
		limiter:      rate.NewLimiter(limit, burst),
		includeSweep: cfg.IncludeSweepJobs,
		log:          logging.WithComponent("notify-discord"),
		pending:      make(chan discordMessage, queueSize),
		done:         make(chan struct{}),
	}
	go n.dispatch()
	return n
}

// Notify implements Sink. It queues the outcome and returns at once.
func (n *DiscordSink) Notify(ctx context.Context, origin Origin, outcome Outcome) {
	if outcome.SweepID != "" && !outcome.Aggregate && !n.includeSweep {
		return
	}
	msg := discordMessage{ctx: context.WithoutCancel(ctx), origin: origin, outcome: outcome}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.record(msg.outcome, errSinkClosed)
		return
	}
	select {
	case n.pending <- msg:
	default:
		n.record(msg.outcome, errQueueFull)
	}
}

// Close stops accepting outcomes and waits for queued ones to be posted.
// It is safe to call more than once.
func (n *DiscordSink) Close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.pending)
	}
	n.mu.Unlock()
	<-n.done
}

func (n *DiscordSink) dispatch() {
	defer close(n.done)
	for msg := range n.pending {
		n.record(msg.outcome, n.send(msg.ctx, msg.origin, msg.outcome))
	}
}

func (n *DiscordSink) record(outcome Outcome, err error) {
	metrics.RecordNotification("discord", err)
	if err != nil {
		n.log.Warn().Err(err).
			Str("job_id", outcome.JobID).
			Str("sweep_id", outcome.SweepID).
			Msg("discord notification not delivered")
	}
}

func (n *DiscordSink) send(ctx context.Context, origin Origin, outcome Outcome) error {
	if !n.limiter.Allow() {
		return errRateLimited
	}

	payload := discordWebhookPayload{
		Embeds: []discordEmbed{buildEmbed(origin, outcome)},
	}
	if origin.RequesterID != "" {
		payload.Content = "<@" + origin.RequesterID + ">"
		payload.AllowedMentions = &discordAllowedMentions{Users: []string{origin.RequesterID}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal Discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create Discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Discord webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func buildEmbed(origin Origin, o Outcome) discordEmbed {
	fields := []discordEmbedField{
		{Name: "Rework", Value: o.Rework, Inline: true},
	}
	if o.UserID != "" {
		fields = append(fields, discordEmbedField{Name: "Player", Value: o.UserID, Inline: true})
	}
	if o.Status == StatusSuccess && !o.Aggregate {
		fields = append(fields,
			discordEmbedField{Name: "Total", Value: strconv.FormatFloat(o.TotalPerformance, 'f', 2, 64) + "pp", Inline: true},
			discordEmbedField{Name: "Scores", Value: strconv.Itoa(o.ScoreCount), Inline: true},
		)
	}
	if o.Counts != nil {
		fields = append(fields,
			discordEmbedField{Name: "Recalculated", Value: strconv.Itoa(o.Counts.Succeeded), Inline: true},
			discordEmbedField{Name: "Failed", Value: strconv.Itoa(o.Counts.Failed), Inline: true},
			discordEmbedField{Name: "Skipped", Value: strconv.Itoa(o.Counts.Skipped), Inline: true},
		)
	}

	title := "Recalculation complete"
	switch {
	case o.Aggregate:
		title = "Full sweep complete"
	case o.Status == StatusFailure:
		title = "Recalculation failed"
	}

	footer := "Mahiru"
	if o.JobID != "" {
		footer += " · job " + o.JobID
	}

	return discordEmbed{
		Title:       title,
		Description: Describe(o, origin.Locale),
		Color:       outcomeColor(o),
		Timestamp:   o.FinishedAt.UTC().Format(time.RFC3339),
		Fields:      fields,
		Footer:      discordEmbedFooter{Text: footer},
	}
}

func outcomeColor(o Outcome) int {
	switch {
	case o.Aggregate:
		return 0x3498DB // Blue
	case o.Status == StatusSuccess:
		return 0x2ECC71 // Green
	case o.Reason == "engine_error" || o.Reason == "store_error":
		return 0xFF0000 // Red
	default:
		return 0xFFA500 // Orange
	}
}

// Discord webhook structures
type discordWebhookPayload struct {
	Content         string                  `json:"content,omitempty"`
	Embeds          []discordEmbed          `json:"embeds,omitempty"`
	AllowedMentions *discordAllowedMentions `json:"allowed_mentions,omitempty"`
}

type discordAllowedMentions struct {
	Users []string `json:"users"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      discordEmbedFooter  `json:"footer,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}
