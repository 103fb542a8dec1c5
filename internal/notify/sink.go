// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

// Package notify reports recalculation outcomes back to whoever asked for
// them.
//
// Delivery is fire-and-forget: Notify has no error return, and a sink that
// fails logs and counts the failure itself. The queue never retries.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/mahiru/internal/logging"
	"github.com/tomtom215/mahiru/internal/metrics"
)

// Origin identifies the requester. It is opaque to the queue and carried
// unchanged from enqueue to notification.
type Origin struct {
	// Kind is the channel the request came from: "discord", "http" or "system".
	Kind        string `json:"kind"`
	ChannelID   string `json:"channel_id,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
	RequesterID string `json:"requester_id,omitempty"`
	Locale      string `json:"locale,omitempty"`
}

// Status is the result class of an outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Outcome describes one finished job, or the end of a full sweep when
// Aggregate is set.
type Outcome struct {
	Status  Status `json:"status"`
	JobID   string `json:"job_id,omitempty"`
	UserID  string `json:"user_id,omitempty"`
	Rework  string `json:"rework"`
	SweepID string `json:"sweep_id,omitempty"`

	// Summary is set on success.
	Summary          string  `json:"summary,omitempty"`
	TotalPerformance float64 `json:"total_performance,omitempty"`
	ScoreCount       int     `json:"score_count,omitempty"`

	// Reason is a failure kind such as "player_archived"; Detail is the
	// underlying error text.
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`

	Aggregate  bool      `json:"aggregate,omitempty"`
	Counts     *Counts   `json:"counts,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Counts tallies a full sweep.
type Counts struct {
	Accepted  int `json:"accepted"`
	Skipped   int `json:"skipped"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Sink receives outcomes.
type Sink interface {
	Notify(ctx context.Context, origin Origin, outcome Outcome)
}

// Multi fans an outcome out to every sink in order.
type Multi []Sink

// Notify implements Sink.
func (m Multi) Notify(ctx context.Context, origin Origin, outcome Outcome) {
	for _, s := range m {
		s.Notify(ctx, origin, outcome)
	}
}

// LogSink writes outcomes to the log. It is always installed so that every
// outcome is recorded even when no chat or bus sink is configured.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink() *LogSink {
	return &LogSink{log: logging.WithComponent("outcomes")}
}

// Notify implements Sink.
func (s *LogSink) Notify(ctx context.Context, origin Origin, outcome Outcome) {
	var ev *zerolog.Event
	if outcome.Status == StatusSuccess {
		ev = s.log.Info()
	} else {
		ev = s.log.Warn().Str("reason", outcome.Reason).Str("detail", outcome.Detail)
	}
	ev.Str("job_id", outcome.JobID).
		Str("user_id", outcome.UserID).
		Str("rework", outcome.Rework).
		Str("sweep_id", outcome.SweepID).
		Str("origin", origin.Kind).
		Bool("aggregate", outcome.Aggregate).
		Msg(Describe(outcome, origin.Locale))
	metrics.RecordNotification("log", nil)
}
