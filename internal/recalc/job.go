// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package recalc

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/mahiru/internal/models"
	"github.com/tomtom215/mahiru/internal/notify"
	"github.com/tomtom215/mahiru/internal/scoring"
)

var (
	// ErrDuplicateInFlight rejects a job whose (user, rework) pair is already
	// queued or running.
	ErrDuplicateInFlight = errors.New("recalculation already in flight")

	// ErrPlayerNotFound means the player does not exist.
	ErrPlayerNotFound = errors.New("player not found")

	// ErrPlayerArchived means the player exists but is archived.
	ErrPlayerArchived = errors.New("player is archived")

	// ErrStore wraps player store failures.
	ErrStore = errors.New("player store error")

	// ErrInvalidJob rejects a job without a user or rework.
	ErrInvalidJob = errors.New("invalid job")

	// ErrQueueClosed rejects work after Close.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrSweepInProgress rejects a second full sweep for the same rework.
	ErrSweepInProgress = errors.New("full sweep already in progress")

	// ErrQueueCorrupted is returned by Run when the in-flight bookkeeping no
	// longer matches the job it just executed. It is not recoverable.
	ErrQueueCorrupted = errors.New("recalculation queue corrupted")
)

// Job is one request to recompute a player's scores under a rework.
type Job struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	Rework      string        `json:"rework"`
	RequestedAt time.Time     `json:"requested_at"`
	Origin      notify.Origin `json:"origin"`

	// Seq is assigned on acceptance and orders the queue.
	Seq uint64 `json:"seq"`
	// SweepID links a job to the full sweep that enqueued it.
	SweepID string `json:"sweep_id,omitempty"`
}

func (j Job) key() jobKey {
	return jobKey{userID: j.UserID, rework: j.Rework}
}

type jobKey struct {
	userID string
	rework string
}

// PlayerStore is the queue's view of the player database.
type PlayerStore interface {
	// GetPlayer returns nil, nil when the player does not exist.
	GetPlayer(ctx context.Context, id string) (*models.Player, error)
	ListPlayerIDs(ctx context.Context) ([]string, error)
	ListScores(ctx context.Context, playerID string) ([]models.Score, error)
	SaveRecalculation(ctx context.Context, rec models.Recalculation) error
}

// Calculator resolves reworks and values scores. *scoring.Router is the
// production implementation.
type Calculator interface {
	Resolve(rework string) (scoring.Rework, error)
	Performance(ctx context.Context, score models.Score, rework string) (models.ScorePerformance, error)
}

// FailureKind names why a job was rejected or failed.
type FailureKind string

const (
	KindDuplicate      FailureKind = "duplicate_in_flight"
	KindPlayerNotFound FailureKind = "player_not_found"
	KindPlayerArchived FailureKind = "player_archived"
	KindUnknownRework  FailureKind = "unknown_rework"
	KindInactiveRework FailureKind = "inactive_rework"
	KindEngine         FailureKind = "engine_error"
	KindStore          FailureKind = "store_error"
	KindCancelled      FailureKind = "cancelled"
	KindTimeout        FailureKind = "timeout"
	KindInvalid        FailureKind = "invalid_job"
	KindInternal       FailureKind = "internal_error"
)

// Classify maps an error from Enqueue or job execution to a FailureKind.
// Context errors win over whatever wrapped them.
func Classify(err error) FailureKind {
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrDuplicateInFlight):
		return KindDuplicate
	case errors.Is(err, ErrPlayerNotFound):
		return KindPlayerNotFound
	case errors.Is(err, ErrPlayerArchived):
		return KindPlayerArchived
	case errors.Is(err, scoring.ErrUnknownRework):
		return KindUnknownRework
	case errors.Is(err, scoring.ErrInactiveRework):
		return KindInactiveRework
	case errors.Is(err, scoring.ErrEngine):
		return KindEngine
	case errors.Is(err, ErrStore):
		return KindStore
	case errors.Is(err, ErrInvalidJob):
		return KindInvalid
	default:
		return KindInternal
	}
}
