// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package recalc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/mahiru/internal/metrics"
	"github.com/tomtom215/mahiru/internal/notify"
	"github.com/tomtom215/mahiru/internal/scoring"
)

// SweepTicket tracks an accepted full sweep.
type SweepTicket struct {
	ID     string
	Rework string

	enumerated chan struct{}
	done       chan struct{}
}

// Enumerated is closed once every player has been considered.
func (t *SweepTicket) Enumerated() <-chan struct{} { return t.enumerated }

// Done is closed after the aggregate outcome has been sent.
func (t *SweepTicket) Done() <-chan struct{} { return t.done }

// SweepState is a snapshot of one full sweep.
type SweepState struct {
	ID          string        `json:"id"`
	Rework      string        `json:"rework"`
	StartedAt   time.Time     `json:"started_at"`
	Enumerated  bool          `json:"enumerated"`
	Outstanding int           `json:"outstanding"`
	Counts      notify.Counts `json:"counts"`
}

type fullSweep struct {
	ticket    *SweepTicket
	origin    notify.Origin
	startedAt time.Time

	mu          sync.Mutex
	counts      notify.Counts
	outstanding int
	enumerated  bool
	aborted     error
	finished    bool

	// onComplete runs once, after enumeration and every accepted job are done.
	onComplete func(*fullSweep)
}

func (s *fullSweep) accept() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts.Accepted++
	s.outstanding++
}

func (s *fullSweep) skip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts.Skipped++
}

func (s *fullSweep) record(success bool) {
	s.mu.Lock()
	if success {
		s.counts.Succeeded++
	} else {
		s.counts.Failed++
	}
	s.outstanding--
	complete := s.completeLocked()
	s.mu.Unlock()

	if complete {
		s.onComplete(s)
	}
}

func (s *fullSweep) finishEnumeration(abort error) {
	s.mu.Lock()
	s.enumerated = true
	s.aborted = abort
	complete := s.completeLocked()
	s.mu.Unlock()

	close(s.ticket.enumerated)
	if complete {
		s.onComplete(s)
	}
}

func (s *fullSweep) completeLocked() bool {
	if s.finished || !s.enumerated || s.outstanding > 0 {
		return false
	}
	s.finished = true
	return true
}

func (s *fullSweep) state() SweepState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SweepState{
		ID:          s.ticket.ID,
		Rework:      s.ticket.Rework,
		StartedAt:   s.startedAt,
		Enumerated:  s.enumerated,
		Outstanding: s.outstanding,
		Counts:      s.counts,
	}
}

// EnqueueFullSweep starts a full sweep for rework: every known player is
// enqueued as an ordinary job. Only one full sweep per rework may be
// outstanding; targeted jobs are unaffected. Enumeration runs in the
// background; the returned ticket reports its progress.
func (q *Queue) EnqueueFullSweep(ctx context.Context, rework string, origin notify.Origin) (*SweepTicket, error) {
	if _, err := q.calc.Resolve(rework); err != nil {
		metrics.Rejections.WithLabelValues(string(Classify(err))).Inc()
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}
	if existing, ok := q.sweeps[rework]; ok {
		return nil, fmt.Errorf("%w: %s (sweep %s)", ErrSweepInProgress, rework, existing.ticket.ID)
	}

	s := &fullSweep{
		ticket: &SweepTicket{
			ID:         uuid.New().String(),
			Rework:     rework,
			enumerated: make(chan struct{}),
			done:       make(chan struct{}),
		},
		origin:     origin,
		startedAt:  q.now(),
		onComplete: q.completeSweep,
	}
	q.sweeps[rework] = s

	q.lanes.Add(1)
	go q.runSweep(s)

	q.log.Info().Str("sweep_id", s.ticket.ID).Str("rework", rework).Str("origin", origin.Kind).Msg("full sweep accepted")
	return s.ticket, nil
}

// runSweep enumerates players on the queue's own lifetime, not the
// requester's: the request that started a sweep returns immediately.
func (q *Queue) runSweep(s *fullSweep) {
	defer q.lanes.Done()
	ctx := q.lifeCtx
	rework := s.ticket.Rework
	log := q.log.With().Str("sweep_id", s.ticket.ID).Str("rework", rework).Logger()

	ids, err := q.players.ListPlayerIDs(ctx)
	if err != nil {
		log.Error().Err(err).Msg("full sweep could not list players")
		s.finishEnumeration(fmt.Errorf("%w: list players: %w", ErrStore, err))
		return
	}

	var abort error
	for _, id := range ids {
		if err := q.sweepOne(ctx, s, id); err != nil {
			abort = err
			break
		}
	}

	st := s.state()
	log.Info().
		Int("players", len(ids)).
		Int("accepted", st.Counts.Accepted).
		Int("skipped", st.Counts.Skipped).
		AnErr("abort", abort).
		Msg("full sweep enumeration finished")
	s.finishEnumeration(abort)
}

// sweepOne enqueues one player. A non-nil return aborts the sweep.
func (q *Queue) sweepOne(ctx context.Context, s *fullSweep, userID string) error {
	rework := s.ticket.Rework
	for {
		err := q.enqueue(ctx, Job{
			UserID:  userID,
			Rework:  rework,
			Origin:  s.origin,
			SweepID: s.ticket.ID,
		}, s)

		switch {
		case err == nil:
			return nil

		case errors.Is(err, ErrDuplicateInFlight):
			if q.cfg.ConflictPolicy == ConflictWait {
				if done := q.inFlightDone(jobKey{userID: userID, rework: rework}); done != nil {
					select {
					case <-done:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				continue
			}
			q.log.Info().Str("sweep_id", s.ticket.ID).Str("user_id", userID).Msg("full sweep skipping player with a job in flight")
			q.skipForSweep(s, KindDuplicate)
			return nil

		case errors.Is(err, scoring.ErrUnknownRework), errors.Is(err, scoring.ErrInactiveRework):
			return err

		case errors.Is(err, ErrQueueClosed):
			return err

		case ctx.Err() != nil:
			return ctx.Err()

		default:
			kind := Classify(err)
			if kind != KindPlayerArchived && kind != KindPlayerNotFound {
				q.log.Warn().Err(err).Str("sweep_id", s.ticket.ID).Str("user_id", userID).Msg("full sweep skipping player")
			}
			q.skipForSweep(s, kind)
			return nil
		}
	}
}

func (q *Queue) skipForSweep(s *fullSweep, kind FailureKind) {
	s.skip()
	metrics.FullSweepSkipped.WithLabelValues(s.ticket.Rework, string(kind)).Inc()
}

func (q *Queue) completeSweep(s *fullSweep) {
	q.mu.Lock()
	if q.sweeps[s.ticket.Rework] == s {
		delete(q.sweeps, s.ticket.Rework)
	}
	q.mu.Unlock()

	st := s.state()
	counts := st.Counts
	outcome := notify.Outcome{
		Status:     notify.StatusSuccess,
		Rework:     s.ticket.Rework,
		SweepID:    s.ticket.ID,
		Aggregate:  true,
		Counts:     &counts,
		FinishedAt: q.now(),
	}
	if s.aborted != nil {
		outcome.Status = notify.StatusFailure
		outcome.Reason = string(Classify(s.aborted))
		outcome.Detail = s.aborted.Error()
	}

	q.log.Info().
		Str("sweep_id", s.ticket.ID).
		Str("rework", s.ticket.Rework).
		Int("succeeded", counts.Succeeded).
		Int("failed", counts.Failed).
		Int("skipped", counts.Skipped).
		Msg("full sweep complete")

	q.sink.Notify(context.Background(), s.origin, outcome)
	close(s.ticket.done)
}
