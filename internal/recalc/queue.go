// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

// Package recalc runs player recalculations one at a time, in the order they
// were accepted.
//
// At most one job per (user, rework) pair is queued or running at any
// moment; a second request for the same pair is rejected at submission.
// A full sweep enqueues one job per known player through the same rule and
// reports once, in aggregate, when every job it enqueued has finished.
package recalc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/mahiru/internal/logging"
	"github.com/tomtom215/mahiru/internal/metrics"
	"github.com/tomtom215/mahiru/internal/models"
	"github.com/tomtom215/mahiru/internal/notify"
)

// ConflictPolicy decides what a full sweep does with a player that already
// has a job in flight.
type ConflictPolicy string

const (
	// ConflictSkip leaves the player out of the sweep.
	ConflictSkip ConflictPolicy = "skip"
	// ConflictWait waits for the running job to finish and then enqueues.
	ConflictWait ConflictPolicy = "wait"
)

// Config tunes a Queue.
type Config struct {
	ConflictPolicy ConflictPolicy
	// JobTimeout bounds a single job. Zero means no bound.
	JobTimeout time.Duration
}

// entry is the in-flight record for an accepted job. done is closed when the
// job leaves the in-flight set.
type entry struct {
	job   Job
	sweep *fullSweep
	done  chan struct{}
}

// Queue is the recalculation queue. Enqueue and EnqueueFullSweep may be
// called from any goroutine; Run is the single worker.
type Queue struct {
	players PlayerStore
	calc    Calculator
	sink    notify.Sink
	journal Journal
	cfg     Config
	log     zerolog.Logger
	now     func() time.Time

	mu       sync.Mutex
	pending  []*entry
	inFlight map[jobKey]*entry
	running  *entry
	seq      uint64
	sweeps   map[string]*fullSweep
	closed   bool
	wake     chan struct{}

	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	lanes      sync.WaitGroup

	processed atomic.Uint64
	failed    atomic.Uint64
}

// Option configures a Queue.
type Option func(*Queue)

// WithJournal persists accepted jobs.
func WithJournal(j Journal) Option {
	return func(q *Queue) { q.journal = j }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates a queue. sink receives every outcome.
func New(players PlayerStore, calc Calculator, sink notify.Sink, cfg Config, opts ...Option) *Queue {
	if cfg.ConflictPolicy == "" {
		cfg.ConflictPolicy = ConflictSkip
	}
	lifeCtx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		players:    players,
		calc:       calc,
		sink:       sink,
		cfg:        cfg,
		log:        logging.WithComponent("recalc"),
		now:        time.Now,
		inFlight:   make(map[jobKey]*entry),
		sweeps:     make(map[string]*fullSweep),
		wake:       make(chan struct{}, 1),
		lifeCtx:    lifeCtx,
		lifeCancel: cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue validates job and appends it to the queue. A nil error means the
// job was accepted and its outcome will reach the sink. Rejections are
// ErrDuplicateInFlight, ErrPlayerNotFound, ErrPlayerArchived and the
// scoring rework errors; no engine work happens for a rejected job.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	err := q.enqueue(ctx, job, nil)
	if err != nil {
		metrics.Rejections.WithLabelValues(string(Classify(err))).Inc()
	}
	return err
}

func (q *Queue) enqueue(ctx context.Context, job Job, sweep *fullSweep) error {
	if job.UserID == "" || job.Rework == "" {
		return fmt.Errorf("%w: user and rework are required", ErrInvalidJob)
	}
	if err := q.checkAdmissible(job.key()); err != nil {
		return err
	}

	if _, err := q.calc.Resolve(job.Rework); err != nil {
		return err
	}
	if err := q.checkPlayer(ctx, job.UserID); err != nil {
		return err
	}

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = q.now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	// The player lookup ran unlocked; the pair may have been taken since.
	if q.closed {
		return ErrQueueClosed
	}
	if _, ok := q.inFlight[job.key()]; ok {
		return fmt.Errorf("%w: user %s under %s", ErrDuplicateInFlight, job.UserID, job.Rework)
	}

	q.seq++
	job.Seq = q.seq
	if q.journal != nil {
		if err := q.journal.Save(job); err != nil {
			q.seq--
			return fmt.Errorf("%w: journal job: %w", ErrStore, err)
		}
	}

	e := &entry{job: job, sweep: sweep, done: make(chan struct{})}
	if sweep != nil {
		sweep.accept()
	}
	q.pending = append(q.pending, e)
	q.inFlight[job.key()] = e
	metrics.QueueDepth.Set(float64(len(q.inFlight)))

	select {
	case q.wake <- struct{}{}:
	default:
	}

	q.log.Debug().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Str("rework", job.Rework).
		Uint64("seq", job.Seq).
		Str("sweep_id", job.SweepID).
		Msg("job accepted")
	return nil
}

func (q *Queue) checkAdmissible(key jobKey) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if _, ok := q.inFlight[key]; ok {
		return fmt.Errorf("%w: user %s under %s", ErrDuplicateInFlight, key.userID, key.rework)
	}
	return nil
}

func (q *Queue) checkPlayer(ctx context.Context, userID string) error {
	player, err := q.players.GetPlayer(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: get player %s: %w", ErrStore, userID, err)
	}
	if player == nil {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, userID)
	}
	if player.Archived {
		return fmt.Errorf("%w: %s", ErrPlayerArchived, userID)
	}
	return nil
}

// inFlightDone returns the completion channel of the job holding key, or
// nil when there is none.
func (q *Queue) inFlightDone(key jobKey) <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.inFlight[key]; ok {
		return e.done
	}
	return nil
}

// Run executes jobs until ctx is cancelled. It returns ctx.Err() on
// shutdown and ErrQueueCorrupted if the in-flight bookkeeping is broken.
// Only one Run may be active at a time.
func (q *Queue) Run(ctx context.Context) error {
	q.resumeInterrupted()
	q.log.Info().Msg("recalculation worker started")

	for {
		e, err := q.next(ctx)
		if err != nil {
			q.log.Info().Msg("recalculation worker stopped")
			return err
		}

		outcome, interrupted := q.execute(ctx, e)

		if err := q.finish(e, interrupted); err != nil {
			q.log.Error().Err(err).Str("job_id", e.job.ID).Msg("queue state is inconsistent")
			return err
		}

		// The key is released before the requester hears back, so a
		// resubmission prompted by the outcome is accepted.
		q.report(e, outcome, interrupted)
	}
}

// resumeInterrupted puts a job whose worker died mid-execution back at the
// head of the queue.
func (q *Queue) resumeInterrupted() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running == nil {
		return
	}
	q.log.Warn().Str("job_id", q.running.job.ID).Msg("resuming job interrupted by worker restart")
	q.pending = append([]*entry{q.running}, q.pending...)
	q.running = nil
}

func (q *Queue) next(ctx context.Context) (*entry, error) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			e := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			q.running = e
			q.mu.Unlock()
			return e, nil
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *Queue) finish(e *entry, keepJournal bool) error {
	if q.journal != nil && !keepJournal {
		if err := q.journal.Delete(e.job.Seq); err != nil {
			q.log.Warn().Err(err).Str("job_id", e.job.ID).Msg("failed to remove job from journal")
		}
	}

	q.mu.Lock()
	key := e.job.key()
	if q.running != e {
		q.mu.Unlock()
		return fmt.Errorf("%w: job %s finished but is not the running job", ErrQueueCorrupted, e.job.ID)
	}
	if q.inFlight[key] != e {
		q.mu.Unlock()
		return fmt.Errorf("%w: job %s missing from in-flight set", ErrQueueCorrupted, e.job.ID)
	}
	delete(q.inFlight, key)
	q.running = nil
	metrics.QueueDepth.Set(float64(len(q.inFlight)))
	q.mu.Unlock()

	close(e.done)
	return nil
}

// report delivers the outcome of a finished job. A job interrupted by
// shutdown stays journaled and runs again, so its requester is not told
// anything yet.
func (q *Queue) report(e *entry, outcome notify.Outcome, interrupted bool) {
	if !interrupted {
		ctx := logging.ContextWithJobID(context.Background(), e.job.ID)
		q.sink.Notify(ctx, e.job.Origin, outcome)
	}
	if e.sweep != nil {
		e.sweep.record(outcome.Status == notify.StatusSuccess)
	}
}

// execute runs one job. interrupted is true when the job was stopped by
// shutdown and must stay journaled.
func (q *Queue) execute(ctx context.Context, e *entry) (outcome notify.Outcome, interrupted bool) {
	job := e.job
	jobCtx := logging.ContextWithJobID(logging.ContextWithNewCorrelationID(ctx), job.ID)
	if q.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, q.cfg.JobTimeout)
		defer cancel()
	}
	log := logging.Ctx(jobCtx)

	start := q.now()
	rec, err := q.recalculate(jobCtx, job)
	elapsed := q.now().Sub(start)

	outcome = notify.Outcome{
		JobID:      job.ID,
		UserID:     job.UserID,
		Rework:     job.Rework,
		SweepID:    job.SweepID,
		FinishedAt: q.now(),
	}

	if err == nil {
		q.processed.Add(1)
		outcome.Status = notify.StatusSuccess
		outcome.TotalPerformance = rec.TotalPerformance
		outcome.ScoreCount = len(rec.Scores)
		outcome.Summary = fmt.Sprintf("Recalculated %s under %s: %.2fpp across %d scores.",
			job.UserID, job.Rework, rec.TotalPerformance, len(rec.Scores))
		metrics.RecordJob(job.Rework, "success", elapsed)
		log.Info().
			Str("user_id", job.UserID).
			Str("rework", job.Rework).
			Float64("total_pp", rec.TotalPerformance).
			Int("scores", len(rec.Scores)).
			Dur("elapsed", elapsed).
			Msg("recalculation complete")
	} else {
		q.failed.Add(1)
		kind := Classify(err)
		interrupted = kind == KindCancelled && ctx.Err() != nil
		outcome.Status = notify.StatusFailure
		outcome.Reason = string(kind)
		outcome.Detail = err.Error()
		metrics.RecordJob(job.Rework, string(kind), elapsed)
		log.Warn().Err(err).
			Str("user_id", job.UserID).
			Str("rework", job.Rework).
			Str("kind", string(kind)).
			Dur("elapsed", elapsed).
			Msg("recalculation failed")
	}

	return outcome, interrupted
}

// recalculate re-validates the job and recomputes every score. Any score
// failure fails the whole job; nothing is persisted in that case.
func (q *Queue) recalculate(ctx context.Context, job Job) (models.Recalculation, error) {
	if err := q.checkPlayer(ctx, job.UserID); err != nil {
		return models.Recalculation{}, err
	}
	if _, err := q.calc.Resolve(job.Rework); err != nil {
		return models.Recalculation{}, err
	}

	scores, err := q.players.ListScores(ctx, job.UserID)
	if err != nil {
		return models.Recalculation{}, fmt.Errorf("%w: list scores for %s: %w", ErrStore, job.UserID, err)
	}

	perf := make([]models.ScorePerformance, 0, len(scores))
	for _, s := range scores {
		if err := ctx.Err(); err != nil {
			return models.Recalculation{}, err
		}
		p, err := q.calc.Performance(ctx, s, job.Rework)
		if err != nil {
			return models.Recalculation{}, fmt.Errorf("score %s: %w", s.ID, err)
		}
		perf = append(perf, p)
	}

	rec := Aggregate(job.UserID, job.Rework, scores, perf, q.now())
	if err := q.players.SaveRecalculation(ctx, rec); err != nil {
		return models.Recalculation{}, fmt.Errorf("%w: save recalculation for %s: %w", ErrStore, job.UserID, err)
	}
	return rec, nil
}

// Recover re-enqueues journaled jobs in their original order. Jobs that are
// no longer admissible are dropped from the journal. Sweep membership is
// not restored.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	if q.journal == nil {
		return 0, nil
	}
	jobs, err := q.journal.Load()
	if err != nil {
		return 0, fmt.Errorf("load journal: %w", err)
	}

	q.mu.Lock()
	for _, j := range jobs {
		if j.Seq > q.seq {
			q.seq = j.Seq
		}
	}
	q.mu.Unlock()

	recovered := 0
	for _, j := range jobs {
		oldSeq := j.Seq
		j.SweepID = ""
		err := q.enqueue(ctx, j, nil)
		if err != nil {
			q.log.Warn().Err(err).Str("job_id", j.ID).Str("user_id", j.UserID).Msg("dropping journaled job")
		} else {
			recovered++
		}
		if delErr := q.journal.Delete(oldSeq); delErr != nil {
			q.log.Warn().Err(delErr).Uint64("seq", oldSeq).Msg("failed to remove recovered journal entry")
		}
	}

	if recovered > 0 {
		q.log.Info().Int("jobs", recovered).Msg("recovered journaled jobs")
	}
	return recovered, nil
}

// Close stops accepting work and waits for sweep enumeration to stop.
// Queued jobs are abandoned; with a journal they resume on the next start.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.lifeCancel()
	q.lanes.Wait()
}

// Snapshot is a point-in-time view of the queue.
type Snapshot struct {
	Pending   []Job        `json:"pending"`
	Running   *Job         `json:"running,omitempty"`
	Sweeps    []SweepState `json:"sweeps"`
	Processed uint64       `json:"processed"`
	Failed    uint64       `json:"failed"`
}

// Snapshot reports the queue contents.
func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	snap := Snapshot{
		Pending: make([]Job, 0, len(q.pending)),
		Sweeps:  make([]SweepState, 0, len(q.sweeps)),
	}
	for _, e := range q.pending {
		snap.Pending = append(snap.Pending, e.job)
	}
	if q.running != nil {
		job := q.running.job
		snap.Running = &job
	}
	sweeps := make([]*fullSweep, 0, len(q.sweeps))
	for _, s := range q.sweeps {
		sweeps = append(sweeps, s)
	}
	q.mu.Unlock()

	for _, s := range sweeps {
		snap.Sweeps = append(snap.Sweeps, s.state())
	}
	snap.Processed = q.processed.Load()
	snap.Failed = q.failed.Load()
	return snap
}
