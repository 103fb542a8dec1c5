// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

// Package sweep periodically removes content that was flagged as
// fraudulent.
//
// A pass drains the flag collection page by page: each unscanned record has
// its referenced content removed and is then marked scanned. When a page
// comes back empty the job returns to Idle and issues exactly one marker
// reset, so the next pass sees every record again.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/mahiru/internal/logging"
	"github.com/tomtom215/mahiru/internal/metrics"
	"github.com/tomtom215/mahiru/internal/models"
)

// ErrPassRunning is returned by Trigger and RunPass while a pass is active.
var ErrPassRunning = errors.New("sweep pass already running")

// ErrStopping is returned by Trigger and RunPass once Serve is shutting down.
var ErrStopping = errors.New("sweep is stopping")

// FlagStore reads and marks flag records.
type FlagStore interface {
	// FetchUnscanned returns up to limit unscanned records in insertion order.
	FetchUnscanned(ctx context.Context, limit int) ([]models.FlagRecord, error)
	MarkScanned(ctx context.Context, id string) error
	ResetAllMarkers(ctx context.Context) error
	ResetMarkers(ctx context.Context, ids []string) error
}

// ContentRemover deletes the content a flag refers to.
type ContentRemover interface {
	RemoveContent(ctx context.Context, ref string) error
}

// ResetPolicy selects the reset issued when a pass drains.
type ResetPolicy string

const (
	// ResetAll clears every marker.
	ResetAll ResetPolicy = "all"
	// ResetProcessed clears only markers set during the pass.
	ResetProcessed ResetPolicy = "processed"
	// ResetNone leaves markers alone.
	ResetNone ResetPolicy = "none"
)

// State is the job's externally visible state.
type State int32

const (
	StateIdle State = iota
	StateDraining
)

func (s State) String() string {
	if s == StateDraining {
		return "draining"
	}
	return "idle"
}

const (
	defaultInterval = 30 * time.Minute
	defaultPageSize = 100
)

// Config tunes a Job.
type Config struct {
	Interval    time.Duration
	PageSize    int
	ResetPolicy ResetPolicy
}

// PassReport summarizes one pass.
type PassReport struct {
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	Pages          int           `json:"pages"`
	Processed      int           `json:"processed"`
	RemoveFailures int           `json:"remove_failures"`
	MarkFailures   int           `json:"mark_failures"`
	// Drained is true when the pass reached an empty page.
	Drained bool `json:"drained"`
	// Reset is true when the reset for ResetPolicy was issued and succeeded.
	Reset bool `json:"reset"`
	// Stopped is set when the pass ended before draining.
	Stopped string `json:"stopped,omitempty"`
}

// Job is the periodic sweep.
type Job struct {
	flags   FlagStore
	remover ContentRemover
	cfg     Config
	log     zerolog.Logger

	running atomic.Bool
	state   atomic.Int32
	passes  sync.WaitGroup

	mu       sync.Mutex
	baseCtx  context.Context
	stopping bool
	last     *PassReport
}

// New creates a sweep job.
func New(flags FlagStore, remover ContentRemover, cfg Config) *Job {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.ResetPolicy == "" {
		cfg.ResetPolicy = ResetAll
	}
	return &Job{
		flags:   flags,
		remover: remover,
		cfg:     cfg,
		log:     logging.WithComponent("sweep"),
		baseCtx: context.Background(),
	}
}

// Serve runs a pass every Interval until ctx is cancelled. A tick that
// lands while a pass is running is dropped. On cancellation the page in
// progress is finished before Serve returns.
func (j *Job) Serve(ctx context.Context) error {
	j.mu.Lock()
	j.baseCtx = ctx
	j.stopping = false
	j.mu.Unlock()

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	j.log.Info().
		Dur("interval", j.cfg.Interval).
		Int("page_size", j.cfg.PageSize).
		Str("reset_policy", string(j.cfg.ResetPolicy)).
		Msg("sweep scheduled")

	for {
		select {
		case <-ctx.Done():
			// No pass may register after this point, so Wait sees them all.
			j.mu.Lock()
			j.stopping = true
			j.mu.Unlock()
			j.passes.Wait()
			return ctx.Err()
		case <-ticker.C:
			if _, err := j.RunPass(ctx); err != nil && !errors.Is(err, ErrPassRunning) {
				j.log.Error().Err(err).Msg("sweep pass failed")
			}
		}
	}
}

// Trigger starts a pass in the background under the same guard as the
// ticker.
func (j *Job) Trigger() error {
	if !j.running.CompareAndSwap(false, true) {
		return ErrPassRunning
	}
	ctx, err := j.register()
	if err != nil {
		j.running.Store(false)
		return err
	}

	go func() {
		defer j.passes.Done()
		defer j.running.Store(false)
		if _, err := j.pass(ctx); err != nil {
			j.log.Error().Err(err).Msg("triggered sweep pass failed")
		}
	}()
	return nil
}

// RunPass runs one pass synchronously.
func (j *Job) RunPass(ctx context.Context) (PassReport, error) {
	if !j.running.CompareAndSwap(false, true) {
		return PassReport{}, ErrPassRunning
	}
	defer j.running.Store(false)
	if _, err := j.register(); err != nil {
		return PassReport{}, err
	}
	defer j.passes.Done()
	return j.pass(ctx)
}

// register adds a pass to the shutdown wait group and returns the context
// Serve is running under. It fails once Serve has begun stopping.
func (j *Job) register() (context.Context, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.stopping {
		return nil, ErrStopping
	}
	j.passes.Add(1)
	return j.baseCtx, nil
}

// State reports Idle or Draining.
func (j *Job) State() State {
	return State(j.state.Load())
}

// LastReport returns the report of the most recent pass, if any.
func (j *Job) LastReport() *PassReport {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.last == nil {
		return nil
	}
	r := *j.last
	return &r
}

func (j *Job) setState(s State) {
	j.state.Store(int32(s))
	metrics.SetDraining(s == StateDraining)
}

func (j *Job) pass(ctx context.Context) (report PassReport, err error) {
	report.StartedAt = time.Now()
	j.setState(StateDraining)
	j.log.Info().Msg("sweep pass started")

	defer func() {
		j.setState(StateIdle)
		report.Duration = time.Since(report.StartedAt)

		result := "drained"
		switch {
		case err != nil:
			result = "error"
		case !report.Drained:
			result = "stopped"
		}
		metrics.SweepPasses.WithLabelValues(result).Inc()

		j.mu.Lock()
		r := report
		j.last = &r
		j.mu.Unlock()

		j.log.Info().
			Int("pages", report.Pages).
			Int("processed", report.Processed).
			Int("remove_failures", report.RemoveFailures).
			Int("mark_failures", report.MarkFailures).
			Bool("drained", report.Drained).
			Bool("reset", report.Reset).
			Str("stopped", report.Stopped).
			Dur("duration", report.Duration).
			Msg("sweep pass finished")
	}()

	var marked []string
	unmarkable := make(map[string]struct{})

	for {
		if ctx.Err() != nil {
			report.Stopped = "shutdown"
			return report, nil
		}

		page, err := j.flags.FetchUnscanned(ctx, j.cfg.PageSize)
		if err != nil {
			if ctx.Err() != nil {
				report.Stopped = "shutdown"
				return report, nil
			}
			report.Stopped = "fetch failed"
			return report, fmt.Errorf("fetch unscanned flags: %w", err)
		}

		if len(page) == 0 {
			report.Drained = true
			report.Reset = j.reset(ctx, marked)
			return report, nil
		}

		// A page of nothing but records we already failed to mark would be
		// fetched forever.
		if allUnmarkable(page, unmarkable) {
			report.Stopped = "marking failed for every record in page"
			j.log.Warn().Int("records", len(page)).Msg("sweep pass stopped: page contains only records that could not be marked")
			return report, nil
		}

		report.Pages++
		j.drainPage(ctx, page, unmarkable, &marked, &report)
	}
}

// drainPage handles every record of page. Record actions are detached from
// cancellation so that a page in progress always completes.
func (j *Job) drainPage(ctx context.Context, page []models.FlagRecord, unmarkable map[string]struct{}, marked *[]string, report *PassReport) {
	ctx = context.WithoutCancel(ctx)

	for _, rec := range page {
		if _, skip := unmarkable[rec.ID]; skip {
			continue
		}

		if err := j.remover.RemoveContent(ctx, rec.ContentRef); err != nil {
			report.RemoveFailures++
			metrics.SweepRecords.WithLabelValues("remove_failed").Inc()
			j.log.Warn().Err(err).
				Str("flag_id", rec.ID).
				Str("content_ref", rec.ContentRef).
				Msg("failed to remove flagged content")
		}

		if err := j.flags.MarkScanned(ctx, rec.ID); err != nil {
			report.MarkFailures++
			unmarkable[rec.ID] = struct{}{}
			metrics.SweepRecords.WithLabelValues("mark_failed").Inc()
			j.log.Warn().Err(err).Str("flag_id", rec.ID).Msg("failed to mark flag scanned")
			continue
		}

		report.Processed++
		*marked = append(*marked, rec.ID)
		metrics.SweepRecords.WithLabelValues("processed").Inc()
	}
}

// reset issues the single reset for the configured policy.
func (j *Job) reset(ctx context.Context, marked []string) bool {
	policy := string(j.cfg.ResetPolicy)
	ctx = context.WithoutCancel(ctx)

	var err error
	switch j.cfg.ResetPolicy {
	case ResetNone:
		metrics.SweepResets.WithLabelValues(policy, "skipped").Inc()
		return false
	case ResetProcessed:
		if len(marked) == 0 {
			metrics.SweepResets.WithLabelValues(policy, "skipped").Inc()
			return false
		}
		err = j.flags.ResetMarkers(ctx, marked)
	default:
		err = j.flags.ResetAllMarkers(ctx)
	}

	if err != nil {
		metrics.SweepResets.WithLabelValues(policy, "error").Inc()
		j.log.Error().Err(err).Str("policy", policy).Msg("failed to reset scan markers")
		return false
	}
	metrics.SweepResets.WithLabelValues(policy, "success").Inc()
	return true
}

func allUnmarkable(page []models.FlagRecord, unmarkable map[string]struct{}) bool {
	if len(unmarkable) == 0 {
		return false
	}
	for _, rec := range page {
		if _, ok := unmarkable[rec.ID]; !ok {
			return false
		}
	}
	return true
}
