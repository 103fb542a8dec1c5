// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tomtom215/mahiru/internal/cache"
	"github.com/tomtom215/mahiru/internal/logging"
	"github.com/tomtom215/mahiru/internal/notify"
	"github.com/tomtom215/mahiru/internal/recalc"
	"github.com/tomtom215/mahiru/internal/scoring"
	"github.com/tomtom215/mahiru/internal/sweep"
)

// RecalcQueue is the intake's view of recalc.Queue.
type RecalcQueue interface {
	Enqueue(ctx context.Context, job recalc.Job) error
	EnqueueFullSweep(ctx context.Context, rework string, origin notify.Origin) (*recalc.SweepTicket, error)
	Snapshot() recalc.Snapshot
}

// ReworkSwitch is the admin view of scoring.ReworkCatalog.
type ReworkSwitch interface {
	Active() string
	SetActive(name string) error
	Names() []string
}

// CacheAdmin is the admin view of the attribute cache.
type CacheAdmin interface {
	Evict(contentHash string) int
	CacheStats() cache.Stats
}

// SweepRunner is the admin view of sweep.Job.
type SweepRunner interface {
	Trigger() error
	State() sweep.State
	LastReport() *sweep.PassReport
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves every API endpoint.
type Handler struct {
	queue   RecalcQueue
	reworks ReworkSwitch
	cache   CacheAdmin
	sweeper SweepRunner
	store   Pinger

	startTime time.Time
}

// Deps are the components a Handler serves. Sweeper and Store may be nil.
type Deps struct {
	Queue   RecalcQueue
	Reworks ReworkSwitch
	Cache   CacheAdmin
	Sweeper SweepRunner
	Store   Pinger
}

// NewHandler creates a handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		queue:     d.Queue,
		reworks:   d.Reworks,
		cache:     d.Cache,
		sweeper:   d.Sweeper,
		store:     d.Store,
		startTime: time.Now(),
	}
}

// EnqueueResponse acknowledges an accepted job.
type EnqueueResponse struct {
	JobID  string `json:"job_id"`
	UserID string `json:"user_id"`
	Rework string `json:"rework"`
}

// Enqueue handles POST /api/v1/recalc.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req RecalcRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	job := recalc.Job{
		ID:     uuid.New().String(),
		UserID: req.UserID,
		Rework: req.Rework,
		Origin: req.Origin.toOrigin(),
	}
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		respondEnqueueError(w, r, err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Str("rework", job.Rework).
		Msg("recalculation accepted")

	respondData(w, http.StatusAccepted, EnqueueResponse{
		JobID:  job.ID,
		UserID: job.UserID,
		Rework: job.Rework,
	})
}

// SweepResponse acknowledges an accepted full sweep.
type SweepResponse struct {
	SweepID string `json:"sweep_id"`
	Rework  string `json:"rework"`
}

// EnqueueFullSweep handles POST /api/v1/recalc/sweep.
func (h *Handler) EnqueueFullSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ticket, err := h.queue.EnqueueFullSweep(r.Context(), req.Rework, req.Origin.toOrigin())
	if err != nil {
		respondEnqueueError(w, r, err)
		return
	}
	respondData(w, http.StatusAccepted, SweepResponse{SweepID: ticket.ID, Rework: ticket.Rework})
}

// QueueStatus handles GET /api/v1/recalc/status.
func (h *Handler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, h.queue.Snapshot())
}

// ReworkStatus lists the known reworks.
type ReworkStatus struct {
	Active string   `json:"active"`
	Known  []string `json:"known"`
}

// Reworks handles GET /api/v1/rework.
func (h *Handler) Reworks(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, ReworkStatus{Active: h.reworks.Active(), Known: h.reworks.Names()})
}

// SetActiveRework handles PUT /api/v1/rework/active. Jobs already queued
// under the previous rework fail when they reach the worker.
func (h *Handler) SetActiveRework(w http.ResponseWriter, r *http.Request) {
	var req ActiveReworkRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	previous := h.reworks.Active()
	if err := h.reworks.SetActive(req.Name); err != nil {
		respondEnqueueError(w, r, err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("previous", previous).
		Str("active", h.reworks.Active()).
		Msg("active rework switched")

	respondData(w, http.StatusOK, ReworkStatus{Active: h.reworks.Active(), Known: h.reworks.Names()})
}

// EvictResponse reports a cache eviction.
type EvictResponse struct {
	ContentHash string `json:"content_hash"`
	Evicted     int    `json:"evicted"`
}

// EvictContent handles DELETE /api/v1/cache/{contentHash}.
func (h *Handler) EvictContent(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "contentHash")
	if hash == "" || len(hash) > 128 {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "contentHash is required", nil, nil)
		return
	}

	n := h.cache.Evict(hash)
	logging.Ctx(r.Context()).Info().Str("content_hash", hash).Int("evicted", n).Msg("attribute cache evicted")
	respondData(w, http.StatusOK, EvictResponse{ContentHash: hash, Evicted: n})
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, h.cache.CacheStats())
}

// SweepStatusResponse describes the flagged-content sweep.
type SweepStatusResponse struct {
	State      string            `json:"state"`
	LastReport *sweep.PassReport `json:"last_report,omitempty"`
}

// RunSweep handles POST /api/v1/sweep/run.
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "flagged-content sweep is disabled", nil, nil)
		return
	}
	if err := h.sweeper.Trigger(); err != nil {
		if errors.Is(err, sweep.ErrPassRunning) {
			respondError(w, r, http.StatusConflict, ErrCodeConflict, "a sweep pass is already running", nil, err)
			return
		}
		if errors.Is(err, sweep.ErrStopping) {
			respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "sweep is shutting down", nil, err)
			return
		}
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "could not start sweep pass", nil, err)
		return
	}
	respondData(w, http.StatusAccepted, SweepStatusResponse{State: sweep.StateDraining.String()})
}

// SweepStatus handles GET /api/v1/sweep/status.
func (h *Handler) SweepStatus(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "flagged-content sweep is disabled", nil, nil)
		return
	}
	respondData(w, http.StatusOK, SweepStatusResponse{
		State:      h.sweeper.State().String(),
		LastReport: h.sweeper.LastReport(),
	})
}

// HealthStatus is the body of /healthz.
type HealthStatus struct {
	Status         string  `json:"status"`
	StoreConnected bool    `json:"store_connected"`
	QueueDepth     int     `json:"queue_depth"`
	Uptime         float64 `json:"uptime_seconds"`
}

// Health handles GET /healthz. A store outage degrades the service but
// still answers 200 so the process is not restarted for it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	connected := true
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		connected = h.store.Ping(ctx) == nil
		cancel()
	}

	status := "healthy"
	if !connected {
		status = "degraded"
	}
	respondData(w, http.StatusOK, HealthStatus{
		Status:         status,
		StoreConnected: connected,
		QueueDepth:     len(h.queue.Snapshot().Pending),
		Uptime:         time.Since(h.startTime).Seconds(),
	})
}

// respondEnqueueError maps queue and catalog errors to HTTP statuses.
func respondEnqueueError(w http.ResponseWriter, r *http.Request, err error) {
	details := map[string]interface{}{"reason": string(recalc.Classify(err))}

	switch {
	case errors.Is(err, recalc.ErrDuplicateInFlight), errors.Is(err, recalc.ErrSweepInProgress):
		respondError(w, r, http.StatusConflict, ErrCodeConflict, err.Error(), details, nil)
	case errors.Is(err, recalc.ErrPlayerNotFound):
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, err.Error(), details, nil)
	case errors.Is(err, recalc.ErrPlayerArchived):
		respondError(w, r, http.StatusUnprocessableEntity, ErrCodeUnprocessable, err.Error(), details, nil)
	case errors.Is(err, scoring.ErrUnknownRework), errors.Is(err, scoring.ErrInactiveRework),
		errors.Is(err, recalc.ErrInvalidJob):
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), details, nil)
	case errors.Is(err, recalc.ErrQueueClosed), errors.Is(err, recalc.ErrStore):
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "recalculation is temporarily unavailable", details, err)
	default:
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "internal error", details, err)
	}
}
