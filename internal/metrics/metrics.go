// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

// Package metrics holds Mahiru's Prometheus instruments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Recalculation queue
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recalc_queue_depth",
			Help: "Jobs accepted and not yet finished, including the running one",
		},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recalc_jobs_total",
			Help: "Finished recalculation jobs by outcome",
		},
		[]string{"rework", "outcome"}, // outcome: success or a failure kind
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recalc_job_duration_seconds",
			Help:    "Wall time of one recalculation job",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"rework"},
	)

	Rejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recalc_rejections_total",
			Help: "Enqueue attempts rejected at submission time",
		},
		[]string{"reason"},
	)

	FullSweepSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recalc_full_sweep_skipped_total",
			Help: "Users skipped by a full sweep",
		},
		[]string{"rework", "reason"},
	)

	// Attribute cache
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribute_cache_hits_total",
			Help: "Attribute cache hits by tier",
		},
		[]string{"tier"}, // memory, disk
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attribute_cache_misses_total",
			Help: "Attribute cache misses that reached a scoring engine",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "attribute_cache_entries",
			Help: "Entries held by the in-memory attribute cache",
		},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribute_cache_evictions_total",
			Help: "Attribute cache removals by cause",
		},
		[]string{"cause"}, // capacity, content_changed
	)

	// Scoring engines
	EngineCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_engine_calls_total",
			Help: "Scoring engine calls by variant, operation and result",
		},
		[]string{"variant", "operation", "result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Sweep
	SweepRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_records_total",
			Help: "Flagged records handled by the sweep by result",
		},
		[]string{"result"}, // removed, remove_failed, mark_failed
	)

	SweepPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_passes_total",
			Help: "Sweep passes by how they ended",
		},
		[]string{"result"}, // drained, aborted, cancelled, skipped
	)

	SweepResets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_marker_resets_total",
			Help: "Marker resets issued when a pass drains",
		},
		[]string{"policy", "result"},
	)

	SweepDraining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sweep_draining",
			Help: "1 while a sweep pass is running",
		},
	)

	// Notifications
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Outcome notifications by sink and result",
		},
		[]string{"sink", "result"},
	)

	// HTTP API
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "HTTP requests currently being served",
		},
	)
)

// RecordJob records a finished recalculation job.
func RecordJob(rework, outcome string, duration time.Duration) {
	JobsTotal.WithLabelValues(rework, outcome).Inc()
	JobDuration.WithLabelValues(rework).Observe(duration.Seconds())
}

// RecordEngineCall records a scoring engine call.
func RecordEngineCall(variant, operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	EngineCalls.WithLabelValues(variant, operation, result).Inc()
}

// RecordNotification records one delivery attempt by a sink.
func RecordNotification(sink string, err error) {
	result := "delivered"
	if err != nil {
		result = "failed"
	}
	Notifications.WithLabelValues(sink, result).Inc()
}

// SetDraining flips the sweep draining gauge.
func SetDraining(on bool) {
	if on {
		SweepDraining.Set(1)
		return
	}
	SweepDraining.Set(0)
}

// RecordAPIRequest records one served HTTP request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequests.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest moves the in-flight request gauge.
func TrackActiveRequest(start bool) {
	if start {
		APIActiveRequests.Inc()
		return
	}
	APIActiveRequests.Dec()
}
