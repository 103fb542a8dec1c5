// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

// Package config loads Mahiru's configuration.
//
// Configuration is layered with koanf: built-in defaults, then an optional
// YAML file, then environment variables. Config is immutable after Load and
// safe for concurrent reads; the only runtime-switchable value (the active
// experimental rework) lives in scoring.ReworkCatalog, seeded from here.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Cache      CacheConfig      `koanf:"cache"`
	Queue      QueueConfig      `koanf:"queue"`
	Sweep      SweepConfig      `koanf:"sweep"`
	Rework     ReworkConfig     `koanf:"rework"`
	Engine     EngineConfig     `koanf:"engine"`
	Discord    DiscordConfig    `koanf:"discord"`
	NATS       NATSConfig       `koanf:"nats"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig configures the HTTP intake and admin API.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSAllowedOrigins is empty by default, which disables cross-origin
	// access.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// Per-IP rate limit on the intake endpoints.
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// DatabaseConfig points at the SurrealDB document store.
type DatabaseConfig struct {
	URL       string `koanf:"url"`
	Namespace string `koanf:"namespace"`
	Database  string `koanf:"database"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
}

// CacheConfig sizes the attribute cache. An empty BadgerPath disables the
// persistent tier.
type CacheConfig struct {
	Capacity   int    `koanf:"capacity"`
	BadgerPath string `koanf:"badger_path"`
}

// QueueConfig configures the recalculation queue.
type QueueConfig struct {
	// ConflictPolicy decides what a full sweep does for a user that already
	// has an outstanding job: "skip" or "wait".
	ConflictPolicy string `koanf:"conflict_policy"`

	// Journal persists accepted jobs in the Badger store under cache.badger_path
	// and replays them on startup.
	Journal bool `koanf:"journal"`

	// JobTimeout bounds one job's execution. Zero means no deadline.
	JobTimeout time.Duration `koanf:"job_timeout"`
}

// SweepConfig configures the flagged-content sweep.
type SweepConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
	PageSize int           `koanf:"page_size"`

	// ResetPolicy is applied once when a pass drains: "all", "processed" or "none".
	ResetPolicy string `koanf:"reset_policy"`
}

// ReworkConfig describes the known scoring reworks.
type ReworkConfig struct {
	// Active names the experimental rework currently accepting jobs.
	// Empty means only "live" is accepted.
	Active string `koanf:"active"`

	// Catalog maps rework names to their experimental parameters.
	Catalog map[string]ReworkEntry `koanf:"catalog"`

	// Retired reworks are recognised but never accepted again. A retired
	// name cannot be made active.
	Retired []string `koanf:"retired"`
}

// ReworkEntry is one experimental rework.
type ReworkEntry struct {
	Description string             `koanf:"description"`
	Params      map[string]float64 `koanf:"params"`
}

// EngineConfig points at the scoring engine services.
type EngineConfig struct {
	LiveURL      string        `koanf:"live_url"`
	RebalanceURL string        `koanf:"rebalance_url"`
	Timeout      time.Duration `koanf:"timeout"`

	// Circuit breaker settings shared by both engine clients.
	BreakerMaxRequests uint32        `koanf:"breaker_max_requests"`
	BreakerInterval    time.Duration `koanf:"breaker_interval"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
	BreakerFailures    uint32        `koanf:"breaker_failures"`
}

// DiscordConfig configures the webhook notification sink.
type DiscordConfig struct {
	Enabled    bool    `koanf:"enabled"`
	WebhookURL string  `koanf:"webhook_url"`
	RatePerSec float64 `koanf:"rate_per_sec"`
	Burst      int     `koanf:"burst"`

	// IncludeSweepJobs posts one message per player during a full sweep
	// in addition to the sweep summary.
	IncludeSweepJobs bool `koanf:"include_sweep_jobs"`
}

// NATSConfig configures the outcome publisher.
type NATSConfig struct {
	Enabled   bool   `koanf:"enabled"`
	URL       string `koanf:"url"`
	Topic     string `koanf:"topic"`
	JetStream bool   `koanf:"jetstream"`
}

// SupervisorConfig mirrors supervisor.TreeConfig.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
