// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/mahiru/config.yaml",
	"/etc/mahiru/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8086,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,

			RateLimitRequests: 60,
			RateLimitWindow:   time.Minute,
		},
		Database: DatabaseConfig{
			URL:       "ws://127.0.0.1:8000",
			Namespace: "mahiru",
			Database:  "mahiru",
			Username:  "root",
			Password:  "",
		},
		Cache: CacheConfig{
			Capacity:   50000,
			BadgerPath: "",
		},
		Queue: QueueConfig{
			ConflictPolicy: "skip",
			Journal:        false,
			JobTimeout:     0,
		},
		Sweep: SweepConfig{
			Enabled:     true,
			Interval:    30 * time.Minute,
			PageSize:    100,
			ResetPolicy: "all",
		},
		Rework: ReworkConfig{
			Active: "",
		},
		Engine: EngineConfig{
			LiveURL:            "http://127.0.0.1:5000",
			RebalanceURL:       "http://127.0.0.1:5001",
			Timeout:            60 * time.Second,
			BreakerMaxRequests: 1,
			BreakerInterval:    time.Minute,
			BreakerTimeout:     30 * time.Second,
			BreakerFailures:    5,
		},
		Discord: DiscordConfig{
			Enabled:    false,
			RatePerSec: 0.5,
			Burst:      5,
		},
		NATS: NATSConfig{
			Enabled:   false,
			URL:       "nats://127.0.0.1:4222",
			Topic:     "mahiru.recalc.outcomes",
			JetStream: false,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file and
// the environment, in that order of increasing precedence, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings maps flat environment variable names to koanf paths. Variables
// not listed here are ignored.
var envMappings = map[string]string{
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"cors_origins":          "server.cors_allowed_origins",
	"rate_limit_requests":   "server.rate_limit_requests",
	"rate_limit_window":     "server.rate_limit_window",
	"disable_rate_limit":    "server.rate_limit_disabled",

	"surreal_url":       "database.url",
	"surreal_namespace": "database.namespace",
	"surreal_database":  "database.database",
	"surreal_user":      "database.username",
	"surreal_pass":      "database.password",

	"cache_capacity":    "cache.capacity",
	"badger_path":       "cache.badger_path",
	"queue_conflict":    "queue.conflict_policy",
	"queue_journal":     "queue.journal",
	"queue_job_timeout": "queue.job_timeout",

	"sweep_enabled":      "sweep.enabled",
	"sweep_interval":     "sweep.interval",
	"sweep_page_size":    "sweep.page_size",
	"sweep_reset_policy": "sweep.reset_policy",

	"active_rework": "rework.active",

	"engine_live_url":      "engine.live_url",
	"engine_rebalance_url": "engine.rebalance_url",
	"engine_timeout":       "engine.timeout",

	"discord_enabled":     "discord.enabled",
	"discord_webhook_url": "discord.webhook_url",
	"discord_sweep_jobs":  "discord.include_sweep_jobs",

	"nats_enabled":   "nats.enabled",
	"nats_url":       "nats.url",
	"nats_topic":     "nats.topic",
	"nats_jetstream": "nats.jetstream",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps e.g. SWEEP_INTERVAL to sweep.interval.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
