// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// LiveRework is the reserved name of the production scoring variant.
const LiveRework = "live"

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateSweep(); err != nil {
		return err
	}
	if err := c.validateRework(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	return c.validateNotifiers()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !c.Server.RateLimitDisabled && (c.Server.RateLimitRequests < 1 || c.Server.RateLimitWindow <= 0) {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive unless DISABLE_RATE_LIMIT is set")
	}
	return nil
}

func (c *Config) validateQueue() error {
	switch c.Queue.ConflictPolicy {
	case "skip", "wait":
	default:
		return fmt.Errorf("QUEUE_CONFLICT must be 'skip' or 'wait', got %q", c.Queue.ConflictPolicy)
	}
	if c.Queue.JobTimeout < 0 {
		return fmt.Errorf("QUEUE_JOB_TIMEOUT must not be negative")
	}
	if c.Queue.Journal && c.Cache.BadgerPath == "" {
		return fmt.Errorf("QUEUE_JOURNAL requires BADGER_PATH")
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("CACHE_CAPACITY must be at least 1, got %d", c.Cache.Capacity)
	}
	return nil
}

func (c *Config) validateSweep() error {
	if !c.Sweep.Enabled {
		return nil
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.Sweep.PageSize < 1 {
		return fmt.Errorf("SWEEP_PAGE_SIZE must be at least 1, got %d", c.Sweep.PageSize)
	}
	switch c.Sweep.ResetPolicy {
	case "all", "processed", "none":
	default:
		return fmt.Errorf("SWEEP_RESET_POLICY must be 'all', 'processed' or 'none', got %q", c.Sweep.ResetPolicy)
	}
	return nil
}

func (c *Config) validateRework() error {
	if _, ok := c.Rework.Catalog[LiveRework]; ok {
		return fmt.Errorf("rework catalog must not redefine %q", LiveRework)
	}
	for _, name := range c.Rework.Retired {
		if name == LiveRework {
			return fmt.Errorf("%q cannot be retired", LiveRework)
		}
		if name == c.Rework.Active {
			return fmt.Errorf("ACTIVE_REWORK %q is retired", name)
		}
	}
	if c.Rework.Active == "" || c.Rework.Active == LiveRework {
		return nil
	}
	if _, ok := c.Rework.Catalog[c.Rework.Active]; !ok {
		return fmt.Errorf("ACTIVE_REWORK %q is not in the rework catalog", c.Rework.Active)
	}
	return nil
}

func (c *Config) validateEngine() error {
	for name, raw := range map[string]string{
		"ENGINE_LIVE_URL":      c.Engine.LiveURL,
		"ENGINE_REBALANCE_URL": c.Engine.RebalanceURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if c.Engine.BreakerFailures == 0 {
		return fmt.Errorf("engine breaker_failures must be at least 1")
	}
	return nil
}

func (c *Config) validateNotifiers() error {
	if c.Discord.Enabled {
		if !strings.HasPrefix(c.Discord.WebhookURL, "https://") {
			return fmt.Errorf("DISCORD_WEBHOOK_URL must be an https URL when DISCORD_ENABLED=true")
		}
		if c.Discord.RatePerSec <= 0 {
			return fmt.Errorf("discord rate_per_sec must be positive")
		}
	}
	if c.NATS.Enabled && c.NATS.Topic == "" {
		return fmt.Errorf("NATS_TOPIC is required when NATS_ENABLED=true")
	}
	return nil
}
