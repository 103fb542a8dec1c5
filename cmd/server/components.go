// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package main

import (
	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/mahiru/internal/cache"
	"github.com/tomtom215/mahiru/internal/config"
	"github.com/tomtom215/mahiru/internal/logging"
	"github.com/tomtom215/mahiru/internal/notify"
	"github.com/tomtom215/mahiru/internal/scoring"
)

// newScoringRouter builds the engine clients and the attribute cache. kv may
// be nil, in which case the cache is memory only.
func newScoringRouter(cfg *config.Config, catalog *scoring.ReworkCatalog, kv *badger.DB) (*scoring.Router, error) {
	var store cache.Store[scoring.Attributes]
	if kv != nil {
		store = cache.NewBadgerStore[scoring.Attributes](kv)
	}
	attrCache := cache.New[scoring.Attributes](cfg.Cache.Capacity, store)

	engines := map[scoring.Variant]scoring.Engine{
		scoring.VariantLive:      scoring.NewHTTPEngine("live", cfg.Engine.LiveURL, cfg.Engine),
		scoring.VariantRebalance: scoring.NewHTTPEngine("rebalance", cfg.Engine.RebalanceURL, cfg.Engine),
	}
	return scoring.NewRouter(catalog, attrCache, engines)
}

// newSink assembles the notification fan-out. The log sink is always first.
// The returned func flushes queued webhook posts and releases publisher
// connections.
func newSink(cfg *config.Config) (notify.Sink, func(), error) {
	sinks := notify.Multi{notify.NewLogSink()}
	closers := []func(){}

	if cfg.Discord.Enabled {
		discord := notify.NewDiscordSink(notify.DiscordConfig{
			WebhookURL:       cfg.Discord.WebhookURL,
			RatePerSec:       cfg.Discord.RatePerSec,
			Burst:            cfg.Discord.Burst,
			IncludeSweepJobs: cfg.Discord.IncludeSweepJobs,
		})
		sinks = append(sinks, discord)
		closers = append(closers, discord.Close)
		logging.Info().Bool("sweep_jobs", cfg.Discord.IncludeSweepJobs).Msg("Discord notifications enabled")
	}

	if cfg.NATS.Enabled {
		pub, err := notify.NewNATSPublisher(notify.NATSPublisherConfig{
			URL:       cfg.NATS.URL,
			JetStream: cfg.NATS.JetStream,
		})
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, notify.NewBusSink(pub, cfg.NATS.Topic))
		closers = append(closers, func() {
			if err := pub.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing NATS publisher")
			}
		})
		logging.Info().Str("url", cfg.NATS.URL).Str("topic", cfg.NATS.Topic).Msg("NATS outcome publisher enabled")
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}
