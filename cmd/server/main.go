// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/mahiru/internal/api"
	"github.com/tomtom215/mahiru/internal/cache"
	"github.com/tomtom215/mahiru/internal/config"
	"github.com/tomtom215/mahiru/internal/database"
	"github.com/tomtom215/mahiru/internal/logging"
	"github.com/tomtom215/mahiru/internal/recalc"
	"github.com/tomtom215/mahiru/internal/scoring"
	"github.com/tomtom215/mahiru/internal/supervisor"
	"github.com/tomtom215/mahiru/internal/supervisor/services"
	"github.com/tomtom215/mahiru/internal/sweep"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting Mahiru")
	logging.Info().
		Int("port", cfg.Server.Port).
		Str("active_rework", cfg.Rework.Active).
		Str("conflict_policy", cfg.Queue.ConflictPolicy).
		Bool("sweep_enabled", cfg.Sweep.Enabled).
		Msg("Configuration loaded")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// === STORAGE ===

	db := database.NewSurrealDB(cfg.Database)
	if err := db.Connect(ctx); err != nil {
		logging.Fatal().Err(err).Str("url", cfg.Database.URL).Msg("Failed to connect to SurrealDB")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Str("url", cfg.Database.URL).Msg("Database connected")

	var kv *badger.DB
	if cfg.Cache.BadgerPath != "" {
		kv, err = cache.OpenBadger(cfg.Cache.BadgerPath)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open Badger store")
		}
		defer func() {
			if err := kv.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing Badger store")
			}
		}()
		logging.Info().Str("path", cfg.Cache.BadgerPath).Msg("Badger store opened")
	}

	players := database.NewPlayerRepository(db)
	flags := database.NewFlagRepository(db)

	// === SCORING ===

	catalog := scoring.NewReworkCatalog(cfg.Rework)
	router, err := newScoringRouter(cfg, catalog, kv)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize scoring router")
	}
	logging.Info().
		Strs("reworks", catalog.Names()).
		Str("active", catalog.Active()).
		Msg("Scoring router initialized")

	// === NOTIFICATIONS ===

	sink, closeSinks, err := newSink(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize notification sinks")
	}
	defer closeSinks()

	// === RECALCULATION QUEUE ===

	var queueOpts []recalc.Option
	if cfg.Queue.Journal {
		queueOpts = append(queueOpts, recalc.WithJournal(recalc.NewBadgerJournal(kv)))
	}
	queue := recalc.New(players, router, sink, recalc.Config{
		ConflictPolicy: recalc.ConflictPolicy(cfg.Queue.ConflictPolicy),
		JobTimeout:     cfg.Queue.JobTimeout,
	}, queueOpts...)
	defer queue.Close()

	if cfg.Queue.Journal {
		restored, err := queue.Recover(ctx)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to replay job journal")
		}
		logging.Info().Int("jobs", restored).Msg("Job journal replayed")
	}

	// === FLAGGED-CONTENT SWEEP ===

	var sweeper *sweep.Job
	if cfg.Sweep.Enabled {
		sweeper = sweep.New(flags, flags, sweep.Config{
			Interval:    cfg.Sweep.Interval,
			PageSize:    cfg.Sweep.PageSize,
			ResetPolicy: sweep.ResetPolicy(cfg.Sweep.ResetPolicy),
		})
	} else {
		logging.Info().Msg("Flagged-content sweep disabled (SWEEP_ENABLED=false)")
	}

	// === HTTP API ===

	deps := api.Deps{
		Queue:   queue,
		Reworks: catalog,
		Cache:   router,
		Store:   db,
	}
	if sweeper != nil {
		deps.Sweeper = sweeper
	}
	handler := api.NewHandler(deps)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(handler, api.RouterConfigFromServer(cfg.Server)),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	// === SUPERVISOR TREE ===

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.TreeConfig{
		FailureThreshold: cfg.Supervisor.FailureThreshold,
		FailureDecay:     cfg.Supervisor.FailureDecay,
		FailureBackoff:   cfg.Supervisor.FailureBackoff,
		ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddJobService(services.NewQueueService(queue))
	if sweeper != nil {
		tree.AddJobService(services.NewSweepService(sweeper))
		logging.Info().Dur("interval", cfg.Sweep.Interval).Msg("Sweep added to supervisor tree")
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	var treeErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish...")
		treeErr = <-errCh
	case treeErr = <-errCh:
		cancel()
	}
	if treeErr != nil && !errors.Is(treeErr, context.Canceled) {
		logging.Error().Err(treeErr).Msg("Supervisor tree stopped with error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	snap := queue.Snapshot()
	logging.Info().
		Int("pending", len(snap.Pending)).
		Uint64("processed", snap.Processed).
		Uint64("failed", snap.Failed).
		Msg("Mahiru stopped gracefully")
}
