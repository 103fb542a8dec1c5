// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

/*
Package main is the entry point for the Mahiru server.

Mahiru recalculates player performance totals when a scoring rework is
trialled or shipped, and periodically sweeps flagged content out of the
score database.

# Application Architecture

The server runs under a Suture v4 supervisor tree:

	RootSupervisor ("mahiru")
	├── JobsSupervisor ("jobs-layer")
	│   ├── recalc-worker (serial recalculation queue)
	│   └── flag-sweep (30 minute flagged-content sweep, optional)
	└── APISupervisor ("api-layer")
	    └── http-server (intake and admin API)

Component initialization order:

 1. Configuration: Koanf v2 with defaults, an optional YAML file and the environment
 2. Logging: zerolog with JSON or console output
 3. Database: SurrealDB player, score and flag store
 4. Badger (optional): persistent attribute tier and job journal
 5. Scoring: rework catalog, engine clients and the attribute cache
 6. Notifications: log sink plus optional Discord webhook and NATS publisher
 7. Recalculation queue, with journal replay
 8. Flagged-content sweep
 9. HTTP API: Chi router with request ids, CORS, rate limiting and metrics

# Configuration

Core environment variables:

	HTTP_PORT=8086
	SURREAL_URL=ws://127.0.0.1:8000
	ENGINE_LIVE_URL=http://127.0.0.1:5000
	ENGINE_REBALANCE_URL=http://127.0.0.1:5001
	ACTIVE_REWORK=aim-v2
	BADGER_PATH=/var/lib/mahiru/badger
	QUEUE_JOURNAL=true
	SWEEP_INTERVAL=30m
	LOG_LEVEL=info
	LOG_FORMAT=json

A YAML file (config.yaml, or CONFIG_PATH) carries the rework catalog.

# Signal Handling

On SIGINT or SIGTERM the tree is cancelled. The HTTP server drains its
in-flight requests, the sweep finishes the page it is on, and the queue
stops after its running job. Queued jobs stay in the journal when it is
enabled and are replayed on the next start.
*/
package main
