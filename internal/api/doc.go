// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

/*
Package api is Mahiru's HTTP intake and admin surface, routed with chi.

Intake:

	POST   /api/v1/recalc            enqueue one player under one rework
	POST   /api/v1/recalc/sweep      enqueue every player under one rework
	GET    /api/v1/recalc/status     queue snapshot

Admin:

	GET    /api/v1/rework            known reworks and the active one
	PUT    /api/v1/rework/active     switch the active experimental rework
	DELETE /api/v1/cache/{contentHash}
	GET    /api/v1/cache/stats
	POST   /api/v1/sweep/run         start a flagged-content sweep pass
	GET    /api/v1/sweep/status

Operational:

	GET    /healthz
	GET    /metrics

Every JSON body uses the models.APIResponse envelope. Enqueue requests
answer 202 Accepted once the job is queued; the result itself arrives
through the configured notification sinks, never in the HTTP response.
*/
package api
