// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

// Package services adapts Mahiru's long-running components to
// suture.Service.
//
// Each wrapper takes a narrow interface rather than the concrete type so it
// can be tested with a stub:
//
//   - QueueService runs recalc.Queue.Run and escalates corruption to a tree
//     termination.
//   - SweepService runs sweep.Job.Serve.
//   - HTTPServerService bridges http.Server's ListenAndServe/Shutdown pair.
package services
