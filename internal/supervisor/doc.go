// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

/*
Package supervisor runs Mahiru's long-lived components under a suture
supervisor tree.

	mahiru (root)
	├── jobs-layer
	│   ├── recalc-worker   (services.QueueService)
	│   └── flag-sweep      (services.SweepService)
	└── api-layer
	    └── http-server     (services.HTTPServerService)

A service that returns an error or panics is restarted with suture's
backoff. The recalculation worker returns suture.ErrTerminateSupervisorTree
when its bookkeeping is corrupt, which stops the whole process instead of
restarting into a broken state.

Supervisor events are logged through zerolog via sutureslog and
logging.NewSlogLogger:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), cfg)
	tree.AddJobService(services.NewQueueService(queue))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	err = tree.Serve(ctx)
*/
package supervisor
