// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

/*
Package supervisor provides process supervision for the sync engine using
suture v4.

Services are organized into three layers for failure isolation:

	RootSupervisor ("healthsync")
	├── DataSupervisor ("data-layer")
	│   └── GCService ("checkpoint-gc")
	├── MessagingSupervisor ("messaging-layer")
	│   └── Dispatcher ("sync-dispatcher")
	└── APISupervisor ("api-layer")
	    └── HTTPServerService ("admin-http")

Crashed services are restarted with suture's backoff. Failure counts are
kept per layer, so a dispatcher that keeps failing against an unreachable
broker backs off without taking the admin API down with it.

Supervisor events (starts, failures, backoff) are logged through
sutureslog. Pass logging.NewSlogLogger() to route them into zerolog:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), cfg.Supervisor)
	if err != nil {
	    return err
	}
	tree.AddDataService(services.NewGCService("checkpoint-gc", store, cfg.Checkpoint.GCInterval))
	tree.AddMessagingService(dispatcher)
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Addr, cfg.Server.ShutdownTimeout))
	return tree.Serve(ctx)
*/
package supervisor
