// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

/*
Package services adapts long-running components to suture.Service.

Each wrapper implements

	type Service interface {
	    Serve(ctx context.Context) error
	}

and returns ctx.Err() on a requested shutdown so suture does not treat it
as a failure.

# Available Services

HTTPServerService wraps *http.Server. Each Serve binds its own listener, so
a bind failure is a restartable service failure, and Addr reports the bound
address. Context cancellation triggers a bounded graceful Shutdown.

GCService periodically calls RunGC on a store such as *checkpoint.Store.

The sync dispatcher (*dispatch.Dispatcher) already implements Serve and
String and is added to the tree directly.
*/
package services
