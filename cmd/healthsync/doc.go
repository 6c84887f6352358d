// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

// Command healthsync runs the wearable health data sync engine.
//
// # Startup
//
// Components are created in dependency order:
//
//  1. Configuration: defaults, config.yaml, then environment (koanf v2)
//  2. Logging: zerolog with the configured level and format
//  3. Checkpoint store: BadgerDB, on disk or in memory
//  4. Metrics: Prometheus collectors on the default registry
//  5. Breaker registry: one breaker per provider API plus fhir_server
//  6. Sync orchestrator: provider clients, FHIR transformer and publisher
//  7. Event bus: in-process gochannel or NATS JetStream
//  8. Dispatcher: consumes sync jobs and advances checkpoints
//  9. Admin HTTP server: health, breakers, job submission, /metrics and,
//     when webhook.enabled is set, provider webhooks under /webhooks
//
// Long-running components run under a suture supervisor tree:
//
//	healthsync
//	├── data-layer        checkpoint-gc
//	├── messaging-layer   sync-dispatcher
//	└── api-layer         admin-http
//
// # Build Tags
//
//	go build ./cmd/healthsync              # in-process event bus only
//	go build -tags nats ./cmd/healthsync   # adds the NATS JetStream transport
//
// With -tags nats, events.nats.embedded.enabled starts an in-process
// JetStream server instead of connecting to events.nats.url.
//
// # Signals
//
// SIGINT and SIGTERM cancel the root context. The HTTP server drains for
// server.shutdown_timeout, the dispatcher finishes in-flight jobs, and the
// event bus and checkpoint store are closed last.
//
// # Example
//
//	export FHIR_BASE_URL=https://fhir.example.org/fhir
//	export CHECKPOINT_PATH=/var/lib/healthsync/checkpoints
//	export LOG_FORMAT=console
//	export WEBHOOK_ENABLED=true
//	export WITHINGS_WEBHOOK_SECRET=...
//	./healthsync
package main
