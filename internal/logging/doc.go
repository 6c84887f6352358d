// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

// Package logging provides the service-wide zerolog logger.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("provider", "fitbit").Msg("Ingestor ready")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Fetch failed")
//
// Every sync invocation carries a short correlation id; Ctx adds it (and the
// HTTP request id, when present) to each line so one run can be followed
// across the orchestrator, ingestors and publisher.
//
// # Configuration
//
// Environment Variables:
//
//	LOG_LEVEL   - trace, debug, info, warn, error (default: info)
//	LOG_FORMAT  - json, console (default: json)
//	LOG_CALLER  - include caller file:line (default: false)
//
// # Adapters
//
// NewSlogHandler feeds log/slog consumers (the suture supervisor via
// sutureslog). NewWatermillAdapter implements watermill.LoggerAdapter for
// the message bus.
package logging
