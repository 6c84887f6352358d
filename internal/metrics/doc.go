// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

/*
Package metrics provides the Prometheus collectors exposed at /metrics.

# Sync Metrics (Sink)

Sink is injected into the orchestrator as its metrics sink and into the
breaker registry and retrier as their observer:

  - healthsync_sync_runs_total{provider,trigger,status}
  - healthsync_sync_duration_seconds{provider,trigger}
  - healthsync_records_processed_total{provider}
  - healthsync_data_type_results_total{provider,data_type,status}
  - healthsync_records_published_total{provider,data_type}
  - healthsync_sync_errors_total{provider,stage,kind}
  - healthsync_linked_data_incomplete_total{provider,data_type}
  - healthsync_retry_attempts_total{operation,kind}
  - healthsync_retry_exhausted_total{operation,kind}
  - healthsync_circuit_breaker_state{name} (0=closed, 1=half-open, 2=open)
  - healthsync_circuit_breaker_transitions_total{name,from,to}
  - healthsync_circuit_breaker_requests_total{name,result}
  - healthsync_circuit_breaker_consecutive_failures{name}

# Admin API Metrics

Package-level collectors recorded by the API middleware:

  - healthsync_api_requests_total{method,endpoint,status_code}
  - healthsync_api_request_duration_seconds{method,endpoint}
  - healthsync_api_active_requests
  - healthsync_api_rate_limit_hits_total{endpoint}

# Example Queries

Failing data types per provider over the last hour:

	sum by (provider, data_type) (increase(healthsync_data_type_results_total{status="failed"}[1h]))

Breakers currently open:

	healthsync_circuit_breaker_state == 2
*/
package metrics
