// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

/*
Package api is the admin and observability HTTP surface of the sync engine,
built on go-chi/chi.

Every JSON response uses the models.APIResponse envelope:

	{"status": "success", "data": {...}, "metadata": {"timestamp": "..."}}
	{"status": "error", "data": null, "metadata": {...},
	 "error": {"code": "NOT_FOUND", "message": "unknown circuit breaker: x"}}

# Middleware

  - RequestIDWithLogging: X-Request-ID in and out, request and correlation
    ids in the context for logging.Ctx
  - chi RealIP and Recoverer
  - PrometheusMetrics: healthsync_api_* collectors, labeled by route pattern
  - RateLimit: go-chi/httprate per client IP on /api/v1

# Breaker Overrides

POST /api/v1/breakers/{name}/open and /close apply only to breakers that
have already been registered; the composition root registers one per
provider and one for the FHIR server at startup. Overrides are logged at
warn level with the caller's address.

# Sync Jobs

POST /api/v1/sync/jobs accepts a models.SyncJob without id or
submitted_at, validates it and publishes it on the jobs topic. It answers
202 with the job as published; the outcome is reported asynchronously on
the outcomes topic.

# Webhooks

Deps.Webhooks is mounted at /webhooks outside the /api/v1 rate limit and
CORS policy. Provider callbacks answer in their own formats, not the
APIResponse envelope.
*/
package api
