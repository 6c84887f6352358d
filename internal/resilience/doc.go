// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

/*
Package resilience protects outbound calls to provider APIs and the FHIR
server.

Key Components:

  - Classify: maps any error to api_error, auth_error, rate_limit_error,
    network_error or validation_error plus a retry verdict
  - Retrier: bounded exponential backoff driven by a RetryPolicy
  - Breaker: per-dependency closed/open/half-open state machine built on
    sony/gobreaker, with operator overrides
  - Registry: the process-wide set of named breakers, injected by the
    composition root
  - WithBreakerAndRetry / Call: explicit composition of the two

Classification Rules (priority order):

 1. HTTP 401/403 or ErrAuthFailed: auth_error, not retried
 2. HTTP 429 or ErrRateLimited: rate_limit_error, retried
 3. HTTP 400/422 or ErrInvalidPayload: validation_error, not retried
 4. timeouts, refused connections, DNS failures: network_error, retried
 5. HTTP 5xx and anything else: api_error, retried

circuit_open is synthesized by the breaker and is never retried.

Breaker Semantics:

Only retryable failures count toward FailureThreshold. An open breaker
rejects calls without invoking them until Timeout has elapsed; the next call
after that is a half-open trial. SuccessThreshold consecutive trial successes
close the breaker, and any trial failure re-opens it with a fresh timeout.

The breaker uses the wall clock (through gobreaker) for its timeout. Tests use
short timeouts rather than a fake clock.

Usage Example:

	registry := resilience.NewRegistry(resilience.DefaultRegistryConfig(), sink)
	retrier := resilience.NewRetrier()

	records, err := resilience.Call(ctx, registry.Get("fitbit_api"), retrier, policy,
	    func(ctx context.Context) ([]models.Record, error) {
	        return client.Fetch(ctx, userID, dataType, window, batch)
	    })
*/
package resilience
