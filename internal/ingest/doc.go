// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

/*
Package ingest fetches raw measurements from wearable provider REST APIs.

A Client talks to one provider. It paces outbound requests with a
token-bucket limiter (golang.org/x/time/rate), authenticates with a bearer
token from a TokenSource, and decodes the provider payload into
models.Record values carrying canonical units (see UnitFor).

Errors are shaped for resilience.Classify:

  - non-2xx HTTP responses become *resilience.StatusError
  - Withings body statuses map to resilience.ErrAuthFailed,
    resilience.ErrRateLimited or resilience.ErrInvalidPayload
  - undecodable payloads wrap resilience.ErrInvalidPayload

Retries and circuit breaking are applied by the caller, not here.

Supported data types:

	withings: heart_rate, steps, weight, blood_pressure, spo2, temperature
	fitbit:   heart_rate, steps, weight, ecg, rr_intervals, spo2
*/
package ingest
