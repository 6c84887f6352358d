// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

// Package webhook turns provider push notifications into sync jobs.
//
// Withings and Fitbit announce new data by calling a subscriber URL. The
// notification names a provider user and a data category but carries no
// measurements; the handler maps the category to data types and publishes
// one realtime SyncJob per user on the event bus. The dispatcher then
// fetches the data through the regular sync path.
//
// # Routes
//
//	GET  /withings   subscription check, echoes ?challenge
//	HEAD /withings   reachability check
//	POST /withings   notification (form or JSON body)
//	GET  /fitbit     subscriber verification, ?verify
//	POST /fitbit     notification batch (JSON array)
//
// # Signatures
//
// When a secret is configured the body must be signed:
//
//   - Withings: X-Withings-Signature, hex HMAC-SHA256 keyed by the
//     webhook secret, optionally prefixed with "sha256="
//   - Fitbit: X-Fitbit-Signature, base64 HMAC-SHA1 keyed by the client
//     secret followed by "&"
//
// A bad or missing signature is answered with 403 and publishes nothing.
//
// # Category Mapping
//
//	Withings appli 1    weight
//	Withings appli 2    temperature
//	Withings appli 4    blood_pressure, heart_rate, spo2
//	Withings appli 16   steps
//	Fitbit activities   heart_rate, steps, ecg
//	Fitbit body         weight
//	Fitbit sleep        rr_intervals, spo2
//
// Other categories are acknowledged and ignored so the provider does not
// retry them.
package webhook
