// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

/*
Package aggregation summarizes raw measurements into fixed-width time buckets.

Buckets are aligned to UTC boundaries of the bucket width (hour or day), not
to the first record seen, so the same record always lands in the same bucket.
For every non-empty (user, provider, data type, bucket) group the engine emits
one new record:

	value    = mean of the bucket, rounded to one decimal place
	metadata = {"aggregation": AggregationSummary{min, max, average, count, ...}}

Structured values (ECG waveforms, blood pressure pairs) are returned
unchanged. Inputs are never modified and the output is independent of input
order, so aggregating the same set twice yields equal results.
*/
package aggregation
