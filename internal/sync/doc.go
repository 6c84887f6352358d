// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

/*
Package sync orchestrates one sync invocation for a (user, provider) pair.

An invocation runs these steps:

 1. Select the fetch window from the trigger and the last checkpoint.
 2. Expand the enabled data types with their linked-data companions.
 3. Fetch every type concurrently through the provider breaker and retrier.
 4. Attach companion references, flagging records whose companions are
    missing.
 5. Aggregate scalar records when the user prefers hourly or daily summaries.
 6. Transform to clinical resources and publish them in batches through the
    record-server breaker.

Each data type carries its own state machine (see models.Status). A failure
in one type is recorded in the outcome and never aborts the others. Only
completed types contribute a new checkpoint, so a failed type is retried
from its old checkpoint on the next run.

The collaborators (Ingestor, Transformer, Publisher, MetricsSink) are
interfaces; package ingest, fhir and metrics provide the production
implementations. The orchestrator itself is stateless between invocations.

# Concurrency

RunSync may be called concurrently. Within one call, up to
Config.Concurrency data types are processed in parallel, bounded with
errgroup. Collaborators must therefore be safe for concurrent use.

# Cancellation

Cancelling the context stops new retries and backoff waits. Types that have
not completed are reported as failed with kind "canceled"; types that
already completed keep their result and checkpoint.
*/
package sync
