// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

// Package dispatch turns queued sync jobs into sync runs.
//
// For each job the dispatcher looks up the user's checkpoint, runs the
// orchestrator, advances the checkpoints of the data types that completed
// and publishes the outcome. Jobs are acked once their checkpoints are
// stored, even when the sync itself failed; only a failure to record the
// result triggers redelivery.
package dispatch
