// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

// Package checkpoint stores the last successfully synced instant per
// (user, provider, data type) in BadgerDB.
//
// The sync engine only reads checkpoints; the dispatcher persists the
// checkpoints reported by each outcome through Advance, which never moves a
// checkpoint backwards.
package checkpoint
