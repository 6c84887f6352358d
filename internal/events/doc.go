// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

// Package events moves sync jobs and sync outcomes over Watermill.
//
// The default transport is an in-process Go channel. Building with
// -tags nats adds a NATS JetStream transport with durable, queue-grouped
// consumers so several instances can share the job stream. Setting
// events.nats.embedded.enabled runs the JetStream server inside the process
// for single-instance deployments.
//
// Jobs are JSON-encoded models.SyncJob values; outcomes are
// models.SyncOutcome values. Both carry user, provider and trigger in the
// message metadata, plus the publisher's correlation id.
package events
