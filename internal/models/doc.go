// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

/*
Package models defines the value objects shared by the sync engine.

Every type here is a plain value: records, ranges, strategy results and
outcomes are created and discarded within a single sync invocation and are
safe to pass between goroutines by copy. Nothing in this package holds a
lock or performs I/O.

Key Components:

  - Record: a single measurement with a scalar or structured Value
  - DateRange: half-open [Start, End) interval of UTC instants
  - StrategyResult: fetch window, batch size and priority for one invocation
  - HealthSyncConfig: per-user preferences, including linked-data rules
  - SyncOutcome / DataTypeResult: what an invocation did, per data type
  - SyncJob: the unit of work consumed by the dispatch layer
  - Resource / PublishResult: transformed FHIR documents and publish results

Usage Example:

	import "github.com/tomtom215/healthsync/internal/models"

	window, err := models.NewDateRange(now.Add(-15*time.Minute), now)
	if err != nil {
	    return err
	}
	rec := models.Record{
	    Provider:  models.ProviderFitbit,
	    UserID:    "user-1",
	    DataType:  models.DataTypeHeartRate,
	    Timestamp: now,
	    Value:     models.Scalar(72),
	    Unit:      "bpm",
	}
	flagged := rec.WithMetadata(models.MetaLinkedDataIncomplete, true)

Immutability:

Record.Metadata and structured Values are copied on construction and on
WithMetadata, so a derived record never aliases the map of its source.

JSON Marshaling:

Value encodes as a bare number for scalars and as an object for structured
measurements. Serialization uses goccy/go-json.
*/
package models
