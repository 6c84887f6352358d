// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package sync

import (
	"context"

	"github.com/tomtom215/healthsync/internal/models"
)

// Ingestor fetches raw records for one provider. Errors are classified by
// resilience.Classify.
type Ingestor interface {
	Fetch(ctx context.Context, userID string, dataType models.DataType, window models.DateRange, batchSize int) ([]models.Record, error)
}

// CapabilityReporter is implemented by ingestors that can only serve some
// data types. Types outside the set are reported as skipped.
type CapabilityReporter interface {
	SupportedTypes() []models.DataType
}

// Transformer maps records to clinical resources.
type Transformer interface {
	Transform(ctx context.Context, records []models.Record, cfg models.HealthSyncConfig) ([]models.Resource, error)
}

// Publisher delivers clinical resources to the record server.
type Publisher interface {
	Publish(ctx context.Context, resources []models.Resource) (models.PublishResult, error)
}

// MetricsSink records outcomes. Calls are fire-and-forget.
type MetricsSink interface {
	RecordOutcome(outcome models.SyncOutcome)
	RecordIncompleteLinks(provider models.Provider, dataType models.DataType, n int)
}

type nopSink struct{}

func (nopSink) RecordOutcome(models.SyncOutcome)                           {}
func (nopSink) RecordIncompleteLinks(models.Provider, models.DataType, int) {}
