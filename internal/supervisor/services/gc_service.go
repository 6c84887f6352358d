// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package services

import (
	"context"
	"time"

	"github.com/tomtom215/healthsync/internal/logging"
)

// GarbageCollector is satisfied by *checkpoint.Store.
type GarbageCollector interface {
	RunGC(ctx context.Context) error
}

// GCService runs a store's garbage collection on a fixed interval. A failed
// pass is logged and retried on the next tick.
type GCService struct {
	store    GarbageCollector
	interval time.Duration
	name     string
}

// NewGCService creates the service. A non-positive interval means thirty
// minutes.
func NewGCService(name string, store GarbageCollector, interval time.Duration) *GCService {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &GCService{store: store, interval: interval, name: name}
}

// Serve implements suture.Service.
func (s *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.store.RunGC(ctx); err != nil && ctx.Err() == nil {
				logging.Warn().Err(err).Str("service", s.name).Msg("Garbage collection pass failed")
			}
		}
	}
}

// String implements fmt.Stringer for suture's event log.
func (s *GCService) String() string {
	return s.name
}
