// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

// Package strategy turns a sync trigger and the last checkpoint into a
// concrete fetch window and batch policy. Selection performs no I/O.
package strategy

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/healthsync/internal/models"
)

// ErrUnknownTrigger is returned for triggers outside the closed set.
var ErrUnknownTrigger = errors.New("unknown sync trigger")

// Config holds the window and batch settings for every strategy.
type Config struct {
	InitialLookbackDays int           `koanf:"initial_lookback_days" validate:"gte=1"`
	IncrementalOverlap  time.Duration `koanf:"incremental_overlap" validate:"gte=0"`
	RealtimeLookback    time.Duration `koanf:"realtime_lookback" validate:"gt=0"`
	ManualDefaultWindow time.Duration `koanf:"manual_default_window" validate:"gt=0"`
	InitialBatchSize    int           `koanf:"initial_batch_size" validate:"gte=1"`
	IncrementalBatch    int           `koanf:"incremental_batch_size" validate:"gte=1"`
	RealtimeBatchSize   int           `koanf:"realtime_batch_size" validate:"gte=1"`
	ManualBatchSize     int           `koanf:"manual_batch_size" validate:"gte=1"`
}

// DefaultConfig returns the operational defaults.
func DefaultConfig() Config {
	return Config{
		InitialLookbackDays: 30,
		IncrementalOverlap:  5 * time.Minute,
		RealtimeLookback:    15 * time.Minute,
		ManualDefaultWindow: 7 * 24 * time.Hour,
		InitialBatchSize:    1000,
		IncrementalBatch:    100,
		RealtimeBatchSize:   50,
		ManualBatchSize:     500,
	}
}

// Request is the input to selection.
type Request struct {
	// LastCheckpoint is nil when the user has never synced.
	LastCheckpoint *time.Time
	// ManualWindow is honored only for manual triggers.
	ManualWindow *models.DateRange
	Trigger      models.Trigger
}

// Selector picks a strategy. The zero value is not usable; use NewSelector.
type Selector struct {
	now func() time.Time
	cfg Config
}

// Option configures a Selector.
type Option func(*Selector)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Selector) { s.now = now }
}

// NewSelector returns a selector using cfg.
func NewSelector(cfg Config, opts ...Option) *Selector {
	s := &Selector{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the selector configuration.
func (s *Selector) Config() Config { return s.cfg }

// Select returns the strategy result for req, evaluated at the selector's
// current time.
func (s *Selector) Select(req Request) (models.StrategyResult, error) {
	return s.SelectAt(req, s.now())
}

// SelectAt is Select evaluated at now. It is a pure function of its inputs.
func (s *Selector) SelectAt(req Request, now time.Time) (models.StrategyResult, error) {
	now = now.UTC()
	switch req.Trigger {
	case models.TriggerInitial:
		return s.initial(now)
	case models.TriggerIncremental:
		if req.LastCheckpoint == nil {
			return s.initial(now)
		}
		return s.incremental(*req.LastCheckpoint, now)
	case models.TriggerRealtime:
		return s.realtime(now)
	case models.TriggerManual:
		return s.manual(req.ManualWindow, now)
	default:
		return models.StrategyResult{}, fmt.Errorf("%w: %q", ErrUnknownTrigger, req.Trigger)
	}
}

// initial backfills the lookback window for throughput.
func (s *Selector) initial(now time.Time) (models.StrategyResult, error) {
	window, err := models.NewDateRange(now.AddDate(0, 0, -s.cfg.InitialLookbackDays), now)
	if err != nil {
		return models.StrategyResult{}, err
	}
	return models.StrategyResult{
		Kind:              models.SyncKindInitial,
		Window:            window,
		IncludeAllRecords: true,
		BatchSize:         s.cfg.InitialBatchSize,
		Priority:          models.PriorityLow,
	}, nil
}

// incremental resumes from the checkpoint with a small overlap. Duplicates at
// the boundary are expected and left to downstream deduplication.
func (s *Selector) incremental(checkpoint, now time.Time) (models.StrategyResult, error) {
	start := checkpoint.UTC().Add(-s.cfg.IncrementalOverlap)
	if start.After(now) {
		// Checkpoint ahead of the local clock; fetch nothing rather than fail.
		start = now
	}
	window, err := models.NewDateRange(start, now)
	if err != nil {
		return models.StrategyResult{}, err
	}
	return models.StrategyResult{
		Kind:      models.SyncKindIncremental,
		Window:    window,
		BatchSize: s.cfg.IncrementalBatch,
		Priority:  models.PriorityLow,
	}, nil
}

// realtime ignores the checkpoint entirely; older gaps are reconciled by the
// next incremental run.
func (s *Selector) realtime(now time.Time) (models.StrategyResult, error) {
	window, err := models.NewDateRange(now.Add(-s.cfg.RealtimeLookback), now)
	if err != nil {
		return models.StrategyResult{}, err
	}
	return models.StrategyResult{
		Kind:            models.SyncKindRealtime,
		Window:          window,
		BatchSize:       s.cfg.RealtimeBatchSize,
		Priority:        models.PriorityHigh,
		SkipAggregation: true,
	}, nil
}

func (s *Selector) manual(custom *models.DateRange, now time.Time) (models.StrategyResult, error) {
	var window models.DateRange
	if custom != nil {
		w, err := models.NewDateRange(custom.Start, custom.End)
		if err != nil {
			return models.StrategyResult{}, fmt.Errorf("manual window: %w", err)
		}
		window = w
	} else {
		w, err := models.NewDateRange(now.Add(-s.cfg.ManualDefaultWindow), now)
		if err != nil {
			return models.StrategyResult{}, err
		}
		window = w
	}
	return models.StrategyResult{
		Kind:              models.SyncKindManual,
		Window:            window,
		IncludeAllRecords: true,
		BatchSize:         s.cfg.ManualBatchSize,
		Priority:          models.PriorityMedium,
	}, nil
}
