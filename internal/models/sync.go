// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package models

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrInvalidDateRange is returned when a range ends before it starts.
var ErrInvalidDateRange = errors.New("date range start must not be after end")

// DateRange is the half-open interval [Start, End) of UTC instants.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange builds a range, normalizing both ends to UTC.
func NewDateRange(start, end time.Time) (DateRange, error) {
	if start.After(end) {
		return DateRange{}, fmt.Errorf("%w: %s > %s", ErrInvalidDateRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return DateRange{Start: start.UTC(), End: end.UTC()}, nil
}

// Contains reports whether t falls inside the half-open interval.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Duration returns End - Start.
func (r DateRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Trigger is the reason a sync invocation was dispatched.
type Trigger string

const (
	TriggerInitial     Trigger = "initial"
	TriggerIncremental Trigger = "incremental"
	TriggerRealtime    Trigger = "realtime"
	TriggerManual      Trigger = "manual"
)

// Valid reports whether t is a known trigger.
func (t Trigger) Valid() bool {
	switch t {
	case TriggerInitial, TriggerIncremental, TriggerRealtime, TriggerManual:
		return true
	default:
		return false
	}
}

// SyncKind tags the strategy that produced a fetch window.
type SyncKind string

const (
	SyncKindInitial     SyncKind = "initial"
	SyncKindIncremental SyncKind = "incremental"
	SyncKindRealtime    SyncKind = "realtime"
	SyncKindManual      SyncKind = "manual"
)

// Priority is a scheduling hint for the dispatch layer.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// StrategyResult is the concrete fetch plan for one sync invocation.
type StrategyResult struct {
	Window            DateRange `json:"window"`
	Kind              SyncKind  `json:"kind"`
	Priority          Priority  `json:"priority"`
	BatchSize         int       `json:"batch_size"`
	IncludeAllRecords bool      `json:"include_all_records"`
	// SkipAggregation publishes raw records even when the user prefers
	// summaries, keeping push-triggered syncs low latency.
	SkipAggregation bool `json:"skip_aggregation,omitempty"`
}

// AggregationLevel is the per-user preference for summarizing measurements.
type AggregationLevel string

const (
	AggregationIndividual AggregationLevel = "individual"
	AggregationHourly     AggregationLevel = "hourly"
	AggregationDaily      AggregationLevel = "daily"
)

// SyncFrequency is how often a user's data is expected to be pulled.
type SyncFrequency string

const (
	FrequencyRealtime SyncFrequency = "realtime"
	FrequencyHourly   SyncFrequency = "hourly"
	FrequencyDaily    SyncFrequency = "daily"
)

// DefaultLinkedDataRules returns the companion requirements applied when a
// user configuration does not carry its own.
func DefaultLinkedDataRules() map[DataType][]DataType {
	return map[DataType][]DataType{
		DataTypeECG:         {DataTypeHeartRate},
		DataTypeRRIntervals: {DataTypeHeartRate},
	}
}

// HealthSyncConfig is the per-user sync configuration. It is owned by
// configuration storage and never mutated by the sync engine.
type HealthSyncConfig struct {
	LinkedDataRules  map[DataType][]DataType `json:"linked_data_rules,omitempty"`
	UserID           string                  `json:"user_id" validate:"required"`
	Aggregation      AggregationLevel        `json:"aggregation_preference" validate:"required,oneof=individual hourly daily"`
	Frequency        SyncFrequency           `json:"sync_frequency" validate:"required,oneof=realtime hourly daily"`
	EnabledDataTypes []DataType              `json:"enabled_data_types" validate:"required,min=1,dive,datatype"`
	RetentionPeriod  time.Duration           `json:"retention_period" validate:"gte=0"`
}

// Rules returns the configured linked-data rules, or the defaults when none
// are configured. The returned map is a copy.
func (c HealthSyncConfig) Rules() map[DataType][]DataType {
	if c.LinkedDataRules == nil {
		return DefaultLinkedDataRules()
	}
	out := make(map[DataType][]DataType, len(c.LinkedDataRules))
	for k, v := range c.LinkedDataRules {
		out[k] = slices.Clone(v)
	}
	return out
}
