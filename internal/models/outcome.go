// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package models

import (
	"time"
)

// Status is the per-invocation (and per-data-type) sync state.
//
// A data type moves through the stages in order:
//
//	pending -> fetching -> linking -> aggregating -> publishing -> completed
//
// and may drop to failed from any stage. Types the provider does not offer
// are reported as skipped without entering the pipeline.
type Status string

const (
	StatusPending     Status = "pending"
	StatusFetching    Status = "fetching"
	StatusLinking     Status = "linking"
	StatusAggregating Status = "aggregating"
	StatusPublishing  Status = "publishing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusSkipped     Status = "skipped"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// OutcomeStatus summarizes an entire invocation.
type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomePartial   OutcomeStatus = "partial"
	OutcomeFailed    OutcomeStatus = "failed"
)

// DataTypeResult is the result of syncing one data type within an invocation.
type DataTypeResult struct {
	DataType DataType `json:"data_type"`
	Status   Status   `json:"status"`
	// Stage is the last stage entered, so a failure can be attributed.
	Stage              Status `json:"stage"`
	ErrorKind          string `json:"error_kind,omitempty"`
	Error              string `json:"error,omitempty"`
	RecordsFetched     int    `json:"records_fetched"`
	RecordsTransformed int    `json:"records_transformed"`
	RecordsPublished   int    `json:"records_published"`
	Attempts           int    `json:"attempts,omitempty"`
	IncompleteLinks    int    `json:"incomplete_links,omitempty"`
	Companion          bool   `json:"companion,omitempty"`
}

// Succeeded reports whether the data type completed.
func (r DataTypeResult) Succeeded() bool {
	return r.Status == StatusCompleted
}

// SyncError is one failure reported in an outcome.
type SyncError struct {
	DataType DataType `json:"data_type"`
	Stage    Status   `json:"stage"`
	Kind     string   `json:"kind"`
	Message  string   `json:"message"`
}

// SyncOutcome is the value returned by a sync invocation. NewCheckpoints
// only contains data types whose results completed.
type SyncOutcome struct {
	StartedAt        time.Time              `json:"started_at"`
	NewCheckpoints   map[DataType]time.Time `json:"new_checkpoints"`
	Strategy         StrategyResult         `json:"strategy"`
	RunID            string                 `json:"run_id"`
	UserID           string                 `json:"user_id"`
	Provider         Provider               `json:"provider"`
	Trigger          Trigger                `json:"trigger"`
	Status           OutcomeStatus          `json:"status"`
	Results          []DataTypeResult       `json:"results"`
	Errors           []SyncError            `json:"errors,omitempty"`
	RecordsProcessed int                    `json:"records_processed"`
	Duration         time.Duration          `json:"duration_ns"`
}

// Result returns the result for a data type.
func (o SyncOutcome) Result(dt DataType) (DataTypeResult, bool) {
	for _, r := range o.Results {
		if r.DataType == dt {
			return r, true
		}
	}
	return DataTypeResult{}, false
}

// Summarize derives the overall status from per-type results. Skipped types
// neither help nor hurt.
func Summarize(results []DataTypeResult) OutcomeStatus {
	var ok, failed int
	for _, r := range results {
		switch r.Status {
		case StatusCompleted:
			ok++
		case StatusFailed:
			failed++
		}
	}
	switch {
	case failed == 0:
		return OutcomeCompleted
	case ok == 0:
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}

// SyncJob is a unit of work handed to the dispatch layer.
type SyncJob struct {
	// Window is honored only for manual triggers.
	Window      *DateRange       `json:"window,omitempty"`
	Config      HealthSyncConfig `json:"config" validate:"required"`
	ID          string           `json:"id"`
	UserID      string           `json:"user_id" validate:"required"`
	Provider    Provider         `json:"provider" validate:"required,provider"`
	Trigger     Trigger          `json:"trigger" validate:"required,oneof=initial incremental realtime manual"`
	SubmittedAt time.Time        `json:"submitted_at"`
}
