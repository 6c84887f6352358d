// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package sync

import (
	"context"
	"errors"

	"github.com/tomtom215/healthsync/internal/models"
	"github.com/tomtom215/healthsync/internal/resilience"
)

// typeRun tracks one data type through
//
//	pending -> fetching -> linking -> aggregating -> publishing -> completed
//
// Any non-terminal status may move to failed. Skipped is entered only from
// pending. Terminal statuses never change.
type typeRun struct {
	records []models.Record
	result  models.DataTypeResult
	fetched bool
}

var stageOrder = map[models.Status]int{
	models.StatusPending:     0,
	models.StatusFetching:    1,
	models.StatusLinking:     2,
	models.StatusAggregating: 3,
	models.StatusPublishing:  4,
	models.StatusCompleted:   5,
}

func newTypeRun(dt models.DataType, companion bool) *typeRun {
	return &typeRun{result: models.DataTypeResult{
		DataType:  dt,
		Status:    models.StatusPending,
		Stage:     models.StatusPending,
		Companion: companion,
	}}
}

// enter advances to the next stage. Backward or terminal moves are ignored.
func (tr *typeRun) enter(next models.Status) {
	if tr.result.Status.Terminal() {
		return
	}
	if stageOrder[next] <= stageOrder[tr.result.Status] {
		return
	}
	tr.result.Status = next
	tr.result.Stage = next
}

func (tr *typeRun) complete() {
	if tr.result.Status != models.StatusPublishing {
		return
	}
	tr.result.Status = models.StatusCompleted
}

func (tr *typeRun) skip() {
	if tr.result.Status != models.StatusPending {
		return
	}
	tr.result.Status = models.StatusSkipped
	tr.records = nil
}

// fail records err against the current stage.
func (tr *typeRun) fail(err error) {
	if tr.result.Status.Terminal() {
		return
	}
	c := resilience.Classify(err)
	tr.result.Status = models.StatusFailed
	tr.result.ErrorKind = string(c.Kind)
	tr.result.Error = err.Error()
	var re *resilience.Error
	if errors.As(err, &re) && re.Attempts > tr.result.Attempts {
		tr.result.Attempts = re.Attempts
	}
	tr.records = nil
	tr.fetched = false
}

// abortIfDone fails the type when ctx is finished and reports whether it
// did. Terminal types also report true.
func (tr *typeRun) abortIfDone(ctx context.Context) bool {
	if tr.result.Status.Terminal() {
		return true
	}
	if err := ctx.Err(); err != nil {
		tr.fail(&resilience.Error{Kind: resilience.KindCanceled, Err: err})
		return true
	}
	return false
}
