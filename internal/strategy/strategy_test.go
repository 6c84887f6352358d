// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/healthsync/internal/models"
)

var testNow = time.Date(2026, 3, 15, 10, 47, 0, 0, time.UTC)

func newTestSelector() *Selector {
	return NewSelector(DefaultConfig(), WithClock(func() time.Time { return testNow }))
}

func TestSelect_InitialUsesLookbackDays(t *testing.T) {
	t.Parallel()

	got, err := newTestSelector().Select(Request{Trigger: models.TriggerInitial})
	if err != nil {
		t.Fatal(err)
	}
	wantStart := testNow.AddDate(0, 0, -30)
	if !got.Window.Start.Equal(wantStart) || !got.Window.End.Equal(testNow) {
		t.Errorf("window = [%v, %v), want [%v, %v)", got.Window.Start, got.Window.End, wantStart, testNow)
	}
	if got.Kind != models.SyncKindInitial || !got.IncludeAllRecords || got.BatchSize != 1000 {
		t.Errorf("result = %+v", got)
	}
}

func TestSelect_InitialIgnoresCheckpoint(t *testing.T) {
	t.Parallel()

	cp := testNow.Add(-time.Hour)
	got, err := newTestSelector().Select(Request{Trigger: models.TriggerInitial, LastCheckpoint: &cp})
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != models.SyncKindInitial || got.Window.Duration() != 30*24*time.Hour {
		t.Errorf("result = %+v", got)
	}
}

func TestSelect_IncrementalOverlapsCheckpoint(t *testing.T) {
	t.Parallel()

	cp := testNow.Add(-2 * time.Hour)
	got, err := newTestSelector().Select(Request{Trigger: models.TriggerIncremental, LastCheckpoint: &cp})
	if err != nil {
		t.Fatal(err)
	}
	if !got.Window.Start.Equal(cp.Add(-5 * time.Minute)) {
		t.Errorf("start = %v, want %v", got.Window.Start, cp.Add(-5*time.Minute))
	}
	if !got.Window.End.Equal(testNow) {
		t.Errorf("end = %v, want %v", got.Window.End, testNow)
	}
	if got.Kind != models.SyncKindIncremental || got.IncludeAllRecords || got.BatchSize != 100 {
		t.Errorf("result = %+v", got)
	}
}

func TestSelect_IncrementalWithoutCheckpointFallsBackToInitial(t *testing.T) {
	t.Parallel()

	got, err := newTestSelector().Select(Request{Trigger: models.TriggerIncremental})
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != models.SyncKindInitial || !got.IncludeAllRecords {
		t.Errorf("result = %+v", got)
	}
}

func TestSelect_IncrementalFutureCheckpointYieldsEmptyWindow(t *testing.T) {
	t.Parallel()

	cp := testNow.Add(time.Hour)
	got, err := newTestSelector().Select(Request{Trigger: models.TriggerIncremental, LastCheckpoint: &cp})
	if err != nil {
		t.Fatal(err)
	}
	if got.Window.Duration() != 0 {
		t.Errorf("window = %+v, want empty", got.Window)
	}
}

func TestSelect_RealtimeIgnoresCheckpoint(t *testing.T) {
	t.Parallel()

	old := testNow.AddDate(0, 0, -3)
	got, err := newTestSelector().Select(Request{Trigger: models.TriggerRealtime, LastCheckpoint: &old})
	if err != nil {
		t.Fatal(err)
	}
	if !got.Window.Start.Equal(testNow.Add(-15*time.Minute)) || !got.Window.End.Equal(testNow) {
		t.Errorf("window = %+v", got.Window)
	}
	if got.Priority != models.PriorityHigh || got.IncludeAllRecords || !got.SkipAggregation {
		t.Errorf("result = %+v", got)
	}
	cfg := DefaultConfig()
	for _, other := range []int{cfg.InitialBatchSize, cfg.IncrementalBatch, cfg.ManualBatchSize} {
		if got.BatchSize >= other {
			t.Errorf("realtime batch %d should be the smallest (vs %d)", got.BatchSize, other)
		}
	}
}

func TestSelect_Manual(t *testing.T) {
	t.Parallel()

	s := newTestSelector()

	got, err := s.Select(Request{Trigger: models.TriggerManual})
	if err != nil {
		t.Fatal(err)
	}
	if got.Window.Duration() != 7*24*time.Hour || got.Priority != models.PriorityMedium || !got.IncludeAllRecords {
		t.Errorf("default manual = %+v", got)
	}

	custom := models.DateRange{Start: testNow.AddDate(0, -2, 0), End: testNow.AddDate(0, -1, 0)}
	got, err = s.Select(Request{Trigger: models.TriggerManual, ManualWindow: &custom})
	if err != nil {
		t.Fatal(err)
	}
	if !got.Window.Start.Equal(custom.Start) || !got.Window.End.Equal(custom.End) {
		t.Errorf("custom manual window = %+v", got.Window)
	}

	bad := models.DateRange{Start: testNow, End: testNow.Add(-time.Hour)}
	if _, err := s.Select(Request{Trigger: models.TriggerManual, ManualWindow: &bad}); !errors.Is(err, models.ErrInvalidDateRange) {
		t.Errorf("reversed manual window: %v", err)
	}
}

func TestSelect_UnknownTrigger(t *testing.T) {
	t.Parallel()

	if _, err := newTestSelector().Select(Request{Trigger: "nightly"}); !errors.Is(err, ErrUnknownTrigger) {
		t.Errorf("expected ErrUnknownTrigger, got %v", err)
	}
}

func TestSelect_IsPure(t *testing.T) {
	t.Parallel()

	s := newTestSelector()
	cp := testNow.Add(-time.Hour)
	req := Request{Trigger: models.TriggerIncremental, LastCheckpoint: &cp}
	a, _ := s.Select(req)
	b, _ := s.Select(req)
	if a != b {
		t.Errorf("repeated selection differs: %+v vs %+v", a, b)
	}
	if !cp.Equal(testNow.Add(-time.Hour)) {
		t.Error("checkpoint input was modified")
	}
}
