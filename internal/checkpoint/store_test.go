// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package checkpoint

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/tomtom215/healthsync/internal/models"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_MissingCheckpoint(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	_, ok, err := s.GetLastSync(context.Background(), "user-1", models.ProviderWithings, models.DataTypeWeight)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected no checkpoint")
	}
}

func TestStore_SetAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)
	if err := s.SetLastSync(ctx, "user-1", models.ProviderFitbit, models.DataTypeSteps, base); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.GetLastSync(ctx, "user-1", models.ProviderFitbit, models.DataTypeSteps)
	if err != nil || !ok || !got.Equal(base) {
		t.Errorf("got %v, %v, %v", got, ok, err)
	}

	// Keys are scoped by provider and user.
	if _, ok, _ := s.GetLastSync(ctx, "user-1", models.ProviderWithings, models.DataTypeSteps); ok {
		t.Error("checkpoint leaked across providers")
	}
	if _, ok, _ := s.GetLastSync(ctx, "user-10", models.ProviderFitbit, models.DataTypeSteps); ok {
		t.Error("checkpoint leaked across users")
	}
}

func TestStore_AdvanceNeverMovesBackwards(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)
	if err := s.SetLastSync(ctx, "user-1", models.ProviderWithings, models.DataTypeWeight, base); err != nil {
		t.Fatal(err)
	}

	advanced, err := s.Advance(ctx, models.SyncOutcome{
		RunID:    "run-1",
		UserID:   "user-1",
		Provider: models.ProviderWithings,
		Strategy: models.StrategyResult{
			Kind:   models.SyncKindInitial,
			Window: models.DateRange{Start: base.Add(-30 * 24 * time.Hour), End: base.Add(time.Hour)},
		},
		NewCheckpoints: map[models.DataType]time.Time{
			models.DataTypeWeight:        base.Add(-time.Hour),
			models.DataTypeBloodPressure: base.Add(time.Hour),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(advanced, []models.DataType{models.DataTypeBloodPressure}) {
		t.Errorf("advanced = %v", advanced)
	}

	all, err := s.List(ctx, "user-1", models.ProviderWithings)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || !all[models.DataTypeWeight].Equal(base) || !all[models.DataTypeBloodPressure].Equal(base.Add(time.Hour)) {
		t.Errorf("checkpoints = %v", all)
	}
}

func TestStore_AdvanceRequiresContiguousWindow(t *testing.T) {
	t.Parallel()

	day := 24 * time.Hour
	tests := []struct {
		name     string
		stored   *time.Time
		plan     models.StrategyResult
		advanced bool
	}{
		{
			name:     "initial without checkpoint",
			plan:     models.StrategyResult{Kind: models.SyncKindInitial, Window: models.DateRange{Start: base.Add(-30 * day), End: base}},
			advanced: true,
		},
		{
			name: "realtime without checkpoint",
			plan: models.StrategyResult{Kind: models.SyncKindRealtime, Window: models.DateRange{Start: base.Add(-15 * time.Minute), End: base}},
		},
		{
			name: "manual without checkpoint",
			plan: models.StrategyResult{Kind: models.SyncKindManual, Window: models.DateRange{Start: base.Add(-7 * day), End: base}},
		},
		{
			name:     "incremental overlapping checkpoint",
			stored:   ptr(base.Add(-time.Hour)),
			plan:     models.StrategyResult{Kind: models.SyncKindIncremental, Window: models.DateRange{Start: base.Add(-time.Hour - 5*time.Minute), End: base}},
			advanced: true,
		},
		{
			name:   "realtime after a gap",
			stored: ptr(base.Add(-6 * time.Hour)),
			plan:   models.StrategyResult{Kind: models.SyncKindRealtime, Window: models.DateRange{Start: base.Add(-15 * time.Minute), End: base}},
		},
		{
			name:     "realtime covering a recent checkpoint",
			stored:   ptr(base.Add(-10 * time.Minute)),
			plan:     models.StrategyResult{Kind: models.SyncKindRealtime, Window: models.DateRange{Start: base.Add(-15 * time.Minute), End: base}},
			advanced: true,
		},
		{
			name:     "window starting exactly at checkpoint",
			stored:   ptr(base.Add(-day)),
			plan:     models.StrategyResult{Kind: models.SyncKindManual, Window: models.DateRange{Start: base.Add(-day), End: base}},
			advanced: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			s := openTestStore(t)
			if tt.stored != nil {
				if err := s.SetLastSync(ctx, "user-1", models.ProviderFitbit, models.DataTypeSteps, *tt.stored); err != nil {
					t.Fatal(err)
				}
			}

			advanced, err := s.Advance(ctx, models.SyncOutcome{
				RunID:          "run-1",
				UserID:         "user-1",
				Provider:       models.ProviderFitbit,
				Strategy:       tt.plan,
				NewCheckpoints: map[models.DataType]time.Time{models.DataTypeSteps: tt.plan.Window.End},
			})
			if err != nil {
				t.Fatal(err)
			}
			if got := len(advanced) == 1; got != tt.advanced {
				t.Fatalf("advanced = %v, want advanced=%v", advanced, tt.advanced)
			}

			got, ok, err := s.GetLastSync(ctx, "user-1", models.ProviderFitbit, models.DataTypeSteps)
			if err != nil {
				t.Fatal(err)
			}
			switch {
			case tt.advanced:
				if !got.Equal(base) {
					t.Errorf("checkpoint = %v, want %v", got, base)
				}
			case tt.stored == nil:
				if ok {
					t.Errorf("checkpoint written for a window without backfill: %v", got)
				}
			default:
				if !got.Equal(*tt.stored) {
					t.Errorf("checkpoint = %v, want unchanged %v", got, *tt.stored)
				}
			}
		})
	}
}

func ptr(t time.Time) *time.Time { return &t }

func TestStore_AdvanceWithoutCheckpointsIsNoop(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	advanced, err := s.Advance(context.Background(), models.SyncOutcome{UserID: "user-1", Provider: models.ProviderFitbit})
	if err != nil || len(advanced) != 0 {
		t.Errorf("advanced = %v, err = %v", advanced, err)
	}
}

func TestStore_UserIDsWithSeparators(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)
	if err := s.SetLastSync(ctx, "org/alice", models.ProviderFitbit, models.DataTypeECG, base); err != nil {
		t.Fatal(err)
	}
	all, err := s.List(ctx, "org", models.ProviderFitbit)
	if err != nil || len(all) != 0 {
		t.Errorf("prefix leaked: %v, %v", all, err)
	}
	all, err = s.List(ctx, "org/alice", models.ProviderFitbit)
	if err != nil || len(all) != 1 {
		t.Errorf("list = %v, %v", all, err)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := Config{Path: filepath.Join(t.TempDir(), "checkpoints")}

	s, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetLastSync(ctx, "user-1", models.ProviderWithings, models.DataTypeSpO2, base); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()

	got, ok, err := s.GetLastSync(ctx, "user-1", models.ProviderWithings, models.DataTypeSpO2)
	if err != nil || !ok || !got.Equal(base) {
		t.Errorf("got %v, %v, %v", got, ok, err)
	}
}

func TestStore_Closed(t *testing.T) {
	t.Parallel()

	s, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if _, _, err := s.GetLastSync(context.Background(), "u", models.ProviderFitbit, models.DataTypeSteps); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestStore_RunGC(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for _, cfg := range []Config{
		{InMemory: true},
		{Path: filepath.Join(t.TempDir(), "gc")},
	} {
		s, err := Open(cfg)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.SetLastSync(ctx, "user-1", models.ProviderFitbit, models.DataTypeSteps, base); err != nil {
			t.Fatal(err)
		}
		if err := s.RunGC(ctx); err != nil {
			t.Errorf("RunGC(in_memory=%v) = %v", cfg.InMemory, err)
		}
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
		if err := s.RunGC(ctx); !errors.Is(err, ErrClosed) {
			t.Errorf("RunGC after close = %v, want ErrClosed", err)
		}
	}
}

func TestStore_Ping(t *testing.T) {
	t.Parallel()

	s, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() = %v", err)
	}
	_ = s.Close()
	if err := s.Ping(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping() after close = %v, want ErrClosed", err)
	}
}
