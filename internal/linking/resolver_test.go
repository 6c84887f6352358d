// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package linking

import (
	"slices"
	"testing"
	"time"

	"github.com/tomtom215/healthsync/internal/models"
)

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func record(dt models.DataType, at time.Time) models.Record {
	return models.Record{
		Provider:  models.ProviderFitbit,
		UserID:    "user-1",
		DataType:  dt,
		Timestamp: at,
		Value:     models.Scalar(70),
	}
}

func TestExpand_AddsCompanionsOnce(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil, DefaultMatchTolerance)
	got := r.Expand([]models.DataType{models.DataTypeECG, models.DataTypeSteps, models.DataTypeRRIntervals})
	want := []models.DataType{models.DataTypeECG, models.DataTypeSteps, models.DataTypeRRIntervals, models.DataTypeHeartRate}
	if !slices.Equal(got, want) {
		t.Errorf("Expand = %v, want %v", got, want)
	}

	got = r.Expand([]models.DataType{models.DataTypeHeartRate, models.DataTypeECG})
	if !slices.Equal(got, []models.DataType{models.DataTypeHeartRate, models.DataTypeECG}) {
		t.Errorf("companion already requested should not repeat: %v", got)
	}
}

func TestExpand_Transitive(t *testing.T) {
	t.Parallel()

	r := NewResolver(map[models.DataType][]models.DataType{
		models.DataTypeECG:       {models.DataTypeHeartRate},
		models.DataTypeHeartRate: {models.DataTypeSpO2},
	}, 0)
	got := r.Expand([]models.DataType{models.DataTypeECG})
	want := []models.DataType{models.DataTypeECG, models.DataTypeHeartRate, models.DataTypeSpO2}
	if !slices.Equal(got, want) {
		t.Errorf("Expand = %v, want %v", got, want)
	}
}

func TestLink_FlagsMissingCompanion(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil, DefaultMatchTolerance)
	ecg := record(models.DataTypeECG, base)
	ecg.Value = models.Structured(map[string]any{"waveform": []any{0.1, 0.2}, "analysis": "sinus rhythm"})

	res := r.Link(models.DataTypeECG, map[models.DataType][]models.Record{
		models.DataTypeECG: {ecg},
	})
	if len(res.Records) != 1 {
		t.Fatalf("ECG record dropped: %d records", len(res.Records))
	}
	if !res.Records[0].LinkedDataIncomplete() {
		t.Error("expected linked_data_incomplete=true")
	}
	if res.Incomplete != 1 {
		t.Errorf("Incomplete = %d, want 1", res.Incomplete)
	}
	missing, _ := res.Records[0].Meta(models.MetaMissingCompanions)
	if got, ok := missing.([]string); !ok || len(got) != 1 || got[0] != "heart_rate" {
		t.Errorf("missing_companions = %v", missing)
	}
	if ecg.LinkedDataIncomplete() || ecg.Metadata != nil {
		t.Error("input record was mutated")
	}
}

func TestLink_MatchesWithinTolerance(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil, 2*time.Minute)
	fetched := map[models.DataType][]models.Record{
		models.DataTypeECG: {
			record(models.DataTypeECG, base),
			record(models.DataTypeECG, base.Add(30*time.Minute)),
		},
		models.DataTypeHeartRate: {
			record(models.DataTypeHeartRate, base.Add(90*time.Second)),
			record(models.DataTypeHeartRate, base.Add(-time.Hour)),
		},
	}

	res := r.Link(models.DataTypeECG, fetched)
	if res.Records[0].LinkedDataIncomplete() {
		t.Error("first ECG has a heart-rate reading 90s away and should be complete")
	}
	if linked, ok := res.Records[0].Meta(models.MetaLinkedRecords); !ok || len(linked.([]string)) != 1 {
		t.Errorf("linked_records = %v", linked)
	}
	if !res.Records[1].LinkedDataIncomplete() {
		t.Error("second ECG has no heart-rate reading nearby and should be flagged")
	}
	if res.Incomplete != 1 {
		t.Errorf("Incomplete = %d, want 1", res.Incomplete)
	}
}

func TestLink_ZeroToleranceMatchesAnywhereInWindow(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil, 0)
	res := r.Link(models.DataTypeRRIntervals, map[models.DataType][]models.Record{
		models.DataTypeRRIntervals: {record(models.DataTypeRRIntervals, base)},
		models.DataTypeHeartRate:   {record(models.DataTypeHeartRate, base.Add(6*time.Hour))},
	})
	if res.Records[0].LinkedDataIncomplete() {
		t.Error("zero tolerance should accept any companion in the window")
	}
}

func TestLink_UnlinkedTypePassesThrough(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil, DefaultMatchTolerance)
	steps := []models.Record{record(models.DataTypeSteps, base)}
	res := r.Link(models.DataTypeSteps, map[models.DataType][]models.Record{models.DataTypeSteps: steps})
	if len(res.Records) != 1 || res.Records[0].Metadata != nil || res.Incomplete != 0 {
		t.Errorf("steps should pass through untouched: %+v", res)
	}
}

func TestForConfig_UsesUserRules(t *testing.T) {
	t.Parallel()

	cfg := models.HealthSyncConfig{
		UserID:          "u1",
		LinkedDataRules: map[models.DataType][]models.DataType{models.DataTypeBloodPressure: {models.DataTypeHeartRate}},
	}
	r := ForConfig(cfg, 0)
	if len(r.Companions(models.DataTypeBloodPressure)) == 0 {
		t.Error("custom rule missing")
	}
	if len(r.Companions(models.DataTypeECG)) != 0 {
		t.Error("explicit rules should replace defaults")
	}
	c := r.Companions(models.DataTypeBloodPressure)
	c[0] = models.DataTypeSteps
	if r.Companions(models.DataTypeBloodPressure)[0] != models.DataTypeHeartRate {
		t.Error("Companions returned an aliased slice")
	}
}
