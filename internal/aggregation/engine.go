// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package aggregation

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/healthsync/internal/models"
)

// WidthFor returns the bucket width for an aggregation preference. The
// second result is false for individual, which means no aggregation.
func WidthFor(level models.AggregationLevel) (time.Duration, bool) {
	switch level {
	case models.AggregationHourly:
		return time.Hour, true
	case models.AggregationDaily:
		return 24 * time.Hour, true
	default:
		return 0, false
	}
}

func levelFor(width time.Duration) models.AggregationLevel {
	switch width {
	case time.Hour:
		return models.AggregationHourly
	case 24 * time.Hour:
		return models.AggregationDaily
	default:
		return models.AggregationLevel(width.String())
	}
}

// Engine collapses scalar measurements into bucket summaries. It is
// stateless; the zero value is ready to use.
type Engine struct{}

// New returns an Engine.
func New() *Engine { return &Engine{} }

type bucketKey struct {
	start    time.Time
	userID   string
	provider models.Provider
	dataType models.DataType
}

// Aggregate buckets records into width-aligned UTC windows. A record at
// 10:47 with a one-hour width lands in [10:00, 11:00). Each non-empty bucket
// yields one record whose value is the mean (rounded to one decimal) and whose
// MetaAggregation metadata carries min, max, mean and count. Structured values
// are never aggregated and pass through unchanged.
//
// Output order depends only on content, so permuting the input yields an
// identical result.
func (e *Engine) Aggregate(records []models.Record, width time.Duration) ([]models.Record, error) {
	if width <= 0 {
		return nil, fmt.Errorf("aggregation width must be positive, got %s", width)
	}

	buckets := make(map[bucketKey][]models.Record)
	var passthrough []models.Record
	for _, rec := range records {
		if !rec.Value.IsScalar() {
			passthrough = append(passthrough, rec)
			continue
		}
		key := bucketKey{
			start:    rec.Timestamp.UTC().Truncate(width),
			userID:   rec.UserID,
			provider: rec.Provider,
			dataType: rec.DataType,
		}
		buckets[key] = append(buckets[key], rec)
	}

	out := make([]models.Record, 0, len(buckets)+len(passthrough))
	for key, members := range buckets {
		out = append(out, summarize(key, members, width))
	}
	out = append(out, passthrough...)

	slices.SortStableFunc(out, compareRecords)
	return out, nil
}

func summarize(key bucketKey, members []models.Record, width time.Duration) models.Record {
	values := make([]float64, len(members))
	for i, m := range members {
		values[i], _ = m.Value.Float()
	}
	// Sorting first makes the floating-point sum independent of input order.
	slices.Sort(values)

	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := math.Round(sum/float64(len(values))*10) / 10

	summary := models.AggregationSummary{
		BucketStart: key.start,
		BucketEnd:   key.start.Add(width),
		Level:       levelFor(width),
		Minimum:     values[0],
		Maximum:     values[len(values)-1],
		Average:     avg,
		Count:       len(values),
	}

	sorted := slices.Clone(members)
	slices.SortStableFunc(sorted, compareRecords)

	md := map[string]any{models.MetaAggregation: summary}
	for _, m := range sorted {
		if m.LinkedDataIncomplete() {
			md[models.MetaLinkedDataIncomplete] = true
			break
		}
	}

	return models.Record{
		Provider:  key.provider,
		UserID:    key.userID,
		DataType:  key.dataType,
		Timestamp: key.start,
		Value:     models.Scalar(avg),
		Unit:      sorted[0].Unit,
		DeviceID:  commonDevice(sorted),
		Metadata:  md,
	}
}

func commonDevice(records []models.Record) string {
	id := records[0].DeviceID
	for _, r := range records[1:] {
		if r.DeviceID != id {
			return ""
		}
	}
	return id
}

// compareRecords is a total order over record content.
func compareRecords(a, b models.Record) int {
	if c := cmp.Compare(a.UserID, b.UserID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Provider, b.Provider); c != 0 {
		return c
	}
	if c := cmp.Compare(a.DataType, b.DataType); c != 0 {
		return c
	}
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	if c := cmp.Compare(a.DeviceID, b.DeviceID); c != 0 {
		return c
	}
	return cmp.Compare(valueKey(a.Value), valueKey(b.Value))
}

func valueKey(v models.Value) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
