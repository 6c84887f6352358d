// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

// Package linking enforces that certain measurement types travel with a
// companion type (ECG and RR intervals with heart rate). A primary record
// whose companion is missing is still emitted, flagged with
// linked_data_incomplete metadata.
package linking

import (
	"slices"
	"sort"
	"time"

	"github.com/tomtom215/healthsync/internal/models"
)

// DefaultMatchTolerance is how far apart a primary and a companion record may
// be and still count as the same measurement moment.
const DefaultMatchTolerance = 5 * time.Minute

// Resolver applies one user's linked-data rules. It holds no mutable state.
type Resolver struct {
	rules     map[models.DataType][]models.DataType
	tolerance time.Duration
}

// NewResolver builds a resolver. A nil rules map applies the default rules.
// A tolerance of zero matches any companion record in the fetch window.
func NewResolver(rules map[models.DataType][]models.DataType, tolerance time.Duration) *Resolver {
	if rules == nil {
		rules = models.DefaultLinkedDataRules()
	}
	copied := make(map[models.DataType][]models.DataType, len(rules))
	for k, v := range rules {
		copied[k] = slices.Clone(v)
	}
	return &Resolver{rules: copied, tolerance: tolerance}
}

// ForConfig returns a resolver for a user's configuration.
func ForConfig(cfg models.HealthSyncConfig, tolerance time.Duration) *Resolver {
	return NewResolver(cfg.Rules(), tolerance)
}

// Companions returns the types dt must travel with.
func (r *Resolver) Companions(dt models.DataType) []models.DataType {
	return slices.Clone(r.rules[dt])
}

// Expand returns requested plus every companion they pull in, transitively.
// Requested types keep their order; companions follow in discovery order.
// No type appears twice.
func (r *Resolver) Expand(requested []models.DataType) []models.DataType {
	seen := make(map[models.DataType]bool, len(requested))
	out := make([]models.DataType, 0, len(requested))
	for _, dt := range requested {
		if !seen[dt] {
			seen[dt] = true
			out = append(out, dt)
		}
	}
	for i := 0; i < len(out); i++ {
		for _, c := range r.rules[out[i]] {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// Result is the output of Link for one primary type.
type Result struct {
	Records    []models.Record
	Incomplete int
}

// Link annotates primary records with their companions. fetched holds
// every record retrieved in this invocation keyed by type. Records of a type
// without rules are returned unchanged. Input records are never mutated.
func (r *Resolver) Link(primary models.DataType, fetched map[models.DataType][]models.Record) Result {
	records := fetched[primary]
	companions := r.rules[primary]
	if len(companions) == 0 {
		return Result{Records: slices.Clone(records)}
	}

	index := make(map[models.DataType][]time.Time, len(companions))
	for _, c := range companions {
		index[c] = sortedTimestamps(fetched[c])
	}

	out := make([]models.Record, 0, len(records))
	incomplete := 0
	for _, rec := range records {
		var missing, linked []string
		for _, c := range companions {
			if r.hasMatch(index[c], rec.Timestamp) {
				linked = append(linked, string(c))
			} else {
				missing = append(missing, string(c))
			}
		}
		if len(linked) > 0 {
			rec = rec.WithMetadata(models.MetaLinkedRecords, linked)
		}
		if len(missing) > 0 {
			incomplete++
			rec = rec.WithMetadata(models.MetaLinkedDataIncomplete, true).
				WithMetadata(models.MetaMissingCompanions, missing)
		}
		out = append(out, rec)
	}
	return Result{Records: out, Incomplete: incomplete}
}

func (r *Resolver) hasMatch(sorted []time.Time, at time.Time) bool {
	if len(sorted) == 0 {
		return false
	}
	if r.tolerance <= 0 {
		return true
	}
	i := sort.Search(len(sorted), func(i int) bool { return !sorted[i].Before(at.Add(-r.tolerance)) })
	return i < len(sorted) && !sorted[i].After(at.Add(r.tolerance))
}

func sortedTimestamps(records []models.Record) []time.Time {
	ts := make([]time.Time, len(records))
	for i, rec := range records {
		ts[i] = rec.Timestamp
	}
	slices.SortFunc(ts, func(a, b time.Time) int { return a.Compare(b) })
	return ts
}
