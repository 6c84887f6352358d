// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package models

// Resource is a transformed clinical resource in FHIR JSON shape. It is kept
// as a generic document so the publisher never depends on mapping tables.
type Resource map[string]any

// ResourceType returns the FHIR resourceType field.
func (r Resource) ResourceType() string {
	s, _ := r["resourceType"].(string)
	return s
}

// Identifier returns the first identifier value, used for conditional creates.
func (r Resource) Identifier() (system, value string) {
	ids, ok := r["identifier"].([]any)
	if !ok || len(ids) == 0 {
		return "", ""
	}
	first, ok := ids[0].(map[string]any)
	if !ok {
		return "", ""
	}
	system, _ = first["system"].(string)
	value, _ = first["value"].(string)
	return system, value
}

// PublishResult reports what a publisher accepted.
type PublishResult struct {
	IDs       []string `json:"ids,omitempty"`
	Errors    []string `json:"errors,omitempty"`
	Total     int      `json:"total"`
	Published int      `json:"published"`
	Failed    int      `json:"failed"`
}

// Success reports whether every resource was accepted.
func (r PublishResult) Success() bool {
	return r.Failed == 0 && r.Published == r.Total
}

// Merge adds another batch result into r.
func (r *PublishResult) Merge(other PublishResult) {
	r.Total += other.Total
	r.Published += other.Published
	r.Failed += other.Failed
	r.IDs = append(r.IDs, other.IDs...)
	r.Errors = append(r.Errors, other.Errors...)
}
