// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package models

import (
	"fmt"
	"maps"
	"time"

	"github.com/goccy/go-json"
)

// Provider identifies a third-party wearable data source.
type Provider string

const (
	ProviderWithings Provider = "withings"
	ProviderFitbit   Provider = "fitbit"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderWithings, ProviderFitbit:
		return true
	default:
		return false
	}
}

// BreakerName returns the circuit breaker name guarding this provider's API.
func (p Provider) BreakerName() string {
	return string(p) + "_api"
}

// ParseProvider converts a string into a Provider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown provider %q", s)
	}
	return p, nil
}

// DataType tags the kind of measurement a record carries.
type DataType string

const (
	DataTypeHeartRate     DataType = "heart_rate"
	DataTypeSteps         DataType = "steps"
	DataTypeRRIntervals   DataType = "rr_intervals"
	DataTypeECG           DataType = "ecg"
	DataTypeBloodPressure DataType = "blood_pressure"
	DataTypeWeight        DataType = "weight"
	DataTypeTemperature   DataType = "temperature"
	DataTypeSpO2          DataType = "spo2"
)

// AllDataTypes returns every supported data type in a stable order.
func AllDataTypes() []DataType {
	return []DataType{
		DataTypeHeartRate,
		DataTypeSteps,
		DataTypeRRIntervals,
		DataTypeECG,
		DataTypeBloodPressure,
		DataTypeWeight,
		DataTypeTemperature,
		DataTypeSpO2,
	}
}

// Valid reports whether d is a known data type.
func (d DataType) Valid() bool {
	for _, known := range AllDataTypes() {
		if d == known {
			return true
		}
	}
	return false
}

// Structured reports whether records of this type carry a mapping rather than a scalar.
func (d DataType) Structured() bool {
	return d == DataTypeECG || d == DataTypeBloodPressure
}

// ParseDataType converts a string into a DataType.
func ParseDataType(s string) (DataType, error) {
	d := DataType(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown data type %q", s)
	}
	return d, nil
}

// Value is either a scalar number or a structured mapping (ECG waveform plus
// analysis, blood pressure systolic/diastolic). The zero Value is scalar 0.
type Value struct {
	fields map[string]any
	scalar float64
}

// Scalar returns a numeric Value.
func Scalar(v float64) Value {
	return Value{scalar: v}
}

// Structured returns a mapping Value. The map is copied.
func Structured(fields map[string]any) Value {
	if fields == nil {
		fields = map[string]any{}
	}
	return Value{fields: maps.Clone(fields)}
}

// IsScalar reports whether the value is numeric.
func (v Value) IsScalar() bool {
	return v.fields == nil
}

// Float returns the numeric value and true when the value is scalar.
func (v Value) Float() (float64, bool) {
	if !v.IsScalar() {
		return 0, false
	}
	return v.scalar, true
}

// Fields returns a copy of the structured mapping, or nil for scalars.
func (v Value) Fields() map[string]any {
	if v.fields == nil {
		return nil
	}
	return maps.Clone(v.fields)
}

// Equal reports whether two values hold the same content.
func (v Value) Equal(other Value) bool {
	if v.IsScalar() != other.IsScalar() {
		return false
	}
	if v.IsScalar() {
		return v.scalar == other.scalar
	}
	a, errA := json.Marshal(v.fields)
	b, errB := json.Marshal(other.fields)
	return errA == nil && errB == nil && string(a) == string(b)
}

// MarshalJSON encodes scalars as numbers and mappings as objects.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsScalar() {
		return json.Marshal(v.scalar)
	}
	return json.Marshal(v.fields)
}

// UnmarshalJSON accepts either a number or an object.
func (v *Value) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*v = Scalar(n)
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("value must be a number or an object: %w", err)
	}
	*v = Structured(m)
	return nil
}

// Record is a single measurement. Records are treated as immutable: derived
// records are produced with WithMetadata or by constructing new values, and
// Metadata maps are never mutated in place once a record is built.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Value     Value          `json:"value"`
	Provider  Provider       `json:"provider"`
	UserID    string         `json:"user_id"`
	DataType  DataType       `json:"data_type"`
	Unit      string         `json:"unit"`
	DeviceID  string         `json:"device_id,omitempty"`
}

// Metadata keys shared across packages.
const (
	MetaLinkedDataIncomplete = "linked_data_incomplete"
	MetaMissingCompanions    = "missing_companions"
	MetaLinkedRecords        = "linked_records"
	MetaAggregation          = "aggregation"
	MetaSource               = "source"
)

// WithMetadata returns a copy of r with key set to value.
func (r Record) WithMetadata(key string, value any) Record {
	md := make(map[string]any, len(r.Metadata)+1)
	maps.Copy(md, r.Metadata)
	md[key] = value
	r.Metadata = md
	return r
}

// Meta returns a metadata value.
func (r Record) Meta(key string) (any, bool) {
	v, ok := r.Metadata[key]
	return v, ok
}

// LinkedDataIncomplete reports whether the record was flagged as missing a
// required companion measurement.
func (r Record) LinkedDataIncomplete() bool {
	v, ok := r.Metadata[MetaLinkedDataIncomplete].(bool)
	return ok && v
}

// AggregationSummary is attached under MetaAggregation to every record
// produced by the aggregation engine.
type AggregationSummary struct {
	BucketStart time.Time        `json:"bucket_start"`
	BucketEnd   time.Time        `json:"bucket_end"`
	Level       AggregationLevel `json:"level"`
	Minimum     float64          `json:"minimum"`
	Maximum     float64          `json:"maximum"`
	Average     float64          `json:"average"`
	Count       int              `json:"count"`
}

// Summary returns the aggregation summary if r was produced by aggregation.
func (r Record) Summary() (AggregationSummary, bool) {
	s, ok := r.Metadata[MetaAggregation].(AggregationSummary)
	return s, ok
}
