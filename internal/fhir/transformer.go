// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package fhir

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/healthsync/internal/models"
)

// ErrUnmappable is returned for records that cannot be expressed as an
// Observation.
var ErrUnmappable = errors.New("record cannot be mapped to an observation")

// DefaultPatientReference is the subject reference template. {user_id} is
// replaced with the record's user.
const DefaultPatientReference = "Patient/{user_id}"

// Transformer maps records to FHIR R5 Observation resources. It is
// stateless and safe for concurrent use.
type Transformer struct {
	patientRef string
}

// NewTransformer returns a Transformer. An empty template uses
// DefaultPatientReference.
func NewTransformer(patientRefTemplate string) *Transformer {
	if patientRefTemplate == "" {
		patientRefTemplate = DefaultPatientReference
	}
	return &Transformer{patientRef: patientRefTemplate}
}

// Transform converts every record into one Observation. The first record
// that cannot be mapped aborts the batch.
func (t *Transformer) Transform(ctx context.Context, records []models.Record, _ models.HealthSyncConfig) ([]models.Resource, error) {
	out := make([]models.Resource, 0, len(records))
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		obs, err := t.Observation(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d (%s at %s): %w", i, rec.DataType, rec.Timestamp.Format(time.RFC3339), err)
		}
		out = append(out, obs)
	}
	return out, nil
}

// Identifier returns the secondary identifier used for downstream
// deduplication: system https://api.{provider}.com/health-data and value
// {data_type}_{timestamp}_{user_id}.
func Identifier(rec models.Record) (system, value string) {
	system = "https://api." + string(rec.Provider) + ".com/health-data"
	value = string(rec.DataType) + "_" + rec.Timestamp.UTC().Format(time.RFC3339) + "_" + rec.UserID
	return system, value
}

// DeviceIdentifier returns the identifier of the provider device that
// produced a reading: system https://api.{provider}.com/device-id and the
// provider's device id as value. Observations reference the device
// logically through it, so no Device resource has to exist on the server.
func DeviceIdentifier(provider models.Provider, deviceID string) (system, value string) {
	return "https://api." + string(provider) + ".com/device-id", deviceID
}

// Observation builds the Observation for one record.
func (t *Transformer) Observation(rec models.Record) (models.Resource, error) {
	code, ok := observationCodes[rec.DataType]
	if !ok {
		return nil, fmt.Errorf("%w: no LOINC code for %q", ErrUnmappable, rec.DataType)
	}

	system, value := Identifier(rec)
	obs := models.Resource{
		"resourceType": "Observation",
		"status":       "final",
		"category": []any{map[string]any{
			"coding": []any{map[string]any{
				"system":  SystemCategory,
				"code":    code.category,
				"display": categoryDisplay(code.category),
			}},
		}},
		"code":    codeableConcept(SystemLOINC, code.code, code.display),
		"subject": map[string]any{"reference": strings.ReplaceAll(t.patientRef, "{user_id}", rec.UserID)},
		"identifier": []any{map[string]any{
			"use":    "secondary",
			"system": system,
			"value":  value,
		}},
		"meta": map[string]any{
			"source": "#" + string(rec.Provider),
			"tag":    tags(rec),
		},
	}

	if s, ok := rec.Summary(); ok {
		obs["effectivePeriod"] = map[string]any{
			"start": s.BucketStart.UTC().Format(time.RFC3339),
			"end":   s.BucketEnd.UTC().Format(time.RFC3339),
		}
	} else {
		obs["effectiveDateTime"] = rec.Timestamp.UTC().Format(time.RFC3339)
	}
	if rec.DeviceID != "" {
		system, value := DeviceIdentifier(rec.Provider, rec.DeviceID)
		obs["device"] = map[string]any{
			"identifier": map[string]any{"system": system, "value": value},
			"display":    rec.DeviceID,
		}
	}

	var err error
	switch rec.DataType {
	case models.DataTypeBloodPressure:
		err = bloodPressure(obs, rec)
	case models.DataTypeECG:
		err = ecg(obs, rec)
	default:
		err = scalar(obs, rec)
	}
	if err != nil {
		return nil, err
	}
	return obs, nil
}

func scalar(obs models.Resource, rec models.Record) error {
	v, ok := rec.Value.Float()
	if !ok {
		return fmt.Errorf("%w: %s value is not numeric", ErrUnmappable, rec.DataType)
	}
	obs["valueQuantity"] = quantity(v, rec.Unit)

	if s, ok := rec.Summary(); ok {
		obs["component"] = []any{
			summaryComponent("minimum", s.Minimum, rec.Unit),
			summaryComponent("maximum", s.Maximum, rec.Unit),
			map[string]any{
				"code":         map[string]any{"text": "count"},
				"valueInteger": s.Count,
			},
		}
	}
	return nil
}

func bloodPressure(obs models.Resource, rec models.Record) error {
	f := rec.Value.Fields()
	sys, okS := toFloat(f["systolic"])
	dia, okD := toFloat(f["diastolic"])
	if !okS || !okD {
		return fmt.Errorf("%w: blood pressure needs systolic and diastolic", ErrUnmappable)
	}
	obs["component"] = []any{
		map[string]any{
			"code":          codeableConcept(SystemLOINC, loincSystolic, "Systolic blood pressure"),
			"valueQuantity": quantity(sys, "mmHg"),
		},
		map[string]any{
			"code":          codeableConcept(SystemLOINC, loincDiastolic, "Diastolic blood pressure"),
			"valueQuantity": quantity(dia, "mmHg"),
		},
	}
	return nil
}

func ecg(obs models.Resource, rec models.Record) error {
	f := rec.Value.Fields()
	if f == nil {
		return fmt.Errorf("%w: ECG value must be structured", ErrUnmappable)
	}

	var components []any
	if c, ok := f["classification"].(string); ok && c != "" {
		components = append(components, map[string]any{
			"code":        codeableConcept(SystemLOINC, loincECGImpress, "EKG impression"),
			"valueString": c,
		})
	}
	if hr, ok := toFloat(f["average_heart_rate"]); ok {
		components = append(components, map[string]any{
			"code":          codeableConcept(SystemLOINC, loincHeartRate, "Heart rate"),
			"valueQuantity": quantity(hr, "bpm"),
		})
	}
	if samples, ok := f["waveform"].([]any); ok && len(samples) > 0 {
		components = append(components, waveformComponent(f, samples))
	}
	if len(components) == 0 {
		return fmt.Errorf("%w: ECG record carries no classification, rate or waveform", ErrUnmappable)
	}
	obs["component"] = components
	return nil
}

func waveformComponent(f map[string]any, samples []any) map[string]any {
	lead, _ := toFloat(f["lead_number"])
	leadCode, leadDisplay := mdcLeadUnknown, "MDC_ECG_ELEC_POTL"
	if lead == 1 {
		leadCode, leadDisplay = mdcLeadI, "MDC_ECG_ELEC_POTL_I"
	}

	hz, _ := toFloat(f["sampling_frequency"])
	period := 0.0
	if hz > 0 {
		period = 1000 / hz
	}
	factor, ok := toFloat(f["scaling_factor"])
	if !ok || factor <= 0 {
		factor = 1
	}

	data := make([]string, 0, len(samples))
	for _, s := range samples {
		if v, ok := toFloat(s); ok {
			data = append(data, strconv.FormatFloat(v, 'f', -1, 64))
		}
	}

	return map[string]any{
		"code": codeableConcept(SystemMDC, leadCode, leadDisplay),
		"valueSampledData": map[string]any{
			"origin":       map[string]any{"value": 0, "unit": "mV", "system": SystemUCUM, "code": "mV"},
			"interval":     period,
			"intervalUnit": "ms",
			"factor":       1 / factor,
			"dimensions":   1,
			"data":         strings.Join(data, " "),
		},
	}
}

func summaryComponent(text string, v float64, unit string) map[string]any {
	return map[string]any{
		"code":          map[string]any{"text": text},
		"valueQuantity": quantity(v, unit),
	}
}

func quantity(v float64, unit string) map[string]any {
	return map[string]any{
		"value":  v,
		"unit":   unit,
		"system": SystemUCUM,
		"code":   ucumCode(unit),
	}
}

func codeableConcept(system, code, display string) map[string]any {
	return map[string]any{
		"coding": []any{map[string]any{"system": system, "code": code, "display": display}},
		"text":   display,
	}
}

func tags(rec models.Record) []any {
	out := []any{map[string]any{
		"system":  SystemProviderTag,
		"code":    string(rec.Provider),
		"display": titleCase(string(rec.Provider)),
	}}
	if src, ok := rec.Meta(models.MetaSource); ok {
		if s, ok := src.(string); ok && s != "" {
			out = append(out, map[string]any{"system": SystemSourceTag, "code": s})
		}
	}
	if rec.LinkedDataIncomplete() {
		out = append(out, map[string]any{
			"system":  SystemQualityTag,
			"code":    "linked-data-incomplete",
			"display": "Linked data incomplete",
		})
	}
	if _, ok := rec.Summary(); ok {
		out = append(out, map[string]any{
			"system":  SystemQualityTag,
			"code":    "aggregated",
			"display": "Aggregated summary",
		})
	}
	return out
}

func categoryDisplay(category string) string {
	return titleCase(strings.ReplaceAll(category, "-", " "))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
