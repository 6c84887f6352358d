// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package ingest

import "github.com/tomtom215/healthsync/internal/models"

// Canonical units attached to fetched records. Provider payloads are
// converted to these before they leave the package.
var units = map[models.DataType]string{
	models.DataTypeHeartRate:     "bpm",
	models.DataTypeSteps:         "steps",
	models.DataTypeRRIntervals:   "ms",
	models.DataTypeECG:           "bpm",
	models.DataTypeBloodPressure: "mmHg",
	models.DataTypeWeight:        "kg",
	models.DataTypeTemperature:   "Cel",
	models.DataTypeSpO2:          "%",
}

// UnitFor returns the canonical unit of dt, or "" if it has none.
func UnitFor(dt models.DataType) string {
	return units[dt]
}
