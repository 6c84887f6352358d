// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package fhir

import "github.com/tomtom215/healthsync/internal/models"

// Terminology systems.
const (
	SystemLOINC       = "http://loinc.org"
	SystemUCUM        = "http://unitsofmeasure.org"
	SystemMDC         = "urn:oid:2.16.840.1.113883.6.24"
	SystemCategory    = "http://terminology.hl7.org/CodeSystem/observation-category"
	SystemProviderTag = "https://open-health-exchange.com/provider"
	SystemSourceTag   = "https://open-health-exchange.com/measurement-source"
	SystemQualityTag  = "https://open-health-exchange.com/data-quality"
)

// Observation categories.
const (
	CategoryVitalSigns = "vital-signs"
	CategoryActivity   = "activity"
	CategoryProcedure  = "procedure"
)

// LOINC codes used outside the per-type table.
const (
	loincECGPanel   = "34534-8"
	loincECGImpress = "8601-7"
	loincHeartRate  = "8867-4"
	loincSystolic   = "8480-6"
	loincDiastolic  = "8462-4"
	mdcLeadI        = "131329"
	mdcLeadUnknown  = "131328"
)

type coding struct {
	code     string
	display  string
	category string
}

var observationCodes = map[models.DataType]coding{
	models.DataTypeHeartRate:     {"8867-4", "Heart rate", CategoryVitalSigns},
	models.DataTypeSteps:         {"55423-8", "Number of steps", CategoryActivity},
	models.DataTypeRRIntervals:   {"8637-1", "R-R interval", CategoryVitalSigns},
	models.DataTypeECG:           {loincECGPanel, "12 lead EKG panel", CategoryProcedure},
	models.DataTypeBloodPressure: {"85354-9", "Blood pressure panel", CategoryVitalSigns},
	models.DataTypeWeight:        {"29463-7", "Body weight", CategoryVitalSigns},
	models.DataTypeTemperature:   {"8310-5", "Body temperature", CategoryVitalSigns},
	models.DataTypeSpO2:          {"59408-5", "Oxygen saturation by pulse oximetry", CategoryVitalSigns},
}

// ucum maps record units to UCUM codes.
var ucum = map[string]string{
	"bpm":   "/min",
	"steps": "{steps}",
	"ms":    "ms",
	"mmHg":  "mm[Hg]",
	"kg":    "kg",
	"Cel":   "Cel",
	"%":     "%",
	"mV":    "mV",
}

// LOINCCode returns the Observation code for dt.
func LOINCCode(dt models.DataType) (string, bool) {
	c, ok := observationCodes[dt]
	return c.code, ok
}

// Category returns the observation category for dt.
func Category(dt models.DataType) string {
	if c, ok := observationCodes[dt]; ok {
		return c.category
	}
	return "survey"
}

func ucumCode(unit string) string {
	if code, ok := ucum[unit]; ok {
		return code
	}
	return unit
}
