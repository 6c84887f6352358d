// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/healthsync/internal/models"
)

// Fitbit caps ECG list pages at 10 readings.
const fitbitECGPageLimit = 10

const fitbitECGPath = "/1/user/-/ecg/list.json"

// fitbitLocalTime is the layout of Fitbit timestamps. Fitbit reports times in
// the user's profile timezone without an offset; they are treated as UTC.
const fitbitLocalTime = "2006-01-02T15:04:05"

var fitbitRangePaths = map[models.DataType]string{
	models.DataTypeHeartRate:   "/1/user/-/activities/heart/date/%s/%s.json",
	models.DataTypeSteps:       "/1/user/-/activities/steps/date/%s/%s.json",
	models.DataTypeWeight:      "/1/user/-/body/log/weight/date/%s/%s.json",
	models.DataTypeRRIntervals: "/1/user/-/hrv/date/%s/%s.json",
	models.DataTypeSpO2:        "/1/user/-/spo2/date/%s/%s.json",
}

type fitbitAdapter struct{}

func (fitbitAdapter) supported() []models.DataType {
	return []models.DataType{
		models.DataTypeHeartRate,
		models.DataTypeSteps,
		models.DataTypeWeight,
		models.DataTypeECG,
		models.DataTypeRRIntervals,
		models.DataTypeSpO2,
	}
}

func (fitbitAdapter) newRequest(ctx context.Context, baseURL string, q query) (*http.Request, error) {
	var target string
	if q.dataType == models.DataTypeECG {
		if q.cursor != "" {
			return http.NewRequestWithContext(ctx, http.MethodGet, baseURL+fitbitECGPath+"?"+q.cursor, http.NoBody)
		}
		limit := q.batchSize
		if limit <= 0 || limit > fitbitECGPageLimit {
			limit = fitbitECGPageLimit
		}
		params := url.Values{}
		params.Set("afterDate", q.window.Start.Format(fitbitLocalTime))
		params.Set("sort", "asc")
		params.Set("limit", strconv.Itoa(limit))
		params.Set("offset", "0")
		target = baseURL + fitbitECGPath + "?" + params.Encode()
	} else {
		target = baseURL + fmt.Sprintf(fitbitRangePaths[q.dataType],
			q.window.Start.Format(time.DateOnly), q.window.End.Format(time.DateOnly))
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
}

type fitbitHeartDay struct {
	DateTime string `json:"dateTime"`
	Value    struct {
		RestingHeartRate float64 `json:"restingHeartRate"`
	} `json:"value"`
}

type fitbitStepsDay struct {
	DateTime string `json:"dateTime"`
	Value    string `json:"value"`
}

type fitbitWeightLog struct {
	Date   string  `json:"date"`
	Time   string  `json:"time"`
	Source string  `json:"source"`
	Weight float64 `json:"weight"`
	LogID  int64   `json:"logId"`
}

type fitbitHRVDay struct {
	DateTime string `json:"dateTime"`
	Value    struct {
		DailyRmssd float64 `json:"dailyRmssd"`
		DeepRmssd  float64 `json:"deepRmssd"`
	} `json:"value"`
}

type fitbitSpO2Day struct {
	DateTime string `json:"dateTime"`
	Value    struct {
		Avg float64 `json:"avg"`
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	} `json:"value"`
}

type fitbitECGReading struct {
	StartTime            string    `json:"startTime"`
	ResultClassification string    `json:"resultClassification"`
	DeviceName           string    `json:"deviceName"`
	WaveformSamples      []float64 `json:"waveformSamples"`
	AverageHeartRate     float64   `json:"averageHeartRate"`
	SamplingFrequencyHz  float64   `json:"samplingFrequencyHz"`
	ScalingFactor        float64   `json:"scalingFactor"`
	LeadNumber           int       `json:"leadNumber"`
}

// fitbitPagination is the ECG list paging block. next is an absolute URL,
// empty on the last page.
type fitbitPagination struct {
	Next string `json:"next"`
}

func (fitbitAdapter) decode(q query, body []byte) (page, error) {
	if q.dataType == models.DataTypeECG {
		return decodeFitbitECG(q.window, body)
	}
	records, err := decodeFitbitRange(q.dataType, body)
	if err != nil {
		return page{}, err
	}
	return page{records: records}, nil
}

// decodeFitbitECG decodes one ascending ECG list page. Readings at or after
// the window end are dropped and end the paging. Only the query of the next
// link is followed, so the bearer token never leaves the configured host.
func decodeFitbitECG(window models.DateRange, body []byte) (page, error) {
	var payload struct {
		Readings   []fitbitECGReading `json:"ecgReadings"`
		Pagination fitbitPagination   `json:"pagination"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return page{}, decodeError(models.ProviderFitbit, err)
	}

	p := page{records: make([]models.Record, 0, len(payload.Readings))}
	for _, r := range payload.Readings {
		at, err := parseFitbitTime(r.StartTime)
		if err != nil {
			return page{}, decodeError(models.ProviderFitbit, err)
		}
		if !at.Before(window.End) {
			return p, nil
		}
		samples := make([]any, len(r.WaveformSamples))
		for i, s := range r.WaveformSamples {
			samples[i] = s
		}
		p.records = append(p.records, models.Record{
			Timestamp: at,
			DeviceID:  r.DeviceName,
			Value: models.Structured(map[string]any{
				"classification":      r.ResultClassification,
				"average_heart_rate":  r.AverageHeartRate,
				"sampling_frequency":  r.SamplingFrequencyHz,
				"scaling_factor":      r.ScalingFactor,
				"lead_number":         r.LeadNumber,
				"waveform":            samples,
				"number_of_waveforms": len(samples),
			}),
			Metadata: map[string]any{models.MetaSource: "device"},
		})
	}

	if payload.Pagination.Next != "" {
		next, err := url.Parse(payload.Pagination.Next)
		if err != nil {
			return page{}, decodeError(models.ProviderFitbit, err)
		}
		p.cursor = next.RawQuery
	}
	return p, nil
}

func decodeFitbitRange(dt models.DataType, body []byte) ([]models.Record, error) {
	switch dt {
	case models.DataTypeHeartRate:
		var payload struct {
			Days []fitbitHeartDay `json:"activities-heart"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, decodeError(models.ProviderFitbit, err)
		}
		var out []models.Record
		for _, d := range payload.Days {
			if d.Value.RestingHeartRate == 0 {
				continue
			}
			rec, err := fitbitDaily(d.DateTime, models.Scalar(d.Value.RestingHeartRate))
			if err != nil {
				return nil, err
			}
			out = append(out, rec.WithMetadata("heart_rate_type", "resting"))
		}
		return out, nil

	case models.DataTypeSteps:
		var payload struct {
			Days []fitbitStepsDay `json:"activities-steps"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, decodeError(models.ProviderFitbit, err)
		}
		out := make([]models.Record, 0, len(payload.Days))
		for _, d := range payload.Days {
			steps, err := strconv.ParseFloat(d.Value, 64)
			if err != nil {
				return nil, decodeError(models.ProviderFitbit, err)
			}
			rec, err := fitbitDaily(d.DateTime, models.Scalar(steps))
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
		return out, nil

	case models.DataTypeWeight:
		var payload struct {
			Logs []fitbitWeightLog `json:"weight"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, decodeError(models.ProviderFitbit, err)
		}
		out := make([]models.Record, 0, len(payload.Logs))
		for _, l := range payload.Logs {
			at, err := time.Parse(fitbitLocalTime, l.Date+"T"+l.Time)
			if err != nil {
				return nil, decodeError(models.ProviderFitbit, err)
			}
			source := "device"
			if l.Source == "API" || l.Source == "Web" {
				source = "user"
			}
			out = append(out, models.Record{
				Timestamp: at.UTC(),
				Value:     models.Scalar(l.Weight),
				Metadata:  map[string]any{models.MetaSource: source, "log_id": l.LogID},
			})
		}
		return out, nil

	case models.DataTypeRRIntervals:
		var payload struct {
			Days []fitbitHRVDay `json:"hrv"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, decodeError(models.ProviderFitbit, err)
		}
		out := make([]models.Record, 0, len(payload.Days))
		for _, d := range payload.Days {
			rec, err := fitbitDaily(d.DateTime, models.Scalar(d.Value.DailyRmssd))
			if err != nil {
				return nil, err
			}
			out = append(out, rec.WithMetadata("deep_rmssd", d.Value.DeepRmssd))
		}
		return out, nil

	case models.DataTypeSpO2:
		var days []fitbitSpO2Day
		if err := json.Unmarshal(body, &days); err != nil {
			return nil, decodeError(models.ProviderFitbit, err)
		}
		out := make([]models.Record, 0, len(days))
		for _, d := range days {
			rec, err := fitbitDaily(d.DateTime, models.Scalar(d.Value.Avg))
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: fitbit/%s", ErrUnsupportedDataType, dt)
	}
}

// fitbitDaily builds a record for a day-granularity summary stamped at
// midnight UTC.
func fitbitDaily(date string, v models.Value) (models.Record, error) {
	day, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return models.Record{}, decodeError(models.ProviderFitbit, err)
	}
	return models.Record{
		Timestamp: day.UTC(),
		Value:     v,
		Metadata:  map[string]any{models.MetaSource: "device"},
	}, nil
}

// parseFitbitTime accepts timestamps with or without fractional seconds.
func parseFitbitTime(s string) (time.Time, error) {
	for _, layout := range []string{fitbitLocalTime + ".000", fitbitLocalTime, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized fitbit time %q", s)
}
