// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package ingest

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/healthsync/internal/models"
	"github.com/tomtom215/healthsync/internal/resilience"
)

// Withings measure type codes.
const (
	withingsWeight      = 1
	withingsDiastolic   = 9
	withingsSystolic    = 10
	withingsHeartPulse  = 11
	withingsSpO2        = 54
	withingsTemperature = 71
)

// Withings reports errors in the body status, not the HTTP status.
const (
	withingsOK           = 0
	withingsInvalidParam = 503
	withingsRateLimited  = 601
)

var withingsAuthStatuses = map[int]bool{100: true, 101: true, 102: true, 200: true, 401: true}

var withingsMeasureTypes = map[models.DataType][]int{
	models.DataTypeHeartRate:     {withingsHeartPulse},
	models.DataTypeWeight:        {withingsWeight},
	models.DataTypeBloodPressure: {withingsDiastolic, withingsSystolic},
	models.DataTypeSpO2:          {withingsSpO2},
	models.DataTypeTemperature:   {withingsTemperature},
}

type withingsAdapter struct{}

func (withingsAdapter) supported() []models.DataType {
	return []models.DataType{
		models.DataTypeHeartRate,
		models.DataTypeSteps,
		models.DataTypeWeight,
		models.DataTypeBloodPressure,
		models.DataTypeSpO2,
		models.DataTypeTemperature,
	}
}

func (withingsAdapter) newRequest(ctx context.Context, baseURL string, q query) (*http.Request, error) {
	form := url.Values{}
	var path string
	if q.dataType == models.DataTypeSteps {
		path = "/v2/measure"
		form.Set("action", "getactivity")
		form.Set("startdateymd", q.window.Start.Format(time.DateOnly))
		form.Set("enddateymd", q.window.End.Format(time.DateOnly))
		form.Set("data_fields", "steps")
	} else {
		path = "/measure"
		form.Set("action", "getmeas")
		codes := withingsMeasureTypes[q.dataType]
		parts := make([]string, len(codes))
		for i, c := range codes {
			parts[i] = strconv.Itoa(c)
		}
		form.Set("meastypes", strings.Join(parts, ","))
		form.Set("category", "1")
		form.Set("startdate", strconv.FormatInt(q.window.Start.Unix(), 10))
		form.Set("enddate", strconv.FormatInt(q.window.End.Unix(), 10))
	}
	if q.cursor != "" {
		form.Set("offset", q.cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

type withingsEnvelope struct {
	Error  string          `json:"error"`
	Body   json.RawMessage `json:"body"`
	Status int             `json:"status"`
}

// withingsPaging is embedded in list bodies. more is 0/1 on getmeas and a
// boolean on getactivity.
type withingsPaging struct {
	More   json.RawMessage `json:"more"`
	Offset int64           `json:"offset"`
}

// cursor returns the offset of the next page, or "" on the last page.
func (p withingsPaging) cursor() string {
	switch strings.TrimSpace(string(p.More)) {
	case "", "0", "false", "null":
		return ""
	}
	return strconv.FormatInt(p.Offset, 10)
}

type withingsMeasureBody struct {
	MeasureGroups []withingsGroup `json:"measuregrps"`
	withingsPaging
}

type withingsGroup struct {
	DeviceID string            `json:"deviceid"`
	Measures []withingsMeasure `json:"measures"`
	GroupID  int64             `json:"grpid"`
	Date     int64             `json:"date"`
	Category int               `json:"category"`
}

type withingsMeasure struct {
	Value int64 `json:"value"`
	Type  int   `json:"type"`
	Unit  int   `json:"unit"`
}

// scaled applies the power-of-ten exponent Withings encodes values with.
func (m withingsMeasure) scaled() float64 {
	return float64(m.Value) * math.Pow10(m.Unit)
}

type withingsActivityBody struct {
	Activities []struct {
		Date     string `json:"date"`
		DeviceID string `json:"deviceid"`
		Steps    int64  `json:"steps"`
	} `json:"activities"`
	withingsPaging
}

func (withingsAdapter) decode(q query, body []byte) (page, error) {
	var env withingsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return page{}, decodeError(models.ProviderWithings, err)
	}
	if err := withingsStatusError(env); err != nil {
		return page{}, err
	}

	if q.dataType == models.DataTypeSteps {
		return decodeWithingsActivity(env.Body)
	}

	var mb withingsMeasureBody
	if err := json.Unmarshal(env.Body, &mb); err != nil {
		return page{}, decodeError(models.ProviderWithings, err)
	}
	return page{records: withingsMeasureRecords(q.dataType, mb.MeasureGroups), cursor: mb.cursor()}, nil
}

func withingsMeasureRecords(dt models.DataType, groups []withingsGroup) []models.Record {
	var out []models.Record
	for _, g := range groups {
		rec := models.Record{
			Timestamp: time.Unix(g.Date, 0).UTC(),
			DeviceID:  g.DeviceID,
			Metadata:  map[string]any{models.MetaSource: withingsSource(g.Category)},
		}
		if dt == models.DataTypeBloodPressure {
			var sys, dia float64
			var haveSys, haveDia bool
			for _, m := range g.Measures {
				switch m.Type {
				case withingsSystolic:
					sys, haveSys = m.scaled(), true
				case withingsDiastolic:
					dia, haveDia = m.scaled(), true
				}
			}
			if !haveSys || !haveDia {
				continue
			}
			rec.Value = models.Structured(map[string]any{"systolic": sys, "diastolic": dia})
			out = append(out, rec)
			continue
		}

		want := withingsMeasureTypes[dt][0]
		for _, m := range g.Measures {
			if m.Type != want {
				continue
			}
			r := rec
			r.Value = models.Scalar(m.scaled())
			out = append(out, r)
		}
	}
	return out
}

func decodeWithingsActivity(raw json.RawMessage) (page, error) {
	var ab withingsActivityBody
	if err := json.Unmarshal(raw, &ab); err != nil {
		return page{}, decodeError(models.ProviderWithings, err)
	}
	out := make([]models.Record, 0, len(ab.Activities))
	for _, a := range ab.Activities {
		day, err := time.Parse(time.DateOnly, a.Date)
		if err != nil {
			return page{}, decodeError(models.ProviderWithings, err)
		}
		out = append(out, models.Record{
			Timestamp: day.UTC(),
			DeviceID:  a.DeviceID,
			Value:     models.Scalar(float64(a.Steps)),
			Metadata:  map[string]any{models.MetaSource: "device"},
		})
	}
	return page{records: out, cursor: ab.cursor()}, nil
}

func withingsStatusError(env withingsEnvelope) error {
	switch {
	case env.Status == withingsOK:
		return nil
	case withingsAuthStatuses[env.Status]:
		return fmt.Errorf("%w: withings status %d: %s", resilience.ErrAuthFailed, env.Status, env.Error)
	case env.Status == withingsRateLimited:
		return fmt.Errorf("%w: withings status %d", resilience.ErrRateLimited, env.Status)
	case env.Status == withingsInvalidParam:
		return fmt.Errorf("%w: withings status %d: %s", resilience.ErrInvalidPayload, env.Status, env.Error)
	default:
		return fmt.Errorf("withings api status %d: %s", env.Status, env.Error)
	}
}

// withingsSource maps the measure-group category: 1 is a device reading,
// 2 a user-entered objective.
func withingsSource(category int) string {
	if category == 1 {
		return "device"
	}
	return "user"
}
