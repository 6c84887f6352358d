// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package webhook

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/healthsync/internal/models"
	"github.com/tomtom215/healthsync/internal/validation"
)

// ErrInvalidPayload is returned for notification bodies that cannot be
// parsed or name no valid user.
var ErrInvalidPayload = errors.New("invalid webhook payload")

var withingsAppli = map[int][]models.DataType{
	1:  {models.DataTypeWeight},
	2:  {models.DataTypeTemperature},
	4:  {models.DataTypeBloodPressure, models.DataTypeHeartRate, models.DataTypeSpO2},
	16: {models.DataTypeSteps},
}

var fitbitCollections = map[string][]models.DataType{
	"activities": {models.DataTypeHeartRate, models.DataTypeSteps, models.DataTypeECG},
	"body":       {models.DataTypeWeight},
	"sleep":      {models.DataTypeRRIntervals, models.DataTypeSpO2},
}

// Notification is one user's announcement of new provider data.
type Notification struct {
	// Window is the provider-reported range of the new data, if any.
	Window    *models.DateRange `json:"window,omitempty"`
	UserID    string            `json:"user_id" validate:"required,alphanum,max=64"`
	Provider  models.Provider   `json:"provider" validate:"required,provider"`
	DataTypes []models.DataType `json:"data_types" validate:"required,min=1,dive,datatype"`
}

// Job builds the sync job for n. Notifications with a window become
// manual jobs over that window; the rest are realtime jobs over the
// strategy's realtime lookback.
func (n Notification) Job(aggregation models.AggregationLevel) models.SyncJob {
	trigger := models.TriggerRealtime
	if n.Window != nil {
		trigger = models.TriggerManual
	}
	return models.SyncJob{
		Window: n.Window,
		Config: models.HealthSyncConfig{
			UserID:           n.UserID,
			Aggregation:      aggregation,
			Frequency:        models.FrequencyRealtime,
			EnabledDataTypes: slices.Clone(n.DataTypes),
		},
		UserID:   n.UserID,
		Provider: n.Provider,
		Trigger:  trigger,
	}
}

// ParseWithings decodes a Withings notification. Withings posts form
// fields; JSON objects are accepted too. An appli with no mapped data
// types yields no notifications.
func ParseWithings(body []byte) ([]Notification, error) {
	fields, err := withingsFields(body)
	if err != nil {
		return nil, err
	}

	appli, err := strconv.Atoi(fields["appli"])
	if err != nil {
		return nil, fmt.Errorf("%w: appli %q is not a number", ErrInvalidPayload, fields["appli"])
	}
	types, ok := withingsAppli[appli]
	if !ok {
		return nil, nil
	}

	n := Notification{
		UserID:    fields["userid"],
		Provider:  models.ProviderWithings,
		DataTypes: slices.Clone(types),
	}
	start, end := fields["startdate"], fields["enddate"]
	if start != "" && end != "" {
		window, err := withingsWindow(start, end)
		if err != nil {
			return nil, err
		}
		n.Window = &window
	}
	if err := validation.Validate(n); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return []Notification{n}, nil
}

func withingsFields(body []byte) (map[string]string, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}

	out := make(map[string]string)
	if body[0] == '{' {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		// Values arrive as numbers or strings.
		for k, v := range raw {
			var s string
			if json.Unmarshal(v, &s) == nil {
				out[k] = s
			} else {
				out[k] = string(v)
			}
		}
		return out, nil
	}

	q, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	for k := range q {
		out[k] = q.Get(k)
	}
	return out, nil
}

// withingsWindow converts the inclusive unix-second bounds Withings sends
// into a half-open range.
func withingsWindow(start, end string) (models.DateRange, error) {
	s, err := strconv.ParseInt(start, 10, 64)
	if err != nil {
		return models.DateRange{}, fmt.Errorf("%w: startdate %q", ErrInvalidPayload, start)
	}
	e, err := strconv.ParseInt(end, 10, 64)
	if err != nil {
		return models.DateRange{}, fmt.Errorf("%w: enddate %q", ErrInvalidPayload, end)
	}
	window, err := models.NewDateRange(time.Unix(s, 0), time.Unix(e, 0).Add(time.Second))
	if err != nil {
		return models.DateRange{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return window, nil
}

type fitbitNotification struct {
	CollectionType string `json:"collectionType"`
	Date           string `json:"date"`
	OwnerID        string `json:"ownerId"`
	OwnerType      string `json:"ownerType"`
	SubscriptionID string `json:"subscriptionId"`
}

// ParseFitbit decodes a Fitbit notification batch. Notifications for the
// same owner are merged into one, in first-seen order. Unmapped
// collections, including userRevokedAccess, are dropped.
func ParseFitbit(body []byte) ([]Notification, error) {
	var batch []fitbitNotification
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	var out []Notification
	index := make(map[string]int)
	for _, item := range batch {
		types, ok := fitbitCollections[item.CollectionType]
		if !ok {
			continue
		}
		i, seen := index[item.OwnerID]
		if !seen {
			i = len(out)
			index[item.OwnerID] = i
			out = append(out, Notification{UserID: item.OwnerID, Provider: models.ProviderFitbit})
		}
		for _, dt := range types {
			if !slices.Contains(out[i].DataTypes, dt) {
				out[i].DataTypes = append(out[i].DataTypes, dt)
			}
		}
	}

	for _, n := range out {
		if err := validation.Validate(n); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	}
	return out, nil
}
