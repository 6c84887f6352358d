// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package models

import (
	"time"
)

// APIResponse is the envelope returned by every admin endpoint.
//
// Status is "success" or "error". On error, Error is populated and Data is nil.
//
//	{
//	  "status": "success",
//	  "data": {"fitbit_api": {"state": "closed", "failure_count": 0}},
//	  "metadata": {"timestamp": "2026-03-01T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response timing.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// BreakerSnapshot is the observable state of one circuit breaker.
type BreakerSnapshot struct {
	OpenedAt      *time.Time `json:"opened_at"`
	LastFailureAt *time.Time `json:"last_failure_at"`
	Name          string     `json:"name"`
	State         string     `json:"state"`
	FailureCount  uint32     `json:"failure_count"`
	SuccessCount  uint32     `json:"success_count"`
	Requests      uint32     `json:"requests"`
}

// HealthStatus is returned by the liveness endpoint.
type HealthStatus struct {
	Timestamp    time.Time         `json:"timestamp"`
	Breakers     map[string]string `json:"breakers,omitempty"`
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Uptime       float64           `json:"uptime_seconds"`
	CheckpointDB bool              `json:"checkpoint_db"`
}
