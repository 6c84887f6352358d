// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tomtom215/healthsync/internal/models"
	"github.com/tomtom215/healthsync/internal/resilience"
)

// Sink records sync outcomes, retry events and breaker events. It satisfies
// the orchestrator's MetricsSink and the resilience observers. All methods
// are non-blocking.
type Sink struct {
	syncRuns          *prometheus.CounterVec
	syncDuration      *prometheus.HistogramVec
	recordsProcessed  *prometheus.CounterVec
	dataTypeResults   *prometheus.CounterVec
	recordsPublished  *prometheus.CounterVec
	syncErrors        *prometheus.CounterVec
	incompleteLinks   *prometheus.CounterVec
	retryAttempts     *prometheus.CounterVec
	retryExhausted    *prometheus.CounterVec
	breakerState      *prometheus.GaugeVec
	breakerTransition *prometheus.CounterVec
	breakerRequests   *prometheus.CounterVec
	breakerFailures   *prometheus.GaugeVec
}

var (
	_ resilience.BreakerObserver = (*Sink)(nil)
	_ resilience.RetryObserver   = (*Sink)(nil)
)

// NewSink registers the sync collectors on reg. A nil reg uses the default
// registerer.
func NewSink(reg prometheus.Registerer) *Sink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Sink{
		syncRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healthsync_sync_runs_total",
			Help: "Sync invocations by provider, trigger and overall status",
		}, []string{"provider", "trigger", "status"}),

		syncDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "healthsync_sync_duration_seconds",
			Help:    "Wall time of sync invocations",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"provider", "trigger"}),

		recordsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healthsync_records_processed_total",
			Help: "Records fetched by data types that completed",
		}, []string{"provider"}),

		dataTypeResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healthsync_data_type_results_total",
			Help: "Per data type results by final status",
		}, []string{"provider", "data_type", "status"}),

		recordsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healthsync_records_published_total",
			Help: "Resources accepted by the record server",
		}, []string{"provider", "data_type"}),

		syncErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healthsync_sync_errors_total",
			Help: "Data type failures by stage and error kind",
		}, []string{"provider", "stage", "kind"}),

		incompleteLinks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healthsync_linked_data_incomplete_total",
			Help: "Records published without their companion data",
		}, []string{"provider", "data_type"}),

		retryAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healthsync_retry_attempts_total",
			Help: "Retries scheduled by operation and error kind",
		}, []string{"operation", "kind"}),

		retryExhausted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healthsync_retry_exhausted_total",
			Help: "Operations that ran out of retries while still retryable",
		}, []string{"operation", "kind"}),

		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "healthsync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),

		breakerTransition: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healthsync_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		}, []string{"name", "from", "to"}),

		breakerRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healthsync_circuit_breaker_requests_total",
			Help: "Requests through circuit breakers by result",
		}, []string{"name", "result"}),

		breakerFailures: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "healthsync_circuit_breaker_consecutive_failures",
			Help: "Current consecutive failures per circuit breaker",
		}, []string{"name"}),
	}
}

// RecordOutcome records a finished invocation.
func (s *Sink) RecordOutcome(o models.SyncOutcome) {
	provider, trigger := string(o.Provider), string(o.Trigger)
	s.syncRuns.WithLabelValues(provider, trigger, string(o.Status)).Inc()
	s.syncDuration.WithLabelValues(provider, trigger).Observe(o.Duration.Seconds())
	s.recordsProcessed.WithLabelValues(provider).Add(float64(o.RecordsProcessed))

	for _, r := range o.Results {
		s.dataTypeResults.WithLabelValues(provider, string(r.DataType), string(r.Status)).Inc()
		if r.RecordsPublished > 0 {
			s.recordsPublished.WithLabelValues(provider, string(r.DataType)).Add(float64(r.RecordsPublished))
		}
	}
	for _, e := range o.Errors {
		s.syncErrors.WithLabelValues(provider, string(e.Stage), e.Kind).Inc()
	}
}

// RecordIncompleteLinks counts records missing companion data.
func (s *Sink) RecordIncompleteLinks(provider models.Provider, dataType models.DataType, n int) {
	if n > 0 {
		s.incompleteLinks.WithLabelValues(string(provider), string(dataType)).Add(float64(n))
	}
}

// RetryAttempt implements resilience.RetryObserver.
func (s *Sink) RetryAttempt(operation, kind string) {
	s.retryAttempts.WithLabelValues(operation, kind).Inc()
}

// RetryExhausted implements resilience.RetryObserver.
func (s *Sink) RetryExhausted(operation, kind string) {
	s.retryExhausted.WithLabelValues(operation, kind).Inc()
}

// BreakerRegistered implements resilience.BreakerObserver.
func (s *Sink) BreakerRegistered(name string) {
	s.breakerState.WithLabelValues(name).Set(resilience.StateValue(resilience.StateClosed))
	s.breakerFailures.WithLabelValues(name).Set(0)
}

// BreakerStateChanged implements resilience.BreakerObserver.
func (s *Sink) BreakerStateChanged(name, from, to string) {
	s.breakerState.WithLabelValues(name).Set(resilience.StateValue(to))
	s.breakerTransition.WithLabelValues(name, from, to).Inc()
}

// BreakerRequest implements resilience.BreakerObserver.
func (s *Sink) BreakerRequest(name, result string) {
	s.breakerRequests.WithLabelValues(name, result).Inc()
}

// BreakerFailures implements resilience.BreakerObserver.
func (s *Sink) BreakerFailures(name string, consecutive uint32) {
	s.breakerFailures.WithLabelValues(name).Set(float64(consecutive))
}
