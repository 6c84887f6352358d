// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/healthsync/internal/events"
	"github.com/tomtom215/healthsync/internal/logging"
	"github.com/tomtom215/healthsync/internal/models"
	"github.com/tomtom215/healthsync/internal/resilience"
	"github.com/tomtom215/healthsync/internal/validation"
)

const maxJobBodyBytes = 1 << 20

// Health status values.
const (
	HealthOK        = "ok"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// Handler implements the admin endpoints.
type Handler struct {
	breakers    *resilience.Registry
	jobs        JobPublisher
	checkpoints CheckpointReader
	startTime   time.Time
	version     string
}

// NewHandler creates a Handler. Nil dependencies disable the endpoints
// that need them with 503.
func NewHandler(cfg Config, deps Deps) *Handler {
	return &Handler{
		breakers:    deps.Breakers,
		jobs:        deps.Jobs,
		checkpoints: deps.Checkpoints,
		startTime:   time.Now(),
		version:     cfg.Version,
	}
}

// HealthLive reports that the process is serving requests.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]string{"status": HealthOK})
}

// Health reports the checkpoint store and breaker states. Any open breaker
// degrades the status; an unreachable checkpoint store makes it unhealthy.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatus{
		Timestamp: time.Now().UTC(),
		Status:    HealthOK,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Seconds(),
	}

	if h.checkpoints != nil {
		if err := h.checkpoints.Ping(r.Context()); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("Checkpoint store health check failed")
		} else {
			status.CheckpointDB = true
		}
	}

	if h.breakers != nil {
		status.Breakers = make(map[string]string)
		for name, snap := range h.breakers.States() {
			status.Breakers[name] = snap.State
			if snap.State == resilience.StateOpen {
				status.Status = HealthDegraded
			}
		}
	}

	code := http.StatusOK
	if !status.CheckpointDB {
		status.Status = HealthUnhealthy
		code = http.StatusServiceUnavailable
	}
	respondSuccess(w, code, status)
}

// ListBreakers returns a snapshot of every registered breaker.
func (h *Handler) ListBreakers(w http.ResponseWriter, _ *http.Request) {
	if h.breakers == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "breaker registry unavailable", nil)
		return
	}
	respondSuccess(w, http.StatusOK, h.breakers.States())
}

// GetBreaker returns one breaker's snapshot.
func (h *Handler) GetBreaker(w http.ResponseWriter, r *http.Request) {
	if h.breakers == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "breaker registry unavailable", nil)
		return
	}
	name := chi.URLParam(r, "name")
	b, ok := h.breakers.Lookup(name)
	if !ok {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "unknown circuit breaker: "+name, nil)
		return
	}
	respondSuccess(w, http.StatusOK, b.Snapshot())
}

// OpenBreaker forces a breaker open.
func (h *Handler) OpenBreaker(w http.ResponseWriter, r *http.Request) {
	h.overrideBreaker(w, r, resilience.StateOpen)
}

// CloseBreaker forces a breaker closed and clears its counters.
func (h *Handler) CloseBreaker(w http.ResponseWriter, r *http.Request) {
	h.overrideBreaker(w, r, resilience.StateClosed)
}

func (h *Handler) overrideBreaker(w http.ResponseWriter, r *http.Request, target string) {
	if h.breakers == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "breaker registry unavailable", nil)
		return
	}
	name := chi.URLParam(r, "name")

	var err error
	if target == resilience.StateOpen {
		err = h.breakers.ForceOpen(name)
	} else {
		err = h.breakers.ForceClose(name)
	}
	if err != nil {
		if errors.Is(err, resilience.ErrUnknownBreaker) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "unknown circuit breaker: "+name, nil)
			return
		}
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "breaker override failed", err)
		return
	}

	logging.Ctx(r.Context()).Warn().
		Str("breaker", sanitizeLogValue(name)).
		Str("state", target).
		Str("remote_addr", r.RemoteAddr).
		Msg("Circuit breaker overridden via admin API")

	b, _ := h.breakers.Lookup(name)
	respondSuccess(w, http.StatusOK, b.Snapshot())
}

// ResetBreakers force-closes every breaker.
func (h *Handler) ResetBreakers(w http.ResponseWriter, r *http.Request) {
	if h.breakers == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "breaker registry unavailable", nil)
		return
	}
	h.breakers.ResetAll()
	logging.Ctx(r.Context()).Warn().Str("remote_addr", r.RemoteAddr).Msg("All circuit breakers reset via admin API")
	respondSuccess(w, http.StatusOK, h.breakers.States())
}

// EnqueueSyncJob validates a sync job and publishes it for the dispatcher.
// The job's config.user_id defaults to its user_id.
func (h *Handler) EnqueueSyncJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "job queue unavailable", nil)
		return
	}

	var job models.SyncJob
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJobBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&job); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: "+err.Error(), nil)
		return
	}

	// Server-assigned.
	job.ID = ""
	job.SubmittedAt = time.Time{}
	if job.Config.UserID == "" {
		job.Config.UserID = job.UserID
	}

	if verr := validation.ValidateStruct(job); verr != nil {
		respondErrorDetails(w, http.StatusBadRequest, ErrCodeValidationFailed, verr.Error(), nil, verr.Details())
		return
	}
	if job.Config.UserID != job.UserID {
		respondError(w, http.StatusBadRequest, ErrCodeValidationFailed, "config.user_id must match user_id", nil)
		return
	}
	if job.Window != nil {
		if job.Trigger != models.TriggerManual {
			respondError(w, http.StatusBadRequest, ErrCodeValidationFailed, "window is only accepted for manual triggers", nil)
			return
		}
		if _, err := models.NewDateRange(job.Window.Start, job.Window.End); err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeValidationFailed, err.Error(), nil)
			return
		}
	}

	published, err := h.jobs.PublishJob(r.Context(), job)
	if err != nil {
		if errors.Is(err, events.ErrClosed) {
			respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "job queue is shutting down", err)
			return
		}
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to enqueue sync job", err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("job_id", published.ID).
		Str("user_id", sanitizeLogValue(published.UserID)).
		Str("provider", string(published.Provider)).
		Str("trigger", string(published.Trigger)).
		Msg("Sync job enqueued")
	respondSuccess(w, http.StatusAccepted, published)
}

// Checkpoints lists the stored checkpoints for a user and provider.
func (h *Handler) Checkpoints(w http.ResponseWriter, r *http.Request) {
	if h.checkpoints == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "checkpoint store unavailable", nil)
		return
	}
	provider := models.Provider(chi.URLParam(r, "provider"))
	if !provider.Valid() {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "unsupported provider: "+string(provider), nil)
		return
	}
	userID := chi.URLParam(r, "userID")

	cps, err := h.checkpoints.List(r.Context(), userID, provider)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to read checkpoints", err)
		return
	}
	respondSuccess(w, http.StatusOK, cps)
}
