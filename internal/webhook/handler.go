// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // Fitbit signs notifications with HMAC-SHA1
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/healthsync/internal/logging"
	"github.com/tomtom215/healthsync/internal/metrics"
	"github.com/tomtom215/healthsync/internal/models"
)

// Signature headers.
const (
	HeaderWithingsSignature = "X-Withings-Signature"
	HeaderFitbitSignature   = "X-Fitbit-Signature"
)

// Result labels for the notifications counter.
const (
	ResultAccepted         = "accepted"
	ResultIgnored          = "ignored"
	ResultInvalidSignature = "invalid_signature"
	ResultInvalidPayload   = "invalid_payload"
	ResultPublishFailed    = "publish_failed"
)

// Config holds the webhook receiver settings.
type Config struct {
	Enabled bool `koanf:"enabled"`

	// Empty secrets disable signature checks for that provider.
	WithingsSecret     string `koanf:"withings_secret"`
	FitbitClientSecret string `koanf:"fitbit_client_secret"`

	// FitbitVerificationCode answers Fitbit's subscriber verification.
	// Verification always fails while it is empty.
	FitbitVerificationCode string `koanf:"fitbit_verification_code"`

	// Aggregation is applied to jobs created from notifications.
	Aggregation  models.AggregationLevel `koanf:"aggregation" validate:"required,oneof=individual hourly daily"`
	MaxBodyBytes int64                   `koanf:"max_body_bytes" validate:"gt=0"`
}

// DefaultConfig returns a disabled receiver with individual aggregation and
// a 1 MiB body cap.
func DefaultConfig() Config {
	return Config{
		Aggregation:  models.AggregationIndividual,
		MaxBodyBytes: 1 << 20,
	}
}

// JobPublisher enqueues sync jobs. Satisfied by *events.Bus.
type JobPublisher interface {
	PublishJob(ctx context.Context, job models.SyncJob) (models.SyncJob, error)
}

// Handler receives provider notifications.
type Handler struct {
	jobs JobPublisher
	cfg  Config
}

// NewHandler creates a Handler publishing to jobs.
func NewHandler(cfg Config, jobs JobPublisher) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if cfg.Aggregation == "" {
		cfg.Aggregation = models.AggregationIndividual
	}
	return &Handler{jobs: jobs, cfg: cfg}
}

// Routes returns the provider endpoints, relative to the mount point.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/withings", h.WithingsChallenge)
	r.Head("/withings", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/withings", h.Withings)
	r.Get("/fitbit", h.FitbitVerify)
	r.Post("/fitbit", h.Fitbit)
	return r
}

type response struct {
	Status string   `json:"status"`
	Error  string   `json:"error,omitempty"`
	Jobs   []string `json:"jobs,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("Failed to encode webhook response")
	}
}

// WithingsChallenge echoes the challenge Withings sends when a
// subscription is created.
func (h *Handler) WithingsChallenge(w http.ResponseWriter, r *http.Request) {
	challenge := r.URL.Query().Get("challenge")
	if challenge == "" {
		writeJSON(w, http.StatusBadRequest, response{Status: "error", Error: "missing challenge parameter"})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, challenge)
}

// Withings handles a Withings data notification.
func (h *Handler) Withings(w http.ResponseWriter, r *http.Request) {
	const provider = models.ProviderWithings

	body, ok := h.readBody(w, r, provider)
	if !ok {
		return
	}
	if h.cfg.WithingsSecret != "" && !validWithingsSignature(body, r.Header.Get(HeaderWithingsSignature), h.cfg.WithingsSecret) {
		h.reject(w, r, provider, http.StatusForbidden, ResultInvalidSignature, "invalid signature")
		return
	}

	notes, err := ParseWithings(body)
	if err != nil {
		h.reject(w, r, provider, http.StatusBadRequest, ResultInvalidPayload, err.Error())
		return
	}
	ids, ok := h.publish(w, r, provider, notes)
	if !ok {
		return
	}
	status := ResultAccepted
	if len(ids) == 0 {
		status = ResultIgnored
	}
	writeJSON(w, http.StatusAccepted, response{Status: status, Jobs: ids})
}

// FitbitVerify answers Fitbit's subscriber verification: 204 when verify
// matches the configured code, 404 otherwise.
func (h *Handler) FitbitVerify(w http.ResponseWriter, r *http.Request) {
	verify := r.URL.Query().Get("verify")
	if verify == "" {
		writeJSON(w, http.StatusBadRequest, response{Status: "error", Error: "missing verify parameter"})
		return
	}
	code := h.cfg.FitbitVerificationCode
	if code == "" || !hmac.Equal([]byte(verify), []byte(code)) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Fitbit handles a Fitbit notification batch. Fitbit expects 204 on
// success.
func (h *Handler) Fitbit(w http.ResponseWriter, r *http.Request) {
	const provider = models.ProviderFitbit

	body, ok := h.readBody(w, r, provider)
	if !ok {
		return
	}
	if h.cfg.FitbitClientSecret != "" && !validFitbitSignature(body, r.Header.Get(HeaderFitbitSignature), h.cfg.FitbitClientSecret) {
		h.reject(w, r, provider, http.StatusForbidden, ResultInvalidSignature, "invalid signature")
		return
	}

	notes, err := ParseFitbit(body)
	if err != nil {
		h.reject(w, r, provider, http.StatusBadRequest, ResultInvalidPayload, err.Error())
		return
	}
	if _, ok := h.publish(w, r, provider, notes); !ok {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request, provider models.Provider) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(w, r, provider, http.StatusRequestEntityTooLarge, ResultInvalidPayload, "request body too large")
			return nil, false
		}
		h.reject(w, r, provider, http.StatusBadRequest, ResultInvalidPayload, "failed to read request body")
		return nil, false
	}
	return body, true
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, provider models.Provider, status int, result, msg string) {
	metrics.RecordWebhookNotification(string(provider), result)
	logging.Ctx(r.Context()).Warn().
		Str("provider", string(provider)).
		Str("result", result).
		Int("status", status).
		Msg("Webhook notification rejected")
	writeJSON(w, status, response{Status: "error", Error: msg})
}

// publish enqueues one job per notification. On failure it answers 503 so
// the provider redelivers; jobs published before the failure stay queued.
func (h *Handler) publish(w http.ResponseWriter, r *http.Request, provider models.Provider, notes []Notification) ([]string, bool) {
	if len(notes) == 0 {
		metrics.RecordWebhookNotification(string(provider), ResultIgnored)
		logging.Ctx(r.Context()).Debug().Str("provider", string(provider)).Msg("Webhook notification has no mapped data types")
		return nil, true
	}
	if h.jobs == nil {
		h.reject(w, r, provider, http.StatusServiceUnavailable, ResultPublishFailed, "job queue unavailable")
		return nil, false
	}

	ids := make([]string, 0, len(notes))
	for _, n := range notes {
		job, err := h.jobs.PublishJob(r.Context(), n.Job(h.cfg.Aggregation))
		if err != nil {
			logging.Ctx(r.Context()).Error().Err(err).
				Str("provider", string(provider)).
				Str("user_id", n.UserID).
				Msg("Failed to enqueue webhook sync job")
			h.reject(w, r, provider, http.StatusServiceUnavailable, ResultPublishFailed, "job queue unavailable")
			return nil, false
		}
		ids = append(ids, job.ID)
		logging.Ctx(r.Context()).Info().
			Str("job_id", job.ID).
			Str("provider", string(provider)).
			Str("user_id", job.UserID).
			Str("trigger", string(job.Trigger)).
			Int("data_types", len(job.Config.EnabledDataTypes)).
			Msg("Webhook sync job enqueued")
	}
	metrics.RecordWebhookNotification(string(provider), ResultAccepted)
	return ids, true
}

func validWithingsSignature(body []byte, signature, secret string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

func validFitbitSignature(body []byte, signature, clientSecret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha1.New, []byte(clientSecret+"&"))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
