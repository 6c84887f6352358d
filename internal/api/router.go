// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/healthsync/internal/models"
	"github.com/tomtom215/healthsync/internal/resilience"
)

// JobPublisher enqueues sync jobs. Satisfied by *events.Bus.
type JobPublisher interface {
	PublishJob(ctx context.Context, job models.SyncJob) (models.SyncJob, error)
}

// CheckpointReader exposes the checkpoint store read path. Satisfied by
// *checkpoint.Store.
type CheckpointReader interface {
	List(ctx context.Context, userID string, provider models.Provider) (map[models.DataType]time.Time, error)
	Ping(ctx context.Context) error
}

// Config holds router settings.
type Config struct {
	Version string

	// RateLimitRequests per RateLimitWindow per client IP. Zero disables
	// rate limiting.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// CORSOrigins lists browser origins allowed to call /api/v1.
	CORSOrigins []string
}

// Deps are the components the admin surface reads and drives.
type Deps struct {
	Breakers    *resilience.Registry
	Jobs        JobPublisher
	Checkpoints CheckpointReader
	// Gatherer defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	// Webhooks, when set, is mounted at /webhooks for provider callbacks.
	Webhooks http.Handler
}

// NewRouter builds the admin HTTP handler:
//
//	GET  /metrics
//	GET  /api/v1/health
//	GET  /api/v1/health/live
//	GET  /api/v1/breakers
//	POST /api/v1/breakers/reset
//	GET  /api/v1/breakers/{name}
//	POST /api/v1/breakers/{name}/open
//	POST /api/v1/breakers/{name}/close
//	POST /api/v1/sync/jobs
//	GET  /api/v1/checkpoints/{provider}/{userID}
//	*    /webhooks/...
func NewRouter(cfg Config, deps Deps) http.Handler {
	h := NewHandler(cfg, deps)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(CORS(cfg.CORSOrigins))
		r.Use(PrometheusMetrics)
		r.Use(RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/health", h.Health)
		r.Get("/health/live", h.HealthLive)

		r.Route("/breakers", func(r chi.Router) {
			r.Get("/", h.ListBreakers)
			r.Post("/reset", h.ResetBreakers)
			r.Get("/{name}", h.GetBreaker)
			r.Post("/{name}/open", h.OpenBreaker)
			r.Post("/{name}/close", h.CloseBreaker)
		})

		r.Post("/sync/jobs", h.EnqueueSyncJob)
		r.Get("/checkpoints/{provider}/{userID}", h.Checkpoints)
	})

	if deps.Webhooks != nil {
		r.With(PrometheusMetrics).Mount("/webhooks", deps.Webhooks)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed", nil)
	})
	return r
}
