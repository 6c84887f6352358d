// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tomtom215/healthsync/internal/aggregation"
	"github.com/tomtom215/healthsync/internal/api"
	"github.com/tomtom215/healthsync/internal/checkpoint"
	"github.com/tomtom215/healthsync/internal/config"
	"github.com/tomtom215/healthsync/internal/dispatch"
	"github.com/tomtom215/healthsync/internal/events"
	"github.com/tomtom215/healthsync/internal/fhir"
	"github.com/tomtom215/healthsync/internal/ingest"
	"github.com/tomtom215/healthsync/internal/logging"
	"github.com/tomtom215/healthsync/internal/metrics"
	"github.com/tomtom215/healthsync/internal/models"
	"github.com/tomtom215/healthsync/internal/resilience"
	"github.com/tomtom215/healthsync/internal/strategy"
	"github.com/tomtom215/healthsync/internal/supervisor"
	"github.com/tomtom215/healthsync/internal/supervisor/services"
	syncpkg "github.com/tomtom215/healthsync/internal/sync"
	"github.com/tomtom215/healthsync/internal/webhook"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var providers = []models.Provider{models.ProviderWithings, models.ProviderFitbit}

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("healthsync exited with error")
		os.Exit(1)
	}
}

//nolint:gocyclo // sequential component wiring
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logging.Init(cfg.Logging)
	logging.Info().Str("version", version).Msg("Starting healthsync")

	store, err := checkpoint.Open(cfg.Checkpoint)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing checkpoint store")
		}
	}()

	sink := metrics.NewSink(prometheus.DefaultRegisterer)

	breakers := resilience.NewRegistry(cfg.Breakers, sink)
	// Registered up front so health and the admin overrides see them
	// before the first sync runs.
	for _, p := range providers {
		breakers.Get(p.BreakerName())
	}
	breakers.Get(resilience.BreakerFHIRServer)

	orchestrator, err := newOrchestrator(cfg, breakers, sink)
	if err != nil {
		return err
	}

	bus, err := events.New(cfg.Events, logging.NewWatermillAdapter())
	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	dispatcher, err := dispatch.New(cfg.Dispatch, orchestrator, store, bus)
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	var webhooks http.Handler
	if cfg.Webhook.Enabled {
		webhooks = webhook.NewHandler(cfg.Webhook, bus).Routes()
		if cfg.Webhook.WithingsSecret == "" || cfg.Webhook.FitbitClientSecret == "" {
			logging.Warn().Msg("Webhook signature verification is disabled for at least one provider")
		}
	}

	server := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewRouter(api.Config{
			Version:           version,
			RateLimitRequests: cfg.Server.RateLimitRequests,
			RateLimitWindow:   cfg.Server.RateLimitWindow,
			CORSOrigins:       cfg.Server.CORSOrigins,
		}, api.Deps{
			Breakers:    breakers,
			Jobs:        bus,
			Checkpoints: store,
			Webhooks:    webhooks,
		}),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), cfg.Supervisor)
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}
	tree.AddDataService(services.NewGCService("checkpoint-gc", store, cfg.Checkpoint.GCInterval))
	tree.AddMessagingService(dispatcher)
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Addr, cfg.Server.ShutdownTimeout))

	logging.Info().
		Str("addr", server.Addr).
		Str("transport", cfg.Events.Transport).
		Int("workers", cfg.Dispatch.Workers).
		Bool("webhooks", cfg.Webhook.Enabled).
		Msg("Components initialized")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}

	logging.Info().Msg("healthsync stopped")
	return nil
}

// newOrchestrator builds the sync engine and its provider and record
// server collaborators.
func newOrchestrator(cfg *config.Config, breakers *resilience.Registry, sink *metrics.Sink) (*syncpkg.Orchestrator, error) {
	ingestors := make(map[models.Provider]syncpkg.Ingestor, len(providers))
	for _, p := range providers {
		pcfg, err := cfg.Providers.For(p)
		if err != nil {
			return nil, err
		}
		client, err := ingest.New(p, pcfg)
		if err != nil {
			return nil, fmt.Errorf("create %s client: %w", p, err)
		}
		ingestors[p] = client
		logging.Info().
			Str("provider", string(p)).
			Str("base_url", pcfg.BaseURL).
			Int("users", len(pcfg.Tokens)).
			Msg("Provider client configured")
	}

	publisher, err := fhir.NewPublisher(cfg.FHIR, nil)
	if err != nil {
		return nil, fmt.Errorf("create fhir publisher: %w", err)
	}

	orchestrator, err := syncpkg.New(cfg.Sync, syncpkg.Deps{
		Ingestors:   ingestors,
		Transformer: fhir.NewTransformer(cfg.FHIR.PatientReference),
		Publisher:   publisher,
		Breakers:    breakers,
		Retrier:     resilience.NewRetrier(resilience.WithRetryObserver(sink)),
		Selector:    strategy.NewSelector(cfg.Strategy),
		Aggregator:  aggregation.New(),
		Metrics:     sink,
	})
	if err != nil {
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}
	return orchestrator, nil
}
