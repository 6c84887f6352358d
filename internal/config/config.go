// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/healthsync/internal/checkpoint"
	"github.com/tomtom215/healthsync/internal/dispatch"
	"github.com/tomtom215/healthsync/internal/events"
	"github.com/tomtom215/healthsync/internal/fhir"
	"github.com/tomtom215/healthsync/internal/ingest"
	"github.com/tomtom215/healthsync/internal/logging"
	"github.com/tomtom215/healthsync/internal/models"
	"github.com/tomtom215/healthsync/internal/resilience"
	"github.com/tomtom215/healthsync/internal/strategy"
	"github.com/tomtom215/healthsync/internal/supervisor"
	syncpkg "github.com/tomtom215/healthsync/internal/sync"
	"github.com/tomtom215/healthsync/internal/validation"
	"github.com/tomtom215/healthsync/internal/webhook"
)

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig              `koanf:"server"`
	Strategy   strategy.Config           `koanf:"strategy"`
	Sync       syncpkg.Config            `koanf:"sync"`
	Breakers   resilience.RegistryConfig `koanf:"breakers"`
	Providers  ProvidersConfig           `koanf:"providers"`
	FHIR       fhir.Config               `koanf:"fhir"`
	Checkpoint checkpoint.Config         `koanf:"checkpoint"`
	Events     events.Config             `koanf:"events"`
	Dispatch   dispatch.Config           `koanf:"dispatch"`
	Webhook    webhook.Config            `koanf:"webhook"`
	Logging    logging.Config            `koanf:"logging"`
	Supervisor supervisor.TreeConfig     `koanf:"supervisor"`
}

// ServerConfig holds the admin HTTP server settings.
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// RateLimitRequests per RateLimitWindow are allowed per client IP on
	// the admin routes. Zero disables rate limiting.
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`

	// CORSOrigins are the browser origins allowed to call the admin API.
	CORSOrigins []string `koanf:"cors_origins" validate:"dive,url"`
}

// ProvidersConfig holds one API configuration per wearable provider.
type ProvidersConfig struct {
	Withings ingest.Config `koanf:"withings"`
	Fitbit   ingest.Config `koanf:"fitbit"`
}

// For returns the configuration for provider.
func (p ProvidersConfig) For(provider models.Provider) (ingest.Config, error) {
	switch provider {
	case models.ProviderWithings:
		return p.Withings, nil
	case models.ProviderFitbit:
		return p.Fitbit, nil
	default:
		return ingest.Config{}, fmt.Errorf("unknown provider %q", provider)
	}
}

// defaultConfig returns the built-in defaults. They are loaded first and
// overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              "0.0.0.0:8085",
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			RateLimitRequests: 60,
			RateLimitWindow:   time.Minute,
		},
		Strategy: strategy.DefaultConfig(),
		Sync:     syncpkg.DefaultConfig(),
		Breakers: resilience.DefaultRegistryConfig(),
		Providers: ProvidersConfig{
			Withings: ingest.DefaultConfig(models.ProviderWithings),
			Fitbit:   ingest.DefaultConfig(models.ProviderFitbit),
		},
		FHIR:       fhir.DefaultConfig(),
		Checkpoint: checkpoint.DefaultConfig(),
		Events:     events.DefaultConfig(),
		Dispatch:   dispatch.DefaultConfig(),
		Webhook:    webhook.DefaultConfig(),
		Logging:    logging.DefaultConfig(),
		Supervisor: supervisor.DefaultTreeConfig(),
	}
}

// Validate checks field ranges and the constraints that span sections.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}

	var errs []error
	if c.Events.Transport == events.TransportNATS && c.Events.NATS.URL == "" && !c.Events.NATS.Embedded.Enabled {
		errs = append(errs, errors.New("events.nats.url is required for the nats transport"))
	}
	retries := []struct {
		name   string
		policy resilience.RetryPolicy
	}{
		{"sync.provider_retry", c.Sync.ProviderRetry},
		{"sync.publisher_retry", c.Sync.PublisherRetry},
	}
	for _, r := range retries {
		if r.policy.MaxDelay > 0 && r.policy.MaxDelay < r.policy.BaseDelay {
			errs = append(errs, fmt.Errorf("%s.max_delay (%s) is less than base_delay (%s)", r.name, r.policy.MaxDelay, r.policy.BaseDelay))
		}
	}
	return errors.Join(errs...)
}
