// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

/*
Package config loads the service configuration with koanf.

# Layers

Configuration is built from three layers, later layers winning:

 1. Built-in defaults (each package's DefaultConfig)
 2. An optional YAML file: CONFIG_PATH, else config.yaml, config.yml,
    /etc/healthsync/config.yaml or /etc/healthsync/config.yml
 3. Environment variables listed in envMappings

Every section is the owning package's own Config type, so koanf tags live
next to the code that reads them:

	server:      admin HTTP server (this package)
	strategy:    strategy.Config      sync windows and batch sizes
	sync:        sync.Config          retry policies, link tolerance, concurrency
	breakers:    resilience.RegistryConfig
	providers:   ingest.Config per provider (withings, fitbit)
	fhir:        fhir.Config
	checkpoint:  checkpoint.Config
	events:      events.Config        memory or nats transport
	dispatch:    dispatch.Config
	logging:     logging.Config
	supervisor:  supervisor.TreeConfig

# Example

	breakers:
	  provider_api:
	    failure_threshold: 3
	    success_threshold: 2
	    timeout: 30s
	  overrides:
	    fitbit_api:
	      failure_threshold: 5
	      success_threshold: 2
	      timeout: 2m
	sync:
	  provider_retry:
	    max_retries: 3
	    base_delay: 1s
	    max_delay: 60s
	    multiplier: 2
	    jitter: 0.1

# Environment Variables

Only mapped names are read, for example:

	HTTP_ADDR                  server.addr
	SYNC_INITIAL_LOOKBACK_DAYS strategy.initial_lookback_days
	PROVIDER_RETRY_MAX_RETRIES sync.provider_retry.max_retries
	BREAKER_FHIR_TIMEOUT       breakers.fhir_server.timeout
	FHIR_BASE_URL              fhir.base_url
	CHECKPOINT_PATH            checkpoint.path
	EVENTS_TRANSPORT           events.transport
	NATS_URL                   events.nats.url
	DISPATCH_WORKERS           dispatch.workers
	LOG_LEVEL                  logging.level

Provider access tokens and server.cors_origins can only be set from the file.
*/
package config
