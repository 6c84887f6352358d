// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
// The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/healthsync/config.yaml",
	"/etc/healthsync/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the configuration from three layers, later layers winning:
//
//  1. Defaults: built-in values from defaultConfig
//  2. Config file: optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. Environment variables: the names listed in envMappings
//
// The result is validated before it is returned.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file path. An empty path skips
// the file layer.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps lower-cased environment variable names to koanf paths.
// Unlisted variables are ignored so unrelated environment does not leak
// into the configuration.
var envMappings = map[string]string{
	// Admin HTTP server
	"http_addr":             "server.addr",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"api_rate_limit_reqs":   "server.rate_limit_requests",
	"api_rate_limit_window": "server.rate_limit_window",

	// Strategy windows
	"sync_initial_lookback_days": "strategy.initial_lookback_days",
	"sync_incremental_overlap":   "strategy.incremental_overlap",
	"sync_realtime_lookback":     "strategy.realtime_lookback",
	"sync_manual_default_window": "strategy.manual_default_window",

	// Orchestrator
	"sync_concurrency":    "sync.concurrency",
	"sync_link_tolerance": "sync.link_tolerance",

	"provider_retry_max_retries":  "sync.provider_retry.max_retries",
	"provider_retry_base_delay":   "sync.provider_retry.base_delay",
	"provider_retry_max_delay":    "sync.provider_retry.max_delay",
	"provider_retry_jitter":       "sync.provider_retry.jitter",
	"publisher_retry_max_retries": "sync.publisher_retry.max_retries",
	"publisher_retry_base_delay":  "sync.publisher_retry.base_delay",
	"publisher_retry_max_delay":   "sync.publisher_retry.max_delay",
	"publisher_retry_jitter":      "sync.publisher_retry.jitter",

	// Circuit breakers
	"breaker_provider_failure_threshold": "breakers.provider_api.failure_threshold",
	"breaker_provider_success_threshold": "breakers.provider_api.success_threshold",
	"breaker_provider_timeout":           "breakers.provider_api.timeout",
	"breaker_fhir_failure_threshold":     "breakers.fhir_server.failure_threshold",
	"breaker_fhir_success_threshold":     "breakers.fhir_server.success_threshold",
	"breaker_fhir_timeout":               "breakers.fhir_server.timeout",

	// Provider APIs
	"withings_base_url":            "providers.withings.base_url",
	"withings_timeout":             "providers.withings.timeout",
	"withings_requests_per_second": "providers.withings.requests_per_second",
	"fitbit_base_url":              "providers.fitbit.base_url",
	"fitbit_timeout":               "providers.fitbit.timeout",
	"fitbit_requests_per_second":   "providers.fitbit.requests_per_second",

	// FHIR server
	"fhir_base_url":          "fhir.base_url",
	"fhir_auth_header":       "fhir.auth_header",
	"fhir_auth_value":        "fhir.auth_value",
	"fhir_patient_reference": "fhir.patient_reference",
	"fhir_timeout":           "fhir.timeout",

	// Checkpoint store
	"checkpoint_path":        "checkpoint.path",
	"checkpoint_sync_writes": "checkpoint.sync_writes",
	"checkpoint_in_memory":   "checkpoint.in_memory",

	// Messaging
	"events_transport":      "events.transport",
	"events_jobs_topic":     "events.jobs_topic",
	"events_outcomes_topic": "events.outcomes_topic",
	"nats_url":              "events.nats.url",
	"nats_queue_group":      "events.nats.queue_group",
	"nats_durable_name":     "events.nats.durable_name",
	"nats_subscribers":      "events.nats.subscribers_count",
	"nats_max_deliver":      "events.nats.max_deliver",
	"nats_embedded":         "events.nats.embedded.enabled",
	"nats_embedded_port":    "events.nats.embedded.port",
	"nats_store_dir":        "events.nats.embedded.store_dir",

	// Dispatcher
	"dispatch_workers":     "dispatch.workers",
	"dispatch_job_timeout": "dispatch.job_timeout",

	// Provider webhooks
	"webhook_enabled":          "webhook.enabled",
	"webhook_aggregation":      "webhook.aggregation",
	"withings_webhook_secret":  "webhook.withings_secret",
	"fitbit_client_secret":     "webhook.fitbit_client_secret",
	"fitbit_verification_code": "webhook.fitbit_verification_code",

	// Logging
	"log_level":     "logging.level",
	"log_format":    "logging.format",
	"log_caller":    "logging.caller",
	"log_timestamp": "logging.timestamp",

	// Supervisor tree
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

// envTransformFunc maps an environment variable name to its koanf path, or
// "" to skip it.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
