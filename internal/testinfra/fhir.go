// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultFHIRImage is the HAPI FHIR JPA server image.
	DefaultFHIRImage = "hapiproject/hapi:latest"

	// DefaultFHIRPort is the HAPI web port.
	DefaultFHIRPort = "8080"
)

// FHIRContainer is a running HAPI FHIR server.
type FHIRContainer struct {
	testcontainers.Container
	// BaseURL is the FHIR base, e.g. http://localhost:32768/fhir.
	BaseURL string
}

// FHIROption configures the FHIR container.
type FHIROption func(*fhirConfig)

type fhirConfig struct {
	image        string
	startTimeout time.Duration
}

// WithFHIRImage sets a custom HAPI image.
func WithFHIRImage(image string) FHIROption {
	return func(c *fhirConfig) {
		c.image = image
	}
}

// WithStartTimeout sets how long to wait for the server's metadata
// endpoint.
func WithStartTimeout(timeout time.Duration) FHIROption {
	return func(c *fhirConfig) {
		c.startTimeout = timeout
	}
}

// NewFHIRContainer starts a HAPI FHIR server. Placeholder targets are
// created for references, so observations can point at patients that were
// never uploaded.
//
//	srv, err := testinfra.NewFHIRContainer(ctx)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	testinfra.CleanupContainer(t, srv)
//	pub, _ := fhir.NewPublisher(fhir.Config{BaseURL: srv.BaseURL}, nil)
func NewFHIRContainer(ctx context.Context, opts ...FHIROption) (*FHIRContainer, error) {
	cfg := &fhirConfig{
		image:        DefaultFHIRImage,
		startTimeout: 3 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{DefaultFHIRPort + "/tcp"},
		Env: map[string]string{
			"HAPI_FHIR_AUTO_CREATE_PLACEHOLDER_REFERENCE_TARGETS": "true",
			"HAPI_FHIR_ENFORCE_REFERENTIAL_INTEGRITY_ON_WRITE":    "false",
		},
		WaitingFor: wait.ForHTTP("/fhir/metadata").
			WithPort(DefaultFHIRPort + "/tcp").
			WithStartupTimeout(cfg.startTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("create fhir container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, DefaultFHIRPort)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}

	return &FHIRContainer{
		Container: container,
		BaseURL:   fmt.Sprintf("http://%s:%s/fhir", host, port.Port()),
	}, nil
}
