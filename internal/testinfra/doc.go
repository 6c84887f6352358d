// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

// Package testinfra starts real collaborators in Docker for integration
// tests, using testcontainers-go.
//
// FHIRContainer runs a HAPI FHIR server so the publisher can be tested
// against a real transaction endpoint instead of a recorded response:
//
//	func TestPublish(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    srv, err := testinfra.NewFHIRContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    testinfra.CleanupContainer(t, srv)
//	    // publish to srv.BaseURL
//	}
//
// Everything here is behind the integration build tag:
//
//	go test -tags integration ./...
//
// Tests skip themselves when Docker is unavailable.
package testinfra
