// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

// Package fhir maps health records to FHIR R5 Observation resources and
// publishes them to a FHIR server as transaction bundles.
//
// Every Observation carries a secondary identifier
// (https://api.{provider}.com/health-data, {data_type}_{timestamp}_{user_id})
// that the publisher uses for conditional creates, so replaying the overlap
// window of an incremental sync does not duplicate resources on the server.
package fhir
