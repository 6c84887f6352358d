// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

// Package validation wraps a shared go-playground/validator instance.
//
// Besides the built-in rules it registers "provider" and "datatype", which
// accept only the providers and data types the engine understands. Field
// names in messages follow the json tag (or koanf tag for configuration
// structs), namespaced by the enclosing struct, e.g.
// "HealthSyncConfig.enabled_data_types[0]".
package validation
