// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package resilience

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tomtom215/healthsync/internal/models"
)

// Well-known breaker names.
const (
	// BreakerFHIRServer guards the clinical publisher.
	BreakerFHIRServer = "fhir_server"
	// providerAPISuffix marks breakers that take the provider defaults.
	providerAPISuffix = "_api"
)

// ErrUnknownBreaker is returned by administrative operations on a name that
// has never been registered.
var ErrUnknownBreaker = errors.New("unknown circuit breaker")

// RegistryConfig holds per-name breaker settings. Names without an override
// ending in "_api" use Provider, "fhir_server" uses Publisher, and anything
// else uses Default.
type RegistryConfig struct {
	Overrides map[string]BreakerSettings `koanf:"overrides" validate:"dive"`
	Provider  BreakerSettings            `koanf:"provider_api"`
	Publisher BreakerSettings            `koanf:"fhir_server"`
	Default   BreakerSettings            `koanf:"default"`
}

// DefaultRegistryConfig returns the operational defaults.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Provider:  DefaultProviderBreaker(),
		Publisher: DefaultPublisherBreaker(),
		Default:   DefaultProviderBreaker(),
	}
}

// SettingsFor resolves the settings for a breaker name.
func (c RegistryConfig) SettingsFor(name string) BreakerSettings {
	if s, ok := c.Overrides[name]; ok {
		return s
	}
	switch {
	case name == BreakerFHIRServer:
		return c.Publisher
	case strings.HasSuffix(name, providerAPISuffix):
		return c.Provider
	default:
		return c.Default
	}
}

// Registry owns every breaker in the process. It is constructed by the
// composition root and injected; there is no package-level instance.
type Registry struct {
	cfg      RegistryConfig
	observer BreakerObserver

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry returns an empty registry. observer may be nil.
func NewRegistry(cfg RegistryConfig, observer BreakerObserver) *Registry {
	return &Registry{
		cfg:      cfg,
		observer: observer,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, creating it from configuration on first
// use. Concurrent callers always receive the same instance.
func (r *Registry) Get(name string) *Breaker {
	return r.GetWithSettings(name, r.cfg.SettingsFor(name))
}

// GetWithSettings is Get with explicit settings. Settings only apply when
// the breaker is created; an existing breaker is returned unchanged.
func (r *Registry) GetWithSettings(name string, settings BreakerSettings) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = NewBreaker(name, settings, r.observer)
	r.breakers[name] = b
	return b
}

// Lookup returns a registered breaker without creating one.
func (r *Registry) Lookup(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[name]
	return b, ok
}

// Names returns registered breaker names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// States returns a snapshot of every registered breaker keyed by name.
func (r *Registry) States() map[string]models.BreakerSnapshot {
	out := make(map[string]models.BreakerSnapshot)
	for _, b := range r.all() {
		out[b.Name()] = b.Snapshot()
	}
	return out
}

// ResetAll force-closes every registered breaker.
func (r *Registry) ResetAll() {
	for _, b := range r.all() {
		b.ForceClose()
	}
}

// ForceOpen opens a registered breaker.
func (r *Registry) ForceOpen(name string) error {
	b, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBreaker, name)
	}
	b.ForceOpen()
	return nil
}

// ForceClose closes a registered breaker.
func (r *Registry) ForceClose(name string) error {
	b, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBreaker, name)
	}
	b.ForceClose()
	return nil
}

// all copies the breaker set so callers never hold r.mu while calling into a
// breaker.
func (r *Registry) all() []*Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b)
	}
	return out
}
