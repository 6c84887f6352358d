// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/healthsync/internal/logging"
	"github.com/tomtom215/healthsync/internal/models"
)

// State names as exposed in snapshots and metrics.
const (
	StateClosed   = "closed"
	StateHalfOpen = "half-open"
	StateOpen     = "open"
)

// BreakerSettings configures one named breaker.
type BreakerSettings struct {
	FailureThreshold uint32        `koanf:"failure_threshold" validate:"gte=1"`
	SuccessThreshold uint32        `koanf:"success_threshold" validate:"gte=1"`
	Timeout          time.Duration `koanf:"timeout" validate:"gt=0"`
}

// DefaultProviderBreaker returns the thresholds used for provider APIs.
func DefaultProviderBreaker() BreakerSettings {
	return BreakerSettings{FailureThreshold: 3, SuccessThreshold: 2, Timeout: 30 * time.Second}
}

// DefaultPublisherBreaker returns the thresholds used for the FHIR server.
func DefaultPublisherBreaker() BreakerSettings {
	return BreakerSettings{FailureThreshold: 5, SuccessThreshold: 3, Timeout: 60 * time.Second}
}

func (s BreakerSettings) normalized() BreakerSettings {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 1
	}
	if s.SuccessThreshold == 0 {
		s.SuccessThreshold = 1
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultProviderBreaker().Timeout
	}
	return s
}

// BreakerObserver receives fire-and-forget breaker events.
type BreakerObserver interface {
	BreakerRegistered(name string)
	BreakerStateChanged(name, from, to string)
	BreakerRequest(name, result string)
	BreakerFailures(name string, consecutive uint32)
}

// errForcedFailure trips a fresh breaker during ForceOpen.
var errForcedFailure = errors.New("forced open by operator")

type breakerInstance struct {
	cb  *gobreaker.CircuitBreaker[any]
	gen uint64
}

// Breaker is a closed/open/half-open state machine guarding one outbound
// dependency. The transition logic lives in gobreaker; Breaker adds failure
// classification, opened_at/last_failure_at tracking and operator overrides.
//
// Lock ordering: overrides hold adminMu from the generation bump until the
// new instance is stored, so b.gen always matches the stored instance once
// an override returns. gobreaker invokes OnStateChange while holding its own
// lock and the callback takes b.mu, so Breaker never calls into gobreaker
// while holding b.mu.
type Breaker struct {
	name     string
	settings BreakerSettings
	observer BreakerObserver
	current  atomic.Pointer[breakerInstance]

	adminMu sync.Mutex

	mu            sync.Mutex
	gen           uint64
	openedAt      time.Time
	lastFailureAt time.Time
}

// NewBreaker returns a closed breaker. observer may be nil.
func NewBreaker(name string, settings BreakerSettings, observer BreakerObserver) *Breaker {
	b := &Breaker{
		name:     name,
		settings: settings.normalized(),
		observer: observer,
	}
	gen := b.nextGen(false)
	b.current.Store(&breakerInstance{cb: b.newCircuit(gen), gen: gen})
	if observer != nil {
		observer.BreakerRegistered(name)
	}
	return b
}

// Name returns the dependency name.
func (b *Breaker) Name() string { return b.name }

// Settings returns the configured thresholds.
func (b *Breaker) Settings() BreakerSettings { return b.settings }

func (b *Breaker) newCircuit(gen uint64) *gobreaker.CircuitBreaker[any] {
	threshold := b.settings.FailureThreshold
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        b.name,
		MaxRequests: b.settings.SuccessThreshold,
		Interval:    0, // consecutive counts never reset on a timer while closed
		Timeout:     b.settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.onStateChange(gen, from, to)
		},
		IsSuccessful: func(err error) bool { return err == nil },
		IsExcluded:   excludedFromCounts,
	})
}

// excludedFromCounts reports errors that are neither a success nor a
// failure. Cancellation and non-retryable errors (auth, validation) say
// nothing about the dependency's availability: they never trip the breaker,
// never reset the consecutive-failure count, and never count toward the
// half-open success threshold.
func excludedFromCounts(err error) bool {
	if err == nil || errors.Is(err, errForcedFailure) {
		return false
	}
	c := Classify(err)
	return !c.Retryable || c.Kind == KindCanceled
}

func (b *Breaker) onStateChange(gen uint64, from, to gobreaker.State) {
	now := time.Now().UTC()
	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return
	}
	if to == gobreaker.StateOpen {
		b.openedAt = now
	}
	if to == gobreaker.StateClosed {
		b.openedAt = time.Time{}
	}
	b.mu.Unlock()

	fromStr, toStr := stateToString(from), stateToString(to)
	logging.Info().
		Str("breaker", b.name).
		Str("from", fromStr).
		Str("to", toStr).
		Msg("[CIRCUIT BREAKER] State transition")
	if b.observer != nil {
		b.observer.BreakerStateChanged(b.name, fromStr, toStr)
	}
}

// Execute runs op through the breaker. When the breaker is open, op is not
// invoked and the returned error wraps ErrCircuitOpen.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	inst := b.current.Load()
	_, err := inst.cb.Execute(func() (any, error) {
		return nil, op(ctx)
	})
	if err == nil {
		b.report("success", inst)
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.report("rejected", inst)
		logging.Ctx(ctx).Debug().Str("breaker", b.name).Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		return &Error{Kind: KindCircuitOpen, Err: fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)}
	}

	if !excludedFromCounts(err) {
		b.mu.Lock()
		if inst.gen == b.gen {
			b.lastFailureAt = time.Now().UTC()
		}
		b.mu.Unlock()
		b.report("failure", inst)
	} else {
		b.report("ignored", inst)
	}
	return err
}

func (b *Breaker) report(result string, inst *breakerInstance) {
	if b.observer == nil {
		return
	}
	b.observer.BreakerRequest(b.name, result)
	b.observer.BreakerFailures(b.name, inst.cb.Counts().ConsecutiveFailures)
}

// State returns the current state name. Reading the state performs the lazy
// open to half-open transition once the timeout has elapsed.
func (b *Breaker) State() string {
	return stateToString(b.current.Load().cb.State())
}

// Snapshot returns a read-only view of the breaker.
func (b *Breaker) Snapshot() models.BreakerSnapshot {
	inst := b.current.Load()
	state := inst.cb.State()
	counts := inst.cb.Counts()

	b.mu.Lock()
	openedAt, lastFailureAt := b.openedAt, b.lastFailureAt
	b.mu.Unlock()

	snap := models.BreakerSnapshot{
		Name:     b.name,
		State:    stateToString(state),
		Requests: counts.Requests,
	}
	switch state {
	case gobreaker.StateClosed:
		snap.FailureCount = counts.ConsecutiveFailures
	case gobreaker.StateHalfOpen:
		snap.SuccessCount = counts.ConsecutiveSuccesses
	}
	if !openedAt.IsZero() {
		snap.OpenedAt = &openedAt
	}
	if !lastFailureAt.IsZero() {
		snap.LastFailureAt = &lastFailureAt
	}
	return snap
}

// ForceOpen opens the breaker immediately and restarts its timeout. In-flight
// calls finish against the previous state and their results are discarded.
func (b *Breaker) ForceOpen() {
	b.adminMu.Lock()
	defer b.adminMu.Unlock()

	from := b.State()
	gen := b.nextGen(false)

	cb := b.newCircuit(gen)
	for i := uint32(0); i < b.settings.FailureThreshold; i++ {
		_, _ = cb.Execute(func() (any, error) { return nil, errForcedFailure })
	}
	b.current.Store(&breakerInstance{cb: cb, gen: gen})

	logging.Warn().Str("breaker", b.name).Str("from", from).Msg("[CIRCUIT BREAKER] Forced open")
}

// ForceClose closes the breaker immediately and resets all counters.
func (b *Breaker) ForceClose() {
	b.adminMu.Lock()
	defer b.adminMu.Unlock()

	from := b.State()
	gen := b.nextGen(true)

	b.current.Store(&breakerInstance{cb: b.newCircuit(gen), gen: gen})

	if from != StateClosed {
		logging.Warn().Str("breaker", b.name).Str("from", from).Msg("[CIRCUIT BREAKER] Forced closed")
		if b.observer != nil {
			b.observer.BreakerStateChanged(b.name, from, StateClosed)
		}
	}
}

// nextGen starts a new generation. Callbacks and failure timestamps from
// older instances are ignored from here on. Callers hold adminMu.
func (b *Breaker) nextGen(clearOpened bool) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	if clearOpened {
		b.openedAt = time.Time{}
	}
	return b.gen
}

// StateValue is the gauge encoding of a state name (0 closed, 1 half-open, 2 open).
func StateValue(state string) float64 {
	switch state {
	case StateClosed:
		return 0
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return "unknown"
	}
}
