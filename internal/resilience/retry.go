// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/tomtom215/healthsync/internal/logging"
)

// RetryPolicy bounds exponential-backoff retry. It is a value object;
// distinct policies coexist for different operation classes.
type RetryPolicy struct {
	MaxRetries int           `koanf:"max_retries" validate:"gte=0,lte=20"`
	BaseDelay  time.Duration `koanf:"base_delay" validate:"gte=0"`
	MaxDelay   time.Duration `koanf:"max_delay" validate:"gte=0"`
	Multiplier float64       `koanf:"multiplier" validate:"gte=1"`
	// Jitter spreads each delay by up to +/- Jitter*delay. Zero keeps the
	// delay sequence exact.
	Jitter float64 `koanf:"jitter" validate:"gte=0,lte=1"`
}

// DefaultProviderPolicy is used for provider API fetches.
func DefaultProviderPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 60 * time.Second, Multiplier: 2}
}

// DefaultPublisherPolicy is used for FHIR publish calls.
func DefaultPublisherPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 5, BaseDelay: 2 * time.Second, MaxDelay: 120 * time.Second, Multiplier: 2}
}

// Delay returns the wait before retry number attempt (0-based), without jitter:
// min(BaseDelay * Multiplier^attempt, MaxDelay).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryObserver receives fire-and-forget retry events.
type RetryObserver interface {
	RetryAttempt(operation string, kind string)
	RetryExhausted(operation string, kind string)
}

// Retrier executes operations with bounded retry. It holds no per-call
// state and is safe for concurrent use with independent policies.
type Retrier struct {
	sleep    SleepFunc
	random   func() float64
	observer RetryObserver
}

// RetrierOption configures a Retrier.
type RetrierOption func(*Retrier)

// WithSleep replaces the backoff wait, typically to record delays in tests.
func WithSleep(fn SleepFunc) RetrierOption {
	return func(r *Retrier) { r.sleep = fn }
}

// WithRandom replaces the jitter source. It must return values in [0, 1).
func WithRandom(fn func() float64) RetrierOption {
	return func(r *Retrier) { r.random = fn }
}

// WithRetryObserver reports retry events to o.
func WithRetryObserver(o RetryObserver) RetrierOption {
	return func(r *Retrier) { r.observer = o }
}

// NewRetrier returns a Retrier that sleeps on the wall clock.
func NewRetrier(opts ...RetrierOption) *Retrier {
	r := &Retrier{
		sleep:  contextSleep,
		random: rand.Float64,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs op until it succeeds, fails with a non-retryable error, or
// MaxRetries retries have been spent, so at most MaxRetries+1 attempts run.
// The returned error is an *Error carrying the attempt count and last kind.
// Cancellation of ctx stops the loop at the next attempt or backoff wait.
func (r *Retrier) Execute(ctx context.Context, name string, policy RetryPolicy, op func(ctx context.Context) error) error {
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return &Error{Kind: KindCanceled, Attempts: attempts, Err: err}
		}

		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}

		c := Classify(err)
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			c = Classification{Kind: KindCanceled}
		}
		if !c.Retryable || attempts > policy.MaxRetries {
			if c.Retryable && r.observer != nil {
				r.observer.RetryExhausted(name, string(c.Kind))
			}
			return &Error{Kind: c.Kind, Retryable: c.Retryable, Attempts: attempts, Err: unwrapClassified(err)}
		}

		delay := r.jittered(policy, policy.Delay(attempts-1))
		logging.Ctx(ctx).Debug().
			Err(err).
			Str("operation", name).
			Str("kind", string(c.Kind)).
			Int("attempt", attempts).
			Int("max_attempts", policy.MaxRetries+1).
			Dur("delay", delay).
			Msg("Retry attempt")
		if r.observer != nil {
			r.observer.RetryAttempt(name, string(c.Kind))
		}

		if err := r.sleep(ctx, delay); err != nil {
			return &Error{Kind: KindCanceled, Attempts: attempts, Err: fmt.Errorf("backoff interrupted: %w", err)}
		}
	}
}

func (r *Retrier) jittered(p RetryPolicy, d time.Duration) time.Duration {
	if p.Jitter <= 0 || d <= 0 {
		return d
	}
	spread := float64(d) * p.Jitter
	j := time.Duration(float64(d) - spread + 2*spread*r.random())
	if p.MaxDelay > 0 && j > p.MaxDelay {
		j = p.MaxDelay
	}
	if j < 0 {
		return 0
	}
	return j
}

// unwrapClassified strips a previously attached *Error so nested retries do
// not stack attempt counts in the message.
func unwrapClassified(err error) error {
	var classified *Error
	if errors.As(err, &classified) && classified == err {
		return classified.Err
	}
	return err
}

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
