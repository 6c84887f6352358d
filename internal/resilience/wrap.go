// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package resilience

import (
	"context"
)

// Operation is an outbound call that honors ctx.
type Operation func(ctx context.Context) error

// WithBreakerAndRetry composes a breaker and a retrier around op. The
// breaker sits inside the retry loop, so every attempt is counted by the
// breaker, and an open breaker ends the loop immediately because
// circuit_open is never retryable.
func WithBreakerAndRetry(b *Breaker, r *Retrier, policy RetryPolicy, op Operation) Operation {
	return func(ctx context.Context) error {
		return r.Execute(ctx, b.Name(), policy, func(ctx context.Context) error {
			return b.Execute(ctx, op)
		})
	}
}

// Call runs a value-returning op through a breaker and a retrier.
func Call[T any](ctx context.Context, b *Breaker, r *Retrier, policy RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := WithBreakerAndRetry(b, r, policy, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})(ctx)
	return out, err
}
