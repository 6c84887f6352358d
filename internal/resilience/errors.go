// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Kind is the fixed error taxonomy shared by every outbound call.
type Kind string

const (
	KindAPI        Kind = "api_error"
	KindAuth       Kind = "auth_error"
	KindRateLimit  Kind = "rate_limit_error"
	KindNetwork    Kind = "network_error"
	KindValidation Kind = "validation_error"
	// KindCircuitOpen is produced by the breaker itself, never by classification
	// of an upstream response.
	KindCircuitOpen Kind = "circuit_open"
	// KindCanceled marks work abandoned because the caller's context ended.
	KindCanceled Kind = "canceled"
)

// Explicit signals that outbound clients may return or wrap when no HTTP
// status is available.
var (
	ErrAuthFailed     = errors.New("authentication failed")
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrInvalidPayload = errors.New("malformed payload")

	// ErrCircuitOpen is returned without invoking the protected operation.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// StatusError carries the HTTP status of a failed outbound request.
type StatusError struct {
	Method     string
	URL        string
	Body       string
	StatusCode int
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Error is a classified failure. Attempts is the number of times the
// operation ran before giving up.
type Error struct {
	Err       error
	Kind      Kind
	Attempts  int
	Retryable bool
}

func (e *Error) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("%s after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classification is the verdict for one error.
type Classification struct {
	Kind       Kind
	StatusCode int
	Retryable  bool
}

// KindOf returns the kind of err, classifying it if it was not already.
func KindOf(err error) Kind {
	return Classify(err).Kind
}

// Classify maps any error to a Kind and a retry verdict. Rules apply in
// priority order: auth, rate limit, validation, network, then api_error as
// the fail-open default. It never panics and never returns an empty Kind.
func Classify(err error) (c Classification) {
	defer func() {
		if r := recover(); r != nil {
			c = Classification{Kind: KindAPI, Retryable: true}
		}
	}()

	if err == nil {
		return Classification{Kind: KindAPI, Retryable: true}
	}

	var classified *Error
	if errors.As(err, &classified) && classified.Kind != "" {
		return Classification{Kind: classified.Kind, Retryable: classified.Retryable, StatusCode: statusOf(err)}
	}

	if errors.Is(err, ErrCircuitOpen) {
		return Classification{Kind: KindCircuitOpen}
	}
	if errors.Is(err, context.Canceled) {
		return Classification{Kind: KindCanceled}
	}

	status := statusOf(err)
	// Message signals only apply when no HTTP status is available, so a URL
	// or response body never overrides the status code.
	msg := ""
	if status == 0 {
		msg = strings.ToLower(err.Error())
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden ||
		errors.Is(err, ErrAuthFailed) || containsAny(msg, authSignals):
		return Classification{Kind: KindAuth, StatusCode: status}
	case status == http.StatusTooManyRequests ||
		errors.Is(err, ErrRateLimited) || containsAny(msg, rateLimitSignals):
		return Classification{Kind: KindRateLimit, Retryable: true, StatusCode: status}
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity ||
		errors.Is(err, ErrInvalidPayload) || containsAny(msg, validationSignals):
		return Classification{Kind: KindValidation, StatusCode: status}
	case isNetwork(err) || containsAny(msg, networkSignals):
		return Classification{Kind: KindNetwork, Retryable: true, StatusCode: status}
	default:
		return Classification{Kind: KindAPI, Retryable: true, StatusCode: status}
	}
}

var (
	authSignals       = []string{"unauthorized", "forbidden", "invalid token", "token expired", "authentication"}
	rateLimitSignals  = []string{"rate limit", "too many requests", "quota exceeded"}
	validationSignals = []string{"malformed", "validation", "invalid payload", "unprocessable"}
	networkSignals    = []string{"timeout", "timed out", "connection refused", "connection reset", "no such host", "network is unreachable"}
)

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func statusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

func isNetwork(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
