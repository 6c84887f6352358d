// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/healthsync/internal/logging"
	"github.com/tomtom215/healthsync/internal/models"
	"github.com/tomtom215/healthsync/internal/resilience"
)

const (
	maxResponseBytes = 16 << 20
	maxErrorBody     = 512
	maxPages         = 500
)

// ErrUnsupportedDataType is returned when a provider has no endpoint for a
// data type.
var ErrUnsupportedDataType = errors.New("data type not supported by provider")

// Config is the connection configuration for one provider API.
type Config struct {
	BaseURL string `koanf:"base_url" validate:"required,url"`
	// Tokens maps user ids to OAuth access tokens. Token acquisition and
	// refresh are handled outside the sync engine.
	Tokens            map[string]string `koanf:"tokens"`
	Timeout           time.Duration     `koanf:"timeout" validate:"gte=0"`
	RequestsPerSecond float64           `koanf:"requests_per_second" validate:"gte=0"`
	Burst             int               `koanf:"burst" validate:"gte=0"`
}

// DefaultConfig returns the public API endpoint and pacing for provider.
func DefaultConfig(provider models.Provider) Config {
	cfg := Config{Timeout: 30 * time.Second, RequestsPerSecond: 2, Burst: 5}
	switch provider {
	case models.ProviderWithings:
		cfg.BaseURL = "https://wbsapi.withings.net"
	case models.ProviderFitbit:
		cfg.BaseURL = "https://api.fitbit.com"
	}
	return cfg
}

// TokenSource yields the access token used for a user's requests.
type TokenSource interface {
	AccessToken(ctx context.Context, provider models.Provider, userID string) (string, error)
}

// StaticTokens is a TokenSource backed by a fixed user -> token map.
type StaticTokens map[string]string

// AccessToken implements TokenSource.
func (s StaticTokens) AccessToken(_ context.Context, provider models.Provider, userID string) (string, error) {
	tok, ok := s[userID]
	if !ok || tok == "" {
		return "", fmt.Errorf("%w: no %s access token for user %s", resilience.ErrAuthFailed, provider, userID)
	}
	return tok, nil
}

// query is one page request handed to a provider adapter. cursor is empty
// for the first page and otherwise the value the adapter returned with the
// previous page. Provider endpoints resolve the user from the bearer token.
type query struct {
	dataType  models.DataType
	window    models.DateRange
	batchSize int
	cursor    string
}

// page is one decoded provider response. An empty cursor means the window
// is exhausted.
type page struct {
	records []models.Record
	cursor  string
}

// adapter knows one provider's endpoints, payload shapes and paging.
type adapter interface {
	supported() []models.DataType
	newRequest(ctx context.Context, baseURL string, q query) (*http.Request, error)
	decode(q query, body []byte) (page, error)
}

// Client fetches records from one provider's REST API. It is safe for
// concurrent use; requests share a single token-bucket limiter.
type Client struct {
	provider   models.Provider
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	tokens     TokenSource
	adapter    adapter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenSource replaces the token source built from Config.Tokens.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// New creates a client for provider.
func New(provider models.Provider, cfg Config, opts ...Option) (*Client, error) {
	var a adapter
	switch provider {
	case models.ProviderWithings:
		a = withingsAdapter{}
	case models.ProviderFitbit:
		a = fitbitAdapter{}
	default:
		return nil, fmt.Errorf("ingest: unknown provider %q", provider)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ingest: %s base url is required", provider)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		provider:   provider,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		tokens:     StaticTokens(cfg.Tokens),
		adapter:    a,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Provider returns the provider this client talks to.
func (c *Client) Provider() models.Provider { return c.provider }

// SupportedTypes lists the data types this provider can serve.
func (c *Client) SupportedTypes() []models.DataType {
	return slices.Clone(c.adapter.supported())
}

// Fetch retrieves dataType records for userID inside window, following the
// provider's pagination until the window is exhausted. Every page waits on
// the shared limiter. HTTP failures are returned as *resilience.StatusError
// so they classify by status code.
// Records are returned with provider, user, type and unit populated.
func (c *Client) Fetch(ctx context.Context, userID string, dataType models.DataType, window models.DateRange, batchSize int) ([]models.Record, error) {
	if !slices.Contains(c.adapter.supported(), dataType) {
		return nil, &resilience.Error{
			Kind: resilience.KindValidation,
			Err:  fmt.Errorf("%w: %s/%s", ErrUnsupportedDataType, c.provider, dataType),
		}
	}

	token, err := c.tokens.AccessToken(ctx, c.provider, userID)
	if err != nil {
		return nil, err
	}

	q := query{dataType: dataType, window: window, batchSize: batchSize}
	var records []models.Record
	for n := 1; ; n++ {
		if n > maxPages {
			return nil, fmt.Errorf("%w: %s %s returned more than %d pages", resilience.ErrInvalidPayload, c.provider, dataType, maxPages)
		}
		p, err := c.fetchPage(ctx, token, q, n)
		if err != nil {
			return nil, err
		}
		records = append(records, p.records...)
		if p.cursor == "" {
			break
		}
		if p.cursor == q.cursor {
			return nil, fmt.Errorf("%w: %s %s pagination did not advance", resilience.ErrInvalidPayload, c.provider, dataType)
		}
		q.cursor = p.cursor
	}

	for i := range records {
		records[i].Provider = c.provider
		records[i].UserID = userID
		records[i].DataType = dataType
		if records[i].Unit == "" {
			records[i].Unit = UnitFor(dataType)
		}
	}
	return records, nil
}

func (c *Client) fetchPage(ctx context.Context, token string, q query, n int) (page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		// Wait also fails early when the delay would outlive ctx's deadline.
		return page{}, &resilience.Error{
			Kind: resilience.KindCanceled,
			Err:  fmt.Errorf("%s rate limiter: %w", c.provider, err),
		}
	}

	req, err := c.adapter.newRequest(ctx, c.baseURL, q)
	if err != nil {
		return page{}, fmt.Errorf("build %s request: %w", c.provider, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return page{}, fmt.Errorf("%s %s request failed: %w", c.provider, q.dataType, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return page{}, fmt.Errorf("read %s response: %w", c.provider, err)
	}

	logging.Ctx(ctx).Debug().
		Str("provider", string(c.provider)).
		Str("data_type", string(q.dataType)).
		Int("page", n).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Provider request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return page{}, &resilience.StatusError{
			Method:     req.Method,
			URL:        req.URL.Path,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), maxErrorBody),
		}
	}
	return c.adapter.decode(q, body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// decodeError wraps a payload that did not match the provider contract.
func decodeError(provider models.Provider, err error) error {
	return fmt.Errorf("%w: decode %s response: %v", resilience.ErrInvalidPayload, provider, err)
}
