// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package fhir

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/healthsync/internal/logging"
	"github.com/tomtom215/healthsync/internal/models"
	"github.com/tomtom215/healthsync/internal/resilience"
)

// ContentType is the FHIR JSON media type.
const ContentType = "application/fhir+json"

const maxErrorBody = 512

// Config is the record-server connection.
type Config struct {
	BaseURL string `koanf:"base_url" validate:"required,url"`
	// AuthHeader and AuthValue are sent on every request when AuthValue is set.
	AuthHeader       string        `koanf:"auth_header"`
	AuthValue        string        `koanf:"auth_value"`
	PatientReference string        `koanf:"patient_reference"`
	Timeout          time.Duration `koanf:"timeout" validate:"gte=0"`
}

// DefaultConfig returns a local development server configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:          "http://localhost:8080/fhir",
		AuthHeader:       "Authorization",
		PatientReference: DefaultPatientReference,
		Timeout:          30 * time.Second,
	}
}

// Publisher posts resources to a FHIR server as transaction bundles. Each
// entry is a conditional create keyed on the resource's first identifier, so
// republishing the same record is a no-op on the server.
type Publisher struct {
	httpClient *http.Client
	endpoint   string
	authHeader string
	authValue  string
}

// NewPublisher creates a Publisher. A nil client uses one with cfg.Timeout.
func NewPublisher(cfg Config, client *http.Client) (*Publisher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("fhir: base url is required")
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	header := cfg.AuthHeader
	if header == "" {
		header = "Authorization"
	}
	return &Publisher{
		httpClient: client,
		endpoint:   strings.TrimSuffix(cfg.BaseURL, "/"),
		authHeader: header,
		authValue:  cfg.AuthValue,
	}, nil
}

type bundleEntry struct {
	Resource models.Resource `json:"resource,omitempty"`
	Request  *entryRequest   `json:"request,omitempty"`
	Response *entryResponse  `json:"response,omitempty"`
	FullURL  string          `json:"fullUrl,omitempty"`
}

type entryRequest struct {
	Method      string `json:"method"`
	URL         string `json:"url"`
	IfNoneExist string `json:"ifNoneExist,omitempty"`
}

type entryResponse struct {
	Outcome  json.RawMessage `json:"outcome,omitempty"`
	Status   string          `json:"status"`
	Location string          `json:"location,omitempty"`
}

type bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Entry        []bundleEntry `json:"entry"`
}

// Publish sends resources in one transaction bundle. Transport and HTTP
// failures return an error; per-entry rejections are reported in the
// result so the caller can decide whether a partial publish is a failure.
func (p *Publisher) Publish(ctx context.Context, resources []models.Resource) (models.PublishResult, error) {
	if len(resources) == 0 {
		return models.PublishResult{}, nil
	}

	b := bundle{ResourceType: "Bundle", Type: "transaction", Entry: make([]bundleEntry, len(resources))}
	for i, res := range resources {
		rt := res.ResourceType()
		if rt == "" {
			return models.PublishResult{}, fmt.Errorf("%w: resource %d has no resourceType", resilience.ErrInvalidPayload, i)
		}
		req := &entryRequest{Method: http.MethodPost, URL: rt}
		if system, value := res.Identifier(); value != "" {
			req.IfNoneExist = "identifier=" + url.QueryEscape(system+"|"+value)
		}
		b.Entry[i] = bundleEntry{
			FullURL:  "urn:uuid:" + uuid.New().String(),
			Resource: res,
			Request:  req,
		}
	}

	payload, err := json.Marshal(b)
	if err != nil {
		return models.PublishResult{}, fmt.Errorf("%w: encode bundle: %v", resilience.ErrInvalidPayload, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return models.PublishResult{}, fmt.Errorf("create bundle request: %w", err)
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("Accept", ContentType)
	req.Header.Set("Cache-Control", "no-cache")
	if p.authValue != "" {
		req.Header.Set(p.authHeader, p.authValue)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return models.PublishResult{}, fmt.Errorf("post bundle: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return models.PublishResult{}, fmt.Errorf("read bundle response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(body)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody] + "..."
		}
		return models.PublishResult{}, &resilience.StatusError{
			Method:     http.MethodPost,
			URL:        req.URL.Path,
			StatusCode: resp.StatusCode,
			Body:       msg,
		}
	}

	var reply bundle
	if err := json.Unmarshal(body, &reply); err != nil {
		return models.PublishResult{}, fmt.Errorf("%w: decode transaction response: %v", resilience.ErrInvalidPayload, err)
	}

	result := tally(len(resources), reply.Entry)
	logging.Ctx(ctx).Debug().
		Int("total", result.Total).
		Int("published", result.Published).
		Int("failed", result.Failed).
		Msg("Published FHIR bundle")
	return result, nil
}

// tally counts per-entry outcomes. Entries missing from the response count
// as failures.
func tally(total int, entries []bundleEntry) models.PublishResult {
	result := models.PublishResult{Total: total}
	for i := 0; i < total; i++ {
		if i >= len(entries) || entries[i].Response == nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: no response", i))
			continue
		}
		r := entries[i].Response
		if strings.HasPrefix(r.Status, "2") {
			result.Published++
			if id := resourceID(r.Location); id != "" {
				result.IDs = append(result.IDs, id)
			}
			continue
		}
		result.Failed++
		msg := fmt.Sprintf("entry %d: %s", i, r.Status)
		if len(r.Outcome) > 0 {
			msg += ": " + string(r.Outcome)
		}
		result.Errors = append(result.Errors, msg)
	}
	return result
}

// resourceID extracts "Observation/123" from "Observation/123/_history/1".
func resourceID(location string) string {
	if location == "" {
		return ""
	}
	if u, err := url.Parse(location); err == nil && u.Path != "" {
		location = u.Path
	}
	parts := strings.Split(strings.Trim(location, "/"), "/")
	if h := slices.Index(parts, "_history"); h >= 2 {
		return parts[h-2] + "/" + parts[h-1]
	}
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "/" + parts[len(parts)-1]
	}
	return location
}
