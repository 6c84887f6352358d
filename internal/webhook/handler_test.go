// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // matches the Fitbit signing scheme
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/healthsync/internal/models"
)

const (
	testWithingsSecret = "withings-test-secret-0123456789"
	testFitbitSecret   = "fitbit-client-secret"
	testVerifyCode     = "verify-me"
)

type fakePublisher struct {
	err  error
	mu   sync.Mutex
	jobs []models.SyncJob
}

func (f *fakePublisher) PublishJob(_ context.Context, job models.SyncJob) (models.SyncJob, error) {
	if f.err != nil {
		return job, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	job.ID = fmt.Sprintf("job-%d", len(f.jobs)+1)
	f.jobs = append(f.jobs, job)
	return job, nil
}

func (f *fakePublisher) published() []models.SyncJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.SyncJob(nil), f.jobs...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.WithingsSecret = testWithingsSecret
	cfg.FitbitClientSecret = testFitbitSecret
	cfg.FitbitVerificationCode = testVerifyCode
	return cfg
}

func withingsSignature(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func fitbitSignature(body, secret string) string {
	mac := hmac.New(sha1.New, []byte(secret+"&"))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)
	return w
}

func TestWithingsChallenge(t *testing.T) {
	t.Parallel()

	h := NewHandler(testConfig(), &fakePublisher{})

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
		wantBody   string
	}{
		{"echoes challenge", http.MethodGet, "/withings?challenge=abc123", http.StatusOK, "abc123"},
		{"missing challenge", http.MethodGet, "/withings", http.StatusBadRequest, "missing challenge"},
		{"head reachability", http.MethodHead, "/withings", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := serve(h, httptest.NewRequest(tt.method, tt.target, http.NoBody))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestWithingsNotification(t *testing.T) {
	t.Parallel()

	const body = "userid=12345&appli=4"

	tests := []struct {
		name       string
		body       string
		signature  string
		pubErr     error
		wantStatus int
		wantJobs   int
		wantState  string
	}{
		{"signed form", body, withingsSignature(body, testWithingsSecret), nil, http.StatusAccepted, 1, ResultAccepted},
		{"prefixed signature", body, "sha256=" + withingsSignature(body, testWithingsSecret), nil, http.StatusAccepted, 1, ResultAccepted},
		{"missing signature", body, "", nil, http.StatusForbidden, 0, "error"},
		{"wrong secret", body, withingsSignature(body, "other"), nil, http.StatusForbidden, 0, "error"},
		{"unmapped appli", "userid=12345&appli=44", withingsSignature("userid=12345&appli=44", testWithingsSecret), nil, http.StatusAccepted, 0, ResultIgnored},
		{"invalid payload", "userid=12345", withingsSignature("userid=12345", testWithingsSecret), nil, http.StatusBadRequest, 0, "error"},
		{"publish failure", body, withingsSignature(body, testWithingsSecret), errors.New("bus closed"), http.StatusServiceUnavailable, 0, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pub := &fakePublisher{err: tt.pubErr}
			h := NewHandler(testConfig(), pub)

			req := httptest.NewRequest(http.MethodPost, "/withings", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if tt.signature != "" {
				req.Header.Set(HeaderWithingsSignature, tt.signature)
			}
			w := serve(h, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			var resp response
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Status != tt.wantState {
				t.Errorf("response status = %q, want %q", resp.Status, tt.wantState)
			}
			if got := pub.published(); len(got) != tt.wantJobs {
				t.Fatalf("published %d jobs, want %d", len(got), tt.wantJobs)
			}
			if tt.wantJobs == 1 {
				job := pub.published()[0]
				if job.Provider != models.ProviderWithings || job.UserID != "12345" || job.Trigger != models.TriggerRealtime {
					t.Errorf("job = %+v", job)
				}
				if len(job.Config.EnabledDataTypes) != 3 {
					t.Errorf("EnabledDataTypes = %v", job.Config.EnabledDataTypes)
				}
				if len(resp.Jobs) != 1 || resp.Jobs[0] != job.ID {
					t.Errorf("response jobs = %v, want [%s]", resp.Jobs, job.ID)
				}
			}
		})
	}
}

func TestWithingsNotification_UnsignedWhenNoSecret(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.WithingsSecret = ""
	pub := &fakePublisher{}
	h := NewHandler(cfg, pub)

	body := "userid=42&appli=1&startdate=1700000000&enddate=1700000100"
	w := serve(h, httptest.NewRequest(http.MethodPost, "/withings", strings.NewReader(body)))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	jobs := pub.published()
	if len(jobs) != 1 || jobs[0].Trigger != models.TriggerManual || jobs[0].Window == nil {
		t.Fatalf("jobs = %+v, want one manual job with a window", jobs)
	}
}

func TestWithingsNotification_BodyTooLarge(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.WithingsSecret = ""
	cfg.MaxBodyBytes = 16
	pub := &fakePublisher{}

	w := serve(NewHandler(cfg, pub), httptest.NewRequest(http.MethodPost, "/withings", strings.NewReader(strings.Repeat("a", 64))))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
	if len(pub.published()) != 0 {
		t.Error("oversized body published a job")
	}
}

func TestFitbitVerify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		code       string
		target     string
		wantStatus int
	}{
		{"matching code", testVerifyCode, "/fitbit?verify=" + testVerifyCode, http.StatusNoContent},
		{"wrong code", testVerifyCode, "/fitbit?verify=nope", http.StatusNotFound},
		{"no configured code", "", "/fitbit?verify=anything", http.StatusNotFound},
		{"missing verify", testVerifyCode, "/fitbit", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig()
			cfg.FitbitVerificationCode = tt.code
			w := serve(NewHandler(cfg, &fakePublisher{}), httptest.NewRequest(http.MethodGet, tt.target, http.NoBody))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestFitbitNotification(t *testing.T) {
	t.Parallel()

	const body = `[{"collectionType":"activities","date":"2026-03-01","ownerId":"ABC123"},{"collectionType":"body","date":"2026-03-01","ownerId":"ABC123"},{"collectionType":"sleep","date":"2026-03-01","ownerId":"XYZ789"}]`

	tests := []struct {
		name       string
		signature  string
		pubErr     error
		wantStatus int
		wantJobs   int
	}{
		{"signed batch", fitbitSignature(body, testFitbitSecret), nil, http.StatusNoContent, 2},
		{"signature without trailing ampersand", func() string {
			mac := hmac.New(sha1.New, []byte(testFitbitSecret))
			mac.Write([]byte(body))
			return base64.StdEncoding.EncodeToString(mac.Sum(nil))
		}(), nil, http.StatusForbidden, 0},
		{"missing signature", "", nil, http.StatusForbidden, 0},
		{"publish failure", fitbitSignature(body, testFitbitSecret), errors.New("bus closed"), http.StatusServiceUnavailable, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pub := &fakePublisher{err: tt.pubErr}
			req := httptest.NewRequest(http.MethodPost, "/fitbit", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			if tt.signature != "" {
				req.Header.Set(HeaderFitbitSignature, tt.signature)
			}
			w := serve(NewHandler(testConfig(), pub), req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			jobs := pub.published()
			if len(jobs) != tt.wantJobs {
				t.Fatalf("published %d jobs, want %d", len(jobs), tt.wantJobs)
			}
			if tt.wantJobs == 0 {
				return
			}
			if jobs[0].UserID != "ABC123" || len(jobs[0].Config.EnabledDataTypes) != 4 {
				t.Errorf("first job = %+v, want ABC123 with four data types", jobs[0])
			}
			if jobs[1].UserID != "XYZ789" || jobs[1].Trigger != models.TriggerRealtime {
				t.Errorf("second job = %+v", jobs[1])
			}
		})
	}
}

func TestFitbitNotification_RevokedAccessIsAcknowledged(t *testing.T) {
	t.Parallel()

	body := `[{"collectionType":"userRevokedAccess","ownerId":"ABC123"}]`
	pub := &fakePublisher{}
	req := httptest.NewRequest(http.MethodPost, "/fitbit", strings.NewReader(body))
	req.Header.Set(HeaderFitbitSignature, fitbitSignature(body, testFitbitSecret))

	w := serve(NewHandler(testConfig(), pub), req)
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if len(pub.published()) != 0 {
		t.Error("revoked access published a job")
	}
}

func TestHandler_NilPublisher(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.WithingsSecret = ""
	w := serve(NewHandler(cfg, nil), httptest.NewRequest(http.MethodPost, "/withings", strings.NewReader("userid=1&appli=1")))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestNewHandler_Defaults(t *testing.T) {
	t.Parallel()

	h := NewHandler(Config{}, nil)
	if h.cfg.MaxBodyBytes != DefaultConfig().MaxBodyBytes {
		t.Errorf("MaxBodyBytes = %d", h.cfg.MaxBodyBytes)
	}
	if h.cfg.Aggregation != models.AggregationIndividual {
		t.Errorf("Aggregation = %q", h.cfg.Aggregation)
	}
}
