// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/tomtom215/healthsync/internal/models"
	"github.com/tomtom215/healthsync/internal/resilience"
	"github.com/tomtom215/healthsync/internal/strategy"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeIngestor struct {
	mu        stdsync.Mutex
	data      map[models.DataType][]models.Record
	errs      map[models.DataType][]error
	supported []models.DataType
	calls     map[models.DataType]int
}

func newFakeIngestor() *fakeIngestor {
	return &fakeIngestor{
		data:  make(map[models.DataType][]models.Record),
		errs:  make(map[models.DataType][]error),
		calls: make(map[models.DataType]int),
	}
}

func (f *fakeIngestor) Fetch(ctx context.Context, _ string, dt models.DataType, _ models.DateRange, _ int) ([]models.Record, error) {
	f.mu.Lock()
	f.calls[dt]++
	var err error
	if queue := f.errs[dt]; len(queue) > 0 {
		err = queue[0]
		if len(queue) > 1 {
			f.errs[dt] = queue[1:]
		} else {
			delete(f.errs, dt)
		}
	}
	records := f.data[dt]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return records, nil
}

func (f *fakeIngestor) callCount(dt models.DataType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[dt]
}

type capableIngestor struct {
	*fakeIngestor
}

func (c capableIngestor) SupportedTypes() []models.DataType { return c.supported }

type fakeTransformer struct {
	mu  stdsync.Mutex
	got map[models.DataType][]models.Record
}

func (f *fakeTransformer) Transform(_ context.Context, records []models.Record, _ models.HealthSyncConfig) ([]models.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.got == nil {
		f.got = make(map[models.DataType][]models.Record)
	}
	out := make([]models.Resource, 0, len(records))
	for _, r := range records {
		f.got[r.DataType] = append(f.got[r.DataType], r)
		out = append(out, models.Resource{"resourceType": "Observation", "dataType": string(r.DataType)})
	}
	return out, nil
}

func (f *fakeTransformer) records(dt models.DataType) []models.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got[dt]
}

type fakePublisher struct {
	mu      stdsync.Mutex
	batches [][]models.Resource
	reject  int
	err     error
	after   func()
}

func (f *fakePublisher) Publish(_ context.Context, resources []models.Resource) (models.PublishResult, error) {
	f.mu.Lock()
	f.batches = append(f.batches, resources)
	err, reject, after := f.err, f.reject, f.after
	f.mu.Unlock()

	if after != nil {
		defer after()
	}
	if err != nil {
		return models.PublishResult{}, err
	}
	res := models.PublishResult{Total: len(resources), Published: len(resources) - reject, Failed: reject}
	if reject > 0 {
		res.Errors = []string{"rejected"}
	}
	return res, nil
}

func (f *fakePublisher) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakePublisher) resourceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

type recordingSink struct {
	mu         stdsync.Mutex
	outcomes   []models.SyncOutcome
	incomplete map[models.DataType]int
}

func (s *recordingSink) RecordOutcome(o models.SyncOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
}

func (s *recordingSink) RecordIncompleteLinks(_ models.Provider, dt models.DataType, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.incomplete == nil {
		s.incomplete = make(map[models.DataType]int)
	}
	s.incomplete[dt] += n
}

type harness struct {
	ingest    *fakeIngestor
	transform *fakeTransformer
	publish   *fakePublisher
	sink      *recordingSink
	breakers  *resilience.Registry
	strategy  strategy.Config
	cfg       Config
	capable   bool
}

func newHarness() *harness {
	cfg := DefaultConfig()
	cfg.Concurrency = 1
	return &harness{
		ingest:    newFakeIngestor(),
		transform: &fakeTransformer{},
		publish:   &fakePublisher{},
		sink:      &recordingSink{},
		breakers:  resilience.NewRegistry(resilience.DefaultRegistryConfig(), nil),
		strategy:  strategy.DefaultConfig(),
		cfg:       cfg,
	}
}

func (h *harness) build(t *testing.T) *Orchestrator {
	t.Helper()
	var ing Ingestor = h.ingest
	if h.capable {
		ing = capableIngestor{h.ingest}
	}
	clock := func() time.Time { return testNow }
	o, err := New(h.cfg, Deps{
		Ingestors:   map[models.Provider]Ingestor{models.ProviderFitbit: ing},
		Transformer: h.transform,
		Publisher:   h.publish,
		Breakers:    h.breakers,
		Retrier: resilience.NewRetrier(resilience.WithSleep(func(ctx context.Context, _ time.Duration) error {
			return ctx.Err()
		})),
		Selector: strategy.NewSelector(h.strategy, strategy.WithClock(clock)),
		Metrics:  h.sink,
		Now:      clock,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func userConfig(level models.AggregationLevel, types ...models.DataType) models.HealthSyncConfig {
	return models.HealthSyncConfig{
		UserID:           "user-1",
		Aggregation:      level,
		Frequency:        models.FrequencyHourly,
		EnabledDataTypes: types,
	}
}

func reading(dt models.DataType, at time.Time, v float64) models.Record {
	return models.Record{
		Provider:  models.ProviderFitbit,
		UserID:    "user-1",
		DataType:  dt,
		Timestamp: at,
		Value:     models.Scalar(v),
	}
}

func request(trigger models.Trigger, cfg models.HealthSyncConfig) Request {
	return Request{UserID: "user-1", Provider: models.ProviderFitbit, Trigger: trigger, Config: cfg}
}

func mustResult(t *testing.T, out models.SyncOutcome, dt models.DataType) models.DataTypeResult {
	t.Helper()
	r, ok := out.Result(dt)
	if !ok {
		t.Fatalf("no result for %s in %+v", dt, out.Results)
	}
	return r
}

func TestRunSync_IsolatesFailingDataType(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.ingest.errs[models.DataTypeSteps] = []error{&resilience.StatusError{StatusCode: 422, Body: "bad date"}}
	h.ingest.data[models.DataTypeWeight] = []models.Record{
		reading(models.DataTypeWeight, testNow.Add(-10*time.Minute), 72.4),
		reading(models.DataTypeWeight, testNow.Add(-5*time.Minute), 72.3),
	}

	out := h.build(t).RunSync(context.Background(),
		request(models.TriggerRealtime, userConfig(models.AggregationIndividual, models.DataTypeSteps, models.DataTypeWeight)))

	steps := mustResult(t, out, models.DataTypeSteps)
	if steps.Status != models.StatusFailed || steps.ErrorKind != string(resilience.KindValidation) {
		t.Errorf("steps = %+v, want failed validation_error", steps)
	}
	if steps.Stage != models.StatusFetching {
		t.Errorf("steps failed at %s, want fetching", steps.Stage)
	}
	if n := h.ingest.callCount(models.DataTypeSteps); n != 1 {
		t.Errorf("steps fetched %d times, validation errors must not be retried", n)
	}

	weight := mustResult(t, out, models.DataTypeWeight)
	if weight.Status != models.StatusCompleted || weight.RecordsPublished != 2 {
		t.Errorf("weight = %+v, want completed with 2 published", weight)
	}

	if out.Status != models.OutcomePartial {
		t.Errorf("status = %s, want partial", out.Status)
	}
	if len(out.NewCheckpoints) != 1 {
		t.Fatalf("checkpoints = %v, want only weight", out.NewCheckpoints)
	}
	if cp := out.NewCheckpoints[models.DataTypeWeight]; !cp.Equal(testNow) {
		t.Errorf("weight checkpoint = %v, want %v", cp, testNow)
	}
	if len(out.Errors) != 1 || out.Errors[0].DataType != models.DataTypeSteps {
		t.Errorf("errors = %+v", out.Errors)
	}
	if out.Strategy.Kind != models.SyncKindRealtime || out.RunID == "" {
		t.Errorf("outcome metadata = %+v", out)
	}
	if len(h.sink.outcomes) != 1 {
		t.Errorf("metrics sink saw %d outcomes, want 1", len(h.sink.outcomes))
	}
}

func TestRunSync_RetriesTransientFetchErrors(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.ingest.errs[models.DataTypeSteps] = []error{
		&resilience.StatusError{StatusCode: 503},
		&resilience.StatusError{StatusCode: 502},
	}
	h.ingest.data[models.DataTypeSteps] = []models.Record{reading(models.DataTypeSteps, testNow.Add(-time.Minute), 120)}

	out := h.build(t).RunSync(context.Background(),
		request(models.TriggerRealtime, userConfig(models.AggregationIndividual, models.DataTypeSteps)))

	r := mustResult(t, out, models.DataTypeSteps)
	if r.Status != models.StatusCompleted {
		t.Fatalf("steps = %+v, want completed", r)
	}
	if r.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", r.Attempts)
	}
	if out.Status != models.OutcomeCompleted {
		t.Errorf("status = %s", out.Status)
	}
}

func TestRunSync_OpenBreakerFailsFast(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.breakers.Get(models.ProviderFitbit.BreakerName())
	if err := h.breakers.ForceOpen(models.ProviderFitbit.BreakerName()); err != nil {
		t.Fatal(err)
	}

	out := h.build(t).RunSync(context.Background(),
		request(models.TriggerRealtime, userConfig(models.AggregationIndividual, models.DataTypeSteps, models.DataTypeWeight)))

	for _, r := range out.Results {
		if r.Status != models.StatusFailed || r.ErrorKind != string(resilience.KindCircuitOpen) {
			t.Errorf("%s = %+v, want failed circuit_open", r.DataType, r)
		}
	}
	if n := h.ingest.callCount(models.DataTypeSteps) + h.ingest.callCount(models.DataTypeWeight); n != 0 {
		t.Errorf("ingestor called %d times through an open breaker", n)
	}
	if out.Status != models.OutcomeFailed || len(out.NewCheckpoints) != 0 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestRunSync_RepeatedFailuresTripProviderBreaker(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.cfg.ProviderRetry.MaxRetries = 0
	for range 3 {
		h.ingest.errs[models.DataTypeSteps] = append(h.ingest.errs[models.DataTypeSteps], &resilience.StatusError{StatusCode: 500})
	}
	o := h.build(t)
	req := request(models.TriggerRealtime, userConfig(models.AggregationIndividual, models.DataTypeSteps))

	for i := range 3 {
		out := o.RunSync(context.Background(), req)
		if r := mustResult(t, out, models.DataTypeSteps); r.ErrorKind != string(resilience.KindAPI) {
			t.Fatalf("run %d: kind = %s, want api_error", i, r.ErrorKind)
		}
	}

	out := o.RunSync(context.Background(), req)
	if r := mustResult(t, out, models.DataTypeSteps); r.ErrorKind != string(resilience.KindCircuitOpen) {
		t.Errorf("kind after threshold = %s, want circuit_open", r.ErrorKind)
	}
	if n := h.ingest.callCount(models.DataTypeSteps); n != 3 {
		t.Errorf("fetch calls = %d, want 3", n)
	}
}

func TestRunSync_SkipsUnsupportedTypes(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.capable = true
	h.ingest.supported = []models.DataType{models.DataTypeSteps, models.DataTypeHeartRate}
	h.ingest.data[models.DataTypeSteps] = []models.Record{reading(models.DataTypeSteps, testNow.Add(-time.Minute), 80)}

	out := h.build(t).RunSync(context.Background(),
		request(models.TriggerRealtime, userConfig(models.AggregationIndividual, models.DataTypeSteps, models.DataTypeTemperature)))

	if r := mustResult(t, out, models.DataTypeTemperature); r.Status != models.StatusSkipped {
		t.Errorf("temperature = %+v, want skipped", r)
	}
	if h.ingest.callCount(models.DataTypeTemperature) != 0 {
		t.Error("unsupported type was fetched")
	}
	if out.Status != models.OutcomeCompleted {
		t.Errorf("status = %s, skipped types must not degrade the outcome", out.Status)
	}
	if _, ok := out.NewCheckpoints[models.DataTypeTemperature]; ok {
		t.Error("skipped type must not advance its checkpoint")
	}
}

func TestRunSync_FetchesAndLinksCompanions(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.ingest.data[models.DataTypeECG] = []models.Record{{
		Provider:  models.ProviderFitbit,
		UserID:    "user-1",
		DataType:  models.DataTypeECG,
		Timestamp: testNow.Add(-6 * time.Minute),
		Value:     models.Structured(map[string]any{"classification": "sinus_rhythm"}),
	}}
	h.ingest.data[models.DataTypeHeartRate] = []models.Record{reading(models.DataTypeHeartRate, testNow.Add(-5*time.Minute), 64)}

	out := h.build(t).RunSync(context.Background(),
		request(models.TriggerRealtime, userConfig(models.AggregationIndividual, models.DataTypeECG)))

	hr := mustResult(t, out, models.DataTypeHeartRate)
	if !hr.Companion || hr.Status != models.StatusCompleted {
		t.Errorf("heart_rate = %+v, want completed companion", hr)
	}

	ecg := mustResult(t, out, models.DataTypeECG)
	if ecg.Status != models.StatusCompleted || ecg.IncompleteLinks != 0 {
		t.Errorf("ecg = %+v", ecg)
	}
	got := h.transform.records(models.DataTypeECG)
	if len(got) != 1 {
		t.Fatalf("transformer saw %d ECG records", len(got))
	}
	linked, ok := got[0].Meta(models.MetaLinkedRecords)
	if !ok {
		t.Fatal("ECG record missing linked_records")
	}
	if ids, _ := linked.([]string); len(ids) != 1 || ids[0] != string(models.DataTypeHeartRate) {
		t.Errorf("linked_records = %v", linked)
	}
}

func TestRunSync_FlagsMissingCompanions(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.ingest.data[models.DataTypeECG] = []models.Record{{
		Provider:  models.ProviderFitbit,
		UserID:    "user-1",
		DataType:  models.DataTypeECG,
		Timestamp: testNow.Add(-6 * time.Minute),
		Value:     models.Structured(map[string]any{"classification": "afib"}),
	}}
	h.ingest.errs[models.DataTypeHeartRate] = []error{&resilience.StatusError{StatusCode: 401}}

	out := h.build(t).RunSync(context.Background(),
		request(models.TriggerRealtime, userConfig(models.AggregationIndividual, models.DataTypeECG)))

	if r := mustResult(t, out, models.DataTypeHeartRate); r.ErrorKind != string(resilience.KindAuth) {
		t.Errorf("heart_rate = %+v, want auth_error", r)
	}
	ecg := mustResult(t, out, models.DataTypeECG)
	if ecg.Status != models.StatusCompleted || ecg.IncompleteLinks != 1 {
		t.Errorf("ecg = %+v, want completed with one incomplete link", ecg)
	}
	got := h.transform.records(models.DataTypeECG)
	if len(got) != 1 || !got[0].LinkedDataIncomplete() {
		t.Errorf("ECG record not flagged incomplete: %+v", got)
	}
	if h.sink.incomplete[models.DataTypeECG] != 1 {
		t.Errorf("incomplete links metric = %v", h.sink.incomplete)
	}
}

func TestRunSync_AggregatesWhenPreferred(t *testing.T) {
	t.Parallel()

	h := newHarness()
	checkpoint := testNow.Add(-2 * time.Hour)
	h.ingest.data[models.DataTypeSteps] = []models.Record{
		reading(models.DataTypeSteps, testNow.Add(-50*time.Minute), 100),
		reading(models.DataTypeSteps, testNow.Add(-40*time.Minute), 200),
		reading(models.DataTypeSteps, testNow.Add(-30*time.Minute), 300),
	}

	req := request(models.TriggerIncremental, userConfig(models.AggregationHourly, models.DataTypeSteps))
	req.LastCheckpoint = &checkpoint
	out := h.build(t).RunSync(context.Background(), req)

	r := mustResult(t, out, models.DataTypeSteps)
	if r.RecordsFetched != 3 || r.RecordsTransformed != 1 || r.RecordsPublished != 1 {
		t.Errorf("steps = %+v, want 3 fetched collapsed into 1", r)
	}
	got := h.transform.records(models.DataTypeSteps)
	if s, ok := got[0].Summary(); !ok || s.Count != 3 || s.Average != 200 {
		t.Errorf("summary = %+v, %v", s, ok)
	}
	if out.Strategy.Kind != models.SyncKindIncremental {
		t.Errorf("kind = %s", out.Strategy.Kind)
	}
}

func TestRunSync_RealtimeSkipsAggregation(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.ingest.data[models.DataTypeSteps] = []models.Record{
		reading(models.DataTypeSteps, testNow.Add(-10*time.Minute), 10),
		reading(models.DataTypeSteps, testNow.Add(-5*time.Minute), 20),
	}

	out := h.build(t).RunSync(context.Background(),
		request(models.TriggerRealtime, userConfig(models.AggregationHourly, models.DataTypeSteps)))

	if r := mustResult(t, out, models.DataTypeSteps); r.RecordsPublished != 2 {
		t.Errorf("published %d, want raw records", r.RecordsPublished)
	}
}

func TestRunSync_DropsRecordsOutsideWindow(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.ingest.data[models.DataTypeSteps] = []models.Record{
		reading(models.DataTypeSteps, testNow.Add(-time.Hour), 1),
		reading(models.DataTypeSteps, testNow.Add(-time.Minute), 2),
		reading(models.DataTypeSteps, testNow, 3),
	}

	out := h.build(t).RunSync(context.Background(),
		request(models.TriggerRealtime, userConfig(models.AggregationIndividual, models.DataTypeSteps)))

	if r := mustResult(t, out, models.DataTypeSteps); r.RecordsFetched != 1 {
		t.Errorf("fetched = %d, want only the record inside [now-15m, now)", r.RecordsFetched)
	}
}

func TestRunSync_PublishesInBatches(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.strategy.RealtimeBatchSize = 2
	for i := range 5 {
		h.ingest.data[models.DataTypeSteps] = append(h.ingest.data[models.DataTypeSteps],
			reading(models.DataTypeSteps, testNow.Add(-time.Duration(i+1)*time.Minute), float64(i)))
	}

	out := h.build(t).RunSync(context.Background(),
		request(models.TriggerRealtime, userConfig(models.AggregationIndividual, models.DataTypeSteps)))

	if h.publish.batchCount() != 3 || h.publish.resourceCount() != 5 {
		t.Errorf("batches = %d, resources = %d", h.publish.batchCount(), h.publish.resourceCount())
	}
	if r := mustResult(t, out, models.DataTypeSteps); r.RecordsPublished != 5 {
		t.Errorf("published = %d", r.RecordsPublished)
	}
}

func TestRunSync_PartialPublishFailsType(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.publish.reject = 1
	h.ingest.data[models.DataTypeSteps] = []models.Record{
		reading(models.DataTypeSteps, testNow.Add(-2*time.Minute), 1),
		reading(models.DataTypeSteps, testNow.Add(-time.Minute), 2),
	}

	out := h.build(t).RunSync(context.Background(),
		request(models.TriggerRealtime, userConfig(models.AggregationIndividual, models.DataTypeSteps)))

	r := mustResult(t, out, models.DataTypeSteps)
	if r.Status != models.StatusFailed || r.Stage != models.StatusPublishing {
		t.Errorf("steps = %+v, want failed at publishing", r)
	}
	if r.RecordsPublished != 1 {
		t.Errorf("published = %d, want 1", r.RecordsPublished)
	}
	if len(out.NewCheckpoints) != 0 {
		t.Error("partially published type must not advance its checkpoint")
	}
}

func TestRunSync_CancelledBeforeStart(t *testing.T) {
	t.Parallel()

	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := h.build(t).RunSync(ctx,
		request(models.TriggerRealtime, userConfig(models.AggregationIndividual, models.DataTypeSteps, models.DataTypeWeight)))

	for _, r := range out.Results {
		if r.ErrorKind != string(resilience.KindCanceled) {
			t.Errorf("%s = %+v, want canceled", r.DataType, r)
		}
	}
	if out.Status != models.OutcomeFailed {
		t.Errorf("status = %s", out.Status)
	}
}

func TestRunSync_CancellationKeepsCompletedTypes(t *testing.T) {
	t.Parallel()

	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.ingest.data[models.DataTypeSteps] = []models.Record{reading(models.DataTypeSteps, testNow.Add(-time.Minute), 1)}
	h.ingest.data[models.DataTypeWeight] = []models.Record{reading(models.DataTypeWeight, testNow.Add(-time.Minute), 70)}
	h.publish.after = cancel

	out := h.build(t).RunSync(ctx,
		request(models.TriggerRealtime, userConfig(models.AggregationIndividual, models.DataTypeSteps, models.DataTypeWeight)))

	if r := mustResult(t, out, models.DataTypeSteps); r.Status != models.StatusCompleted {
		t.Errorf("steps = %+v, want completed before cancellation", r)
	}
	if r := mustResult(t, out, models.DataTypeWeight); r.ErrorKind != string(resilience.KindCanceled) {
		t.Errorf("weight = %+v, want canceled", r)
	}
	if _, ok := out.NewCheckpoints[models.DataTypeSteps]; !ok || len(out.NewCheckpoints) != 1 {
		t.Errorf("checkpoints = %v", out.NewCheckpoints)
	}
}

func TestRunSync_RejectsInvalidRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"missing user", func(r *Request) { r.UserID = "" }},
		{"unknown provider", func(r *Request) { r.Provider = "garmin" }},
		{"unknown trigger", func(r *Request) { r.Trigger = "cron" }},
		{"config for another user", func(r *Request) { r.Config.UserID = "user-2" }},
		{"unknown aggregation", func(r *Request) { r.Config.Aggregation = "weekly" }},
		{"bad manual window", func(r *Request) {
			r.Trigger = models.TriggerManual
			r.ManualWindow = &models.DateRange{Start: testNow, End: testNow.Add(-time.Hour)}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness()
			req := request(models.TriggerRealtime, userConfig(models.AggregationIndividual, models.DataTypeSteps))
			tt.mutate(&req)

			out := h.build(t).RunSync(context.Background(), req)
			if out.Status != models.OutcomeFailed {
				t.Errorf("status = %s, want failed", out.Status)
			}
			r := mustResult(t, out, models.DataTypeSteps)
			if r.ErrorKind != string(resilience.KindValidation) {
				t.Errorf("kind = %s, want validation_error", r.ErrorKind)
			}
			if h.ingest.callCount(models.DataTypeSteps) != 0 {
				t.Error("invalid request reached the ingestor")
			}
		})
	}
}

func TestRunSync_ConcurrentInvocations(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.cfg.Concurrency = 4
	h.ingest.data[models.DataTypeSteps] = []models.Record{reading(models.DataTypeSteps, testNow.Add(-time.Minute), 1)}
	h.ingest.data[models.DataTypeWeight] = []models.Record{reading(models.DataTypeWeight, testNow.Add(-time.Minute), 70)}
	o := h.build(t)

	var wg stdsync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := o.RunSync(context.Background(),
				request(models.TriggerRealtime, userConfig(models.AggregationIndividual, models.DataTypeSteps, models.DataTypeWeight)))
			if out.Status != models.OutcomeCompleted {
				t.Errorf("status = %s", out.Status)
			}
		}()
	}
	wg.Wait()

	if n := h.publish.resourceCount(); n != 20 {
		t.Errorf("published %d resources, want 20", n)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(DefaultConfig(), Deps{})
	if !errors.Is(err, ErrMissingDependency) {
		t.Errorf("err = %v, want ErrMissingDependency", err)
	}
}
