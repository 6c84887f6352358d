// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/healthsync/internal/aggregation"
	"github.com/tomtom215/healthsync/internal/linking"
	"github.com/tomtom215/healthsync/internal/logging"
	"github.com/tomtom215/healthsync/internal/models"
	"github.com/tomtom215/healthsync/internal/resilience"
	"github.com/tomtom215/healthsync/internal/strategy"
	"github.com/tomtom215/healthsync/internal/validation"
)

// Config tunes the orchestrator.
type Config struct {
	ProviderRetry  resilience.RetryPolicy `koanf:"provider_retry"`
	PublisherRetry resilience.RetryPolicy `koanf:"publisher_retry"`
	// LinkTolerance is how far apart primary and companion records may be.
	LinkTolerance time.Duration `koanf:"link_tolerance" validate:"gte=0"`
	// Concurrency bounds how many data types are processed in parallel
	// within one invocation.
	Concurrency int `koanf:"concurrency" validate:"gte=1,lte=32"`
}

// DefaultConfig returns the operational defaults.
func DefaultConfig() Config {
	return Config{
		ProviderRetry:  resilience.DefaultProviderPolicy(),
		PublisherRetry: resilience.DefaultPublisherPolicy(),
		LinkTolerance:  linking.DefaultMatchTolerance,
		Concurrency:    4,
	}
}

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Ingestors   map[models.Provider]Ingestor
	Transformer Transformer
	Publisher   Publisher
	Breakers    *resilience.Registry
	Retrier     *resilience.Retrier
	Selector    *strategy.Selector
	Aggregator  *aggregation.Engine
	// Metrics may be nil.
	Metrics MetricsSink
	// Now may be nil; defaults to time.Now.
	Now func() time.Time
}

// Request describes one sync invocation.
type Request struct {
	// LastCheckpoint is nil when no checkpoint exists.
	LastCheckpoint *time.Time
	// ManualWindow overrides the default window for manual triggers.
	ManualWindow *models.DateRange
	Config       models.HealthSyncConfig
	// RunID is generated when empty.
	RunID    string
	UserID   string
	Provider models.Provider
	Trigger  models.Trigger
}

// Orchestrator runs sync invocations. It holds no per-invocation state, so
// RunSync may be called concurrently for any number of (user, provider)
// pairs. The only shared mutable state it touches is the breaker registry.
type Orchestrator struct {
	cfg  Config
	deps Deps
}

// ErrMissingDependency is returned by New when a collaborator is nil.
var ErrMissingDependency = errors.New("orchestrator dependency missing")

// New validates deps and returns an Orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case len(deps.Ingestors) == 0:
		return nil, fmt.Errorf("%w: ingestors", ErrMissingDependency)
	case deps.Transformer == nil:
		return nil, fmt.Errorf("%w: transformer", ErrMissingDependency)
	case deps.Publisher == nil:
		return nil, fmt.Errorf("%w: publisher", ErrMissingDependency)
	case deps.Breakers == nil:
		return nil, fmt.Errorf("%w: breaker registry", ErrMissingDependency)
	case deps.Retrier == nil:
		return nil, fmt.Errorf("%w: retrier", ErrMissingDependency)
	case deps.Selector == nil:
		return nil, fmt.Errorf("%w: strategy selector", ErrMissingDependency)
	}
	if deps.Aggregator == nil {
		deps.Aggregator = aggregation.New()
	}
	if deps.Metrics == nil {
		deps.Metrics = nopSink{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Orchestrator{cfg: cfg, deps: deps}, nil
}

// RunSync drives one invocation: strategy selection, fetch, linking,
// aggregation, transform and publish. Each data type moves through its own
// state machine; a failure in one type never aborts the others. RunSync
// never returns an error: every failure is reported in the outcome.
func (o *Orchestrator) RunSync(ctx context.Context, req Request) models.SyncOutcome {
	started := o.deps.Now().UTC()
	if req.RunID == "" {
		req.RunID = uuid.New().String()
	}
	if logging.CorrelationIDFromContext(ctx) == "" {
		ctx = logging.ContextWithCorrelationID(ctx, shortID(req.RunID))
	}

	inv := &invocation{
		o:   o,
		req: req,
		outcome: models.SyncOutcome{
			RunID:          req.RunID,
			UserID:         req.UserID,
			Provider:       req.Provider,
			Trigger:        req.Trigger,
			StartedAt:      started,
			NewCheckpoints: make(map[models.DataType]time.Time),
		},
	}

	logging.Ctx(ctx).Info().
		Str("user_id", req.UserID).
		Str("provider", string(req.Provider)).
		Str("trigger", string(req.Trigger)).
		Msg("Sync started")

	inv.run(ctx)

	out := inv.finish(o.deps.Now().UTC().Sub(started))
	o.deps.Metrics.RecordOutcome(out)

	logging.Ctx(ctx).Info().
		Str("status", string(out.Status)).
		Int("records_processed", out.RecordsProcessed).
		Int("errors", len(out.Errors)).
		Dur("duration", out.Duration).
		Msg("Sync finished")
	return out
}

// invocation is the state of one RunSync call. Each typeRun is written only
// by the goroutine processing it.
type invocation struct {
	o       *Orchestrator
	req     Request
	plan    models.StrategyResult
	types   []*typeRun
	outcome models.SyncOutcome
}

func (inv *invocation) run(ctx context.Context) {
	o, req := inv.o, inv.req

	resolver := linking.ForConfig(req.Config, o.cfg.LinkTolerance)
	enabled := make(map[models.DataType]bool, len(req.Config.EnabledDataTypes))
	for _, dt := range req.Config.EnabledDataTypes {
		enabled[dt] = true
	}
	for _, dt := range resolver.Expand(req.Config.EnabledDataTypes) {
		inv.types = append(inv.types, newTypeRun(dt, !enabled[dt]))
	}

	if err := inv.validate(); err != nil {
		inv.failAll(&resilience.Error{Kind: resilience.KindValidation, Err: err})
		return
	}

	plan, err := o.deps.Selector.Select(strategy.Request{
		Trigger:        req.Trigger,
		LastCheckpoint: req.LastCheckpoint,
		ManualWindow:   req.ManualWindow,
	})
	if err != nil {
		inv.failAll(&resilience.Error{Kind: resilience.KindValidation, Err: err})
		return
	}
	inv.plan = plan
	inv.outcome.Strategy = plan

	ingestor, ok := o.deps.Ingestors[req.Provider]
	if !ok {
		inv.failAll(&resilience.Error{Kind: resilience.KindValidation, Err: fmt.Errorf("no ingestor for provider %q", req.Provider)})
		return
	}
	inv.skipUnsupported(ingestor)

	logging.Ctx(ctx).Debug().
		Str("kind", string(plan.Kind)).
		Time("window_start", plan.Window.Start).
		Time("window_end", plan.Window.End).
		Int("batch_size", plan.BatchSize).
		Str("priority", string(plan.Priority)).
		Msg("Strategy selected")

	// Fetch every type before linking so companions are available.
	inv.parallel(func(tr *typeRun) { inv.fetch(ctx, ingestor, tr) })

	fetched := make(map[models.DataType][]models.Record, len(inv.types))
	for _, tr := range inv.types {
		if tr.fetched {
			fetched[tr.result.DataType] = tr.records
		}
	}

	inv.parallel(func(tr *typeRun) { inv.process(ctx, resolver, fetched, tr) })
}

func (inv *invocation) validate() error {
	req := inv.req
	if req.UserID == "" {
		return errors.New("user id is required")
	}
	if !req.Provider.Valid() {
		return fmt.Errorf("unknown provider %q", req.Provider)
	}
	if !req.Trigger.Valid() {
		return fmt.Errorf("unknown trigger %q", req.Trigger)
	}
	if err := validation.ValidateStruct(req.Config); err != nil {
		return fmt.Errorf("sync config: %w", err)
	}
	if req.Config.UserID != req.UserID {
		return fmt.Errorf("sync config belongs to %q, not %q", req.Config.UserID, req.UserID)
	}
	for _, tr := range inv.types {
		if !tr.result.DataType.Valid() {
			return fmt.Errorf("unknown data type %q", tr.result.DataType)
		}
	}
	return nil
}

func (inv *invocation) skipUnsupported(ingestor Ingestor) {
	caps, ok := ingestor.(CapabilityReporter)
	if !ok {
		return
	}
	supported := caps.SupportedTypes()
	for _, tr := range inv.types {
		if !slices.Contains(supported, tr.result.DataType) {
			tr.skip()
		}
	}
}

// parallel runs fn for every non-terminal type, bounded by Concurrency.
func (inv *invocation) parallel(fn func(tr *typeRun)) {
	var g errgroup.Group
	g.SetLimit(inv.o.cfg.Concurrency)
	for _, tr := range inv.types {
		if tr.result.Status.Terminal() {
			continue
		}
		g.Go(func() error {
			fn(tr)
			return nil
		})
	}
	_ = g.Wait()
}

func (inv *invocation) fetch(ctx context.Context, ingestor Ingestor, tr *typeRun) {
	if tr.abortIfDone(ctx) {
		return
	}
	tr.enter(models.StatusFetching)

	o, req, plan := inv.o, inv.req, inv.plan
	dt := tr.result.DataType
	breaker := o.deps.Breakers.Get(req.Provider.BreakerName())

	attempts := 0
	records, err := resilience.Call(ctx, breaker, o.deps.Retrier, o.cfg.ProviderRetry,
		func(ctx context.Context) ([]models.Record, error) {
			attempts++
			return ingestor.Fetch(ctx, req.UserID, dt, plan.Window, plan.BatchSize)
		})
	tr.result.Attempts = attempts
	if err != nil {
		tr.fail(err)
		logging.Ctx(ctx).Warn().Err(err).Str("data_type", string(dt)).Msg("Fetch failed")
		return
	}

	inWindow := records[:0:0]
	for _, r := range records {
		if plan.Window.Contains(r.Timestamp) && r.DataType == dt {
			inWindow = append(inWindow, r)
		}
	}
	if dropped := len(records) - len(inWindow); dropped > 0 {
		logging.Ctx(ctx).Debug().Str("data_type", string(dt)).Int("dropped", dropped).Msg("Discarded records outside fetch window")
	}
	tr.records = inWindow
	tr.fetched = true
	tr.result.RecordsFetched = len(inWindow)
}

func (inv *invocation) process(ctx context.Context, resolver *linking.Resolver, fetched map[models.DataType][]models.Record, tr *typeRun) {
	o, req, plan := inv.o, inv.req, inv.plan
	dt := tr.result.DataType

	if tr.abortIfDone(ctx) {
		return
	}
	tr.enter(models.StatusLinking)
	linked := resolver.Link(dt, fetched)
	tr.records = linked.Records
	tr.result.IncompleteLinks = linked.Incomplete
	if linked.Incomplete > 0 {
		o.deps.Metrics.RecordIncompleteLinks(req.Provider, dt, linked.Incomplete)
		logging.Ctx(ctx).Warn().
			Str("data_type", string(dt)).
			Int("records", linked.Incomplete).
			Msg("Linked data incomplete")
	}

	if tr.abortIfDone(ctx) {
		return
	}
	tr.enter(models.StatusAggregating)
	if width, ok := aggregation.WidthFor(req.Config.Aggregation); ok && !plan.SkipAggregation {
		agg, err := o.deps.Aggregator.Aggregate(tr.records, width)
		if err != nil {
			tr.fail(&resilience.Error{Kind: resilience.KindValidation, Err: err})
			return
		}
		tr.records = agg
	}

	if tr.abortIfDone(ctx) {
		return
	}
	tr.enter(models.StatusPublishing)
	if err := inv.publish(ctx, tr); err != nil {
		tr.fail(err)
		logging.Ctx(ctx).Warn().Err(err).Str("data_type", string(dt)).Msg("Publish failed")
		return
	}

	tr.complete()
}

func (inv *invocation) publish(ctx context.Context, tr *typeRun) error {
	o := inv.o
	if len(tr.records) == 0 {
		return nil
	}

	resources, err := o.deps.Transformer.Transform(ctx, tr.records, inv.req.Config)
	if err != nil {
		var classified *resilience.Error
		if errors.As(err, &classified) {
			return err
		}
		return &resilience.Error{Kind: resilience.KindValidation, Err: fmt.Errorf("transform: %w", err)}
	}
	tr.result.RecordsTransformed = len(resources)

	breaker := o.deps.Breakers.Get(resilience.BreakerFHIRServer)
	batch := inv.plan.BatchSize
	if batch <= 0 {
		batch = len(resources)
	}
	var total models.PublishResult
	for chunk := range slices.Chunk(resources, batch) {
		res, err := resilience.Call(ctx, breaker, o.deps.Retrier, o.cfg.PublisherRetry,
			func(ctx context.Context) (models.PublishResult, error) {
				return o.deps.Publisher.Publish(ctx, chunk)
			})
		if err != nil {
			tr.result.RecordsPublished = total.Published
			return err
		}
		total.Merge(res)
		tr.result.RecordsPublished = total.Published
		if !res.Success() {
			return &resilience.Error{
				Kind:      resilience.KindAPI,
				Retryable: true,
				Err:       fmt.Errorf("publisher accepted %d of %d resources: %v", res.Published, res.Total, res.Errors),
			}
		}
	}
	return nil
}

func (inv *invocation) failAll(err error) {
	for _, tr := range inv.types {
		if !tr.result.Status.Terminal() {
			tr.fail(err)
		}
	}
}

func (inv *invocation) finish(elapsed time.Duration) models.SyncOutcome {
	out := inv.outcome
	out.Duration = elapsed
	for _, tr := range inv.types {
		out.Results = append(out.Results, tr.result)
		if tr.result.Status == models.StatusFailed {
			out.Errors = append(out.Errors, models.SyncError{
				DataType: tr.result.DataType,
				Stage:    tr.result.Stage,
				Kind:     tr.result.ErrorKind,
				Message:  tr.result.Error,
			})
		}
		if tr.result.Succeeded() {
			out.RecordsProcessed += tr.result.RecordsFetched
			out.NewCheckpoints[tr.result.DataType] = inv.plan.Window.End
		}
	}
	out.Status = models.Summarize(out.Results)
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
