// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/healthsync/internal/events"
	"github.com/tomtom215/healthsync/internal/logging"
	"github.com/tomtom215/healthsync/internal/models"
	syncpkg "github.com/tomtom215/healthsync/internal/sync"
)

// Runner executes one sync invocation.
type Runner interface {
	RunSync(ctx context.Context, req syncpkg.Request) models.SyncOutcome
}

// Checkpoints is the slice of the checkpoint store the dispatcher needs.
type Checkpoints interface {
	GetLastSync(ctx context.Context, userID string, provider models.Provider, dt models.DataType) (time.Time, bool, error)
	Advance(ctx context.Context, outcome models.SyncOutcome) ([]models.DataType, error)
}

// Bus delivers jobs and accepts outcomes.
type Bus interface {
	Jobs(ctx context.Context) (<-chan *events.Job, error)
	PublishOutcome(ctx context.Context, outcome models.SyncOutcome) error
}

// Config tunes the dispatcher.
type Config struct {
	// Workers bounds concurrently running jobs.
	Workers int `koanf:"workers" validate:"gte=1"`
	// JobTimeout caps a single sync run. Zero disables the cap.
	JobTimeout time.Duration `koanf:"job_timeout" validate:"gte=0"`
}

// DefaultConfig returns four workers and a ten minute run cap.
func DefaultConfig() Config {
	return Config{Workers: 4, JobTimeout: 10 * time.Minute}
}

// Dispatcher consumes sync jobs, runs them and persists their checkpoints.
// It is the only writer of the checkpoint store.
type Dispatcher struct {
	runner      Runner
	checkpoints Checkpoints
	bus         Bus
	cfg         Config
}

// New creates a Dispatcher.
func New(cfg Config, runner Runner, checkpoints Checkpoints, bus Bus) (*Dispatcher, error) {
	if runner == nil || checkpoints == nil || bus == nil {
		return nil, errors.New("dispatch: runner, checkpoints and bus are required")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Dispatcher{runner: runner, checkpoints: checkpoints, bus: bus, cfg: cfg}, nil
}

// Serve implements suture.Service. It consumes jobs until ctx is canceled,
// then waits for in-flight jobs to finish.
func (d *Dispatcher) Serve(ctx context.Context) error {
	jobs, err := d.bus.Jobs(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to sync jobs: %w", err)
	}
	logging.Info().Int("workers", d.cfg.Workers).Msg("Dispatcher consuming sync jobs")

	var g errgroup.Group
	g.SetLimit(d.cfg.Workers)
	for job := range jobs {
		g.Go(func() error {
			jobCtx := job.Context(ctx)
			if _, err := d.Handle(jobCtx, job.SyncJob); err != nil {
				logging.Ctx(jobCtx).Error().Err(err).Str("job_id", job.ID).Msg("Sync job not settled, requesting redelivery")
				job.Nack()
				return nil
			}
			job.Ack()
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// String implements fmt.Stringer for suture.
func (d *Dispatcher) String() string {
	return "sync-dispatcher"
}

// Handle runs one job: it reads the checkpoint, runs the sync, advances
// the checkpoints the run's window covered and publishes the outcome. A sync that fails is still a
// handled job; an error is returned only when the result could not be
// recorded and the job should be retried.
func (d *Dispatcher) Handle(ctx context.Context, job models.SyncJob) (models.SyncOutcome, error) {
	if d.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.JobTimeout)
		defer cancel()
	}

	checkpoint, err := d.lastCheckpoint(ctx, job)
	if err != nil {
		return models.SyncOutcome{}, err
	}

	req := syncpkg.Request{
		RunID:          job.ID,
		UserID:         job.UserID,
		Provider:       job.Provider,
		Trigger:        job.Trigger,
		Config:         job.Config,
		LastCheckpoint: checkpoint,
	}
	if job.Trigger == models.TriggerManual {
		req.ManualWindow = job.Window
	}
	outcome := d.runner.RunSync(ctx, req)

	// The run may have been canceled; persisting what completed must not be.
	persistCtx := context.WithoutCancel(ctx)
	advanced, err := d.checkpoints.Advance(persistCtx, outcome)
	if err != nil {
		return outcome, fmt.Errorf("persist checkpoints: %w", err)
	}
	if err := d.bus.PublishOutcome(persistCtx, outcome); err != nil {
		// Checkpoints are already durable; redelivery would only repeat work.
		logging.Ctx(ctx).Warn().Err(err).Str("run_id", outcome.RunID).Msg("Failed to publish sync outcome")
	}

	logging.Ctx(ctx).Info().
		Str("job_id", job.ID).
		Str("status", string(outcome.Status)).
		Int("checkpoints_advanced", len(advanced)).
		Msg("Sync job handled")
	return outcome, nil
}

// lastCheckpoint returns the oldest checkpoint across the enabled data
// types, or nil when any of them has never synced, so no type's gap is
// skipped.
func (d *Dispatcher) lastCheckpoint(ctx context.Context, job models.SyncJob) (*time.Time, error) {
	if len(job.Config.EnabledDataTypes) == 0 {
		return nil, nil
	}
	var oldest time.Time
	for _, dt := range job.Config.EnabledDataTypes {
		t, ok, err := d.checkpoints.GetLastSync(ctx, job.UserID, job.Provider, dt)
		if err != nil {
			return nil, fmt.Errorf("read checkpoint: %w", err)
		}
		if !ok {
			return nil, nil
		}
		if oldest.IsZero() || t.Before(oldest) {
			oldest = t
		}
	}
	return &oldest, nil
}
