// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/healthsync/internal/logging"
	"github.com/tomtom215/healthsync/internal/models"
)

// Transports.
const (
	TransportMemory = "memory"
	TransportNATS   = "nats"
)

// Metadata keys set on every message.
const (
	MetaCorrelationID = "correlation_id"
	MetaUserID        = "user_id"
	MetaProvider      = "provider"
	MetaTrigger       = "trigger"
	MetaStatus        = "status"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("event bus is closed")
	// ErrNATSUnavailable is returned when the nats transport is requested
	// from a binary built without the nats tag.
	ErrNATSUnavailable = errors.New("nats transport not compiled in (build with -tags nats)")
)

// Config selects and tunes the transport.
type Config struct {
	Transport string `koanf:"transport" validate:"oneof=memory nats"`
	// Topics double as JetStream stream names on the nats transport, so
	// they cannot contain dots.
	JobsTopic     string `koanf:"jobs_topic" validate:"required,excludes=."`
	OutcomesTopic string `koanf:"outcomes_topic" validate:"required,excludes=."`

	// BufferSize is the per-subscriber channel buffer for the memory
	// transport.
	BufferSize int64 `koanf:"buffer_size" validate:"gte=0"`

	NATS NATSConfig `koanf:"nats"`
}

// NATSConfig configures the JetStream transport.
type NATSConfig struct {
	URL              string        `koanf:"url"`
	QueueGroup       string        `koanf:"queue_group"`
	DurableName      string        `koanf:"durable_name"`
	SubscribersCount int           `koanf:"subscribers_count" validate:"gte=0"`
	MaxReconnects    int           `koanf:"max_reconnects"`
	ReconnectWait    time.Duration `koanf:"reconnect_wait"`
	AckWait          time.Duration `koanf:"ack_wait"`
	MaxDeliver       int           `koanf:"max_deliver"`
	CloseTimeout     time.Duration `koanf:"close_timeout"`

	// Embedded runs a JetStream server inside the process. URL is ignored
	// when it is enabled.
	Embedded EmbeddedConfig `koanf:"embedded"`
}

// EmbeddedConfig configures the in-process NATS server used by
// single-instance deployments.
type EmbeddedConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	// Port -1 picks a random free port.
	Port     int    `koanf:"port" validate:"gte=-1,lte=65535"`
	StoreDir string `koanf:"store_dir" validate:"required_if=Enabled true"`
	// MaxMemory and MaxStore cap JetStream usage in bytes. Zero means
	// the server default.
	MaxMemory int64 `koanf:"max_memory" validate:"gte=0"`
	MaxStore  int64 `koanf:"max_store" validate:"gte=0"`
}

// DefaultConfig returns the in-process transport.
func DefaultConfig() Config {
	return Config{
		Transport:     TransportMemory,
		JobsTopic:     "healthsync_jobs",
		OutcomesTopic: "healthsync_outcomes",
		BufferSize:    64,
		NATS: NATSConfig{
			URL:              "nats://127.0.0.1:4222",
			QueueGroup:       "healthsync",
			DurableName:      "healthsync-dispatch",
			SubscribersCount: 1,
			MaxReconnects:    -1,
			ReconnectWait:    2 * time.Second,
			AckWait:          5 * time.Minute,
			MaxDeliver:       5,
			CloseTimeout:     30 * time.Second,
			Embedded: EmbeddedConfig{
				Host:     "127.0.0.1",
				Port:     4222,
				StoreDir: "./data/nats",
			},
		},
	}
}

// Bus carries sync jobs to the dispatcher and sync outcomes away from it.
type Bus struct {
	pub    message.Publisher
	sub    message.Subscriber
	logger watermill.LoggerAdapter
	cfg    Config
	// shutdown stops transport resources owned by the bus, such as an
	// embedded server. May be nil.
	shutdown func() error

	mu     sync.RWMutex
	closed bool
}

// New builds a bus on the configured transport.
func New(cfg Config, logger watermill.LoggerAdapter) (*Bus, error) {
	if logger == nil {
		logger = logging.NewWatermillAdapter()
	}
	switch cfg.Transport {
	case "", TransportMemory:
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: cfg.BufferSize}, logger)
		return NewWithPubSub(cfg, ch, ch, logger), nil
	case TransportNATS:
		pub, sub, shutdown, err := newNATSPubSub(cfg.NATS, logger)
		if err != nil {
			return nil, err
		}
		b := NewWithPubSub(cfg, pub, sub, logger)
		b.shutdown = shutdown
		return b, nil
	default:
		return nil, fmt.Errorf("unknown event transport %q", cfg.Transport)
	}
}

// NewWithPubSub builds a bus over existing watermill endpoints.
func NewWithPubSub(cfg Config, pub message.Publisher, sub message.Subscriber, logger watermill.LoggerAdapter) *Bus {
	if cfg.JobsTopic == "" {
		cfg.JobsTopic = DefaultConfig().JobsTopic
	}
	if cfg.OutcomesTopic == "" {
		cfg.OutcomesTopic = DefaultConfig().OutcomesTopic
	}
	if logger == nil {
		logger = logging.NewWatermillAdapter()
	}
	return &Bus{pub: pub, sub: sub, cfg: cfg, logger: logger}
}

func (b *Bus) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

func (b *Bus) publish(ctx context.Context, topic, id string, payload any, meta map[string]string) error {
	if b.isClosed() {
		return ErrClosed
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	msg := message.NewMessage(id, data)
	for k, v := range meta {
		msg.Metadata.Set(k, v)
	}
	if cid := logging.CorrelationIDFromContext(ctx); cid != "" {
		msg.Metadata.Set(MetaCorrelationID, cid)
	}
	msg.SetContext(ctx)

	if err := b.pub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// PublishJob enqueues job, assigning an id and submission time when unset.
// It returns the job as published.
func (b *Bus) PublishJob(ctx context.Context, job models.SyncJob) (models.SyncJob, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}
	err := b.publish(ctx, b.cfg.JobsTopic, job.ID, job, map[string]string{
		MetaUserID:   job.UserID,
		MetaProvider: string(job.Provider),
		MetaTrigger:  string(job.Trigger),
	})
	if err != nil {
		return job, err
	}
	return job, nil
}

// PublishOutcome announces a finished sync run.
func (b *Bus) PublishOutcome(ctx context.Context, outcome models.SyncOutcome) error {
	return b.publish(ctx, b.cfg.OutcomesTopic, outcome.RunID, outcome, map[string]string{
		MetaUserID:   outcome.UserID,
		MetaProvider: string(outcome.Provider),
		MetaTrigger:  string(outcome.Trigger),
		MetaStatus:   string(outcome.Status),
	})
}

// Job is a delivered sync job. Exactly one of Ack or Nack must be called.
type Job struct {
	models.SyncJob
	msg *message.Message
}

// Context returns a context carrying the publisher's correlation id.
func (j *Job) Context(parent context.Context) context.Context {
	if cid := j.msg.Metadata.Get(MetaCorrelationID); cid != "" {
		return logging.ContextWithCorrelationID(parent, cid)
	}
	return parent
}

// Ack confirms the job; it will not be redelivered.
func (j *Job) Ack() { j.msg.Ack() }

// Nack asks the transport to redeliver the job.
func (j *Job) Nack() { j.msg.Nack() }

// Jobs subscribes to the jobs topic. The channel closes when ctx is done or
// the bus is closed. Undecodable messages are acked and dropped, since
// redelivery cannot fix them.
func (b *Bus) Jobs(ctx context.Context) (<-chan *Job, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}
	in, err := b.sub.Subscribe(ctx, b.cfg.JobsTopic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", b.cfg.JobsTopic, err)
	}

	out := make(chan *Job)
	go func() {
		defer close(out)
		for msg := range in {
			var job models.SyncJob
			if err := json.Unmarshal(msg.Payload, &job); err != nil {
				b.logger.Error("Dropping undecodable sync job", err, watermill.LogFields{"message_uuid": msg.UUID})
				msg.Ack()
				continue
			}
			if job.ID == "" {
				job.ID = msg.UUID
			}
			select {
			case out <- &Job{SyncJob: job, msg: msg}:
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

// Outcomes subscribes to the outcomes topic. Outcomes are acked on
// delivery.
func (b *Bus) Outcomes(ctx context.Context) (<-chan models.SyncOutcome, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}
	in, err := b.sub.Subscribe(ctx, b.cfg.OutcomesTopic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", b.cfg.OutcomesTopic, err)
	}

	out := make(chan models.SyncOutcome)
	go func() {
		defer close(out)
		for msg := range in {
			var o models.SyncOutcome
			err := json.Unmarshal(msg.Payload, &o)
			msg.Ack()
			if err != nil {
				b.logger.Error("Dropping undecodable sync outcome", err, watermill.LogFields{"message_uuid": msg.UUID})
				continue
			}
			select {
			case out <- o:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close closes both endpoints. It is safe to call more than once.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	errs := []error{b.pub.Close()}
	if any(b.sub) != any(b.pub) {
		errs = append(errs, b.sub.Close())
	}
	if b.shutdown != nil {
		errs = append(errs, b.shutdown())
	}
	return errors.Join(errs...)
}
