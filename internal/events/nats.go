// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

//go:build nats

package events

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
)

// newNATSPubSub connects a JetStream publisher and a durable, queue-grouped
// subscriber, starting an embedded server first when configured. Job
// messages carry their id as Nats-Msg-Id so JetStream drops duplicate
// submissions. The returned shutdown func stops the embedded server and is
// nil otherwise.
func newNATSPubSub(cfg NATSConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, func() error, error) {
	var shutdown func() error
	if cfg.Embedded.Enabled {
		srv, err := startEmbeddedServer(cfg.Embedded)
		if err != nil {
			return nil, nil, nil, err
		}
		cfg.URL = srv.ClientURL()
		shutdown = srv.Shutdown
		logger.Info("Embedded NATS server started", watermill.LogFields{"url": cfg.URL, "store_dir": cfg.Embedded.StoreDir})
	}
	fail := func(err error) (message.Publisher, message.Subscriber, func() error, error) {
		if shutdown != nil {
			_ = shutdown()
		}
		return nil, nil, nil, err
	}

	connOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: connOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return fail(fmt.Errorf("create NATS publisher: %w", err))
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: max(cfg.SubscribersCount, 1),
		AckWaitTimeout:   cfg.AckWait,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      connOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			DurablePrefix: cfg.DurableName,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.MaxDeliver(cfg.MaxDeliver),
				natsgo.AckWait(cfg.AckWait),
				natsgo.DeliverNew(),
			},
		},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return fail(fmt.Errorf("create NATS subscriber: %w", err))
	}

	logger.Info("NATS transport connected", watermill.LogFields{"url": cfg.URL, "queue_group": cfg.QueueGroup})
	return natsIDPublisher{pub}, sub, shutdown, nil
}

// natsIDPublisher sets Nats-Msg-Id from the message UUID for JetStream
// deduplication.
type natsIDPublisher struct {
	message.Publisher
}

func (p natsIDPublisher) Publish(topic string, msgs ...*message.Message) error {
	for _, m := range msgs {
		if m.Metadata.Get(natsgo.MsgIdHdr) == "" {
			m.Metadata.Set(natsgo.MsgIdHdr, m.UUID)
		}
	}
	return p.Publisher.Publish(topic, msgs...)
}
