// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

//go:build !nats

package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

func newNATSPubSub(NATSConfig, watermill.LoggerAdapter) (message.Publisher, message.Subscriber, func() error, error) {
	return nil, nil, nil, ErrNATSUnavailable
}
