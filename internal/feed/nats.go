// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

//go:build nats

package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"
)

// DefaultStream names the JetStream stream holding the feed subject.
const DefaultStream = "FIELDGUARD_AUDIT"

// NATSConfig configures the JetStream-backed feed.
type NATSConfig struct {
	URL   string
	Topic string

	// Stream is the JetStream stream the topic is bound to.
	Stream string
	MaxAge time.Duration

	MaxReconnects int
	ReconnectWait time.Duration

	// BreakerFailures consecutive publish failures open the circuit for
	// BreakerTimeout. Zero disables the breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// NewNATS connects a feed to NATS JetStream. The stream is created or
// updated first. Each subscriber gets an ephemeral consumer delivering only
// new messages.
func NewNATS(ctx context.Context, cfg NATSConfig) (*Feed, error) {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	logger := newLoggerAdapter()

	if err := ensureStream(ctx, cfg.URL, StreamConfig{
		Name:            cfg.Stream,
		Subjects:        []string{cfg.Topic},
		MaxAge:          cfg.MaxAge,
		DuplicateWindow: 2 * time.Minute,
	}); err != nil {
		return nil, err
	}

	natsOpts := []natsgo.Option{
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
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     10 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.BindStream(cfg.Stream),
				natsgo.DeliverNew(),
				natsgo.AckExplicit(),
			},
		},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create NATS subscriber: %w", err)
	}

	f := &Feed{pub: pub, sub: sub, topic: cfg.Topic, logger: logger}
	if cfg.BreakerFailures > 0 {
		f.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        "feed-nats",
			MaxRequests: 1,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Info("Feed circuit breaker state changed", watermill.LogFields{
					"name": name, "from": from.String(), "to": to.String(),
				})
			},
		})
	}
	return f, nil
}
