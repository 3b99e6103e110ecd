// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

// Package feed pushes newly committed audit entries to subscribers. The
// aggregator subscribes so a reveal is evaluated as soon as it is written
// instead of on the next poll.
//
// The in-process feed uses Watermill's gochannel Pub/Sub. Building with
// -tags nats adds NewNATS, which carries the same messages over NATS JetStream
// so several Fieldguard instances share one feed.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/fieldguard/internal/audit"
	"github.com/tomtom215/fieldguard/internal/logging"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "fieldguard.audit"

// ErrClosed is returned after Close.
var ErrClosed = errors.New("feed is closed")

// Feed publishes audit entries to a topic and fans them out to subscribers.
type Feed struct {
	pub     message.Publisher
	sub     message.Subscriber
	topic   string
	breaker *gobreaker.CircuitBreaker[any]
	logger  watermill.LoggerAdapter

	// shared is set when pub and sub are the same Pub/Sub.
	shared bool

	mu     sync.RWMutex
	closed bool
}

// NewMemory returns an in-process feed. Messages published before a
// subscriber attaches are not replayed.
func NewMemory(topic string) *Feed {
	if topic == "" {
		topic = DefaultTopic
	}
	logger := newLoggerAdapter()
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, logger)
	return &Feed{pub: ch, sub: ch, topic: topic, logger: logger, shared: true}
}

// Topic returns the topic entries are published to.
func (f *Feed) Topic() string { return f.topic }

// Publish implements audit.Publisher.
func (f *Feed) Publish(ctx context.Context, e *audit.Entry) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrClosed
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	msg := message.NewMessage(e.ID, data)
	msg.Metadata.Set("action", string(e.Action))
	msg.SetContext(ctx)

	if f.breaker == nil {
		return f.pub.Publish(f.topic, msg)
	}
	_, err = f.breaker.Execute(func() (any, error) {
		return nil, f.pub.Publish(f.topic, msg)
	})
	return err
}

// Subscribe streams entries published after the call. The channel closes
// when ctx ends, the feed closes, or the underlying subscription drops;
// callers treat a closed channel as a lost subscription.
func (f *Feed) Subscribe(ctx context.Context) (<-chan *audit.Entry, error) {
	f.mu.RLock()
	closed := f.closed
	f.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	msgs, err := f.sub.Subscribe(ctx, f.topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", f.topic, err)
	}

	out := make(chan *audit.Entry, 64)
	go func() {
		defer close(out)
		for msg := range msgs {
			var e audit.Entry
			if err := json.Unmarshal(msg.Payload, &e); err != nil {
				// Redelivery would fail the same way.
				logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping undecodable feed message")
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case out <- &e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close shuts down the publisher and subscriber. Open subscriptions close.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true

	err := f.pub.Close()
	if !f.shared {
		err = errors.Join(err, f.sub.Close())
	}
	return err
}
