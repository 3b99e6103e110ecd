// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package websocket

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/fieldguard/internal/audit"
	"github.com/tomtom215/fieldguard/internal/logging"
)

// ErrFeedClosed is returned when the feed ends while the relay runs.
var ErrFeedClosed = errors.New("audit feed closed")

// FeedSubscriber is the source of audit rows. *feed.Feed implements it.
type FeedSubscriber interface {
	Subscribe(ctx context.Context) (<-chan *audit.Entry, error)
}

// Broadcaster receives relayed rows. *Hub implements it.
type Broadcaster interface {
	BroadcastJSON(messageType string, data interface{})
}

// AuditRelay pushes every audit row from the feed to subscribed websocket
// clients as audit_entry messages.
type AuditRelay struct {
	out  Broadcaster
	feed FeedSubscriber
}

// NewAuditRelay creates a relay from feed to out.
func NewAuditRelay(out Broadcaster, feed FeedSubscriber) *AuditRelay {
	return &AuditRelay{out: out, feed: feed}
}

// RunWithContext relays until ctx ends. A failed or closed subscription is
// returned as an error so the supervisor restarts the relay with backoff.
func (r *AuditRelay) RunWithContext(ctx context.Context) error {
	entries, err := r.feed.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe audit feed: %w", err)
	}
	logging.Ctx(ctx).Debug().Str("component", "audit-relay").Msg("Relaying audit feed to websocket clients")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-entries:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrFeedClosed
			}
			r.out.BroadcastJSON(MessageTypeAuditEntry, e)
		}
	}
}
