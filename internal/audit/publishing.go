// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package audit

import (
	"context"

	"github.com/tomtom215/fieldguard/internal/logging"
	"github.com/tomtom215/fieldguard/internal/metrics"
)

// Publisher pushes committed entries to the change feed.
type Publisher interface {
	Publish(ctx context.Context, e *Entry) error
}

// PublishingStore appends to a backing Store, then publishes the entry. A
// publish failure is logged; the append already succeeded and is not undone.
type PublishingStore struct {
	Store
	pub Publisher
}

// NewPublishingStore wraps store. pub may be nil.
func NewPublishingStore(store Store, pub Publisher) *PublishingStore {
	return &PublishingStore{Store: store, pub: pub}
}

// Append implements Store.
func (s *PublishingStore) Append(ctx context.Context, e *Entry) error {
	err := s.Store.Append(ctx, e)
	metrics.RecordAuditWrite(string(e.actionOrEmpty()), err)
	if err != nil {
		return err
	}
	if s.pub != nil {
		if perr := s.pub.Publish(ctx, e); perr != nil {
			logging.Ctx(ctx).Warn().Err(perr).
				Str("action", string(e.Action)).
				Msg("Audit entry stored but not published to feed")
		}
	}
	return nil
}

func (e *Entry) actionOrEmpty() Action {
	if e == nil {
		return ""
	}
	return e.Action
}
