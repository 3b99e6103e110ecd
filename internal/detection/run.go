// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package detection

import (
	"context"
	"time"

	"github.com/tomtom215/fieldguard/internal/audit"
	"github.com/tomtom215/fieldguard/internal/logging"
)

// RunWithContext runs a startup pass, then refreshes on every poll tick and
// on every reveal pushed by the feed. When the feed is absent or drops, the
// poll alone keeps passes going while the subscription is retried. It
// returns when ctx is canceled.
func (a *Aggregator) RunWithContext(ctx context.Context) error {
	log := logging.Ctx(ctx).With().Str("component", "aggregator").Logger()
	clk := a.cfg.Clock

	a.refresh(ctx, TriggerStartup)

	ticker := clk.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	var (
		entries <-chan *audit.Entry
		resub   <-chan time.Time
	)
	subscribe := func() {
		resub = nil
		if a.feed == nil {
			return
		}
		ch, err := a.feed.Subscribe(ctx)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", a.cfg.ResubscribeDelay).
				Msg("Audit feed unavailable, falling back to polling")
			resub = clk.After(a.cfg.ResubscribeDelay)
			return
		}
		entries = ch
		log.Debug().Msg("Subscribed to audit feed")
	}
	subscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			a.refresh(ctx, TriggerPoll)

		case <-resub:
			subscribe()

		case e, ok := <-entries:
			if !ok {
				entries = nil
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn().Dur("retry_in", a.cfg.ResubscribeDelay).
					Msg("Audit feed closed, falling back to polling")
				resub = clk.After(a.cfg.ResubscribeDelay)
				continue
			}
			if !e.Action.IsReveal() {
				continue
			}
			a.drain(entries)
			a.refresh(ctx, TriggerPush)
		}
	}
}

// drain discards entries already queued; one pass covers them all.
func (a *Aggregator) drain(entries <-chan *audit.Entry) {
	for {
		select {
		case _, ok := <-entries:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (a *Aggregator) refresh(ctx context.Context, trigger Trigger) {
	if _, err := a.Refresh(ctx, trigger); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("trigger", string(trigger)).Msg("Aggregator pass failed")
	}
}
