// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package main

import (
	"github.com/tomtom215/fieldguard/internal/config"
	"github.com/tomtom215/fieldguard/internal/detection"
	"github.com/tomtom215/fieldguard/internal/logging"
	"github.com/tomtom215/fieldguard/internal/retry"
)

// initAggregator builds the aggregator and registers its notifiers. It is
// built even when disabled so admins can still refresh by hand.
func initAggregator(cfg *config.Config, store *storage, broadcaster detection.AlertBroadcaster) *detection.Aggregator {
	a := cfg.Aggregator
	agg := detection.New(detection.Config{
		WindowMinutes: a.WindowMinutes,
		Threshold:     a.Threshold,
		PollInterval:  a.PollInterval,
		QueryLimit:    a.QueryLimit,
		RetryCooldown: a.RetryCooldown,
		Retry: retry.Policy{
			Attempts:  a.RetryAttempts,
			BaseDelay: a.RetryBaseDelay,
		},
	}, store.audit, nil, store.feed)

	n := cfg.Notifier
	if n.WebhookEnabled {
		agg.RegisterNotifier(detection.NewWebhookNotifier(detection.WebhookConfig{
			URL:             n.WebhookURL,
			Headers:         n.WebhookHeaders,
			Enabled:         true,
			Timeout:         n.WebhookTimeout,
			RateLimit:       n.WebhookRateLimit,
			BreakerFailures: n.BreakerFailures,
			BreakerTimeout:  n.BreakerTimeout,
		}))
		logging.Info().Str("url", n.WebhookURL).Msg("Webhook notifier registered")
	}
	if n.BroadcastEnabled {
		agg.RegisterNotifier(detection.NewBroadcastNotifier(broadcaster, true))
		logging.Info().Msg("WebSocket alert notifier registered")
	}
	return agg
}
