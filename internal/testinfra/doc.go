// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

// Package testinfra provides helpers shared by Fieldguard tests.
//
// # Webhook Capture
//
// WebhookServer records every request it receives so notifier tests can
// assert on delivered alerts and inject failures:
//
//	hook := testinfra.NewWebhookServer(t)
//	hook.FailNext(2, http.StatusBadGateway)
//	notifier := detection.NewWebhookNotifier(detection.WebhookConfig{URL: hook.URL()})
//
// # Redis Container
//
// Under the integration build tag, NewRedisContainer starts a disposable
// Redis with testcontainers-go for the distributed reveal counter:
//
//	rc := testinfra.NewRedisContainer(t)
//	counter := disclosure.NewRedisRateCounter(rc.Client, nil)
//
// Container tests require Docker and skip when it is unavailable.
package testinfra
