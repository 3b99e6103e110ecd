// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package main

import (
	"context"

	"github.com/tomtom215/fieldguard/internal/api"
	"github.com/tomtom215/fieldguard/internal/config"
	"github.com/tomtom215/fieldguard/internal/disclosure"
	"github.com/tomtom215/fieldguard/internal/logging"
)

// initDisclosure builds the reveal service. The readiness check is nil for
// the in-memory counter; closeFn is always safe to call.
func initDisclosure(ctx context.Context, cfg *config.Config, store *storage) (*disclosure.Service, *api.ReadinessCheck, func(), error) {
	var (
		counter disclosure.RateCounter
		check   *api.ReadinessCheck
		closeFn = func() {}
	)

	switch cfg.Disclosure.CounterBackend {
	case "redis":
		client, err := disclosure.NewRedisClient(ctx, cfg.Disclosure.RedisURL)
		if err != nil {
			return nil, nil, closeFn, err
		}
		counter = disclosure.NewRedisRateCounter(client, nil)
		check = &api.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}}
		closeFn = func() {
			if err := client.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing Redis client")
			}
		}
		logging.Info().Msg("Reveal quota shared through Redis")
	default:
		counter = disclosure.NewMemoryRateCounter(nil)
		logging.Info().Msg("Reveal quota kept in memory (single instance only)")
	}

	svc := disclosure.NewService(store.directory, counter, store.audit, disclosure.ServiceConfig{
		Limit:  cfg.Disclosure.RevealLimit,
		Window: cfg.Disclosure.RevealWindow,
	})
	return svc, check, closeFn, nil
}
