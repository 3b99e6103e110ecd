// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package services

import (
	"context"
	"time"

	"github.com/tomtom215/fieldguard/internal/logging"
)

// GarbageCollector reclaims storage. Satisfied by
// *session.BadgerRevocationStore.
type GarbageCollector interface {
	RunGC() error
}

// PeriodicService runs a task on a fixed interval. A failing run is logged
// and retried on the next tick; it does not restart the service.
type PeriodicService struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context) error
}

// NewPeriodicService runs task every interval (default one minute).
func NewPeriodicService(name string, interval time.Duration, task func(ctx context.Context) error) *PeriodicService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PeriodicService{name: name, interval: interval, task: task}
}

// NewRevocationGCService runs value log GC on the revocation store.
func NewRevocationGCService(gc GarbageCollector, interval time.Duration) *PeriodicService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return NewPeriodicService("revocation-gc", interval, func(context.Context) error {
		return gc.RunGC()
	})
}

// Serve implements suture.Service.
func (p *PeriodicService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.task(ctx); err != nil {
				logging.Warn().Err(err).Str("service", p.name).Msg("Periodic task failed")
			}
		}
	}
}

func (p *PeriodicService) String() string {
	return p.name
}
