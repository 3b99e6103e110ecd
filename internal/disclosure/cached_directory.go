// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package disclosure

import (
	"context"
	"time"

	"github.com/tomtom215/fieldguard/internal/cache"
	"github.com/tomtom215/fieldguard/internal/clock"
)

// CachedDirectory fronts a slow Directory with an LRU. Misses are not
// cached, so a lead created in the CRM is visible on the next lookup; an
// edited contact may be served stale for up to the TTL.
type CachedDirectory struct {
	next  Directory
	cache *cache.LRU[Contact]
}

// NewCachedDirectory wraps next with a cache of size entries kept for ttl.
func NewCachedDirectory(next Directory, size int, ttl time.Duration, clk clock.Clock) *CachedDirectory {
	return &CachedDirectory{next: next, cache: cache.NewLRU[Contact](size, ttl, clk)}
}

// Contact implements Directory.
func (d *CachedDirectory) Contact(ctx context.Context, entityID string) (*Contact, error) {
	if c, ok := d.cache.Get(entityID); ok {
		return &c, nil
	}
	c, err := d.next.Contact(ctx, entityID)
	if err != nil {
		return nil, err
	}
	d.cache.Add(entityID, *c)
	return c, nil
}

// Invalidate drops entityID so the next lookup reads through.
func (d *CachedDirectory) Invalidate(entityID string) {
	d.cache.Remove(entityID)
}

// Stats reports cache hits, misses and size.
func (d *CachedDirectory) Stats() (hits, misses int64, size int) {
	return d.cache.Stats()
}

var _ Directory = (*CachedDirectory)(nil)
