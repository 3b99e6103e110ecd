// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

//go:build integration

package disclosure

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/fieldguard/internal/clock"
	"github.com/tomtom215/fieldguard/internal/testinfra"
)

func TestRedisRateCounter_SlidingWindow(t *testing.T) {
	rc := testinfra.NewRedisContainer(t)
	ctx := context.Background()

	clk := clock.Fake(epoch)
	c := NewRedisRateCounter(rc.Client, clk)

	for i := 0; i < 3; i++ {
		res, err := c.Allow(ctx, "u1", 3, time.Hour)
		if err != nil || !res.Allowed {
			t.Fatalf("call %d: %+v, %v", i+1, res, err)
		}
		clk.Advance(10 * time.Minute)
	}

	res, err := c.Allow(ctx, "u1", 3, time.Hour)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if res.Allowed || res.Count != 3 || !res.ResetAt.Equal(epoch.Add(time.Hour)) {
		t.Fatalf("4th call: %+v", res)
	}

	clk.Advance(30 * time.Minute)
	res, _ = c.Allow(ctx, "u1", 3, time.Hour)
	if !res.Allowed {
		t.Errorf("after oldest expired: %+v", res)
	}
}

func TestRedisRateCounter_ConcurrentCallersShareLimit(t *testing.T) {
	rc := testinfra.NewRedisContainer(t)
	ctx := context.Background()

	c := NewRedisRateCounter(rc.Client, nil)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Allow(ctx, "burst", DefaultRevealLimit, time.Hour)
			if err != nil {
				t.Errorf("Allow: %v", err)
				return
			}
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != DefaultRevealLimit {
		t.Errorf("allowed = %d, want %d", allowed, DefaultRevealLimit)
	}
}

func TestDuckDBDirectory(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	dir := NewDuckDBDirectory(db)
	if err := dir.CreateTable(ctx); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := dir.Upsert(ctx, testContact); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	updated := testContact
	updated.Phone = "+44 20 7946 0000"
	if err := dir.Upsert(ctx, updated); err != nil {
		t.Fatalf("Upsert replace: %v", err)
	}

	c, err := dir.Contact(ctx, "lead-1")
	if err != nil {
		t.Fatalf("Contact: %v", err)
	}
	if c.Email != testContact.Email || c.Phone != updated.Phone || c.EntityType != EntityTypeLead {
		t.Errorf("Contact = %+v", c)
	}
	if _, err := dir.Contact(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing error = %v", err)
	}
}
