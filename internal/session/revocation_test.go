// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package session

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/fieldguard/internal/clock"
)

func TestRevocationStores(t *testing.T) {
	t.Parallel()

	stores := map[string]func(t *testing.T, clk clock.Clock) RevocationStore{
		"memory": func(_ *testing.T, clk clock.Clock) RevocationStore {
			return NewMemoryRevocationStore(clk)
		},
		"badger": func(t *testing.T, clk clock.Clock) RevocationStore {
			s, err := OpenBadgerRevocationStore(t.TempDir(), clk)
			if err != nil {
				t.Fatalf("OpenBadgerRevocationStore() error = %v", err)
			}
			return s
		},
	}
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			clk := clock.Fake(time.Now())
			s := open(t, clk)
			t.Cleanup(func() { _ = s.Close() })

			if revoked, err := s.IsRevoked(ctx, "s-1"); err != nil || revoked {
				t.Fatalf("fresh store: %v, %v", revoked, err)
			}
			if err := s.Revoke(ctx, "s-1", ReasonUser, clk.Now().Add(time.Hour)); err != nil {
				t.Fatalf("Revoke() error = %v", err)
			}
			if err := s.Revoke(ctx, "s-old", ReasonUser, clk.Now().Add(-time.Minute)); err != nil {
				t.Fatalf("Revoke() past expiry error = %v", err)
			}

			if revoked, _ := s.IsRevoked(ctx, "s-1"); !revoked {
				t.Error("s-1 should be revoked")
			}
			if revoked, _ := s.IsRevoked(ctx, "s-old"); revoked {
				t.Error("already expired token should not be stored")
			}

			clk.Advance(time.Hour)
			if revoked, _ := s.IsRevoked(ctx, "s-1"); revoked {
				t.Error("revocation should lapse with the token")
			}
		})
	}
}

func TestBadgerRevocationStore_SurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenBadgerRevocationStore(dir, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Revoke(ctx, "s-1", ReasonViolation, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s, err = OpenBadgerRevocationStore(dir, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if revoked, err := s.IsRevoked(ctx, "s-1"); err != nil || !revoked {
		t.Errorf("after reopen: %v, %v", revoked, err)
	}
}

func TestBadgerRevocationStore_RunGC(t *testing.T) {
	t.Parallel()
	s, err := OpenBadgerRevocationStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.Revoke(context.Background(), "s-1", ReasonAdmin, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if err := s.RunGC(); err != nil {
		t.Errorf("RunGC() error = %v", err)
	}
}
