// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/fieldguard/internal/audit"
)

func recv(t *testing.T, ch <-chan *audit.Entry) *audit.Entry {
	t.Helper()
	select {
	case e, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed")
		}
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed entry")
		return nil
	}
}

func TestMemoryFeed_PublishSubscribe(t *testing.T) {
	t.Parallel()

	f := NewMemory("")
	defer f.Close()
	if f.Topic() != DefaultTopic {
		t.Errorf("Topic = %q", f.Topic())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := f.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	in := &audit.Entry{ID: "e-1", UserID: "u1", Action: audit.ActionRevealedEmail, EntityType: "lead", EntityID: "l1", CreatedAt: at}
	if err := f.Publish(ctx, in); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got := recv(t, ch)
	if got.ID != "e-1" || got.Action != audit.ActionRevealedEmail || !got.CreatedAt.Equal(at) {
		t.Errorf("got %+v", got)
	}
}

func TestMemoryFeed_FanOut(t *testing.T) {
	t.Parallel()

	f := NewMemory("t")
	defer f.Close()
	ctx := context.Background()

	a, _ := f.Subscribe(ctx)
	b, _ := f.Subscribe(ctx)
	if err := f.Publish(ctx, &audit.Entry{ID: "e-2", Action: audit.ActionRevealedPhone}); err != nil {
		t.Fatal(err)
	}
	if recv(t, a).ID != "e-2" || recv(t, b).ID != "e-2" {
		t.Error("both subscribers should receive the entry")
	}
}

func TestMemoryFeed_CloseEndsSubscription(t *testing.T) {
	t.Parallel()

	f := NewMemory("t")
	ch, err := f.Subscribe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed")
	}

	if err := f.Publish(context.Background(), &audit.Entry{ID: "x"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close = %v", err)
	}
	if _, err := f.Subscribe(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after Close = %v", err)
	}
}

func TestMemoryFeed_ContextCancelEndsSubscription(t *testing.T) {
	t.Parallel()

	f := NewMemory("t")
	defer f.Close()
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := f.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("unexpected entry")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}
