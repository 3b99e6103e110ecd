// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package detection

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldguard/internal/testinfra"
)

var testAlert = &Alert{
	ID:            "alert-1",
	UserID:        "agent-1",
	UserName:      "Ada Agent",
	RevealCount:   3,
	WindowMinutes: 2,
	DetectedAt:    epoch,
}

func TestWebhookNotifier_Enabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config WebhookConfig
		want   bool
	}{
		{"enabled with URL", WebhookConfig{URL: "https://example.com/hook", Enabled: true}, true},
		{"disabled", WebhookConfig{URL: "https://example.com/hook"}, false},
		{"enabled but no URL", WebhookConfig{Enabled: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			n := NewWebhookNotifier(tt.config)
			if got := n.Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
			if n.Name() != "webhook" {
				t.Errorf("Name() = %q", n.Name())
			}
		})
	}
}

func TestWebhookNotifier_Send(t *testing.T) {
	t.Parallel()
	srv := testinfra.NewWebhookServer(t)
	n := NewWebhookNotifier(WebhookConfig{
		URL:       srv.URL(),
		Headers:   map[string]string{"Authorization": "Bearer hook-token"},
		Enabled:   true,
		RateLimit: time.Millisecond,
	})

	if err := n.Send(context.Background(), testAlert); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got := srv.Captures()
	if len(got) != 1 {
		t.Fatalf("captures = %d", len(got))
	}
	c := got[0]
	if c.Method != http.MethodPost || c.Headers.Get("Authorization") != "Bearer hook-token" ||
		c.Headers.Get("Content-Type") != "application/json" {
		t.Errorf("request = %s %v", c.Method, c.Headers)
	}
	var payload WebhookPayload
	if err := json.Unmarshal(c.Body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.EventType != "suspicious_activity" || payload.Source != "fieldguard" ||
		payload.Alert == nil || payload.Alert.UserID != "agent-1" || payload.Alert.RevealCount != 3 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestWebhookNotifier_DisabledSendsNothing(t *testing.T) {
	t.Parallel()
	srv := testinfra.NewWebhookServer(t)
	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL(), Enabled: true})
	n.SetEnabled(false)

	if err := n.Send(context.Background(), testAlert); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := len(srv.Captures()); got != 0 {
		t.Errorf("captures = %d", got)
	}
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	t.Parallel()
	srv := testinfra.NewWebhookServer(t)
	srv.FailNext(1, http.StatusBadGateway)
	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL(), Enabled: true, RateLimit: time.Millisecond})

	if err := n.Send(context.Background(), testAlert); err == nil {
		t.Fatal("Send() error = nil for 502")
	}
	if err := n.Send(context.Background(), testAlert); err != nil {
		t.Errorf("Send() after recovery error = %v", err)
	}
}

func TestWebhookNotifier_CircuitBreakerOpens(t *testing.T) {
	t.Parallel()
	srv := testinfra.NewWebhookServer(t)
	srv.FailNext(10, http.StatusInternalServerError)
	n := NewWebhookNotifier(WebhookConfig{
		URL:             srv.URL(),
		Enabled:         true,
		RateLimit:       time.Millisecond,
		BreakerFailures: 2,
		BreakerTimeout:  time.Hour,
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := n.Send(ctx, testAlert); err == nil || errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("send %d error = %v, want endpoint failure", i+1, err)
		}
	}
	if err := n.Send(ctx, testAlert); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("third Send() error = %v, want ErrCircuitOpen", err)
	}
	if got := len(srv.Captures()); got != 2 {
		t.Errorf("captures = %d, want the open circuit to short-circuit", got)
	}
}

func TestWebhookNotifier_ContextCanceledDuringRateWait(t *testing.T) {
	t.Parallel()
	srv := testinfra.NewWebhookServer(t)
	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL(), Enabled: true, RateLimit: time.Hour})

	if err := n.Send(context.Background(), testAlert); err != nil {
		t.Fatalf("first Send() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := n.Send(ctx, testAlert); err == nil {
		t.Error("Send() error = nil while rate limited past the deadline")
	}
}

type captureBroadcaster struct {
	types []string
	data  []interface{}
}

func (c *captureBroadcaster) BroadcastJSON(messageType string, data interface{}) {
	c.types = append(c.types, messageType)
	c.data = append(c.data, data)
}

func TestBroadcastNotifier(t *testing.T) {
	t.Parallel()

	b := &captureBroadcaster{}
	n := NewBroadcastNotifier(b, true)
	if !n.Enabled() || n.Name() != "websocket" {
		t.Fatalf("Enabled() = %v Name() = %q", n.Enabled(), n.Name())
	}
	if err := n.Send(context.Background(), testAlert); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(b.types) != 1 || b.types[0] != MessageTypeSuspiciousActivity || b.data[0] != testAlert {
		t.Errorf("broadcast = %v %v", b.types, b.data)
	}

	if NewBroadcastNotifier(nil, true).Enabled() {
		t.Error("nil broadcaster reported enabled")
	}
	off := NewBroadcastNotifier(b, false)
	_ = off.Send(context.Background(), testAlert)
	if len(b.types) != 1 {
		t.Error("disabled notifier broadcast")
	}
}
