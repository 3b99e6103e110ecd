// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/fieldguard/internal/clock"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T) (*TokenManager, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(epoch)
	m, err := NewTokenManager(testSecret, time.Hour, clk)
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}
	return m, clk
}

func TestNewTokenManager_ShortSecret(t *testing.T) {
	t.Parallel()
	if _, err := NewTokenManager("short", time.Hour, nil); err == nil {
		t.Error("NewTokenManager() accepted a short secret")
	}
}

func TestTokenManager_RoundTrip(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t)

	token, issued, err := m.GenerateToken(Identity{UserID: "agent-1", Name: "Ada", Email: "ada@example.com", Role: RoleAgent, Active: true})
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if issued.ID == "" {
		t.Fatal("session ID not assigned")
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	id := claims.Identity()
	if id.UserID != "agent-1" || id.Role != RoleAgent || !id.Active || id.SessionID != issued.ID {
		t.Errorf("identity = %+v", id)
	}
	if !id.ExpiresAt.Equal(epoch.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v", id.ExpiresAt)
	}
	if id.IsAdmin() {
		t.Error("agent reported as admin")
	}
}

func TestTokenManager_Rejects(t *testing.T) {
	t.Parallel()
	m, clk := newTestManager(t)
	good, _, _ := m.GenerateToken(Identity{UserID: "agent-1", Role: RoleAgent, SessionID: "s-1"})

	other, _ := NewTokenManager(strings.Repeat("x", 32), time.Hour, clk)
	foreign, _, _ := other.GenerateToken(Identity{UserID: "agent-1", SessionID: "s-1"})

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "agent-1", ID: "s-1", ExpiresAt: jwt.NewNumericDate(epoch.Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{ID: "s-1", ExpiresAt: jwt.NewNumericDate(epoch.Add(time.Hour))},
	}).SignedString([]byte(testSecret))

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "agent-1", ID: "s-1"},
	}).SignedString([]byte(testSecret))

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", foreign},
		{"alg none", none},
		{"missing subject", noSubject},
		{"missing expiry", noExpiry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := m.ValidateToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("ValidateToken() error = %v, want ErrInvalidToken", err)
			}
		})
	}

	if _, err := m.ValidateToken(good); err != nil {
		t.Fatalf("good token rejected: %v", err)
	}
}

func TestTokenManager_Expiry(t *testing.T) {
	t.Parallel()
	m, clk := newTestManager(t)
	token, _, _ := m.GenerateToken(Identity{UserID: "agent-1", SessionID: "s-1"})

	clk.Advance(59 * time.Minute)
	if _, err := m.ValidateToken(token); err != nil {
		t.Fatalf("token rejected before expiry: %v", err)
	}
	clk.Advance(2 * time.Minute)
	if _, err := m.ValidateToken(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("ValidateToken() error = %v, want expired", err)
	}
}
