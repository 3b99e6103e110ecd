// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package authz

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/tomtom215/fieldguard/internal/auth"
)

func newTestEnforcer(t *testing.T) *Enforcer {
	t.Helper()
	e, err := NewEnforcer(Config{})
	if err != nil {
		t.Fatalf("NewEnforcer() error = %v", err)
	}
	return e
}

func TestEnforcer_EmbeddedPolicy(t *testing.T) {
	t.Parallel()
	e := newTestEnforcer(t)

	tests := []struct {
		role, obj, act string
		want           bool
	}{
		{auth.RoleAgent, "/api/v1/reveal", "write", true},
		{auth.RoleAgent, "/api/v1/leads/lead-42/contact", "read", true},
		{auth.RoleAgent, "/api/v1/audit", "read", false},
		{auth.RoleAgent, "/api/v1/suspicious/refresh", "write", false},
		{auth.RoleAgent, "/api/v1/sessions/current", "delete", true},
		{auth.RoleAgent, "/api/v1/sessions/other", "delete", false},
		{auth.RoleAdmin, "/api/v1/reveal", "write", true},
		{auth.RoleAdmin, "/api/v1/audit", "read", true},
		{auth.RoleAdmin, "/api/v1/suspicious/agent-1/resend", "write", true},
		{auth.RoleAdmin, "/api/v1/sessions/other", "delete", true},
		{"", "/api/v1/reveal", "write", false},
		{"viewer", "/api/v1/reveal", "write", false},
	}
	for _, tt := range tests {
		t.Run(tt.role+" "+tt.act+" "+tt.obj, func(t *testing.T) {
			t.Parallel()
			got, err := e.Allowed(tt.role, tt.obj, tt.act)
			if err != nil {
				t.Fatalf("Allowed() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Allowed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnforcer_IsExempt(t *testing.T) {
	t.Parallel()
	e := newTestEnforcer(t)
	if !e.IsExempt(auth.RoleAdmin) {
		t.Error("admin should be exempt")
	}
	if e.IsExempt(auth.RoleAgent) || e.IsExempt("") {
		t.Error("agent should not be exempt")
	}
}

func TestEnforcer_Check(t *testing.T) {
	t.Parallel()
	e := newTestEnforcer(t)

	if err := e.Check(&auth.Identity{Role: auth.RoleAgent, Active: true}, "/api/v1/reveal", "write"); err != nil {
		t.Errorf("active agent: %v", err)
	}
	if err := e.Check(&auth.Identity{Role: auth.RoleAdmin, Active: false}, "/api/v1/reveal", "write"); !errors.Is(err, ErrInactive) {
		t.Errorf("inactive admin: %v", err)
	}
	if err := e.Check(nil, "/api/v1/reveal", "write"); !errors.Is(err, ErrInactive) {
		t.Errorf("nil identity: %v", err)
	}
	if err := e.Check(&auth.Identity{Role: auth.RoleAgent, Active: true}, "/api/v1/audit", "read"); !errors.Is(err, ErrForbidden) {
		t.Errorf("agent on audit: %v", err)
	}
}

func TestEnforcer_FilePolicy(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	policy := filepath.Join(dir, "policy.csv")
	if err := os.WriteFile(policy, []byte("p, auditor, /api/v1/audit, read\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	e, err := NewEnforcer(Config{PolicyPath: policy})
	if err != nil {
		t.Fatalf("NewEnforcer() error = %v", err)
	}
	if ok, _ := e.Allowed("auditor", "/api/v1/audit", "read"); !ok {
		t.Error("file policy not applied")
	}
	if ok, _ := e.Allowed(auth.RoleAgent, "/api/v1/reveal", "write"); ok {
		t.Error("embedded policy should not be loaded alongside a file policy")
	}
}

func TestMiddleware_AuthorizeRequest(t *testing.T) {
	t.Parallel()
	mw := NewMiddleware(newTestEnforcer(t))
	h := mw.AuthorizeRequest(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		id     *auth.Identity
		method string
		path   string
		want   int
	}{
		{"no identity", nil, http.MethodGet, "/api/v1/audit", http.StatusUnauthorized},
		{"inactive", &auth.Identity{Role: auth.RoleAdmin}, http.MethodGet, "/api/v1/audit", http.StatusForbidden},
		{"agent denied", &auth.Identity{Role: auth.RoleAgent, Active: true}, http.MethodGet, "/api/v1/audit", http.StatusForbidden},
		{"admin allowed", &auth.Identity{Role: auth.RoleAdmin, Active: true}, http.MethodGet, "/api/v1/audit", http.StatusNoContent},
		{"agent reveal", &auth.Identity{Role: auth.RoleAgent, Active: true}, http.MethodPost, "/api/v1/reveal", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.id != nil {
				req = req.WithContext(auth.ContextWithIdentity(req.Context(), tt.id))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
