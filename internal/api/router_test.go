// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldguard/internal/audit"
	"github.com/tomtom215/fieldguard/internal/auth"
	"github.com/tomtom215/fieldguard/internal/authz"
	"github.com/tomtom215/fieldguard/internal/detection"
	"github.com/tomtom215/fieldguard/internal/disclosure"
	"github.com/tomtom215/fieldguard/internal/models"
	"github.com/tomtom215/fieldguard/internal/session"
)

const testSecret = "test-secret-that-is-at-least-32-bytes-long"

type envelope struct {
	Status   string           `json:"status"`
	Data     json.RawMessage  `json:"data"`
	Metadata models.Metadata  `json:"metadata"`
	Error    *models.APIError `json:"error"`
}

type apiFixture struct {
	server *httptest.Server
	tokens *auth.TokenManager
	store  *audit.MemoryStore
	mgr    *session.Manager
	agg    *detection.Aggregator
}

type apiOptions struct {
	revealLimit int
	readiness   []ReadinessCheck
}

func newAPIFixture(t *testing.T, opts apiOptions) *apiFixture {
	t.Helper()
	tokens, err := auth.NewTokenManager(testSecret, time.Hour, nil)
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}
	enforcer, err := authz.NewEnforcer(authz.Config{})
	if err != nil {
		t.Fatalf("NewEnforcer() error = %v", err)
	}

	store := audit.NewMemoryStore(1000)
	dir := disclosure.NewMemoryDirectory(disclosure.Contact{
		EntityID:   "lead-1",
		EntityType: disclosure.EntityTypeLead,
		Email:      "jane.doe@example.com",
		Phone:      "+1 555 0100 42",
	})
	reveals := disclosure.NewService(dir, disclosure.NewMemoryRateCounter(nil), store,
		disclosure.ServiceConfig{Limit: opts.revealLimit})
	mgr := session.NewManager(session.Config{Audit: store, Reveals: reveals, Exempt: enforcer})
	t.Cleanup(func() { _ = mgr.Close() })
	agg := detection.New(detection.Config{}, store, nil, nil)

	h := NewHandler(Deps{
		Sessions:   mgr,
		Reveals:    reveals,
		Audit:      store,
		Aggregator: agg,
		Readiness:  opts.readiness,
	})
	router := NewRouter(h, RouterConfig{
		Middleware: NewChiMiddleware(&ChiMiddlewareConfig{RateLimitDisabled: true}),
		Authn:      auth.NewMiddleware(tokens, mgr),
		Authz:      authz.NewMiddleware(enforcer),
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &apiFixture{server: server, tokens: tokens, store: store, mgr: mgr, agg: agg}
}

func (f *apiFixture) token(t *testing.T, userID, role string) (string, string) {
	t.Helper()
	tok, claims, err := f.tokens.GenerateToken(auth.Identity{UserID: userID, Name: userID, Role: role, Active: true})
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	return tok, claims.ID
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) (*http.Response, envelope) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(data)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.server.URL+path, rdr)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp, env
}

func expectStatus(t *testing.T, resp *http.Response, env envelope, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s status = %d, want %d (error %+v)", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, env.Error)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	failing := []ReadinessCheck{{Name: "audit", Check: func(context.Context) error { return errors.New("down") }}}

	tests := []struct {
		name      string
		readiness []ReadinessCheck
		path      string
		want      int
	}{
		{name: "live", path: "/api/v1/health/live", want: http.StatusOK},
		{name: "ready", path: "/api/v1/health/ready", want: http.StatusOK},
		{name: "not ready", readiness: failing, path: "/api/v1/health/ready", want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newAPIFixture(t, apiOptions{readiness: tt.readiness})
			resp, env := f.do(t, http.MethodGet, tt.path, "", nil)
			expectStatus(t, resp, env, tt.want)
			if resp.Header.Get("X-Request-ID") == "" || env.Metadata.RequestID != resp.Header.Get("X-Request-ID") {
				t.Errorf("request id header %q, metadata %q", resp.Header.Get("X-Request-ID"), env.Metadata.RequestID)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, apiOptions{})
	resp, err := http.Get(f.server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %d", resp.StatusCode)
	}
}

func TestAuthorization(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, apiOptions{})
	agent, _ := f.token(t, "agent-1", auth.RoleAgent)
	admin, _ := f.token(t, "admin-1", auth.RoleAdmin)

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		want     int
		wantCode string
	}{
		{name: "no token", method: http.MethodGet, path: "/api/v1/leads/lead-1/contact", want: http.StatusUnauthorized, wantCode: "UNAUTHORIZED"},
		{name: "garbage token", method: http.MethodGet, path: "/api/v1/leads/lead-1/contact", token: "nope", want: http.StatusUnauthorized, wantCode: "UNAUTHORIZED"},
		{name: "agent reads contact", method: http.MethodGet, path: "/api/v1/leads/lead-1/contact", token: agent, want: http.StatusOK},
		{name: "agent reads audit", method: http.MethodGet, path: "/api/v1/audit", token: agent, want: http.StatusForbidden, wantCode: "FORBIDDEN"},
		{name: "agent lists suspicious", method: http.MethodGet, path: "/api/v1/suspicious", token: agent, want: http.StatusForbidden, wantCode: "FORBIDDEN"},
		{name: "agent revokes another session", method: http.MethodDelete, path: "/api/v1/sessions/other", token: agent, want: http.StatusForbidden, wantCode: "FORBIDDEN"},
		{name: "admin reads audit", method: http.MethodGet, path: "/api/v1/audit", token: admin, want: http.StatusOK},
		{name: "admin inherits agent routes", method: http.MethodGet, path: "/api/v1/leads/lead-1/contact", token: admin, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := f.do(t, tt.method, tt.path, tt.token, nil)
			expectStatus(t, resp, env, tt.want)
			if tt.wantCode != "" && (env.Error == nil || env.Error.Code != tt.wantCode) {
				t.Errorf("error = %+v, want code %s", env.Error, tt.wantCode)
			}
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, apiOptions{})
	agent, sessionID := f.token(t, "agent-1", auth.RoleAgent)

	resp, env := f.do(t, http.MethodPost, "/api/v1/sessions", agent, nil)
	expectStatus(t, resp, env, http.StatusCreated)
	var info models.SessionInfo
	_ = json.Unmarshal(env.Data, &info)
	if info.SessionID != sessionID || !info.Protected || info.Ledger == nil {
		t.Fatalf("session = %+v", info)
	}

	resp, env = f.do(t, http.MethodDelete, "/api/v1/sessions/current", agent, nil)
	expectStatus(t, resp, env, http.StatusOK)

	resp, env = f.do(t, http.MethodGet, "/api/v1/leads/lead-1/contact", agent, nil)
	expectStatus(t, resp, env, http.StatusUnauthorized)
	if env.Error == nil || env.Error.Code != "SESSION_REVOKED" {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestAdminRevokesSession(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, apiOptions{})
	agent, agentSession := f.token(t, "agent-1", auth.RoleAgent)
	admin, _ := f.token(t, "admin-1", auth.RoleAdmin)

	resp, env := f.do(t, http.MethodPost, "/api/v1/sessions", agent, nil)
	expectStatus(t, resp, env, http.StatusCreated)

	resp, env = f.do(t, http.MethodDelete, "/api/v1/sessions/"+agentSession, admin, nil)
	expectStatus(t, resp, env, http.StatusOK)
	if f.mgr.Count() != 0 {
		t.Errorf("sessions = %d", f.mgr.Count())
	}

	resp, env = f.do(t, http.MethodPost, "/api/v1/sessions", agent, nil)
	expectStatus(t, resp, env, http.StatusUnauthorized)

	resp, env = f.do(t, http.MethodDelete, "/api/v1/sessions/bad%20id", admin, nil)
	expectStatus(t, resp, env, http.StatusBadRequest)
}

func TestRevealAndRateLimit(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, apiOptions{revealLimit: 2})
	agent, _ := f.token(t, "agent-1", auth.RoleAgent)
	admin, _ := f.token(t, "admin-1", auth.RoleAdmin)

	for i, kind := range []disclosure.FieldKind{disclosure.KindEmail, disclosure.KindPhone} {
		resp, env := f.do(t, http.MethodPost, "/api/v1/reveal", agent, disclosure.RevealBody{EntityID: "lead-1", FieldKind: kind})
		expectStatus(t, resp, env, http.StatusOK)
		var res disclosure.RevealResult
		_ = json.Unmarshal(env.Data, &res)
		if res.Value == "" || strings.Contains(res.Value, "*") {
			t.Errorf("reveal %d value = %q", i, res.Value)
		}
		if resp.Header.Get("Cache-Control") != "no-store" {
			t.Errorf("Cache-Control = %q", resp.Header.Get("Cache-Control"))
		}
	}

	resp, env := f.do(t, http.MethodPost, "/api/v1/reveal", agent, disclosure.RevealBody{EntityID: "lead-1", FieldKind: disclosure.KindEmail})
	expectStatus(t, resp, env, http.StatusTooManyRequests)
	if env.Error == nil || env.Error.Code != disclosure.CodeRateLimited || env.Error.RetryAfterSeconds <= 0 || env.Error.ResetAt == nil {
		t.Fatalf("error = %+v", env.Error)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}

	resp, env = f.do(t, http.MethodGet, "/api/v1/audit?action_prefix="+audit.RevealPrefix, admin, nil)
	expectStatus(t, resp, env, http.StatusOK)
	if env.Metadata.Total == nil || *env.Metadata.Total != 2 {
		t.Errorf("revealed entries = %v, want 2", env.Metadata.Total)
	}
	resp, env = f.do(t, http.MethodGet, "/api/v1/audit?action="+string(audit.ActionRevealRateLimited), admin, nil)
	expectStatus(t, resp, env, http.StatusOK)
	if env.Metadata.Total == nil || *env.Metadata.Total != 1 {
		t.Errorf("rate limited entries = %v, want 1", env.Metadata.Total)
	}
}

func TestRevealErrors(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, apiOptions{})
	agent, _ := f.token(t, "agent-1", auth.RoleAgent)

	tests := []struct {
		name     string
		body     any
		want     int
		wantCode string
	}{
		{name: "unsupported kind", body: map[string]string{"entity_id": "lead-1", "field_kind": "fax"}, want: http.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
		{name: "missing entity", body: map[string]string{"field_kind": "email"}, want: http.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
		{name: "unknown lead", body: disclosure.RevealBody{EntityID: "lead-404", FieldKind: disclosure.KindEmail}, want: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "not json", body: "reveal please", want: http.StatusBadRequest, wantCode: "BAD_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := f.do(t, http.MethodPost, "/api/v1/reveal", agent, tt.body)
			expectStatus(t, resp, env, tt.want)
			if env.Error == nil || env.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want %s", env.Error, tt.wantCode)
			}
		})
	}
}

func TestLeadContactIsMasked(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, apiOptions{})
	agent, _ := f.token(t, "agent-1", auth.RoleAgent)

	resp, env := f.do(t, http.MethodGet, "/api/v1/leads/lead-1/contact", agent, nil)
	expectStatus(t, resp, env, http.StatusOK)
	var masked disclosure.MaskedContact
	_ = json.Unmarshal(env.Data, &masked)
	if masked.Email == "" || masked.Email == "jane.doe@example.com" || masked.Phone == "+1 555 0100 42" {
		t.Errorf("contact not masked: %+v", masked)
	}

	resp, env = f.do(t, http.MethodGet, "/api/v1/leads/lead-404/contact", agent, nil)
	expectStatus(t, resp, env, http.StatusNotFound)
}

func TestProtectionEndpoints(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, apiOptions{})
	agent, _ := f.token(t, "agent-1", auth.RoleAgent)

	resp, env := f.do(t, http.MethodGet, "/api/v1/protection/state", agent, nil)
	expectStatus(t, resp, env, http.StatusNotFound)

	resp, env = f.do(t, http.MethodPost, "/api/v1/sessions", agent, nil)
	expectStatus(t, resp, env, http.StatusCreated)

	batch := map[string]any{"events": []any{
		map[string]any{"type": "key", "key": map[string]any{"phase": "down", "key": "PrintScreen"}},
		map[string]any{"type": "key", "key": map[string]any{"phase": "down", "key": "a"}},
	}}
	resp, env = f.do(t, http.MethodPost, "/api/v1/protection/events", agent, batch)
	expectStatus(t, resp, env, http.StatusOK)
	var out models.EventDecisions
	_ = json.Unmarshal(env.Data, &out)
	if len(out.Decisions) != 2 || !out.Decisions[0].PreventDefault || out.Decisions[1].PreventDefault {
		t.Fatalf("decisions = %+v", out.Decisions)
	}
	if out.Ledger == nil || out.Ledger.Count != 1 || !out.Ledger.OverlayVisible {
		t.Fatalf("ledger = %+v", out.Ledger)
	}

	resp, env = f.do(t, http.MethodPost, "/api/v1/protection/dismiss", agent, nil)
	expectStatus(t, resp, env, http.StatusOK)
	var dismissed models.DismissResult
	_ = json.Unmarshal(env.Data, &dismissed)
	if !dismissed.Dismissed || dismissed.Ledger.OverlayVisible {
		t.Errorf("dismiss = %+v", dismissed)
	}

	resp, env = f.do(t, http.MethodPost, "/api/v1/protection/events", agent, map[string]any{"events": []any{}})
	expectStatus(t, resp, env, http.StatusBadRequest)
}

func TestSuspiciousFlow(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, apiOptions{})
	agent, _ := f.token(t, "agent-1", auth.RoleAgent)
	admin, _ := f.token(t, "admin-1", auth.RoleAdmin)

	for i := 0; i < 3; i++ {
		resp, env := f.do(t, http.MethodPost, "/api/v1/reveal", agent, disclosure.RevealBody{EntityID: "lead-1", FieldKind: disclosure.KindEmail})
		expectStatus(t, resp, env, http.StatusOK)
	}

	resp, env := f.do(t, http.MethodPost, "/api/v1/suspicious/refresh", admin, nil)
	expectStatus(t, resp, env, http.StatusOK)
	var overview models.SuspiciousOverview
	_ = json.Unmarshal(env.Data, &overview)
	if len(overview.Patterns) != 1 || overview.Patterns[0].UserID != "agent-1" || overview.Patterns[0].RevealCount != 3 {
		t.Fatalf("patterns = %+v", overview.Patterns)
	}

	resp, env = f.do(t, http.MethodGet, "/api/v1/suspicious/incidents", admin, nil)
	expectStatus(t, resp, env, http.StatusOK)
	var incidents []detection.Incident
	_ = json.Unmarshal(env.Data, &incidents)
	if len(incidents) != 1 {
		t.Errorf("incidents = %+v", incidents)
	}

	resp, env = f.do(t, http.MethodPost, "/api/v1/suspicious/agent-1/resend", admin, nil)
	expectStatus(t, resp, env, http.StatusOK)
	var alert detection.Alert
	_ = json.Unmarshal(env.Data, &alert)
	if alert.UserID != "agent-1" {
		t.Errorf("alert = %+v", alert)
	}

	resp, env = f.do(t, http.MethodPost, "/api/v1/suspicious/nobody/resend", admin, nil)
	expectStatus(t, resp, env, http.StatusNotFound)
}

func TestAuditQueryValidation(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, apiOptions{})
	admin, _ := f.token(t, "admin-1", auth.RoleAdmin)

	for _, q := range []string{
		"limit=5000",
		"limit=ten",
		"since=yesterday",
		"since=2026-03-02T00:00:00Z&until=2026-03-01T00:00:00Z",
	} {
		resp, env := f.do(t, http.MethodGet, "/api/v1/audit?"+q, admin, nil)
		if resp.StatusCode != http.StatusBadRequest || env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
			t.Errorf("%s: status %d error %+v", q, resp.StatusCode, env.Error)
		}
	}
}

func TestRevealClientAgainstRouter(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, apiOptions{revealLimit: 1})
	agent, _ := f.token(t, "agent-1", auth.RoleAgent)
	client := disclosure.NewClient(f.server.URL, agent, nil)
	ctx := context.Background()

	value, err := client.Reveal(ctx, "lead-1", disclosure.KindEmail)
	if err != nil || value != "jane.doe@example.com" {
		t.Fatalf("Reveal() = %q, %v", value, err)
	}

	_, err = client.Reveal(ctx, "lead-1", disclosure.KindPhone)
	var rl *disclosure.RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfter <= 0 || rl.ResetAt.IsZero() {
		t.Fatalf("second Reveal() error = %v", err)
	}
}
