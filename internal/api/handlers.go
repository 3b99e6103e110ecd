// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/fieldguard/internal/audit"
	"github.com/tomtom215/fieldguard/internal/auth"
	"github.com/tomtom215/fieldguard/internal/detection"
	"github.com/tomtom215/fieldguard/internal/disclosure"
	"github.com/tomtom215/fieldguard/internal/session"
)

// ReadinessCheck is one dependency checked by the readiness endpoint.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps are the services behind the HTTP API.
type Deps struct {
	Sessions   *session.Manager
	Reveals    *disclosure.Service
	Audit      audit.Store
	Aggregator *detection.Aggregator
	Readiness  []ReadinessCheck
}

// Handler serves the REST endpoints.
type Handler struct {
	deps      Deps
	startTime time.Time
}

// NewHandler creates the handler set.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps, startTime: time.Now()}
}

// currentSession returns the caller's live session, writing the error
// response when there is none.
func (h *Handler) currentSession(w http.ResponseWriter, r *http.Request) (*session.Session, *auth.Identity, bool) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		respondError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return nil, nil, false
	}
	s, err := h.deps.Sessions.Get(id.SessionID)
	if err != nil {
		respondError(w, r, http.StatusNotFound, "SESSION_NOT_STARTED", "No active session; start one first", nil)
		return nil, nil, false
	}
	return s, id, true
}
