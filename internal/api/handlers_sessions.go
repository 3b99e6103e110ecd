// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/fieldguard/internal/auth"
	"github.com/tomtom215/fieldguard/internal/logging"
	"github.com/tomtom215/fieldguard/internal/models"
	"github.com/tomtom215/fieldguard/internal/session"
)

// StartSession handles POST /api/v1/sessions. It registers the caller's
// token session and arms protection; calling it again is harmless.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		respondError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return
	}

	s, err := h.deps.Sessions.Start(r.Context(), id)
	switch {
	case errors.Is(err, session.ErrSessionRevoked):
		respondError(w, r, http.StatusUnauthorized, "SESSION_REVOKED", "Session has been signed out", nil)
		return
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start session", err)
		return
	}

	info := models.SessionInfo{
		SessionID: s.ID,
		UserID:    id.UserID,
		Role:      id.Role,
		Protected: s.Protected(),
		StartedAt: s.StartedAt,
		ExpiresAt: id.ExpiresAt,
	}
	if st, ok := s.LedgerState(); ok {
		info.Ledger = &st
	}
	respondData(w, r, http.StatusCreated, info)
}

// EndSession handles DELETE /api/v1/sessions/current.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		respondError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return
	}
	h.signOut(w, r, id.SessionID, session.ReasonUser)
}

type sessionIDParam struct {
	SessionID string `json:"session_id" validate:"required,max=128,entity_id"`
}

// RevokeSession handles DELETE /api/v1/sessions/{id}: an administrator
// signs another session out.
func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	p := sessionIDParam{SessionID: chi.URLParam(r, "id")}
	if !validateRequest(w, r, &p) {
		return
	}
	admin := auth.IdentityFromContext(r.Context())
	logging.Ctx(r.Context()).Info().
		Str("admin_id", logging.SanitizeUserID(admin.UserID)).
		Str("target_session", logging.SanitizeSessionID(p.SessionID)).
		Msg("Administrator revoking session")
	h.signOut(w, r, p.SessionID, session.ReasonAdmin)
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request, sessionID, reason string) {
	if err := h.deps.Sessions.SignOut(r.Context(), sessionID, reason); err != nil {
		respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to sign out", err)
		return
	}
	respondData(w, r, http.StatusOK, models.SignOutResult{SessionID: sessionID, Reason: reason})
}
