// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/fieldguard/internal/detection"
	"github.com/tomtom215/fieldguard/internal/logging"
	"github.com/tomtom215/fieldguard/internal/models"
)

// Suspicious handles GET /api/v1/suspicious: the patterns of the latest
// pass and the aggregator status.
func (h *Handler) Suspicious(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, models.SuspiciousOverview{
		Patterns: h.deps.Aggregator.Patterns(),
		Status:   h.deps.Aggregator.Status(),
	})
}

// SuspiciousIncidents handles GET /api/v1/suspicious/incidents.
func (h *Handler) SuspiciousIncidents(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, h.deps.Aggregator.Incidents())
}

// RefreshSuspicious handles POST /api/v1/suspicious/refresh: an immediate
// pass, dispatching any alert that becomes due.
func (h *Handler) RefreshSuspicious(w http.ResponseWriter, r *http.Request) {
	patterns, err := h.deps.Aggregator.Refresh(r.Context(), detection.TriggerManual)
	if err != nil {
		respondError(w, r, http.StatusServiceUnavailable, "AGGREGATOR_ERROR", "Refresh failed", err)
		return
	}
	respondData(w, r, http.StatusOK, models.SuspiciousOverview{
		Patterns: patterns,
		Status:   h.deps.Aggregator.Status(),
	})
}

type userParam struct {
	UserID string `json:"user_id" validate:"required,max=128,entity_id"`
}

// ResendAlert handles POST /api/v1/suspicious/{user}/resend. The manual
// alert does not affect deduplication of automatic ones.
func (h *Handler) ResendAlert(w http.ResponseWriter, r *http.Request) {
	p := userParam{UserID: chi.URLParam(r, "user")}
	if !validateRequest(w, r, &p) {
		return
	}
	alert, err := h.deps.Aggregator.Resend(r.Context(), p.UserID)
	switch {
	case errors.Is(err, detection.ErrNotFlagged):
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "User is not currently flagged", nil)
	case err != nil:
		respondError(w, r, http.StatusBadGateway, "DISPATCH_FAILED", "Alert could not be delivered", err)
	default:
		logging.Ctx(r.Context()).Info().
			Str("user_id", logging.SanitizeUserID(p.UserID)).
			Str("alert_id", alert.ID).
			Msg("Suspicious activity alert resent")
		respondData(w, r, http.StatusOK, alert)
	}
}
