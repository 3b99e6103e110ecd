// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/fieldguard/internal/auth"
	"github.com/tomtom215/fieldguard/internal/disclosure"
	"github.com/tomtom215/fieldguard/internal/models"
)

// Reveal handles POST /api/v1/reveal. The caller's identity is the rate
// limit key; the body names the record and the field.
func (h *Handler) Reveal(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		respondError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return
	}
	var body disclosure.RevealBody
	if !decodeJSON(w, r, &body) {
		return
	}

	value, err := h.deps.Reveals.Reveal(r.Context(), disclosure.RevealRequest{
		UserID:   id.UserID,
		EntityID: body.EntityID,
		Kind:     body.FieldKind,
	})
	if err != nil {
		h.respondRevealError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, disclosure.RevealResult{Value: value})
}

func (h *Handler) respondRevealError(w http.ResponseWriter, r *http.Request, err error) {
	var rl *disclosure.RateLimitError
	switch {
	case errors.As(err, &rl):
		reset := rl.ResetAt.UTC()
		w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfterSeconds()))
		respondAPIError(w, r, http.StatusTooManyRequests, &models.APIError{
			Code:              disclosure.CodeRateLimited,
			Message:           "Reveal limit reached",
			RetryAfterSeconds: rl.RetryAfterSeconds(),
			ResetAt:           &reset,
		}, nil)
	case errors.Is(err, disclosure.ErrNotFound):
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "Record not found", nil)
	case errors.Is(err, disclosure.ErrInvalidKind):
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Unsupported field kind", nil)
	default:
		respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Reveal failed", err)
	}
}

type leadParam struct {
	ID string `json:"id" validate:"required,max=128,entity_id"`
}

// LeadContact handles GET /api/v1/leads/{id}/contact: the masked contact
// details rendered before any reveal.
func (h *Handler) LeadContact(w http.ResponseWriter, r *http.Request) {
	p := leadParam{ID: chi.URLParam(r, "id")}
	if !validateRequest(w, r, &p) {
		return
	}
	masked, err := h.deps.Reveals.Masked(r.Context(), p.ID)
	switch {
	case errors.Is(err, disclosure.ErrNotFound):
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "Record not found", nil)
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load contact", err)
	default:
		respondData(w, r, http.StatusOK, masked)
	}
}
