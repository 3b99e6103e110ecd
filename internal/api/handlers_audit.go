// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/fieldguard/internal/models"
)

const defaultAuditLimit = 100

// ListAudit handles GET /api/v1/audit.
//
// Query parameters: action_prefix, action, user_id, entity_id, since and
// until (RFC3339), limit (1-1000, default 100). Entries are newest first;
// metadata.total counts every match ignoring limit.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q, ok := parseAuditQuery(w, r)
	if !ok {
		return
	}
	f := q.Filter()

	entries, err := h.deps.Audit.Query(r.Context(), f)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "AUDIT_ERROR", "Failed to query audit log", err)
		return
	}
	total, err := h.deps.Audit.Count(r.Context(), f)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "AUDIT_ERROR", "Failed to count audit log", err)
		return
	}

	md := metadata(r)
	md.Total = &total
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status:   models.StatusSuccess,
		Data:     entries,
		Metadata: md,
	})
}

func parseAuditQuery(w http.ResponseWriter, r *http.Request) (*models.AuditQuery, bool) {
	v := r.URL.Query()
	q := &models.AuditQuery{
		ActionPrefix: v.Get("action_prefix"),
		Action:       v.Get("action"),
		UserID:       v.Get("user_id"),
		EntityID:     v.Get("entity_id"),
		Limit:        defaultAuditLimit,
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer", nil)
			return nil, false
		}
		q.Limit = n
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"since", &q.Since}, {"until", &q.Until}} {
		s := v.Get(p.name)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", p.name+" must be an RFC3339 timestamp", nil)
			return nil, false
		}
		*p.dst = t
	}
	if !q.Since.IsZero() && !q.Until.IsZero() && !q.Since.Before(q.Until) {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "since must be before until", nil)
		return nil, false
	}
	if !validateRequest(w, r, q) {
		return nil, false
	}
	return q, true
}
