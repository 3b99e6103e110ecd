// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package api

import (
	"net/http"

	"github.com/tomtom215/fieldguard/internal/models"
	"github.com/tomtom215/fieldguard/internal/signals"
)

// ProtectionState handles GET /api/v1/protection/state.
func (h *Handler) ProtectionState(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	state := models.ProtectionState{Protected: s.Protected(), Fields: s.Fields()}
	if st, ok := s.LedgerState(); ok {
		state.Ledger = &st
	}
	respondData(w, r, http.StatusOK, state)
}

// DismissOverlay handles POST /api/v1/protection/dismiss. Only a WARNED or
// CRITICAL overlay can be dismissed.
func (h *Handler) DismissOverlay(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	res := models.DismissResult{Dismissed: s.Dismiss()}
	if st, ok := s.LedgerState(); ok {
		res.Ledger = &st
	}
	respondData(w, r, http.StatusOK, res)
}

// ProtectionEvents handles POST /api/v1/protection/events, the batch
// fallback for clients that cannot hold a websocket. Events are dispatched
// in order; the answer carries one decision per event.
func (h *Handler) ProtectionEvents(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	var batch models.EventBatch
	if !decodeJSON(w, r, &batch) {
		return
	}

	out := models.EventDecisions{Decisions: make([]signals.Decision, len(batch.Events))}
	for i, ev := range batch.Events {
		out.Decisions[i] = s.Dispatch(ev)
	}
	if st, ok := s.LedgerState(); ok {
		out.Ledger = &st
	}
	respondData(w, r, http.StatusOK, out)
}
