// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package models

import (
	"time"

	"github.com/tomtom215/fieldguard/internal/disclosure"
	"github.com/tomtom215/fieldguard/internal/ledger"
	"github.com/tomtom215/fieldguard/internal/signals"
)

// SessionInfo describes a started session.
type SessionInfo struct {
	SessionID string                 `json:"session_id"`
	UserID    string                 `json:"user_id"`
	Role      string                 `json:"role"`
	Protected bool                   `json:"protected"`
	StartedAt time.Time              `json:"started_at"`
	ExpiresAt time.Time              `json:"expires_at"`
	Ledger    *ledger.ViolationState `json:"ledger,omitempty"`
}

// ProtectionState is the agent's view of its own session.
type ProtectionState struct {
	Protected bool                   `json:"protected"`
	Ledger    *ledger.ViolationState `json:"ledger,omitempty"`
	Fields    []disclosure.View      `json:"fields"`
}

// EventBatch is the HTTP alternative to streaming env_event frames.
type EventBatch struct {
	Events []signals.Event `json:"events" validate:"required,min=1,max=100,dive"`
}

// EventDecisions answers an EventBatch in order.
type EventDecisions struct {
	Decisions []signals.Decision     `json:"decisions"`
	Ledger    *ledger.ViolationState `json:"ledger,omitempty"`
}

// DismissResult reports whether the overlay was hidden.
type DismissResult struct {
	Dismissed bool                   `json:"dismissed"`
	Ledger    *ledger.ViolationState `json:"ledger,omitempty"`
}

// SignOutResult confirms a sign-out.
type SignOutResult struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}
