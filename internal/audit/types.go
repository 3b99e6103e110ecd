// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

// Package audit holds the append-only audit trail. Reveals, violations and
// forced sign-outs are written here, and the suspicious-activity aggregator
// reads it back.
//
// Entries are never updated or deleted by Fieldguard.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Action identifies what an entry records.
type Action string

// RevealPrefix starts every successful-reveal action. The aggregator filters
// on it, so no other action may begin with it.
const RevealPrefix = "revealed_"

const (
	ActionRevealedEmail     Action = RevealPrefix + "email"
	ActionRevealedPhone     Action = RevealPrefix + "phone"
	ActionRevealRateLimited Action = "reveal_rate_limited"
	ActionSecurityViolation Action = "security_violation"
	ActionForcedSignOut     Action = "forced_sign_out"
	ActionSuspiciousAlert   Action = "suspicious_activity_alert"
)

// RevealAction returns the action recorded for a successful reveal of kind.
func RevealAction(kind string) Action {
	return Action(RevealPrefix + kind)
}

// IsReveal reports whether a is a successful-reveal action.
func (a Action) IsReveal() bool {
	return strings.HasPrefix(string(a), RevealPrefix)
}

// Entry is one audit row.
type Entry struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Action     Action          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewEntry builds an entry, encoding details as JSON. CreatedAt is at; the
// store assigns the ID.
func NewEntry(userID string, action Action, entityType, entityID string, details any, at time.Time) (*Entry, error) {
	e := &Entry{
		UserID:     userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		CreatedAt:  at.UTC(),
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("failed to encode audit details: %w", err)
		}
		e.Details = raw
	}
	return e, nil
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	// ActionPrefix matches actions starting with the prefix.
	ActionPrefix string
	Actions      []Action
	UserID       string
	EntityID     string

	// Since is inclusive, Until exclusive.
	Since time.Time
	Until time.Time

	// Limit caps the result; 0 means no cap. Results are newest first.
	Limit int
}

// Matches reports whether e satisfies f.
func (f *Filter) Matches(e *Entry) bool {
	if f.ActionPrefix != "" && !strings.HasPrefix(string(e.Action), f.ActionPrefix) {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if e.Action == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.CreatedAt.Before(f.Until) {
		return false
	}
	return true
}

// Appender is the write side used by the ledger and the reveal service.
type Appender interface {
	Append(ctx context.Context, e *Entry) error
}

// Store is an append-only audit trail.
type Store interface {
	Appender

	// Query returns matching entries newest first.
	Query(ctx context.Context, f Filter) ([]Entry, error)

	// Count returns the number of matching entries, ignoring Limit.
	Count(ctx context.Context, f Filter) (int64, error)
}
