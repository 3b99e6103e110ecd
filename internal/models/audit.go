// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package models

import (
	"time"

	"github.com/tomtom215/fieldguard/internal/audit"
	"github.com/tomtom215/fieldguard/internal/detection"
)

// AuditQuery is the query string of GET /api/v1/audit.
type AuditQuery struct {
	ActionPrefix string    `json:"action_prefix" validate:"omitempty,max=64"`
	Action       string    `json:"action" validate:"omitempty,max=64"`
	UserID       string    `json:"user_id" validate:"omitempty,max=128"`
	EntityID     string    `json:"entity_id" validate:"omitempty,max=128,entity_id"`
	Since        time.Time `json:"since"`
	Until        time.Time `json:"until"`
	Limit        int       `json:"limit" validate:"min=1,max=1000"`
}

// Filter converts the query to a store filter.
func (q *AuditQuery) Filter() audit.Filter {
	f := audit.Filter{
		ActionPrefix: q.ActionPrefix,
		UserID:       q.UserID,
		EntityID:     q.EntityID,
		Since:        q.Since,
		Until:        q.Until,
		Limit:        q.Limit,
	}
	if q.Action != "" {
		f.Actions = []audit.Action{audit.Action(q.Action)}
	}
	return f
}

// SuspiciousOverview is the body of GET /api/v1/suspicious.
type SuspiciousOverview struct {
	Patterns []detection.SuspiciousPattern `json:"patterns"`
	Status   detection.Status              `json:"status"`
}
