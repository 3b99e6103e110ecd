// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

// Package models holds the wire types of the HTTP API: the response
// envelope shared by every endpoint and the request and response bodies
// that do not belong to a single domain package.
package models

import (
	"time"
)

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// APIResponse is the envelope of every HTTP response.
//
// Example success:
//
//	{
//	  "status": "success",
//	  "data": {"value": "jane.doe@example.com"},
//	  "metadata": {"timestamp": "2026-03-01T09:00:00Z", "request_id": "9f0c..."}
//	}
//
// Example rate-limited reveal:
//
//	{
//	  "status": "error",
//	  "error": {
//	    "code": "RATE_LIMITED",
//	    "message": "Reveal limit reached",
//	    "retry_after_seconds": 1710,
//	    "reset_at": "2026-03-01T09:30:00Z"
//	  },
//	  "metadata": {"timestamp": "2026-03-01T09:01:30Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data,omitempty"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata describes the response itself.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	Total     *int64    `json:"total,omitempty"`
}

// APIError is the error member of the envelope.
//
// Common codes:
//   - VALIDATION_ERROR: request body or query failed validation
//   - UNAUTHORIZED, SESSION_REVOKED: missing, invalid or signed-out token
//   - FORBIDDEN, ACCOUNT_INACTIVE: authorization denied
//   - NOT_FOUND: unknown lead, session or flagged user
//   - RATE_LIMITED: reveal quota exhausted; RetryAfterSeconds and ResetAt set
//   - INTERNAL_ERROR: anything else, with no detail
type APIError struct {
	Code              string                 `json:"code"`
	Message           string                 `json:"message"`
	Details           map[string]interface{} `json:"details,omitempty"`
	RetryAfterSeconds int                    `json:"retry_after_seconds,omitempty"`
	ResetAt           *time.Time             `json:"reset_at,omitempty"`
}
