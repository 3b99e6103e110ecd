// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

// Package websocket carries the browser protocol of a Fieldguard session.
//
// Inbound frames are {"type", "seq", "data"}. The client streams raw
// environment events (env_event) and answers each with a decision telling the
// page whether to prevent the default action. It can also reveal, hide and
// close contact fields and dismiss the warning overlay. Outbound frames are
// {"type", "seq", "data"}; replies echo the request seq, pushes carry none.
//
// The Hub tracks connections and fans admin broadcasts (suspicious activity
// alerts, audit entries) out to clients allowed to see them.
package websocket

import (
	"time"

	"github.com/goccy/go-json"
)

// Inbound message types.
const (
	MessageTypePing           = "ping"
	MessageTypeEnvEvent       = "env_event"
	MessageTypeRevealField    = "reveal_field"
	MessageTypeHideField      = "hide_field"
	MessageTypeCloseField     = "close_field"
	MessageTypeDismissOverlay = "dismiss_overlay"
)

// Outbound message types not emitted by the session itself.
const (
	MessageTypePong       = "pong"
	MessageTypeDecision   = "decision"
	MessageTypeFieldView  = "field_view"
	MessageTypeAck        = "ack"
	MessageTypeError      = "error"
	MessageTypeAuditEntry = "audit_entry"
)

// Error codes carried by error messages.
const (
	CodeBadRequest  = "BAD_REQUEST"
	CodeUnknownType = "UNKNOWN_TYPE"
	CodeThrottled   = "THROTTLED"
	CodeNotFound    = "NOT_FOUND"
	CodeRateLimited = "RATE_LIMITED"
	CodeConflict    = "CONFLICT"
	CodeInternal    = "INTERNAL_ERROR"
)

// Message is an outbound frame.
type Message struct {
	Type string      `json:"type"`
	Seq  uint64      `json:"seq,omitempty"`
	Data interface{} `json:"data"`
}

// Inbound is a frame sent by the browser.
type Inbound struct {
	Type string          `json:"type"`
	Seq  uint64          `json:"seq,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// FieldRef names an open field.
type FieldRef struct {
	FieldID string `json:"field_id" validate:"required,max=160"`
}

// ErrorData is the payload of an error message.
type ErrorData struct {
	Code              string     `json:"code"`
	Message           string     `json:"message"`
	RetryAfterSeconds int        `json:"retry_after_seconds,omitempty"`
	ResetAt           *time.Time `json:"reset_at,omitempty"`
}

// AckData is the payload of an ack message.
type AckData struct {
	OK bool `json:"ok"`
}
