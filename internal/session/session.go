// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/fieldguard/internal/auth"
	"github.com/tomtom215/fieldguard/internal/disclosure"
	"github.com/tomtom215/fieldguard/internal/ledger"
	"github.com/tomtom215/fieldguard/internal/signals"
)

// Outbound message types emitted to the connected client.
const (
	MessageLedgerState = "ledger_state"
	MessageFieldState  = "field_state"
	MessageSignedOut   = "signed_out"
	MessageNoSelect    = "no_select"
)

// MetadataFieldID names the clipboard metadata key carrying the field a
// clipboard action happened in.
const MetadataFieldID = "field_id"

// EmitFunc delivers a message to the client attached to a session.
type EmitFunc func(messageType string, data any)

// SignedOut is the payload of a signed_out message.
type SignedOut struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Session binds one authenticated browser session to its protection state.
// Exempt sessions have no Protection Session and no Ledger.
type Session struct {
	ID        string
	Identity  *auth.Identity
	StartedAt time.Time

	protection *signals.Session
	ledger     *ledger.Ledger
	unsub      func()
	manager    *Manager

	mu        sync.Mutex
	emit      EmitFunc
	attachGen uint64
	fields    map[string]*disclosure.Field
	closed    bool
}

// Protected reports whether content protection is active for the session.
func (s *Session) Protected() bool {
	return s.protection != nil
}

// Dispatch feeds a raw environment event to the detectors. A clipboard action
// inside a revealed field is blocked even when the detectors would allow it.
func (s *Session) Dispatch(ev signals.Event) signals.Decision {
	var d signals.Decision
	if s.protection != nil {
		d = s.protection.Dispatch(ev)
	}
	if ev.Type == signals.EventClipboard && ev.Clipboard != nil {
		if id := ev.Clipboard.Metadata[MetadataFieldID]; id != "" {
			if f := s.field(id); f != nil && !f.AllowCopy(ev.Clipboard.Action) {
				d.PreventDefault = true
			}
		}
	}
	return d
}

// LedgerState returns the violation state. ok is false for exempt sessions.
func (s *Session) LedgerState() (state ledger.ViolationState, ok bool) {
	if s.ledger == nil {
		return ledger.ViolationState{State: ledger.StateNormal}, false
	}
	return s.ledger.Snapshot(), true
}

// Dismiss hides a dismissable overlay.
func (s *Session) Dismiss() bool {
	if s.ledger == nil {
		return false
	}
	return s.ledger.Dismiss()
}

// OpenField returns the field for entityID and kind, creating it masked.
func (s *Session) OpenField(ctx context.Context, entityID string, kind disclosure.FieldKind) (*disclosure.Field, error) {
	if !kind.Valid() {
		return nil, disclosure.ErrInvalidKind
	}
	id := entityID + ":" + string(kind)
	if f := s.field(id); f != nil {
		return f, nil
	}

	masked, err := s.manager.cfg.Reveals.Masked(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("load masked contact: %w", err)
	}
	display := masked.Email
	if kind == disclosure.KindPhone {
		display = masked.Phone
	}

	f := disclosure.NewField(disclosure.FieldConfig{
		FieldID:  id,
		EntityID: entityID,
		Kind:     kind,
		Masked:   display,
		AutoHide: s.manager.cfg.AutoHide,
		Clock:    s.manager.cfg.Clock,
		Revealer: disclosure.ServiceRevealer{Service: s.manager.cfg.Reveals, UserID: s.Identity.UserID},
		OnChange: func(v disclosure.View) { s.send(MessageFieldState, v) },
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		f.Close()
		return nil, ErrSessionNotFound
	}
	if existing := s.fields[id]; existing != nil {
		f.Close()
		return existing, nil
	}
	s.fields[id] = f
	return f, nil
}

// RevealField opens the field if needed and reveals it.
func (s *Session) RevealField(ctx context.Context, entityID string, kind disclosure.FieldKind) (disclosure.View, error) {
	f, err := s.OpenField(ctx, entityID, kind)
	if err != nil {
		return disclosure.View{}, err
	}
	err = f.Reveal(ctx)
	return f.View(), err
}

// HideField re-masks an open field.
func (s *Session) HideField(fieldID string) bool {
	f := s.field(fieldID)
	if f == nil {
		return false
	}
	f.Hide()
	return true
}

// CloseField destroys a field and its timers.
func (s *Session) CloseField(fieldID string) bool {
	s.mu.Lock()
	f := s.fields[fieldID]
	delete(s.fields, fieldID)
	s.mu.Unlock()
	if f == nil {
		return false
	}
	f.Close()
	return true
}

// Fields returns the views of all open fields ordered by ID.
func (s *Session) Fields() []disclosure.View {
	s.mu.Lock()
	fields := make([]*disclosure.Field, 0, len(s.fields))
	for _, f := range s.fields {
		fields = append(fields, f)
	}
	s.mu.Unlock()

	views := make([]disclosure.View, len(fields))
	for i, f := range fields {
		views[i] = f.View()
	}
	sort.Slice(views, func(i, j int) bool { return views[i].FieldID < views[j].FieldID })
	return views
}

func (s *Session) field(id string) *disclosure.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields[id]
}

// Attach routes outbound messages to emit, replacing any previous client.
// The returned detach only clears emit if it is still the attached one.
func (s *Session) Attach(emit EmitFunc) (detach func()) {
	s.mu.Lock()
	s.emit = emit
	s.attachGen++
	gen := s.attachGen
	s.mu.Unlock()

	if st, ok := s.LedgerState(); ok {
		emit(MessageLedgerState, st)
	}
	if s.protection != nil {
		emit(MessageNoSelect, map[string]bool{"enabled": s.protection.Enabled()})
	}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.attachGen == gen {
			s.emit = nil
		}
	}
}

func (s *Session) send(messageType string, data any) {
	s.mu.Lock()
	emit := s.emit
	s.mu.Unlock()
	if emit != nil {
		emit(messageType, data)
	}
}

// SetNoSelect implements signals.Surface by forwarding to the client.
func (s *Session) SetNoSelect(enabled bool) {
	s.send(MessageNoSelect, map[string]bool{"enabled": enabled})
}

// teardown closes every field and stops protection. It is idempotent.
func (s *Session) teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	fields := s.fields
	s.fields = nil
	s.mu.Unlock()

	for _, f := range fields {
		f.Close()
	}
	if s.protection != nil {
		s.protection.Disable()
	}
	if s.unsub != nil {
		s.unsub()
	}
	if s.ledger != nil {
		s.ledger.Close()
	}
}
