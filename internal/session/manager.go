// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

// Package session is the registry of live browser sessions. Starting a
// session wires a Protection Session into a Violation Ledger whose forced
// sign-out comes back here; signing out revokes the token's session ID,
// tears down every open field and tells the attached client.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/fieldguard/internal/audit"
	"github.com/tomtom215/fieldguard/internal/auth"
	"github.com/tomtom215/fieldguard/internal/clock"
	"github.com/tomtom215/fieldguard/internal/disclosure"
	"github.com/tomtom215/fieldguard/internal/ledger"
	"github.com/tomtom215/fieldguard/internal/logging"
	"github.com/tomtom215/fieldguard/internal/signals"
)

var (
	// ErrSessionNotFound is returned for unknown or ended sessions.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionRevoked is returned when starting a signed-out session.
	ErrSessionRevoked = errors.New("session revoked")
)

// Sign-out reasons.
const (
	ReasonUser      = "user"
	ReasonAdmin     = "admin"
	ReasonViolation = "violation"
)

// Exempter decides which roles skip content protection.
type Exempter interface {
	IsExempt(role string) bool
}

// Config configures a Manager.
type Config struct {
	Clock clock.Clock

	Threshold    int
	ResetWindow  time.Duration
	SignOutDelay time.Duration

	Focus              signals.FocusConfig
	ScreenshotDebounce time.Duration

	AutoHide time.Duration

	Audit       audit.Appender
	Reveals     *disclosure.Service
	Exempt      Exempter
	Revocations RevocationStore
}

// Manager owns every live Session.
type Manager struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a registry. Revocations default to memory.
func NewManager(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Revocations == nil {
		cfg.Revocations = NewMemoryRevocationStore(cfg.Clock)
	}
	return &Manager{cfg: cfg, sessions: make(map[string]*Session)}
}

// Start registers the session of id. Starting a live session again returns
// it unchanged. Exempt roles get no protection.
func (m *Manager) Start(ctx context.Context, id *auth.Identity) (*Session, error) {
	if s, err := m.Get(id.SessionID); err == nil {
		return s, nil
	}

	revoked, err := m.cfg.Revocations.IsRevoked(ctx, id.SessionID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrSessionRevoked
	}

	s := &Session{
		ID:        id.SessionID,
		Identity:  id,
		StartedAt: m.cfg.Clock.Now(),
		manager:   m,
		fields:    make(map[string]*disclosure.Field),
	}

	exempt := m.cfg.Exempt != nil && m.cfg.Exempt.IsExempt(id.Role)
	if !exempt {
		sessionID := id.SessionID
		s.ledger = ledger.New(ledger.Config{
			Threshold:    m.cfg.Threshold,
			ResetWindow:  m.cfg.ResetWindow,
			SignOutDelay: m.cfg.SignOutDelay,
			Clock:        m.cfg.Clock,
			Audit:        m.cfg.Audit,
			SessionID:    id.SessionID,
			UserID:       id.UserID,
			SignOut: func(ctx context.Context) {
				if err := m.SignOut(ctx, sessionID, ReasonViolation); err != nil && !errors.Is(err, ErrSessionNotFound) {
					logging.Ctx(ctx).Error().Err(err).Msg("Forced sign-out failed")
				}
			},
		})
		s.unsub = s.ledger.Subscribe(func(st ledger.ViolationState) {
			s.send(MessageLedgerState, st)
		})
		bg := context.WithoutCancel(ctx)
		s.protection = signals.NewSession(signals.SessionConfig{
			Clock:              m.cfg.Clock,
			Focus:              m.cfg.Focus,
			ScreenshotDebounce: m.cfg.ScreenshotDebounce,
			Surface:            s,
			Sink:               func(sig signals.Signal) { s.ledger.Record(bg, sig) },
			OnFocusRestored:    s.ledger.FocusRestored,
		})
	}

	m.mu.Lock()
	if existing := m.sessions[id.SessionID]; existing != nil {
		m.mu.Unlock()
		s.teardown()
		return existing, nil
	}
	m.sessions[id.SessionID] = s
	m.mu.Unlock()

	if s.protection != nil {
		s.protection.Enable()
	}
	logging.Ctx(ctx).Info().
		Str("session_id", logging.SanitizeSessionID(id.SessionID)).
		Str("user_id", logging.SanitizeUserID(id.UserID)).
		Bool("protected", s.protection != nil).
		Msg("Session started")
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// SignOut ends a session. The session ID is revoked until its token
// expires, so the same token cannot start it again. Signing out an unknown
// or already-ended session only records the revocation.
func (m *Manager) SignOut(ctx context.Context, sessionID, reason string) error {
	m.mu.Lock()
	s := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	until := m.cfg.Clock.Now().Add(24 * time.Hour)
	if s != nil && !s.Identity.ExpiresAt.IsZero() {
		until = s.Identity.ExpiresAt
	}
	revokeErr := m.cfg.Revocations.Revoke(ctx, sessionID, reason, until)
	if revokeErr != nil {
		logging.Ctx(ctx).Error().Err(revokeErr).Msg("Failed to persist session revocation")
	}

	if s == nil {
		return revokeErr
	}

	// Notify before teardown so the client still has its emitter.
	s.send(MessageSignedOut, SignedOut{Reason: reason, At: m.cfg.Clock.Now()})
	s.teardown()
	logging.Ctx(ctx).Info().
		Str("session_id", logging.SanitizeSessionID(sessionID)).
		Str("reason", reason).
		Msg("Session signed out")
	return revokeErr
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IsRevoked implements auth.RevocationChecker.
func (m *Manager) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	return m.cfg.Revocations.IsRevoked(ctx, sessionID)
}

// Close tears down every session without revoking it and closes the
// revocation store.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.teardown()
	}
	return m.cfg.Revocations.Close()
}
