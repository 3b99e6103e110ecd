// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

// Package ledger keeps the per-session violation count and escalates it to a
// forced sign-out.
//
// A Ledger is the only writer of its ViolationState. Detectors feed it
// signals through Record; the UI reads it through Snapshot and Subscribe and
// may only ask it to Dismiss a non-terminal overlay.
//
//	NORMAL --hostile--> WARNED --...--> CRITICAL --hostile--> TERMINATED
//	   ^                  |                |
//	   +---- reset window elapses ---------+
//
// Every hostile signal writes one security_violation audit entry before
// observers see the new state. Audit failures are logged and never block
// escalation.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/fieldguard/internal/audit"
	"github.com/tomtom215/fieldguard/internal/clock"
	"github.com/tomtom215/fieldguard/internal/logging"
	"github.com/tomtom215/fieldguard/internal/metrics"
	"github.com/tomtom215/fieldguard/internal/signals"
)

// State is the escalation level of a session.
type State string

const (
	StateNormal     State = "NORMAL"
	StateWarned     State = "WARNED"
	StateCritical   State = "CRITICAL"
	StateTerminated State = "TERMINATED"
)

// Overlay reasons beyond the signal kinds, which are used verbatim for
// WARNED overlays and cosmetic focus overlays.
const (
	ReasonFinalWarning = "final_warning"
	ReasonTerminated   = "terminated"
)

// Defaults.
const (
	DefaultThreshold    = 3
	DefaultResetWindow  = 30 * time.Minute
	DefaultSignOutDelay = 2 * time.Second
)

// EntityTypeSession is the audit entity type of ledger entries.
const EntityTypeSession = "session"

// ViolationState is the observable ledger state.
type ViolationState struct {
	Count          int        `json:"count"`
	LastSignalAt   *time.Time `json:"last_signal_at,omitempty"`
	OverlayVisible bool       `json:"overlay_visible"`
	OverlayReason  string     `json:"overlay_reason,omitempty"`
	ResetDeadline  *time.Time `json:"reset_deadline,omitempty"`
	State          State      `json:"state"`
}

// Dismissable reports whether Dismiss would hide the overlay.
func (s ViolationState) Dismissable() bool {
	return s.OverlayVisible && s.State != StateTerminated
}

// Observer receives every published state. It runs outside the ledger's lock
// and may call Snapshot.
type Observer func(ViolationState)

// SignOutFunc ends the session. It is called at most once.
type SignOutFunc func(ctx context.Context)

// Config configures a Ledger.
type Config struct {
	Threshold    int
	ResetWindow  time.Duration
	SignOutDelay time.Duration

	Clock   clock.Clock
	Audit   audit.Appender
	SignOut SignOutFunc

	SessionID string
	UserID    string
}

// Ledger is the violation state machine of one session.
type Ledger struct {
	cfg Config

	mu         sync.Mutex
	state      ViolationState
	cosmetic   bool
	resetGen   uint64
	resetTimer *clock.Timer
	signOut    *clock.Timer
	observers  map[int]Observer
	nextObs    int
	closed     bool
}

// New creates a ledger in NORMAL.
func New(cfg Config) *Ledger {
	if cfg.Threshold < 2 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.ResetWindow <= 0 {
		cfg.ResetWindow = DefaultResetWindow
	}
	if cfg.SignOutDelay <= 0 {
		cfg.SignOutDelay = DefaultSignOutDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Ledger{
		cfg:       cfg,
		state:     ViolationState{State: StateNormal},
		observers: make(map[int]Observer),
	}
}

// Record applies a signal. Cosmetic signals only show the overlay; hostile
// signals count. Signals after TERMINATED or Close are ignored.
func (l *Ledger) Record(ctx context.Context, sig signals.Signal) {
	if !sig.Kind.Hostile() {
		l.recordCosmetic(sig)
		return
	}

	l.mu.Lock()
	if l.closed || l.state.State == StateTerminated {
		l.mu.Unlock()
		return
	}
	now := l.cfg.Clock.Now()
	l.state.Count++
	l.state.LastSignalAt = &now
	l.state.OverlayVisible = true
	l.cosmetic = false
	l.state.State = l.stateFor(l.state.Count)

	l.resetGen++
	l.resetTimer.Stop()
	l.resetTimer = nil

	switch l.state.State {
	case StateTerminated:
		l.state.OverlayReason = ReasonTerminated
		l.state.ResetDeadline = nil
		l.scheduleSignOut(ctx)
	case StateCritical:
		l.state.OverlayReason = ReasonFinalWarning
		l.armReset(now)
	default:
		l.state.OverlayReason = string(sig.Kind)
		l.armReset(now)
	}
	snap := l.state
	l.mu.Unlock()

	metrics.RecordViolation(string(snap.State))
	l.writeAudit(ctx, audit.ActionSecurityViolation, map[string]any{
		"kind":     sig.Kind,
		"count":    snap.Count,
		"state":    snap.State,
		"metadata": sig.Metadata,
	})
	l.publish(snap)
}

func (l *Ledger) stateFor(count int) State {
	switch {
	case count >= l.cfg.Threshold:
		return StateTerminated
	case count == l.cfg.Threshold-1:
		return StateCritical
	case count > 0:
		return StateWarned
	default:
		return StateNormal
	}
}

func (l *Ledger) recordCosmetic(sig signals.Signal) {
	l.mu.Lock()
	if l.closed || l.state.State == StateTerminated || l.state.OverlayVisible {
		l.mu.Unlock()
		return
	}
	l.state.OverlayVisible = true
	l.state.OverlayReason = string(sig.Kind)
	l.cosmetic = true
	snap := l.state
	l.mu.Unlock()

	l.publish(snap)
}

// armReset must be called with l.mu held.
func (l *Ledger) armReset(now time.Time) {
	deadline := now.Add(l.cfg.ResetWindow)
	l.state.ResetDeadline = &deadline
	gen := l.resetGen
	l.resetTimer = l.cfg.Clock.AfterFunc(l.cfg.ResetWindow, func() { l.expire(gen) })
}

func (l *Ledger) expire(gen uint64) {
	l.mu.Lock()
	if l.closed || gen != l.resetGen || l.state.State == StateTerminated {
		l.mu.Unlock()
		return
	}
	l.resetTimer = nil
	l.state.Count = 0
	l.state.State = StateNormal
	l.state.OverlayVisible = false
	l.state.OverlayReason = ""
	l.state.ResetDeadline = nil
	l.cosmetic = false
	snap := l.state
	l.mu.Unlock()

	logging.Debug().
		Str("session_id", logging.SanitizeSessionID(l.cfg.SessionID)).
		Msg("Violation count reset")
	l.publish(snap)
}

// scheduleSignOut must be called with l.mu held. The sign-out survives
// Close and cannot be cancelled.
func (l *Ledger) scheduleSignOut(ctx context.Context) {
	if l.signOut != nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	l.signOut = l.cfg.Clock.AfterFunc(l.cfg.SignOutDelay, func() {
		metrics.ForcedSignOuts.Inc()
		logging.Ctx(detached).Warn().
			Str("user_id", logging.SanitizeUserID(l.cfg.UserID)).
			Str("session_id", logging.SanitizeSessionID(l.cfg.SessionID)).
			Msg("Violation threshold reached, signing out")
		l.writeAudit(detached, audit.ActionForcedSignOut, map[string]any{
			"threshold": l.cfg.Threshold,
		})
		if l.cfg.SignOut != nil {
			l.cfg.SignOut(detached)
		}
	})
}

func (l *Ledger) writeAudit(ctx context.Context, action audit.Action, details map[string]any) {
	if l.cfg.Audit == nil {
		return
	}
	entry, err := audit.NewEntry(l.cfg.UserID, action, EntityTypeSession, l.cfg.SessionID, details, l.cfg.Clock.Now())
	if err == nil {
		err = l.cfg.Audit.Append(ctx, entry)
	}
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).
			Str("action", string(action)).
			Str("session_id", logging.SanitizeSessionID(l.cfg.SessionID)).
			Msg("Failed to write audit entry")
	}
}

// FocusRestored clears an overlay raised by a cosmetic focus signal.
func (l *Ledger) FocusRestored() {
	l.mu.Lock()
	if l.closed || !l.cosmetic || !l.state.OverlayVisible {
		l.mu.Unlock()
		return
	}
	l.hideLocked()
	snap := l.state
	l.mu.Unlock()

	l.publish(snap)
}

// Dismiss hides a non-terminal overlay. It reports whether the overlay was
// hidden.
func (l *Ledger) Dismiss() bool {
	l.mu.Lock()
	if l.closed || !l.state.Dismissable() {
		l.mu.Unlock()
		return false
	}
	l.hideLocked()
	snap := l.state
	l.mu.Unlock()

	l.publish(snap)
	return true
}

func (l *Ledger) hideLocked() {
	l.state.OverlayVisible = false
	l.state.OverlayReason = ""
	l.cosmetic = false
}

// Snapshot returns a copy of the current state.
func (l *Ledger) Snapshot() ViolationState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Subscribe registers an observer and returns its cancel function.
func (l *Ledger) Subscribe(o Observer) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextObs
	l.nextObs++
	l.observers[id] = o
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.observers, id)
	}
}

func (l *Ledger) publish(s ViolationState) {
	l.mu.Lock()
	obs := make([]Observer, 0, len(l.observers))
	for _, o := range l.observers {
		obs = append(obs, o)
	}
	l.mu.Unlock()

	for _, o := range obs {
		o(s)
	}
}

// Close releases the reset timer and stops notifications. A pending forced
// sign-out still runs.
func (l *Ledger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.resetGen++
	l.resetTimer.Stop()
	l.resetTimer = nil
	l.observers = make(map[int]Observer)
}
