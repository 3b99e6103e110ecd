// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package signals

import (
	"sync"
	"time"

	"github.com/tomtom215/fieldguard/internal/clock"
	"github.com/tomtom215/fieldguard/internal/metrics"
)

// Surface applies page-wide side effects in the browser. SetNoSelect(true)
// makes the document non-selectable except for input-like elements.
type Surface interface {
	SetNoSelect(enabled bool)
}

// SessionConfig configures a protection Session.
type SessionConfig struct {
	Clock              clock.Clock
	Focus              FocusConfig
	ScreenshotDebounce time.Duration

	// Surface may be nil.
	Surface Surface

	// Sink receives every signal while the session is enabled.
	Sink Sink

	// OnFocusRestored runs when visibility or focus returns.
	OnFocusRestored func()
}

// Session is the protection lifecycle of one authenticated browser session.
// Enable installs the detectors, starts the dev-tools poll and applies the
// no-select style; Disable reverses all of it. Signals raised by timers that
// race a Disable are dropped.
type Session struct {
	cfg SessionConfig

	mu         sync.Mutex
	enabled    bool
	gen        uint64
	screenshot *ScreenshotDetector
	focus      *FocusDetector
	copyPaste  *CopyPasteDetector
}

// NewSession creates a disabled session.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Session{cfg: cfg}
}

// Enable turns protection on. It is idempotent.
func (s *Session) Enable() {
	s.mu.Lock()
	if s.enabled {
		s.mu.Unlock()
		return
	}
	s.enabled = true
	s.gen++
	sink := s.sinkFor(s.gen)
	s.screenshot = NewScreenshotDetector(s.cfg.Clock, s.cfg.ScreenshotDebounce, sink)
	s.copyPaste = NewCopyPasteDetector(s.cfg.Clock, sink)
	s.focus = NewFocusDetector(s.cfg.Clock, s.cfg.Focus, sink, s.restoredFor(s.gen))
	s.focus.Start()
	s.mu.Unlock()

	if s.cfg.Surface != nil {
		s.cfg.Surface.SetNoSelect(true)
	}
	metrics.ProtectedSessions.Inc()
}

// Disable turns protection off and releases every timer. It is idempotent.
func (s *Session) Disable() {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return
	}
	s.enabled = false
	s.gen++
	focus := s.focus
	s.screenshot, s.copyPaste, s.focus = nil, nil, nil
	s.mu.Unlock()

	focus.Stop()
	if s.cfg.Surface != nil {
		s.cfg.Surface.SetNoSelect(false)
	}
	metrics.ProtectedSessions.Dec()
}

// Enabled reports whether protection is on.
func (s *Session) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Dispatch routes a raw event to its detector. A disabled session, an
// unknown type or a missing payload yields the zero Decision.
func (s *Session) Dispatch(ev Event) Decision {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return Decision{}
	}
	screenshot, copyPaste, focus := s.screenshot, s.copyPaste, s.focus
	s.mu.Unlock()

	switch ev.Type {
	case EventKey:
		if ev.Key == nil {
			return Decision{}
		}
		return screenshot.HandleKey(*ev.Key).or(copyPaste.HandleKey(*ev.Key))
	case EventClipboard:
		if ev.Clipboard == nil {
			return Decision{}
		}
		return copyPaste.HandleClipboard(*ev.Clipboard)
	case EventVisibility:
		if ev.Visibility == nil {
			return Decision{}
		}
		return focus.HandleVisibility(*ev.Visibility)
	case EventFocus:
		if ev.Focus == nil {
			return Decision{}
		}
		return focus.HandleFocus(*ev.Focus)
	case EventMetrics:
		if ev.Metrics == nil {
			return Decision{}
		}
		return focus.ReportMetrics(*ev.Metrics)
	default:
		return Decision{}
	}
}

func (s *Session) live(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled && s.gen == gen
}

func (s *Session) sinkFor(gen uint64) Sink {
	return func(sig Signal) {
		if !s.live(gen) {
			return
		}
		metrics.RecordSignal(string(sig.Kind))
		if s.cfg.Sink != nil {
			s.cfg.Sink(sig)
		}
	}
}

func (s *Session) restoredFor(gen uint64) func() {
	return func() {
		if s.live(gen) && s.cfg.OnFocusRestored != nil {
			s.cfg.OnFocusRestored()
		}
	}
}
