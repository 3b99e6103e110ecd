// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

// Package signals turns raw browser environment events into security signals.
//
// Browsers stream key presses, clipboard actions, visibility and focus changes
// and window metrics for a protected session. Three detectors interpret them:
//
//   - ScreenshotDetector matches print-screen and OS snipping shortcuts
//   - FocusDetector reports tab switches, focus loss and docked inspector panels
//   - CopyPasteDetector suppresses clipboard actions outside text inputs
//
// A Session owns one of each and is the only way events reach them. Detection
// is best effort: every Decision is advisory to the browser, and a signal is
// emitted whether or not the browser honoured the suppression.
package signals

import (
	"strings"
	"time"
)

// Kind identifies a security signal.
type Kind string

const (
	KindScreenshot     Kind = "screenshot"
	KindFocusLost      Kind = "focus_lost"
	KindTabSwitch      Kind = "tab_switch"
	KindDevToolsOpened Kind = "dev_tools_opened"
	KindCopy           Kind = "copy"
	KindCut            Kind = "cut"
	KindPaste          Kind = "paste"
	KindSelectAll      Kind = "select_all"
	KindRightClick     Kind = "right_click"
)

// Hostile reports whether the signal counts as a violation. Focus loss and
// tab switches are cosmetic.
func (k Kind) Hostile() bool {
	switch k {
	case KindFocusLost, KindTabSwitch:
		return false
	default:
		return true
	}
}

// Signal is one detection. Signals are never persisted; the ledger writes a
// summarized audit entry instead.
type Signal struct {
	Kind      Kind              `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives signals. It must not call back into the detector that
// produced the signal.
type Sink func(Signal)

// MetaSuppressionFailed is set by the browser when preventDefault was refused.
const MetaSuppressionFailed = "suppression_failed"

// Target describes the element an event was aimed at.
type Target struct {
	Tag       string `json:"tag"`
	InputType string `json:"input_type,omitempty"`
	Editable  bool   `json:"editable,omitempty"`
}

var nonTextInputs = map[string]bool{
	"button": true, "checkbox": true, "color": true, "file": true, "hidden": true,
	"image": true, "radio": true, "range": true, "reset": true, "submit": true,
}

// InputLike reports whether clipboard and selection should behave normally on
// the target: text inputs, textareas, selects and content-editable elements.
func (t Target) InputLike() bool {
	if t.Editable {
		return true
	}
	switch strings.ToLower(t.Tag) {
	case "textarea", "select":
		return true
	case "input":
		return !nonTextInputs[strings.ToLower(t.InputType)]
	default:
		return false
	}
}

// KeyPhase is "down" or "up".
type KeyPhase string

const (
	KeyDown KeyPhase = "down"
	KeyUp   KeyPhase = "up"
)

// KeyEvent is a keyboard event. Key is the produced character or key name,
// Code the physical key (KeyboardEvent.code).
type KeyEvent struct {
	Phase    KeyPhase          `json:"phase"`
	Key      string            `json:"key"`
	Code     string            `json:"code,omitempty"`
	Ctrl     bool              `json:"ctrl,omitempty"`
	Shift    bool              `json:"shift,omitempty"`
	Alt      bool              `json:"alt,omitempty"`
	Meta     bool              `json:"meta,omitempty"`
	Target   Target            `json:"target"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ClipboardAction names a clipboard or context-menu event.
type ClipboardAction string

const (
	ActionCopy        ClipboardAction = "copy"
	ActionCut         ClipboardAction = "cut"
	ActionPaste       ClipboardAction = "paste"
	ActionContextMenu ClipboardAction = "contextmenu"
)

// ClipboardEvent is a copy, cut, paste or contextmenu DOM event.
type ClipboardEvent struct {
	Action   ClipboardAction   `json:"action"`
	Target   Target            `json:"target"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// VisibilityEvent reports document.visibilityState changes.
type VisibilityEvent struct {
	Hidden bool `json:"hidden"`
}

// FocusEvent reports window blur and focus.
type FocusEvent struct {
	Focused bool `json:"focused"`
}

// WindowMetrics is the latest outer and inner window size in CSS pixels.
type WindowMetrics struct {
	OuterWidth  int `json:"outer_width"`
	OuterHeight int `json:"outer_height"`
	InnerWidth  int `json:"inner_width"`
	InnerHeight int `json:"inner_height"`
}

// Decision tells the browser how to treat the native event.
type Decision struct {
	PreventDefault bool `json:"prevent_default"`
}

func (d Decision) or(o Decision) Decision {
	return Decision{PreventDefault: d.PreventDefault || o.PreventDefault}
}

// EventType discriminates Event.
type EventType string

const (
	EventKey        EventType = "key"
	EventClipboard  EventType = "clipboard"
	EventVisibility EventType = "visibility"
	EventFocus      EventType = "focus"
	EventMetrics    EventType = "metrics"
)

// Event is the wire envelope for one raw browser event. Exactly one payload
// field matching Type is set.
type Event struct {
	Type       EventType        `json:"type" validate:"required,oneof=key clipboard visibility focus metrics"`
	Key        *KeyEvent        `json:"key,omitempty"`
	Clipboard  *ClipboardEvent  `json:"clipboard,omitempty"`
	Visibility *VisibilityEvent `json:"visibility,omitempty"`
	Focus      *FocusEvent      `json:"focus,omitempty"`
	Metrics    *WindowMetrics   `json:"metrics,omitempty"`
}

func newSignal(kind Kind, at time.Time, base map[string]string, extra ...string) Signal {
	md := make(map[string]string, len(base)+len(extra)/2)
	for k, v := range base {
		md[k] = v
	}
	for i := 0; i+1 < len(extra); i += 2 {
		md[extra[i]] = extra[i+1]
	}
	if len(md) == 0 {
		md = nil
	}
	return Signal{Kind: kind, Timestamp: at, Metadata: md}
}
