// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package signals

import (
	"strings"

	"github.com/tomtom215/fieldguard/internal/clock"
)

// CopyPasteDetector suppresses clipboard actions and their keyboard
// shortcuts outside input-like targets.
type CopyPasteDetector struct {
	clock clock.Clock
	sink  Sink
}

// NewCopyPasteDetector creates a detector.
func NewCopyPasteDetector(clk clock.Clock, sink Sink) *CopyPasteDetector {
	return &CopyPasteDetector{clock: clk, sink: sink}
}

var clipboardKinds = map[ClipboardAction]Kind{
	ActionCopy:        KindCopy,
	ActionCut:         KindCut,
	ActionPaste:       KindPaste,
	ActionContextMenu: KindRightClick,
}

// HandleClipboard handles clipboard and contextmenu events.
func (d *CopyPasteDetector) HandleClipboard(ev ClipboardEvent) Decision {
	kind, ok := clipboardKinds[ev.Action]
	if !ok || ev.Target.InputLike() {
		return Decision{}
	}
	d.sink(newSignal(kind, d.clock.Now(), ev.Metadata, "source", "event"))
	return Decision{PreventDefault: true}
}

var shortcutKinds = map[string]Kind{
	"c": KindCopy,
	"x": KindCut,
	"a": KindSelectAll,
	"v": KindPaste,
}

// HandleKey handles Ctrl/Cmd+C, X, A and V on key-down.
func (d *CopyPasteDetector) HandleKey(ev KeyEvent) Decision {
	if ev.Phase != KeyDown || !(ev.Ctrl || ev.Meta) || ev.Alt || ev.Shift {
		return Decision{}
	}
	key := strings.ToLower(ev.Key)
	if strings.HasPrefix(ev.Code, "Key") && len(ev.Code) == 4 {
		key = strings.ToLower(ev.Code[3:])
	}
	kind, ok := shortcutKinds[key]
	if !ok || ev.Target.InputLike() {
		return Decision{}
	}
	d.sink(newSignal(kind, d.clock.Now(), ev.Metadata, "source", "shortcut"))
	return Decision{PreventDefault: true}
}
