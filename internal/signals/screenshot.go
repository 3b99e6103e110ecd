// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package signals

import (
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/fieldguard/internal/clock"
)

// DefaultScreenshotDebounce is the minimum gap between accepted screenshot
// signals.
const DefaultScreenshotDebounce = 500 * time.Millisecond

// screenshotCombo is one row of the shortcut table.
type screenshotCombo struct {
	name  string
	match func(ev *KeyEvent) bool
	// bothPhases accepts key-up as well as key-down. Some platforms deliver
	// only the key-up for PrintScreen.
	bothPhases bool
}

func isPrintScreen(ev *KeyEvent) bool {
	return ev.Key == "PrintScreen" || ev.Code == "PrintScreen"
}

func isCode(ev *KeyEvent, code, key string) bool {
	return ev.Code == code || strings.EqualFold(ev.Key, key)
}

var screenshotCombos = []screenshotCombo{
	{name: "ctrl_print_screen", bothPhases: true, match: func(ev *KeyEvent) bool {
		return isPrintScreen(ev) && ev.Ctrl
	}},
	{name: "alt_print_screen", bothPhases: true, match: func(ev *KeyEvent) bool {
		return isPrintScreen(ev) && ev.Alt
	}},
	{name: "print_screen", bothPhases: true, match: isPrintScreen},
	// Windows snipping tool: Win+Shift+S.
	{name: "snip", match: func(ev *KeyEvent) bool {
		return ev.Meta && ev.Shift && isCode(ev, "KeyS", "s")
	}},
	// macOS: Cmd+Shift+3/4/5/6. With Shift held Key is a symbol on most
	// layouts, so Code is authoritative.
	{name: "mac_capture", match: func(ev *KeyEvent) bool {
		if !ev.Meta || !ev.Shift {
			return false
		}
		switch ev.Code {
		case "Digit3", "Digit4", "Digit5", "Digit6":
			return true
		}
		switch ev.Key {
		case "3", "4", "5", "6", "#", "$", "%", "^":
			return true
		}
		return false
	}},
}

func matchScreenshot(ev *KeyEvent) (screenshotCombo, bool) {
	for _, c := range screenshotCombos {
		if ev.Phase != KeyDown && !(c.bothPhases && ev.Phase == KeyUp) {
			continue
		}
		if c.match(ev) {
			return c, true
		}
	}
	return screenshotCombo{}, false
}

// ScreenshotDetector emits KindScreenshot for known capture shortcuts.
type ScreenshotDetector struct {
	clock    clock.Clock
	debounce time.Duration
	sink     Sink

	mu       sync.Mutex
	last     time.Time
	accepted bool
	// held is set while a PrintScreen key-down has been counted and its
	// key-up has not arrived yet. The key-up then closes the press.
	held bool
}

// NewScreenshotDetector creates a detector. debounce <= 0 selects the default.
func NewScreenshotDetector(clk clock.Clock, debounce time.Duration, sink Sink) *ScreenshotDetector {
	if debounce <= 0 {
		debounce = DefaultScreenshotDebounce
	}
	return &ScreenshotDetector{clock: clk, debounce: debounce, sink: sink}
}

// HandleKey inspects a key event. Matching events always request
// PreventDefault, even when the signal is debounced.
func (d *ScreenshotDetector) HandleKey(ev KeyEvent) Decision {
	combo, ok := matchScreenshot(&ev)
	if !ok {
		return Decision{}
	}

	d.mu.Lock()
	now := d.clock.Now()
	var accept bool
	switch {
	case combo.bothPhases && ev.Phase == KeyUp && d.held:
		d.held = false
	default:
		accept = !d.accepted || now.Sub(d.last) >= d.debounce
		if accept {
			d.last = now
			d.accepted = true
		}
		if combo.bothPhases && ev.Phase == KeyDown {
			d.held = true
		}
	}
	d.mu.Unlock()

	if accept {
		d.sink(newSignal(KindScreenshot, now, ev.Metadata, "combo", combo.name, "phase", string(ev.Phase)))
	}
	return Decision{PreventDefault: true}
}
