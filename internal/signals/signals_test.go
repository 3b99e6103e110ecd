// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package signals

import (
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/fieldguard/internal/clock"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type collector struct {
	mu  sync.Mutex
	got []Signal
}

func (c *collector) sink(s Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, s)
}

func (c *collector) kinds() []Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Kind, len(c.got))
	for i, s := range c.got {
		out[i] = s.Kind
	}
	return out
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func TestKind_Hostile(t *testing.T) {
	t.Parallel()

	cosmetic := map[Kind]bool{KindFocusLost: true, KindTabSwitch: true}
	for _, k := range []Kind{KindScreenshot, KindFocusLost, KindTabSwitch, KindDevToolsOpened,
		KindCopy, KindCut, KindPaste, KindSelectAll, KindRightClick} {
		if k.Hostile() == cosmetic[k] {
			t.Errorf("%s.Hostile() = %v", k, k.Hostile())
		}
	}
}

func TestTarget_InputLike(t *testing.T) {
	t.Parallel()

	tests := []struct {
		target Target
		want   bool
	}{
		{Target{Tag: "INPUT"}, true},
		{Target{Tag: "input", InputType: "email"}, true},
		{Target{Tag: "input", InputType: "checkbox"}, false},
		{Target{Tag: "textarea"}, true},
		{Target{Tag: "select"}, true},
		{Target{Tag: "div", Editable: true}, true},
		{Target{Tag: "span"}, false},
		{Target{}, false},
	}
	for _, tt := range tests {
		if got := tt.target.InputLike(); got != tt.want {
			t.Errorf("%+v.InputLike() = %v, want %v", tt.target, got, tt.want)
		}
	}
}

func TestScreenshotDetector_ComboTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		ev    KeyEvent
		match bool
		combo string
	}{
		{"print screen down", KeyEvent{Phase: KeyDown, Key: "PrintScreen"}, true, "print_screen"},
		{"print screen up", KeyEvent{Phase: KeyUp, Code: "PrintScreen"}, true, "print_screen"},
		{"ctrl print screen", KeyEvent{Phase: KeyDown, Key: "PrintScreen", Ctrl: true}, true, "ctrl_print_screen"},
		{"alt print screen", KeyEvent{Phase: KeyDown, Key: "PrintScreen", Alt: true}, true, "alt_print_screen"},
		{"win shift s", KeyEvent{Phase: KeyDown, Key: "S", Code: "KeyS", Meta: true, Shift: true}, true, "snip"},
		{"win shift s key up ignored", KeyEvent{Phase: KeyUp, Key: "S", Meta: true, Shift: true}, false, ""},
		{"cmd shift 3", KeyEvent{Phase: KeyDown, Key: "#", Code: "Digit3", Meta: true, Shift: true}, true, "mac_capture"},
		{"cmd shift 4 by key", KeyEvent{Phase: KeyDown, Key: "4", Meta: true, Shift: true}, true, "mac_capture"},
		{"cmd shift 6", KeyEvent{Phase: KeyDown, Code: "Digit6", Meta: true, Shift: true}, true, "mac_capture"},
		{"cmd shift 7", KeyEvent{Phase: KeyDown, Code: "Digit7", Meta: true, Shift: true}, false, ""},
		{"cmd 3 without shift", KeyEvent{Phase: KeyDown, Code: "Digit3", Meta: true}, false, ""},
		{"plain s", KeyEvent{Phase: KeyDown, Key: "s"}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev := tt.ev
			combo, ok := matchScreenshot(&ev)
			if ok != tt.match || combo.name != tt.combo {
				t.Errorf("matchScreenshot = (%q, %v), want (%q, %v)", combo.name, ok, tt.combo, tt.match)
			}
		})
	}
}

func TestScreenshotDetector_Debounce(t *testing.T) {
	t.Parallel()

	clk := clock.Fake(epoch)
	var c collector
	d := NewScreenshotDetector(clk, 0, c.sink)
	press := KeyEvent{Phase: KeyDown, Key: "PrintScreen"}

	if !d.HandleKey(press).PreventDefault {
		t.Fatal("matching key should request PreventDefault")
	}
	clk.Advance(100 * time.Millisecond)
	if !d.HandleKey(KeyEvent{Phase: KeyUp, Key: "PrintScreen"}).PreventDefault {
		t.Fatal("debounced key should still request PreventDefault")
	}
	clk.Advance(399 * time.Millisecond)
	d.HandleKey(press)
	if c.count() != 1 {
		t.Fatalf("signals within 500ms = %d, want 1", c.count())
	}

	clk.Advance(time.Millisecond)
	d.HandleKey(press)
	if c.count() != 2 {
		t.Fatalf("signals after 500ms = %d, want 2", c.count())
	}
	if d.HandleKey(KeyEvent{Phase: KeyDown, Key: "q"}).PreventDefault {
		t.Error("unrelated key prevented")
	}
}

func TestScreenshotDetector_HeldPrintScreenCountsOnce(t *testing.T) {
	t.Parallel()

	clk := clock.Fake(epoch)
	var c collector
	d := NewScreenshotDetector(clk, 0, c.sink)
	down := KeyEvent{Phase: KeyDown, Key: "PrintScreen"}
	up := KeyEvent{Phase: KeyUp, Key: "PrintScreen"}

	d.HandleKey(down)
	clk.Advance(2 * time.Second)
	if !d.HandleKey(up).PreventDefault {
		t.Fatal("key-up of a held press should still request PreventDefault")
	}
	if c.count() != 1 {
		t.Fatalf("signals for one held press = %d, want 1", c.count())
	}

	// A lone key-up, as delivered by platforms that swallow the key-down,
	// is a press of its own.
	clk.Advance(time.Second)
	d.HandleKey(up)
	if c.count() != 2 {
		t.Fatalf("signals after lone key-up = %d, want 2", c.count())
	}
}

func TestScreenshotDetector_SuppressionFailedStillSignals(t *testing.T) {
	t.Parallel()

	var c collector
	d := NewScreenshotDetector(clock.Fake(epoch), 0, c.sink)
	d.HandleKey(KeyEvent{Phase: KeyUp, Key: "PrintScreen", Metadata: map[string]string{MetaSuppressionFailed: "true"}})

	if c.count() != 1 {
		t.Fatalf("signals = %d, want 1", c.count())
	}
	if c.got[0].Metadata[MetaSuppressionFailed] != "true" || c.got[0].Metadata["combo"] != "print_screen" {
		t.Errorf("metadata = %v", c.got[0].Metadata)
	}
}

func TestCopyPasteDetector_Shortcuts(t *testing.T) {
	t.Parallel()

	page := Target{Tag: "div"}
	input := Target{Tag: "input", InputType: "text"}
	tests := []struct {
		name    string
		ev      KeyEvent
		prevent bool
		kind    Kind
	}{
		{"ctrl c", KeyEvent{Phase: KeyDown, Key: "c", Ctrl: true, Target: page}, true, KindCopy},
		{"cmd x", KeyEvent{Phase: KeyDown, Key: "x", Meta: true, Target: page}, true, KindCut},
		{"ctrl a by code", KeyEvent{Phase: KeyDown, Key: "å", Code: "KeyA", Ctrl: true, Target: page}, true, KindSelectAll},
		{"ctrl v", KeyEvent{Phase: KeyDown, Key: "V", Ctrl: true, Target: page}, true, KindPaste},
		{"ctrl c in input", KeyEvent{Phase: KeyDown, Key: "c", Ctrl: true, Target: input}, false, ""},
		{"ctrl c key up", KeyEvent{Phase: KeyUp, Key: "c", Ctrl: true, Target: page}, false, ""},
		{"plain c", KeyEvent{Phase: KeyDown, Key: "c", Target: page}, false, ""},
		{"ctrl shift c", KeyEvent{Phase: KeyDown, Key: "C", Ctrl: true, Shift: true, Target: page}, false, ""},
		{"ctrl z", KeyEvent{Phase: KeyDown, Key: "z", Ctrl: true, Target: page}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var c collector
			d := NewCopyPasteDetector(clock.Fake(epoch), c.sink)
			if got := d.HandleKey(tt.ev); got.PreventDefault != tt.prevent {
				t.Errorf("PreventDefault = %v, want %v", got.PreventDefault, tt.prevent)
			}
			kinds := c.kinds()
			if tt.kind == "" {
				if len(kinds) != 0 {
					t.Errorf("unexpected signals %v", kinds)
				}
				return
			}
			if len(kinds) != 1 || kinds[0] != tt.kind {
				t.Errorf("signals = %v, want [%s]", kinds, tt.kind)
			}
		})
	}
}

func TestCopyPasteDetector_Clipboard(t *testing.T) {
	t.Parallel()

	var c collector
	d := NewCopyPasteDetector(clock.Fake(epoch), c.sink)

	if !d.HandleClipboard(ClipboardEvent{Action: ActionContextMenu, Target: Target{Tag: "td"}}).PreventDefault {
		t.Error("contextmenu on page not prevented")
	}
	if d.HandleClipboard(ClipboardEvent{Action: ActionCopy, Target: Target{Tag: "textarea"}}).PreventDefault {
		t.Error("copy inside textarea prevented")
	}
	if d.HandleClipboard(ClipboardEvent{Action: "drop", Target: Target{Tag: "div"}}).PreventDefault {
		t.Error("unknown action prevented")
	}
	d.HandleClipboard(ClipboardEvent{Action: ActionCut, Target: Target{Tag: "div"}})
	if !d.HandleClipboard(ClipboardEvent{Action: ActionPaste, Target: Target{Tag: "div"}}).PreventDefault {
		t.Error("paste on page not prevented")
	}
	if d.HandleClipboard(ClipboardEvent{Action: ActionPaste, Target: Target{Tag: "input"}}).PreventDefault {
		t.Error("paste inside input prevented")
	}

	kinds := c.kinds()
	if len(kinds) != 3 || kinds[0] != KindRightClick || kinds[1] != KindCut || kinds[2] != KindPaste {
		t.Errorf("signals = %v", kinds)
	}
}

func TestFocusDetector_GraceAbsorbsFlicker(t *testing.T) {
	t.Parallel()

	clk := clock.Fake(epoch)
	var c collector
	restored := 0
	d := NewFocusDetector(clk, FocusConfig{}, c.sink, func() { restored++ })

	d.HandleFocus(FocusEvent{Focused: false})
	clk.Advance(300 * time.Millisecond)
	d.HandleFocus(FocusEvent{Focused: true})
	clk.Advance(time.Second)

	if c.count() != 0 {
		t.Fatalf("flicker produced signals %v", c.kinds())
	}
	if restored != 1 {
		t.Errorf("restored = %d, want 1", restored)
	}
	if clk.PendingCount() != 0 {
		t.Errorf("grace timer leaked: %d pending", clk.PendingCount())
	}
}

func TestFocusDetector_GraceExpiry(t *testing.T) {
	t.Parallel()

	clk := clock.Fake(epoch)
	var c collector
	d := NewFocusDetector(clk, FocusConfig{}, c.sink, nil)

	d.HandleVisibility(VisibilityEvent{Hidden: true})
	d.HandleVisibility(VisibilityEvent{Hidden: true})
	d.HandleFocus(FocusEvent{Focused: false})
	clk.Advance(499 * time.Millisecond)
	if c.count() != 0 {
		t.Fatal("signal before grace elapsed")
	}
	clk.Advance(time.Millisecond)

	kinds := c.kinds()
	if len(kinds) != 2 || kinds[0] != KindTabSwitch || kinds[1] != KindFocusLost {
		t.Fatalf("signals = %v, want [tab_switch focus_lost]", kinds)
	}
	if c.got[0].Metadata["grace_ms"] != "500" {
		t.Errorf("metadata = %v", c.got[0].Metadata)
	}
}

func docked(outerW, outerH int) WindowMetrics {
	return WindowMetrics{OuterWidth: outerW, OuterHeight: outerH, InnerWidth: outerW - 400, InnerHeight: outerH - 80}
}

func undocked(outerW, outerH int) WindowMetrics {
	return WindowMetrics{OuterWidth: outerW, OuterHeight: outerH, InnerWidth: outerW - 16, InnerHeight: outerH - 80}
}

func TestFocusDetector_DevToolsHeuristic(t *testing.T) {
	t.Parallel()

	clk := clock.Fake(epoch)
	var c collector
	d := NewFocusDetector(clk, FocusConfig{}, c.sink, nil)
	d.Start()
	defer d.Stop()

	// Resizing: large delta but outer size changes every poll.
	for i := 0; i < 3; i++ {
		d.ReportMetrics(docked(1200+i*50, 800))
		clk.Advance(time.Second)
	}
	if c.count() != 0 {
		t.Fatalf("resize produced %v", c.kinds())
	}

	// Stable size with a docked panel: fires once.
	clk.Advance(time.Second)
	if got := c.kinds(); len(got) != 1 || got[0] != KindDevToolsOpened {
		t.Fatalf("signals = %v, want one dev_tools_opened", got)
	}
	clk.Advance(5 * time.Second)
	if c.count() != 1 {
		t.Fatalf("repeated signal for the same docking: %d", c.count())
	}

	// Panel closed, then reopened: fires again.
	d.ReportMetrics(undocked(1300, 800))
	clk.Advance(time.Second)
	d.ReportMetrics(docked(1300, 800))
	clk.Advance(time.Second)
	if c.count() != 2 {
		t.Fatalf("redocking signals = %d, want 2", c.count())
	}
}

func TestFocusDetector_ThresholdIsExclusive(t *testing.T) {
	t.Parallel()

	clk := clock.Fake(epoch)
	var c collector
	d := NewFocusDetector(clk, FocusConfig{}, c.sink, nil)
	d.Start()
	defer d.Stop()

	d.ReportMetrics(WindowMetrics{OuterWidth: 1200, OuterHeight: 800, InnerWidth: 1040, InnerHeight: 700})
	clk.Advance(3 * time.Second)
	if c.count() != 0 {
		t.Fatalf("delta of exactly 160px fired")
	}
}

func TestFocusDetector_StopCancelsEverything(t *testing.T) {
	t.Parallel()

	clk := clock.Fake(epoch)
	var c collector
	d := NewFocusDetector(clk, FocusConfig{}, c.sink, nil)
	d.Start()
	d.Start()
	d.ReportMetrics(docked(1200, 800))
	d.HandleFocus(FocusEvent{Focused: false})
	d.Stop()

	if clk.PendingCount() != 0 {
		t.Fatalf("timers pending after Stop: %d", clk.PendingCount())
	}
	clk.Advance(10 * time.Second)
	if c.count() != 0 {
		t.Errorf("signals after Stop: %v", c.kinds())
	}
}

type fakeSurface struct {
	mu    sync.Mutex
	calls []bool
}

func (f *fakeSurface) SetNoSelect(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, on)
}

func TestSession_EnableDisableLifecycle(t *testing.T) {
	t.Parallel()

	clk := clock.Fake(epoch)
	var c collector
	surface := &fakeSurface{}
	s := NewSession(SessionConfig{Clock: clk, Surface: surface, Sink: c.sink})

	ctrlC := Event{Type: EventKey, Key: &KeyEvent{Phase: KeyDown, Key: "c", Ctrl: true, Target: Target{Tag: "div"}}}
	if s.Dispatch(ctrlC).PreventDefault {
		t.Fatal("disabled session prevented an event")
	}

	s.Enable()
	s.Enable()
	if !s.Enabled() {
		t.Fatal("not enabled")
	}
	if len(surface.calls) != 1 || !surface.calls[0] {
		t.Fatalf("surface calls = %v, want [true]", surface.calls)
	}
	if clk.PendingCount() != 1 {
		t.Fatalf("pending timers = %d, want the dev-tools poll", clk.PendingCount())
	}
	if !s.Dispatch(ctrlC).PreventDefault {
		t.Fatal("enabled session did not prevent ctrl+c")
	}

	s.Dispatch(Event{Type: EventFocus, Focus: &FocusEvent{Focused: false}})
	s.Disable()
	s.Disable()

	if len(surface.calls) != 2 || surface.calls[1] {
		t.Fatalf("surface calls = %v, want [true false]", surface.calls)
	}
	if clk.PendingCount() != 0 {
		t.Fatalf("timers pending after Disable: %d", clk.PendingCount())
	}
	clk.Advance(time.Minute)
	if got := c.kinds(); len(got) != 1 || got[0] != KindCopy {
		t.Errorf("signals = %v, want only the copy", got)
	}
}

func TestSession_DispatchRouting(t *testing.T) {
	t.Parallel()

	clk := clock.Fake(epoch)
	var c collector
	restored := 0
	s := NewSession(SessionConfig{Clock: clk, Sink: c.sink, OnFocusRestored: func() { restored++ }})
	s.Enable()
	defer s.Disable()

	page := Target{Tag: "div"}
	events := []Event{
		{Type: EventKey, Key: &KeyEvent{Phase: KeyDown, Key: "PrintScreen", Target: page}},
		{Type: EventClipboard, Clipboard: &ClipboardEvent{Action: ActionCopy, Target: page}},
		{Type: EventClipboard, Clipboard: &ClipboardEvent{Action: ActionPaste, Target: page}},
		{Type: EventVisibility, Visibility: &VisibilityEvent{Hidden: true}},
		{Type: EventKey},
		{Type: "unknown"},
	}
	for _, ev := range events {
		s.Dispatch(ev)
	}
	clk.Advance(time.Second)
	s.Dispatch(Event{Type: EventVisibility, Visibility: &VisibilityEvent{Hidden: false}})

	got := c.kinds()
	want := []Kind{KindScreenshot, KindCopy, KindPaste, KindTabSwitch}
	if len(got) != len(want) {
		t.Fatalf("signals = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("signal %d = %s, want %s", i, got[i], want[i])
		}
	}
	if restored != 1 {
		t.Errorf("restored = %d, want 1", restored)
	}
}
