// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package signals

import (
	"strconv"
	"sync"
	"time"

	"github.com/tomtom215/fieldguard/internal/clock"
)

// Focus detector defaults.
const (
	DefaultFocusGrace          = 500 * time.Millisecond
	DefaultDevToolsPoll        = time.Second
	DefaultDevToolsThresholdPx = 160
)

// FocusConfig tunes a FocusDetector. Zero values select the defaults.
type FocusConfig struct {
	Grace       time.Duration
	Poll        time.Duration
	ThresholdPx int
}

// graceWatch tracks one loss condition (hidden or blurred) and its pending
// grace timer. gen invalidates timers that fire after restoration.
type graceWatch struct {
	lost  bool
	gen   uint64
	timer *clock.Timer
}

// FocusDetector turns visibility and focus loss into KindTabSwitch and
// KindFocusLost after a grace period, and polls window metrics for a docked
// inspector panel.
type FocusDetector struct {
	clock      clock.Clock
	cfg        FocusConfig
	sink       Sink
	onRestored func()

	mu         sync.Mutex
	hidden     graceWatch
	blurred    graceWatch
	latest     WindowMetrics
	hasLatest  bool
	prevOuterW int
	prevOuterH int
	hasPrev    bool
	docked     bool
	polling    bool
	pollGen    uint64
	pollTimer  *clock.Timer
}

// NewFocusDetector creates a detector. onRestored, if set, runs whenever
// visibility or focus returns.
func NewFocusDetector(clk clock.Clock, cfg FocusConfig, sink Sink, onRestored func()) *FocusDetector {
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultFocusGrace
	}
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultDevToolsPoll
	}
	if cfg.ThresholdPx <= 0 {
		cfg.ThresholdPx = DefaultDevToolsThresholdPx
	}
	return &FocusDetector{clock: clk, cfg: cfg, sink: sink, onRestored: onRestored}
}

// HandleVisibility handles a visibility change.
func (d *FocusDetector) HandleVisibility(ev VisibilityEvent) Decision {
	d.handle(&d.hidden, ev.Hidden, KindTabSwitch)
	return Decision{}
}

// HandleFocus handles window blur and focus.
func (d *FocusDetector) HandleFocus(ev FocusEvent) Decision {
	d.handle(&d.blurred, !ev.Focused, KindFocusLost)
	return Decision{}
}

func (d *FocusDetector) handle(w *graceWatch, lost bool, kind Kind) {
	d.mu.Lock()
	if lost {
		if w.lost {
			d.mu.Unlock()
			return
		}
		w.lost = true
		w.gen++
		gen := w.gen
		w.timer = d.clock.AfterFunc(d.cfg.Grace, func() { d.graceExpired(w, gen, kind) })
		d.mu.Unlock()
		return
	}

	wasLost := w.lost
	w.lost = false
	w.gen++
	w.timer.Stop()
	w.timer = nil
	d.mu.Unlock()

	if wasLost && d.onRestored != nil {
		d.onRestored()
	}
}

func (d *FocusDetector) graceExpired(w *graceWatch, gen uint64, kind Kind) {
	d.mu.Lock()
	if !w.lost || w.gen != gen {
		d.mu.Unlock()
		return
	}
	w.timer = nil
	d.mu.Unlock()

	d.sink(newSignal(kind, d.clock.Now(), nil, "grace_ms", strconv.FormatInt(d.cfg.Grace.Milliseconds(), 10)))
}

// ReportMetrics records the latest window size for the next poll.
func (d *FocusDetector) ReportMetrics(m WindowMetrics) Decision {
	d.mu.Lock()
	d.latest = m
	d.hasLatest = true
	d.mu.Unlock()
	return Decision{}
}

// Start begins the dev-tools poll. Calling Start twice is a no-op.
func (d *FocusDetector) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.polling {
		return
	}
	d.polling = true
	d.pollGen++
	d.armPoll(d.pollGen)
}

// armPoll must be called with d.mu held.
func (d *FocusDetector) armPoll(gen uint64) {
	d.pollTimer = d.clock.AfterFunc(d.cfg.Poll, func() { d.poll(gen) })
}

func (d *FocusDetector) poll(gen uint64) {
	d.mu.Lock()
	if !d.polling || d.pollGen != gen {
		d.mu.Unlock()
		return
	}

	var fire bool
	var wDelta, hDelta int
	if d.hasLatest {
		m := d.latest
		wDelta = m.OuterWidth - m.InnerWidth
		hDelta = m.OuterHeight - m.InnerHeight
		over := wDelta > d.cfg.ThresholdPx || hDelta > d.cfg.ThresholdPx
		stable := d.hasPrev && m.OuterWidth == d.prevOuterW && m.OuterHeight == d.prevOuterH
		switch {
		case !over:
			d.docked = false
		case stable && !d.docked:
			d.docked = true
			fire = true
		}
		d.prevOuterW, d.prevOuterH, d.hasPrev = m.OuterWidth, m.OuterHeight, true
	}
	d.armPoll(gen)
	d.mu.Unlock()

	if fire {
		d.sink(newSignal(KindDevToolsOpened, d.clock.Now(), nil,
			"width_delta", strconv.Itoa(wDelta),
			"height_delta", strconv.Itoa(hDelta)))
	}
}

// Stop cancels the poll and any pending grace timers. Loss state is cleared
// so a later Start begins fresh.
func (d *FocusDetector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.polling = false
	d.pollGen++
	d.pollTimer.Stop()
	d.pollTimer = nil

	for _, w := range []*graceWatch{&d.hidden, &d.blurred} {
		w.lost = false
		w.gen++
		w.timer.Stop()
		w.timer = nil
	}
	d.hasPrev = false
	d.docked = false
}
