// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

// Package clock abstracts time so every grace delay, reset deadline, countdown
// and poll in Fieldguard is an owned, cancellable handle that tests can drive
// deterministically.
//
// Production code injects Real(); tests inject Fake() and call Advance.
package clock

import "time"

// Clock is the time source used by detectors, the ledger, reveal grants and
// the aggregator. Components never call time.Now or time.AfterFunc directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d elapses.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d elapses. The returned Timer cancels the call.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker delivers ticks on C every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stop  func() bool
	reset func(time.Duration) bool
}

// Stop prevents the timer from firing. It returns false if the timer already
// fired or was stopped.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}
	return t.stop()
}

// Reset reschedules the timer to fire d from now. It returns true if the
// timer was still pending.
func (t *Timer) Reset(d time.Duration) bool {
	return t.reset(d)
}

// Ticker delivers periodic ticks on C. The channel has capacity 1; ticks are
// dropped when the reader falls behind.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() {
	if t != nil {
		t.stop()
	}
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stop: t.Stop, reset: t.Reset}
}

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stop: t.Stop}
}
