// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package clock

import (
	"sync"
	"time"
)

// FakeClock is a manually advanced Clock for tests. Time stands still until
// Advance is called; pending timers fire in deadline order as the clock steps
// through them, so a timer re-armed from inside a callback fires again within
// the same Advance when its new deadline is still covered.
//
// AfterFunc callbacks run synchronously on the goroutine calling Advance.
// Callbacks must not call Advance.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	waiters []*waiter
}

type waiter struct {
	seq      uint64
	deadline time.Time
	fn       func()
	ch       chan time.Time
	interval time.Duration
	active   bool
}

// Fake returns a FakeClock set to start.
func Fake(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives once the clock passes d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.add(&waiter{deadline: c.now.Add(d), ch: ch})
	return ch
}

// AfterFunc schedules f to run when the clock passes d.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	c.mu.Lock()
	w := &waiter{deadline: c.now.Add(d), fn: f}
	c.add(w)
	c.mu.Unlock()

	return &Timer{
		stop: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			was := w.active
			c.remove(w)
			return was
		},
		reset: func(d time.Duration) bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			was := w.active
			c.remove(w)
			w.deadline = c.now.Add(d)
			c.add(w)
			return was
		},
	}
}

// NewTicker returns a ticker firing every d of fake time.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	w := &waiter{deadline: c.now.Add(d), ch: ch, interval: d}
	c.add(w)
	c.mu.Unlock()

	return &Ticker{
		C: ch,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.remove(w)
		},
	}
}

// Advance moves the clock forward by d, firing every waiter whose deadline
// falls inside the interval. The clock reads each waiter's deadline while it
// fires.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.earliest(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.deadline
		if next.interval > 0 {
			next.deadline = next.deadline.Add(next.interval)
		} else {
			c.remove(next)
		}
		fireAt := c.now
		c.mu.Unlock()

		if next.fn != nil {
			next.fn()
		} else {
			select {
			case next.ch <- fireAt:
			default:
			}
		}
	}
}

// PendingCount returns the number of timers and tickers that have not fired
// or been stopped.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// add registers w. Must hold c.mu.
func (c *FakeClock) add(w *waiter) {
	c.seq++
	w.seq = c.seq
	w.active = true
	c.waiters = append(c.waiters, w)
}

// remove unregisters w if present. Must hold c.mu.
func (c *FakeClock) remove(w *waiter) {
	if !w.active {
		return
	}
	w.active = false
	for i, x := range c.waiters {
		if x == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// earliest returns the waiter with the smallest deadline not after target,
// breaking ties by registration order. Must hold c.mu.
func (c *FakeClock) earliest(target time.Time) *waiter {
	var best *waiter
	for _, w := range c.waiters {
		if w.deadline.After(target) {
			continue
		}
		if best == nil || w.deadline.Before(best.deadline) ||
			(w.deadline.Equal(best.deadline) && w.seq < best.seq) {
			best = w
		}
	}
	return best
}
