// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestFakeClock_AfterFuncFiresAtDeadline(t *testing.T) {
	t.Parallel()

	c := Fake(epoch)
	fired := 0
	c.AfterFunc(500*time.Millisecond, func() { fired++ })

	c.Advance(499 * time.Millisecond)
	if fired != 0 {
		t.Fatalf("fired early: %d", fired)
	}
	c.Advance(time.Millisecond)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	c.Advance(time.Hour)
	if fired != 1 {
		t.Fatalf("one-shot timer fired again: %d", fired)
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", c.PendingCount())
	}
}

func TestFakeClock_StopCancels(t *testing.T) {
	t.Parallel()

	c := Fake(epoch)
	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })

	if !tm.Stop() {
		t.Fatal("Stop on pending timer returned false")
	}
	if tm.Stop() {
		t.Error("second Stop returned true")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestFakeClock_ResetMovesDeadline(t *testing.T) {
	t.Parallel()

	c := Fake(epoch)
	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })

	c.Advance(900 * time.Millisecond)
	tm.Reset(time.Second)
	c.Advance(900 * time.Millisecond)
	if fired {
		t.Fatal("fired at old deadline")
	}
	c.Advance(100 * time.Millisecond)
	if !fired {
		t.Fatal("did not fire at new deadline")
	}
}

func TestFakeClock_RearmedTimerFiresWithinOneAdvance(t *testing.T) {
	t.Parallel()

	c := Fake(epoch)
	var at []time.Time
	var tick func()
	tick = func() {
		at = append(at, c.Now())
		c.AfterFunc(time.Second, tick)
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(3500 * time.Millisecond)

	if len(at) != 3 {
		t.Fatalf("fired %d times, want 3", len(at))
	}
	for i, ts := range at {
		want := epoch.Add(time.Duration(i+1) * time.Second)
		if !ts.Equal(want) {
			t.Errorf("fire %d at %v, want %v", i, ts, want)
		}
	}
	if got := c.Now(); !got.Equal(epoch.Add(3500 * time.Millisecond)) {
		t.Errorf("Now = %v after Advance", got)
	}
}

func TestFakeClock_Ticker(t *testing.T) {
	t.Parallel()

	c := Fake(epoch)
	tk := c.NewTicker(time.Second)
	defer tk.Stop()

	c.Advance(time.Second)
	select {
	case ts := <-tk.C:
		if !ts.Equal(epoch.Add(time.Second)) {
			t.Errorf("tick at %v", ts)
		}
	default:
		t.Fatal("no tick after one interval")
	}

	// Unread ticks are dropped, not queued.
	c.Advance(5 * time.Second)
	<-tk.C
	select {
	case <-tk.C:
		t.Fatal("ticker queued more than one tick")
	default:
	}
}

func TestFakeClock_After(t *testing.T) {
	t.Parallel()

	c := Fake(epoch)
	ch := c.After(time.Minute)
	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}
	c.Advance(time.Minute)
	select {
	case <-ch:
	default:
		t.Fatal("After did not fire")
	}
}
