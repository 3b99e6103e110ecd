// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

// Package retry runs an operation with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/fieldguard/internal/clock"
	"github.com/tomtom215/fieldguard/internal/logging"
)

// Policy bounds a retry loop.
type Policy struct {
	// Attempts is the total number of calls, including the first.
	Attempts int

	// BaseDelay is the wait after the first failure; it doubles after each
	// further failure up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Clock drives the waits. Nil uses the real clock.
	Clock clock.Clock
}

// permanent wraps an error that must not be retried.
type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns it unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// Backoff returns the wait before attempt n+1 (n starting at 1).
func (p Policy) Backoff(n int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
		if d <= 0 {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts are
// used up or ctx is done. The number of calls made is returned with the
// final error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) (int, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.Real()
	}

	var err error
	for n := 1; n <= attempts; n++ {
		if ctx.Err() != nil {
			return n - 1, ctx.Err()
		}

		err = fn(ctx)
		if err == nil {
			return n, nil
		}
		var perm *permanent
		if errors.As(err, &perm) {
			return n, perm.err
		}
		if n == attempts {
			break
		}

		delay := p.Backoff(n)
		logging.Ctx(ctx).Debug().Err(err).
			Int("attempt", n).
			Int("max_attempts", attempts).
			Dur("delay", delay).
			Msg("Retry attempt")
		if delay > 0 {
			select {
			case <-clk.After(delay):
			case <-ctx.Done():
				return n, ctx.Err()
			}
		}
	}
	return attempts, fmt.Errorf("max retry attempts reached: %w", err)
}
