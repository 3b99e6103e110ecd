// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPolicy_Backoff(t *testing.T) {
	t.Parallel()

	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
	if got := (Policy{BaseDelay: time.Second, MaxDelay: time.Minute}).Backoff(200); got != time.Minute {
		t.Errorf("Backoff(200) = %v, want cap", got)
	}
}

func TestDo(t *testing.T) {
	t.Parallel()

	errFlaky := errors.New("flaky")
	tests := []struct {
		name      string
		failures  int
		permanent bool
		wantCalls int
		wantErr   bool
	}{
		{"first try", 0, false, 1, false},
		{"recovers", 2, false, 3, false},
		{"exhausted", 5, false, 3, true},
		{"permanent", 5, true, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			calls := 0
			n, err := Do(context.Background(), Policy{Attempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
				calls++
				if calls <= tt.failures {
					if tt.permanent {
						return Permanent(errFlaky)
					}
					return errFlaky
				}
				return nil
			})
			if n != tt.wantCalls || calls != tt.wantCalls {
				t.Errorf("calls = %d (reported %d), want %d", calls, n, tt.wantCalls)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errFlaky) {
				t.Errorf("err = %v, want wrapped errFlaky", err)
			}
		})
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, Policy{Attempts: 5, BaseDelay: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}
