// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNilEntry is returned when Append is called with nil.
var ErrNilEntry = errors.New("audit entry cannot be nil")

// MemoryStore keeps entries in memory. The oldest 10% are dropped when
// maxLen is reached.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	maxLen  int
	now     func() time.Time
}

// NewMemoryStore creates a store holding up to maxLen entries (default 10000).
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryStore{
		entries: make([]Entry, 0, 64),
		maxLen:  maxLen,
		now:     time.Now,
	}
}

// Append stores a copy of e, assigning ID and CreatedAt when unset.
func (s *MemoryStore) Append(_ context.Context, e *Entry) error {
	if e == nil {
		return ErrNilEntry
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fillDefaults(e, s.now)
	if len(s.entries) >= s.maxLen {
		s.entries = s.entries[s.maxLen/10+1:]
	}
	s.entries = append(s.entries, *e)
	return nil
}

// Query implements Store.
func (s *MemoryStore) Query(_ context.Context, f Filter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if !f.Matches(&s.entries[i]) {
			continue
		}
		out = append(out, s.entries[i])
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context, f Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for i := range s.entries {
		if f.Matches(&s.entries[i]) {
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func fillDefaults(e *Entry, now func() time.Time) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now().UTC()
	}
}
