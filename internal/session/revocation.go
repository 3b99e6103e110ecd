// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldguard/internal/clock"
)

// RevocationStore remembers sessions that were signed out before their token
// expired. Entries are only needed until that expiry.
type RevocationStore interface {
	Revoke(ctx context.Context, sessionID, reason string, until time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
	Close() error
}

// Revocation is the stored record.
type Revocation struct {
	SessionID string    `json:"session_id"`
	Reason    string    `json:"reason"`
	RevokedAt time.Time `json:"revoked_at"`
	Until     time.Time `json:"until"`
}

// MemoryRevocationStore keeps revocations in a map. Expired entries are
// dropped lazily.
type MemoryRevocationStore struct {
	clock clock.Clock

	mu      sync.RWMutex
	revoked map[string]Revocation
}

// NewMemoryRevocationStore creates an empty store.
func NewMemoryRevocationStore(clk clock.Clock) *MemoryRevocationStore {
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryRevocationStore{clock: clk, revoked: make(map[string]Revocation)}
}

// Revoke implements RevocationStore.
func (s *MemoryRevocationStore) Revoke(_ context.Context, sessionID, reason string, until time.Time) error {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.revoked {
		if !now.Before(r.Until) {
			delete(s.revoked, id)
		}
	}
	if now.Before(until) {
		s.revoked[sessionID] = Revocation{SessionID: sessionID, Reason: reason, RevokedAt: now, Until: until}
	}
	return nil
}

// IsRevoked implements RevocationStore.
func (s *MemoryRevocationStore) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.revoked[sessionID]
	return ok && s.clock.Now().Before(r.Until), nil
}

// Close implements RevocationStore.
func (s *MemoryRevocationStore) Close() error { return nil }

const (
	revokedKeyPrefix = "revoked:"
	gcDiscardRatio   = 0.5
)

// BadgerRevocationStore persists revocations so a forced sign-out survives a
// restart. Badger TTLs expire entries with the token.
type BadgerRevocationStore struct {
	db    *badger.DB
	owned bool
	clock clock.Clock
}

// OpenBadgerRevocationStore opens (or creates) a Badger database at path.
func OpenBadgerRevocationStore(path string, clk clock.Clock) (*BadgerRevocationStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open revocation store: %w", err)
	}
	s := NewBadgerRevocationStore(db, clk)
	s.owned = true
	return s, nil
}

// NewBadgerRevocationStore wraps an open database. The caller keeps
// ownership of db.
func NewBadgerRevocationStore(db *badger.DB, clk clock.Clock) *BadgerRevocationStore {
	if clk == nil {
		clk = clock.Real()
	}
	return &BadgerRevocationStore{db: db, clock: clk}
}

// Revoke implements RevocationStore.
func (s *BadgerRevocationStore) Revoke(_ context.Context, sessionID, reason string, until time.Time) error {
	now := s.clock.Now()
	ttl := until.Sub(now)
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(Revocation{SessionID: sessionID, Reason: reason, RevokedAt: now, Until: until})
	if err != nil {
		return fmt.Errorf("marshal revocation: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(revokedKeyPrefix+sessionID), data).WithTTL(ttl)
		if err := txn.SetEntry(e); err != nil {
			return fmt.Errorf("set revocation: %w", err)
		}
		return nil
	})
}

// IsRevoked implements RevocationStore. The stored deadline is checked as
// well as the TTL so an injected clock is honored.
func (s *BadgerRevocationStore) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	var r Revocation
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(revokedKeyPrefix + sessionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get revocation: %w", err)
	}
	return s.clock.Now().Before(r.Until), nil
}

// RunGC rewrites value log files until Badger reports nothing left to
// reclaim. Expired revocations only free space after a rewrite.
func (s *BadgerRevocationStore) RunGC() error {
	for {
		err := s.db.RunValueLogGC(gcDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("revocation store gc: %w", err)
		}
	}
}

// Close closes the database when the store opened it.
func (s *BadgerRevocationStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
