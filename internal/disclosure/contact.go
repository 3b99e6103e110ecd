// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

// Package disclosure serves masked PII and reveals it on demand.
//
// The server side (Service) masks contact fields, enforces the per-user
// rolling reveal limit and audits every reveal. The client side (Field) holds
// a revealed value in a time-boxed RevealGrant and hides it again.
package disclosure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// FieldKind is a revealable contact field.
type FieldKind string

const (
	KindEmail FieldKind = "email"
	KindPhone FieldKind = "phone"
)

// Valid reports whether k is a known kind.
func (k FieldKind) Valid() bool {
	return k == KindEmail || k == KindPhone
}

// Sentinel errors.
var (
	ErrNotFound    = errors.New("entity not found")
	ErrInvalidKind = errors.New("invalid field kind")
)

// Contact is the sensitive part of a lead.
type Contact struct {
	EntityID   string `json:"entity_id"`
	EntityType string `json:"entity_type"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

// Value returns the unmasked field of kind k.
func (c *Contact) Value(k FieldKind) (string, error) {
	switch k {
	case KindEmail:
		return c.Email, nil
	case KindPhone:
		return c.Phone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, k)
	}
}

// MaskedContact is what a client sees before revealing anything.
type MaskedContact struct {
	EntityID   string `json:"entity_id"`
	EntityType string `json:"entity_type"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

// Mask returns the masked projection of c.
func (c *Contact) Mask() MaskedContact {
	return MaskedContact{
		EntityID:   c.EntityID,
		EntityType: c.EntityType,
		Email:      MaskEmail(c.Email),
		Phone:      MaskPhone(c.Phone),
	}
}

// MaskEmail keeps the first character of the local part and the domain:
// "jane.doe@example.com" becomes "j*******@example.com".
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 1 {
		return strings.Repeat("*", len([]rune(email)))
	}
	local := []rune(email[:at])
	return string(local[0]) + strings.Repeat("*", len(local)-1) + email[at:]
}

// MaskPhone keeps the last two digits and the punctuation:
// "+1 (555) 010-4477" becomes "+* (***) ***-**77".
func MaskPhone(phone string) string {
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	var b strings.Builder
	seen := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			seen++
			if seen <= digits-2 {
				r = '*'
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Directory looks up contacts by entity ID.
type Directory interface {
	Contact(ctx context.Context, entityID string) (*Contact, error)
}

// MemoryDirectory is a Directory backed by a map.
type MemoryDirectory struct {
	mu       sync.RWMutex
	contacts map[string]Contact
}

// NewMemoryDirectory creates a directory holding contacts.
func NewMemoryDirectory(contacts ...Contact) *MemoryDirectory {
	d := &MemoryDirectory{contacts: make(map[string]Contact, len(contacts))}
	for _, c := range contacts {
		d.Put(c)
	}
	return d
}

// Put adds or replaces a contact.
func (d *MemoryDirectory) Put(c Contact) {
	if c.EntityType == "" {
		c.EntityType = EntityTypeLead
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contacts[c.EntityID] = c
}

// Contact implements Directory.
func (d *MemoryDirectory) Contact(_ context.Context, entityID string) (*Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.contacts[entityID]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

// EntityTypeLead is the default entity type of contacts.
const EntityTypeLead = "lead"
