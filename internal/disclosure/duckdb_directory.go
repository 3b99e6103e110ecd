// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package disclosure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tomtom215/fieldguard/internal/database"
	"github.com/tomtom215/fieldguard/internal/logging"
)

const leadsSchema = `
	CREATE TABLE IF NOT EXISTS leads (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL DEFAULT 'lead',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT ''
	)
`

// DuckDBDirectory reads contacts from the leads table. The CRM owns the rows;
// Upsert exists for seeding and tests.
type DuckDBDirectory struct {
	db *sql.DB
}

// NewDuckDBDirectory wraps db. Call CreateTable before use.
func NewDuckDBDirectory(db *sql.DB) *DuckDBDirectory {
	return &DuckDBDirectory{db: db}
}

// CreateTable creates the leads table if missing.
func (d *DuckDBDirectory) CreateTable(ctx context.Context) error {
	if err := database.ApplySchema(ctx, d.db, leadsSchema); err != nil {
		return fmt.Errorf("leads schema: %w", err)
	}
	logging.Debug().Msg("Leads table created/verified")
	return nil
}

// Upsert inserts or replaces a contact.
func (d *DuckDBDirectory) Upsert(ctx context.Context, c Contact) error {
	if c.EntityType == "" {
		c.EntityType = EntityTypeLead
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO leads (id, entity_type, email, phone) VALUES (?, ?, ?, ?)`,
		c.EntityID, c.EntityType, c.Email, c.Phone,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert lead: %w", err)
	}
	return nil
}

// Contact implements Directory.
func (d *DuckDBDirectory) Contact(ctx context.Context, entityID string) (*Contact, error) {
	c := Contact{EntityID: entityID}
	err := d.db.QueryRowContext(ctx,
		`SELECT entity_type, email, phone FROM leads WHERE id = ?`, entityID,
	).Scan(&c.EntityType, &c.Email, &c.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lead: %w", err)
	}
	return &c, nil
}
