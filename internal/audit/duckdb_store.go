// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldguard/internal/database"
	"github.com/tomtom215/fieldguard/internal/logging"
)

const auditSchema = `
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		details JSON,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_created_at ON audit_log(created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action);
	CREATE INDEX IF NOT EXISTS idx_audit_log_user_id ON audit_log(user_id)
`

// DuckDBStore persists entries in the audit_log table. Timestamps are stored
// as UTC.
type DuckDBStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewDuckDBStore wraps db. Call CreateTable before use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db, now: time.Now}
}

// CreateTable creates audit_log and its indexes if missing.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	if err := database.ApplySchema(ctx, s.db, auditSchema); err != nil {
		return fmt.Errorf("audit schema: %w", err)
	}
	logging.Debug().Msg("Audit log table created/verified")
	return nil
}

// Append implements Store.
func (s *DuckDBStore) Append(ctx context.Context, e *Entry) error {
	if e == nil {
		return ErrNilEntry
	}
	fillDefaults(e, s.now)

	var details *string
	if len(e.Details) > 0 {
		d := string(e.Details)
		details = &d
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, user_id, action, entity_type, entity_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, string(e.Action), e.EntityType, e.EntityID, details, e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Query implements Store.
func (s *DuckDBStore) Query(ctx context.Context, f Filter) ([]Entry, error) {
	where, args := buildWhere(&f)
	query := `SELECT id, user_id, action, entity_type, entity_id, CAST(details AS VARCHAR), created_at
		FROM audit_log` + where + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			action  string
			details sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &action, &e.EntityType, &e.EntityID, &details, &e.CreatedAt); err != nil {
			logging.Warn().Err(err).Msg("Failed to scan audit row")
			continue
		}
		e.Action = Action(action)
		e.CreatedAt = e.CreatedAt.UTC()
		if details.Valid && details.String != "" {
			e.Details = json.RawMessage(details.String)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log: %w", err)
	}
	return out, nil
}

// Count implements Store.
func (s *DuckDBStore) Count(ctx context.Context, f Filter) (int64, error) {
	where, args := buildWhere(&f)
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count audit log: %w", err)
	}
	return n, nil
}

// buildWhere renders f as a WHERE clause. starts_with is used instead of LIKE
// because "_" in action prefixes is a LIKE wildcard.
func buildWhere(f *Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.ActionPrefix != "" {
		conds = append(conds, "starts_with(action, ?)")
		args = append(args, f.ActionPrefix)
	}
	if len(f.Actions) > 0 {
		ph := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			ph[i] = "?"
			args = append(args, string(a))
		}
		conds = append(conds, "action IN ("+strings.Join(ph, ",")+")")
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.EntityID != "" {
		conds = append(conds, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, f.Until.UTC())
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
