// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

//go:build integration

package database

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpen_FileAndSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "fieldguard.duckdb")

	db, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	ddl := `
		CREATE TABLE IF NOT EXISTS schema_check (id INTEGER);
		CREATE INDEX IF NOT EXISTS idx_schema_check_id ON schema_check(id);
	`
	for i := 0; i < 2; i++ {
		if err := db.ApplySchema(ctx, ddl); err != nil {
			t.Fatalf("ApplySchema pass %d: %v", i, err)
		}
	}
	if err := db.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestOpen_Memory(t *testing.T) {
	db, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
