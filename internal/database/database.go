// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

// Package database opens the DuckDB file shared by the audit store and the
// lead contact directory.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/fieldguard/internal/logging"
)

// DB wraps a DuckDB connection pool.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (creating if needed) the DuckDB database at path. Use ":memory:"
// for an ephemeral database.
func Open(ctx context.Context, path string) (*DB, error) {
	connStr := ":memory:?autoinstall_known_extensions=false"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
		// Extension auto-install hangs on hosts without network access.
		connStr = fmt.Sprintf("%s?access_mode=read_write&threads=%d&autoinstall_known_extensions=false",
			path, runtime.NumCPU())
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, path: path}
	db.configureConnectionPool()

	logging.Info().Str("path", path).Msg("DuckDB opened")
	return db, nil
}

func (db *DB) configureConnectionPool() {
	db.conn.SetMaxOpenConns(runtime.NumCPU())
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
}

// Conn returns the underlying pool.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// ApplySchema executes a semicolon-separated DDL script one statement at a
// time. Statements must be idempotent (CREATE ... IF NOT EXISTS).
func (db *DB) ApplySchema(ctx context.Context, ddl string) error {
	return ApplySchema(ctx, db.conn, ddl)
}

// ApplySchema is the pool-level form used by stores handed a bare *sql.DB.
func ApplySchema(ctx context.Context, conn *sql.DB, ddl string) error {
	for _, stmt := range strings.Split(ddl, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the pool.
func (db *DB) Close() error {
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database %s: %w", db.path, err)
	}
	return nil
}

func closeQuietly(c *sql.DB) {
	if err := c.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close database connection")
	}
}
