// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldguard/internal/api"
	"github.com/tomtom215/fieldguard/internal/audit"
	"github.com/tomtom215/fieldguard/internal/config"
	"github.com/tomtom215/fieldguard/internal/database"
	"github.com/tomtom215/fieldguard/internal/disclosure"
	"github.com/tomtom215/fieldguard/internal/feed"
	"github.com/tomtom215/fieldguard/internal/logging"
)

// storage holds the persistence components and what must be closed on exit.
type storage struct {
	db        *database.DB
	audit     audit.Store
	directory disclosure.Directory
	feed      *feed.Feed
	nats      *feed.EmbeddedServer
	readiness []api.ReadinessCheck
}

func (s *storage) Close() {
	if s.feed != nil {
		if err := s.feed.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit feed")
		}
	}
	if s.nats != nil {
		s.nats.Shutdown()
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}
}

// initStorage opens the audit store, the audit feed and the contact
// directory. The returned audit store publishes every append to the feed.
func initStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	s := &storage{}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	var backing audit.Store
	switch cfg.Audit.Backend {
	case "duckdb":
		db, err := database.Open(ctx, cfg.Audit.Path)
		if err != nil {
			return nil, err
		}
		s.db = db
		store := audit.NewDuckDBStore(db.Conn())
		if err := store.CreateTable(ctx); err != nil {
			return nil, err
		}
		backing = store
		s.readiness = append(s.readiness, api.ReadinessCheck{Name: "duckdb", Check: db.Ping})
	default:
		backing = audit.NewMemoryStore(cfg.Audit.MemoryCapacity)
	}

	f, ns, err := initFeed(ctx, cfg)
	s.nats = ns
	if err != nil {
		return nil, err
	}
	s.feed = f
	s.audit = audit.NewPublishingStore(backing, f)

	contacts, err := loadContacts(cfg.Disclosure.SeedPath)
	if err != nil {
		return nil, err
	}
	switch cfg.Disclosure.DirectoryBackend {
	case "duckdb":
		dir := disclosure.NewDuckDBDirectory(s.db.Conn())
		if err := dir.CreateTable(ctx); err != nil {
			return nil, err
		}
		for _, c := range contacts {
			if err := dir.Upsert(ctx, c); err != nil {
				return nil, err
			}
		}
		s.directory = dir
		if size := cfg.Disclosure.DirectoryCacheSize; size > 0 {
			s.directory = disclosure.NewCachedDirectory(dir, size, cfg.Disclosure.DirectoryCacheTTL, nil)
		}
	default:
		s.directory = disclosure.NewMemoryDirectory(contacts...)
	}
	if len(contacts) > 0 {
		logging.Info().Int("contacts", len(contacts)).Str("backend", cfg.Disclosure.DirectoryBackend).Msg("Contact directory seeded")
	}

	logging.Info().
		Str("audit", cfg.Audit.Backend).
		Str("feed", cfg.Feed.Backend).
		Str("directory", cfg.Disclosure.DirectoryBackend).
		Msg("Storage initialized")
	ok = true
	return s, nil
}

func initFeed(ctx context.Context, cfg *config.Config) (*feed.Feed, *feed.EmbeddedServer, error) {
	if cfg.Feed.Backend != "nats" {
		return feed.NewMemory(cfg.Feed.Topic), nil, nil
	}

	url := cfg.Feed.URL
	var ns *feed.EmbeddedServer
	if cfg.Feed.Embedded {
		var err error
		ns, err = feed.NewEmbeddedServer(feed.ServerConfig{Port: -1, StoreDir: cfg.Feed.StoreDir})
		if err != nil {
			return nil, nil, fmt.Errorf("embedded NATS server: %w", err)
		}
		url = ns.ClientURL()
		logging.Info().Str("url", url).Str("store_dir", cfg.Feed.StoreDir).Msg("Embedded NATS server started")
	}

	f, err := feed.NewNATS(ctx, feed.NATSConfig{
		URL:             url,
		Topic:           cfg.Feed.Topic,
		Stream:          cfg.Feed.Stream,
		BreakerFailures: cfg.Notifier.BreakerFailures,
		BreakerTimeout:  cfg.Notifier.BreakerTimeout,
	})
	if err != nil {
		return nil, ns, fmt.Errorf("audit feed: %w", err)
	}
	return f, ns, nil
}

// loadContacts reads a JSON array of contacts. An empty path yields none.
func loadContacts(path string) ([]disclosure.Contact, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read contacts seed: %w", err)
	}
	var contacts []disclosure.Contact
	if err := json.Unmarshal(data, &contacts); err != nil {
		return nil, fmt.Errorf("parse contacts seed %s: %w", path, err)
	}
	for i, c := range contacts {
		if c.EntityID == "" {
			return nil, fmt.Errorf("contacts seed %s: entry %d has no entity_id", path, i)
		}
	}
	return contacts, nil
}
