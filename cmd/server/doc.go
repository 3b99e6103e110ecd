// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

/*
Package main is the entry point for the Fieldguard server.

Fieldguard guards lead contact data inside a CRM: agents see masked email
addresses and phone numbers, reveal them one at a time under a rolling quota,
and run their session under screen-capture and clipboard protection. Admins
are alerted when an agent reveals contacts abnormally fast.

# Application Architecture

	RootSupervisor ("fieldguard")
	├── StorageSupervisor ("storage-layer")
	│   └── Revocation GC (Badger revocation store only)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocket Hub (protection channel, admin alerts)
	│   └── Audit Relay (feed to admin sockets)
	├── DetectionSupervisor ("detection-layer")
	│   └── Suspicious-activity Aggregator
	└── APISupervisor ("api-layer")
	    └── HTTP Server (chi)

Component initialization order:

 1. Configuration: Koanf v2 (defaults, YAML file, environment)
 2. Logging: zerolog with JSON or console output
 3. Audit store: in-memory ring or DuckDB
 4. Audit feed: in-process or NATS (-tags nats) via Watermill
 5. Contact directory: in-memory or DuckDB, optionally seeded from JSON
 6. Reveal quota: in-memory sliding log or Redis
 7. Authorization: Casbin model and policy
 8. Session registry with Badger or in-memory revocations
 9. Aggregator and its webhook and WebSocket notifiers
 10. Supervisor tree and HTTP server

# Configuration

	# Server
	HTTP_PORT=8088
	LOG_LEVEL=info               # trace, debug, info, warn, error
	LOG_FORMAT=json              # json or console

	# Identity
	JWT_SECRET=<32+ chars>
	CORS_ORIGINS=https://crm.example.com

	# Disclosure
	REVEAL_LIMIT=10
	REVEAL_WINDOW=1h
	REVEAL_COUNTER_BACKEND=redis
	REDIS_URL=redis://redis:6379/0
	CONTACTS_SEED_PATH=/data/contacts.json

	# Storage
	AUDIT_BACKEND=duckdb
	DUCKDB_PATH=/data/fieldguard.duckdb
	REVOCATION_PATH=/data/revocations

	# Audit feed (-tags nats)
	FEED_BACKEND=nats
	NATS_URL=nats://nats:4222
	NATS_EMBEDDED=false          # true runs an in-process JetStream server
	NATS_STORE_DIR=/data/nats

	# Alerts
	WEBHOOK_ENABLED=true
	WEBHOOK_URL=https://hooks.example.com/fieldguard

# Build Tags

	go build ./cmd/server                # in-process audit feed
	go build -tags nats ./cmd/server     # NATS audit feed (FEED_BACKEND=nats)

# Signal Handling

SIGINT and SIGTERM cancel the root context. The supervisor stops the HTTP
server (draining requests for SHUTDOWN_TIMEOUT), closes every WebSocket with
a going-away frame, and the stores are closed after the tree has stopped.
*/
package main
