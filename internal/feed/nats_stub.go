// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

//go:build !nats

package feed

import (
	"context"
	"errors"
	"time"
)

// DefaultStream names the JetStream stream holding the feed subject.
const DefaultStream = "FIELDGUARD_AUDIT"

// NATSConfig configures the JetStream-backed feed.
type NATSConfig struct {
	URL             string
	Topic           string
	Stream          string
	MaxAge          time.Duration
	MaxReconnects   int
	ReconnectWait   time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// ErrNATSUnavailable is returned by NewNATS in builds without -tags nats.
var ErrNATSUnavailable = errors.New("NATS feed not available: build with -tags nats")

// NewNATS returns ErrNATSUnavailable.
func NewNATS(context.Context, NATSConfig) (*Feed, error) {
	return nil, ErrNATSUnavailable
}

// ServerConfig configures the embedded NATS server.
type ServerConfig struct {
	Host              string
	Port              int
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// EmbeddedServer is unavailable without -tags nats.
type EmbeddedServer struct{}

// NewEmbeddedServer returns ErrNATSUnavailable.
func NewEmbeddedServer(ServerConfig) (*EmbeddedServer, error) {
	return nil, ErrNATSUnavailable
}

// ClientURL returns "".
func (s *EmbeddedServer) ClientURL() string { return "" }

// Running returns false.
func (s *EmbeddedServer) Running() bool { return false }

// Shutdown does nothing.
func (s *EmbeddedServer) Shutdown() {}
