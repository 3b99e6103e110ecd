// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

// Package config loads Fieldguard configuration.
//
// Loading order (later layers win):
//  1. Defaults from defaultConfig()
//  2. Optional YAML file (CONFIG_PATH, ./config.yaml, /etc/fieldguard/config.yaml)
//  3. Environment variables listed in envMappings
//
// Config is immutable after Load and safe for concurrent reads.
package config

import "time"

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Security   SecurityConfig   `koanf:"security"`
	Protection ProtectionConfig `koanf:"protection"`
	Disclosure DisclosureConfig `koanf:"disclosure"`
	Aggregator AggregatorConfig `koanf:"aggregator"`
	Notifier   NotifierConfig   `koanf:"notifier"`
	Audit      AuditConfig      `koanf:"audit"`
	Feed       FeedConfig       `koanf:"feed"`
	Sessions   SessionsConfig   `koanf:"sessions"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SecurityConfig holds identity, CORS and request rate limiting settings.
//
// Environment Variables:
//   - JWT_SECRET: HMAC key for session tokens, at least 32 bytes
//   - CORS_ORIGINS: comma-separated allowed origins
//   - RATE_LIMIT_REQUESTS / RATE_LIMIT_WINDOW / DISABLE_RATE_LIMIT
type SecurityConfig struct {
	JWTSecret        string        `koanf:"jwt_secret"`
	TokenTTL         time.Duration `koanf:"token_ttl"`
	CORSOrigins      []string      `koanf:"cors_origins"`
	RateLimitReqs    int           `koanf:"rate_limit_requests"`
	RateLimitWindow  time.Duration `koanf:"rate_limit_window"`
	RateLimitDisable bool          `koanf:"rate_limit_disabled"`

	// CasbinModelPath and CasbinPolicyPath override the embedded model and
	// policy when set.
	CasbinModelPath  string `koanf:"casbin_model_path"`
	CasbinPolicyPath string `koanf:"casbin_policy_path"`

	// CasbinReloadInterval re-reads a file policy. Zero disables reloads.
	CasbinReloadInterval time.Duration `koanf:"casbin_reload_interval"`
}

// ProtectionConfig tunes the signal detectors and the violation ledger.
type ProtectionConfig struct {
	// Threshold is the violation count that terminates the session.
	Threshold int `koanf:"threshold"`

	// ResetWindow is the quiet period after which the count returns to zero.
	ResetWindow time.Duration `koanf:"reset_window"`

	// SignOutDelay separates TERMINATED from the forced sign-out.
	SignOutDelay time.Duration `koanf:"sign_out_delay"`

	FocusGrace          time.Duration `koanf:"focus_grace"`
	DevToolsPoll        time.Duration `koanf:"dev_tools_poll"`
	DevToolsThresholdPx int           `koanf:"dev_tools_threshold_px"`
	ScreenshotDebounce  time.Duration `koanf:"screenshot_debounce"`
}

// DisclosureConfig configures reveal limits and grant lifetime.
type DisclosureConfig struct {
	RevealLimit  int           `koanf:"reveal_limit"`
	RevealWindow time.Duration `koanf:"reveal_window"`
	AutoHide     time.Duration `koanf:"auto_hide"`

	// CounterBackend is "memory" or "redis".
	CounterBackend string `koanf:"counter_backend"`
	RedisURL       string `koanf:"redis_url"`

	// DirectoryBackend is "memory" or "duckdb" and selects where lead contacts
	// are read from.
	DirectoryBackend string `koanf:"directory_backend"`

	// DirectoryCacheSize and DirectoryCacheTTL bound the LRU in front of the
	// duckdb directory. A zero size disables the cache.
	DirectoryCacheSize int           `koanf:"directory_cache_size"`
	DirectoryCacheTTL  time.Duration `koanf:"directory_cache_ttl"`

	// SeedPath is an optional JSON array of contacts loaded into the
	// directory at startup.
	SeedPath string `koanf:"seed_path"`
}

// AggregatorConfig configures the suspicious-activity aggregator.
type AggregatorConfig struct {
	Enabled        bool          `koanf:"enabled"`
	WindowMinutes  int           `koanf:"window_minutes"`
	Threshold      int           `koanf:"threshold"`
	PollInterval   time.Duration `koanf:"poll_interval"`
	RetryAttempts  int           `koanf:"retry_attempts"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`
	RetryCooldown  time.Duration `koanf:"retry_cooldown"`
	QueryLimit     int           `koanf:"query_limit"`
}

// NotifierConfig configures outbound alert channels.
type NotifierConfig struct {
	WebhookEnabled   bool              `koanf:"webhook_enabled"`
	WebhookURL       string            `koanf:"webhook_url"`
	WebhookHeaders   map[string]string `koanf:"webhook_headers"`
	WebhookTimeout   time.Duration     `koanf:"webhook_timeout"`
	WebhookRateLimit time.Duration     `koanf:"webhook_rate_limit"`

	// BreakerFailures consecutive failures open the webhook circuit for
	// BreakerTimeout.
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`

	BroadcastEnabled bool `koanf:"broadcast_enabled"`
}

// AuditConfig selects the audit store.
type AuditConfig struct {
	// Backend is "memory" or "duckdb".
	Backend string `koanf:"backend"`
	Path    string `koanf:"path"`

	// MemoryCapacity bounds the in-memory trail; the oldest entries drop.
	MemoryCapacity int `koanf:"memory_capacity"`
}

// FeedConfig selects the audit change feed.
type FeedConfig struct {
	// Backend is "memory" or "nats". The nats backend needs -tags nats.
	Backend string `koanf:"backend"`
	URL     string `koanf:"url"`
	Topic   string `koanf:"topic"`
	Stream  string `koanf:"stream"`

	// Embedded starts an in-process NATS server instead of dialing URL.
	// StoreDir holds its JetStream data.
	Embedded bool   `koanf:"embedded"`
	StoreDir string `koanf:"store_dir"`
}

// SessionsConfig configures the session registry.
type SessionsConfig struct {
	// RevocationPath is the Badger directory for revoked session IDs.
	// Empty keeps revocations in memory.
	RevocationPath string `koanf:"revocation_path"`

	// RevocationGCInterval spaces Badger value log GC runs.
	RevocationGCInterval time.Duration `koanf:"revocation_gc_interval"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
