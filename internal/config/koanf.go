// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/fieldguard/config.yaml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8088,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			TokenTTL:        12 * time.Hour,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
		},
		Protection: ProtectionConfig{
			Threshold:           3,
			ResetWindow:         30 * time.Minute,
			SignOutDelay:        2 * time.Second,
			FocusGrace:          500 * time.Millisecond,
			DevToolsPoll:        time.Second,
			DevToolsThresholdPx: 160,
			ScreenshotDebounce:  500 * time.Millisecond,
		},
		Disclosure: DisclosureConfig{
			RevealLimit:        10,
			RevealWindow:       time.Hour,
			AutoHide:           60 * time.Second,
			CounterBackend:     "memory",
			DirectoryBackend:   "memory",
			DirectoryCacheSize: 5000,
			DirectoryCacheTTL:  time.Minute,
		},
		Aggregator: AggregatorConfig{
			Enabled:        true,
			WindowMinutes:  2,
			Threshold:      3,
			PollInterval:   30 * time.Second,
			RetryAttempts:  3,
			RetryBaseDelay: 500 * time.Millisecond,
			RetryCooldown:  time.Minute,
			QueryLimit:     1000,
		},
		Notifier: NotifierConfig{
			WebhookTimeout:   10 * time.Second,
			WebhookRateLimit: time.Second,
			BreakerFailures:  5,
			BreakerTimeout:   30 * time.Second,
			BroadcastEnabled: true,
		},
		Audit: AuditConfig{
			Backend:        "memory",
			Path:           "/data/fieldguard.duckdb",
			MemoryCapacity: 10000,
		},
		Feed: FeedConfig{
			Backend:  "memory",
			URL:      "nats://127.0.0.1:4222",
			Topic:    "fieldguard.audit",
			Stream:   "FIELDGUARD_AUDIT",
			StoreDir: "/data/nats",
		},
		Sessions: SessionsConfig{
			RevocationGCInterval: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file and
// the environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths arrive from the environment as comma-separated strings.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Unlisted variables are ignored.
var envMappings = map[string]string{
	"http_host":                "server.host",
	"http_port":                "server.port",
	"http_timeout":             "server.timeout",
	"shutdown_timeout":         "server.shutdown_timeout",
	"jwt_secret":               "security.jwt_secret",
	"token_ttl":                "security.token_ttl",
	"cors_origins":             "security.cors_origins",
	"rate_limit_requests":      "security.rate_limit_requests",
	"rate_limit_window":        "security.rate_limit_window",
	"disable_rate_limit":       "security.rate_limit_disabled",
	"casbin_model_path":        "security.casbin_model_path",
	"casbin_policy_path":       "security.casbin_policy_path",
	"casbin_reload_interval":   "security.casbin_reload_interval",
	"violation_threshold":      "protection.threshold",
	"violation_reset_window":   "protection.reset_window",
	"sign_out_delay":           "protection.sign_out_delay",
	"focus_grace":              "protection.focus_grace",
	"dev_tools_poll":           "protection.dev_tools_poll",
	"dev_tools_threshold_px":   "protection.dev_tools_threshold_px",
	"screenshot_debounce":      "protection.screenshot_debounce",
	"reveal_limit":             "disclosure.reveal_limit",
	"reveal_window":            "disclosure.reveal_window",
	"reveal_auto_hide":         "disclosure.auto_hide",
	"reveal_counter_backend":   "disclosure.counter_backend",
	"redis_url":                "disclosure.redis_url",
	"directory_backend":        "disclosure.directory_backend",
	"contacts_seed_path":       "disclosure.seed_path",
	"directory_cache_size":     "disclosure.directory_cache_size",
	"directory_cache_ttl":      "disclosure.directory_cache_ttl",
	"aggregator_enabled":       "aggregator.enabled",
	"suspicious_window_min":    "aggregator.window_minutes",
	"suspicious_threshold":     "aggregator.threshold",
	"aggregator_poll_interval": "aggregator.poll_interval",
	"alert_retry_attempts":     "aggregator.retry_attempts",
	"alert_retry_base_delay":   "aggregator.retry_base_delay",
	"alert_retry_cooldown":     "aggregator.retry_cooldown",
	"webhook_enabled":          "notifier.webhook_enabled",
	"webhook_url":              "notifier.webhook_url",
	"webhook_timeout":          "notifier.webhook_timeout",
	"webhook_rate_limit":       "notifier.webhook_rate_limit",
	"alert_broadcast_enabled":  "notifier.broadcast_enabled",
	"audit_backend":            "audit.backend",
	"duckdb_path":              "audit.path",
	"audit_memory_capacity":    "audit.memory_capacity",
	"feed_backend":             "feed.backend",
	"nats_url":                 "feed.url",
	"feed_topic":               "feed.topic",
	"feed_stream":              "feed.stream",
	"nats_embedded":            "feed.embedded",
	"nats_store_dir":           "feed.store_dir",
	"revocation_path":          "sessions.revocation_path",
	"revocation_gc_interval":   "sessions.revocation_gc_interval",
	"log_level":                "logging.level",
	"log_format":               "logging.format",
	"log_caller":               "logging.caller",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
