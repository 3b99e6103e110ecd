// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWTSecret = testSecret
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	if cfg.Protection.Threshold != 3 {
		t.Errorf("Protection.Threshold = %d, want 3", cfg.Protection.Threshold)
	}
	if cfg.Protection.ResetWindow != 30*time.Minute {
		t.Errorf("Protection.ResetWindow = %v, want 30m", cfg.Protection.ResetWindow)
	}
	if cfg.Protection.FocusGrace != 500*time.Millisecond {
		t.Errorf("Protection.FocusGrace = %v", cfg.Protection.FocusGrace)
	}
	if cfg.Protection.DevToolsThresholdPx != 160 {
		t.Errorf("DevToolsThresholdPx = %d", cfg.Protection.DevToolsThresholdPx)
	}
	if cfg.Disclosure.RevealLimit != 10 || cfg.Disclosure.RevealWindow != time.Hour {
		t.Errorf("reveal limit = %d per %v", cfg.Disclosure.RevealLimit, cfg.Disclosure.RevealWindow)
	}
	if cfg.Disclosure.AutoHide != time.Minute {
		t.Errorf("AutoHide = %v, want 60s", cfg.Disclosure.AutoHide)
	}
	if cfg.Aggregator.WindowMinutes != 2 || cfg.Aggregator.Threshold != 3 {
		t.Errorf("aggregator = %d min / %d", cfg.Aggregator.WindowMinutes, cfg.Aggregator.Threshold)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults with secret", func(*Config) {}, ""},
		{"short secret", func(c *Config) { c.Security.JWTSecret = "short" }, "JWT_SECRET"},
		{"threshold below two", func(c *Config) { c.Protection.Threshold = 1 }, "VIOLATION_THRESHOLD"},
		{"zero reset window", func(c *Config) { c.Protection.ResetWindow = 0 }, "protection durations"},
		{"zero reveal limit", func(c *Config) { c.Disclosure.RevealLimit = 0 }, "REVEAL_LIMIT"},
		{"redis without url", func(c *Config) { c.Disclosure.CounterBackend = "redis" }, "REDIS_URL"},
		{"unknown counter", func(c *Config) { c.Disclosure.CounterBackend = "etcd" }, "counter backend"},
		{"duckdb directory needs duckdb audit", func(c *Config) { c.Disclosure.DirectoryBackend = "duckdb" }, "DIRECTORY_BACKEND"},
		{"bad webhook url", func(c *Config) {
			c.Notifier.WebhookEnabled = true
			c.Notifier.WebhookURL = "ftp://example.com"
		}, "WEBHOOK_URL"},
		{"unknown audit backend", func(c *Config) { c.Audit.Backend = "sqlite" }, "audit backend"},
		{"empty memory audit", func(c *Config) { c.Audit.MemoryCapacity = 0 }, "AUDIT_MEMORY_CAPACITY"},
		{"unknown feed backend", func(c *Config) { c.Feed.Backend = "kafka" }, "feed backend"},
		{"nats without url", func(c *Config) {
			c.Feed.Backend = "nats"
			c.Feed.URL = ""
		}, "NATS_URL"},
		{"embedded nats needs no url", func(c *Config) {
			c.Feed.Backend = "nats"
			c.Feed.URL = ""
			c.Feed.Embedded = true
		}, ""},
		{"embedded nats without store", func(c *Config) {
			c.Feed.Backend = "nats"
			c.Feed.Embedded = true
			c.Feed.StoreDir = ""
		}, "NATS_STORE_DIR"},
		{"dotted stream name", func(c *Config) {
			c.Feed.Backend = "nats"
			c.Feed.Stream = "fieldguard.audit"
		}, "FEED_STREAM"},
		{"disabled aggregator skips checks", func(c *Config) {
			c.Aggregator.Enabled = false
			c.Aggregator.WindowMinutes = 0
		}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "HTTP_PORT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()

	if got := envTransformFunc("VIOLATION_THRESHOLD"); got != "protection.threshold" {
		t.Errorf("got %q", got)
	}
	if got := envTransformFunc("PATH"); got != "" {
		t.Errorf("unmapped variable mapped to %q", got)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
security:
  jwt_secret: "` + testSecret + `"
protection:
  threshold: 4
disclosure:
  reveal_limit: 5
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("REVEAL_LIMIT", "7")
	t.Setenv("CORS_ORIGINS", "https://crm.example.com, https://admin.example.com")
	t.Setenv("VIOLATION_RESET_WINDOW", "10m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Protection.Threshold != 4 {
		t.Errorf("Threshold = %d, want 4 from file", cfg.Protection.Threshold)
	}
	if cfg.Disclosure.RevealLimit != 7 {
		t.Errorf("RevealLimit = %d, want 7 from env", cfg.Disclosure.RevealLimit)
	}
	if cfg.Protection.ResetWindow != 10*time.Minute {
		t.Errorf("ResetWindow = %v, want 10m", cfg.Protection.ResetWindow)
	}
	want := []string{"https://crm.example.com", "https://admin.example.com"}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[0] != want[0] || cfg.Security.CORSOrigins[1] != want[1] {
		t.Errorf("CORSOrigins = %v, want %v", cfg.Security.CORSOrigins, want)
	}
	if cfg.Aggregator.WindowMinutes != 2 {
		t.Errorf("WindowMinutes default lost: %d", cfg.Aggregator.WindowMinutes)
	}
}

func TestLoad_FailsValidation(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error without JWT_SECRET")
	}
}
