// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks ranges and backend names.
func (c *Config) Validate() error {
	for _, fn := range []func() error{
		c.validateServer,
		c.validateSecurity,
		c.validateProtection,
		c.validateDisclosure,
		c.validateAggregator,
		c.validateNotifier,
		c.validateBackends,
	} {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.Security.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if !c.Security.RateLimitDisable && (c.Security.RateLimitReqs < 1 || c.Security.RateLimitWindow <= 0) {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

func (c *Config) validateProtection() error {
	p := c.Protection
	if p.Threshold < 2 {
		return fmt.Errorf("VIOLATION_THRESHOLD must be at least 2, got %d", p.Threshold)
	}
	if p.ResetWindow <= 0 || p.SignOutDelay < 0 || p.FocusGrace <= 0 ||
		p.DevToolsPoll <= 0 || p.ScreenshotDebounce < 0 {
		return fmt.Errorf("protection durations must be positive")
	}
	if p.DevToolsThresholdPx <= 0 {
		return fmt.Errorf("DEV_TOOLS_THRESHOLD_PX must be positive")
	}
	return nil
}

func (c *Config) validateDisclosure() error {
	d := c.Disclosure
	if d.RevealLimit < 1 {
		return fmt.Errorf("REVEAL_LIMIT must be at least 1")
	}
	if d.RevealWindow <= 0 || d.AutoHide <= 0 {
		return fmt.Errorf("REVEAL_WINDOW and REVEAL_AUTO_HIDE must be positive")
	}
	switch d.CounterBackend {
	case "memory":
	case "redis":
		if d.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when REVEAL_COUNTER_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown reveal counter backend %q", d.CounterBackend)
	}
	switch d.DirectoryBackend {
	case "memory", "duckdb":
	default:
		return fmt.Errorf("unknown directory backend %q", d.DirectoryBackend)
	}
	if d.DirectoryBackend == "duckdb" && c.Audit.Backend != "duckdb" {
		return fmt.Errorf("DIRECTORY_BACKEND=duckdb requires AUDIT_BACKEND=duckdb")
	}
	return nil
}

func (c *Config) validateAggregator() error {
	a := c.Aggregator
	if !a.Enabled {
		return nil
	}
	if a.WindowMinutes < 1 {
		return fmt.Errorf("SUSPICIOUS_WINDOW_MIN must be at least 1")
	}
	if a.Threshold < 1 {
		return fmt.Errorf("SUSPICIOUS_THRESHOLD must be at least 1")
	}
	if a.PollInterval <= 0 {
		return fmt.Errorf("AGGREGATOR_POLL_INTERVAL must be positive")
	}
	if a.RetryAttempts < 1 || a.RetryBaseDelay < 0 || a.RetryCooldown < 0 {
		return fmt.Errorf("alert retry settings out of range")
	}
	if a.QueryLimit < 1 {
		return fmt.Errorf("aggregator query limit must be positive")
	}
	return nil
}

func (c *Config) validateNotifier() error {
	if !c.Notifier.WebhookEnabled {
		return nil
	}
	u, err := url.Parse(c.Notifier.WebhookURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("WEBHOOK_URL must be an absolute http(s) URL")
	}
	return nil
}

func (c *Config) validateBackends() error {
	switch c.Audit.Backend {
	case "memory":
		if c.Audit.MemoryCapacity < 1 {
			return fmt.Errorf("AUDIT_MEMORY_CAPACITY must be positive")
		}
	case "duckdb":
		if c.Audit.Path == "" {
			return fmt.Errorf("DUCKDB_PATH is required when AUDIT_BACKEND=duckdb")
		}
	default:
		return fmt.Errorf("unknown audit backend %q", c.Audit.Backend)
	}
	switch c.Feed.Backend {
	case "memory":
	case "nats":
		if c.Feed.Embedded {
			if c.Feed.StoreDir == "" {
				return fmt.Errorf("NATS_STORE_DIR is required when NATS_EMBEDDED=true")
			}
		} else if c.Feed.URL == "" {
			return fmt.Errorf("NATS_URL is required when FEED_BACKEND=nats")
		}
		if strings.ContainsAny(c.Feed.Stream, ". *>") {
			return fmt.Errorf("FEED_STREAM %q must not contain dots, spaces or wildcards", c.Feed.Stream)
		}
	default:
		return fmt.Errorf("unknown feed backend %q", c.Feed.Backend)
	}
	return nil
}
