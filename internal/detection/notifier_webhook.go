// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package detection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/fieldguard/internal/logging"
	"github.com/tomtom215/fieldguard/internal/metrics"
)

// ErrCircuitOpen is returned while the webhook circuit breaker rejects calls.
var ErrCircuitOpen = errors.New("webhook circuit open")

const webhookBreakerName = "alert-webhook"

// WebhookNotifier posts alerts to a generic webhook endpoint.
type WebhookNotifier struct {
	mu      sync.RWMutex
	url     string
	headers map[string]string
	enabled bool

	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[any]
}

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"` // Custom headers (e.g., auth)
	Enabled bool              `json:"enabled"`
	Timeout time.Duration     `json:"timeout"`

	// RateLimit is the minimum spacing between two requests.
	RateLimit time.Duration `json:"rate_limit"`

	// BreakerFailures consecutive failures open the circuit for
	// BreakerTimeout. Zero disables the breaker.
	BreakerFailures uint32        `json:"breaker_failures"`
	BreakerTimeout  time.Duration `json:"breaker_timeout"`
}

// WebhookPayload is the JSON body sent to the webhook endpoint.
type WebhookPayload struct {
	Alert     *Alert    `json:"alert"`
	EventType string    `json:"event_type"` // suspicious_activity
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // fieldguard
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 500 * time.Millisecond
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	n := &WebhookNotifier{
		url:     cfg.URL,
		headers: headers,
		enabled: cfg.Enabled,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(cfg.RateLimit), 1),
	}
	if cfg.BreakerFailures > 0 {
		n.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        webhookBreakerName,
			MaxRequests: 1,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.Warn().Str("name", name).Str("from", from.String()).Str("to", to.String()).
					Msg("Webhook circuit breaker state changed")
				metrics.RecordBreakerTransition(name, from.String(), to.String(), breakerGauge(to))
			},
		})
	}
	return n
}

func breakerGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Name returns the notifier name.
func (n *WebhookNotifier) Name() string {
	return "webhook"
}

// Enabled returns whether this notifier is enabled.
func (n *WebhookNotifier) Enabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled && n.url != ""
}

// SetEnabled enables or disables the notifier.
func (n *WebhookNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// Send delivers an alert to the webhook endpoint.
func (n *WebhookNotifier) Send(ctx context.Context, alert *Alert) error {
	n.mu.RLock()
	if !n.enabled || n.url == "" {
		n.mu.RUnlock()
		return nil
	}
	url := n.url
	headers := make(map[string]string, len(n.headers))
	for k, v := range n.headers {
		headers[k] = v
	}
	n.mu.RUnlock()

	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webhook rate limit wait: %w", err)
	}

	if n.breaker == nil {
		return n.post(ctx, url, headers, alert)
	}
	_, err := n.breaker.Execute(func() (any, error) {
		return nil, n.post(ctx, url, headers, alert)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	return err
}

func (n *WebhookNotifier) post(ctx context.Context, url string, headers map[string]string, alert *Alert) error {
	body, err := json.Marshal(WebhookPayload{
		Alert:     alert,
		EventType: "suspicious_activity",
		Timestamp: time.Now().UTC(),
		Source:    "fieldguard",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
