// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package disclosure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/fieldguard/internal/logging"
)

// RevealPath is the reveal RPC route.
const RevealPath = "/api/v1/reveal"

// CodeRateLimited is the API error code of a denied reveal.
const CodeRateLimited = "RATE_LIMITED"

const (
	clientBreakerName     = "reveal-client"
	clientBreakerFailures = 5
	clientBreakerTimeout  = 30 * time.Second
)

// ErrThrottled is returned for a 429 that is not a reveal rate-limit
// denial, such as the API-wide request throttle. It may be retried.
var ErrThrottled = errors.New("reveal request throttled")

// ErrUnavailable is returned while the client circuit breaker is open.
var ErrUnavailable = errors.New("reveal service unavailable")

// StatusError is a non-2xx reveal response other than a rate-limit denial.
type StatusError struct {
	StatusCode int
	Code       string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("reveal failed: %s (status %d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("reveal failed: status %d", e.StatusCode)
}

// Is makes errors.Is(err, ErrThrottled) true for a generic 429.
func (e *StatusError) Is(target error) bool {
	return target == ErrThrottled && e.StatusCode == http.StatusTooManyRequests
}

// RevealBody is the reveal request payload.
type RevealBody struct {
	EntityID  string    `json:"entity_id" validate:"required,max=128,entity_id"`
	FieldKind FieldKind `json:"field_kind" validate:"required,oneof=email phone"`
}

// RevealResult is the data of a successful reveal response.
type RevealResult struct {
	Value string `json:"value"`
}

// envelope mirrors the API response envelope.
type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  *struct {
		Code              string     `json:"code"`
		Message           string     `json:"message"`
		RetryAfterSeconds int        `json:"retry_after_seconds,omitempty"`
		ResetAt           *time.Time `json:"reset_at,omitempty"`
	} `json:"error,omitempty"`
}

// Client is a Revealer that calls the reveal RPC over HTTP with a bearer
// token. It never retries. Transport failures and 5xx responses count
// towards a circuit breaker; denials and client errors do not.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[string]
	now     func() time.Time
}

// NewClient creates a client. httpClient may be nil.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
		breaker: gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:        clientBreakerName,
			MaxRequests: 1,
			Timeout:     clientBreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= clientBreakerFailures
			},
			IsSuccessful: breakerSuccess,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.Warn().Str("name", name).Str("from", from.String()).Str("to", to.String()).
					Msg("Reveal client circuit breaker state changed")
			},
		}),
		now: time.Now,
	}
}

func breakerSuccess(err error) bool {
	if err == nil || errors.Is(err, ErrRateLimited) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode < http.StatusInternalServerError
}

// Reveal implements Revealer. A 429 carrying CodeRateLimited becomes
// *RateLimitError. Any other 429 matches ErrThrottled, and every other
// failure is a generic error.
func (c *Client) Reveal(ctx context.Context, entityID string, kind FieldKind) (string, error) {
	value, err := c.breaker.Execute(func() (string, error) {
		return c.reveal(ctx, entityID, kind)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return value, err
}

func (c *Client) reveal(ctx context.Context, entityID string, kind FieldKind) (string, error) {
	body, err := json.Marshal(RevealBody{EntityID: entityID, FieldKind: kind})
	if err != nil {
		return "", fmt.Errorf("failed to encode reveal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+RevealPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create reveal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("reveal request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("failed to read reveal response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests && decodeErr == nil &&
		env.Error != nil && env.Error.Code == CodeRateLimited:
		return "", c.rateLimitError(resp, &env)
	case resp.StatusCode != http.StatusOK:
		se := &StatusError{StatusCode: resp.StatusCode}
		if decodeErr == nil && env.Error != nil {
			se.Code = env.Error.Code
		}
		return "", se
	case decodeErr != nil:
		return "", fmt.Errorf("failed to decode reveal response: %w", decodeErr)
	}

	var result RevealResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return "", fmt.Errorf("failed to decode reveal result: %w", err)
	}
	return result.Value, nil
}

func (c *Client) rateLimitError(resp *http.Response, env *envelope) *RateLimitError {
	now := c.now()
	rl := &RateLimitError{}
	if env.Error != nil {
		if env.Error.ResetAt != nil {
			rl.ResetAt = *env.Error.ResetAt
		}
		if env.Error.RetryAfterSeconds > 0 {
			rl.RetryAfter = time.Duration(env.Error.RetryAfterSeconds) * time.Second
		}
	}
	if rl.RetryAfter == 0 {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			rl.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	if rl.ResetAt.IsZero() {
		rl.ResetAt = now.Add(rl.RetryAfter)
	}
	if rl.RetryAfter == 0 {
		rl.RetryAfter = rl.ResetAt.Sub(now)
	}
	return rl
}
