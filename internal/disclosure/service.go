// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package disclosure

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/fieldguard/internal/audit"
	"github.com/tomtom215/fieldguard/internal/clock"
	"github.com/tomtom215/fieldguard/internal/logging"
	"github.com/tomtom215/fieldguard/internal/metrics"
)

// Defaults.
const (
	DefaultRevealLimit  = 10
	DefaultRevealWindow = time.Hour
)

// ErrRateLimited matches every *RateLimitError.
var ErrRateLimited = errors.New("reveal rate limit exceeded")

// RateLimitError reports a denied reveal. Callers must not retry it
// automatically.
type RateLimitError struct {
	RetryAfter time.Duration
	ResetAt    time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

// Is makes errors.Is(err, ErrRateLimited) true.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, at least 1.
func (e *RateLimitError) RetryAfterSeconds() int {
	s := int(math.Ceil(e.RetryAfter.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

// RevealRequest identifies one reveal. UserID is the authenticated caller.
type RevealRequest struct {
	UserID   string
	EntityID string
	Kind     FieldKind
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Limit  int
	Window time.Duration
	Clock  clock.Clock
}

// Service is the server boundary of the reveal RPC.
type Service struct {
	dir     Directory
	counter RateCounter
	audit   audit.Appender
	cfg     ServiceConfig
}

// NewService creates a Service. audit may be nil.
func NewService(dir Directory, counter RateCounter, auditor audit.Appender, cfg ServiceConfig) *Service {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultRevealLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultRevealWindow
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Service{dir: dir, counter: counter, audit: auditor, cfg: cfg}
}

// Masked returns the masked contact of an entity.
func (s *Service) Masked(ctx context.Context, entityID string) (*MaskedContact, error) {
	c, err := s.dir.Contact(ctx, entityID)
	if err != nil {
		return nil, err
	}
	m := c.Mask()
	return &m, nil
}

// Reveal returns the unmasked value if the caller is within the rolling
// limit. The counter is consulted before the directory so a burst of reveals
// against unknown IDs still counts.
func (s *Service) Reveal(ctx context.Context, req RevealRequest) (string, error) {
	if !req.Kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, req.Kind)
	}

	res, err := s.counter.Allow(ctx, req.UserID, s.cfg.Limit, s.cfg.Window)
	if err != nil {
		metrics.RecordReveal(string(req.Kind), "error")
		return "", fmt.Errorf("rate counter: %w", err)
	}
	if !res.Allowed {
		now := s.cfg.Clock.Now()
		rl := &RateLimitError{ResetAt: res.ResetAt, RetryAfter: res.ResetAt.Sub(now)}
		metrics.RecordReveal(string(req.Kind), "rate_limited")
		s.writeAudit(ctx, req, audit.ActionRevealRateLimited, map[string]any{
			"field_kind": req.Kind,
			"limit":      s.cfg.Limit,
			"reset_at":   res.ResetAt,
		})
		logging.Ctx(ctx).Warn().
			Str("user_id", logging.SanitizeUserID(req.UserID)).
			Str("field_kind", string(req.Kind)).
			Time("reset_at", res.ResetAt).
			Msg("Reveal rate limit exceeded")
		return "", rl
	}

	contact, err := s.dir.Contact(ctx, req.EntityID)
	if err != nil {
		metrics.RecordReveal(string(req.Kind), "error")
		return "", err
	}
	value, err := contact.Value(req.Kind)
	if err != nil {
		return "", err
	}

	metrics.RecordReveal(string(req.Kind), "revealed")
	s.writeAudit(ctx, req, audit.RevealAction(string(req.Kind)), map[string]any{
		"field_kind": req.Kind,
		"remaining":  res.Remaining,
	})
	return value, nil
}

func (s *Service) writeAudit(ctx context.Context, req RevealRequest, action audit.Action, details map[string]any) {
	if s.audit == nil {
		return
	}
	entry, err := audit.NewEntry(req.UserID, action, EntityTypeLead, req.EntityID, details, s.cfg.Clock.Now())
	if err == nil {
		err = s.audit.Append(ctx, entry)
	}
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).
			Str("action", string(action)).
			Str("entity_id", req.EntityID).
			Msg("Failed to write reveal audit entry")
	}
}
