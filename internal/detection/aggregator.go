// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/fieldguard/internal/audit"
	"github.com/tomtom215/fieldguard/internal/clock"
	"github.com/tomtom215/fieldguard/internal/logging"
	"github.com/tomtom215/fieldguard/internal/metrics"
	"github.com/tomtom215/fieldguard/internal/retry"
)

// Defaults.
const (
	DefaultWindowMinutes    = 2
	DefaultThreshold        = 3
	DefaultPollInterval     = 30 * time.Second
	DefaultRetryCooldown    = time.Minute
	DefaultResubscribeDelay = 10 * time.Second
	DefaultQueryLimit       = 1000

	maxRecentActions = 10
)

// ErrNotFlagged is returned by Resend for a user absent from the latest pass.
var ErrNotFlagged = errors.New("user not flagged in the current window")

// EntityTypeUser is the audit entity type of alert entries.
const EntityTypeUser = "user"

// Subscriber is the push side of the audit change feed.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan *audit.Entry, error)
}

// Config configures an Aggregator.
type Config struct {
	WindowMinutes    int
	Threshold        int
	PollInterval     time.Duration
	QueryLimit       int
	RetryCooldown    time.Duration
	ResubscribeDelay time.Duration

	// Retry bounds in-pass redelivery of a failed automatic alert.
	Retry retry.Policy

	Clock clock.Clock
}

// Aggregator scans the audit trail for reveal bursts.
type Aggregator struct {
	cfg       Config
	store     audit.Store
	users     UserDirectory
	feed      Subscriber
	notifiers []Notifier

	// refreshMu serializes passes.
	refreshMu sync.Mutex

	mu          sync.RWMutex
	patterns    []SuspiciousPattern
	incidents   map[string]*Incident
	lastAlerts  map[string]SuspiciousPattern
	lastRefresh time.Time
	lastTrigger Trigger
	passes      int
}

// New creates an Aggregator. users and feed may be nil.
func New(cfg Config, store audit.Store, users UserDirectory, feed Subscriber) *Aggregator {
	if cfg.WindowMinutes <= 0 {
		cfg.WindowMinutes = DefaultWindowMinutes
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.QueryLimit <= 0 {
		cfg.QueryLimit = DefaultQueryLimit
	}
	if cfg.RetryCooldown <= 0 {
		cfg.RetryCooldown = DefaultRetryCooldown
	}
	if cfg.ResubscribeDelay <= 0 {
		cfg.ResubscribeDelay = DefaultResubscribeDelay
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry.Attempts = 3
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Aggregator{
		cfg:        cfg,
		store:      store,
		users:      users,
		feed:       feed,
		incidents:  make(map[string]*Incident),
		lastAlerts: make(map[string]SuspiciousPattern),
	}
}

// RegisterNotifier adds a notifier. Call before the first refresh.
func (a *Aggregator) RegisterNotifier(n Notifier) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notifiers = append(a.notifiers, n)
	logging.Info().Str("notifier", n.Name()).Msg("registered notifier")
}

func (a *Aggregator) window() time.Duration {
	return time.Duration(a.cfg.WindowMinutes) * time.Minute
}

// Refresh recomputes the patterns and dispatches due alerts. It is the one
// path shared by the poll ticker, the feed push handler and manual triggers.
// Dispatch failures are logged, never returned.
func (a *Aggregator) Refresh(ctx context.Context, trigger Trigger) ([]SuspiciousPattern, error) {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	start := time.Now()
	now := a.cfg.Clock.Now()

	entries, err := a.store.Query(ctx, audit.Filter{
		ActionPrefix: audit.RevealPrefix,
		Since:        now.Add(-a.window()),
		Limit:        a.cfg.QueryLimit,
	})
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("trigger", string(trigger)).Msg("Failed to query audit trail")
		return nil, fmt.Errorf("query audit trail: %w", err)
	}

	patterns := a.buildPatterns(ctx, entries)
	due := a.reconcile(now, trigger, patterns)

	var wg sync.WaitGroup
	for _, d := range due {
		wg.Add(1)
		go func(d dueAlert) {
			defer wg.Done()
			a.dispatch(ctx, d)
		}(d)
	}
	wg.Wait()

	metrics.RecordAggregatorPass(string(trigger), time.Since(start), len(patterns))
	return clonePatterns(patterns), nil
}

// buildPatterns groups entries by user. Entries arrive newest first.
func (a *Aggregator) buildPatterns(ctx context.Context, entries []audit.Entry) []SuspiciousPattern {
	byUser := make(map[string][]audit.Entry)
	var order []string
	for _, e := range entries {
		if !e.Action.IsReveal() {
			continue
		}
		if _, seen := byUser[e.UserID]; !seen {
			order = append(order, e.UserID)
		}
		byUser[e.UserID] = append(byUser[e.UserID], e)
	}

	var patterns []SuspiciousPattern
	for _, userID := range order {
		list := byUser[userID]
		if len(list) < a.cfg.Threshold {
			continue
		}
		p := SuspiciousPattern{
			UserID:        userID,
			RevealCount:   len(list),
			WindowMinutes: a.cfg.WindowMinutes,
		}
		for i, e := range list {
			if i == maxRecentActions {
				break
			}
			p.RecentActions = append(p.RecentActions, RecentAction{
				Action:   string(e.Action),
				EntityID: e.EntityID,
				At:       e.CreatedAt,
			})
		}
		if a.users != nil {
			info, err := a.users.User(ctx, userID)
			if err != nil {
				logging.Ctx(ctx).Warn().Err(err).
					Str("user_id", logging.SanitizeUserID(userID)).
					Msg("Failed to resolve flagged user")
			} else {
				p.UserName, p.UserEmail = info.Name, info.Email
			}
		}
		patterns = append(patterns, p)
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].RevealCount != patterns[j].RevealCount {
			return patterns[i].RevealCount > patterns[j].RevealCount
		}
		return patterns[i].UserID < patterns[j].UserID
	})
	return patterns
}

type dueAlert struct {
	alert     *Alert
	notifiers []Notifier
}

// reconcile updates incidents from the new patterns and returns the alerts
// due for automatic dispatch.
func (a *Aggregator) reconcile(now time.Time, trigger Trigger, patterns []SuspiciousPattern) []dueAlert {
	a.mu.Lock()
	defer a.mu.Unlock()

	window := a.window()
	flagged := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		flagged[p.UserID] = true
		inc := a.incidents[p.UserID]
		if inc == nil || now.Sub(inc.LastFlaggedAt) >= window {
			inc = &Incident{UserID: p.UserID, AlertID: uuid.NewString(), WindowStart: windowStart(p, now)}
			a.incidents[p.UserID] = inc
		}
		inc.LastFlaggedAt = now
		a.lastAlerts[p.UserID] = p
	}

	for userID, inc := range a.incidents {
		if !flagged[userID] && now.Sub(inc.LastFlaggedAt) >= window {
			delete(a.incidents, userID)
			delete(a.lastAlerts, userID)
		}
	}

	a.patterns = patterns
	a.lastRefresh = now
	a.lastTrigger = trigger
	a.passes++

	var due []dueAlert
	for userID, inc := range a.incidents {
		if inc.Notified() || (inc.NextAttemptAt != nil && now.Before(*inc.NextAttemptAt)) {
			continue
		}
		var pending []Notifier
		for _, n := range a.notifiers {
			if n.Enabled() && !inc.delivered(n.Name()) {
				pending = append(pending, n)
			}
		}
		p := a.lastAlerts[userID]
		due = append(due, dueAlert{
			alert:     newAlert(inc.AlertID, p, now, false),
			notifiers: pending,
		})
	}
	return due
}

func windowStart(p SuspiciousPattern, now time.Time) time.Time {
	if n := len(p.RecentActions); n > 0 {
		return p.RecentActions[n-1].At
	}
	return now
}

func newAlert(id string, p SuspiciousPattern, now time.Time, manual bool) *Alert {
	return &Alert{
		ID:            id,
		UserID:        p.UserID,
		UserName:      p.UserName,
		UserEmail:     p.UserEmail,
		RevealCount:   p.RevealCount,
		WindowMinutes: p.WindowMinutes,
		RecentActions: append([]RecentAction(nil), p.RecentActions...),
		DetectedAt:    now,
		Manual:        manual,
	}
}

// dispatch sends one automatic alert with in-pass retries and records the
// outcome on its incident.
func (a *Aggregator) dispatch(ctx context.Context, d dueAlert) {
	log := logging.Ctx(ctx).With().
		Str("user_id", logging.SanitizeUserID(d.alert.UserID)).
		Str("alert_id", d.alert.ID).
		Logger()

	var (
		dmu       sync.Mutex
		delivered []string
	)
	remaining := d.notifiers
	calls, err := retry.Do(ctx, a.cfg.Retry, func(ctx context.Context) error {
		var (
			errs   []error
			failed []Notifier
		)
		for _, n := range remaining {
			sendErr := n.Send(ctx, d.alert)
			metrics.RecordAlertDispatch(n.Name(), "auto", sendErr)
			if sendErr != nil {
				errs = append(errs, fmt.Errorf("%s: %w", n.Name(), sendErr))
				failed = append(failed, n)
				continue
			}
			dmu.Lock()
			delivered = append(delivered, n.Name())
			dmu.Unlock()
		}
		remaining = failed
		return errors.Join(errs...)
	})

	now := a.cfg.Clock.Now()
	a.mu.Lock()
	inc := a.incidents[d.alert.UserID]
	if inc == nil || inc.AlertID != d.alert.ID {
		a.mu.Unlock()
		return
	}
	inc.Attempts += calls
	inc.DeliveredTo = append(inc.DeliveredTo, delivered...)
	if err != nil {
		next := now.Add(a.cfg.RetryCooldown)
		inc.NextAttemptAt = &next
		inc.LastError = err.Error()
	} else {
		inc.NotifiedAt = &now
		inc.NextAttemptAt = nil
		inc.LastError = ""
	}
	a.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Int("attempts", calls).
			Time("next_attempt_at", now.Add(a.cfg.RetryCooldown)).
			Msg("Failed to dispatch suspicious activity alert")
		return
	}
	if len(d.notifiers) == 0 {
		log.Warn().Msg("Suspicious activity flagged with no enabled notifiers")
	}
	log.Warn().Int("reveal_count", d.alert.RevealCount).Msg("Suspicious activity alert dispatched")
	a.auditAlert(ctx, d.alert)
}

func (a *Aggregator) auditAlert(ctx context.Context, alert *Alert) {
	entry, err := audit.NewEntry(alert.UserID, audit.ActionSuspiciousAlert, EntityTypeUser, alert.UserID, map[string]any{
		"alert_id":     alert.ID,
		"reveal_count": alert.RevealCount,
		"manual":       alert.Manual,
	}, a.cfg.Clock.Now())
	if err == nil {
		err = a.store.Append(ctx, entry)
	}
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to audit suspicious activity alert")
	}
}

// Resend dispatches the current pattern of userID once to every enabled
// notifier. It neither consults nor changes the incident record.
func (a *Aggregator) Resend(ctx context.Context, userID string) (*Alert, error) {
	a.mu.RLock()
	var (
		pattern SuspiciousPattern
		found   bool
	)
	for _, p := range a.patterns {
		if p.UserID == userID {
			pattern, found = p, true
			break
		}
	}
	notifiers := make([]Notifier, 0, len(a.notifiers))
	for _, n := range a.notifiers {
		if n.Enabled() {
			notifiers = append(notifiers, n)
		}
	}
	a.mu.RUnlock()

	if !found {
		return nil, ErrNotFlagged
	}

	alert := newAlert(uuid.NewString(), pattern, a.cfg.Clock.Now(), true)
	var errs []error
	for _, n := range notifiers {
		err := n.Send(ctx, alert)
		metrics.RecordAlertDispatch(n.Name(), "manual", err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("user_id", logging.SanitizeUserID(userID)).Msg("Manual alert resend failed")
		return alert, err
	}
	a.auditAlert(ctx, alert)
	return alert, nil
}

// Patterns returns the patterns of the latest pass.
func (a *Aggregator) Patterns() []SuspiciousPattern {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return clonePatterns(a.patterns)
}

// Incidents returns the open incidents ordered by user ID.
func (a *Aggregator) Incidents() []Incident {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Incident, 0, len(a.incidents))
	for _, inc := range a.incidents {
		out = append(out, inc.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Status describes the latest pass.
type Status struct {
	LastRefresh time.Time `json:"last_refresh"`
	LastTrigger Trigger   `json:"last_trigger"`
	Passes      int       `json:"passes"`
	Flagged     int       `json:"flagged"`
}

// Status returns the latest pass summary.
func (a *Aggregator) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Status{LastRefresh: a.lastRefresh, LastTrigger: a.lastTrigger, Passes: a.passes, Flagged: len(a.patterns)}
}

func clonePatterns(in []SuspiciousPattern) []SuspiciousPattern {
	out := make([]SuspiciousPattern, len(in))
	for i, p := range in {
		p.RecentActions = append([]RecentAction(nil), p.RecentActions...)
		out[i] = p
	}
	return out
}
