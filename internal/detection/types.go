// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

// Package detection flags agents who reveal contact data abnormally fast.
//
// Architecture:
//
//	audit trail --(poll | feed push | manual)--> Aggregator.Refresh
//	                                                 |
//	                                      SuspiciousPattern per user
//	                                                 |
//	                                        Incident (dedup, retry)
//	                                                 |
//	                                   Webhook / WebSocket notifiers
//
// Every refresh recomputes the patterns from scratch over the rolling window.
// Incidents persist across passes so each suspicious episode produces one
// automatic alert; an episode ends once a full window passes without the
// user being flagged.
package detection

import (
	"context"
	"time"
)

// Trigger names what started a refresh pass.
type Trigger string

const (
	TriggerStartup Trigger = "startup"
	TriggerPoll    Trigger = "poll"
	TriggerPush    Trigger = "push"
	TriggerManual  Trigger = "manual"
)

// RecentAction is one reveal inside a pattern.
type RecentAction struct {
	Action   string    `json:"action"`
	EntityID string    `json:"entity_id"`
	At       time.Time `json:"at"`
}

// SuspiciousPattern is a flagged user in the current pass. It is derived,
// never stored, and superseded by the next pass.
type SuspiciousPattern struct {
	UserID        string         `json:"user_id"`
	UserName      string         `json:"user_name"`
	UserEmail     string         `json:"user_email"`
	RevealCount   int            `json:"reveal_count"`
	WindowMinutes int            `json:"window_minutes"`
	RecentActions []RecentAction `json:"recent_actions"`
}

// Incident is the dedup record of one suspicious episode of one user.
type Incident struct {
	UserID string `json:"user_id"`

	// AlertID is stable across retries so receivers can deduplicate.
	AlertID       string     `json:"alert_id"`
	WindowStart   time.Time  `json:"window_start"`
	NotifiedAt    *time.Time `json:"notified_at,omitempty"`
	LastFlaggedAt time.Time  `json:"last_flagged_at"`
	Attempts      int        `json:"attempts"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`

	// DeliveredTo lists notifiers that already accepted the alert, so a
	// retry only goes to the ones that failed.
	DeliveredTo []string `json:"delivered_to,omitempty"`
}

// Notified reports whether every notifier accepted the alert.
func (i *Incident) Notified() bool {
	return i.NotifiedAt != nil
}

func (i *Incident) delivered(name string) bool {
	for _, d := range i.DeliveredTo {
		if d == name {
			return true
		}
	}
	return false
}

func (i *Incident) clone() Incident {
	c := *i
	if i.NotifiedAt != nil {
		t := *i.NotifiedAt
		c.NotifiedAt = &t
	}
	if i.NextAttemptAt != nil {
		t := *i.NextAttemptAt
		c.NextAttemptAt = &t
	}
	c.DeliveredTo = append([]string(nil), i.DeliveredTo...)
	return c
}

// Alert is the payload handed to notifiers.
type Alert struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	UserName      string         `json:"user_name"`
	UserEmail     string         `json:"user_email"`
	RevealCount   int            `json:"reveal_count"`
	WindowMinutes int            `json:"window_minutes"`
	RecentActions []RecentAction `json:"recent_actions"`
	DetectedAt    time.Time      `json:"detected_at"`
	Manual        bool           `json:"manual"`
}

// Notifier delivers alerts to an external channel.
type Notifier interface {
	// Send delivers an alert to the notification channel.
	Send(ctx context.Context, alert *Alert) error

	// Name returns the notifier name (e.g., "webhook", "websocket").
	Name() string

	// Enabled returns whether this notifier is enabled.
	Enabled() bool
}

// AlertBroadcaster broadcasts messages to connected WebSocket clients.
type AlertBroadcaster interface {
	BroadcastJSON(messageType string, data interface{})
}

// UserInfo is the display identity of a user.
type UserInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UserDirectory resolves user IDs for alerts.
type UserDirectory interface {
	User(ctx context.Context, userID string) (UserInfo, error)
}

// UserDirectoryFunc adapts a function to UserDirectory.
type UserDirectoryFunc func(ctx context.Context, userID string) (UserInfo, error)

// User implements UserDirectory.
func (f UserDirectoryFunc) User(ctx context.Context, userID string) (UserInfo, error) {
	return f(ctx, userID)
}
