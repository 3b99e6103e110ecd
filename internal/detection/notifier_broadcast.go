// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package detection

import "context"

// MessageTypeSuspiciousActivity is the WebSocket message type of alerts.
const MessageTypeSuspiciousActivity = "suspicious_activity"

// BroadcastNotifier pushes alerts to connected dashboard clients.
type BroadcastNotifier struct {
	broadcaster AlertBroadcaster
	enabled     bool
}

// NewBroadcastNotifier creates a notifier over b.
func NewBroadcastNotifier(b AlertBroadcaster, enabled bool) *BroadcastNotifier {
	return &BroadcastNotifier{broadcaster: b, enabled: enabled}
}

// Name returns the notifier name.
func (n *BroadcastNotifier) Name() string {
	return "websocket"
}

// Enabled returns whether this notifier is enabled.
func (n *BroadcastNotifier) Enabled() bool {
	return n.enabled && n.broadcaster != nil
}

// Send broadcasts the alert. Delivery to individual clients is best effort.
func (n *BroadcastNotifier) Send(_ context.Context, alert *Alert) error {
	if !n.Enabled() {
		return nil
	}
	n.broadcaster.BroadcastJSON(MessageTypeSuspiciousActivity, alert)
	return nil
}
