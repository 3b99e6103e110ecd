// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package logging

import "strings"

// SanitizeUserID keeps the first 8 characters of a user ID.
func SanitizeUserID(id string) string {
	return truncateWithMarker(id, 8)
}

// SanitizeSessionID keeps the first 8 characters of a session ID.
func SanitizeSessionID(id string) string {
	return truncateWithMarker(id, 8)
}

// SanitizeEmail keeps the first character of the local part and the domain:
// "jane.doe@example.com" becomes "j***@example.com".
func SanitizeEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return "[redacted]"
	}
	return email[:1] + "***" + email[at:]
}

// SanitizeError bounds the length of error text.
func SanitizeError(msg string) string {
	return truncateWithMarker(msg, 200)
}

func truncateWithMarker(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
