// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

// Package metrics holds the Prometheus instruments for Fieldguard. Callers use
// the Record helpers rather than touching the vectors directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Protection
	SignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldguard_signals_total",
			Help: "Security signals emitted by the detectors",
		},
		[]string{"kind"},
	)

	ViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldguard_violations_total",
			Help: "Hostile signals counted by violation ledgers, by resulting state",
		},
		[]string{"state"},
	)

	ForcedSignOuts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldguard_forced_sign_outs_total",
			Help: "Sessions terminated by the violation ledger",
		},
	)

	ProtectedSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldguard_protected_sessions",
			Help: "Sessions with an enabled protection session",
		},
	)

	// Disclosure
	RevealsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldguard_reveals_total",
			Help: "Reveal requests by field kind and outcome",
		},
		[]string{"kind", "outcome"}, // revealed, rate_limited, error
	)

	RateCounterDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldguard_rate_counter_duration_seconds",
			Help:    "Latency of the reveal rate counter check",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		},
		[]string{"backend"},
	)

	ActiveGrants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldguard_active_reveal_grants",
			Help: "Reveal grants currently showing an unmasked value",
		},
	)

	// Audit
	AuditWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldguard_audit_writes_total",
			Help: "Audit entries appended, by action and result",
		},
		[]string{"action", "result"},
	)

	// Aggregator
	AggregatorPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldguard_aggregator_passes_total",
			Help: "Suspicious-activity refresh passes by trigger",
		},
		[]string{"trigger"},
	)

	AggregatorPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fieldguard_aggregator_pass_duration_seconds",
			Help:    "Duration of suspicious-activity refresh passes",
			Buckets: prometheus.DefBuckets,
		},
	)

	FlaggedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldguard_flagged_users",
			Help: "Users flagged by the latest refresh pass",
		},
	)

	AlertDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldguard_alert_dispatches_total",
			Help: "Suspicious-activity alert sends by notifier and result",
		},
		[]string{"notifier", "mode", "result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fieldguard_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldguard_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Transport
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldguard_websocket_connections",
			Help: "Connected websocket clients",
		},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldguard_api_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldguard_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordSignal counts a detector signal.
func RecordSignal(kind string) {
	SignalsTotal.WithLabelValues(kind).Inc()
}

// RecordViolation counts a ledger increment.
func RecordViolation(state string) {
	ViolationsTotal.WithLabelValues(state).Inc()
}

// RecordReveal counts a reveal outcome.
func RecordReveal(kind, outcome string) {
	RevealsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordRateCounter observes one counter round trip.
func RecordRateCounter(backend string, d time.Duration) {
	RateCounterDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// RecordAuditWrite counts an audit append.
func RecordAuditWrite(action string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	AuditWrites.WithLabelValues(action, result).Inc()
}

// RecordAggregatorPass records a refresh pass and its flagged user count.
func RecordAggregatorPass(trigger string, d time.Duration, flagged int) {
	AggregatorPasses.WithLabelValues(trigger).Inc()
	AggregatorPassDuration.Observe(d.Seconds())
	FlaggedUsers.Set(float64(flagged))
}

// RecordAlertDispatch counts one notifier send. mode is auto or manual.
func RecordAlertDispatch(notifier, mode string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	AlertDispatches.WithLabelValues(notifier, mode, result).Inc()
}

// RecordBreakerTransition records a circuit breaker state change. state is
// 0 for closed, 1 for half-open and 2 for open.
func RecordBreakerTransition(name, from, to string, state float64) {
	CircuitBreakerState.WithLabelValues(name).Set(state)
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}

// RecordAPIRequest records an HTTP request.
func RecordAPIRequest(method, route, status string, d time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
