// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package services

import (
	"context"
)

// Runner is a component whose loop already follows the suture contract:
// it blocks until ctx is canceled and returns an error to request a restart.
//
// Satisfied by *websocket.Hub, *websocket.AuditRelay and
// *detection.Aggregator.
type Runner interface {
	RunWithContext(ctx context.Context) error
}

// RunnerService names a Runner for the supervisor logs.
type RunnerService struct {
	runner Runner
	name   string
}

// NewRunnerService wraps runner under name.
func NewRunnerService(name string, runner Runner) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

// NewWebSocketHubService wraps the WebSocket hub.
func NewWebSocketHubService(hub Runner) *RunnerService {
	return NewRunnerService("websocket-hub", hub)
}

// NewAuditRelayService wraps the audit feed to WebSocket relay. The relay
// returns when its feed subscription ends, and suture resubscribes it.
func NewAuditRelayService(relay Runner) *RunnerService {
	return NewRunnerService("audit-relay", relay)
}

// NewAggregatorService wraps the suspicious-activity aggregator.
func NewAggregatorService(aggregator Runner) *RunnerService {
	return NewRunnerService("suspicious-aggregator", aggregator)
}

// Serve implements suture.Service.
func (r *RunnerService) Serve(ctx context.Context) error {
	return r.runner.RunWithContext(ctx)
}

func (r *RunnerService) String() string {
	return r.name
}
