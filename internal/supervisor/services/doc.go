// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

// Package services adapts Fieldguard components to suture.Service.
//
// Each wrapper depends on a small interface rather than the concrete type,
// so this package imports none of the packages it supervises:
//
//   - HTTPServerService: *http.Server (ListenAndServe / Shutdown)
//   - RunnerService: anything with RunWithContext (websocket hub, audit
//     relay, detection aggregator)
//   - PeriodicService: a task run on an interval (revocation store GC)
//
// Every wrapper implements fmt.Stringer; suture uses the name in its logs.
package services
