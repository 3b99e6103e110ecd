// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

/*
Package supervisor runs Fieldguard's long-lived services under suture v4.

The tree isolates failures by layer:

	RootSupervisor ("fieldguard")
	├── StorageSupervisor ("storage-layer")
	│   └── RevocationGCService (Badger revocation store only)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocketHubService
	│   └── AuditRelayService
	├── DetectionSupervisor ("detection-layer")
	│   └── AggregatorService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A crashed audit relay is restarted with backoff while the hub keeps its
connections, and a failing aggregator never takes the HTTP server down.

Supervisor events (start, failure, backoff, restart) are logged through
sutureslog using the zerolog-backed slog logger from the logging package.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{})
	if err != nil {
		return err
	}
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddDetectionService(services.NewAggregatorService(aggregator))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	errCh := tree.ServeBackground(ctx)
	<-ctx.Done()
	<-errCh

The service wrappers live in the services subpackage so that the tree does not
import the packages it supervises.
*/
package supervisor
