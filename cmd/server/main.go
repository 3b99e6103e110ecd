// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/fieldguard/internal/api"
	"github.com/tomtom215/fieldguard/internal/auth"
	"github.com/tomtom215/fieldguard/internal/authz"
	"github.com/tomtom215/fieldguard/internal/config"
	"github.com/tomtom215/fieldguard/internal/logging"
	"github.com/tomtom215/fieldguard/internal/session"
	"github.com/tomtom215/fieldguard/internal/signals"
	"github.com/tomtom215/fieldguard/internal/supervisor"
	"github.com/tomtom215/fieldguard/internal/supervisor/services"
	ws "github.com/tomtom215/fieldguard/internal/websocket"
)

//nolint:gocyclo // sequential wiring
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Msg("Starting Fieldguard with supervisor tree")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := initStorage(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer store.Close()

	reveals, counterCheck, closeCounter, err := initDisclosure(ctx, cfg, store)
	if err != nil {
		store.Close()
		logging.Fatal().Err(err).Msg("Failed to initialize disclosure service")
	}
	defer closeCounter()
	readiness := store.readiness
	if counterCheck != nil {
		readiness = append(readiness, *counterCheck)
	}

	enforcer, err := authz.NewEnforcer(authz.Config{
		ModelPath:      cfg.Security.CasbinModelPath,
		PolicyPath:     cfg.Security.CasbinPolicyPath,
		ReloadInterval: cfg.Security.CasbinReloadInterval,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authorization")
	}

	tokens, err := auth.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL, nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize token manager")
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	var revocations session.RevocationStore
	if cfg.Sessions.RevocationPath != "" {
		badgerStore, err := session.OpenBadgerRevocationStore(cfg.Sessions.RevocationPath, nil)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open revocation store")
		}
		revocations = badgerStore
		tree.AddStorageService(services.NewRevocationGCService(badgerStore, cfg.Sessions.RevocationGCInterval))
		logging.Info().Str("path", cfg.Sessions.RevocationPath).Msg("Session revocations persisted in Badger")
	} else {
		logging.Warn().Msg("Session revocations kept in memory; forced sign-outs are forgotten on restart")
	}

	sessions := session.NewManager(session.Config{
		Threshold:    cfg.Protection.Threshold,
		ResetWindow:  cfg.Protection.ResetWindow,
		SignOutDelay: cfg.Protection.SignOutDelay,
		Focus: signals.FocusConfig{
			Grace:       cfg.Protection.FocusGrace,
			Poll:        cfg.Protection.DevToolsPoll,
			ThresholdPx: cfg.Protection.DevToolsThresholdPx,
		},
		ScreenshotDebounce: cfg.Protection.ScreenshotDebounce,
		AutoHide:           cfg.Disclosure.AutoHide,
		Audit:              store.audit,
		Reveals:            reveals,
		Exempt:             enforcer,
		Revocations:        revocations,
	})
	defer func() {
		if err := sessions.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing session registry")
		}
	}()

	hub := ws.NewHub()
	aggregator := initAggregator(cfg, store, hub)

	wsHandler := ws.NewHandler(hub, sessions, ws.HandlerConfig{
		AllowedOrigins: cfg.Security.CORSOrigins,
		Subscribe: func(id *auth.Identity) bool {
			ok, err := enforcer.Allowed(id.Role, "/api/v1/suspicious", "read")
			return err == nil && ok
		},
	})

	handler := api.NewHandler(api.Deps{
		Sessions:   sessions,
		Reveals:    reveals,
		Audit:      store.audit,
		Aggregator: aggregator,
		Readiness:  readiness,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		Middleware: api.NewChiMiddleware(&api.ChiMiddlewareConfig{
			CORSAllowedOrigins: cfg.Security.CORSOrigins,
			RateLimitRequests:  cfg.Security.RateLimitReqs,
			RateLimitWindow:    cfg.Security.RateLimitWindow,
			RateLimitDisabled:  cfg.Security.RateLimitDisable,
		}),
		Authn:     auth.NewMiddleware(tokens, sessions),
		Authz:     authz.NewMiddleware(enforcer),
		WebSocket: wsHandler,
	})
	if cfg.Security.RateLimitDisable {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddMessagingService(services.NewAuditRelayService(ws.NewAuditRelay(hub, store.feed)))
	if cfg.Aggregator.Enabled {
		tree.AddDetectionService(services.NewAggregatorService(aggregator))
	} else {
		logging.Info().Msg("Suspicious-activity aggregator disabled (AGGREGATOR_ENABLED=false); manual refresh only")
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// ServeBackground delivers exactly one result and never closes the channel.
	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
		serveErr = <-errCh
	case serveErr = <-errCh:
		cancel()
	}
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		logging.Error().Err(serveErr).Msg("Supervisor tree error")
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}
	logging.Info().Msg("Fieldguard stopped gracefully")
}
