// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

// Package api is the HTTP surface of Fieldguard: session lifecycle, the
// reveal RPC, masked contact lookup, the protection event fallback, and the
// administrator views of the audit log and suspicious activity.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/fieldguard/internal/auth"
	"github.com/tomtom215/fieldguard/internal/authz"
	"github.com/tomtom215/fieldguard/internal/middleware"
)

// RouterConfig wires the cross-cutting middleware into the router.
type RouterConfig struct {
	Middleware *ChiMiddleware
	Authn      *auth.Middleware
	Authz      *authz.Middleware

	// WebSocket serves /ws after authentication and authorization.
	WebSocket http.Handler
}

// NewRouter builds the chi router.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	mw := cfg.Middleware
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS())

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(mw.RateLimitCustom(RateLimitHealth))
		r.Use(APISecurityHeaders())
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	if cfg.WebSocket != nil {
		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimitCustom(RateLimitWebSocket))
			r.Use(middleware.PrometheusMetrics)
			r.Use(cfg.Authn.Authenticate)
			r.Use(cfg.Authz.AuthorizeRequest)
			r.Method(http.MethodGet, "/ws", cfg.WebSocket)
		})
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)
		r.Use(cfg.Authn.Authenticate)
		r.Use(mw.RateLimit())
		r.Use(cfg.Authz.AuthorizeRequest)

		r.Post("/sessions", h.StartSession)
		r.Delete("/sessions/current", h.EndSession)
		r.Delete("/sessions/{id}", h.RevokeSession)

		r.Post("/reveal", h.Reveal)
		r.Get("/leads/{id}/contact", h.LeadContact)

		r.Get("/protection/state", h.ProtectionState)
		r.Post("/protection/dismiss", h.DismissOverlay)
		r.With(mw.RateLimitCustom(RateLimitEvents)).Post("/protection/events", h.ProtectionEvents)

		r.With(chimiddleware.Compress(5, "application/json")).Get("/audit", h.ListAudit)

		r.Get("/suspicious", h.Suspicious)
		r.Get("/suspicious/incidents", h.SuspiciousIncidents)
		r.Post("/suspicious/refresh", h.RefreshSuspicious)
		r.Post("/suspicious/{user}/resend", h.ResendAlert)
	})

	return r
}
