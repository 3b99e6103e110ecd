// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package websocket

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/fieldguard/internal/auth"
	"github.com/tomtom215/fieldguard/internal/logging"
	"github.com/tomtom215/fieldguard/internal/session"
)

// SessionStarter starts or resumes the session of an identity.
// *session.Manager implements it.
type SessionStarter interface {
	Start(ctx context.Context, id *auth.Identity) (*session.Session, error)
}

// HandlerConfig configures the upgrade endpoint.
type HandlerConfig struct {
	// AllowedOrigins lists accepted Origin values; "*" accepts any. A
	// missing Origin header is always rejected.
	AllowedOrigins []string

	// Subscribe decides whether a connection receives hub broadcasts.
	// Defaults to admins only.
	Subscribe func(id *auth.Identity) bool

	EventRate  rate.Limit
	EventBurst int
}

// Handler upgrades authenticated requests and binds the connection to the
// caller's session.
type Handler struct {
	hub      *Hub
	sessions SessionStarter
	cfg      HandlerConfig
	upgrader websocket.Upgrader
}

// NewHandler creates the upgrade handler. It expects auth.Middleware in
// front of it.
func NewHandler(hub *Hub, sessions SessionStarter, cfg HandlerConfig) *Handler {
	if cfg.Subscribe == nil {
		cfg.Subscribe = func(id *auth.Identity) bool { return id.IsAdmin() }
	}
	h := &Handler{hub: hub, sessions: sessions, cfg: cfg}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", strconv.Quote(logging.SanitizeError(origin))).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		auth.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	sess, err := h.sessions.Start(r.Context(), id)
	switch {
	case errors.Is(err, session.ErrSessionRevoked):
		auth.WriteError(w, http.StatusUnauthorized, "SESSION_REVOKED", "Session has been signed out")
		return
	case err != nil:
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to start session for websocket")
		auth.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start session")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, sess, ClientOptions{
		SessionID:  id.SessionID,
		Subscribed: h.cfg.Subscribe(id),
		EventRate:  h.cfg.EventRate,
		EventBurst: h.cfg.EventBurst,
	})
	select {
	case h.hub.Register <- client:
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}
	client.Start()
}
