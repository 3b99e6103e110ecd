// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldguard/internal/logging"
)

type contextKey string

const identityKey contextKey = "identity"

// RevocationChecker reports sessions ended before their token expired.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// ContextWithIdentity stores id in ctx.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	ctx = logging.ContextWithSessionID(ctx, id.SessionID)
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the verified caller, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// Middleware verifies the bearer token of every request. Browsers cannot set
// headers on WebSocket upgrades, so the token may also come from the
// "token" query parameter.
type Middleware struct {
	tokens  *TokenManager
	revoked RevocationChecker
}

// NewMiddleware creates the identity middleware. revoked may be nil.
func NewMiddleware(tokens *TokenManager, revoked RevocationChecker) *Middleware {
	return &Middleware{tokens: tokens, revoked: revoked}
}

// Authenticate rejects requests without a valid, unrevoked token.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := tokenFromRequest(r)
		if raw == "" {
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			return
		}

		claims, err := m.tokens.ValidateToken(raw)
		if err != nil {
			logging.Ctx(r.Context()).Debug().Err(err).Msg("Rejected token")
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
			return
		}

		if m.revoked != nil {
			revoked, err := m.revoked.IsRevoked(r.Context(), claims.ID)
			if err != nil {
				logging.Ctx(r.Context()).Error().Err(err).Msg("Revocation lookup failed")
				WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Session check failed")
				return
			}
			if revoked {
				WriteError(w, http.StatusUnauthorized, "SESSION_REVOKED", "Session has been signed out")
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), claims.Identity())))
	})
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

type errorBody struct {
	Status string `json:"status"`
	Error  struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Metadata struct {
		Timestamp time.Time `json:"timestamp"`
	} `json:"metadata"`
}

// WriteError writes the standard error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Status = "error"
	body.Error.Code = code
	body.Error.Message = message
	body.Metadata.Timestamp = time.Now().UTC()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
