// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package authz

import (
	"errors"
	"net/http"

	"github.com/tomtom215/fieldguard/internal/auth"
	"github.com/tomtom215/fieldguard/internal/logging"
)

// Middleware enforces the policy on authenticated requests.
type Middleware struct {
	enforcer *Enforcer
}

// NewMiddleware creates authorization middleware.
func NewMiddleware(enforcer *Enforcer) *Middleware {
	return &Middleware{enforcer: enforcer}
}

// AuthorizeRequest checks the request path against the policy with an
// action derived from the method. It must run after auth.Middleware.
func (m *Middleware) AuthorizeRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := auth.IdentityFromContext(r.Context())
		if id == nil {
			auth.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			return
		}

		err := m.enforcer.Check(id, r.URL.Path, methodToAction(r.Method))
		switch {
		case err == nil:
			next.ServeHTTP(w, r)
		case errors.Is(err, ErrInactive):
			auth.WriteError(w, http.StatusForbidden, "ACCOUNT_INACTIVE", "Account is inactive")
		case errors.Is(err, ErrForbidden):
			auth.WriteError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
		default:
			logging.Ctx(r.Context()).Error().Err(err).Msg("Authorization error")
			auth.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Authorization failed")
		}
	})
}

func methodToAction(method string) string {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return "write"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
