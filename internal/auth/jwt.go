// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

// Package auth is the identity boundary. Users are authenticated by the CRM;
// Fieldguard only verifies the HS256 tokens it is handed and carries the
// resulting Identity through request contexts.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tomtom215/fieldguard/internal/clock"
)

// Roles known to the default policy.
const (
	RoleAdmin = "admin"
	RoleAgent = "agent"
)

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 32

// ErrInvalidToken wraps every token validation failure.
var ErrInvalidToken = errors.New("invalid token")

// Claims represents JWT claims. The subject is the user ID and the token ID
// doubles as the session ID.
type Claims struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
	jwt.RegisteredClaims
}

// Identity is the verified caller.
type Identity struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Active    bool   `json:"active"`
	SessionID string `json:"session_id"`

	ExpiresAt time.Time `json:"expires_at"`
}

// IsAdmin reports whether the caller holds the administrator role.
func (i *Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Identity converts verified claims.
func (c *Claims) Identity() *Identity {
	id := &Identity{
		UserID:    c.Subject,
		Name:      c.Name,
		Email:     c.Email,
		Role:      c.Role,
		Active:    c.Active,
		SessionID: c.ID,
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id
}

// TokenManager signs and verifies session tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewTokenManager creates a token manager. The secret must be at least
// MinSecretLength bytes.
func NewTokenManager(secret string, ttl time.Duration, clk clock.Clock) (*TokenManager, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("JWT secret must be at least %d characters", MinSecretLength)
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, clock: clk}, nil
}

// GenerateToken signs a token for id. A new session ID is assigned when
// id.SessionID is empty; the token expires after the manager TTL.
func (m *TokenManager) GenerateToken(id Identity) (string, *Claims, error) {
	now := m.clock.Now()
	if id.SessionID == "" {
		id.SessionID = uuid.NewString()
	}
	claims := &Claims{
		Name:   id.Name,
		Email:  id.Email,
		Role:   id.Role,
		Active: id.Active,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			ID:        id.SessionID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

// ValidateToken verifies signature, algorithm and time claims.
func (m *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.clock.Now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing subject or session id", ErrInvalidToken)
	}
	return claims, nil
}
