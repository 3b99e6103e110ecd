// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

// Package authz decides what a verified identity may do. Decisions come from
// a Casbin RBAC model; the embedded model and policy are used unless file
// paths are configured.
//
// Besides routes, the policy answers whether a role is exempt from content
// protection: roles allowed ("protection", "exempt") never get a Protection
// Session.
package authz

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/tomtom215/fieldguard/internal/auth"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Errors returned by Check.
var (
	ErrInactive  = errors.New("account is inactive")
	ErrForbidden = errors.New("insufficient permissions")
)

const (
	objProtection = "protection"
	actExempt     = "exempt"
)

// Config selects model and policy sources.
type Config struct {
	// ModelPath and PolicyPath override the embedded files when they exist.
	ModelPath  string
	PolicyPath string

	// ReloadInterval re-reads a file policy periodically. Zero disables it.
	ReloadInterval time.Duration
}

// Enforcer wraps a Casbin SyncedEnforcer.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads the model and policy.
func NewEnforcer(cfg Config) (*Enforcer, error) {
	var (
		m   model.Model
		err error
	)
	if cfg.ModelPath != "" && fileExists(cfg.ModelPath) {
		m, err = model.NewModelFromFile(cfg.ModelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if cfg.PolicyPath != "" && fileExists(cfg.PolicyPath) {
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
		if err == nil && cfg.ReloadInterval > 0 {
			enforcer.StartAutoLoadPolicy(cfg.ReloadInterval)
		}
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	return &Enforcer{enforcer: enforcer}, nil
}

func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch rule := parts[1:]; parts[0] {
		case "p":
			if len(rule) == 3 {
				if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
					return fmt.Errorf("failed to add policy %v: %w", rule, err)
				}
			}
		case "g":
			if len(rule) == 2 {
				if _, err := enforcer.AddGroupingPolicy(rule[0], rule[1]); err != nil {
					return fmt.Errorf("failed to add grouping policy %v: %w", rule, err)
				}
			}
		}
	}
	return nil
}

// Allowed reports whether role may perform act on obj.
func (e *Enforcer) Allowed(role, obj, act string) (bool, error) {
	if role == "" {
		return false, nil
	}
	ok, err := e.enforcer.Enforce(role, obj, act)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	return ok, nil
}

// IsExempt reports whether role skips content protection. Evaluation
// errors count as not exempt.
func (e *Enforcer) IsExempt(role string) bool {
	ok, err := e.Allowed(role, objProtection, actExempt)
	return err == nil && ok
}

// Check combines the active flag with the role decision.
func (e *Enforcer) Check(id *auth.Identity, obj, act string) error {
	if id == nil || !id.Active {
		return ErrInactive
	}
	ok, err := e.Allowed(id.Role, obj, act)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
