// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package disclosure

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/fieldguard/internal/clock"
	"github.com/tomtom215/fieldguard/internal/metrics"
	"github.com/tomtom215/fieldguard/internal/signals"
)

// DefaultAutoHide is how long a revealed value stays visible.
const DefaultAutoHide = 60 * time.Second

const countdownTick = time.Second

// Field errors.
var (
	ErrFieldClosed     = errors.New("field closed")
	ErrRevealInFlight  = errors.New("reveal already in flight")
	ErrAlreadyRevealed = errors.New("field already revealed")
)

// Revealer performs the reveal RPC for the current identity.
type Revealer interface {
	Reveal(ctx context.Context, entityID string, kind FieldKind) (string, error)
}

// ServiceRevealer calls a Service in-process on behalf of UserID.
type ServiceRevealer struct {
	Service *Service
	UserID  string
}

// Reveal implements Revealer.
func (r ServiceRevealer) Reveal(ctx context.Context, entityID string, kind FieldKind) (string, error) {
	return r.Service.Reveal(ctx, RevealRequest{UserID: r.UserID, EntityID: entityID, Kind: kind})
}

// RevealGrant is a time-boxed disclosure of one value. It lives only in
// memory and dies with its Field.
type RevealGrant struct {
	ID        string    `json:"id"`
	FieldID   string    `json:"field_id"`
	EntityID  string    `json:"entity_id"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// View is the renderable state of a Field.
type View struct {
	FieldID  string    `json:"field_id"`
	EntityID string    `json:"entity_id"`
	Kind     FieldKind `json:"kind"`

	// Display is the masked value, or the revealed value while a grant lives.
	Display     string `json:"display"`
	Revealed    bool   `json:"revealed"`
	Loading     bool   `json:"loading"`
	SecondsLeft int    `json:"seconds_left,omitempty"`

	// Exhausted marks the control after a rate-limit denial until ResetAt.
	Exhausted      bool       `json:"exhausted"`
	ExhaustedUntil *time.Time `json:"exhausted_until,omitempty"`

	Error string `json:"error,omitempty"`
}

// FieldConfig configures a Field.
type FieldConfig struct {
	FieldID  string
	EntityID string
	Kind     FieldKind
	Masked   string
	AutoHide time.Duration

	Clock    clock.Clock
	Revealer Revealer

	// OnChange receives every new View outside the field's lock.
	OnChange func(View)
}

// Field is one masked value on screen. It owns its grant and every timer
// tied to it; Close releases all of them.
type Field struct {
	cfg FieldConfig

	mu         sync.Mutex
	grant      *RevealGrant
	grantGen   uint64
	hideTimer  *clock.Timer
	tickTimer  *clock.Timer
	loading    bool
	reqGen     uint64
	exhausted  time.Time
	exhaustGen uint64
	exhaustTmr *clock.Timer
	lastErr    string
	closed     bool
}

// NewField creates a masked field.
func NewField(cfg FieldConfig) *Field {
	if cfg.AutoHide <= 0 {
		cfg.AutoHide = DefaultAutoHide
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.FieldID == "" {
		cfg.FieldID = cfg.EntityID + ":" + string(cfg.Kind)
	}
	return &Field{cfg: cfg}
}

// ID returns the field ID.
func (f *Field) ID() string {
	return f.cfg.FieldID
}

// Reveal asks the server for the value. Every call round-trips; the field
// never enforces the limit locally. A rate-limit denial returns a
// *RateLimitError and creates no grant. Results that arrive after Close are
// discarded and reported as ErrFieldClosed.
func (f *Field) Reveal(ctx context.Context) error {
	f.mu.Lock()
	switch {
	case f.closed:
		f.mu.Unlock()
		return ErrFieldClosed
	case f.loading:
		f.mu.Unlock()
		return ErrRevealInFlight
	case f.grant != nil:
		f.mu.Unlock()
		return ErrAlreadyRevealed
	}
	f.loading = true
	f.lastErr = ""
	f.reqGen++
	gen := f.reqGen
	view := f.viewLocked()
	f.mu.Unlock()
	f.emit(view)

	value, err := f.cfg.Revealer.Reveal(ctx, f.cfg.EntityID, f.cfg.Kind)

	f.mu.Lock()
	if f.closed || gen != f.reqGen {
		f.mu.Unlock()
		return ErrFieldClosed
	}
	f.loading = false

	if err != nil {
		var rl *RateLimitError
		if errors.As(err, &rl) {
			f.markExhaustedLocked(rl.ResetAt)
		}
		f.lastErr = err.Error()
		view = f.viewLocked()
		f.mu.Unlock()
		f.emit(view)
		return err
	}

	f.clearExhaustedLocked()
	now := f.cfg.Clock.Now()
	f.grantGen++
	ggen := f.grantGen
	f.grant = &RevealGrant{
		ID:        uuid.NewString(),
		FieldID:   f.cfg.FieldID,
		EntityID:  f.cfg.EntityID,
		Value:     value,
		ExpiresAt: now.Add(f.cfg.AutoHide),
	}
	f.hideTimer = f.cfg.Clock.AfterFunc(f.cfg.AutoHide, func() { f.expire(ggen) })
	f.armTickLocked(ggen)
	metrics.ActiveGrants.Inc()
	view = f.viewLocked()
	f.mu.Unlock()
	f.emit(view)
	return nil
}

// armTickLocked must be called with f.mu held.
func (f *Field) armTickLocked(gen uint64) {
	f.tickTimer = f.cfg.Clock.AfterFunc(countdownTick, func() { f.tick(gen) })
}

func (f *Field) tick(gen uint64) {
	f.mu.Lock()
	if f.closed || f.grant == nil || gen != f.grantGen {
		f.mu.Unlock()
		return
	}
	f.tickTimer = nil
	if f.cfg.Clock.Now().Before(f.grant.ExpiresAt) {
		f.armTickLocked(gen)
	}
	view := f.viewLocked()
	f.mu.Unlock()
	f.emit(view)
}

func (f *Field) expire(gen uint64) {
	f.mu.Lock()
	if f.closed || f.grant == nil || gen != f.grantGen {
		f.mu.Unlock()
		return
	}
	f.hideTimer = nil
	f.destroyGrantLocked()
	view := f.viewLocked()
	f.mu.Unlock()
	f.emit(view)
}

// Hide destroys the grant, if any.
func (f *Field) Hide() {
	f.mu.Lock()
	if f.closed || f.grant == nil {
		f.mu.Unlock()
		return
	}
	f.destroyGrantLocked()
	view := f.viewLocked()
	f.mu.Unlock()
	f.emit(view)
}

// Toggle hides a revealed field or reveals a masked one.
func (f *Field) Toggle(ctx context.Context) error {
	f.mu.Lock()
	revealed := f.grant != nil
	f.mu.Unlock()
	if revealed {
		f.Hide()
		return nil
	}
	return f.Reveal(ctx)
}

func (f *Field) destroyGrantLocked() {
	if f.grant == nil {
		return
	}
	f.grant = nil
	f.grantGen++
	f.hideTimer.Stop()
	f.tickTimer.Stop()
	f.hideTimer, f.tickTimer = nil, nil
	metrics.ActiveGrants.Dec()
}

func (f *Field) markExhaustedLocked(until time.Time) {
	f.exhaustGen++
	f.exhaustTmr.Stop()
	f.exhaustTmr = nil
	f.exhausted = until

	d := until.Sub(f.cfg.Clock.Now())
	if d <= 0 {
		f.exhausted = time.Time{}
		return
	}
	gen := f.exhaustGen
	f.exhaustTmr = f.cfg.Clock.AfterFunc(d, func() {
		f.mu.Lock()
		if f.closed || gen != f.exhaustGen {
			f.mu.Unlock()
			return
		}
		f.exhaustTmr = nil
		f.exhausted = time.Time{}
		view := f.viewLocked()
		f.mu.Unlock()
		f.emit(view)
	})
}

func (f *Field) clearExhaustedLocked() {
	f.exhaustGen++
	f.exhaustTmr.Stop()
	f.exhaustTmr = nil
	f.exhausted = time.Time{}
}

// Close tears the field down: the grant is destroyed, every timer is
// cancelled and in-flight reveals are orphaned. Close is idempotent and emits
// nothing.
func (f *Field) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.destroyGrantLocked()
	f.closed = true
	f.reqGen++
	f.loading = false
	f.exhaustGen++
	f.exhaustTmr.Stop()
	f.exhaustTmr = nil
}

// AllowCopy reports whether a clipboard action on the field's own container
// may proceed. Copy, cut and the context menu are blocked while revealed.
func (f *Field) AllowCopy(action signals.ClipboardAction) bool {
	f.mu.Lock()
	revealed := f.grant != nil
	f.mu.Unlock()
	if !revealed {
		return true
	}
	switch action {
	case signals.ActionCopy, signals.ActionCut, signals.ActionContextMenu:
		return false
	default:
		return true
	}
}

// Grant returns a copy of the live grant, or nil.
func (f *Field) Grant() *RevealGrant {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grant == nil {
		return nil
	}
	g := *f.grant
	return &g
}

// View returns the current renderable state.
func (f *Field) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewLocked()
}

func (f *Field) viewLocked() View {
	v := View{
		FieldID:  f.cfg.FieldID,
		EntityID: f.cfg.EntityID,
		Kind:     f.cfg.Kind,
		Display:  f.cfg.Masked,
		Loading:  f.loading,
		Error:    f.lastErr,
	}
	if f.grant != nil {
		v.Display = f.grant.Value
		v.Revealed = true
		left := f.grant.ExpiresAt.Sub(f.cfg.Clock.Now())
		v.SecondsLeft = int(math.Ceil(left.Seconds()))
	}
	if !f.exhausted.IsZero() {
		until := f.exhausted
		v.Exhausted = true
		v.ExhaustedUntil = &until
	}
	return v
}

func (f *Field) emit(v View) {
	if f.cfg.OnChange != nil {
		f.cfg.OnChange(v)
	}
}
