// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package websocket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/fieldguard/internal/disclosure"
	"github.com/tomtom215/fieldguard/internal/logging"
	"github.com/tomtom215/fieldguard/internal/session"
	"github.com/tomtom215/fieldguard/internal/signals"
	"github.com/tomtom215/fieldguard/internal/validation"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Default inbound throttle per connection.
const (
	DefaultEventRate  = rate.Limit(50)
	DefaultEventBurst = 100
)

var clientIDCounter atomic.Uint64

// Session is the per-browser state a client drives. *session.Session
// implements it.
type Session interface {
	Dispatch(ev signals.Event) signals.Decision
	RevealField(ctx context.Context, entityID string, kind disclosure.FieldKind) (disclosure.View, error)
	HideField(fieldID string) bool
	CloseField(fieldID string) bool
	Dismiss() bool
	Attach(emit session.EmitFunc) (detach func())
}

// ClientOptions configures a Client.
type ClientOptions struct {
	SessionID string

	// Subscribed clients receive hub broadcasts.
	Subscribed bool

	EventRate  rate.Limit
	EventBurst int
}

// Client is a middleman between one websocket connection, its Session and
// the hub.
type Client struct {
	id         uint64
	hub        *Hub
	conn       *websocket.Conn
	send       chan Message
	session    Session
	sessionID  string
	subscribed bool
	limiter    *rate.Limiter

	mu     sync.Mutex
	closed bool
}

// NewClient creates a client for conn bound to sess.
func NewClient(hub *Hub, conn *websocket.Conn, sess Session, opts ClientOptions) *Client {
	if opts.EventRate <= 0 {
		opts.EventRate = DefaultEventRate
	}
	if opts.EventBurst <= 0 {
		opts.EventBurst = DefaultEventBurst
	}
	return &Client{
		id:         clientIDCounter.Add(1),
		hub:        hub,
		conn:       conn,
		send:       make(chan Message, sendBuffer),
		session:    sess,
		sessionID:  opts.SessionID,
		subscribed: opts.Subscribed,
		limiter:    rate.NewLimiter(opts.EventRate, opts.EventBurst),
	}
}

// ID returns the connection-ordered client identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// enqueue queues msg without blocking. It reports false when the client is
// closed or its queue is full.
func (c *Client) enqueue(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// closeSend closes the queue once. The write pump drains it and then closes
// the connection.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// emit is the session.EmitFunc of this connection. A signed_out message is
// the last one the connection carries.
func (c *Client) emit(messageType string, data any) {
	if !c.enqueue(Message{Type: messageType, Data: data}) {
		logging.Warn().
			Str("message_type", messageType).
			Str("session_id", logging.SanitizeSessionID(c.sessionID)).
			Msg("websocket send queue unavailable, dropping message")
	}
	if messageType == session.MessageSignedOut {
		c.closeSend()
	}
}

func (c *Client) reply(in Inbound, messageType string, data any) {
	if !c.enqueue(Message{Type: messageType, Seq: in.Seq, Data: data}) {
		logging.Warn().Str("message_type", messageType).Msg("websocket send queue unavailable, dropping reply")
	}
}

func (c *Client) replyError(in Inbound, e ErrorData) {
	c.reply(in, MessageTypeError, e)
}

// readPump reads frames until the connection fails, then detaches the
// session and leaves the hub.
func (c *Client) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = logging.ContextWithSessionID(ctx, c.sessionID)
	detach := c.session.Attach(c.emit)
	defer func() {
		detach()
		cancel()
		c.hub.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logging.Ctx(ctx).Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.replyError(Inbound{}, ErrorData{Code: CodeBadRequest, Message: "malformed frame"})
			continue
		}
		c.handle(ctx, in)
	}
}

func (c *Client) handle(ctx context.Context, in Inbound) {
	switch in.Type {
	case MessageTypePing:
		c.reply(in, MessageTypePong, nil)

	case MessageTypeEnvEvent:
		if !c.allow(in) {
			return
		}
		var ev signals.Event
		if !c.decode(in, &ev) {
			return
		}
		c.reply(in, MessageTypeDecision, c.session.Dispatch(ev))

	case MessageTypeRevealField:
		if !c.allow(in) {
			return
		}
		var body disclosure.RevealBody
		if !c.decode(in, &body) {
			return
		}
		// Reveals wait on the directory and the rate counter; event
		// decisions must not queue behind them.
		go func() {
			view, err := c.session.RevealField(ctx, body.EntityID, body.FieldKind)
			if err != nil {
				c.replyError(in, revealError(err))
				return
			}
			c.reply(in, MessageTypeFieldView, view)
		}()

	case MessageTypeHideField, MessageTypeCloseField:
		var ref FieldRef
		if !c.decode(in, &ref) {
			return
		}
		var ok bool
		if in.Type == MessageTypeHideField {
			ok = c.session.HideField(ref.FieldID)
		} else {
			ok = c.session.CloseField(ref.FieldID)
		}
		if !ok {
			c.replyError(in, ErrorData{Code: CodeNotFound, Message: "field not open"})
			return
		}
		c.reply(in, MessageTypeAck, AckData{OK: true})

	case MessageTypeDismissOverlay:
		c.reply(in, MessageTypeAck, AckData{OK: c.session.Dismiss()})

	default:
		c.replyError(in, ErrorData{Code: CodeUnknownType, Message: "unknown message type"})
	}
}

func (c *Client) allow(in Inbound) bool {
	if c.limiter.Allow() {
		return true
	}
	c.replyError(in, ErrorData{Code: CodeThrottled, Message: "too many messages"})
	return false
}

func (c *Client) decode(in Inbound, v any) bool {
	if len(in.Data) == 0 {
		c.replyError(in, ErrorData{Code: CodeBadRequest, Message: "missing data"})
		return false
	}
	if err := json.Unmarshal(in.Data, v); err != nil {
		c.replyError(in, ErrorData{Code: CodeBadRequest, Message: "malformed data"})
		return false
	}
	if err := validation.Struct(v); err != nil {
		c.replyError(in, ErrorData{Code: validation.CodeValidation, Message: err.Error()})
		return false
	}
	return true
}

func revealError(err error) ErrorData {
	var rl *disclosure.RateLimitError
	switch {
	case errors.As(err, &rl):
		reset := rl.ResetAt
		return ErrorData{
			Code:              CodeRateLimited,
			Message:           "reveal limit reached",
			RetryAfterSeconds: rl.RetryAfterSeconds(),
			ResetAt:           &reset,
		}
	case errors.Is(err, disclosure.ErrNotFound), errors.Is(err, session.ErrSessionNotFound):
		return ErrorData{Code: CodeNotFound, Message: "not found"}
	case errors.Is(err, disclosure.ErrInvalidKind):
		return ErrorData{Code: CodeBadRequest, Message: "invalid field kind"}
	case errors.Is(err, disclosure.ErrAlreadyRevealed), errors.Is(err, disclosure.ErrRevealInFlight):
		return ErrorData{Code: CodeConflict, Message: err.Error()}
	default:
		logging.Error().Err(err).Msg("reveal failed")
		return ErrorData{Code: CodeInternal, Message: "reveal failed"}
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			data, err := json.Marshal(message)
			if err != nil {
				logging.Error().Err(err).Str("message_type", message.Type).Msg("failed to encode websocket message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start runs the client pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
