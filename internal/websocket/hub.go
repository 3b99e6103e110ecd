// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/tomtom215/fieldguard/internal/logging"
	"github.com/tomtom215/fieldguard/internal/metrics"
)

// ShutdownReason identifies why the hub stopped.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Hub maintains the set of connected clients and fans broadcasts out to
// the ones subscribed to them.
type Hub struct {
	clients   map[*Client]bool
	broadcast chan Message
	Register  chan *Client
	mu        sync.RWMutex
}

// NewHub creates a Hub. RunWithContext must be running for broadcasts to be
// delivered.
func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan Message, 256),
		Register:  make(chan *Client),
		clients:   make(map[*Client]bool),
	}
}

// RunWithContext serves registrations and broadcasts until ctx ends, then
// closes every client. Clients leave through remove, directly.
//
// Registrations are drained before broadcasts so a message is never skipped
// for a client whose registration is still queued.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.add(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(n))
	logging.Info().
		Int("total_clients", n).
		Str("session_id", logging.SanitizeSessionID(c.sessionID)).
		Msg("websocket client connected")
}

// remove drops c and closes its send queue. It is safe to call for clients
// that are already gone.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.closeSend()
	if ok {
		metrics.WSConnections.Set(float64(n))
		logging.Info().Int("total_clients", n).Msg("websocket client disconnected")
	}
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	n := h.GetClientCount()
	h.closeAllClients()
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(shutdownReason(ctx))).
		Int("clients_closed", n).
		Msg("websocket hub stopped")
}

func shutdownReason(ctx context.Context) ShutdownReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// sortedClients returns the clients in connection order. Callers hold mu.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	return clients
}

// broadcastToClients delivers message to subscribed clients in connection
// order. A client whose queue is full is disconnected.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	var dropped []*Client
	for _, c := range h.sortedClients() {
		if !c.subscribed {
			continue
		}
		if !c.enqueue(message) {
			delete(h.clients, c)
			dropped = append(dropped, c)
		}
	}
	n := len(h.clients)
	h.mu.Unlock()

	for _, c := range dropped {
		c.closeSend()
		logging.Warn().
			Str("session_id", logging.SanitizeSessionID(c.sessionID)).
			Msg("websocket client too slow, disconnected")
	}
	if len(dropped) > 0 {
		metrics.WSConnections.Set(float64(n))
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	clients := h.sortedClients()
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	for _, c := range clients {
		c.closeSend()
	}
	metrics.WSConnections.Set(0)
}

// BroadcastJSON queues a message for every subscribed client. It never
// blocks; when the queue is full the message is dropped.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	select {
	case h.broadcast <- Message{Type: messageType, Data: data}:
	default:
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
