// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package testinfra

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// WebhookCapture is one received request.
type WebhookCapture struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
}

// WebhookServer is an httptest server that records requests. It responds
// 200 unless failures were queued with FailNext.
type WebhookServer struct {
	Server *httptest.Server

	mu         sync.Mutex
	captures   []WebhookCapture
	failCount  int
	failStatus int
}

// NewWebhookServer starts a server that is closed when the test ends.
func NewWebhookServer(t *testing.T) *WebhookServer {
	t.Helper()

	ws := &WebhookServer{}
	ws.Server = httptest.NewServer(http.HandlerFunc(ws.handle))
	t.Cleanup(ws.Server.Close)
	return ws
}

func (ws *WebhookServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	_ = r.Body.Close()

	ws.mu.Lock()
	ws.captures = append(ws.captures, WebhookCapture{
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: r.Header.Clone(),
		Body:    body,
	})
	status := http.StatusOK
	if ws.failCount > 0 {
		ws.failCount--
		status = ws.failStatus
	}
	ws.mu.Unlock()

	w.WriteHeader(status)
}

// URL returns the server URL.
func (ws *WebhookServer) URL() string {
	return ws.Server.URL
}

// FailNext makes the next n requests answer with status.
func (ws *WebhookServer) FailNext(n, status int) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.failCount = n
	ws.failStatus = status
}

// Captures returns a copy of all received requests.
func (ws *WebhookServer) Captures() []WebhookCapture {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	out := make([]WebhookCapture, len(ws.captures))
	copy(out, ws.captures)
	return out
}

// WaitForCaptures polls until at least n requests arrived or timeout passes.
func (ws *WebhookServer) WaitForCaptures(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ws.mu.Lock()
		count := len(ws.captures)
		ws.mu.Unlock()
		if count >= n {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}
