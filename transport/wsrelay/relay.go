// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package wsrelay

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/meshid/teamauth/internal/logger"
)

// Relay pairs exactly two WebSocket clients presenting the same
// session ID and forwards raw frames between them, byte for byte. It
// never inspects connect wire messages — the handshake and everything
// above it stays end-to-end between the two connect.Connections; the
// relay only solves the problem of two peers that cannot dial each
// other directly (spec.md §4.J).
type Relay struct {
	upgrader websocket.Upgrader
	tokens   *TokenIssuer
	log      logger.Logger

	mu      sync.Mutex
	waiting map[string]*websocket.Conn
}

// NewRelay builds a Relay that authorizes connections with tokens.
func NewRelay(tokens *TokenIssuer) *Relay {
	return &Relay{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		tokens:  tokens,
		log:     logger.Default(),
		waiting: make(map[string]*websocket.Conn),
	}
}

// Handler upgrades a request to a WebSocket and pairs it by session
// ID, expecting "Authorization: Bearer <token>" minted by Mint for
// that session.
func (r *Relay) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		token := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
		sessionID, err := r.tokens.Verify(token)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		conn, err := r.upgrader.Upgrade(w, req, nil)
		if err != nil {
			http.Error(w, "wsrelay: upgrade failed: "+err.Error(), http.StatusBadRequest)
			return
		}
		r.pair(sessionID, conn)
	})
}

// pair matches conn against a waiting peer for sessionID, or parks it
// until one arrives.
func (r *Relay) pair(sessionID string, conn *websocket.Conn) {
	r.mu.Lock()
	other, ok := r.waiting[sessionID]
	if !ok {
		r.waiting[sessionID] = conn
		r.mu.Unlock()
		return
	}
	delete(r.waiting, sessionID)
	r.mu.Unlock()

	go r.forward(conn, other)
	go r.forward(other, conn)
}

// forward copies every binary frame read from src to dst until either
// side closes.
func (r *Relay) forward(src, dst *websocket.Conn) {
	defer func() {
		_ = src.Close()
		_ = dst.Close()
	}()
	for {
		msgType, raw, err := src.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if err := dst.WriteMessage(websocket.BinaryMessage, raw); err != nil {
			return
		}
	}
}
