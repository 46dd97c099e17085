// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package wsrelay is the reference implementation of the external
// Transport collaborator (spec.md §4.J, §6): a WebSocket duplex
// channel, dialed directly peer-to-peer or relayed through Relay for
// peers that cannot reach each other's network directly. It is a
// concrete, swappable implementation of connect.Transport — nothing
// under package connect imports this package.
package wsrelay

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meshid/teamauth/connect"
	"github.com/meshid/teamauth/internal/logger"
)

// Peer is a single WebSocket connection carrying one pairwise
// connection's wire traffic. It satisfies connect.Transport
// structurally via SendMessage; inbound bytes are pumped into an
// attached *connect.Connection's Deliver method by its read loop.
type Peer struct {
	url          string
	conn         *websocket.Conn
	mu           sync.Mutex
	dialTimeout  time.Duration
	writeTimeout time.Duration
	log          logger.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial opens a WebSocket connection to url (either a direct peer
// listener or a Relay's /relay endpoint), presenting header on the
// upgrade request (typically "Authorization: Bearer <token>").
func Dial(ctx context.Context, url string, header http.Header) (*Peer, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("wsrelay: dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("wsrelay: dial failed: %w", err)
	}
	return newPeer(conn), nil
}

func newPeer(conn *websocket.Conn) *Peer {
	return &Peer{
		conn:         conn,
		writeTimeout: 30 * time.Second,
		log:          logger.Default(),
		closed:       make(chan struct{}),
	}
}

// SendMessage implements connect.Transport by writing raw as a single
// binary WebSocket frame.
func (p *Peer) SendMessage(raw []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
		return fmt.Errorf("wsrelay: set write deadline: %w", err)
	}
	if err := p.conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
		return fmt.Errorf("wsrelay: write message: %w", err)
	}
	return nil
}

// Attach starts a background read loop that feeds every inbound frame
// to conn.Deliver, until the socket closes or Close is called.
func (p *Peer) Attach(conn *connect.Connection) {
	go p.readLoop(conn)
}

func (p *Peer) readLoop(conn *connect.Connection) {
	for {
		select {
		case <-p.closed:
			return
		default:
		}
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			p.log.Warn("wsrelay: read failed, closing peer", logger.Err(err))
			_ = p.Close()
			return
		}
		if err := conn.Deliver(raw); err != nil {
			p.log.Warn("wsrelay: deliver failed", logger.Err(err))
		}
	}
}

// Close shuts down the underlying WebSocket connection. Idempotent.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		p.mu.Lock()
		defer p.mu.Unlock()
		_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = p.conn.Close()
	})
	return err
}
