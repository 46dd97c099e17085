// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/meshid/teamauth/connect"
	"github.com/meshid/teamauth/internal/logger"
	"github.com/meshid/teamauth/pkg/storage"
	"github.com/meshid/teamauth/transport/wsrelay"
)

// fetchToken retrieves a relay bearer token scoped to session from the
// demo relay's /token endpoint.
func fetchToken(tokenURL, session string) (string, error) {
	u, err := url.Parse(tokenURL)
	if err != nil {
		return "", fmt.Errorf("parse token url: %w", err)
	}
	q := u.Query()
	q.Set("session", session)
	u.RawQuery = q.Encode()

	resp, err := http.Get(u.String())
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch token: %s", string(body))
	}
	return string(body), nil
}

// dialRelay fetches a bearer token for session and dials relayURL,
// presenting it on the WebSocket upgrade request.
func dialRelay(ctx context.Context, relayURL, tokenURL, session string) (*wsrelay.Peer, error) {
	token, err := fetchToken(tokenURL, session)
	if err != nil {
		return nil, err
	}
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	return wsrelay.Dial(ctx, relayURL, header)
}

// persistSession records the derived session key once the connection
// reaches `connected`, and drops the record again on disconnect — the
// at-rest bookkeeping spec.md §4.D describes, kept entirely separate
// from the in-process FSM state the Non-goal in §4.E forbids resuming
// from storage.
func persistSession(conn *connect.Connection, cctx *connect.Context, store storage.Store, sessionID, localPeer string, log logger.Logger) {
	conn.OnConnected(func() {
		remote := ""
		if peer := cctx.Peer(); peer != nil {
			remote = peer.UserName
		}
		sess := &storage.Session{
			ID:           sessionID,
			LocalPeer:    localPeer,
			RemotePeer:   remote,
			SessionKey:   cctx.SessionKey(),
			CreatedAt:    time.Now(),
			ExpiresAt:    time.Now().Add(24 * time.Hour),
			LastActivity: time.Now(),
		}
		if err := store.SessionStore().Create(context.Background(), sess); err != nil {
			log.Warn("persist session failed", logger.String("error", err.Error()))
		}
	})
	conn.OnDisconnected(func(reason string) {
		if err := store.SessionStore().Delete(context.Background(), sessionID); err != nil {
			log.Warn("drop session failed", logger.String("error", err.Error()))
		}
	})
}
