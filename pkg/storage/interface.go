// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package storage

import (
	"context"
	"time"
)

// SessionStore persists session bookkeeping (§4.D) — it never
// persists connection/FSM state (the Non-goal in §4.E forbids
// resuming a connection from storage).
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int64, error)
	List(ctx context.Context, peerID string, limit, offset int) ([]*Session, error)
	UpdateActivity(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

// NonceStore provides replay protection for the identity challenge
// protocol (§4.C): once a nonce is consumed, a second PROVE_IDENTITY
// carrying it must be rejected.
type NonceStore interface {
	CheckAndStore(ctx context.Context, nonce string, sessionID string, expiresAt time.Time) error
	IsUsed(ctx context.Context, nonce string) (bool, error)
	DeleteExpired(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// IdentityStore caches peer identities resolved over past connections
// so a repeat CHALLENGE/PROVE_IDENTITY round can be short-circuited
// once the signature chain confirms a key hasn't been revoked.
type IdentityStore interface {
	Create(ctx context.Context, identity *Identity) error
	Get(ctx context.Context, peerID string) (*Identity, error)
	Update(ctx context.Context, identity *Identity) error
	Delete(ctx context.Context, peerID string) error
	Revoke(ctx context.Context, peerID string) error
	IsRevoked(ctx context.Context, peerID string) (bool, error)
}

// Store bundles the three storage concerns behind one connection
// handle.
type Store interface {
	SessionStore() SessionStore
	NonceStore() NonceStore
	IdentityStore() IdentityStore

	Close() error
	Ping(ctx context.Context) error
}
