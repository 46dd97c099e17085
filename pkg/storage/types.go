// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package storage

import "time"

// Session is the bookkeeping record kept once a connection reaches
// the connected state: the derived session key and connection
// metadata. It is NOT the FSM's state and is never used to resume a
// handshake in progress — the connection driver's state lives only
// in the running process, per §5's concurrency model.
type Session struct {
	ID           string                 `json:"id"`
	LocalPeer    string                 `json:"local_peer"`
	RemotePeer   string                 `json:"remote_peer"`
	SessionKey   []byte                 `json:"session_key"`
	CreatedAt    time.Time              `json:"created_at"`
	ExpiresAt    time.Time              `json:"expires_at"`
	LastActivity time.Time              `json:"last_activity"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Nonce is a used identity-challenge nonce, kept until it expires to
// reject replays of CHALLENGE/PROVE_IDENTITY exchanges (§4.C).
type Nonce struct {
	Nonce     string    `json:"nonce"`
	SessionID string    `json:"session_id"`
	UsedAt    time.Time `json:"used_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Identity is a cached peer identity: the public key and key type a
// device proved ownership of during a past CHALLENGE/PROVE_IDENTITY
// round, plus whether the signature chain has since revoked it.
type Identity struct {
	PeerID    string    `json:"peer_id"`
	PublicKey []byte    `json:"public_key"`
	KeyType   string    `json:"key_type"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
