// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package session

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/meshid/teamauth/crypto"
)

// SeedSize is the length in bytes of each peer's contributed
// key-agreement seed and of the derived session key (256 bits).
const SeedSize = 32

// DeriveSessionKey combines the local and remote peer-contributed
// seeds into a 256-bit session key (§4.D). The derivation is symmetric
// in its two arguments — sorting before hashing — so either peer
// reaches the same key regardless of which one is "local".
func DeriveSessionKey(localSeed, remoteSeed []byte) ([]byte, error) {
	if len(localSeed) != SeedSize || len(remoteSeed) != SeedSize {
		return nil, fmt.Errorf("session: seeds must be %d bytes", SeedSize)
	}

	lo, hi := canonicalOrder(localSeed, remoteSeed)

	prk := hkdf.Extract(sha256.New, nil, append(append([]byte{}, lo...), hi...))
	key := make([]byte, SeedSize)
	kdf := hkdf.New(sha256.New, prk, nil, []byte("teamauth/session-key"))
	if _, err := kdf.Read(key); err != nil {
		return nil, fmt.Errorf("session: derive key: %w", err)
	}
	return key, nil
}

// canonicalOrder returns a, b in lexicographic order so both peers
// produce identical input bytes regardless of role.
func canonicalOrder(a, b []byte) (lo, hi []byte) {
	if bytes.Compare(a, b) <= 0 {
		return a, b
	}
	return b, a
}

// SecureSession wraps a derived session key with ChaCha20-Poly1305
// AEAD encrypt/decrypt for ENCRYPTED_MESSAGE payloads, plus the idle
// and message-count bookkeeping a long-running connection needs.
type SecureSession struct {
	id           string
	createdAt    time.Time
	lastUsedAt   time.Time
	messageCount int
	config       Config
	closed       bool
	key          []byte
}

// NewSecureSession wraps a derived session key for a connection
// identified by id.
func NewSecureSession(id string, key []byte, config Config) (*SecureSession, error) {
	if id == "" || len(key) != SeedSize {
		return nil, fmt.Errorf("session: invalid session id or key length")
	}
	now := time.Now()
	return &SecureSession{
		id:         id,
		createdAt:  now,
		lastUsedAt: now,
		config:     config,
		key:        key,
	}, nil
}

func (s *SecureSession) ID() string             { return s.id }
func (s *SecureSession) CreatedAt() time.Time    { return s.createdAt }
func (s *SecureSession) LastUsedAt() time.Time   { return s.lastUsedAt }
func (s *SecureSession) MessageCount() int       { return s.messageCount }
func (s *SecureSession) Config() Config          { return s.config }

// IsExpired reports whether the session has exceeded its configured
// absolute age, idle timeout, or message count limit.
func (s *SecureSession) IsExpired() bool {
	if s.closed {
		return true
	}
	now := time.Now()
	if s.config.MaxAge > 0 && now.After(s.createdAt.Add(s.config.MaxAge)) {
		return true
	}
	if s.config.IdleTimeout > 0 && now.After(s.lastUsedAt.Add(s.config.IdleTimeout)) {
		return true
	}
	if s.config.MaxMessages > 0 && s.messageCount >= s.config.MaxMessages {
		return true
	}
	return false
}

func (s *SecureSession) touch() {
	s.lastUsedAt = time.Now()
	s.messageCount++
}

// Close zeroes the key material and marks the session closed.
func (s *SecureSession) Close() error {
	s.closed = true
	for i := range s.key {
		s.key[i] = 0
	}
	return nil
}

// Encrypt seals plaintext under the session key. Output is
// nonce || ciphertext (see crypto.Encrypt).
func (s *SecureSession) Encrypt(plaintext []byte) ([]byte, error) {
	if s.IsExpired() {
		return nil, fmt.Errorf("session: expired")
	}
	out, err := crypto.Encrypt(s.key, plaintext)
	if err != nil {
		return nil, err
	}
	s.touch()
	return out, nil
}

// Decrypt reverses Encrypt.
func (s *SecureSession) Decrypt(sealed []byte) ([]byte, error) {
	if s.IsExpired() {
		return nil, fmt.Errorf("session: expired")
	}
	if len(sealed) < chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("session: ciphertext too short")
	}
	pt, err := crypto.Decrypt(s.key, sealed)
	if err != nil {
		return nil, err
	}
	s.touch()
	return pt, nil
}
