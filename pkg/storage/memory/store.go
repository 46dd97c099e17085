// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package memory is the in-process storage.Store implementation used
// by the demo CLI's default configuration and by tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meshid/teamauth/pkg/storage"
)

// Store implements storage.Store entirely in memory, guarded by one
// RWMutex per concern.
type Store struct {
	sessions   map[string]*storage.Session
	nonces     map[string]*storage.Nonce
	identities map[string]*storage.Identity

	sessionsMu   sync.RWMutex
	noncesMu     sync.RWMutex
	identitiesMu sync.RWMutex

	sessionStore  *SessionStore
	nonceStore    *NonceStore
	identityStore *IdentityStore
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	s := &Store{
		sessions:   make(map[string]*storage.Session),
		nonces:     make(map[string]*storage.Nonce),
		identities: make(map[string]*storage.Identity),
	}

	s.sessionStore = &SessionStore{store: s}
	s.nonceStore = &NonceStore{store: s}
	s.identityStore = &IdentityStore{store: s}

	return s
}

func (s *Store) SessionStore() storage.SessionStore   { return s.sessionStore }
func (s *Store) NonceStore() storage.NonceStore       { return s.nonceStore }
func (s *Store) IdentityStore() storage.IdentityStore { return s.identityStore }

func (s *Store) Close() error                   { return nil }
func (s *Store) Ping(ctx context.Context) error { return nil }

// Clear removes all data. Useful for tests.
func (s *Store) Clear() {
	s.sessionsMu.Lock()
	s.sessions = make(map[string]*storage.Session)
	s.sessionsMu.Unlock()

	s.noncesMu.Lock()
	s.nonces = make(map[string]*storage.Nonce)
	s.noncesMu.Unlock()

	s.identitiesMu.Lock()
	s.identities = make(map[string]*storage.Identity)
	s.identitiesMu.Unlock()
}

// SessionStore implements storage.SessionStore.
type SessionStore struct {
	store *Store
}

func (s *SessionStore) Create(ctx context.Context, session *storage.Session) error {
	s.store.sessionsMu.Lock()
	defer s.store.sessionsMu.Unlock()

	if _, exists := s.store.sessions[session.ID]; exists {
		return fmt.Errorf("session already exists: %s", session.ID)
	}

	sessionCopy := *session
	if session.SessionKey != nil {
		sessionCopy.SessionKey = make([]byte, len(session.SessionKey))
		copy(sessionCopy.SessionKey, session.SessionKey)
	}
	if session.Metadata != nil {
		sessionCopy.Metadata = make(map[string]interface{})
		for k, v := range session.Metadata {
			sessionCopy.Metadata[k] = v
		}
	}

	s.store.sessions[session.ID] = &sessionCopy
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*storage.Session, error) {
	s.store.sessionsMu.RLock()
	defer s.store.sessionsMu.RUnlock()

	session, exists := s.store.sessions[id]
	if !exists {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, fmt.Errorf("session expired: %s", id)
	}

	sessionCopy := *session
	return &sessionCopy, nil
}

func (s *SessionStore) Update(ctx context.Context, session *storage.Session) error {
	s.store.sessionsMu.Lock()
	defer s.store.sessionsMu.Unlock()

	if _, exists := s.store.sessions[session.ID]; !exists {
		return fmt.Errorf("session not found: %s", session.ID)
	}

	sessionCopy := *session
	s.store.sessions[session.ID] = &sessionCopy
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.store.sessionsMu.Lock()
	defer s.store.sessionsMu.Unlock()

	if _, exists := s.store.sessions[id]; !exists {
		return fmt.Errorf("session not found: %s", id)
	}

	delete(s.store.sessions, id)
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	s.store.sessionsMu.Lock()
	defer s.store.sessionsMu.Unlock()

	now := time.Now()
	var count int64

	for id, session := range s.store.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.store.sessions, id)
			count++
		}
	}

	return count, nil
}

func (s *SessionStore) List(ctx context.Context, peerID string, limit, offset int) ([]*storage.Session, error) {
	s.store.sessionsMu.RLock()
	defer s.store.sessionsMu.RUnlock()

	var sessions []*storage.Session
	now := time.Now()

	for _, session := range s.store.sessions {
		if session.RemotePeer == peerID && now.Before(session.ExpiresAt) {
			sessionCopy := *session
			sessions = append(sessions, &sessionCopy)
		}
	}

	if offset >= len(sessions) {
		return []*storage.Session{}, nil
	}
	end := offset + limit
	if end > len(sessions) {
		end = len(sessions)
	}
	return sessions[offset:end], nil
}

func (s *SessionStore) UpdateActivity(ctx context.Context, id string) error {
	s.store.sessionsMu.Lock()
	defer s.store.sessionsMu.Unlock()

	session, exists := s.store.sessions[id]
	if !exists {
		return fmt.Errorf("session not found: %s", id)
	}

	session.LastActivity = time.Now()
	return nil
}

func (s *SessionStore) Count(ctx context.Context) (int64, error) {
	s.store.sessionsMu.RLock()
	defer s.store.sessionsMu.RUnlock()

	now := time.Now()
	var count int64

	for _, session := range s.store.sessions {
		if now.Before(session.ExpiresAt) {
			count++
		}
	}

	return count, nil
}
