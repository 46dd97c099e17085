// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package session

import (
	"fmt"
	"sync"
	"time"
)

// Manager tracks every connected session a process is hosting,
// keyed by connection/session ID, and runs periodic cleanup of
// expired sessions.
type Manager struct {
	sessions      map[string]*SecureSession
	byKeyID       map[string]string
	keyIDsBySID   map[string]map[string]struct{}
	mu            sync.RWMutex
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	defaultConfig Config
	nonceCache    *NonceCache // replay guard for ENCRYPTED_MESSAGE
}

// NewManager creates a session manager with default configuration and
// starts its background cleanup loop.
func NewManager() *Manager {
	m := &Manager{
		sessions:    make(map[string]*SecureSession),
		stopCleanup: make(chan struct{}),
		defaultConfig: Config{
			MaxAge:      time.Hour,
			IdleTimeout: 10 * time.Minute,
			MaxMessages: 1000,
		},
		nonceCache: NewNonceCache(10 * time.Minute),
	}

	m.cleanupTicker = time.NewTicker(30 * time.Second)
	go m.runCleanup()

	return m
}

// EnsureSession derives the session key from localSeed/remoteSeed
// (§4.D) and registers a SecureSession under sessionID, returning the
// existing one if this ID was already registered (e.g. a RECONNECT
// re-deriving the same key).
func (m *Manager) EnsureSession(sessionID string, localSeed, remoteSeed []byte, cfg *Config) (*SecureSession, bool, error) {
	m.mu.RLock()
	if s, ok := m.sessions[sessionID]; ok {
		m.mu.RUnlock()
		return s, true, nil
	}
	m.mu.RUnlock()

	key, err := DeriveSessionKey(localSeed, remoteSeed)
	if err != nil {
		return nil, false, fmt.Errorf("derive session key: %w", err)
	}

	newCfg := m.defaultConfig
	if cfg != nil {
		newCfg = withDefaults(*cfg)
	}
	s, err := NewSecureSession(sessionID, key, newCfg)
	if err != nil {
		return nil, false, fmt.Errorf("new secure session: %w", err)
	}

	m.mu.Lock()
	if exist, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		_ = s.Close()
		return exist, true, nil
	}
	m.sessions[sessionID] = s
	m.mu.Unlock()

	return s, false, nil
}

// CreateSession registers a new SecureSession under sessionID using an
// already-derived key and the manager's default config. It errors if
// sessionID is already in use.
func (m *Manager) CreateSession(sessionID string, key []byte) (*SecureSession, error) {
	return m.CreateSessionWithConfig(sessionID, key, m.defaultConfig)
}

// CreateSessionWithConfig is CreateSession with an explicit config.
func (m *Manager) CreateSessionWithConfig(sessionID string, key []byte, cfg Config) (*SecureSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sessionID]; exists {
		return nil, fmt.Errorf("session: id %q already exists", sessionID)
	}

	s, err := NewSecureSession(sessionID, key, withDefaults(cfg))
	if err != nil {
		return nil, err
	}
	m.sessions[sessionID] = s
	return s, nil
}

// BindKeyID associates an opaque keyid with an existing session ID and tracks reverse mapping.
func (m *Manager) BindKeyID(keyid, sid string) {
	m.mu.Lock()
	if m.byKeyID == nil {
		m.byKeyID = make(map[string]string)
	}
	if m.keyIDsBySID == nil {
		m.keyIDsBySID = make(map[string]map[string]struct{})
	}
	m.byKeyID[keyid] = sid
	set, ok := m.keyIDsBySID[sid]
	if !ok {
		set = make(map[string]struct{})
		m.keyIDsBySID[sid] = set
	}
	set[keyid] = struct{}{}
	m.mu.Unlock()
}

// UnbindKeyID removes a keyid mapping (call on session close or key rotation).
func (m *Manager) UnbindKeyID(keyid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sid, ok := m.byKeyID[keyid]
	if !ok {
		return false
	}
	delete(m.byKeyID, keyid)
	if set, ok := m.keyIDsBySID[sid]; ok {
		delete(set, keyid)
		if len(set) == 0 {
			delete(m.keyIDsBySID, sid)
		}
	}
	if m.nonceCache != nil {
		m.nonceCache.DeleteKey(keyid)
	}
	return true
}

// GetByKeyID returns the Session associated with the given keyid (if alive).
func (m *Manager) GetByKeyID(keyid string) (*SecureSession, bool) {
	m.mu.RLock()
	sid, ok := m.byKeyID[keyid]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return m.GetSession(sid)
}

// GetSession retrieves a session by ID, returns false if not found or expired.
func (m *Manager) GetSession(sessionID string) (*SecureSession, bool) {
	m.mu.RLock()
	sess, exists := m.sessions[sessionID]
	m.mu.RUnlock()

	if !exists {
		return nil, false
	}

	if sess.IsExpired() {
		m.RemoveSession(sessionID)
		return nil, false
	}

	return sess, true
}

// RemoveSession removes a session and unbinds all associated keyids.
func (m *Manager) RemoveSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, exists := m.sessions[sessionID]; exists {
		sess.Close()
		delete(m.sessions, sessionID)
	}
	if set, ok := m.keyIDsBySID[sessionID]; ok {
		for kid := range set {
			delete(m.byKeyID, kid)
			if m.nonceCache != nil {
				m.nonceCache.DeleteKey(kid)
			}
		}
		delete(m.keyIDsBySID, sessionID)
	}
}

// ListSessions returns all active session IDs.
func (m *Manager) ListSessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sessionIDs []string
	for id := range m.sessions {
		sessionIDs = append(sessionIDs, id)
	}

	return sessionIDs
}

// ReplayGuardSeenOnce returns true if (keyid, nonce) was already seen
// for an ENCRYPTED_MESSAGE, in which case the caller should drop it.
func (m *Manager) ReplayGuardSeenOnce(keyid, nonce string) bool {
	if m.nonceCache == nil {
		return false
	}
	return m.nonceCache.Seen(keyid, nonce)
}

// GetSessionCount returns the number of active sessions.
func (m *Manager) GetSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetSessionStats returns statistics about sessions.
func (m *Manager) GetSessionStats() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Status{TotalSessions: len(m.sessions)}

	for _, sess := range m.sessions {
		if sess.IsExpired() {
			stats.ExpiredSessions++
		} else {
			stats.ActiveSessions++
		}
	}

	return stats
}

// SetDefaultConfig updates the default session configuration.
func (m *Manager) SetDefaultConfig(config Config) {
	m.defaultConfig = config
}

// Close stops the manager and cleans up all sessions and caches.
func (m *Manager) Close() error {
	close(m.stopCleanup)
	if m.cleanupTicker != nil {
		m.cleanupTicker.Stop()
	}
	if m.nonceCache != nil {
		m.nonceCache.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sess := range m.sessions {
		sess.Close()
	}
	m.sessions = make(map[string]*SecureSession)
	m.byKeyID = nil
	m.keyIDsBySID = nil
	return nil
}

func (m *Manager) runCleanup() {
	for {
		select {
		case <-m.cleanupTicker.C:
			m.cleanupExpiredSessions()
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *Manager) cleanupExpiredSessions() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiredIDs []string
	for id, sess := range m.sessions {
		if sess.IsExpired() {
			expiredIDs = append(expiredIDs, id)
		}
	}
	for _, id := range expiredIDs {
		if sess, exists := m.sessions[id]; exists {
			sess.Close()
			delete(m.sessions, id)
		}
		if set, ok := m.keyIDsBySID[id]; ok {
			for kid := range set {
				delete(m.byKeyID, kid)
				if m.nonceCache != nil {
					m.nonceCache.DeleteKey(kid)
				}
			}
			delete(m.keyIDsBySID, id)
		}
	}
}

func withDefaults(c Config) Config {
	if c.MaxAge == 0 {
		c.MaxAge = time.Hour
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 10 * time.Minute
	}
	if c.MaxMessages == 0 {
		c.MaxMessages = 1000
	}
	return c
}
