// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package session

import (
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func rb(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}

func TestManager_CreateGetRemove(t *testing.T) {
	mgr := NewManager()
	defer mgr.Close()

	key := make([]byte, SeedSize)
	_, err := rand.Read(key)
	require.NoError(t, err)

	t.Run("Create and retrieve session", func(t *testing.T) {
		sess, err := mgr.CreateSession("id1", key)
		require.NoError(t, err)
		require.NotNil(t, sess)

		got, exists := mgr.GetSession("id1")
		require.True(t, exists)
		require.Equal(t, sess.ID(), got.ID())
	})

	t.Run("Remove session", func(t *testing.T) {
		mgr.RemoveSession("id1")
		_, exists := mgr.GetSession("id1")
		require.False(t, exists)
	})
}

// Verifies expiration and cleanup without relying on the background ticker.
// We wait past MaxAge and then call cleanupExpiredSessions() directly.
func TestManager_ExpirationCleanup(t *testing.T) {
	mgr := NewManager()
	defer mgr.Close()

	key := rb(SeedSize)

	cfg := Config{MaxAge: 50 * time.Millisecond, IdleTimeout: 0, MaxMessages: 0}
	sess, err := mgr.CreateSessionWithConfig("exp1", key, cfg)
	require.NoError(t, err)
	require.NotNil(t, sess)

	_, exists := mgr.GetSession("exp1")
	require.True(t, exists)

	time.Sleep(60 * time.Millisecond)

	mgr.cleanupExpiredSessions()

	_, exists = mgr.GetSession("exp1")
	require.False(t, exists)
}

// Lists and stats should reflect active sessions correctly.
func TestManager_ListAndStats(t *testing.T) {
	mgr := NewManager()
	defer mgr.Close()

	key := rb(SeedSize)

	_, _ = mgr.CreateSession("s1", key)
	_, _ = mgr.CreateSession("s2", rb(SeedSize))

	list := mgr.ListSessions()
	require.Len(t, list, 2)

	stats := mgr.GetSessionStats()
	require.Equal(t, 2, stats.TotalSessions)
	require.Equal(t, 2, stats.ActiveSessions)
	require.Equal(t, 0, stats.ExpiredSessions)
}

func TestManager_ExistingSessionCollision(t *testing.T) {
	mgr := NewManager()
	defer mgr.Close()

	key := rb(SeedSize)

	_, err := mgr.CreateSession("dup", key)
	require.NoError(t, err)

	_, err = mgr.CreateSession("dup", key)
	require.Error(t, err, "should not create a new session when the same id exists")
}

func TestManager_EnsureSessionReusesExisting(t *testing.T) {
	mgr := NewManager()
	defer mgr.Close()

	seedA, seedB := rb(32), rb(32)

	s1, existed1, err := mgr.EnsureSession("conn-reuse", seedA, seedB, nil)
	require.NoError(t, err)
	require.False(t, existed1)

	s2, existed2, err := mgr.EnsureSession("conn-reuse", seedB, seedA, nil)
	require.NoError(t, err)
	require.True(t, existed2)
	require.Equal(t, s1.ID(), s2.ID())

	got, ok := mgr.GetSession("conn-reuse")
	require.True(t, ok)
	require.Equal(t, s1.ID(), got.ID())
}

func TestManager_EnsureSessionCustomConfig(t *testing.T) {
	mgr := NewManager()
	defer mgr.Close()

	seedA, seedB := rb(32), rb(32)

	custom := &Config{
		MaxAge:      250 * time.Millisecond,
		IdleTimeout: 120 * time.Millisecond,
		MaxMessages: 7,
	}

	s1, existed, err := mgr.EnsureSession("conn-cfg", seedA, seedB, custom)
	require.NoError(t, err)
	require.False(t, existed)
	require.Equal(t, *custom, s1.Config())

	other := &Config{MaxAge: time.Hour, IdleTimeout: time.Hour, MaxMessages: 999999}
	s2, existed2, err := mgr.EnsureSession("conn-cfg", seedA, seedB, other)
	require.NoError(t, err)
	require.True(t, existed2)
	require.Equal(t, s1.Config(), s2.Config(), "existing session config must be kept")
}

func TestManager_EnsureSessionConcurrency(t *testing.T) {
	mgr := NewManager()
	defer mgr.Close()

	seedA, seedB := rb(32), rb(32)

	var wg sync.WaitGroup
	const N = 16

	type res struct {
		existed bool
		err     error
	}
	results := make([]res, N)

	for i := 0; i < N; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, existed, err := mgr.EnsureSession("conn-concurrent", seedA, seedB, nil)
			results[i] = res{existed: existed, err: err}
		}(i)
	}
	wg.Wait()

	var created, reused int
	for _, r := range results {
		require.NoError(t, r.err)
		if r.existed {
			reused++
		} else {
			created++
		}
	}
	require.Equal(t, 1, created, "only one goroutine should create the session")
	require.Equal(t, N-1, reused, "all other goroutines should reuse it")

	require.Equal(t, 1, mgr.GetSessionCount())
}

func TestManager_EnsureSessionErrorPaths(t *testing.T) {
	mgr := NewManager()
	defer mgr.Close()

	_, _, err := mgr.EnsureSession("bad", rb(16), rb(32), nil)
	require.Error(t, err)
}
