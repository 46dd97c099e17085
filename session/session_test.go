// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package session

import (
	"bytes"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/chacha20poly1305"
)

func b(n int) []byte {
	out := make([]byte, n)
	_, _ = rand.Read(out)
	return out
}

func TestDeriveSessionKeySymmetric(t *testing.T) {
	localSeed, remoteSeed := b(32), b(32)

	keyLocal, err := DeriveSessionKey(localSeed, remoteSeed)
	require.NoError(t, err)
	keyRemote, err := DeriveSessionKey(remoteSeed, localSeed)
	require.NoError(t, err)

	require.Equal(t, keyLocal, keyRemote)
	require.Len(t, keyLocal, SeedSize)
}

func TestDeriveSessionKeyRejectsWrongSize(t *testing.T) {
	_, err := DeriveSessionKey(b(16), b(32))
	require.Error(t, err)
	_, err = DeriveSessionKey(b(32), b(16))
	require.Error(t, err)
}

func TestCanonicalOrderSortsLexicographically(t *testing.T) {
	a := []byte{0x01, 0xFF}
	bb := []byte{0x02, 0x00}
	lo, hi := canonicalOrder(a, bb)
	require.True(t, bytes.Compare(lo, hi) < 0)
	require.Equal(t, a, lo)
	require.Equal(t, bb, hi)

	lo2, hi2 := canonicalOrder(bb, a)
	require.Equal(t, lo, lo2)
	require.Equal(t, hi, hi2)
}

func TestSecureSessionLifecycle(t *testing.T) {
	config := Config{
		MaxAge:      100 * time.Millisecond,
		IdleTimeout: 50 * time.Millisecond,
		MaxMessages: 2,
	}
	key := b(SeedSize)

	sess, err := NewSecureSession("sess1", key, config)
	require.NoError(t, err)

	t.Run("Encrypt and decrypt roundtrip", func(t *testing.T) {
		require.Equal(t, "sess1", sess.ID())
		require.False(t, sess.IsExpired())

		plaintext := []byte("hello")
		ct, err := sess.Encrypt(plaintext)
		require.NoError(t, err)
		require.NotEqual(t, plaintext, ct)

		pt, err := sess.Decrypt(ct)
		require.NoError(t, err)
		require.Equal(t, plaintext, pt)

		require.Equal(t, 2, sess.MessageCount())
	})

	t.Run("Decrypt with tampered data fails", func(t *testing.T) {
		sess, _ := NewSecureSession("sess-tamper", key, config)
		plaintext := []byte("another test")
		ct, err := sess.Encrypt(plaintext)
		require.NoError(t, err)

		ct[len(ct)/2] ^= 0xFF

		_, err = sess.Decrypt(ct)
		require.Error(t, err)
	})

	t.Run("Decrypt with too-short data fails", func(t *testing.T) {
		sess, _ := NewSecureSession("sess-short", key, config)
		_, err := sess.Decrypt([]byte("short"))
		require.Error(t, err)
	})

	t.Run("Message count expiration", func(t *testing.T) {
		sess, _ := NewSecureSession("sess2", key, config)

		_, _ = sess.Encrypt([]byte("m1"))
		_, _ = sess.Encrypt([]byte("m2"))

		_, err := sess.Encrypt([]byte("m3"))
		require.Error(t, err)
		require.True(t, sess.IsExpired())
	})

	t.Run("Idle timeout expiration", func(t *testing.T) {
		sess, _ := NewSecureSession("sess3", key, config)

		_, _ = sess.Encrypt([]byte("hi"))
		time.Sleep(config.IdleTimeout + 10*time.Millisecond)

		_, err := sess.Encrypt([]byte("hi2"))
		require.Error(t, err)
		require.True(t, sess.IsExpired())
	})

	t.Run("Absolute timeout expiration", func(t *testing.T) {
		sess, _ := NewSecureSession("sess4", key, config)
		time.Sleep(config.MaxAge + 10*time.Millisecond)
		_, err := sess.Encrypt([]byte("late"))
		require.Error(t, err)
		require.True(t, sess.IsExpired())
	})

	t.Run("Close makes the session unusable", func(t *testing.T) {
		sess, _ := NewSecureSession("sess5", key, config)
		_ = sess.Close()

		_, err := sess.Encrypt([]byte("hi"))
		require.Error(t, err)
	})
}

func TestSecureSessionCrossEncryptWithDerivedKey(t *testing.T) {
	seedA, seedB := b(32), b(32)

	keyA, err := DeriveSessionKey(seedA, seedB)
	require.NoError(t, err)
	keyB, err := DeriveSessionKey(seedB, seedA)
	require.NoError(t, err)
	require.Equal(t, keyA, keyB)

	cfg := Config{MaxAge: time.Second, IdleTimeout: time.Second, MaxMessages: 100}
	sessA, err := NewSecureSession("conn-1", keyA, cfg)
	require.NoError(t, err)
	sessB, err := NewSecureSession("conn-1", keyB, cfg)
	require.NoError(t, err)

	msg1 := []byte("hello from A")
	ct1, err := sessA.Encrypt(msg1)
	require.NoError(t, err)
	pt1, err := sessB.Decrypt(ct1)
	require.NoError(t, err)
	require.Equal(t, msg1, pt1)

	msg2 := []byte("hello from B")
	ct2, err := sessB.Encrypt(msg2)
	require.NoError(t, err)
	pt2, err := sessA.Decrypt(ct2)
	require.NoError(t, err)
	require.Equal(t, msg2, pt2)
}

func TestSecureSessionNonceRandomness(t *testing.T) {
	cfg := Config{MaxAge: time.Second, IdleTimeout: time.Second, MaxMessages: 100}
	s, err := NewSecureSession("id", b(SeedSize), cfg)
	require.NoError(t, err)

	pt := []byte("same-plaintext")
	ct1, err := s.Encrypt(pt)
	require.NoError(t, err)
	ct2, err := s.Encrypt(pt)
	require.NoError(t, err)

	require.NotEqual(t, ct1, ct2)
	require.True(t, len(ct1) > chacha20poly1305.NonceSize)
	require.True(t, len(ct2) > chacha20poly1305.NonceSize)

	nonce1 := ct1[:chacha20poly1305.NonceSize]
	nonce2 := ct2[:chacha20poly1305.NonceSize]
	require.NotEqual(t, nonce1, nonce2)
}

func TestSecureSessionDecryptFailsWithDifferentKeys(t *testing.T) {
	cfg := Config{MaxAge: time.Second, IdleTimeout: time.Second, MaxMessages: 100}
	sA, err := NewSecureSession("a", b(SeedSize), cfg)
	require.NoError(t, err)
	sC, err := NewSecureSession("c", b(SeedSize), cfg)
	require.NoError(t, err)

	ct, err := sA.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = sC.Decrypt(ct)
	require.Error(t, err)
}
