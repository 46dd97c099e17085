// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package identity

import (
	"bytes"
	"crypto/ed25519"
	"testing"
)

type ed25519Signer struct {
	priv ed25519.PrivateKey
}

func (s ed25519Signer) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, message), nil
}

func TestNewChallengeNonceIsUniqueAndSized(t *testing.T) {
	claim := Claim{Kind: "DEVICE", Name: "alice::laptop"}

	a, err := NewChallenge(claim)
	if err != nil {
		t.Fatalf("new challenge: %v", err)
	}
	b, err := NewChallenge(claim)
	if err != nil {
		t.Fatalf("new challenge: %v", err)
	}

	if len(a.Nonce) != NonceSize || len(b.Nonce) != NonceSize {
		t.Fatalf("expected %d-byte nonces, got %d and %d", NonceSize, len(a.Nonce), len(b.Nonce))
	}
	if bytes.Equal(a.Nonce, b.Nonce) {
		t.Fatal("two freshly issued challenges produced the same nonce")
	}
}

func TestTranscriptIsDeterministicAndBindsEveryField(t *testing.T) {
	base := Challenge{Claim: Claim{Kind: "DEVICE", Name: "alice::laptop"}, Nonce: bytes.Repeat([]byte{0x7}, NonceSize)}

	if !bytes.Equal(Transcript(base), Transcript(base)) {
		t.Fatal("transcript is not deterministic for identical input")
	}

	differentName := base
	differentName.Claim.Name = "alice::phone"
	if bytes.Equal(Transcript(base), Transcript(differentName)) {
		t.Fatal("transcript did not change when the claimed name changed")
	}

	differentNonce := base
	differentNonce.Nonce = bytes.Repeat([]byte{0x8}, NonceSize)
	if bytes.Equal(Transcript(base), Transcript(differentNonce)) {
		t.Fatal("transcript did not change when the nonce changed")
	}
}

func TestProveVerifyRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	ch, err := NewChallenge(Claim{Kind: "DEVICE", Name: "alice::laptop"})
	if err != nil {
		t.Fatalf("new challenge: %v", err)
	}

	sig, err := Prove(ch, ed25519Signer{priv: priv})
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if !ed25519.Verify(pub, Transcript(ch), sig) {
		t.Fatal("verification failed for a correctly produced proof")
	}

	tampered, err := NewChallenge(ch.Claim)
	if err != nil {
		t.Fatalf("new challenge: %v", err)
	}
	if ed25519.Verify(pub, Transcript(tampered), sig) {
		t.Fatal("proof verified against a different challenge's transcript")
	}
}
