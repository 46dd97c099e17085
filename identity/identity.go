// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package identity issues nonce challenges and produces the
// signatures that answer them (spec.md §4.C); verifying them is left
// to the Team. It operates on plain byte transcripts rather than
// connect's types so it has no import-cycle dependency on package
// connect; connect's driver builds the same transcript itself.
package identity

import (
	"crypto/rand"
	"fmt"
)

// NonceSize is the width of a challenge nonce (256 bits, spec.md §4.C).
const NonceSize = 32

// Claim is the minimal identity assertion a challenge is issued for.
type Claim struct {
	Kind string
	Name string
}

// Challenge is a nonce issued to a peer claiming Claim.
type Challenge struct {
	Claim Claim
	Nonce []byte
}

// Signer signs an arbitrary message with the local identity key.
type Signer interface {
	Sign(message []byte) ([]byte, error)
}

// Verifier verifies a signature produced by Signer.
type Verifier interface {
	Verify(message, signature []byte) error
}

// NewChallenge issues a fresh 256-bit-nonce challenge for claim.
func NewChallenge(claim Claim) (Challenge, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Challenge{}, fmt.Errorf("identity: generate nonce: %w", err)
	}
	return Challenge{Claim: claim, Nonce: nonce}, nil
}

// Transcript is the canonical byte sequence a challenge's proof is
// computed over.
func Transcript(ch Challenge) []byte {
	out := make([]byte, 0, len(ch.Claim.Kind)+len(ch.Claim.Name)+NonceSize+2)
	out = append(out, []byte(ch.Claim.Kind)...)
	out = append(out, ':', ':')
	out = append(out, []byte(ch.Claim.Name)...)
	out = append(out, ch.Nonce...)
	return out
}

// Prove signs challenge's transcript with the local device key.
// Verification is delegated to the Team collaborator (it binds the
// signature to the claimed device's public key on the chain), so
// there is no corresponding Verify here — only the transcript used by
// both sides must agree.
func Prove(ch Challenge, signer Signer) ([]byte, error) {
	sig, err := signer.Sign(Transcript(ch))
	if err != nil {
		return nil, fmt.Errorf("identity: sign challenge: %w", err)
	}
	return sig, nil
}
