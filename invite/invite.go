// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package invite derives deterministic "starter keys" from a
// human-transcribable invitation seed and builds/verifies the
// proof-of-invitation that binds a prospective member or device to
// that seed (spec.md §4.B). Team-side admission (accept/reject) is
// the Team collaborator's job, not this package's.
package invite

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/meshid/teamauth/connect"
)

// starterKeySalt domain-separates starter-key derivation from any
// other HMAC use of the same seed elsewhere in the system.
const starterKeySalt = "teamauth/invite/starter-key/v1"

// NormalizeSeed lower-cases an invitation seed and treats '+' and
// spaces as equivalent, so "abc def ghi" and "abc+def+ghi" derive
// identical starter keys (spec.md §4.B, scenario 5).
func NormalizeSeed(seed string) string {
	lower := strings.ToLower(seed)
	return strings.ReplaceAll(lower, "+", " ")
}

// GenerateStarterKeys deterministically derives an Ed25519 keypair
// from (invitee, seed) so the inviter can recognize this invitee
// before it has a real identity on the chain.
func GenerateStarterKeys(invitee connect.Invitee, seed string) (ed25519.PrivateKey, error) {
	normalized := NormalizeSeed(seed)

	mac := hmac.New(sha256.New, []byte(starterKeySalt))
	mac.Write([]byte(invitee.Kind))
	mac.Write([]byte{0})
	mac.Write([]byte(invitee.Name))
	mac.Write([]byte{0})
	mac.Write([]byte(normalized))
	seedMaterial := mac.Sum(nil) // 32 bytes, exactly ed25519.SeedSize

	return ed25519.NewKeyFromSeed(seedMaterial), nil
}

// GenerateProof binds invitee to seed by signing the invitee identity
// with the starter keys derived from that seed.
func GenerateProof(seed string, invitee connect.Invitee) (connect.ProofOfInvitation, error) {
	priv, err := GenerateStarterKeys(invitee, seed)
	if err != nil {
		return connect.ProofOfInvitation{}, err
	}
	sig := ed25519.Sign(priv, transcript(invitee))
	return connect.ProofOfInvitation{Invitee: invitee, Signature: sig}, nil
}

// VerifyProof checks that proof.Signature was produced by the starter
// keys for (proof.Invitee, seed). The caller (normally the Team
// implementation's ValidateInvitation) also separately checks for
// unknown/revoked invitations and invitee-name mismatches against the
// invitation it actually issued.
func VerifyProof(seed string, proof connect.ProofOfInvitation) error {
	priv, err := GenerateStarterKeys(proof.Invitee, seed)
	if err != nil {
		return err
	}
	pub := priv.Public().(ed25519.PublicKey)
	if !ed25519.Verify(pub, transcript(proof.Invitee), proof.Signature) {
		return fmt.Errorf("invite: proof signature does not match invitee %q", proof.Invitee.Name)
	}
	return nil
}

// DerivePublicKey returns the starter public key for (invitee, seed),
// letting an inviter that already knows the seed it issued recover an
// admitted invitee's public key without any key bytes crossing the
// wire.
func DerivePublicKey(invitee connect.Invitee, seed string) (ed25519.PublicKey, error) {
	priv, err := GenerateStarterKeys(invitee, seed)
	if err != nil {
		return nil, err
	}
	return priv.Public().(ed25519.PublicKey), nil
}

func transcript(invitee connect.Invitee) []byte {
	return []byte(invitee.Kind + "::" + invitee.Name)
}

// init wires this package's proof generation into every connect.Context
// that is joining via invitation, so the driver never imports package
// invite directly.
func init() {
	connect.ProofProvider = func(ctx *connect.Context) (connect.ProofOfInvitation, error) {
		invitee := ctx.Invitee()
		if invitee == nil {
			return connect.ProofOfInvitation{}, fmt.Errorf("invite: context has no invitee")
		}
		return GenerateProof(ctx.InvitationSeed(), *invitee)
	}
}
