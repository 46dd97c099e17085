// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package invite

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/meshid/teamauth/connect"
)

func TestGenerateStarterKeysIsDeterministic(t *testing.T) {
	invitee := connect.Invitee{Kind: "DEVICE", Name: "bob::phone"}

	a, err := GenerateStarterKeys(invitee, "correct horse battery staple")
	if err != nil {
		t.Fatalf("generate starter keys: %v", err)
	}
	b, err := GenerateStarterKeys(invitee, "correct horse battery staple")
	if err != nil {
		t.Fatalf("generate starter keys: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("the same (invitee, seed) pair derived two different starter keys")
	}

	other, err := GenerateStarterKeys(connect.Invitee{Kind: "DEVICE", Name: "carol::tablet"}, "correct horse battery staple")
	if err != nil {
		t.Fatalf("generate starter keys: %v", err)
	}
	if bytes.Equal(a, other) {
		t.Fatal("different invitees derived the same starter key from the same seed")
	}
}

func TestSeedNormalizationEquivalence(t *testing.T) {
	invitee := connect.Invitee{Kind: "DEVICE", Name: "bob::phone"}

	cases := []string{"abc def ghi", "abc+def+ghi", "ABC DEF GHI", "Abc+Def+Ghi"}
	var want []byte
	for i, seed := range cases {
		priv, err := GenerateStarterKeys(invitee, seed)
		if err != nil {
			t.Fatalf("generate starter keys for %q: %v", seed, err)
		}
		if i == 0 {
			want = priv
			continue
		}
		if !bytes.Equal(priv, want) {
			t.Fatalf("seed %q derived a different key than %q", seed, cases[0])
		}
	}
}

func TestGenerateProofVerifyRoundTrip(t *testing.T) {
	invitee := connect.Invitee{Kind: "DEVICE", Name: "bob::phone"}
	seed := "a seed only the inviter and invitee know"

	proof, err := GenerateProof(seed, invitee)
	if err != nil {
		t.Fatalf("generate proof: %v", err)
	}
	if err := VerifyProof(seed, proof); err != nil {
		t.Fatalf("verify proof: %v", err)
	}
}

func TestVerifyProofRejectsTamperedSignature(t *testing.T) {
	invitee := connect.Invitee{Kind: "DEVICE", Name: "bob::phone"}
	seed := "a seed only the inviter and invitee know"

	proof, err := GenerateProof(seed, invitee)
	if err != nil {
		t.Fatalf("generate proof: %v", err)
	}
	proof.Signature[0] ^= 0xFF

	if err := VerifyProof(seed, proof); err == nil {
		t.Fatal("expected verification to fail for a tampered signature")
	}
}

func TestVerifyProofRejectsWrongSeed(t *testing.T) {
	invitee := connect.Invitee{Kind: "DEVICE", Name: "bob::phone"}

	proof, err := GenerateProof("the real seed", invitee)
	if err != nil {
		t.Fatalf("generate proof: %v", err)
	}
	if err := VerifyProof("a completely different seed", proof); err == nil {
		t.Fatal("expected verification to fail when checked against the wrong seed")
	}
}

func TestDerivePublicKeyMatchesStarterKeypair(t *testing.T) {
	invitee := connect.Invitee{Kind: "DEVICE", Name: "bob::phone"}
	seed := "correct horse battery staple"

	priv, err := GenerateStarterKeys(invitee, seed)
	if err != nil {
		t.Fatalf("generate starter keys: %v", err)
	}
	pub, err := DerivePublicKey(invitee, seed)
	if err != nil {
		t.Fatalf("derive public key: %v", err)
	}
	if !bytes.Equal(pub, priv.Public().(ed25519.PublicKey)) {
		t.Fatal("DerivePublicKey did not match the starter keypair's own public key")
	}
}
