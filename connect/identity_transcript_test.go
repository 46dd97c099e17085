// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package connect

import (
	"bytes"
	"testing"

	"github.com/meshid/teamauth/identity"
)

// TestIdentityTranscriptMatchesIdentityPackage pins connect's
// duplicated identityTranscript to produce byte-identical output to
// package identity's Transcript, since connect keeps its own copy of
// the format (see the comment on identityTranscript).
func TestIdentityTranscriptMatchesIdentityPackage(t *testing.T) {
	ch := Challenge{
		Claim: IdentityClaim{Kind: "DEVICE", Name: "alice::laptop"},
		Nonce: bytes.Repeat([]byte{0x42}, 32),
	}
	idCh := identity.Challenge{
		Claim: identity.Claim{Kind: ch.Claim.Kind, Name: ch.Claim.Name},
		Nonce: ch.Nonce,
	}

	got := identityTranscript(&ch)
	want := identity.Transcript(idCh)

	if !bytes.Equal(got, want) {
		t.Fatalf("transcripts diverged:\n connect: %x\nidentity: %x", got, want)
	}
}

func TestIdentityTranscriptNilChallenge(t *testing.T) {
	if out := identityTranscript(nil); out != nil {
		t.Fatalf("expected nil transcript for nil challenge, got %x", out)
	}
}
