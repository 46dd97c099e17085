// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package chain

import (
	"testing"

	"github.com/meshid/teamauth/connect"
	"github.com/meshid/teamauth/invite"
)

func init() {
	SetStarterKeyVerifier(invite.VerifyProof)
	SetStarterKeyDeriver(invite.DerivePublicKey)
}

func genesisChain(t *testing.T) *Chain {
	t.Helper()
	return New("alice", "laptop", []byte("alice-signing-key-000000000000"), []byte("alice-encrypt-key-000000000000"))
}

func TestAdmitJoinSaveLoadRoundTrip(t *testing.T) {
	admin := genesisChain(t)

	invitee := connect.Invitee{Kind: "DEVICE", Name: "bob::phone"}
	seed := "correct horse battery staple"
	admin.Invite(invitee, seed)

	proof, err := invite.GenerateProof(seed, invitee)
	if err != nil {
		t.Fatalf("generate proof: %v", err)
	}

	result := admin.ValidateInvitation(proof)
	if !result.IsValid {
		t.Fatalf("expected invitation to validate, got error: %v", result.Error)
	}
	if err := admin.Admit(proof); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if !admin.Has("bob") {
		t.Fatal("admitted member is not recognized by Has")
	}

	blob, err := admin.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	var blank Chain
	loadedTeam, err := blank.Load(blob)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	loaded := loadedTeam.(*Chain)

	if loaded.Head() != admin.Head() || loaded.Root() != admin.Root() {
		t.Fatal("loaded chain's root/head diverged from the original")
	}

	userName, deviceName, err := loaded.Join(proof, seed)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if userName != "bob" || deviceName != "phone" {
		t.Fatalf("join resolved (%q, %q), want (\"bob\", \"phone\")", userName, deviceName)
	}

	member, ok := loaded.Members("bob")
	if !ok {
		t.Fatal("expected the admitted member to be resolvable after load")
	}
	if member.EncryptKey == nil || member.SigningKey == nil {
		t.Fatal("admitted member's keys were not recovered from the starter key deriver")
	}
}

func TestRevokedInvitationRejected(t *testing.T) {
	admin := genesisChain(t)
	invitee := connect.Invitee{Kind: "DEVICE", Name: "bob::phone"}
	seed := "a seed"
	admin.Invite(invitee, seed)
	admin.RevokeInvitation(invitee.Name)

	proof, err := invite.GenerateProof(seed, invitee)
	if err != nil {
		t.Fatalf("generate proof: %v", err)
	}
	result := admin.ValidateInvitation(proof)
	if result.IsValid {
		t.Fatal("expected a revoked invitation to be rejected")
	}
	if err := admin.Admit(proof); err == nil {
		t.Fatal("expected Admit to refuse a revoked invitation")
	}
}

func TestMissingLinksReconciliation(t *testing.T) {
	admin := genesisChain(t)
	invitee := connect.Invitee{Kind: "DEVICE", Name: "bob::phone"}
	seed := "a seed"
	admin.Invite(invitee, seed)
	proof, err := invite.GenerateProof(seed, invitee)
	if err != nil {
		t.Fatalf("generate proof: %v", err)
	}

	// A peer that only ever saw the genesis link.
	genesisBlob, err := genesisChain(t).Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	var blank Chain
	behindTeam, err := blank.Load(genesisBlob)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	behind := behindTeam.(*Chain)

	if err := admin.Admit(proof); err != nil {
		t.Fatalf("admit: %v", err)
	}

	payload := connect.UpdatePayload{Root: admin.Root(), Head: behind.Head()}
	for _, l := range behind.Links() {
		payload.Hashes = append(payload.Hashes, l.Hash)
	}

	missing, err := admin.GetMissingLinks(payload)
	if err != nil {
		t.Fatalf("get missing links: %v", err)
	}
	if len(missing) != 1 {
		t.Fatalf("expected exactly 1 missing link (the admit), got %d", len(missing))
	}

	if err := behind.ReceiveMissingLinks(missing); err != nil {
		t.Fatalf("receive missing links: %v", err)
	}
	if behind.Head() != admin.Head() {
		t.Fatal("peer's chain did not converge to the admin's head after reconciliation")
	}
	if !behind.Has("bob") {
		t.Fatal("peer did not pick up the newly admitted member via reconciliation")
	}
}

func TestRemovedMemberDetection(t *testing.T) {
	admin := genesisChain(t)
	invitee := connect.Invitee{Kind: "DEVICE", Name: "bob::phone"}
	seed := "a seed"
	admin.Invite(invitee, seed)
	proof, err := invite.GenerateProof(seed, invitee)
	if err != nil {
		t.Fatalf("generate proof: %v", err)
	}
	if err := admin.Admit(proof); err != nil {
		t.Fatalf("admit: %v", err)
	}

	if !admin.Has("bob") {
		t.Fatal("expected bob to be a recognized member before removal")
	}
	admin.Remove("bob")
	if admin.Has("bob") {
		t.Fatal("expected bob to no longer be recognized after removal")
	}

	outcome, err := admin.LookupIdentity(connect.IdentityClaim{Kind: "DEVICE", Name: "bob::phone"})
	if err != nil {
		t.Fatalf("lookup identity: %v", err)
	}
	if outcome != connect.MemberRemoved {
		t.Fatalf("expected MemberRemoved, got %v", outcome)
	}
}
