// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package connect

import "crypto"

// Package connect owns the per-peer connection state machine: the
// ordered-delivery buffer, the hierarchical protocol FSM, the
// connection driver, and the on-wire message codec. It reaches chain,
// crypto and transport only through the three external collaborator
// interfaces declared below (using the standard library's crypto
// package for its PublicKey/PrivateKey marker types), never through a
// concrete chain/crypto/transport package; besides the standard
// library it imports only this module's teamauth errors, logger,
// metrics and session packages.

// IdentityClaim is what a peer declares itself to be on HELLO.
type IdentityClaim struct {
	Kind string `json:"kind"` // "DEVICE"
	Name string `json:"name"` // "user::device"
}

// Invitee identifies a prospective member or device joining via
// invitation.
type Invitee struct {
	Kind string `json:"kind"` // "MEMBER" | "DEVICE"
	Name string `json:"name"`
}

// ProofOfInvitation binds an invitee identity to an invitation seed.
type ProofOfInvitation struct {
	Invitee   Invitee `json:"invitee"`
	Signature []byte  `json:"signature"`
}

// Challenge is issued by the verifying side of an identity handshake.
type Challenge struct {
	Claim IdentityClaim `json:"claim"`
	Nonce []byte        `json:"nonce"`
}

// ValidationResult is the outcome of Team.ValidateInvitation.
type ValidationResult struct {
	IsValid bool
	Error   error
}

// Link is one entry of the team's hash-linked signature chain.
type Link struct {
	Seq       uint64 `json:"seq"`
	Prev      string `json:"prev"`
	Hash      string `json:"hash"`
	Signature []byte `json:"signature"`
	Body      []byte `json:"body"`
}

// Member is a resolved peer record once identity is confirmed.
type Member struct {
	UserName   string
	DeviceName string
	IsAdmin    bool
	EncryptKey crypto.PublicKey // box-encryption public key (peer.keys.encryption)
	SigningKey crypto.PublicKey // signature-verification public key
}

// Team is the external signature-chain collaborator. spec.md §6
// describes it as "admit, join, save, load, getMissingLinks,
// receiveMissingLinks, validateInvitation, lookupIdentity,
// verifyIdentityProof, has, members, addListener('updated'),
// chain.{root,head,links}". The chain package is a concrete,
// swappable reference implementation of this interface.
type Team interface {
	// Admit records an invitee's proof on the chain (inviter side).
	Admit(proof ProofOfInvitation) error
	// Join rebuilds local identity from a freshly admitted chain
	// (invitee side), returning the user and device names to
	// install into the connection context.
	Join(myProof ProofOfInvitation, invitationSeed string) (user, device string, err error)

	// Save serializes the chain to an opaque wire blob.
	Save() ([]byte, error)
	// Load rebuilds a Team from a previously-saved blob.
	Load(source []byte) (Team, error)

	GetMissingLinks(payload UpdatePayload) ([]Link, error)
	ReceiveMissingLinks(links []Link) error

	ValidateInvitation(proof ProofOfInvitation) ValidationResult
	LookupIdentity(claim IdentityClaim) (LookupOutcome, error)
	VerifyIdentityProof(challenge Challenge, proof []byte) bool

	Has(userName string) bool
	Members(userName string) (Member, bool)

	// OnUpdated registers a listener invoked whenever the chain
	// mutates locally or via ReceiveMissingLinks; it returns an
	// unsubscribe function (Go's answer to addListener/removeListener).
	OnUpdated(fn func(head string)) (unsubscribe func())

	Head() string
	Root() string
	Links() []Link
}

// LookupOutcome is the result of Team.LookupIdentity.
type LookupOutcome int

const (
	ValidDevice LookupOutcome = iota
	MemberUnknown
	MemberRemoved
	DeviceUnknown
	DeviceRemoved
)

// UpdatePayload is the body of an UPDATE wire message, also used as
// the argument to Team.GetMissingLinks.
type UpdatePayload struct {
	Root   string   `json:"root"`
	Head   string   `json:"head"`
	Hashes []string `json:"hashes"`
}

// KeyPair is the identity keypair shape the driver needs from the
// local device/user and from resolved peer records: sign outgoing
// handshake material, verify what comes back. It is declared here
// (rather than imported from package crypto) so connect never takes a
// compile-time dependency on a concrete crypto implementation;
// crypto.KeyPair satisfies it structurally.
type KeyPair interface {
	PublicKey() crypto.PublicKey
	PrivateKey() crypto.PrivateKey
	Sign(message []byte) ([]byte, error)
	Verify(message, signature []byte) error
	ID() string
}

// Crypto is the external cryptography collaborator: random bytes,
// authenticated asymmetric "box" encryption, and symmetric AEAD.
// Sign/Verify are per-key operations performed directly through the
// device/user KeyPair held in the connection Context, matching how
// spec.md's actions describe signing ("sign received challenge with
// device key") rather than routing through a keyless crypto facade.
// The crypto package is a concrete reference implementation of this
// interface.
type Crypto interface {
	Random(n int) ([]byte, error)

	SealBox(peerPublicKey crypto.PublicKey, plaintext []byte) ([]byte, error)
	OpenBox(privateKey crypto.PrivateKey, packet []byte) ([]byte, error)

	SealSymmetric(key, plaintext []byte) ([]byte, error)
	OpenSymmetric(key, sealed []byte) ([]byte, error)
}

// Transport is the external duplex channel collaborator. The host
// supplies SendMessage; the host pushes inbound bytes into the
// connection driver's Deliver method (not part of this interface —
// Deliver is a connect.Connection method, matching spec.md §6's
// "the host pushes inbound via deliver(msg)").
type Transport interface {
	SendMessage(raw []byte) error
}
