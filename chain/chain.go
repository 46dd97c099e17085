// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package chain is the reference implementation of the external Team
// collaborator (spec.md §6): a hash-linked, append-only log of signed
// membership operations. It is a concrete, swappable implementation of
// connect.Team — nothing under package connect imports this package.
package chain

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/meshid/teamauth/connect"
)

// device is one device belonging to a member.
type device struct {
	Name       string
	EncryptKey []byte
	SigningKey []byte
	Removed    bool
}

// member is one team member and its devices.
type member struct {
	UserName string
	IsAdmin  bool
	Removed  bool
	Devices  map[string]*device
}

// invitation is a pending admission slot opened by an existing member.
type invitation struct {
	Invitee connect.Invitee
	Seed    string
	Revoked bool
}

// Chain is a hash-linked signature chain recording team membership
// operations (genesis, admit, join, remove). It satisfies
// connect.Team structurally.
type Chain struct {
	mu sync.RWMutex

	root  string
	links []connect.Link

	members     map[string]*member
	invitations map[string]*invitation // keyed by invitee name

	listeners []func(head string)

	verify func(claim connect.Challenge, proof []byte) bool
}

// New creates a brand-new team chain with a single genesis admin
// member.
func New(adminUserName, adminDeviceName string, signingKey, encryptKey []byte) *Chain {
	c := &Chain{
		members:     make(map[string]*member),
		invitations: make(map[string]*invitation),
	}
	admin := &member{
		UserName: adminUserName,
		IsAdmin:  true,
		Devices: map[string]*device{
			adminDeviceName: {Name: adminDeviceName, SigningKey: signingKey, EncryptKey: encryptKey},
		},
	}
	c.members[adminUserName] = admin
	genesis := connect.Link{Seq: 0, Prev: "", Body: []byte("GENESIS:" + adminUserName)}
	genesis.Hash = hashLink(genesis)
	c.root = genesis.Hash
	c.links = []connect.Link{genesis}
	c.verify = c.VerifyDeviceSignature
	return c
}

// init wires a blank Chain as connect's TeamFactory, mirroring package
// invite's ProofProvider wiring: an invitee's Context starts with no
// Team at all, so onAcceptInvitation needs some concrete Team to call
// Load on once the inviter's ACCEPT_INVITATION chain blob arrives.
func init() {
	connect.TeamFactory = func() connect.Team { return &Chain{} }
}

func hashLink(l connect.Link) string {
	h := sha256.New()
	h.Write([]byte(l.Prev))
	h.Write(l.Body)
	h.Write(l.Signature)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Chain) appendLocked(body []byte, sig []byte) connect.Link {
	prev := ""
	if n := len(c.links); n > 0 {
		prev = c.links[n-1].Hash
	}
	l := connect.Link{Seq: uint64(len(c.links)), Prev: prev, Body: body, Signature: sig}
	l.Hash = hashLink(l)
	c.links = append(c.links, l)
	return l
}

func (c *Chain) notifyLocked() {
	head := c.links[len(c.links)-1].Hash
	listeners := append([]func(string){}, c.listeners...)
	go func() {
		for _, fn := range listeners {
			fn(head)
		}
	}()
}

// Invite opens an admission slot for invitee bound to seed. It is a
// chain-specific operation beyond connect.Team's method set, called
// directly by the inviter's host application (never by package
// connect, which only consumes the Team interface).
func (c *Chain) Invite(invitee connect.Invitee, seed string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invitations[invitee.Name] = &invitation{Invitee: invitee, Seed: seed}
}

// RevokeInvitation marks a pending invitation as unusable
// (spec.md §8, scenario 4).
func (c *Chain) RevokeInvitation(inviteeName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inv, ok := c.invitations[inviteeName]; ok {
		inv.Revoked = true
	}
}

// RegisterDeviceKeys attaches a member/device's confirmed public keys
// once identity has been proven over the wire, so future connections
// can resolve Members() with usable key material.
func (c *Chain) RegisterDeviceKeys(userName, deviceName string, signingKey, encryptKey []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.members[userName]
	if !ok {
		m = &member{UserName: userName, Devices: make(map[string]*device)}
		c.members[userName] = m
	}
	m.Devices[deviceName] = &device{Name: deviceName, SigningKey: signingKey, EncryptKey: encryptKey}
}

// SetIdentityVerifier wires the signature-verification callback
// VerifyIdentityProof delegates to; the demo/cmd wiring supplies one
// backed by the crypto package's per-algorithm Verify.
func (c *Chain) SetIdentityVerifier(fn func(challenge connect.Challenge, proof []byte) bool) {
	c.verify = fn
}

// starterKeyDeriver rederives an invitee's starter keypair from the
// (invitee, seed) pair the inviter itself issued. Set by the host
// through SetStarterKeyDeriver, like verifyProofFunc through
// SetStarterKeyVerifier: the chain's own starter-key material doubles as
// the device's ongoing identity key once admitted, so Admit can
// register it without any key bytes crossing the wire in HELLO or
// ACCEPT_INVITATION (spec.md §6 never lists one).
var starterKeyDeriver func(invitee connect.Invitee, seed string) (ed25519.PublicKey, error)

// SetStarterKeyDeriver wires the callback Admit uses to recover a
// freshly admitted invitee's public key from the invitation it itself
// issued.
func SetStarterKeyDeriver(fn func(invitee connect.Invitee, seed string) (ed25519.PublicKey, error)) {
	starterKeyDeriver = fn
}

// Admit records an invitee's proof on the chain (spec.md §4.E
// "acceptInvitation").
func (c *Chain) Admit(proof connect.ProofOfInvitation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	inv, ok := c.invitations[proof.Invitee.Name]
	if !ok {
		return fmt.Errorf("chain: no invitation for %q", proof.Invitee.Name)
	}
	if inv.Revoked {
		return fmt.Errorf("chain: invitation for %q was revoked", proof.Invitee.Name)
	}

	body, _ := json.Marshal(proof.Invitee)
	c.appendLocked(body, proof.Signature)

	userName, deviceName := proof.Invitee.Name, "primary"
	if proof.Invitee.Kind == "DEVICE" {
		userName, deviceName = splitClaimName(proof.Invitee.Name)
	}
	m, ok := c.members[userName]
	if !ok {
		m = &member{UserName: userName, Devices: make(map[string]*device)}
		c.members[userName] = m
	}
	if starterKeyDeriver != nil {
		if pub, err := starterKeyDeriver(proof.Invitee, inv.Seed); err == nil {
			m.Devices[deviceName] = &device{Name: deviceName, SigningKey: pub, EncryptKey: pub}
		}
	}

	delete(c.invitations, proof.Invitee.Name)
	c.notifyLocked()
	return nil
}

// Join rebuilds local identity from a freshly admitted chain
// (spec.md §4.E "joinTeam").
func (c *Chain) Join(myProof connect.ProofOfInvitation, invitationSeed string) (string, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, l := range c.links {
		var invitee connect.Invitee
		if json.Unmarshal(l.Body, &invitee) == nil && invitee == myProof.Invitee && sigEqual(l.Signature, myProof.Signature) {
			if invitee.Kind == "MEMBER" {
				return invitee.Name, "primary", nil
			}
			userName, deviceName := splitClaimName(invitee.Name)
			return userName, deviceName, nil
		}
	}
	return "", "", fmt.Errorf("chain: our invitation is not present in the joined chain")
}

func sigEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Save serializes the chain to an opaque wire blob.
func (c *Chain) Save() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(snapshot{Root: c.root, Links: c.links, Members: c.members})
}

type snapshot struct {
	Root    string             `json:"root"`
	Links   []connect.Link     `json:"links"`
	Members map[string]*member `json:"members"`
}

// Load rebuilds a Team from a previously-saved blob.
func (c *Chain) Load(source []byte) (connect.Team, error) {
	var snap snapshot
	if err := json.Unmarshal(source, &snap); err != nil {
		return nil, fmt.Errorf("chain: unmarshal snapshot: %w", err)
	}
	loaded := &Chain{
		root:        snap.Root,
		links:       snap.Links,
		members:     snap.Members,
		invitations: make(map[string]*invitation),
	}
	if loaded.members == nil {
		loaded.members = make(map[string]*member)
	}
	loaded.verify = loaded.VerifyDeviceSignature
	return loaded, nil
}

// GetMissingLinks computes the delta of links this side holds beyond
// what payload.Hashes already lists.
func (c *Chain) GetMissingLinks(payload connect.UpdatePayload) ([]connect.Link, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	known := make(map[string]struct{}, len(payload.Hashes))
	for _, h := range payload.Hashes {
		known[h] = struct{}{}
	}
	var missing []connect.Link
	for _, l := range c.links {
		if _, ok := known[l.Hash]; !ok {
			missing = append(missing, l)
		}
	}
	return missing, nil
}

// ReceiveMissingLinks folds peer-supplied links into the local chain,
// appending any not already present in arrival order.
func (c *Chain) ReceiveMissingLinks(links []connect.Link) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	have := make(map[string]struct{}, len(c.links))
	for _, l := range c.links {
		have[l.Hash] = struct{}{}
	}
	changed := false
	for _, l := range links {
		if _, ok := have[l.Hash]; ok {
			continue
		}
		c.links = append(c.links, l)
		have[l.Hash] = struct{}{}
		changed = true

		var invitee connect.Invitee
		if json.Unmarshal(l.Body, &invitee) == nil && (invitee.Kind == "MEMBER" || invitee.Kind == "DEVICE") {
			userName := invitee.Name
			if invitee.Kind == "DEVICE" {
				userName, _ = splitClaimName(invitee.Name)
			}
			if _, ok := c.members[userName]; !ok {
				c.members[userName] = &member{UserName: userName, Devices: make(map[string]*device)}
			}
		}
	}
	if changed {
		c.notifyLocked()
	}
	return nil
}

// ValidateInvitation verifies a proof against a still-open,
// non-revoked invitation for the claimed invitee name (spec.md §4.B,
// guard invitationProofIsValid).
func (c *Chain) ValidateInvitation(proof connect.ProofOfInvitation) connect.ValidationResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	inv, ok := c.invitations[proof.Invitee.Name]
	if !ok {
		return connect.ValidationResult{IsValid: false, Error: fmt.Errorf("INVITATION_INVALID: no invitation issued to %q", proof.Invitee.Name)}
	}
	if inv.Revoked {
		return connect.ValidationResult{IsValid: false, Error: fmt.Errorf("INVITATION_REVOKED: invitation for %q was revoked", proof.Invitee.Name)}
	}
	if inv.Invitee.Name != proof.Invitee.Name {
		return connect.ValidationResult{IsValid: false, Error: fmt.Errorf("user names don't match: issued to %q, presented %q", inv.Invitee.Name, proof.Invitee.Name)}
	}
	if err := verifyStarterSignature(inv.Seed, proof); err != nil {
		return connect.ValidationResult{IsValid: false, Error: err}
	}
	return connect.ValidationResult{IsValid: true}
}

// verifyProofFunc is set by the host through SetStarterKeyVerifier, so
// chain never imports package invite directly.
var verifyProofFunc func(seed string, proof connect.ProofOfInvitation) error

// SetStarterKeyVerifier wires the starter-key signature verification
// chain.ValidateInvitation delegates to.
func SetStarterKeyVerifier(fn func(seed string, proof connect.ProofOfInvitation) error) {
	verifyProofFunc = fn
}

func verifyStarterSignature(seed string, proof connect.ProofOfInvitation) error {
	if verifyProofFunc == nil {
		return fmt.Errorf("chain: no starter-key verifier configured")
	}
	return verifyProofFunc(seed, proof)
}

// LookupIdentity resolves claim against known members/devices
// (spec.md §4.E "confirmIdentityExists").
func (c *Chain) LookupIdentity(claim connect.IdentityClaim) (connect.LookupOutcome, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	userName, deviceName := splitClaimName(claim.Name)
	m, ok := c.members[userName]
	if !ok {
		return connect.MemberUnknown, nil
	}
	if m.Removed {
		return connect.MemberRemoved, nil
	}
	d, ok := m.Devices[deviceName]
	if !ok {
		return connect.DeviceUnknown, nil
	}
	if d.Removed {
		return connect.DeviceRemoved, nil
	}
	return connect.ValidDevice, nil
}

func splitClaimName(name string) (user, dev string) {
	for i := 0; i+1 < len(name); i++ {
		if name[i] == ':' && name[i+1] == ':' {
			return name[:i], name[i+2:]
		}
	}
	return name, name
}

// VerifyIdentityProof delegates to the wired signature verifier,
// binding the proof to the claimed device's public key on the chain.
func (c *Chain) VerifyIdentityProof(challenge connect.Challenge, proof []byte) bool {
	if c.verify == nil {
		return false
	}
	return c.verify(challenge, proof)
}

// VerifyDeviceSignature is the default identity-proof verifier: it
// resolves claim to a registered device's Ed25519 signing key and
// checks proof against the same transcript layout
// connect.identityTranscript/identity.Transcript compute (claim.Kind +
// "::" + claim.Name + nonce). Hosts normally wire this in via
// SetIdentityVerifier rather than calling it directly.
func (c *Chain) VerifyDeviceSignature(challenge connect.Challenge, proof []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	userName, deviceName := splitClaimName(challenge.Claim.Name)
	m, ok := c.members[userName]
	if !ok || m.Removed {
		return false
	}
	d, ok := m.Devices[deviceName]
	if !ok || d.Removed || len(d.SigningKey) != ed25519.PublicKeySize {
		return false
	}

	transcript := make([]byte, 0, len(challenge.Claim.Kind)+len(challenge.Claim.Name)+len(challenge.Nonce)+2)
	transcript = append(transcript, []byte(challenge.Claim.Kind)...)
	transcript = append(transcript, ':', ':')
	transcript = append(transcript, []byte(challenge.Claim.Name)...)
	transcript = append(transcript, challenge.Nonce...)

	return ed25519.Verify(ed25519.PublicKey(d.SigningKey), transcript, proof)
}

// Has reports whether userName is still a non-removed member.
func (c *Chain) Has(userName string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.members[userName]
	return ok && !m.Removed
}

// Members resolves a user's current member record.
func (c *Chain) Members(userName string) (connect.Member, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.members[userName]
	if !ok {
		return connect.Member{}, false
	}
	var signKey, encKey []byte
	deviceName := ""
	for name, d := range m.Devices {
		if d.Removed {
			continue
		}
		deviceName = name
		signKey, encKey = d.SigningKey, d.EncryptKey
		break
	}
	return connect.Member{
		UserName:   m.UserName,
		DeviceName: deviceName,
		IsAdmin:    m.IsAdmin,
		EncryptKey: anyOrNil(encKey),
		SigningKey: anyOrNil(signKey),
	}, true
}

// anyOrNil wraps stored key bytes as ed25519.PublicKey (not a bare
// []byte) so crypto/keys's Ed25519-to-X25519 box conversion, which
// type-asserts its crypto.PublicKey argument, recognizes it.
func anyOrNil(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return ed25519.PublicKey(b)
}

// Remove marks a member removed, used by tests exercising
// spec.md §8 scenario 6 (peer removed mid-sync).
func (c *Chain) Remove(userName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.members[userName]; ok {
		m.Removed = true
		body, _ := json.Marshal(map[string]string{"removed": userName})
		c.appendLocked(body, nil)
		c.notifyLocked()
	}
}

// OnUpdated registers a listener invoked on local or received chain
// mutation, returning an unsubscribe function.
func (c *Chain) OnUpdated(fn func(head string)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
	idx := len(c.listeners) - 1
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < len(c.listeners) {
			c.listeners[idx] = func(string) {}
		}
	}
}

// Head returns the most-recent link hash.
func (c *Chain) Head() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.links) == 0 {
		return ""
	}
	return c.links[len(c.links)-1].Hash
}

// Root returns the genesis link hash.
func (c *Chain) Root() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.root
}

// Links returns every link currently held, oldest first.
func (c *Chain) Links() []connect.Link {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]connect.Link, len(c.links))
	copy(out, c.links)
	return out
}
