// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package connect

import "github.com/meshid/teamauth"

// Context is the per-connection mutable state the FSM's actions read
// and write (spec.md §3). Fields are unexported; every mutation goes
// through an assign* method so the discipline stays uniform (spec.md
// §9's resolved open question: pick one mutation discipline rather
// than mixing direct field writes with assign actions).
type Context struct {
	device KeyPair
	user   *userIdentity

	invitee        *Invitee
	invitationSeed string

	team Team

	theirIdentityClaim *IdentityClaim
	theyHaveInvitation bool
	theirProof         *ProofOfInvitation

	peer *Member

	challenge          *Challenge
	seed               []byte
	theirEncryptedSeed []byte
	sessionKey         []byte

	theirHead string

	err *teamauth.Error
}

// userIdentity is the local user's claimed identity once this side has
// joined a team (absent for an unjoined invitee, spec.md §3).
type userIdentity struct {
	userName   string
	deviceName string
}

// NewContext constructs a fresh Context for a device that has already
// joined a team (the common case: two existing members connecting).
func NewContext(device KeyPair, userName, deviceName string, team Team) *Context {
	return &Context{
		device: device,
		user:   &userIdentity{userName: userName, deviceName: deviceName},
		team:   team,
	}
}

// NewInviteeContext constructs a fresh Context for a device joining via
// invitation: user and team are absent until joinTeam assigns them.
func NewInviteeContext(device KeyPair, invitee Invitee, invitationSeed string) *Context {
	return &Context{
		device:         device,
		invitee:        &invitee,
		invitationSeed: invitationSeed,
	}
}

func (c *Context) assignTeam(t Team) { c.team = t }

func (c *Context) assignUser(userName, deviceName string) {
	c.user = &userIdentity{userName: userName, deviceName: deviceName}
}

func (c *Context) assignTheirIdentityClaim(claim IdentityClaim) { c.theirIdentityClaim = &claim }

func (c *Context) assignTheirInvitation(have bool, proof *ProofOfInvitation) {
	c.theyHaveInvitation = have
	c.theirProof = proof
}

func (c *Context) assignPeer(m *Member)              { c.peer = m }
func (c *Context) assignChallenge(ch Challenge)       { c.challenge = &ch }
func (c *Context) assignSeed(seed []byte)             { c.seed = seed }
func (c *Context) assignTheirEncryptedSeed(ct []byte) { c.theirEncryptedSeed = ct }
func (c *Context) assignSessionKey(key []byte)        { c.sessionKey = key }
func (c *Context) assignTheirHead(head string)        { c.theirHead = head }
func (c *Context) assignError(e *teamauth.Error) {
	if c.err == nil {
		c.err = e
	}
}

// HasJoinedTeam reports whether this side is a recognized team member
// (as opposed to an unjoined invitee).
func (c *Context) HasJoinedTeam() bool { return c.team != nil && c.user != nil }

// SessionKey returns the derived session key, or nil before `connected`.
func (c *Context) SessionKey() []byte { return c.sessionKey }

// Error returns the first terminal error recorded on this connection,
// if any.
func (c *Context) Error() *teamauth.Error { return c.err }

// Team returns the connection's team handle, which may be nil until
// joinTeam runs for an invitee.
func (c *Context) Team() Team { return c.team }

// Peer returns the resolved peer member record, if identity has been
// confirmed.
func (c *Context) Peer() *Member { return c.peer }

// Invitee returns this side's invitee identity, if joining via
// invitation.
func (c *Context) Invitee() *Invitee { return c.invitee }

// InvitationSeed returns this side's invitation seed, if joining via
// invitation.
func (c *Context) InvitationSeed() string { return c.invitationSeed }
