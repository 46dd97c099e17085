// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package connect

import (
	"fmt"
	"sync"
	"time"

	"github.com/meshid/teamauth"
	"github.com/meshid/teamauth/internal/logger"
	"github.com/meshid/teamauth/internal/metrics"
	"github.com/meshid/teamauth/session"
)

// Summary is the payload of a `change` event: a snapshot of the FSM's
// externally visible shape after a transition.
type Summary struct {
	State           State
	InvitationState string
	Accepted        bool
}

// Connection is the connection driver (spec.md §4.F): it owns the FSM,
// the outbound index counter, the inbound ordered-delivery buffer, and
// demultiplexes inbound messages to FSM transitions. All work is
// funneled through a single goroutine (cmds) so a connection never
// processes two events concurrently, matching the single-threaded
// cooperative scheduling model of spec.md §5.
type Connection struct {
	ctx    *Context
	crypto Crypto
	tport  Transport
	cfg    Config
	log    logger.Logger

	state State
	inv   invitationState
	auth  authState

	weAcceptedPeer bool
	peerAcceptedUs bool

	outboundIndex uint64
	inbuf         *orderedBuffer

	started bool
	stopped bool

	unsubscribeTeam func()

	handshakeTimer *time.Timer
	syncTimer      *time.Timer

	cmds chan func()
	wg   sync.WaitGroup

	evMu           sync.Mutex
	onChange       []func(Summary)
	onConnected    []func()
	onJoined       []func(Team)
	onUpdated      []func()
	onDisconnected []func(reason string)
	onMessage      []func(plaintext []byte)
}

// New constructs a Connection around a Context and its external
// collaborators. The connection is idle until Start is called.
func New(ctx *Context, crypto Crypto, tport Transport, cfg Config) *Connection {
	return &Connection{
		ctx:    ctx,
		crypto: crypto,
		tport:  tport,
		cfg:    cfg.withDefaults(),
		log:    logger.Default(),
		state:  StateDisconnected,
		inv:    invInitializing,
		auth:   authClaimingIdentity,
		inbuf:  newOrderedBuffer(),
		cmds:   make(chan func(), 32),
	}
}

func (c *Connection) submit(fn func()) {
	done := make(chan struct{})
	c.cmds <- func() {
		fn()
		close(done)
	}
	<-done
}

func (c *Connection) loop() {
	defer c.wg.Done()
	for fn := range c.cmds {
		fn()
	}
}

// OnChange registers a listener for FSM-transition summaries.
func (c *Connection) OnChange(fn func(Summary)) {
	c.evMu.Lock()
	c.onChange = append(c.onChange, fn)
	c.evMu.Unlock()
}

// OnConnected registers a listener fired once sessionKey is derived.
func (c *Connection) OnConnected(fn func()) {
	c.evMu.Lock()
	c.onConnected = append(c.onConnected, fn)
	c.evMu.Unlock()
}

// OnJoined registers a listener fired once an invitee completes
// joinTeam.
func (c *Connection) OnJoined(fn func(Team)) {
	c.evMu.Lock()
	c.onJoined = append(c.onJoined, fn)
	c.evMu.Unlock()
}

// OnUpdated registers a listener fired whenever the local team chain
// mutates as a side effect of this connection.
func (c *Connection) OnUpdated(fn func()) {
	c.evMu.Lock()
	c.onUpdated = append(c.onUpdated, fn)
	c.evMu.Unlock()
}

// OnDisconnected registers a listener fired on terminal states.
func (c *Connection) OnDisconnected(fn func(reason string)) {
	c.evMu.Lock()
	c.onDisconnected = append(c.onDisconnected, fn)
	c.evMu.Unlock()
}

// OnMessage registers a listener fired with decrypted application
// payloads.
func (c *Connection) OnMessage(fn func(plaintext []byte)) {
	c.evMu.Lock()
	c.onMessage = append(c.onMessage, fn)
	c.evMu.Unlock()
}

func (c *Connection) fireChange() {
	c.evMu.Lock()
	listeners := append([]func(Summary){}, c.onChange...)
	c.evMu.Unlock()
	s := Summary{State: c.state, InvitationState: c.invitationStateName(), Accepted: c.weAcceptedPeer && c.peerAcceptedUs}
	for _, fn := range listeners {
		fn(s)
	}
}

func (c *Connection) invitationStateName() string {
	switch c.inv {
	case invInitializing:
		return "initializing"
	case invWaiting:
		return "waiting"
	case invValidating:
		return "validating"
	case invDoingNothing:
		return "doingNothing"
	case invSuccess:
		return "success"
	default:
		return "unknown"
	}
}

func (c *Connection) fireConnected() {
	c.evMu.Lock()
	listeners := append([]func(){}, c.onConnected...)
	c.evMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (c *Connection) fireJoined(t Team) {
	c.evMu.Lock()
	listeners := append([]func(Team){}, c.onJoined...)
	c.evMu.Unlock()
	for _, fn := range listeners {
		fn(t)
	}
}

func (c *Connection) fireUpdated() {
	c.evMu.Lock()
	listeners := append([]func(){}, c.onUpdated...)
	c.evMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (c *Connection) fireDisconnected(reason string) {
	c.evMu.Lock()
	listeners := append([]func(string){}, c.onDisconnected...)
	c.evMu.Unlock()
	for _, fn := range listeners {
		fn(reason)
	}
}

func (c *Connection) fireMessage(plaintext []byte) {
	c.evMu.Lock()
	listeners := append([]func([]byte){}, c.onMessage...)
	c.evMu.Unlock()
	for _, fn := range listeners {
		fn(plaintext)
	}
}

// Start begins the FSM if this is a fresh connection, or emits
// RECONNECT internally if it was already started. Emits READY to the
// peer, then replays any caller-supplied stored inbound messages in
// arrival order (spec.md §4.F).
func (c *Connection) Start(stored []Message) {
	c.wg.Add(1)
	go c.loop()

	c.submit(func() {
		if c.stopped {
			return
		}
		if c.started {
			c.handleReconnect()
		} else {
			c.started = true
			metrics.HandshakesInitiated.WithLabelValues(c.role()).Inc()
			c.resetHandshakeTimer()
		}
		c.sendRaw(TypeReady, nil)

		for _, m := range stored {
			c.dispatchInbound(m)
		}
	})
}

func (c *Connection) role() string {
	if c.ctx.invitee != nil && c.ctx.team == nil {
		return "invitee"
	}
	return "member"
}

// Stop is the sole cancellation primitive. It is idempotent and safe
// from any state.
func (c *Connection) Stop() {
	c.submit(func() {
		if c.stopped {
			return
		}
		c.stopped = true
		c.stopTimers()
		if c.unsubscribeTeam != nil {
			c.unsubscribeTeam()
			c.unsubscribeTeam = nil
		}
		c.sendRaw(TypeDisconnect, nil)
		c.transitionTo(StateDisconnected)
		c.fireDisconnected("stopped")
	})
	close(c.cmds)
	c.wg.Wait()
}

// Send encrypts plaintext with the derived session key and emits
// ENCRYPTED_MESSAGE. It requires the connection to be `connected`.
func (c *Connection) Send(plaintext []byte) error {
	var sendErr error
	c.submit(func() {
		if c.ctx.sessionKey == nil {
			sendErr = fmt.Errorf("connect: send before session key is established")
			return
		}
		sealed, err := c.crypto.SealSymmetric(c.ctx.sessionKey, plaintext)
		if err != nil {
			sendErr = fmt.Errorf("connect: seal message: %w", err)
			return
		}
		c.sendRaw(TypeEncryptedMessage, EncryptedMessagePayload{Payload: sealed})
	})
	return sendErr
}

// Deliver pushes an inbound numbered message through the
// ordered-delivery buffer and forwards whatever becomes ready to the
// FSM, unless the connection has been stopped.
func (c *Connection) Deliver(raw []byte) error {
	msg, err := Unmarshal(raw)
	if err != nil {
		return err
	}
	c.submit(func() {
		if c.stopped {
			return
		}
		if msg.Type.localOnly() || msg.Index == nil {
			c.dispatchInbound(msg)
			return
		}
		for _, ready := range c.inbuf.push(*msg.Index, msg) {
			if c.stopped {
				return
			}
			c.dispatchInbound(ready)
		}
	})
	return nil
}

// InjectLocal feeds a purely-local event (LOCAL_UPDATE) into the FSM,
// bypassing the ordered-delivery buffer since local events are never
// indexed (spec.md §4.G).
func (c *Connection) InjectLocal(m Message) {
	c.submit(func() {
		if c.stopped {
			return
		}
		c.dispatchInbound(m)
	})
}

func (c *Connection) sendRaw(t MessageType, payload interface{}) {
	idx := c.outboundIndex
	if !t.localOnly() {
		c.outboundIndex++
	}
	msg, err := encode(t, idx, payload)
	if err != nil {
		c.log.Error("connect: encode outbound message failed", logger.String("type", string(t)), logger.Err(err))
		return
	}
	raw, err := Marshal(msg)
	if err != nil {
		c.log.Error("connect: marshal outbound message failed", logger.String("type", string(t)), logger.Err(err))
		return
	}
	if err := c.tport.SendMessage(raw); err != nil {
		c.log.Warn("connect: transport send failed", logger.String("type", string(t)), logger.Err(err))
	}
}

func (c *Connection) handleReconnect() {
	c.resetHandshakeTimer()
}

func (c *Connection) stopTimers() {
	if c.handshakeTimer != nil {
		c.handshakeTimer.Stop()
	}
	if c.syncTimer != nil {
		c.syncTimer.Stop()
	}
}

func (c *Connection) resetHandshakeTimer() {
	if c.handshakeTimer != nil {
		c.handshakeTimer.Stop()
	}
	c.handshakeTimer = time.AfterFunc(c.cfg.HandshakeTimeout, func() {
		c.submit(func() { c.failTimeout() })
	})
}

func (c *Connection) resetSyncTimer() {
	if c.syncTimer != nil {
		c.syncTimer.Stop()
	}
	c.syncTimer = time.AfterFunc(c.cfg.SyncTimeout, func() {
		c.submit(func() { c.failTimeout() })
	})
}

// dispatchInbound is the single entry point driving FSM transitions
// from the message currently at hand (spec.md §4.E).
func (c *Connection) dispatchInbound(msg Message) {
	if c.state == StateFailure || c.state == StateDisconnected && msg.Type != TypeReady {
		return
	}

	if msg.Type == TypeError {
		var p ErrorPayload
		_ = DecodePayload(msg, &p)
		c.receiveError(p)
		return
	}

	switch c.state {
	case StateDisconnected:
		if msg.Type == TypeReady {
			c.transitionTo(StateConnecting)
			c.enterConnecting()
		}
	case StateConnecting:
		c.handleConnecting(msg)
	case StateSynchronizing:
		c.handleSynchronizing(msg)
	case StateNegotiating:
		c.handleNegotiating(msg)
	case StateConnected:
		c.handleConnected(msg)
	}
}

func (c *Connection) enterConnecting() {
	if iHaveInvitation(c.ctx) {
		c.inv = invWaiting
	} else {
		c.inv = invDoingNothing
	}
	c.auth = authClaimingIdentity
	c.sendHello()
}

func (c *Connection) sendHello() {
	payload := HelloPayload{IdentityClaim: c.identityClaim()}
	if c.ctx.team == nil && c.ctx.invitee != nil {
		proof, err := c.localProof()
		if err == nil {
			payload.ProofOfInvitation = &proof
		}
	}
	c.sendRaw(TypeHello, payload)
}

func (c *Connection) identityClaim() IdentityClaim {
	name := c.ctx.device.ID()
	if c.ctx.user != nil {
		name = c.ctx.user.userName + "::" + c.ctx.user.deviceName
	}
	return IdentityClaim{Kind: "DEVICE", Name: name}
}

// ProofProvider is set by package invite's init() (to a wrapper around
// invite.GenerateProof) so the driver can build this side's ProofOfInvitation without
// connect taking a compile-time dependency on package invite.
var ProofProvider func(ctx *Context) (ProofOfInvitation, error)

// TeamFactory is set by the chain implementation's init() to a
// zero-value Team, so an unjoined invitee's Context (which starts with
// a nil Team) has something to call Load on in onAcceptInvitation
// without connect taking a compile-time dependency on package chain.
var TeamFactory func() Team

func (c *Connection) localProof() (ProofOfInvitation, error) {
	if ProofProvider == nil {
		return ProofOfInvitation{}, fmt.Errorf("connect: no invitation proof provider configured")
	}
	return ProofProvider(c.ctx)
}

func (c *Connection) handleConnecting(msg Message) {
	switch msg.Type {
	case TypeHello:
		c.onHello(msg)
	case TypeAcceptInvitation:
		c.onAcceptInvitation(msg)
	case TypeChallengeIdentity:
		c.onChallengeIdentity(msg)
	case TypeProveIdentity:
		c.onProveIdentity(msg)
	case TypeAcceptIdentity:
		c.onAcceptIdentity()
	case TypeDisconnect:
		c.transitionTo(StateDisconnected)
		c.fireDisconnected("peer disconnected")
	}
	c.maybeLeaveConnecting()
}

func (c *Connection) onHello(msg Message) {
	var p HelloPayload
	if err := DecodePayload(msg, &p); err != nil {
		c.failWith(teamauth.NewError(teamauth.ErrInvitationInvalid, "malformed HELLO", err))
		return
	}
	theirs := p.ProofOfInvitation != nil
	c.ctx.assignTheirIdentityClaim(p.IdentityClaim)
	c.ctx.assignTheirInvitation(theirs, p.ProofOfInvitation)

	// The authenticating region only applies between two sides that are
	// already team members: an invitee has no chain identity to confirm
	// or challenge yet, and admission (validateInvitation/Admit, or
	// Join on the invitee's own side) is itself the identity proof for
	// this round (spec.md §4.E).
	skipAuth := theirs || iHaveInvitation(c.ctx)
	if c.auth == authClaimingIdentity && !skipAuth {
		c.confirmIdentityExists()
		c.auth = authChallengingIdentity
		c.challengeIdentity()
	}

	if theirs {
		if bothHaveInvitation(c.ctx, theirs) {
			c.failWith(teamauth.NewError(teamauth.ErrNeitherIsMember, "neither side is an existing team member", nil))
			return
		}
		if c.inv == invDoingNothing {
			c.inv = invValidating
			c.validateInvitation(*p.ProofOfInvitation)
		}
	}
}

func (c *Connection) confirmIdentityExists() {
	if c.ctx.team == nil || c.ctx.theirIdentityClaim == nil {
		return
	}
	outcome, err := c.ctx.team.LookupIdentity(*c.ctx.theirIdentityClaim)
	if err != nil {
		c.failWith(teamauth.NewError(teamauth.ErrDeviceUnknown, "identity lookup failed", err))
		return
	}
	switch outcome {
	case ValidDevice:
		return
	case MemberUnknown:
		c.failWith(teamauth.NewError(teamauth.ErrMemberUnknown, "member unknown", nil))
	case MemberRemoved:
		c.failWith(teamauth.NewError(teamauth.ErrMemberRemoved, "member removed", nil))
	case DeviceUnknown:
		c.failWith(teamauth.NewError(teamauth.ErrDeviceUnknown, "device unknown", nil))
	case DeviceRemoved:
		c.failWith(teamauth.NewError(teamauth.ErrDeviceRemoved, "device removed", nil))
	}
}

func (c *Connection) validateInvitation(proof ProofOfInvitation) {
	result := c.ctx.team.ValidateInvitation(proof)
	if !result.IsValid {
		detail := ""
		if result.Error != nil {
			detail = result.Error.Error()
		}
		c.ctx.assignTheirInvitation(true, &proof)
		c.failWith(teamauth.NewError(teamauth.ErrInvitationInvalid, "invitation rejected: "+detail, result.Error))
		return
	}
	if err := c.ctx.team.Admit(proof); err != nil {
		c.failWith(teamauth.NewError(teamauth.ErrInvitationInvalid, "admit failed", err))
		return
	}
	if m, ok := c.ctx.team.Members(peerUserName(IdentityClaim{Kind: proof.Invitee.Kind, Name: proof.Invitee.Name})); ok {
		c.ctx.assignPeer(&m)
	}
	chain, err := c.ctx.team.Save()
	if err != nil {
		c.failWith(teamauth.NewError(teamauth.ErrInvitationInvalid, "save chain failed", err))
		return
	}
	c.sendRaw(TypeAcceptInvitation, AcceptInvitationPayload{Chain: chain})
	c.inv = invSuccess
	// Admission's signature check already authenticated the invitee;
	// the challenge/response region never runs for this round.
	c.weAcceptedPeer = true
	c.peerAcceptedUs = true
}

func (c *Connection) onAcceptInvitation(msg Message) {
	if c.inv != invWaiting {
		return
	}
	var p AcceptInvitationPayload
	if err := DecodePayload(msg, &p); err != nil {
		c.failWith(teamauth.NewError(teamauth.ErrWrongTeam, "malformed ACCEPT_INVITATION", err))
		return
	}
	myProof, err := c.localProof()
	if err != nil {
		c.failWith(teamauth.NewError(teamauth.ErrWrongTeam, "no local invitation proof", err))
		return
	}
	bootstrap := c.ctx.team
	if bootstrap == nil {
		if TeamFactory == nil {
			c.failWith(teamauth.NewError(teamauth.ErrWrongTeam, "no team factory configured to load the admitted chain", nil))
			return
		}
		bootstrap = TeamFactory()
	}
	loaded, err := bootstrap.Load(p.Chain)
	if err != nil || !joinedTheRightTeam(loaded, myProof) {
		c.failWith(teamauth.NewError(teamauth.ErrWrongTeam, "joined chain does not carry our invitation", err))
		return
	}
	user, device, err := loaded.Join(myProof, c.ctx.invitationSeed)
	if err != nil {
		c.failWith(teamauth.NewError(teamauth.ErrWrongTeam, "join failed", err))
		return
	}
	c.ctx.assignTeam(loaded)
	c.ctx.assignUser(user, device)
	if c.ctx.theirIdentityClaim != nil {
		if m, ok := loaded.Members(peerUserName(*c.ctx.theirIdentityClaim)); ok {
			c.ctx.assignPeer(&m)
		}
	}
	c.inv = invSuccess
	// Our own proof's signature was already verified by the inviter's
	// validateInvitation before it sent this chain; the challenge/
	// response region never ran for this round either.
	c.weAcceptedPeer = true
	c.peerAcceptedUs = true
	c.fireJoined(loaded)
}

// onChallengeIdentity answers a challenge the peer just issued us. It
// signs the Challenge carried in msg itself, not c.ctx.challenge (which
// holds the challenge we issued them, consulted later in onProveIdentity).
func (c *Connection) onChallengeIdentity(msg Message) {
	var p ChallengeIdentityPayload
	if err := DecodePayload(msg, &p); err != nil {
		c.failWith(teamauth.NewError(teamauth.ErrIdentityProofInvalid, "malformed CHALLENGE_IDENTITY", err))
		return
	}
	proof, err := c.ctx.device.Sign(identityTranscript(&p.Challenge))
	if err != nil {
		c.failWith(teamauth.NewError(teamauth.ErrIdentityProofInvalid, "sign challenge failed", err))
		return
	}
	c.sendRaw(TypeProveIdentity, ProveIdentityPayload{Challenge: p.Challenge, Proof: proof})
}

// challengeIdentity issues a challenge binding the peer's own claimed
// identity (received via HELLO) so the proof it returns can only be
// verified against that device's registered key, never ours.
func (c *Connection) challengeIdentity() {
	if c.ctx.theirIdentityClaim == nil {
		c.failWith(teamauth.NewError(teamauth.ErrIdentityProofInvalid, "no peer identity claim to challenge", nil))
		return
	}
	nonce, err := c.crypto.Random(32)
	if err != nil {
		c.failWith(teamauth.NewError(teamauth.ErrIdentityProofInvalid, "generate nonce failed", err))
		return
	}
	ch := Challenge{Claim: *c.ctx.theirIdentityClaim, Nonce: nonce}
	c.ctx.assignChallenge(ch)
	c.sendRaw(TypeChallengeIdentity, ChallengeIdentityPayload{Challenge: ch})
}

func (c *Connection) onProveIdentity(msg Message) {
	var p ProveIdentityPayload
	if err := DecodePayload(msg, &p); err != nil {
		c.failWith(teamauth.NewError(teamauth.ErrIdentityProofInvalid, "malformed PROVE_IDENTITY", err))
		return
	}
	if c.ctx.team == nil || c.ctx.challenge == nil {
		c.failWith(teamauth.NewError(teamauth.ErrIdentityProofInvalid, "no challenge outstanding", nil))
		return
	}
	if !c.ctx.team.VerifyIdentityProof(*c.ctx.challenge, p.Proof) {
		c.failWith(teamauth.NewError(teamauth.ErrIdentityProofInvalid, "identity proof invalid", nil))
		return
	}
	c.sendRaw(TypeAcceptIdentity, nil)
	if c.ctx.theirIdentityClaim != nil {
		member, _ := c.ctx.team.Members(peerUserName(*c.ctx.theirIdentityClaim))
		c.ctx.assignPeer(&member)
	}
	c.weAcceptedPeer = true
}

func (c *Connection) onAcceptIdentity() {
	c.peerAcceptedUs = true
}

func (c *Connection) maybeLeaveConnecting() {
	if c.state != StateConnecting {
		return
	}
	if c.weAcceptedPeer && c.peerAcceptedUs && c.inv.resolved() {
		if c.handshakeTimer != nil {
			c.handshakeTimer.Stop()
		}
		c.transitionTo(StateSynchronizing)
		c.enterSynchronizing()
	}
}

func (c *Connection) enterSynchronizing() {
	c.resetSyncTimer()
	c.listenForTeamUpdates()
	c.sendUpdate()
}

func (c *Connection) listenForTeamUpdates() {
	if c.unsubscribeTeam != nil || c.ctx.team == nil {
		return
	}
	c.unsubscribeTeam = c.ctx.team.OnUpdated(func(head string) {
		c.submit(func() {
			if c.stopped {
				return
			}
			c.fireUpdated()
			c.dispatchInbound(mustEncode(TypeLocalUpdate, LocalUpdatePayload{Head: head}))
		})
	})
}

func (c *Connection) sendUpdate() {
	if c.ctx.team == nil {
		return
	}
	hashes := make([]string, 0, len(c.ctx.team.Links()))
	for _, l := range c.ctx.team.Links() {
		hashes = append(hashes, l.Hash)
	}
	c.sendRaw(TypeUpdate, UpdatePayload{Root: c.ctx.team.Root(), Head: c.ctx.team.Head(), Hashes: hashes})
}

func (c *Connection) handleSynchronizing(msg Message) {
	switch msg.Type {
	case TypeUpdate:
		var p UpdatePayload
		if err := DecodePayload(msg, &p); err == nil {
			c.ctx.assignTheirHead(p.Head)
			c.sendMissingLinks(p)
		}
	case TypeMissingLinks:
		var p MissingLinksPayload
		if err := DecodePayload(msg, &p); err == nil {
			if err := c.ctx.team.ReceiveMissingLinks(p.Links); err != nil {
				c.failWith(teamauth.NewError(teamauth.ErrWrongTeam, "receive missing links failed", err))
				return
			}
			c.sendUpdate()
		}
	case TypeLocalUpdate:
		c.sendUpdate()
	case TypeDisconnect:
		c.transitionTo(StateDisconnected)
		c.fireDisconnected("peer disconnected")
		return
	}

	if peerWasRemoved(c.ctx.team, c.ctx.peer) {
		c.failWith(teamauth.NewError(teamauth.ErrPeerRemoved, "peer was removed from the team", nil))
		return
	}
	if headsAreEqual(c.ctx.team, c.ctx.theirHead) {
		if dontHaveSessionkey(c.ctx) {
			c.transitionTo(StateNegotiating)
			c.enterNegotiating()
			return
		}
		c.transitionTo(StateConnected)
		c.stopTimers()
	}
}

func (c *Connection) sendMissingLinks(payload UpdatePayload) {
	links, err := c.ctx.team.GetMissingLinks(payload)
	if err != nil {
		c.failWith(teamauth.NewError(teamauth.ErrWrongTeam, "compute missing links failed", err))
		return
	}
	if len(links) == 0 {
		return
	}
	c.sendRaw(TypeMissingLinks, MissingLinksPayload{Head: c.ctx.team.Head(), Links: links})
}

func (c *Connection) enterNegotiating() {
	if c.ctx.sessionKey != nil {
		return
	}
	seed, err := c.crypto.Random(32)
	if err != nil {
		c.failWith(teamauth.NewError(teamauth.ErrDecryptionFailed, "generate seed failed", err))
		return
	}
	c.ctx.assignSeed(seed)
	if c.ctx.peer == nil {
		c.failWith(teamauth.NewError(teamauth.ErrPeerRemoved, "no resolved peer to seed key agreement with", nil))
		return
	}
	sealed, err := c.crypto.SealBox(c.ctx.peer.EncryptKey, seed)
	if err != nil {
		c.failWith(teamauth.NewError(teamauth.ErrDecryptionFailed, "seal seed failed", err))
		return
	}
	c.sendRaw(TypeSeed, SeedPayload{EncryptedSeed: sealed})
}

func (c *Connection) handleNegotiating(msg Message) {
	if msg.Type != TypeSeed {
		return
	}
	var p SeedPayload
	if err := DecodePayload(msg, &p); err != nil {
		c.failWith(teamauth.NewError(teamauth.ErrDecryptionFailed, "malformed SEED", err))
		return
	}
	c.ctx.assignTheirEncryptedSeed(p.EncryptedSeed)

	theirSeed, err := c.crypto.OpenBox(c.ctx.device.PrivateKey(), p.EncryptedSeed)
	if err != nil {
		c.failWith(teamauth.NewError(teamauth.ErrDecryptionFailed, "open seed failed", err))
		return
	}
	key, err := session.DeriveSessionKey(c.ctx.seed, theirSeed)
	if err != nil {
		c.failWith(teamauth.NewError(teamauth.ErrDecryptionFailed, "derive session key failed", err))
		return
	}
	c.ctx.assignSessionKey(key)
	c.transitionTo(StateConnected)
	c.stopTimers()
	metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	c.fireConnected()
}

func (c *Connection) handleConnected(msg Message) {
	switch msg.Type {
	case TypeEncryptedMessage:
		var p EncryptedMessagePayload
		if err := DecodePayload(msg, &p); err != nil {
			return
		}
		plaintext, err := c.crypto.OpenSymmetric(c.ctx.sessionKey, p.Payload)
		if err != nil {
			c.log.Warn("connect: dropping undecryptable message")
			return
		}
		c.fireMessage(plaintext)
	case TypeUpdate, TypeLocalUpdate:
		c.transitionTo(StateSynchronizing)
		c.enterSynchronizing()
		c.handleSynchronizing(msg)
	case TypeDisconnect:
		c.transitionTo(StateDisconnected)
		c.fireDisconnected("peer disconnected")
	}
}

func (c *Connection) receiveError(p ErrorPayload) {
	c.ctx.assignError(teamauth.NewError(teamauth.ErrPeerError, p.Message, nil))
	c.transitionTo(StateFailure)
	metrics.HandshakesFailed.WithLabelValues(string(teamauth.ErrPeerError)).Inc()
	c.fireDisconnected(p.Message)
}

func (c *Connection) failWith(e *teamauth.Error) {
	c.ctx.assignError(e)
	c.sendRaw(TypeError, ErrorPayload{Message: e.Message})
	c.transitionTo(StateFailure)
	c.stopTimers()
	metrics.HandshakesFailed.WithLabelValues(string(e.Code)).Inc()
	c.fireDisconnected(e.Message)
}

func (c *Connection) failTimeout() {
	if c.state == StateFailure || c.state == StateDisconnected {
		return
	}
	c.failWith(teamauth.NewError(teamauth.ErrTimeout, "handshake phase timed out", nil))
}

func (c *Connection) transitionTo(s State) {
	c.state = s
	c.fireChange()
}

func mustEncode(t MessageType, payload interface{}) Message {
	m, err := encode(t, 0, payload)
	if err != nil {
		return Message{Type: t}
	}
	return m
}

// identityTranscript mirrors identity.Transcript's layout exactly so
// both the prover and the Team-side verifier compute a signature over
// the same bytes; connect keeps its own copy of the format rather
// than importing package identity, and the copy is pinned by
// TestIdentityTranscriptMatchesIdentityPackage.
func identityTranscript(ch *Challenge) []byte {
	if ch == nil {
		return nil
	}
	out := make([]byte, 0, len(ch.Claim.Kind)+len(ch.Claim.Name)+len(ch.Nonce)+2)
	out = append(out, []byte(ch.Claim.Kind)...)
	out = append(out, ':', ':')
	out = append(out, []byte(ch.Claim.Name)...)
	out = append(out, ch.Nonce...)
	return out
}

func peerUserName(claim IdentityClaim) string {
	for i, r := range claim.Name {
		if r == ':' && i+1 < len(claim.Name) && claim.Name[i+1] == ':' {
			return claim.Name[:i]
		}
	}
	return claim.Name
}
