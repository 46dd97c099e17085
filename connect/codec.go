// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package connect

import (
	"encoding/json"
	"fmt"
)

// MessageType is the tag of the discriminated union carried on the
// wire (spec.md §4.G / §6).
type MessageType string

const (
	TypeReady             MessageType = "READY"
	TypeHello             MessageType = "HELLO"
	TypeAcceptInvitation  MessageType = "ACCEPT_INVITATION"
	TypeChallengeIdentity MessageType = "CHALLENGE_IDENTITY"
	TypeProveIdentity     MessageType = "PROVE_IDENTITY"
	TypeAcceptIdentity    MessageType = "ACCEPT_IDENTITY"
	TypeUpdate            MessageType = "UPDATE"
	TypeMissingLinks      MessageType = "MISSING_LINKS"
	TypeLocalUpdate       MessageType = "LOCAL_UPDATE" // internal only, never on wire
	TypeSeed              MessageType = "SEED"
	TypeEncryptedMessage  MessageType = "ENCRYPTED_MESSAGE"
	TypeDisconnect        MessageType = "DISCONNECT"
	TypeError             MessageType = "ERROR"
	TypeReconnect         MessageType = "RECONNECT" // internal only, never on wire
)

// localOnly reports whether a message type is never serialized to the
// peer and therefore never carries an index (spec.md §4.G).
func (t MessageType) localOnly() bool {
	return t == TypeLocalUpdate || t == TypeReconnect
}

// Message is the envelope every wire (or internal) event is carried
// in. Index is set by the sender at serialization time for every
// non-local-only type and is strictly increasing per direction.
type Message struct {
	Type    MessageType     `json:"type"`
	Index   *uint64         `json:"index,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Payload schemas, exactly spec.md §6.

type HelloPayload struct {
	IdentityClaim     IdentityClaim      `json:"identityClaim"`
	ProofOfInvitation *ProofOfInvitation `json:"proofOfInvitation,omitempty"`
}

type AcceptInvitationPayload struct {
	Chain []byte `json:"chain"`
}

type ChallengeIdentityPayload struct {
	Challenge Challenge `json:"challenge"`
}

type ProveIdentityPayload struct {
	Challenge Challenge `json:"challenge"`
	Proof     []byte    `json:"proof"`
}

type MissingLinksPayload struct {
	Head  string `json:"head"`
	Links []Link `json:"links"`
}

type LocalUpdatePayload struct {
	Head string `json:"head"`
}

type SeedPayload struct {
	EncryptedSeed []byte `json:"encryptedSeed"`
}

type EncryptedMessagePayload struct {
	Payload []byte `json:"payload"`
}

type ErrorPayload struct {
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// encode builds a Message envelope from a typed payload, omitting the
// index for local-only types and assigning it otherwise.
func encode(t MessageType, index uint64, payload interface{}) (Message, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("connect: encode %s: %w", t, err)
		}
		raw = b
	}
	m := Message{Type: t, Payload: raw}
	if !t.localOnly() {
		idx := index
		m.Index = &idx
	}
	return m, nil
}

// Marshal serializes a Message to bytes for the transport.
func Marshal(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal parses transport bytes into a Message envelope. The
// payload is left as raw JSON; call DecodePayload for the typed body.
func Unmarshal(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("connect: decode envelope: %w", err)
	}
	return m, nil
}

// DecodePayload unmarshals a Message's raw payload into out.
func DecodePayload(m Message, out interface{}) error {
	if len(m.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Payload, out); err != nil {
		return fmt.Errorf("connect: decode %s payload: %w", m.Type, err)
	}
	return nil
}
