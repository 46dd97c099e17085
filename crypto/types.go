// Package crypto declares the Crypto external interface the connection
// protocol is built against (random key generation, signatures, box
// encryption, symmetric AEAD) plus a concrete reference implementation.
// Nothing under package connect imports this package directly — it
// only imports the interfaces declared in connect/external.go, which
// this package's types satisfy structurally.
package crypto

import (
	"crypto"
	"errors"
)

// KeyType identifies which signature algorithm a KeyPair uses.
type KeyType string

const (
	KeyTypeEd25519   KeyType = "Ed25519"
	KeyTypeSecp256k1 KeyType = "Secp256k1"
	KeyTypeX25519    KeyType = "X25519"
)

// KeyPair is the identity key every device and user holds: a signing
// key used for HELLO/CHALLENGE/SEED authentication.
type KeyPair interface {
	PublicKey() crypto.PublicKey
	PrivateKey() crypto.PrivateKey
	Type() KeyType
	Sign(message []byte) ([]byte, error)
	Verify(message, signature []byte) error
	ID() string
}

// KeyStorage provides storage for identity key pairs, used through
// crypto.Manager; crypto/storage holds an in-memory implementation
// (this is key storage, not connection/FSM state — the Non-goal on
// connection-state persistence is unaffected).
type KeyStorage interface {
	Store(id string, keyPair KeyPair) error
	Load(id string) (KeyPair, error)
	Delete(id string) error
	List() ([]string, error)
	Exists(id string) bool
}

var (
	ErrKeyNotFound        = errors.New("crypto: key not found")
	ErrInvalidKeyType     = errors.New("crypto: invalid key type")
	ErrInvalidSignature   = errors.New("crypto: invalid signature")
	ErrSignNotSupported   = errors.New("crypto: key agreement keys cannot sign")
	ErrVerifyNotSupported = errors.New("crypto: key agreement keys cannot verify")
	ErrKeyExists          = errors.New("crypto: key already exists")
)
