package crypto

import "crypto"

// Asymmetric box encryption is implemented in crypto/keys (it needs
// Ed25519<->X25519 conversion plus X25519 ECDH, HKDF-SHA256 and
// AES-256-GCM, which would otherwise import
// this package and create a cycle). These function variables mirror
// the generator indirection in wrappers.go: crypto/keys registers its
// implementation from an init().
var (
	sealToPeer    func(peerPub crypto.PublicKey, plaintext []byte) ([]byte, error)
	openFromPeer  func(priv crypto.PrivateKey, packet []byte) ([]byte, error)
)

// SetBoxFunctions wires the asymmetric box implementation. Called by
// crypto/keys's init().
func SetBoxFunctions(
	seal func(peerPub crypto.PublicKey, plaintext []byte) ([]byte, error),
	open func(priv crypto.PrivateKey, packet []byte) ([]byte, error),
) {
	sealToPeer = seal
	openFromPeer = open
}

// SealBox encrypts plaintext to peerPub using an authenticated box
// (ephemeral X25519 ECDH, HKDF-SHA256, AES-256-GCM). This is the Crypto.Asymmetric.encrypt primitive
// §6 requires, used to deliver §4.E's SEED message.
func SealBox(peerPub crypto.PublicKey, plaintext []byte) ([]byte, error) {
	if sealToPeer == nil {
		panic("crypto: box implementation not registered (import crypto/keys)")
	}
	return sealToPeer(peerPub, plaintext)
}

// OpenBox decrypts a packet produced by SealBox using our own private key.
func OpenBox(priv crypto.PrivateKey, packet []byte) ([]byte, error) {
	if openFromPeer == nil {
		panic("crypto: box implementation not registered (import crypto/keys)")
	}
	return openFromPeer(priv, packet)
}
