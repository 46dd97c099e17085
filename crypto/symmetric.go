package crypto

import (
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// SealSymmetric encrypts plaintext under key (32 bytes) using
// ChaCha20-Poly1305, the AEAD the session key (§4.D) is used with for
// ENCRYPTED_MESSAGE payloads. Output is nonce || ciphertext.
func SealSymmetric(key, plaintext, rnd []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new aead: %w", err)
	}
	if len(rnd) < aead.NonceSize() {
		return nil, fmt.Errorf("crypto: short nonce source")
	}
	nonce := rnd[:aead.NonceSize()]
	out := aead.Seal(nil, nonce, plaintext, nil)
	return append(append([]byte{}, nonce...), out...), nil
}

// OpenSymmetric reverses SealSymmetric.
func OpenSymmetric(key, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new aead: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("crypto: ciphertext too short")
	}
	nonce := sealed[:aead.NonceSize()]
	ct := sealed[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: open: %w", err)
	}
	return pt, nil
}

// Encrypt is a convenience wrapper around SealSymmetric: it generates
// its own random nonce.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	nonce, err := Random(chacha20poly1305.NonceSize)
	if err != nil {
		return nil, err
	}
	return SealSymmetric(key, plaintext, nonce)
}

// Decrypt is the inverse of Encrypt; it returns OpenSymmetric's error
// unchanged.
func Decrypt(key, sealed []byte) ([]byte, error) {
	return OpenSymmetric(key, sealed)
}
