package crypto

// generateEd25519KeyPair and generateSecp256k1KeyPair are registered
// by crypto/keys's init() to avoid a crypto <-> crypto/keys import
// cycle (crypto/keys needs the KeyPair/KeyType types declared here).
var (
	generateEd25519KeyPair   func() (KeyPair, error)
	generateSecp256k1KeyPair func() (KeyPair, error)
)

// SetKeyGenerators wires the concrete key-generation functions.
func SetKeyGenerators(ed25519Gen, secp256k1Gen func() (KeyPair, error)) {
	generateEd25519KeyPair = ed25519Gen
	generateSecp256k1KeyPair = secp256k1Gen
}

// GenerateEd25519KeyPair generates a new Ed25519 identity key pair.
func GenerateEd25519KeyPair() (KeyPair, error) {
	if generateEd25519KeyPair == nil {
		panic("crypto: Ed25519 generator not registered (import crypto/keys)")
	}
	return generateEd25519KeyPair()
}

// GenerateSecp256k1KeyPair generates a new secp256k1 identity key pair.
func GenerateSecp256k1KeyPair() (KeyPair, error) {
	if generateSecp256k1KeyPair == nil {
		panic("crypto: secp256k1 generator not registered (import crypto/keys)")
	}
	return generateSecp256k1KeyPair()
}
