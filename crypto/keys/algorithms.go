// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package keys

import (
	sagecrypto "github.com/meshid/teamauth/crypto"
)

// init wires this package's concrete key generators and box (HPKE)
// implementation into the crypto package's indirection points
// (wrappers.go, box.go), breaking the crypto <-> crypto/keys import
// cycle: crypto declares the KeyPair/KeyType interface, crypto/keys
// implements it and registers itself here.
func init() {
	sagecrypto.SetKeyGenerators(
		func() (sagecrypto.KeyPair, error) { return GenerateEd25519KeyPair() },
		func() (sagecrypto.KeyPair, error) { return GenerateSecp256k1KeyPair() },
	)
	sagecrypto.SetBoxFunctions(EncryptWithEd25519Peer, DecryptWithEd25519Peer)
}
