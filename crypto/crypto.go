package crypto

import (
	"crypto/rand"
	"fmt"
)

// Random returns n cryptographically random bytes. This is the
// Crypto.Random primitive the invitation-seed, challenge-nonce, and
// session-seed generators all build on.
func Random(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("crypto: random: %w", err)
	}
	return buf, nil
}
