package cryptox

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// GenerateEd25519KeyPair generates an in-memory Ed25519 key pair for
// ephemeral token signing. Keys never leave the process.
func GenerateEd25519KeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("cryptox: failed to generate Ed25519 key: %w", err)
	}
	return pub, priv, nil
}
