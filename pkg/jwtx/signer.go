package jwtx

import "crypto/ed25519"

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	Sign(Claims) (string, error)
	Validate() error
}

// NewSignerHS256 creates an HMAC-SHA256 signer from a shared secret.
func NewSignerHS256(secret []byte) (Signer, error) {
	return newHS256Signer(secret)
}

// NewSignerEdDSA creates an EdDSA signer around an in-memory key.
func NewSignerEdDSA(kid string, key ed25519.PrivateKey) (Signer, error) {
	return newEdDSASigner(kid, key)
}
