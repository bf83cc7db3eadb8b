package jwtx

import (
	"crypto/ed25519"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// EdDSAVerifier validates JWTs signed using EdDSA (Ed25519).
type EdDSAVerifier struct {
	kid    string
	pub    ed25519.PublicKey
	issuer string
}

// NewVerifierEdDSA creates a verifier for tokens signed by the key with the
// given kid.
func NewVerifierEdDSA(kid string, pub ed25519.PublicKey, issuer string) *EdDSAVerifier {
	return &EdDSAVerifier{kid: kid, pub: pub, issuer: issuer}
}

// Verify validates the JWT string and returns its parsed Claims.
func (v *EdDSAVerifier) Verify(tokenStr string) (Claims, error) {
	return parseAndValidate(tokenStr, jwt.SigningMethodEdDSA, v.issuer, func(t *jwt.Token) (any, error) {
		// Need the kid to know the token came from our key
		kid, _ := t.Header["kid"].(string)
		if kid != v.kid {
			return nil, ErrUnknownKID
		}
		if len(v.pub) != ed25519.PublicKeySize {
			return nil, errors.New("jwtx: invalid Ed25519 key")
		}
		return v.pub, nil
	})
}
