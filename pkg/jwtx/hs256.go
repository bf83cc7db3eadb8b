package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// MinHMACSecretSize is the smallest secret we accept for HS256, matching the
// digest size.
const MinHMACSecretSize = 32

// HS256Signer implements the Signer interface with a shared HMAC secret.
type HS256Signer struct {
	secret []byte
}

func newHS256Signer(secret []byte) (*HS256Signer, error) {
	if len(secret) < MinHMACSecretSize {
		return nil, errors.New("jwtx: HS256 secret must be at least 32 bytes")
	}
	return &HS256Signer{secret: secret}, nil
}

func (s *HS256Signer) Alg() string { return jwt.SigningMethodHS256.Alg() }

// Sign takes your claims and turns them into a signed JWT string.
func (s *HS256Signer) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validate makes sure the secret is still usable.
func (s *HS256Signer) Validate() error {
	if len(s.secret) < MinHMACSecretSize {
		return errors.New("jwtx: HS256 secret too short")
	}
	return nil
}

// HS256Verifier validates JWTs signed with a shared HMAC secret.
type HS256Verifier struct {
	secret []byte
	issuer string
}

// NewVerifierHS256 creates a verifier for the given secret.
func NewVerifierHS256(secret []byte, issuer string) *HS256Verifier {
	return &HS256Verifier{secret: secret, issuer: issuer}
}

// Verify validates the JWT string and returns its parsed Claims.
func (v *HS256Verifier) Verify(tokenStr string) (Claims, error) {
	return parseAndValidate(tokenStr, jwt.SigningMethodHS256, v.issuer, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
}
