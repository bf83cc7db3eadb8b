package cryptox

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

// otpSecretSize matches the RFC 4226 recommended 160-bit shared secret.
const otpSecretSize = 20

// GenerateNumericCode returns a fresh six digit one-time code. Every call
// draws a new random HOTP secret; counter is mixed in so two codes issued for
// the same record never share the same moving factor.
func GenerateNumericCode(counter uint64) (string, error) {
	secret := make([]byte, otpSecretSize)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("cryptox: generate otp secret: %w", err)
	}

	code, err := hotp.GenerateCodeCustom(
		base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secret),
		counter,
		hotp.ValidateOpts{
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		},
	)
	if err != nil {
		return "", fmt.Errorf("cryptox: generate otp: %w", err)
	}

	return code, nil
}

// MinCodeKeySize is the shortest key FingerprintCode should be given.
const MinCodeKeySize = TokenSize256

// FingerprintCode returns an HMAC-SHA256 of the code under a server key,
// bound to the record it was issued for. Without the key a stored fingerprint
// can't be matched against the million possible codes offline, and identical
// codes on different records never share a fingerprint.
func FingerprintCode(key []byte, salt, code string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(salt + ":" + code))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// EqualFingerprints compares two fingerprints in constant time.
func EqualFingerprints(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
