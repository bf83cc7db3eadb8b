package cryptox

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the bcrypt input ceiling. Anything past this is
// silently ignored by the algorithm, so we cut it ourselves and never error.
const MaxPasswordBytes = 72

// ErrPasswordMismatch is returned by VerifyPassword when the password does not
// match the digest.
var ErrPasswordMismatch = errors.New("password does not match")

// PasswordHasher hashes passwords with bcrypt at a fixed cost.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a hasher with the given bcrypt cost. A cost of zero
// selects bcrypt.DefaultCost.
func NewPasswordHasher(cost int) (*PasswordHasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("cryptox: bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &PasswordHasher{cost: cost}, nil
}

// Hash returns a salted bcrypt digest of password. Inputs longer than
// MaxPasswordBytes are truncated first.
func (h *PasswordHasher) Hash(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword(truncate(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("cryptox: hash password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether password matches digest. Malformed digests simply
// don't match.
func (h *PasswordHasher) Verify(password, digest string) bool {
	return VerifyPassword(password, digest) == nil
}

// VerifyPassword compares a plaintext password against a bcrypt digest using
// the same truncation rule as Hash.
func VerifyPassword(password, digest string) error {
	err := bcrypt.CompareHashAndPassword([]byte(digest), truncate(password))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return fmt.Errorf("cryptox: invalid hash format: %w", err)
}

func truncate(password string) []byte {
	b := []byte(password)
	if len(b) > MaxPasswordBytes {
		b = b[:MaxPasswordBytes]
	}
	return b
}
