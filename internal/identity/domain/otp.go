package domain

import (
	"fmt"
	"time"
)

// Purpose scopes a one-time code. Codes for different purposes never
// interfere with each other.
type Purpose string

const (
	PurposeEmailVerify   Purpose = "email-verify"
	PurposePasswordReset Purpose = "password-reset"
)

func ParsePurpose(s string) (Purpose, error) {
	switch p := Purpose(s); p {
	case PurposeEmailVerify, PurposePasswordReset:
		return p, nil
	}
	return "", fmt.Errorf("unknown purpose %q", s)
}

// OneTimeCode is the stored half of an OTP. Only a fingerprint of the
// plaintext is kept.
type OneTimeCode struct {
	ID           string
	UserID       string
	Purpose      Purpose
	CodeHash     string
	Version      int64 // per (user, purpose), bumped on every issue
	Attempts     int
	IssuedAt     time.Time
	ExpiresAt    time.Time
	ConsumedAt   *time.Time
	SupersededAt *time.Time
}

// Active means neither consumed nor replaced by a newer code. An active code
// may still be expired.
func (c OneTimeCode) Active() bool {
	return c.ConsumedAt == nil && c.SupersededAt == nil
}

func (c OneTimeCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// IssuedCode is handed back to the caller once; the plaintext is not stored.
type IssuedCode struct {
	Code      string
	Version   int64
	ExpiresAt time.Time
}
