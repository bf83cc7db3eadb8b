package jwtx

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants. These are the construction defaults and can be
// overridden per deployment.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Token types carried in the "typ" claim. A refresh token must never be
// accepted where an access token is expected and the other way around.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims are the claims shared by access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Type is either TypeAccess or TypeRefresh
	Type string `json:"typ"`

	// Session ID, shared by every refresh token produced by rotating the
	// same login
	SID string `json:"sid,omitempty"`

	// TenantID of the store the token was issued for, empty for
	// tenant-agnostic tokens
	TenantID string `json:"tid,omitempty"`
}

// ClaimsParams is the input for NewClaims.
type ClaimsParams struct {
	Type     string
	Subject  string
	SID      string
	TenantID string
	JTI      string
	Issuer   string
	TTL      time.Duration
	Now      time.Time
}

// NewClaims builds minimally-correct claims.
func NewClaims(p ClaimsParams) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.Issuer,
			Subject:   p.Subject,
			IssuedAt:  jwt.NewNumericDate(p.Now),
			NotBefore: jwt.NewNumericDate(p.Now),
			ExpiresAt: jwt.NewNumericDate(p.Now.Add(p.TTL)),
			ID:        p.JTI,
		},
		Type:     p.Type,
		SID:      p.SID,
		TenantID: p.TenantID,
	}
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidateType checks the typ claim.
func (c *Claims) ValidateType(expected string) error {
	if c.Type != expected {
		return ErrWrongType
	}
	return nil
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't before nbf.
func (c *Claims) ValidateExpiry() error {
	return c.ValidateExpiryWithLeeway(0)
}

// ValidateExpiryWithLeeway adds a small grace period for clock skew.
func (c *Claims) ValidateExpiryWithLeeway(leeway time.Duration) error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	return nil
}
