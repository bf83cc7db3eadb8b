package domain

import "time"

// TokenPair is what login and refresh return.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"` // always "Bearer"
	ExpiresIn    int64  `json:"expires_in"` // access token lifetime in seconds
}

// RefreshSession is the server-side record of one refresh token, keyed by
// its jti. Rotation links sessions of one login into a chain via ChainID.
type RefreshSession struct {
	JTI        string
	UserID     string
	TenantID   string
	ChainID    string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy string
}

// Usable is false once the session has been rotated away or revoked.
func (s RefreshSession) Usable() bool {
	return s.RevokedAt == nil && s.ReplacedBy == ""
}
