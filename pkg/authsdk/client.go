package authsdk

import (
	"net/http"
	"strings"
	"time"
)

// StoreDomainHeader selects the store a request is made against.
const StoreDomainHeader = "X-Store-Domain"

// refreshBuffer is how long before expiry a Session refreshes its access
// token.
const refreshBuffer = 30 * time.Second

// SDKClient is a client for the storefront identity service.
// It provides access to unauthenticated operations and can create authenticated Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// StoreDomain, when set, is sent as X-Store-Domain on every request so
	// tokens are issued for and checked against that store.
	StoreDomain string
}

// NewSDKClient creates a new identity service client.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ForStore returns a copy of the client bound to storeDomain. The HTTP
// client is shared.
func (c *SDKClient) ForStore(storeDomain string) *SDKClient {
	cp := *c
	cp.StoreDomain = storeDomain
	return &cp
}

// NewSessionFromTokens creates an authenticated session from existing tokens,
// for instance ones persisted by a previous run. The session still refreshes
// itself when the access token expires.
func (c *SDKClient) NewSessionFromTokens(accessToken, refreshToken string, expiresIn int64) *Session {
	return newSession(c, &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	})
}
