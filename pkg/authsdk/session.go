package authsdk

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Session represents an authenticated session with automatic token refresh.
// All Session methods automatically handle token expiration and refresh when needed.
type Session struct {
	client *SDKClient

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// newSession creates a new authenticated session from a token response.
func newSession(client *SDKClient, tokens *TokenResponse) *Session {
	s := &Session{client: client}
	s.setTokens(tokens)
	return s
}

// setTokens must be called with mu held for writing, or before s is shared.
func (s *Session) setTokens(tokens *TokenResponse) {
	s.accessToken = tokens.AccessToken
	s.refreshToken = tokens.RefreshToken
	s.expiresAt = time.Now().Add(time.Duration(tokens.ExpiresIn)*time.Second - refreshBuffer)
}

// getValidToken returns a valid access token, automatically refreshing if expired.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited. Refreshing twice
	// would present a spent token and revoke the session.
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}

	if s.refreshToken == "" {
		return "", ErrNoRefreshToken
	}

	tokens, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	s.setTokens(tokens)

	return s.accessToken, nil
}

// Refresh rotates the session's tokens now, regardless of expiry.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refreshToken == "" {
		return ErrNoRefreshToken
	}

	tokens, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return err
	}
	s.setTokens(tokens)
	return nil
}

// Logout revokes the session server-side and forgets its tokens.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refreshToken == "" {
		return ErrNoRefreshToken
	}

	if err := s.client.Logout(ctx, s.refreshToken); err != nil {
		return err
	}
	s.accessToken = ""
	s.refreshToken = ""
	s.expiresAt = time.Time{}
	return nil
}

// AccessToken returns the current access token without checking expiration.
// For most use cases, prefer using the Session methods which handle refresh automatically.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// Me returns the authenticated user.
func (s *Session) Me(ctx context.Context) (*UserResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/me", nil)
	if err != nil {
		return nil, err
	}

	var out UserResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile sets the display name and returns the updated account.
func (s *Session) UpdateProfile(ctx context.Context, name string) (*UserResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPatch, "/v1/me", UpdateProfileRequest{Name: name})
	if err != nil {
		return nil, err
	}

	var out UserResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangePassword replaces the password. Every session of the account,
// this one included, is revoked by the server; log in again afterwards.
func (s *Session) ChangePassword(ctx context.Context, current, next string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/auth/change-password", ChangePasswordRequest{
		CurrentPassword: current,
		NewPassword:     next,
	})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}
