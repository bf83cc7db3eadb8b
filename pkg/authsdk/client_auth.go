package authsdk

import (
	"context"
	"net/http"
)

// Register creates an account. The response reports whether the
// verification email went out; a failed delivery is not an error.
func (c *SDKClient) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/register", req)
	if err != nil {
		return nil, err
	}

	var out RegisterResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for a token pair.
func (c *SDKClient) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/login", LoginRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return nil, err
	}

	var out TokenResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthenticateWithPassword logs in and wraps the tokens in a Session.
func (c *SDKClient) AuthenticateWithPassword(ctx context.Context, email, password string) (*Session, error) {
	tokens, err := c.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return newSession(c, tokens), nil
}

// AuthenticateWithRefreshToken creates an authenticated session from an
// existing refresh token. The token is rotated in the process.
func (c *SDKClient) AuthenticateWithRefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	tokens, err := c.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return newSession(c, tokens), nil
}

// VerifyOTP redeems a one-time code. An empty purpose means email
// verification.
func (c *SDKClient) VerifyOTP(ctx context.Context, email, code, purpose string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/verify-otp", VerifyOTPRequest{
		Email:   email,
		Code:    code,
		Purpose: purpose,
	})
	if err != nil {
		return err
	}

	var out MessageResponse
	return decodeJSON(resp, &out, http.StatusOK)
}

// ResendOTP asks for a fresh code. A resend inside the cooldown fails with
// resend_too_soon and APIError.RetryAfter set.
func (c *SDKClient) ResendOTP(ctx context.Context, email, purpose string) (*ResendOTPResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/resend-otp", ResendOTPRequest{
		Email:   email,
		Purpose: purpose,
	})
	if err != nil {
		return nil, err
	}

	var out ResendOTPResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh rotates a refresh token. The old token must not be used again:
// presenting it a second time revokes the whole session.
func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/refresh", RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}

	var out TokenResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes the session the refresh token belongs to.
func (c *SDKClient) Logout(ctx context.Context, refreshToken string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/logout", RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// RequestPasswordReset emails a reset code if the address has an account.
// The result is the same either way.
func (c *SDKClient) RequestPasswordReset(ctx context.Context, email string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/reset-password/request", PasswordResetRequest{Email: email})
	if err != nil {
		return err
	}

	var out MessageResponse
	return decodeJSON(resp, &out, http.StatusAccepted)
}

// ConfirmPasswordReset sets a new password using the emailed code. Every
// session of the account is revoked.
func (c *SDKClient) ConfirmPasswordReset(ctx context.Context, req PasswordResetConfirmRequest) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/reset-password/confirm", req)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}
