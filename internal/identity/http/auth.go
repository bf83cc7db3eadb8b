package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/service"
	"github.com/aussiebroadwan/storefront/pkg/authsdk"
	"github.com/aussiebroadwan/storefront/pkg/httpx"
)

// AuthHandler serves the account and token endpoints under /v1/auth.
type AuthHandler struct {
	Accounts *service.AccountService
	Resolver *service.TenantResolver
}

func userResponse(u domain.User) authsdk.UserResponse {
	return authsdk.UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

func tokenResponse(p *domain.TokenPair) authsdk.TokenResponse {
	return authsdk.TokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		ExpiresIn:    p.ExpiresIn,
	}
}

func parsePurpose(s string) (domain.Purpose, error) {
	if strings.TrimSpace(s) == "" {
		return domain.PurposeEmailVerify, nil
	}
	return domain.ParsePurpose(s)
}

// HandleRegister godoc
//
//	@Summary		Register
//	@Description	Create an account and email a verification code. The account is created even when the email can't be sent; check delivery.status.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.RegisterRequest		true	"email, password, name"
//	@Success		201		{object}	authsdk.RegisterResponse	"user, delivery"
//	@Failure		400		{object}	authsdk.ErrorResponse		"invalid_email, weak_password"
//	@Failure		409		{object}	authsdk.ErrorResponse		"email_taken"
//	@Router			/v1/auth/register [post].
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		invalidRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		invalidRequest(w, "email and password are required")
		return
	}

	res, err := h.Accounts.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.RegisterResponse{
		User:     userResponse(res.User),
		Delivery: deliveryInfo(res.Delivery),
	})
}

// HandleLogin godoc
//
//	@Summary		Login
//	@Description	Exchange email and password for an access/refresh token pair. When X-Store-Domain names a store, the tokens are scoped to it.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			X-Store-Domain	header		string					false	"Store domain"
//	@Param			body			body		authsdk.LoginRequest	true	"email, password"
//	@Success		200				{object}	authsdk.TokenResponse	"access_token, refresh_token, token_type, expires_in"
//	@Failure		401				{object}	authsdk.ErrorResponse	"invalid_credentials"
//	@Failure		403				{object}	authsdk.ErrorResponse	"email_not_verified, tenant_inactive"
//	@Failure		404				{object}	authsdk.ErrorResponse	"tenant_not_found"
//	@Failure		429				{object}	authsdk.ErrorResponse	"rate_limit_exceeded"
//	@Router			/v1/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		invalidRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		invalidRequest(w, "email and password are required")
		return
	}

	// The Host of a login request is usually the API itself, so only an
	// explicit store header has to resolve.
	hint := tenantHint(r)
	var tenantID string
	t, err := h.Resolver.Resolve(r.Context(), hint)
	switch {
	case err == nil:
		tenantID = t.ID
	case hint.Domain == "" && (errors.Is(err, service.ErrTenantNotFound) || errors.Is(err, service.ErrNoTenantHint)):
	default:
		writeError(w, r, err)
		return
	}

	pair, err := h.Accounts.Login(r.Context(), req.Email, req.Password, tenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleVerifyOTP godoc
//
//	@Summary		Verify one-time code
//	@Description	Redeem an emailed code. An email-verify code marks the address verified.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.VerifyOTPRequest	true	"email, code, purpose"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"otp_not_found, otp_expired, otp_mismatch"
//	@Failure		409		{object}	authsdk.ErrorResponse	"otp_already_consumed"
//	@Failure		429		{object}	authsdk.ErrorResponse	"otp_locked"
//	@Router			/v1/auth/verify-otp [post].
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.VerifyOTPRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		invalidRequest(w, "invalid JSON body")
		return
	}
	purpose, err := parsePurpose(req.Purpose)
	if err != nil {
		invalidRequest(w, "purpose must be email-verify or password-reset")
		return
	}
	if req.Email == "" || req.Code == "" {
		invalidRequest(w, "email and code are required")
		return
	}

	if err := h.Accounts.VerifyOTP(r.Context(), req.Email, purpose, req.Code); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "code verified"})
}

// HandleResendOTP godoc
//
//	@Summary		Resend one-time code
//	@Description	Issue a fresh code, replacing the previous one. Limited to one per minute.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.ResendOTPRequest	true	"email, purpose"
//	@Success		200		{object}	authsdk.ResendOTPResponse	"delivery"
//	@Failure		404		{object}	authsdk.ErrorResponse		"user_not_found"
//	@Failure		409		{object}	authsdk.ErrorResponse		"already_verified"
//	@Failure		429		{object}	authsdk.ErrorResponse		"resend_too_soon"
//	@Router			/v1/auth/resend-otp [post].
func (h *AuthHandler) HandleResendOTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ResendOTPRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		invalidRequest(w, "invalid JSON body")
		return
	}
	purpose, err := parsePurpose(req.Purpose)
	if err != nil {
		invalidRequest(w, "purpose must be email-verify or password-reset")
		return
	}
	if req.Email == "" {
		invalidRequest(w, "email is required")
		return
	}

	receipt, err := h.Accounts.ResendOTP(r.Context(), req.Email, purpose)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.ResendOTPResponse{Delivery: deliveryInfo(receipt)})
}

// HandleRefresh godoc
//
//	@Summary		Refresh tokens
//	@Description	Exchange a refresh token for a new pair. Each refresh token works once; replaying one signs out the whole login.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.RefreshRequest	true	"refresh_token"
//	@Success		200		{object}	authsdk.TokenResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid_token, token_expired, token_reuse_detected"
//	@Router			/v1/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		invalidRequest(w, "refresh_token is required")
		return
	}

	pair, err := h.Accounts.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleLogout godoc
//
//	@Summary		Logout
//	@Description	Revoke every refresh token descended from the same login.
//	@Tags			Auth
//	@Accept			json
//	@Param			body	body	authsdk.RefreshRequest	true	"refresh_token"
//	@Success		204
//	@Failure		401	{object}	authsdk.ErrorResponse	"invalid_token"
//	@Router			/v1/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		invalidRequest(w, "refresh_token is required")
		return
	}

	if err := h.Accounts.Logout(r.Context(), req.RefreshToken); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleChangePassword godoc
//
//	@Summary		Change password
//	@Description	Replace the caller's password. All sessions are signed out.
//	@Tags			Auth
//	@Accept			json
//	@Security		BearerAuth
//	@Param			body	body	authsdk.ChangePasswordRequest	true	"current_password, new_password"
//	@Success		204
//	@Failure		400	{object}	authsdk.ErrorResponse	"weak_password"
//	@Failure		401	{object}	authsdk.ErrorResponse	"invalid_credentials, invalid_token"
//	@Router			/v1/auth/change-password [post].
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpx.UserIDFromContext(r.Context())

	var req authsdk.ChangePasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		invalidRequest(w, "invalid JSON body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		invalidRequest(w, "current_password and new_password are required")
		return
	}

	if err := h.Accounts.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResetRequest godoc
//
//	@Summary		Request password reset
//	@Description	Email a reset code. Always answers 202 so it can't be used to find accounts.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.PasswordResetRequest	true	"email"
//	@Success		202		{object}	authsdk.MessageResponse
//	@Router			/v1/auth/reset-password/request [post].
func (h *AuthHandler) HandleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req authsdk.PasswordResetRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.Email == "" {
		invalidRequest(w, "email is required")
		return
	}

	if err := h.Accounts.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, authsdk.MessageResponse{
		Message: "if the address has an account, a reset code is on its way",
	})
}

// HandleResetConfirm godoc
//
//	@Summary		Confirm password reset
//	@Description	Set a new password using the emailed code. All sessions are signed out.
//	@Tags			Auth
//	@Accept			json
//	@Param			body	body	authsdk.PasswordResetConfirmRequest	true	"email, code, new_password"
//	@Success		204
//	@Failure		400	{object}	authsdk.ErrorResponse	"otp_mismatch, otp_expired, weak_password"
//	@Failure		429	{object}	authsdk.ErrorResponse	"otp_locked"
//	@Router			/v1/auth/reset-password/confirm [post].
func (h *AuthHandler) HandleResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req authsdk.PasswordResetConfirmRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		invalidRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Code == "" || req.NewPassword == "" {
		invalidRequest(w, "email, code and new_password are required")
		return
	}

	if err := h.Accounts.ConfirmPasswordReset(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe godoc
//
//	@Summary		Current user
//	@Tags			Auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.UserResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"invalid_token"
//	@Router			/v1/me [get].
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpx.UserIDFromContext(r.Context())

	u, err := h.Accounts.Me(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userResponse(u))
}

// HandleUpdateMe godoc
//
//	@Summary		Update current user
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		authsdk.UpdateProfileRequest	true	"New profile fields"
//	@Success		200		{object}	authsdk.UserResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"invalid_name"
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid_token"
//	@Router			/v1/me [patch].
func (h *AuthHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpx.UserIDFromContext(r.Context())

	var req authsdk.UpdateProfileRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		invalidRequest(w, "invalid JSON body")
		return
	}

	u, err := h.Accounts.UpdateProfile(r.Context(), userID, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userResponse(u))
}
