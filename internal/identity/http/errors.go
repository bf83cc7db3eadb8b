package http

import (
	"errors"
	"math"
	"net/http"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/service"
	"github.com/aussiebroadwan/storefront/pkg/authsdk"
	"github.com/aussiebroadwan/storefront/pkg/httpx"
	"github.com/aussiebroadwan/storefront/pkg/slogx"
)

// errorMapping is checked in order; the first sentinel that matches wins.
var errorMapping = []struct {
	err  error
	resp *httpx.APIError
}{
	{service.ErrInvalidCredentials, apiError(http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect")},
	{service.ErrEmailNotVerified, apiError(http.StatusForbidden, "email_not_verified", "verify your email address before signing in")},
	{service.ErrEmailTaken, apiError(http.StatusConflict, "email_taken", "an account with this email already exists")},
	{service.ErrInvalidEmail, apiError(http.StatusBadRequest, "invalid_email", "email address is not valid")},
	{service.ErrWeakPassword, apiError(http.StatusBadRequest, "weak_password", "password must be at least 8 characters")},
	{service.ErrUserNotFound, apiError(http.StatusNotFound, "user_not_found", "user not found")},
	{service.ErrInvalidName, apiError(http.StatusBadRequest, "invalid_name", "name must be 1 to 100 characters without control characters")},
	{service.ErrAlreadyVerified, apiError(http.StatusConflict, "already_verified", "email address is already verified")},

	{service.ErrTokenReuseDetected, apiError(http.StatusUnauthorized, "token_reuse_detected", "refresh token was already used; all sessions from this login were signed out")},
	{service.ErrTokenExpired, apiError(http.StatusUnauthorized, "token_expired", "token expired")},
	{service.ErrTokenInvalid, apiError(http.StatusUnauthorized, "invalid_token", "token is invalid")},

	{service.ErrNoTenantHint, apiError(http.StatusBadRequest, "tenant_required", "set X-Store-Domain or use a store-scoped token")},
	{service.ErrTenantNotFound, apiError(http.StatusNotFound, "tenant_not_found", "store not found")},
	{service.ErrTenantMismatch, apiError(http.StatusForbidden, "tenant_mismatch", "token was issued for a different store")},
	{service.ErrTenantInactive, apiError(http.StatusForbidden, "tenant_inactive", "store is not active")},
	{service.ErrDomainTaken, apiError(http.StatusConflict, "domain_taken", "a store with this domain already exists")},
	{service.ErrInvalidDomain, apiError(http.StatusBadRequest, "invalid_domain", "domain is not valid")},
	{service.ErrInvalidPlan, apiError(http.StatusBadRequest, "invalid_plan", "plan must be one of free, basic, premium, enterprise")},

	{service.ErrInsufficientRole, apiError(http.StatusForbidden, "insufficient_role", "your role in this store does not allow this")},
	{service.ErrNoMembership, apiError(http.StatusForbidden, "insufficient_role", "you are not a member of this store")},
	{service.ErrInvalidRole, apiError(http.StatusBadRequest, "invalid_role", "role must be one of owner, admin, staff, member")},

	{service.ErrOTPNotFound, apiError(http.StatusBadRequest, "otp_not_found", "no active code; request a new one")},
	{service.ErrOTPExpired, apiError(http.StatusBadRequest, "otp_expired", "code expired; request a new one")},
	{service.ErrOTPLocked, apiError(http.StatusTooManyRequests, "otp_locked", "too many wrong attempts; request a new code")},
	{service.ErrOTPMismatch, apiError(http.StatusBadRequest, "otp_mismatch", "code is incorrect")},
	{service.ErrOTPAlreadyConsumed, apiError(http.StatusConflict, "otp_already_consumed", "code was already used")},
}

func apiError(status int, code, desc string) *httpx.APIError {
	return &httpx.APIError{StatusCode: status, Code: code, Description: desc}
}

// writeError maps a service error to its JSON response. Unknown errors are
// logged and hidden behind server_error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooSoon *service.ResendTooSoonError
	if errors.As(err, &tooSoon) {
		(&httpx.APIError{
			StatusCode:  http.StatusTooManyRequests,
			Code:        "resend_too_soon",
			Description: "wait before requesting another code",
			RetryAfter:  int(math.Ceil(tooSoon.RetryAfter.Seconds())),
		}).WriteError(w)
		return
	}

	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			m.resp.WriteError(w)
			return
		}
	}

	slogx.FromContext(r.Context()).Error("request failed", "err", err)
	httpx.ErrServerError.WriteError(w)
}

func invalidRequest(w http.ResponseWriter, desc string) {
	apiError(http.StatusBadRequest, "invalid_request", desc).WriteError(w)
}

func deliveryInfo(r domain.DeliveryReceipt) authsdk.DeliveryInfo {
	info := authsdk.DeliveryInfo{Path: string(r.Path), Status: string(r.Status)}
	if r.Failed() {
		info.Warning = domain.ErrNotificationDeliveryFailed.Error()
	}
	return info
}
