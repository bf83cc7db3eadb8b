package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Error codes returned by the identity service.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeServerError        = "server_error"
	ErrorCodeRateLimitExceeded  = "rate_limit_exceeded"
	ErrorCodeInvalidEmail       = "invalid_email"
	ErrorCodeWeakPassword       = "weak_password"
	ErrorCodeInvalidName        = "invalid_name"
	ErrorCodeEmailTaken         = "email_taken"
	ErrorCodeUserNotFound       = "user_not_found"
	ErrorCodeInvalidCredentials = "invalid_credentials"
	ErrorCodeEmailNotVerified   = "email_not_verified"
	ErrorCodeAlreadyVerified    = "already_verified"
	ErrorCodeOTPNotFound        = "otp_not_found"
	ErrorCodeOTPExpired         = "otp_expired"
	ErrorCodeOTPMismatch        = "otp_mismatch"
	ErrorCodeOTPLocked          = "otp_locked"
	ErrorCodeOTPAlreadyConsumed = "otp_already_consumed"
	ErrorCodeResendTooSoon      = "resend_too_soon"
	ErrorCodeInvalidToken       = "invalid_token"
	ErrorCodeTokenExpired       = "token_expired"
	ErrorCodeTokenReuseDetected = "token_reuse_detected"
	ErrorCodeTenantRequired     = "tenant_required"
	ErrorCodeTenantNotFound     = "tenant_not_found"
	ErrorCodeTenantInactive     = "tenant_inactive"
	ErrorCodeTenantMismatch     = "tenant_mismatch"
	ErrorCodeDomainTaken        = "domain_taken"
	ErrorCodeInvalidDomain      = "invalid_domain"
	ErrorCodeInvalidPlan        = "invalid_plan"
	ErrorCodeInvalidRole        = "invalid_role"
	ErrorCodeInsufficientRole   = "insufficient_role"
)

// ErrNoRefreshToken is returned by Session operations that need a refresh
// token the session does not hold.
var ErrNoRefreshToken = errors.New("authsdk: no refresh token")

// APIError is a failed response from the identity service.
type APIError struct {
	// StatusCode is the HTTP status of the response
	StatusCode int

	// Code is the stable error code, one of the ErrorCode constants
	Code string

	// Description is the human-readable description from the server
	Description string

	// RetryAfter is the Retry-After header in seconds, when present
	RetryAfter int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// parseErrorResponse turns a non-2xx response into an *APIError. Bodies that
// are not the service's error shape fall back to a server_error with the
// HTTP status text.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if s := resp.Header.Get("Retry-After"); s != "" {
		apiErr.RetryAfter, _ = strconv.Atoi(s)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Error
		apiErr.Description = errResp.ErrorDescription
		return apiErr
	}

	apiErr.Code = ErrorCodeServerError
	apiErr.Description = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	return apiErr
}
