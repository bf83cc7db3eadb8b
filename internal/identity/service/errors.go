package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrEmailNotVerified   = errors.New("email_not_verified")
	ErrEmailTaken         = errors.New("email_taken")
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrWeakPassword       = errors.New("weak_password")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrAlreadyVerified    = errors.New("already_verified")
	ErrInvalidName        = errors.New("invalid_name")

	ErrTokenInvalid       = errors.New("token_invalid")
	ErrTokenExpired       = errors.New("token_expired")
	ErrTokenReuseDetected = errors.New("token_reuse_detected")

	ErrNoTenantHint   = errors.New("no_tenant_hint")
	ErrTenantNotFound = errors.New("tenant_not_found")
	ErrTenantMismatch = errors.New("tenant_mismatch")
	ErrTenantInactive = errors.New("tenant_inactive")
	ErrDomainTaken    = errors.New("domain_taken")
	ErrInvalidDomain  = errors.New("invalid_domain")
	ErrInvalidPlan    = errors.New("invalid_plan")

	ErrInsufficientRole = errors.New("insufficient_role")
	ErrNoMembership     = errors.New("no_membership")
	ErrInvalidRole      = errors.New("invalid_role")

	ErrOTPNotFound        = errors.New("otp_not_found")
	ErrOTPExpired         = errors.New("otp_expired")
	ErrOTPMismatch        = errors.New("otp_mismatch")
	ErrOTPLocked          = errors.New("otp_locked")
	ErrOTPAlreadyConsumed = errors.New("otp_already_consumed")
	ErrResendTooSoon      = errors.New("resend_too_soon")

	// ErrNotificationDeliveryFailed only ever shows up inside a
	// DeliveryReceipt, never as a workflow's returned error.
	ErrNotificationDeliveryFailed = domain.ErrNotificationDeliveryFailed
)

// ResendTooSoonError carries how long the caller has to wait before another
// code can be issued. errors.Is(err, ErrResendTooSoon) matches it.
type ResendTooSoonError struct {
	RetryAfter time.Duration
}

func (e *ResendTooSoonError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrResendTooSoon, e.RetryAfter)
}

func (e *ResendTooSoonError) Is(target error) bool { return target == ErrResendTooSoon }
