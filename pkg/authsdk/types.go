package authsdk

import "time"

// ============================================================================
// Error Types
// ============================================================================

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	// Error is a stable machine-readable code (e.g. "otp_expired")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`
}

// MessageResponse is returned by endpoints that have nothing else to say.
type MessageResponse struct {
	Message string `json:"message"`
}

// ============================================================================
// Account Types
// ============================================================================

// RegisterRequest creates an account. A verification code is emailed.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// DeliveryInfo reports how the account email triggered by a request went.
// A failed delivery never fails the request itself.
type DeliveryInfo struct {
	// Path is "queued" or "inline"
	Path string `json:"path"`

	// Status is "queued", "delivered", "duplicate" or "failed"
	Status string `json:"status"`

	// Warning is set when Status is "failed"
	Warning string `json:"warning,omitempty"`
}

// RegisterResponse is returned from POST /v1/auth/register.
type RegisterResponse struct {
	User     UserResponse `json:"user"`
	Delivery DeliveryInfo `json:"delivery"`
}

// LoginRequest exchanges credentials for a token pair. The store is taken
// from the X-Store-Domain header when present.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// VerifyOTPRequest redeems a one-time code. Purpose defaults to
// "email-verify".
type VerifyOTPRequest struct {
	Email   string `json:"email"`
	Code    string `json:"code"`
	Purpose string `json:"purpose,omitempty"`
}

// ResendOTPRequest asks for a fresh code, subject to a cooldown.
type ResendOTPRequest struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose,omitempty"`
}

// ResendOTPResponse is returned from POST /v1/auth/resend-otp.
type ResendOTPResponse struct {
	Delivery DeliveryInfo `json:"delivery"`
}

// ChangePasswordRequest replaces the caller's password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// UpdateProfileRequest is the body of PATCH /v1/me.
type UpdateProfileRequest struct {
	Name string `json:"name"`
}

// PasswordResetRequest starts a reset. The response is the same whether or
// not the address exists.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PasswordResetConfirmRequest finishes a reset with the emailed code.
type PasswordResetConfirmRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

// UserResponse describes an account.
type UserResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// ============================================================================
// Token Types
// ============================================================================

// TokenResponse is returned from login and refresh.
type TokenResponse struct {
	// AccessToken is the JWT access token used to authenticate API requests
	AccessToken string `json:"access_token"`

	// RefreshToken is single use; every refresh returns a new one
	RefreshToken string `json:"refresh_token"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int64 `json:"expires_in"`
}

// RefreshRequest carries the refresh token for refresh and logout.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ============================================================================
// Store Types
// ============================================================================

// CreateStoreRequest creates a store owned by the caller. Plan defaults to
// "free".
type CreateStoreRequest struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Plan   string `json:"plan,omitempty"`
}

// PlanLimits are the ceilings of a store's plan. Zero means unlimited.
type PlanLimits struct {
	MaxProducts       int `json:"max_products"`
	MaxOrdersPerMonth int `json:"max_orders_per_month"`
}

// StoreResponse describes a store. Role is the caller's role in it.
type StoreResponse struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Domain  string     `json:"domain"`
	OwnerID string     `json:"owner_id"`
	Plan    string     `json:"plan"`
	Status  string     `json:"status"`
	Limits  PlanLimits `json:"limits"`
	Role    string     `json:"role,omitempty"`
}

// GrantRoleRequest sets a user's role in the current store.
type GrantRoleRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// MemberResponse is one membership of a store.
type MemberResponse struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// MembersResponse lists the memberships of a store.
type MembersResponse struct {
	Members []MemberResponse `json:"members"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
type HealthResponse struct {
	// Status is "ok" or "degraded"
	Status string `json:"status"`

	// Uptime is how long the service has been running
	Uptime string `json:"uptime"`

	// Version is the build version
	Version string `json:"version"`

	// Checks is only present on /readyz
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the status of critical service dependencies.
type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
	Queue    string `json:"queue,omitempty"`
}
