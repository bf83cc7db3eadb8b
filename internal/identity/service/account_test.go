package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/service"
	"github.com/stretchr/testify/require"
)

const password = "correct horse battery"

func TestRegisterThenLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	res, err := h.accounts.Register(ctx, "  Alice@Example.com ", password, "Alice")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", res.User.Email)
	require.Equal(t, domain.StatusDelivered, res.Delivery.Status)

	pair, err := h.accounts.Login(ctx, "ALICE@example.com", password, "")
	require.NoError(t, err)
	require.Equal(t, "Bearer", pair.TokenType)
	require.Positive(t, pair.ExpiresIn)

	access, err := h.tokens.ValidateAccess(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, res.User.ID, access.Subject)

	refresh, err := h.tokens.ValidateRefresh(pair.RefreshToken)
	require.NoError(t, err)

	sess, err := h.store.RefreshSessions().GetSessionByJTI(ctx, refresh.ID)
	require.NoError(t, err)
	require.True(t, sess.Usable())
	require.Equal(t, res.User.ID, sess.UserID)
	require.Equal(t, access.SID, sess.ChainID)
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.accounts.Register(ctx, "not-an-email", password, "")
	require.ErrorIs(t, err, service.ErrInvalidEmail)

	_, err = h.accounts.Register(ctx, "bob@example.com", "short", "")
	require.ErrorIs(t, err, service.ErrWeakPassword)

	_, err = h.accounts.Register(ctx, "bob@example.com", password, "")
	require.NoError(t, err)

	_, err = h.accounts.Register(ctx, "BOB@example.com", password, "")
	require.ErrorIs(t, err, service.ErrEmailTaken)
}

func TestLongPasswordsAreTruncatedConsistently(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	long := strings.Repeat("p", 100)
	_, err := h.accounts.Register(ctx, "long@example.com", long, "")
	require.NoError(t, err)

	_, err = h.accounts.Login(ctx, "long@example.com", long, "")
	require.NoError(t, err)

	// Only the first 72 bytes count
	_, err = h.accounts.Login(ctx, "long@example.com", strings.Repeat("p", 72)+"different", "")
	require.NoError(t, err)
}

func TestLoginFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "carol@example.com")

	_, err := h.accounts.Login(ctx, "carol@example.com", "wrong password", "")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = h.accounts.Login(ctx, "nobody@example.com", password, "")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	t.Run("verified email required", func(t *testing.T) {
		h.accounts.RequireVerifiedEmail = true
		defer func() { h.accounts.RequireVerifiedEmail = false }()

		u, code := h.register(t, "dave@example.com")
		_, err := h.accounts.Login(ctx, u.Email, password, "")
		require.ErrorIs(t, err, service.ErrEmailNotVerified)

		require.NoError(t, h.accounts.VerifyOTP(ctx, u.Email, domain.PurposeEmailVerify, code))
		_, err = h.accounts.Login(ctx, u.Email, password, "")
		require.NoError(t, err)
	})
}

// Wrong code, right code, right code again.
func TestVerifyEmailCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	alice, code := h.register(t, "alice@example.com")
	require.Len(t, code, 6)

	err := h.accounts.VerifyOTP(ctx, alice.Email, domain.PurposeEmailVerify, wrongCode(code))
	require.ErrorIs(t, err, service.ErrOTPMismatch)

	require.NoError(t, h.accounts.VerifyOTP(ctx, alice.Email, domain.PurposeEmailVerify, code))

	err = h.accounts.VerifyOTP(ctx, alice.Email, domain.PurposeEmailVerify, code)
	require.ErrorIs(t, err, service.ErrOTPAlreadyConsumed)

	u, err := h.accounts.Me(ctx, alice.ID)
	require.NoError(t, err)
	require.True(t, u.EmailVerified)
	require.Equal(t, 1, h.notifier.count(domain.NotifyEmailVerified))

	_, err = h.accounts.ResendOTP(ctx, alice.Email, domain.PurposeEmailVerify)
	require.ErrorIs(t, err, service.ErrAlreadyVerified)
}

// The mail backend is down but registration still succeeds.
func TestRegisterSurvivesNotificationFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.notifier.fail = true

	res, err := h.accounts.Register(ctx, "erin@example.com", password, "Erin")
	require.NoError(t, err)
	require.True(t, res.Delivery.Failed())
	require.ErrorIs(t, res.Delivery.Err, service.ErrNotificationDeliveryFailed)

	u, err := h.store.Users().GetUserByEmail(ctx, "erin@example.com")
	require.NoError(t, err)
	require.Equal(t, res.User.ID, u.ID)

	// The code was still issued and can be resent once the cooldown passes
	_, err = h.store.OneTimeCodes().GetLatestCode(ctx, u.ID, domain.PurposeEmailVerify)
	require.NoError(t, err)

	_, err = h.accounts.ResendOTP(ctx, u.Email, domain.PurposeEmailVerify)
	require.ErrorIs(t, err, service.ErrResendTooSoon)

	h.notifier.fail = false
	h.clock.Advance(service.DefaultOTPResendInterval)
	receipt, err := h.accounts.ResendOTP(ctx, u.Email, domain.PurposeEmailVerify)
	require.NoError(t, err)
	require.False(t, receipt.Failed())
}

func TestRegisterWithoutNotifier(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.accounts.Notifier = nil

	res, err := h.accounts.Register(context.Background(), "frank@example.com", password, "")
	require.NoError(t, err)
	require.True(t, res.Delivery.Failed())
}

func TestChangePassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	u, _ := h.register(t, "gina@example.com")

	pair, err := h.accounts.Login(ctx, u.Email, password, "")
	require.NoError(t, err)

	err = h.accounts.ChangePassword(ctx, u.ID, "not my password", "new password 1")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	err = h.accounts.ChangePassword(ctx, u.ID, password, "short")
	require.ErrorIs(t, err, service.ErrWeakPassword)

	require.NoError(t, h.accounts.ChangePassword(ctx, u.ID, password, "new password 1"))
	require.Equal(t, 1, h.notifier.count(domain.NotifyPasswordChanged))

	// Existing sessions are gone
	_, err = h.accounts.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, service.ErrTokenReuseDetected)

	_, err = h.accounts.Login(ctx, u.Email, password, "")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
	_, err = h.accounts.Login(ctx, u.Email, "new password 1", "")
	require.NoError(t, err)
}

func TestPasswordReset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	u, _ := h.register(t, "hana@example.com")

	pair, err := h.accounts.Login(ctx, u.Email, password, "")
	require.NoError(t, err)

	t.Run("unknown email is silent", func(t *testing.T) {
		require.NoError(t, h.accounts.RequestPasswordReset(ctx, "ghost@example.com"))
	})

	require.NoError(t, h.accounts.RequestPasswordReset(ctx, u.Email))
	code := h.notifier.last(t, domain.NotifyPasswordResetCode).Data["code"]

	t.Run("cooldown is silent", func(t *testing.T) {
		require.NoError(t, h.accounts.RequestPasswordReset(ctx, u.Email))
		require.Equal(t, 1, h.notifier.count(domain.NotifyPasswordResetCode))
	})

	err = h.accounts.ConfirmPasswordReset(ctx, u.Email, wrongCode(code), "brand new password")
	require.ErrorIs(t, err, service.ErrOTPMismatch)

	err = h.accounts.ConfirmPasswordReset(ctx, u.Email, code, "short")
	require.ErrorIs(t, err, service.ErrWeakPassword)

	require.NoError(t, h.accounts.ConfirmPasswordReset(ctx, u.Email, code, "brand new password"))
	require.Equal(t, 1, h.notifier.count(domain.NotifyPasswordResetSuccess))

	err = h.accounts.ConfirmPasswordReset(ctx, u.Email, code, "another password")
	require.ErrorIs(t, err, service.ErrOTPAlreadyConsumed)

	_, err = h.accounts.Refresh(ctx, pair.RefreshToken)
	require.Error(t, err, "sessions from before the reset are revoked")

	_, err = h.accounts.Login(ctx, u.Email, "brand new password", "")
	require.NoError(t, err)
}

func TestResetCodeDoesNotVerifyEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	u, verifyCode := h.register(t, "ivan@example.com")

	require.NoError(t, h.accounts.RequestPasswordReset(ctx, u.Email))
	resetCode := h.notifier.last(t, domain.NotifyPasswordResetCode).Data["code"]

	// Codes are scoped by purpose
	if resetCode != verifyCode {
		err := h.accounts.VerifyOTP(ctx, u.Email, domain.PurposeEmailVerify, resetCode)
		require.ErrorIs(t, err, service.ErrOTPMismatch)
	}
	require.NoError(t, h.accounts.VerifyOTP(ctx, u.Email, domain.PurposeEmailVerify, verifyCode))
}

func TestUpdateProfile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	u, _ := h.register(t, "pat@example.com")

	got, err := h.accounts.UpdateProfile(ctx, u.ID, "  Pat Smith ")
	require.NoError(t, err)
	require.Equal(t, "Pat Smith", got.Name)
	require.Equal(t, u.Email, got.Email)

	me, err := h.accounts.Me(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "Pat Smith", me.Name)

	_, err = h.accounts.UpdateProfile(ctx, u.ID, "   ")
	require.ErrorIs(t, err, service.ErrInvalidName)

	_, err = h.accounts.UpdateProfile(ctx, u.ID, strings.Repeat("é", service.MaxNameLength+1))
	require.ErrorIs(t, err, service.ErrInvalidName)

	_, err = h.accounts.UpdateProfile(ctx, u.ID, "Pat\nSmith")
	require.ErrorIs(t, err, service.ErrInvalidName)

	_, err = h.accounts.UpdateProfile(ctx, "missing-user", "Pat")
	require.ErrorIs(t, err, service.ErrUserNotFound)

	// Register applies the same limits
	_, err = h.accounts.Register(ctx, "long@example.com", password, strings.Repeat("a", service.MaxNameLength+1))
	require.ErrorIs(t, err, service.ErrInvalidName)
}
