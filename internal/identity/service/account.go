package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/metrics"
	"github.com/aussiebroadwan/storefront/internal/identity/store"
	"github.com/aussiebroadwan/storefront/pkg/idx"
	"github.com/aussiebroadwan/storefront/pkg/slogx"
)

const (
	// MinPasswordLength is the shortest password accepted at registration,
	// change and reset.
	MinPasswordLength = 8

	// MaxNameLength caps display names, in characters.
	MaxNameLength = 100
)

// CredentialHasher is the one-way password hash. Verify never errors; a
// malformed digest simply doesn't match.
type CredentialHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) bool
}

// AccountService orchestrates the account workflows on top of the token,
// code and notification components.
type AccountService struct {
	Store    store.Store
	Hasher   CredentialHasher
	OTP      *OTPManager
	Tokens   *TokenService
	Notifier NotificationDispatcher
	Metrics  *metrics.Metrics

	// RequireVerifiedEmail refuses login until the email-verify code has
	// been redeemed.
	RequireVerifiedEmail bool

	dummyOnce sync.Once
	dummyHash string
}

// RegisterResult is the created user plus what happened to the verification
// email. A failed Delivery does not make the registration fail.
type RegisterResult struct {
	User     domain.User
	Delivery domain.DeliveryReceipt
}

// Register creates the user and its email-verify code atomically, then sends
// the code.
func (s *AccountService) Register(ctx context.Context, email, password, name string) (RegisterResult, error) {
	email, err := validateEmail(email)
	if err != nil {
		return RegisterResult{}, err
	}
	if err := validatePassword(password); err != nil {
		return RegisterResult{}, err
	}
	name, err = validateName(name)
	if err != nil {
		return RegisterResult{}, err
	}

	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return RegisterResult{}, err
	}

	now := time.Now()
	u := domain.User{
		ID:           idx.NewAt(now).String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var issued domain.IssuedCode
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, u); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrEmailTaken
			}
			return err
		}

		var err error
		issued, err = s.OTP.IssueTx(ctx, tx, u.ID, domain.PurposeEmailVerify)
		return err
	})
	if err != nil {
		return RegisterResult{}, err
	}

	s.Metrics.Registered()
	slogx.FromContext(ctx).Info("user registered", "user_id", u.ID)

	receipt := s.notify(ctx, codeNotification(u, domain.PurposeEmailVerify, issued))
	return RegisterResult{User: u, Delivery: receipt}, nil
}

// Login checks credentials and starts a new session chain. tenantID, when
// set, is embedded as the tid claim.
func (s *AccountService) Login(ctx context.Context, email, password, tenantID string) (*domain.TokenPair, error) {
	log := slogx.FromContext(ctx)

	u, err := s.Store.Users().GetUserByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		// Burn the same bcrypt time as a real check so response timing
		// doesn't reveal which emails exist
		s.Hasher.Verify(password, s.dummy())
		s.Metrics.Login("invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	if !s.Hasher.Verify(password, u.PasswordHash) {
		log.Info("login failed", "user_id", u.ID)
		s.Metrics.Login("invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	if s.RequireVerifiedEmail && !u.EmailVerified {
		s.Metrics.Login("unverified")
		return nil, ErrEmailNotVerified
	}

	pair, err := s.Tokens.Issue(ctx, u.ID, tenantID)
	if err != nil {
		return nil, err
	}

	s.Metrics.Login("success")
	log.Info("login succeeded", "user_id", u.ID, "tenant_id", tenantID)
	return pair, nil
}

// VerifyOTP redeems a code for the user with the given email. Redeeming an
// email-verify code marks the address verified.
func (s *AccountService) VerifyOTP(ctx context.Context, email string, purpose domain.Purpose, code string) error {
	u, err := s.Store.Users().GetUserByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrOTPNotFound
		}
		return err
	}

	var (
		outcome      error
		justVerified bool
	)
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		outcome = s.OTP.VerifyTx(ctx, tx, u.ID, purpose, strings.TrimSpace(code))
		if outcome != nil {
			return commitOnGuess(outcome)
		}
		if purpose == domain.PurposeEmailVerify && !u.EmailVerified {
			justVerified = true
			return tx.Users().MarkEmailVerified(ctx, u.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if outcome != nil {
		return outcome
	}

	if justVerified {
		slogx.FromContext(ctx).Info("email verified", "user_id", u.ID)
		s.notify(ctx, newNotification(u, domain.NotifyEmailVerified, 1, nil))
	}
	return nil
}

// ResendOTP issues a fresh code for purpose and sends it, subject to the
// resend cooldown.
func (s *AccountService) ResendOTP(ctx context.Context, email string, purpose domain.Purpose) (domain.DeliveryReceipt, error) {
	u, err := s.Store.Users().GetUserByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.DeliveryReceipt{}, ErrUserNotFound
		}
		return domain.DeliveryReceipt{}, err
	}
	if purpose == domain.PurposeEmailVerify && u.EmailVerified {
		return domain.DeliveryReceipt{}, ErrAlreadyVerified
	}

	issued, err := s.OTP.Issue(ctx, u.ID, purpose)
	if err != nil {
		return domain.DeliveryReceipt{}, err
	}
	return s.notify(ctx, codeNotification(u, purpose, issued)), nil
}

// Refresh rotates a refresh token.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	return s.Tokens.Rotate(ctx, refreshToken)
}

// Logout revokes the session chain of a refresh token.
func (s *AccountService) Logout(ctx context.Context, refreshToken string) error {
	return s.Tokens.Revoke(ctx, refreshToken)
}

// ChangePassword replaces the password after checking the current one and
// signs the user out everywhere.
func (s *AccountService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if !s.Hasher.Verify(oldPassword, u.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, u.ID, hash); err != nil {
			return err
		}
		return s.Tokens.RevokeAllForUser(ctx, tx, u.ID, "password_change")
	})
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("password changed", "user_id", u.ID)
	s.notify(ctx, newNotification(u, domain.NotifyPasswordChanged, time.Now().UnixMilli(), nil))
	return nil
}

// RequestPasswordReset sends a reset code. Unknown emails and cooldown hits
// succeed silently so the endpoint can't be used to enumerate accounts.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	log := slogx.FromContext(ctx)

	u, err := s.Store.Users().GetUserByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Info("password reset requested for unknown email")
			return nil
		}
		return err
	}

	issued, err := s.OTP.Issue(ctx, u.ID, domain.PurposePasswordReset)
	if err != nil {
		if errors.Is(err, ErrResendTooSoon) {
			return nil
		}
		return err
	}

	s.notify(ctx, codeNotification(u, domain.PurposePasswordReset, issued))
	return nil
}

// ConfirmPasswordReset redeems a reset code and sets the new password in the
// same transaction, then signs the user out everywhere.
func (s *AccountService) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	u, err := s.Store.Users().GetUserByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrOTPNotFound
		}
		return err
	}

	hash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	var outcome error
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		outcome = s.OTP.VerifyTx(ctx, tx, u.ID, domain.PurposePasswordReset, strings.TrimSpace(code))
		if outcome != nil {
			return commitOnGuess(outcome)
		}
		if err := tx.Users().UpdatePasswordHash(ctx, u.ID, hash); err != nil {
			return err
		}
		return s.Tokens.RevokeAllForUser(ctx, tx, u.ID, "password_reset")
	})
	if err != nil {
		return err
	}
	if outcome != nil {
		return outcome
	}

	slogx.FromContext(ctx).Info("password reset", "user_id", u.ID)
	s.notify(ctx, newNotification(u, domain.NotifyPasswordResetSuccess, time.Now().UnixMilli(), nil))
	return nil
}

// Me returns the user record for an authenticated subject.
func (s *AccountService) Me(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

// UpdateProfile changes the display name of an authenticated subject and
// returns the updated record.
func (s *AccountService) UpdateProfile(ctx context.Context, userID, name string) (domain.User, error) {
	name, err := validateName(name)
	if err != nil {
		return domain.User{}, err
	}
	if name == "" {
		return domain.User{}, fmt.Errorf("%w: name is required", ErrInvalidName)
	}

	if err := s.Store.Users().UpdateName(ctx, userID, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("profile updated", "user_id", userID)
	return s.Me(ctx, userID)
}

// notify sends and logs, and is the only place notification failures are
// observed. The receipt is returned for callers that want to surface it.
func (s *AccountService) notify(ctx context.Context, n domain.Notification) domain.DeliveryReceipt {
	if s.Notifier == nil {
		return domain.DeliveryReceipt{Status: domain.StatusFailed, Err: ErrNotificationDeliveryFailed}
	}

	receipt := s.Notifier.Send(ctx, n)
	if receipt.Failed() {
		slogx.FromContext(ctx).Warn("notification not delivered",
			"kind", n.Kind, "user_id", n.UserID, "path", receipt.Path, "err", receipt.Err)
	}
	return receipt
}

func (s *AccountService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.Hasher.Hash("storefront-timing-equaliser")
	})
	return s.dummyHash
}

func validateEmail(email string) (string, error) {
	email = domain.NormalizeEmail(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return email, nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", fmt.Errorf("%w: at most %d characters", ErrInvalidName, MaxNameLength)
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return "", fmt.Errorf("%w: control characters", ErrInvalidName)
	}
	return name, nil
}

func validatePassword(pw string) error {
	if len(pw) < MinPasswordLength {
		return fmt.Errorf("%w: at least %d characters", ErrWeakPassword, MinPasswordLength)
	}
	return nil
}
