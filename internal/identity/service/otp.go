package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/metrics"
	"github.com/aussiebroadwan/storefront/internal/identity/store"
	"github.com/aussiebroadwan/storefront/pkg/cryptox"
	"github.com/aussiebroadwan/storefront/pkg/idx"
	"github.com/aussiebroadwan/storefront/pkg/slogx"
)

const (
	DefaultOTPTTL            = 10 * time.Minute
	DefaultOTPResendInterval = 60 * time.Second

	// MaxOTPAttempts is the number of wrong guesses after which a code is
	// locked for good.
	MaxOTPAttempts = 5
)

// ErrOTPSecretMissing is returned when the fingerprint key is unset or
// shorter than cryptox.MinCodeKeySize.
var ErrOTPSecretMissing = errors.New("otp: fingerprint secret not configured")

// OTPManager issues and consumes one-time codes. Only a keyed fingerprint of
// each code is stored, bound to the code's own id.
type OTPManager struct {
	Store          store.Store
	Secret         []byte
	TTL            time.Duration
	ResendInterval time.Duration
	MaxAttempts    int
	Metrics        *metrics.Metrics

	// Clock defaults to time.Now
	Clock func() time.Time
}

func (m *OTPManager) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now()
}

func (m *OTPManager) ttl() time.Duration {
	if m.TTL > 0 {
		return m.TTL
	}
	return DefaultOTPTTL
}

func (m *OTPManager) resendInterval() time.Duration {
	if m.ResendInterval > 0 {
		return m.ResendInterval
	}
	return DefaultOTPResendInterval
}

func (m *OTPManager) maxAttempts() int {
	if m.MaxAttempts > 0 {
		return m.MaxAttempts
	}
	return MaxOTPAttempts
}

// Issue creates a new code for (user, purpose), superseding any active one.
func (m *OTPManager) Issue(ctx context.Context, userID string, purpose domain.Purpose) (domain.IssuedCode, error) {
	var issued domain.IssuedCode
	err := m.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		issued, err = m.IssueTx(ctx, tx, userID, purpose)
		return err
	})
	return issued, err
}

// IssueTx is Issue inside the caller's transaction, so a code can be created
// atomically with the record it verifies.
func (m *OTPManager) IssueTx(ctx context.Context, tx store.Tx, userID string, purpose domain.Purpose) (domain.IssuedCode, error) {
	if len(m.Secret) < cryptox.MinCodeKeySize {
		return domain.IssuedCode{}, ErrOTPSecretMissing
	}
	now := m.now()

	var version int64 = 1
	latest, err := tx.OneTimeCodes().GetLatestCode(ctx, userID, purpose)
	switch {
	case err == nil:
		if wait := latest.IssuedAt.Add(m.resendInterval()).Sub(now); wait > 0 {
			slogx.FromContext(ctx).Warn("otp resend too soon",
				"user_id", userID, "purpose", purpose, "retry_after", wait)
			return domain.IssuedCode{}, &ResendTooSoonError{RetryAfter: wait}
		}
		version = latest.Version + 1
	case !errors.Is(err, store.ErrNotFound):
		return domain.IssuedCode{}, err
	}

	code, err := cryptox.GenerateNumericCode(uint64(version))
	if err != nil {
		return domain.IssuedCode{}, err
	}

	if _, err := tx.OneTimeCodes().SupersedeActiveCodes(ctx, userID, purpose, now); err != nil {
		return domain.IssuedCode{}, err
	}

	id := idx.NewAt(now).String()
	record := domain.OneTimeCode{
		ID:        id,
		UserID:    userID,
		Purpose:   purpose,
		CodeHash:  cryptox.FingerprintCode(m.Secret, id, code),
		Version:   version,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl()),
	}
	if err := tx.OneTimeCodes().CreateCode(ctx, record); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// Another issue for the same pair won the race
			return domain.IssuedCode{}, &ResendTooSoonError{RetryAfter: m.resendInterval()}
		}
		return domain.IssuedCode{}, err
	}

	m.Metrics.CodeIssued(string(purpose))
	return domain.IssuedCode{Code: code, Version: version, ExpiresAt: record.ExpiresAt}, nil
}

// Verify checks a submitted code and consumes it on a match. Failed guesses
// are committed even though Verify returns an error.
func (m *OTPManager) Verify(ctx context.Context, userID string, purpose domain.Purpose, code string) error {
	var outcome error
	err := m.Store.WithTx(ctx, func(tx store.Tx) error {
		outcome = m.VerifyTx(ctx, tx, userID, purpose, code)
		return commitOnGuess(outcome)
	})
	if err != nil {
		return err
	}
	return outcome
}

// VerifyTx is Verify inside the caller's transaction. Callers must still
// commit on ErrOTPMismatch and ErrOTPLocked so the attempt is recorded; see
// commitOnGuess.
func (m *OTPManager) VerifyTx(ctx context.Context, tx store.Tx, userID string, purpose domain.Purpose, code string) error {
	err := m.verify(ctx, tx, userID, purpose, code)
	m.Metrics.CodeVerified(string(purpose), verifyResult(err))
	return err
}

func (m *OTPManager) verify(ctx context.Context, tx store.Tx, userID string, purpose domain.Purpose, code string) error {
	if len(m.Secret) < cryptox.MinCodeKeySize {
		return ErrOTPSecretMissing
	}
	now := m.now()
	log := slogx.FromContext(ctx)

	c, err := tx.OneTimeCodes().GetLatestCode(ctx, userID, purpose)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrOTPNotFound
		}
		return err
	}

	switch {
	case c.ConsumedAt != nil:
		return ErrOTPAlreadyConsumed
	case c.SupersededAt != nil:
		return ErrOTPNotFound
	case c.Expired(now):
		return ErrOTPExpired
	case c.Attempts >= m.maxAttempts():
		return ErrOTPLocked
	}

	if !cryptox.EqualFingerprints(cryptox.FingerprintCode(m.Secret, c.ID, code), c.CodeHash) {
		attempts, err := tx.OneTimeCodes().IncrementAttempts(ctx, c.ID)
		if err != nil {
			return err
		}
		if attempts >= m.maxAttempts() {
			log.Warn("otp locked after too many attempts", "user_id", userID, "purpose", purpose)
			return ErrOTPLocked
		}
		return ErrOTPMismatch
	}

	ok, err := tx.OneTimeCodes().ConsumeCode(ctx, c.ID, now)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOTPAlreadyConsumed
	}
	return nil
}

// commitOnGuess turns a wrong-guess outcome into nil so WithTx commits the
// attempt counter; every other error rolls back.
func commitOnGuess(outcome error) error {
	if errors.Is(outcome, ErrOTPMismatch) || errors.Is(outcome, ErrOTPLocked) {
		return nil
	}
	return outcome
}

func verifyResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrOTPNotFound):
		return "not_found"
	case errors.Is(err, ErrOTPAlreadyConsumed):
		return "consumed"
	case errors.Is(err, ErrOTPExpired):
		return "expired"
	case errors.Is(err, ErrOTPLocked):
		return "locked"
	case errors.Is(err, ErrOTPMismatch):
		return "mismatch"
	default:
		return "error"
	}
}
