package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/metrics"
	"github.com/aussiebroadwan/storefront/internal/identity/store"
	"github.com/aussiebroadwan/storefront/pkg/idx"
	"github.com/aussiebroadwan/storefront/pkg/jwtx"
	"github.com/aussiebroadwan/storefront/pkg/slogx"
)

// TokenService issues access/refresh pairs and rotates refresh tokens. Access
// tokens are stateless; every refresh token has a RefreshSession row keyed
// by its jti, and all sessions descending from one login share a chain id.
type TokenService struct {
	Keys       *jwtx.KeyManager
	Store      store.Store
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Metrics    *metrics.Metrics

	// Clock defaults to time.Now
	Clock func() time.Time
}

func (s *TokenService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *TokenService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *TokenService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}

// Issue starts a new session chain for userID. tenantID may be empty.
func (s *TokenService) Issue(ctx context.Context, userID, tenantID string) (*domain.TokenPair, error) {
	var pair *domain.TokenPair
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		pair, err = s.issue(ctx, tx, userID, tenantID, idx.New().String(), idx.New().String())
		return err
	})
	return pair, err
}

// issue signs a pair whose refresh token has the given jti and persists the
// matching session.
func (s *TokenService) issue(ctx context.Context, tx store.Tx, userID, tenantID, chainID, jti string) (*domain.TokenPair, error) {
	now := s.now()

	params := jwtx.ClaimsParams{
		Subject:  userID,
		SID:      chainID,
		TenantID: tenantID,
		Issuer:   s.Issuer,
		Now:      now,
	}

	access := params
	access.JTI = idx.NewAt(now).String()
	access.TTL = s.accessTTL()
	accessToken, err := s.Keys.SignAccess(jwtx.NewClaims(access))
	if err != nil {
		return nil, err
	}

	refresh := params
	refresh.JTI = jti
	refresh.TTL = s.refreshTTL()
	refreshToken, err := s.Keys.SignRefresh(jwtx.NewClaims(refresh))
	if err != nil {
		return nil, err
	}

	if err := tx.RefreshSessions().CreateSession(ctx, domain.RefreshSession{
		JTI:       jti,
		UserID:    userID,
		TenantID:  tenantID,
		ChainID:   chainID,
		ExpiresAt: now.Add(refresh.TTL),
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(access.TTL / time.Second),
	}, nil
}

// ValidateAccess checks signature, expiry and that the token is an access
// token. It never touches the store.
func (s *TokenService) ValidateAccess(raw string) (jwtx.Claims, error) {
	c, err := s.Keys.VerifyAccess(raw)
	if err != nil {
		return jwtx.Claims{}, mapTokenError(err)
	}
	return c, nil
}

// ValidateRefresh is ValidateAccess for refresh tokens. It does not check the
// session; use Rotate for that.
func (s *TokenService) ValidateRefresh(raw string) (jwtx.Claims, error) {
	c, err := s.Keys.VerifyRefresh(raw)
	if err != nil {
		return jwtx.Claims{}, mapTokenError(err)
	}
	return c, nil
}

// Rotate exchanges a refresh token for a new pair. Presenting a token whose
// session was already rotated or revoked revokes the whole chain, commits
// that, and returns ErrTokenReuseDetected.
func (s *TokenService) Rotate(ctx context.Context, raw string) (*domain.TokenPair, error) {
	log := slogx.FromContext(ctx)

	claims, err := s.ValidateRefresh(raw)
	if err != nil {
		s.Metrics.Refreshed("invalid")
		return nil, err
	}

	var (
		pair    *domain.TokenPair
		outcome error
	)
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		now := s.now()

		sess, err := tx.RefreshSessions().GetSessionByJTI(ctx, claims.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTokenInvalid
			}
			return err
		}
		if sess.UserID != claims.Subject || sess.ChainID != claims.SID {
			return ErrTokenInvalid
		}

		// Reuse commits the chain revocation; the error is returned after WithTx
		revokeReused := func() error {
			n, err := tx.RefreshSessions().RevokeChain(ctx, sess.ChainID, now)
			if err != nil {
				return err
			}
			log.Warn("refresh token reuse detected, chain revoked",
				"user_id", sess.UserID, "sid", sess.ChainID, "jti", sess.JTI, "revoked", n)
			s.Metrics.ReuseDetected()
			s.Metrics.Revoked("reuse", n)

			outcome = ErrTokenReuseDetected
			return nil
		}

		if !sess.Usable() {
			return revokeReused()
		}
		if !now.Before(sess.ExpiresAt) {
			return ErrTokenExpired
		}

		nextJTI := idx.NewAt(now).String()
		ok, err := tx.RefreshSessions().MarkReplaced(ctx, sess.JTI, nextJTI)
		if err != nil {
			return err
		}
		if !ok {
			// Lost a race with another rotation of the same token
			return revokeReused()
		}

		pair, err = s.issue(ctx, tx, sess.UserID, sess.TenantID, sess.ChainID, nextJTI)
		return err
	})
	if err == nil {
		err = outcome
	}

	s.Metrics.Refreshed(refreshResult(err))
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Revoke ends the login session a refresh token belongs to (logout).
func (s *TokenService) Revoke(ctx context.Context, raw string) error {
	claims, err := s.ValidateRefresh(raw)
	if err != nil {
		return err
	}

	sess, err := s.Store.RefreshSessions().GetSessionByJTI(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTokenInvalid
		}
		return err
	}
	if sess.UserID != claims.Subject {
		return ErrTokenInvalid
	}

	n, err := s.Store.RefreshSessions().RevokeChain(ctx, sess.ChainID, s.now())
	if err != nil {
		return err
	}
	s.Metrics.Revoked("logout", n)
	return nil
}

// RevokeAllForUser ends every session of a user, e.g. after a password
// change. It runs inside the caller's transaction.
func (s *TokenService) RevokeAllForUser(ctx context.Context, tx store.Tx, userID, reason string) error {
	n, err := tx.RefreshSessions().RevokeAllForUser(ctx, userID, s.now())
	if err != nil {
		return err
	}
	s.Metrics.Revoked(reason, n)
	slogx.FromContext(ctx).Info("revoked all sessions", "user_id", userID, "reason", reason, "count", n)
	return nil
}

// mapTokenError folds jwtx failures into the two errors callers act on.
func mapTokenError(err error) error {
	if errors.Is(err, jwtx.ErrExpired) {
		return ErrTokenExpired
	}
	return ErrTokenInvalid
}

func refreshResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrTokenReuseDetected):
		return "reuse"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenInvalid):
		return "invalid"
	default:
		return "error"
	}
}
