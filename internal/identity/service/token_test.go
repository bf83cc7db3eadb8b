package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/service"
	"github.com/aussiebroadwan/storefront/internal/identity/store"
	"github.com/aussiebroadwan/storefront/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func login(t *testing.T, h *harness, email string) (domain.User, *domain.TokenPair) {
	t.Helper()

	u, _ := h.register(t, email)
	pair, err := h.accounts.Login(context.Background(), email, password, "")
	require.NoError(t, err)
	return u, pair
}

// Rotate once, replay the old token, then the successor is dead too.
func TestRefreshReuseRevokesChain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	_, t0 := login(t, h, "alice@example.com")

	t1, err := h.accounts.Refresh(ctx, t0.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, t0.RefreshToken, t1.RefreshToken)

	c0, err := h.tokens.ValidateRefresh(t0.RefreshToken)
	require.NoError(t, err)
	c1, err := h.tokens.ValidateRefresh(t1.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, c0.SID, c1.SID, "rotation stays in the same chain")

	old, err := h.store.RefreshSessions().GetSessionByJTI(ctx, c0.ID)
	require.NoError(t, err)
	require.Equal(t, c1.ID, old.ReplacedBy)

	_, err = h.accounts.Refresh(ctx, t0.RefreshToken)
	require.ErrorIs(t, err, service.ErrTokenReuseDetected)

	_, err = h.accounts.Refresh(ctx, t1.RefreshToken)
	require.ErrorIs(t, err, service.ErrTokenReuseDetected)

	successor, err := h.store.RefreshSessions().GetSessionByJTI(ctx, c1.ID)
	require.NoError(t, err)
	require.NotNil(t, successor.RevokedAt, "revocation must survive the failed request")
}

func TestReuseOnlyRevokesOwnChain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	u, laptop := login(t, h, "bob@example.com")

	phone, err := h.accounts.Login(ctx, u.Email, password, "")
	require.NoError(t, err)

	_, err = h.accounts.Refresh(ctx, laptop.RefreshToken)
	require.NoError(t, err)
	_, err = h.accounts.Refresh(ctx, laptop.RefreshToken)
	require.ErrorIs(t, err, service.ErrTokenReuseDetected)

	_, err = h.accounts.Refresh(ctx, phone.RefreshToken)
	require.NoError(t, err, "a separate login is its own chain")
}

func TestConcurrentRefreshHasSingleWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	_, pair := login(t, h, "carol@example.com")

	const workers = 16

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		reused  int
		unknown []error
		start   = make(chan struct{})
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			_, err := h.accounts.Refresh(ctx, pair.RefreshToken)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, service.ErrTokenReuseDetected):
				reused++
			default:
				unknown = append(unknown, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, unknown)
	require.Equal(t, 1, wins)
	require.Equal(t, workers-1, reused)
}

// lostRaceStore makes every MarkReplaced report that another rotation got
// there first, as a driver without a single writer could.
type lostRaceStore struct{ store.Store }

func (s lostRaceStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error { return fn(lostRaceTx{tx}) })
}

// txStore aliases store.Tx so the embedded field is not named Tx, which
// would shadow the promoted Tx method and break store.Tx conformance.
type txStore = store.Tx

type lostRaceTx struct{ txStore }

func (t lostRaceTx) RefreshSessions() store.RefreshSessions {
	return lostRaceSessions{t.txStore.RefreshSessions()}
}

type lostRaceSessions struct{ store.RefreshSessions }

func (lostRaceSessions) MarkReplaced(context.Context, string, string) (bool, error) {
	return false, nil
}

func TestLostRotationRaceRevokesChain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	_, pair := login(t, h, "race@example.com")

	racing := &service.TokenService{Keys: h.keys, Store: lostRaceStore{h.store}, Issuer: testIssuer}
	_, err := racing.Rotate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, service.ErrTokenReuseDetected)

	claims, err := h.tokens.ValidateRefresh(pair.RefreshToken)
	require.NoError(t, err)
	sess, err := h.store.RefreshSessions().GetSessionByJTI(ctx, claims.ID)
	require.NoError(t, err)
	require.False(t, sess.Usable(), "revocation must be committed")

	_, err = h.accounts.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, service.ErrTokenReuseDetected)
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	_, pair := login(t, h, "dave@example.com")

	_, err := h.tokens.ValidateAccess(pair.RefreshToken)
	require.ErrorIs(t, err, service.ErrTokenInvalid)

	_, err = h.accounts.Refresh(ctx, pair.AccessToken)
	require.ErrorIs(t, err, service.ErrTokenInvalid)

	_, err = h.tokens.ValidateAccess(pair.AccessToken + "x")
	require.ErrorIs(t, err, service.ErrTokenInvalid)
}

func TestExpiredTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	u, _ := login(t, h, "erin@example.com")

	claims := jwtx.NewClaims(jwtx.ClaimsParams{
		Subject: u.ID,
		SID:     "chain",
		JTI:     "expired",
		Issuer:  testIssuer,
		TTL:     -time.Minute,
		Now:     time.Now(),
	})

	access, err := h.keys.SignAccess(claims)
	require.NoError(t, err)
	_, err = h.tokens.ValidateAccess(access)
	require.ErrorIs(t, err, service.ErrTokenExpired)

	refresh, err := h.keys.SignRefresh(claims)
	require.NoError(t, err)
	_, err = h.accounts.Refresh(ctx, refresh)
	require.ErrorIs(t, err, service.ErrTokenExpired)
}

func TestRefreshUnknownSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	u, _ := login(t, h, "frank@example.com")

	// Validly signed but never persisted
	forged, err := h.keys.SignRefresh(jwtx.NewClaims(jwtx.ClaimsParams{
		Subject: u.ID,
		SID:     "chain",
		JTI:     "never-stored",
		Issuer:  testIssuer,
		TTL:     time.Hour,
		Now:     time.Now(),
	}))
	require.NoError(t, err)

	_, err = h.accounts.Refresh(context.Background(), forged)
	require.ErrorIs(t, err, service.ErrTokenInvalid)
}

func TestLogoutRevokesChain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	_, t0 := login(t, h, "gina@example.com")

	t1, err := h.accounts.Refresh(ctx, t0.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, h.accounts.Logout(ctx, t1.RefreshToken))

	_, err = h.accounts.Refresh(ctx, t1.RefreshToken)
	require.ErrorIs(t, err, service.ErrTokenReuseDetected)

	require.ErrorIs(t, h.accounts.Logout(ctx, "garbage"), service.ErrTokenInvalid)
}

func TestTenantClaimSurvivesRotation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	u, _ := h.register(t, "hana@example.com")

	pair, err := h.accounts.Login(ctx, u.Email, password, "store-1")
	require.NoError(t, err)

	next, err := h.accounts.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	c, err := h.tokens.ValidateAccess(next.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "store-1", c.TenantID)
}
