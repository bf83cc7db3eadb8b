package service_test

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/service"
	"github.com/aussiebroadwan/storefront/internal/identity/store/drivers/sqlite"
	"github.com/aussiebroadwan/storefront/pkg/cryptox"
	"github.com/aussiebroadwan/storefront/pkg/jwtx"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testIssuer = "storefront-test"

var otpSecret = bytes.Repeat([]byte("o"), 32)

// fakeClock only drives the OTP manager; JWT expiry is checked against the
// wall clock by the jwt library.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingNotifier captures sends. With fail set every send fails like an
// unreachable mail backend.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	fail bool
}

func (r *recordingNotifier) Send(_ context.Context, n domain.Notification) domain.DeliveryReceipt {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fail {
		return domain.DeliveryReceipt{Path: domain.PathInline, Status: domain.StatusFailed, Err: domain.ErrNotificationDeliveryFailed}
	}
	r.sent = append(r.sent, n)
	return domain.DeliveryReceipt{Path: domain.PathInline, Status: domain.StatusDelivered}
}

func (r *recordingNotifier) last(t *testing.T, kind domain.NotificationKind) domain.Notification {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].Kind == kind {
			return r.sent[i]
		}
	}
	t.Fatalf("no %s notification sent", kind)
	return domain.Notification{}
}

func (r *recordingNotifier) count(kind domain.NotificationKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.sent {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

type harness struct {
	store    *sqlite.Store
	clock    *fakeClock
	notifier *recordingNotifier
	keys     *jwtx.KeyManager

	otp      *service.OTPManager
	tokens   *service.TokenService
	accounts *service.AccountService
	tenants  *service.TenantService
	roles    *service.RoleAuthorizer
	resolver *service.TenantResolver
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	keys, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Algorithm:     jwtx.AlgorithmHS256,
		Issuer:        testIssuer,
		AccessSecret:  bytes.Repeat([]byte("a"), 32),
		RefreshSecret: bytes.Repeat([]byte("r"), 32),
	})
	require.NoError(t, err)

	hasher, err := cryptox.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Now()}
	notifier := &recordingNotifier{}

	otp := &service.OTPManager{Store: st, Secret: otpSecret, Clock: clock.Now}
	tokens := &service.TokenService{Keys: keys, Store: st, Issuer: testIssuer}

	return &harness{
		store:    st,
		clock:    clock,
		notifier: notifier,
		keys:     keys,
		otp:      otp,
		tokens:   tokens,
		accounts: &service.AccountService{
			Store:    st,
			Hasher:   hasher,
			OTP:      otp,
			Tokens:   tokens,
			Notifier: notifier,
		},
		tenants:  &service.TenantService{Store: st},
		roles:    &service.RoleAuthorizer{Store: st},
		resolver: &service.TenantResolver{Store: st},
	}
}

// register creates a user and returns it with the plaintext verification code.
func (h *harness) register(t *testing.T, email string) (domain.User, string) {
	t.Helper()

	res, err := h.accounts.Register(context.Background(), email, "correct horse battery", "Test User")
	require.NoError(t, err)
	return res.User, h.notifier.last(t, domain.NotifyVerificationCode).Data["code"]
}

// wrongCode returns a six digit code guaranteed to differ from code.
func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}
