package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	identityhttp "github.com/aussiebroadwan/storefront/internal/identity/http"
	"github.com/aussiebroadwan/storefront/internal/identity/metrics"
	"github.com/aussiebroadwan/storefront/internal/identity/service"
	"github.com/aussiebroadwan/storefront/internal/identity/store/drivers/sqlite"
	"github.com/aussiebroadwan/storefront/pkg/authsdk"
	"github.com/aussiebroadwan/storefront/pkg/cryptox"
	"github.com/aussiebroadwan/storefront/pkg/jwtx"
	"github.com/aussiebroadwan/storefront/pkg/slogx"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const password = "correct horse battery"

// recordingNotifier keeps every notification so tests can read the codes.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (r *recordingNotifier) Send(_ context.Context, n domain.Notification) domain.DeliveryReceipt {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return domain.DeliveryReceipt{Path: domain.PathInline, Status: domain.StatusDelivered}
}

func (r *recordingNotifier) code(t *testing.T, email string, kind domain.NotificationKind) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].Recipient == email && r.sent[i].Kind == kind {
			return r.sent[i].Data["code"]
		}
	}
	t.Fatalf("no %s notification for %s", kind, email)
	return ""
}

type testServer struct {
	handler  http.Handler
	notifier *recordingNotifier

	// requests spreads clients over addresses so only TestStrictRateLimit
	// meets the per-IP limits
	requests atomic.Int64
}

func newTestServer(t *testing.T, queueCheck func(context.Context) error) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	keys, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Algorithm:     jwtx.AlgorithmHS256,
		Issuer:        "storefront-test",
		AccessSecret:  bytes.Repeat([]byte("a"), 32),
		RefreshSecret: bytes.Repeat([]byte("r"), 32),
	})
	require.NoError(t, err)

	hasher, err := cryptox.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	m := metrics.New()
	notifier := &recordingNotifier{}
	otp := &service.OTPManager{Store: st, Secret: bytes.Repeat([]byte("o"), 32), Metrics: m}
	tokens := &service.TokenService{Keys: keys, Store: st, Issuer: "storefront-test", Metrics: m}

	router := identityhttp.NewRouter(keys, "test", st, slogx.Discard(), m)
	router.AccountService = &service.AccountService{
		Store:                st,
		Hasher:               hasher,
		OTP:                  otp,
		Tokens:               tokens,
		Notifier:             notifier,
		Metrics:              m,
		RequireVerifiedEmail: true,
	}
	router.TenantService = &service.TenantService{Store: st}
	router.Roles = &service.RoleAuthorizer{Store: st}
	router.Resolver = &service.TenantResolver{Store: st}
	router.QueueCheck = queueCheck
	router.ApplyRoutes()

	return &testServer{handler: router, notifier: notifier}
}

type request struct {
	method  string
	path    string
	body    any
	token   string
	store   string
	ip      string
	rawBody string

	forwardedFor string
}

func (s *testServer) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	switch {
	case r.rawBody != "":
		body.WriteString(r.rawBody)
	case r.body != nil:
		require.NoError(t, json.NewEncoder(&body).Encode(r.body))
	}

	req := httptest.NewRequest(r.method, r.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if r.store != "" {
		req.Header.Set(identityhttp.StoreDomainHeader, r.store)
	}
	ip := r.ip
	if ip == "" {
		n := s.requests.Add(1)
		ip = fmt.Sprintf("10.%d.%d.%d", n>>16&0xff, n>>8&0xff, n&0xff)
	}
	req.RemoteAddr = ip + ":40000"
	if r.forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", r.forwardedFor)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	require.Equal(t, code, decode[authsdk.ErrorResponse](t, rec).Error)
}

// signUp registers and verifies an account and returns its user id.
func (s *testServer) signUp(t *testing.T, email string) string {
	t.Helper()

	rec := s.do(t, request{method: http.MethodPost, path: "/v1/auth/register", body: authsdk.RegisterRequest{
		Email: email, Password: password, Name: "Test User",
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	user := decode[authsdk.RegisterResponse](t, rec).User

	rec = s.do(t, request{method: http.MethodPost, path: "/v1/auth/verify-otp", body: authsdk.VerifyOTPRequest{
		Email: email, Code: s.notifier.code(t, email, domain.NotifyVerificationCode),
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return user.ID
}

func (s *testServer) login(t *testing.T, email, storeDomain string) authsdk.TokenResponse {
	t.Helper()

	rec := s.do(t, request{method: http.MethodPost, path: "/v1/auth/login", store: storeDomain, body: authsdk.LoginRequest{
		Email: email, Password: password,
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[authsdk.TokenResponse](t, rec)
}
