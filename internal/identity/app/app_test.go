package app_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/storefront/internal/identity/app"
	"github.com/aussiebroadwan/storefront/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) app.Config {
	t.Helper()

	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	cfg.DatabaseFile = filepath.Join(t.TempDir(), "identity.db")
	cfg.LogLevel = "error"
	cfg.PasswordHashCost = 4
	return cfg
}

func readyz(t *testing.T, a *app.Application) authsdk.HealthResponse {
	t.Helper()

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var health authsdk.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.NotNil(t, health.Checks)
	return health
}

func TestNewWithoutRedis(t *testing.T) {
	a, err := app.New(testConfig(t))
	require.NoError(t, err)

	health := readyz(t, a)
	require.Equal(t, "ok", health.Status)
	require.Empty(t, health.Checks.Queue, "no queue configured")

	require.NoError(t, a.Shutdown())
}

func TestNewWithRedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.JWTAlgorithm = "EdDSA"
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.NotifyQueueEnabled = true
	cfg.NotifyWorkerEnabled = false

	a, err := app.New(cfg)
	require.NoError(t, err)

	require.Equal(t, "ok", readyz(t, a).Checks.Queue)

	// Registration goes through the queue
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/register",
		jsonBody(t, authsdk.RegisterRequest{Email: "queue@example.com", Password: "correct horse battery"}))
	a.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var reg authsdk.RegisterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	require.Equal(t, authsdk.DeliveryInfo{Path: "queued", Status: "queued"}, reg.Delivery)

	items, err := mr.List("storefront:notifications")
	require.NoError(t, err)
	require.Len(t, items, 1)

	// A dead queue only degrades readiness to a warning
	mr.Close()
	require.Contains(t, readyz(t, a).Checks.Queue, "warn: ")

	require.NoError(t, a.Shutdown())
}

func TestNewRejectsBadRedisURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "http://not-redis"

	_, err := app.New(cfg)
	require.ErrorContains(t, err, "REDIS_URL")
}
