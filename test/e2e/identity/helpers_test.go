//go:build e2e

package identity_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/storefront/internal/identity/app"
	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/notify"
	"github.com/aussiebroadwan/storefront/pkg/authsdk"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * End-to-end tests run the identity service in-process against a real Redis
 * in a container. The queue worker is off so tests can pop notifications
 * and read the codes out of them.
 */

const password = "correct horse battery"

// setupRedisContainer starts Redis and returns its address.
func setupRedisContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	host, err := container.Host(ctx)
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, mappedPort.Port())
}

type env struct {
	client *authsdk.SDKClient
	redis  *redis.Client
}

// setupService boots the service against a fresh Redis and database.
func setupService(t *testing.T) *env {
	t.Helper()
	addr := setupRedisContainer(t)

	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	cfg.DatabaseFile = filepath.Join(t.TempDir(), "identity.db")
	cfg.LogLevel = "warn"
	cfg.PasswordHashCost = 4
	cfg.RequireVerifiedEmail = true
	cfg.RedisURL = "redis://" + addr + "/0"
	cfg.NotifyQueueEnabled = true
	cfg.NotifyWorkerEnabled = false

	a, err := app.New(cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = a.Shutdown()
	})

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	return &env{client: authsdk.NewSDKClient(srv.URL), redis: rdb}
}

// nextNotification pops the oldest queued notification.
func (e *env) nextNotification(t *testing.T, kind domain.NotificationKind) domain.Notification {
	t.Helper()

	res, err := e.redis.BRPop(t.Context(), 5*time.Second, notify.DefaultQueueKey).Result()
	require.NoError(t, err)

	var n domain.Notification
	require.NoError(t, json.Unmarshal([]byte(res[1]), &n))
	require.Equal(t, kind, n.Kind)
	return n
}
