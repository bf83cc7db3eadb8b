package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/storefront/internal/identity/http"
	"github.com/aussiebroadwan/storefront/internal/identity/metrics"
	"github.com/aussiebroadwan/storefront/internal/identity/notify"
	"github.com/aussiebroadwan/storefront/internal/identity/service"
	"github.com/aussiebroadwan/storefront/internal/identity/store"
	"github.com/aussiebroadwan/storefront/internal/identity/store/drivers/sqlite"
	"github.com/aussiebroadwan/storefront/pkg/cryptox"
	"github.com/aussiebroadwan/storefront/pkg/jwtx"
	"github.com/aussiebroadwan/storefront/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the identity service with all its dependencies.
type Application struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Core dependencies
	db         store.Store
	keyManager *jwtx.KeyManager
	otpSecret  []byte
	redis      *redis.Client // nil without REDIS_URL

	// Notifications
	dispatcher service.NotificationDispatcher
	worker     *notify.Worker // nil unless the worker is enabled

	// Services
	tokenService        *service.TokenService
	accountService      *service.AccountService
	tenantService       *service.TenantService
	roleAuthorizer      *service.RoleAuthorizer
	tenantResolver      *service.TenantResolver
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "storefront-identity",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	keyManager, err := InitKeys(cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager

	if app.otpSecret, err = InitOTPSecret(cfg, app.logger); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	if err := app.initNotifications(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	if err := app.initServices(); err != nil {
		app.closeBackends()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the background workers and the HTTP server and blocks until a
// shutdown signal or a server error.
func (app *Application) Run() error {
	app.housekeepingService.Start()
	if app.worker != nil {
		app.worker.Start()
	}

	serverErrors := make(chan error, 1)
	go func() {
		app.logger.Info("identity service starting", "port", app.cfg.Port, "env", app.cfg.Env)
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown stops the server, then the workers, then closes Redis and the
// database. Queued notifications stay in Redis for the next worker.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down identity service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()
	if app.worker != nil {
		app.worker.Stop()
	}

	if err := app.closeBackends(); err != nil {
		return err
	}

	app.logger.Info("identity service stopped")
	return nil
}

func (app *Application) closeBackends() error {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

// initDatabase opens the database and applies migrations.
func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initNotifications picks the mailer and, with REDIS_URL, the queue and its
// worker. Without Redis every send is inline.
func (app *Application) initNotifications() error {
	templates, err := notify.LoadTemplates()
	if err != nil {
		return fmt.Errorf("failed to load email templates: %w", err)
	}

	var mailer notify.Mailer
	if app.cfg.SMTPHost != "" {
		mailer = &notify.SMTPMailer{
			Host:     app.cfg.SMTPHost,
			Port:     app.cfg.SMTPPort,
			Username: app.cfg.SMTPUsername,
			Password: app.cfg.SMTPPassword,
			From:     app.cfg.SMTPFrom,
		}
		app.logger.Info("smtp mailer configured", "host", app.cfg.SMTPHost, "port", app.cfg.SMTPPort)
	} else {
		mailer = &notify.LogMailer{Logger: app.logger}
		app.logger.Warn("SMTP_HOST not set, emails will be logged instead of sent")
	}

	inline := &notify.InlineDispatcher{
		Templates: templates,
		Mailer:    mailer,
		Ledger:    app.db.Notifications(),
		Metrics:   app.metrics,
	}
	app.dispatcher = inline

	if app.cfg.RedisURL == "" {
		return nil
	}

	rdb, err := notify.NewRedisClient(app.cfg.RedisURL, app.cfg.NotifyEnqueueTimeout)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	app.redis = rdb

	app.dispatcher = &notify.QueueDispatcher{
		Redis:          app.redis,
		Key:            notify.DefaultQueueKey,
		Enabled:        app.cfg.NotifyQueueEnabled,
		EnqueueTimeout: app.cfg.NotifyEnqueueTimeout,
		Fallback:       inline,
		Metrics:        app.metrics,
	}
	if app.cfg.NotifyWorkerEnabled {
		app.worker = notify.NewWorker(app.redis, notify.DefaultQueueKey, inline, app.logger, app.metrics)
	}

	app.logger.Info("notification queue configured",
		"enabled", app.cfg.NotifyQueueEnabled,
		"worker", app.cfg.NotifyWorkerEnabled,
	)
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() error {
	hasher, err := cryptox.NewPasswordHasher(app.cfg.PasswordHashCost)
	if err != nil {
		return fmt.Errorf("failed to initialize password hasher: %w", err)
	}

	otp := &service.OTPManager{
		Store:          app.db,
		Secret:         app.otpSecret,
		TTL:            app.cfg.OTPTTL,
		ResendInterval: app.cfg.OTPResendInterval,
		MaxAttempts:    app.cfg.OTPMaxAttempts,
		Metrics:        app.metrics,
	}

	app.tokenService = &service.TokenService{
		Keys:       app.keyManager,
		Store:      app.db,
		Issuer:     app.cfg.JWTIssuer,
		AccessTTL:  app.cfg.AccessTokenTTL,
		RefreshTTL: app.cfg.RefreshTokenTTL,
		Metrics:    app.metrics,
	}

	app.accountService = &service.AccountService{
		Store:                app.db,
		Hasher:               hasher,
		OTP:                  otp,
		Tokens:               app.tokenService,
		Notifier:             app.dispatcher,
		Metrics:              app.metrics,
		RequireVerifiedEmail: app.cfg.RequireVerifiedEmail,
	}
	app.tenantService = &service.TenantService{Store: app.db}
	app.roleAuthorizer = &service.RoleAuthorizer{Store: app.db}
	app.tenantResolver = &service.TenantResolver{Store: app.db}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.metrics,
	)
	return nil
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager,
		BuildVersion,
		app.db,
		app.logger,
		app.metrics,
	)

	router.AccountService = app.accountService
	router.TenantService = app.tenantService
	router.Roles = app.roleAuthorizer
	router.Resolver = app.tenantResolver
	router.TrustProxyHeaders = app.cfg.TrustProxyHeaders
	if app.redis != nil {
		rdb := app.redis
		router.QueueCheck = func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			return rdb.Ping(ctx).Err()
		}
	}
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
