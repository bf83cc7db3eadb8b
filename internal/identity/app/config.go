package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/storefront/pkg/cryptox"
	"github.com/aussiebroadwan/storefront/pkg/jwtx"
	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/bcrypt"
)

// Config is parsed once at startup and passed by value from then on.
type Config struct {
	Env                  string        `env:"ENV"                   envDefault:"dev"`
	LogLevel             string        `env:"LOG_LEVEL"             envDefault:"info"`
	LogFormat            string        `env:"LOG_FORMAT"            envDefault:"json"`
	Port                 int           `env:"PORT"                  envDefault:"8080"`
	DatabaseFile         string        `env:"DATABASE_FILE"         envDefault:"identity.db"`
	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"1h"`

	// TrustProxyHeaders takes the client IP from X-Forwarded-For or
	// X-Real-IP. Only enable it behind a proxy that overwrites them.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	// Tokens. Secrets are only read for HS256; without them a random pair
	// is generated outside prod.
	JWTAlgorithm    string        `env:"JWT_ALGORITHM"     envDefault:"HS256"`
	JWTSecret       string        `env:"JWT_SECRET"`
	RefreshSecret   string        `env:"REFRESH_SECRET"`
	JWTIssuer       string        `env:"JWT_ISSUER"        envDefault:"storefront-identity"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"  envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`

	OTPTTL               time.Duration `env:"OTP_TTL"                envDefault:"10m"`
	OTPResendInterval    time.Duration `env:"OTP_RESEND_INTERVAL"    envDefault:"60s"`
	OTPMaxAttempts       int           `env:"OTP_MAX_ATTEMPTS"       envDefault:"5"`
	PasswordHashCost     int           `env:"PASSWORD_HASH_COST"     envDefault:"10"`
	RequireVerifiedEmail bool          `env:"REQUIRE_VERIFIED_EMAIL" envDefault:"false"`

	// OTPSecret keys the stored code fingerprints. Generated outside prod
	// when unset, which invalidates outstanding codes on restart.
	OTPSecret string `env:"OTP_SECRET"`

	// Notifications. Without SMTP_HOST mail is written to the log.
	RedisURL             string        `env:"REDIS_URL"`
	NotifyQueueEnabled   bool          `env:"NOTIFY_QUEUE_ENABLED"   envDefault:"false"`
	NotifyEnqueueTimeout time.Duration `env:"NOTIFY_ENQUEUE_TIMEOUT" envDefault:"500ms"`
	NotifyWorkerEnabled  bool          `env:"NOTIFY_WORKER_ENABLED"  envDefault:"true"`
	SMTPHost             string        `env:"SMTP_HOST"`
	SMTPPort             int           `env:"SMTP_PORT"              envDefault:"587"`
	SMTPUsername         string        `env:"SMTP_USERNAME"`
	SMTPPassword         string        `env:"SMTP_PASSWORD"`
	SMTPFrom             string        `env:"SMTP_FROM"`
}

// LoadConfig reads the environment and validates the result.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsProd reports whether the service runs in production.
func (c Config) IsProd() bool { return c.Env == "prod" || c.Env == "production" }

// Validate rejects settings the service can't start with. All problems are
// reported together.
func (c Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.DatabaseFile == "" {
		errs = append(errs, errors.New("DATABASE_FILE is required"))
	}
	if c.JWTIssuer == "" {
		errs = append(errs, errors.New("JWT_ISSUER is required"))
	}

	switch c.JWTAlgorithm {
	case jwtx.AlgorithmHS256:
		if (c.JWTSecret == "") != (c.RefreshSecret == "") {
			errs = append(errs, errors.New("JWT_SECRET and REFRESH_SECRET must be set together"))
		}
		if c.JWTSecret != "" && c.JWTSecret == c.RefreshSecret {
			errs = append(errs, errors.New("JWT_SECRET and REFRESH_SECRET must differ"))
		}
		if c.IsProd() && c.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET and REFRESH_SECRET are required in prod"))
		}
	case jwtx.AlgorithmEdDSA:
	default:
		errs = append(errs, fmt.Errorf("JWT_ALGORITHM %q not supported (HS256, EdDSA)", c.JWTAlgorithm))
	}

	for name, d := range map[string]time.Duration{
		"ACCESS_TOKEN_TTL":       c.AccessTokenTTL,
		"REFRESH_TOKEN_TTL":      c.RefreshTokenTTL,
		"OTP_TTL":                c.OTPTTL,
		"OTP_RESEND_INTERVAL":    c.OTPResendInterval,
		"NOTIFY_ENQUEUE_TIMEOUT": c.NotifyEnqueueTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		errs = append(errs, errors.New("REFRESH_TOKEN_TTL must be longer than ACCESS_TOKEN_TTL"))
	}
	if c.OTPSecret != "" && len(c.OTPSecret) < cryptox.MinCodeKeySize {
		errs = append(errs, fmt.Errorf("OTP_SECRET must be at least %d bytes", cryptox.MinCodeKeySize))
	}
	if c.IsProd() && c.OTPSecret == "" {
		errs = append(errs, errors.New("OTP_SECRET is required in prod"))
	}
	if c.OTPMaxAttempts <= 0 {
		errs = append(errs, errors.New("OTP_MAX_ATTEMPTS must be positive"))
	}
	if c.PasswordHashCost < bcrypt.MinCost || c.PasswordHashCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("PASSWORD_HASH_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}

	if c.NotifyQueueEnabled && c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required when NOTIFY_QUEUE_ENABLED is set"))
	}
	if c.SMTPHost != "" && (c.SMTPPort <= 0 || c.SMTPPort > 65535) {
		errs = append(errs, fmt.Errorf("SMTP_PORT %d out of range", c.SMTPPort))
	}

	return errors.Join(errs...)
}
