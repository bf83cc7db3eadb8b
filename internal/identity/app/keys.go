package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/storefront/pkg/cryptox"
	"github.com/aussiebroadwan/storefront/pkg/jwtx"
)

// InitKeys creates the token KeyManager.
//
//   - HS256 with JWT_SECRET and REFRESH_SECRET: tokens survive restarts and
//     can be verified by every replica sharing the secrets.
//   - HS256 without secrets (dev only): a random pair is generated and all
//     tokens die with the process.
//   - EdDSA: ephemeral key pairs, same caveat.
func InitKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	opts := jwtx.KeyManagerOptions{
		Algorithm: cfg.JWTAlgorithm,
		Issuer:    cfg.JWTIssuer,
	}

	switch cfg.JWTAlgorithm {
	case jwtx.AlgorithmHS256:
		if cfg.JWTSecret != "" {
			opts.AccessSecret = []byte(cfg.JWTSecret)
			opts.RefreshSecret = []byte(cfg.RefreshSecret)
			break
		}

		var err error
		if opts.AccessSecret, err = cryptox.GenerateSecret(cryptox.TokenSize256); err != nil {
			return nil, fmt.Errorf("generate access secret: %w", err)
		}
		if opts.RefreshSecret, err = cryptox.GenerateSecret(cryptox.TokenSize256); err != nil {
			return nil, fmt.Errorf("generate refresh secret: %w", err)
		}
		logger.Warn("JWT_SECRET not set, using generated secrets; tokens will not survive a restart")

	case jwtx.AlgorithmEdDSA:
		logger.Warn("EdDSA keys are ephemeral; tokens will not survive a restart")
	}

	km, err := jwtx.NewKeyManager(opts)
	if err != nil {
		return nil, err
	}

	logger.Info("token keys initialized", "algorithm", km.Algorithm(), "issuer", cfg.JWTIssuer)
	return km, nil
}

// InitOTPSecret returns the key for one-time code fingerprints. Outside prod
// a missing OTP_SECRET is replaced by a random one.
func InitOTPSecret(cfg Config, logger *slog.Logger) ([]byte, error) {
	if cfg.OTPSecret != "" {
		return []byte(cfg.OTPSecret), nil
	}

	secret, err := cryptox.GenerateSecret(cryptox.MinCodeKeySize)
	if err != nil {
		return nil, fmt.Errorf("generate otp secret: %w", err)
	}
	logger.Warn("OTP_SECRET not set, using a generated secret; outstanding codes will not survive a restart")
	return secret, nil
}
