package jwtx

import (
	"fmt"

	"github.com/aussiebroadwan/storefront/pkg/cryptox"
)

// Supported JWT signing algorithms
const (
	AlgorithmHS256 = "HS256"
	AlgorithmEdDSA = "EdDSA"
)

// KeyManager holds one key for access tokens and a separate one for refresh
// tokens. Keeping them apart means a refresh token can't even pass signature
// verification where an access token is expected, on top of the typ check.
type KeyManager struct {
	algorithm string

	accessSigner    Signer
	accessVerifier  Verifier
	refreshSigner   Signer
	refreshVerifier Verifier
}

// KeyManagerOptions configures the KeyManager.
type KeyManagerOptions struct {
	// Algorithm specifies which signing algorithm to use: "HS256" or "EdDSA".
	Algorithm string

	// Issuer is the issuer claim (iss) that will be validated in tokens.
	Issuer string

	// AccessSecret and RefreshSecret are the HS256 shared secrets. Ignored
	// for EdDSA, which always generates ephemeral key pairs.
	AccessSecret  []byte
	RefreshSecret []byte
}

// NewKeyManager wires signers and verifiers for the configured algorithm.
//
// EdDSA keys are generated on the fly and only exist in memory, so all tokens
// become invalid when the service restarts.
func NewKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}

	km := &KeyManager{algorithm: opts.Algorithm}

	switch opts.Algorithm {
	case AlgorithmHS256:
		if string(opts.AccessSecret) == string(opts.RefreshSecret) {
			return nil, fmt.Errorf("jwtx: access and refresh secrets must differ")
		}

		var err error
		if km.accessSigner, err = NewSignerHS256(opts.AccessSecret); err != nil {
			return nil, fmt.Errorf("jwtx: access key: %w", err)
		}
		if km.refreshSigner, err = NewSignerHS256(opts.RefreshSecret); err != nil {
			return nil, fmt.Errorf("jwtx: refresh key: %w", err)
		}
		km.accessVerifier = NewVerifierHS256(opts.AccessSecret, opts.Issuer)
		km.refreshVerifier = NewVerifierHS256(opts.RefreshSecret, opts.Issuer)

	case AlgorithmEdDSA:
		var err error
		if km.accessSigner, km.accessVerifier, err = ephemeralEdDSA("access", opts.Issuer); err != nil {
			return nil, err
		}
		if km.refreshSigner, km.refreshVerifier, err = ephemeralEdDSA("refresh", opts.Issuer); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q (supported: HS256, EdDSA)", opts.Algorithm)
	}

	return km, nil
}

func ephemeralEdDSA(purpose, issuer string) (Signer, Verifier, error) {
	_, priv, err := cryptox.GenerateEd25519KeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("jwtx: generate %s key: %w", purpose, err)
	}

	kid, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return nil, nil, fmt.Errorf("jwtx: generate %s kid: %w", purpose, err)
	}

	signer, err := newEdDSASigner(kid, priv)
	if err != nil {
		return nil, nil, err
	}
	return signer, NewVerifierEdDSA(kid, signer.PublicKey(), issuer), nil
}

// Algorithm returns the signing algorithm being used.
func (km *KeyManager) Algorithm() string { return km.algorithm }

// IsReady returns true if both keys are usable.
func (km *KeyManager) IsReady() bool {
	return km.accessSigner != nil && km.accessSigner.Validate() == nil &&
		km.refreshSigner != nil && km.refreshSigner.Validate() == nil
}

// SignAccess signs access-token claims.
func (km *KeyManager) SignAccess(c Claims) (string, error) {
	c.Type = TypeAccess
	return km.accessSigner.Sign(c)
}

// SignRefresh signs refresh-token claims.
func (km *KeyManager) SignRefresh(c Claims) (string, error) {
	c.Type = TypeRefresh
	return km.refreshSigner.Sign(c)
}

// VerifyAccess checks signature, issuer, expiry and that the token is an
// access token.
func (km *KeyManager) VerifyAccess(token string) (Claims, error) {
	return verifyTyped(km.accessVerifier, token, TypeAccess)
}

// VerifyRefresh is VerifyAccess for refresh tokens.
func (km *KeyManager) VerifyRefresh(token string) (Claims, error) {
	return verifyTyped(km.refreshVerifier, token, TypeRefresh)
}

// AccessVerifier exposes the access-token verification path as a Verifier
// for middleware.
func (km *KeyManager) AccessVerifier() Verifier {
	return VerifierFunc(km.VerifyAccess)
}

func verifyTyped(v Verifier, token, typ string) (Claims, error) {
	c, err := v.Verify(token)
	if err != nil {
		return Claims{}, err
	}
	if err := c.ValidateType(typ); err != nil {
		return Claims{}, err
	}
	return c, nil
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(token string) (Claims, error)

func (f VerifierFunc) Verify(token string) (Claims, error) { return f(token) }
