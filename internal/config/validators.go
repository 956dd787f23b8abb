package config

import (
	"fmt"
	"io"
	"time"

	"github.com/project-kessel/leakguard/internal/trust"
)

// NewTrustStore creates a chain store holding every configured validator.
// Validators that hold background resources are returned as closers.
func NewTrustStore(cfgs []ValidatorConfig, sessionCookie string) (trust.Store, []io.Closer, error) {
	store := trust.NewChainStore()
	var closers []io.Closer

	for i, cfg := range cfgs {
		validator, err := newValidator(cfg, sessionCookie)
		if err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
			return nil, nil, fmt.Errorf("failed to create validator %d (%s): %w", i, cfg.Type, err)
		}
		if c, ok := validator.(io.Closer); ok {
			closers = append(closers, c)
		}
		store.AddValidator(validator)
	}

	return store, closers, nil
}

// newValidator creates a validator from configuration
func newValidator(cfg ValidatorConfig, sessionCookie string) (trust.Validator, error) {
	switch cfg.Type {
	case "jwt_validator":
		return newJWTValidator(cfg)
	case "session_validator":
		return newSessionValidator(cfg, sessionCookie)
	case "stub_validator":
		return newStubValidator(cfg), nil
	default:
		return nil, fmt.Errorf("unknown validator type: %s (supported: jwt_validator, session_validator, stub_validator)", cfg.Type)
	}
}

func newJWTValidator(cfg ValidatorConfig) (trust.Validator, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("jwt_validator requires issuer")
	}

	return trust.NewJWTValidator(trust.JWTValidatorConfig{
		Issuer:          cfg.Issuer,
		Audience:        cfg.Audience,
		JWKSURL:         cfg.JWKSURL,
		RefreshInterval: cfg.RefreshInterval,
	})
}

func newSessionValidator(cfg ValidatorConfig, sessionCookie string) (trust.Validator, error) {
	var blockKey []byte
	if cfg.BlockKey != "" {
		blockKey = []byte(cfg.BlockKey)
	}

	return trust.NewSessionValidator(trust.SessionValidatorConfig{
		HashKey:    []byte(cfg.HashKey),
		BlockKey:   blockKey,
		CookieName: sessionCookie,
		MaxAge:     cfg.MaxAge,
	})
}

// newStubValidator accepts any credential; for local development only
func newStubValidator(cfg ValidatorConfig) trust.Validator {
	v := trust.NewStubValidator(trust.CredentialTypeBearer, trust.CredentialTypeSession)
	if cfg.Subject == "" && cfg.Claims == nil {
		return v
	}

	subject := cfg.Subject
	if subject == "" {
		subject = "stub-subject"
	}
	return v.WithResult(&trust.Result{
		Subject:   subject,
		Issuer:    "stub",
		Claims:    cfg.Claims,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	})
}
