package trust

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/sessions"

	"github.com/project-kessel/leakguard/internal/clock"
)

// Session value keys written by the login side
const (
	SessionSubjectKey   = "subject"
	SessionExpiresAtKey = "expires_at"
)

// DefaultSessionCookie is the cookie holding the login session
const DefaultSessionCookie = "leakguard_session"

// SessionValidator validates signed (and optionally encrypted) session
// cookies issued by a gorilla/sessions CookieStore sharing the same keys.
//
// The session must hold a non-empty string under "subject". Every other
// string-keyed value becomes a claim. An optional "expires_at" (unix seconds)
// is checked against the clock in addition to the cookie's own max age.
type SessionValidator struct {
	store      *sessions.CookieStore
	cookieName string
	issuer     string
	clock      clock.Clock
}

// SessionValidatorConfig configures a session validator
type SessionValidatorConfig struct {
	// HashKey authenticates the cookie (required, 32 or 64 bytes recommended)
	HashKey []byte

	// BlockKey encrypts the cookie when set (16, 24 or 32 bytes)
	BlockKey []byte

	// CookieName defaults to DefaultSessionCookie
	CookieName string

	// MaxAge bounds cookie age; zero keeps the store default of 30 days
	MaxAge time.Duration

	// Issuer is reported in results (default "session")
	Issuer string

	Clock clock.Clock
}

// NewSessionValidator creates a session validator
func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if len(cfg.HashKey) == 0 {
		return nil, fmt.Errorf("hash_key is required")
	}
	switch len(cfg.BlockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, fmt.Errorf("block_key must be 16, 24 or 32 bytes, got %d", len(cfg.BlockKey))
	}

	keyPairs := [][]byte{cfg.HashKey}
	if len(cfg.BlockKey) > 0 {
		keyPairs = append(keyPairs, cfg.BlockKey)
	}
	store := sessions.NewCookieStore(keyPairs...)
	if cfg.MaxAge > 0 {
		store.MaxAge(int(cfg.MaxAge.Seconds()))
	}

	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = DefaultSessionCookie
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "session"
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}

	return &SessionValidator{
		store:      store,
		cookieName: cookieName,
		issuer:     issuer,
		clock:      clk,
	}, nil
}

// CredentialTypes implements Validator
func (v *SessionValidator) CredentialTypes() []CredentialType {
	return []CredentialType{CredentialTypeSession}
}

// CookieName is the cookie this validator reads
func (v *SessionValidator) CookieName() string {
	return v.cookieName
}

// Validate implements Validator
func (v *SessionValidator) Validate(ctx context.Context, credential Credential) (*Result, error) {
	cred, ok := credential.(*SessionCredential)
	if !ok {
		return nil, fmt.Errorf("unsupported credential type for session validator: %T", credential)
	}
	if cred.Value == "" {
		return nil, ErrNoSession
	}

	name := cred.CookieName
	if name == "" {
		name = v.cookieName
	}

	// The store decodes from a request, so carry the cookie in a synthetic one.
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build session request: %w", err)
	}
	r.AddCookie(&http.Cookie{Name: name, Value: cred.Value})

	session, err := v.store.New(r, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	if session.IsNew {
		return nil, ErrNoSession
	}

	subject, _ := session.Values[SessionSubjectKey].(string)
	if subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrNoSession)
	}

	result := &Result{
		Subject: subject,
		Issuer:  v.issuer,
		Claims:  make(map[string]any, len(session.Values)),
	}

	for k, val := range session.Values {
		key, ok := k.(string)
		if !ok || key == SessionSubjectKey {
			continue
		}
		result.Claims[key] = claimValue(val)
	}

	if exp, ok := session.Values[SessionExpiresAtKey].(int64); ok {
		result.ExpiresAt = time.Unix(exp, 0)
		if !v.clock.Now().Before(result.ExpiresAt) {
			return nil, ErrExpiredToken
		}
	}

	return result, nil
}

// claimValue widens typed slices so CEL sees them as lists
func claimValue(v any) any {
	switch s := v.(type) {
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	default:
		return v
	}
}
