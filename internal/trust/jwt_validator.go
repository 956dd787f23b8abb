package trust

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/project-kessel/leakguard/internal/clock"
)

// DefaultJWKSRefreshInterval is the minimum interval between JWKS refreshes
const DefaultJWKSRefreshInterval = 15 * time.Minute

// JWTValidator validates bearer JWTs against a remote JWKS
type JWTValidator struct {
	issuer   string
	audience string
	jwksURL  string
	cache    *jwk.Cache
	cancel   context.CancelFunc
	clock    clock.Clock
}

// JWTValidatorConfig contains configuration for JWT validation
type JWTValidatorConfig struct {
	// Issuer is the expected iss claim
	Issuer string

	// Audience, when set, must appear in the aud claim
	Audience string

	// JWKSURL defaults to <issuer>/.well-known/jwks.json
	JWKSURL string

	// RefreshInterval for the JWKS cache (default: DefaultJWKSRefreshInterval)
	RefreshInterval time.Duration

	// HTTPClient fetches the JWKS; nil means http.DefaultClient
	HTTPClient *http.Client

	// Clock is the time source for exp/nbf/iat checks; nil means system clock
	Clock clock.Clock
}

// NewJWTValidator registers the JWKS with a background-refreshing cache and
// fetches it once, failing if the first fetch fails.
func NewJWTValidator(cfg JWTValidatorConfig) (*JWTValidator, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}

	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = cfg.Issuer + "/.well-known/jwks.json"
	}

	refreshInterval := cfg.RefreshInterval
	if refreshInterval == 0 {
		refreshInterval = DefaultJWKSRefreshInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create JWKS cache: %w", err)
	}

	registerOpts := []jwk.RegisterOption{jwk.WithMinInterval(refreshInterval)}
	if cfg.HTTPClient != nil {
		registerOpts = append(registerOpts, jwk.WithHTTPClient(cfg.HTTPClient))
	}
	if err := cache.Register(ctx, jwksURL, registerOpts...); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}

	fetchCtx, fetchCancel := context.WithTimeout(ctx, 10*time.Second)
	defer fetchCancel()
	if _, err := cache.Refresh(fetchCtx, jwksURL); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to fetch initial JWKS: %w", err)
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}

	return &JWTValidator{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		jwksURL:  jwksURL,
		cache:    cache,
		cancel:   cancel,
		clock:    clk,
	}, nil
}

// CredentialTypes implements Validator
func (v *JWTValidator) CredentialTypes() []CredentialType {
	return []CredentialType{CredentialTypeBearer}
}

// Validate implements Validator
func (v *JWTValidator) Validate(ctx context.Context, credential Credential) (*Result, error) {
	cred, ok := credential.(*BearerCredential)
	if !ok {
		return nil, fmt.Errorf("unsupported credential type for JWT validator: %T", credential)
	}
	if cred.Token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	jwks, err := v.cache.Lookup(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}

	parseOpts := []jwt.ParseOption{
		jwt.WithKeySet(jwks),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithClock(jwt.ClockFunc(v.clock.Now)),
	}
	if v.audience != "" {
		parseOpts = append(parseOpts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse([]byte(cred.Token), parseOpts...)
	if err != nil {
		if errors.Is(err, jwt.TokenExpiredError()) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject, ok := token.Subject()
	if !ok || subject == "" {
		return nil, fmt.Errorf("%w: missing subject claim", ErrInvalidToken)
	}

	claims, err := tokenClaims(token)
	if err != nil {
		return nil, err
	}

	audiences, _ := token.Audience()
	expiresAt, _ := token.Expiration()
	issuedAt, _ := token.IssuedAt()

	var scope string
	if err := token.Get("scope", &scope); err != nil {
		scope = ""
	}

	return &Result{
		Subject:   subject,
		Issuer:    v.issuer,
		Claims:    claims,
		ExpiresAt: expiresAt,
		IssuedAt:  issuedAt,
		Audience:  audiences,
		Scope:     scope,
	}, nil
}

// Close stops the background JWKS refresh
func (v *JWTValidator) Close() error {
	v.cancel()
	return nil
}

// tokenClaims flattens every claim, private ones included, to JSON types
func tokenClaims(token jwt.Token) (map[string]any, error) {
	serialized, err := json.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize token claims: %w", err)
	}
	claims := map[string]any{}
	if err := json.Unmarshal(serialized, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse token claims: %w", err)
	}
	return claims, nil
}
