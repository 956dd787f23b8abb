package trust

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/project-kessel/leakguard/internal/clock"
)

const testIssuer = "https://login.example.com"

// jwksFixture serves a JWKS over httptest and signs tokens with the
// matching private key.
type jwksFixture struct {
	server  *httptest.Server
	signer  jwk.Key
	clock   *clock.FixtureClock
	fetches atomic.Int32
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}

	signer, err := jwk.Import(privateKey)
	if err != nil {
		t.Fatalf("failed to import private key: %v", err)
	}
	publicKey, err := jwk.Import(privateKey.PublicKey)
	if err != nil {
		t.Fatalf("failed to import public key: %v", err)
	}
	for _, k := range []jwk.Key{signer, publicKey} {
		if err := k.Set(jwk.KeyIDKey, "test-key-1"); err != nil {
			t.Fatalf("failed to set kid: %v", err)
		}
		if err := k.Set(jwk.AlgorithmKey, jwa.RS256()); err != nil {
			t.Fatalf("failed to set alg: %v", err)
		}
	}

	set := jwk.NewSet()
	if err := set.AddKey(publicKey); err != nil {
		t.Fatalf("failed to add key: %v", err)
	}
	body, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("failed to marshal JWKS: %v", err)
	}

	f := &jwksFixture{
		signer: signer,
		clock:  clock.NewFixtureClock(time.Now().Truncate(time.Second)),
	}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(f.server.Close)

	return f
}

func (f *jwksFixture) jwksURL() string {
	return f.server.URL + "/.well-known/jwks.json"
}

func (f *jwksFixture) validator(t *testing.T, audience string) *JWTValidator {
	t.Helper()

	v, err := NewJWTValidator(JWTValidatorConfig{
		Issuer:     testIssuer,
		Audience:   audience,
		JWKSURL:    f.jwksURL(),
		HTTPClient: f.server.Client(),
		Clock:      f.clock,
	})
	if err != nil {
		t.Fatalf("failed to create validator: %v", err)
	}
	t.Cleanup(func() { _ = v.Close() })
	return v
}

// sign issues a token valid for ttl from the fixture clock.
// Claims override the defaults, so "iss" can be replaced.
func (f *jwksFixture) sign(t *testing.T, claims map[string]any, ttl time.Duration) string {
	t.Helper()

	now := f.clock.Now()
	tok := jwt.New()
	defaults := map[string]any{
		jwt.IssuerKey:     testIssuer,
		jwt.IssuedAtKey:   now,
		jwt.ExpirationKey: now.Add(ttl),
	}
	for k, v := range defaults {
		if err := tok.Set(k, v); err != nil {
			t.Fatalf("failed to set %s: %v", k, err)
		}
	}
	for k, v := range claims {
		if err := tok.Set(k, v); err != nil {
			t.Fatalf("failed to set %s: %v", k, err)
		}
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256(), f.signer))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return string(signed)
}
