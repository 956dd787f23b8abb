package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/project-kessel/leakguard/internal/trust"
)

type credentialKey struct{}

// WithCredential attaches the caller's credential to ctx.
// A nil credential leaves ctx unchanged.
func WithCredential(ctx context.Context, cred trust.Credential) context.Context {
	if cred == nil {
		return ctx
	}
	return context.WithValue(ctx, credentialKey{}, cred)
}

// CredentialFrom returns the credential attached to ctx, if any
func CredentialFrom(ctx context.Context) (trust.Credential, bool) {
	cred, ok := ctx.Value(credentialKey{}).(trust.Credential)
	return cred, ok
}

// CredentialFromHeader extracts a credential from request headers.
// A bearer token takes precedence over the session cookie.
func CredentialFromHeader(h http.Header, sessionCookie string) trust.Credential {
	if token, ok := bearerToken(h.Get("Authorization")); ok {
		return &trust.BearerCredential{Token: token}
	}

	if sessionCookie == "" {
		return nil
	}
	r := http.Request{Header: http.Header{"Cookie": h.Values("Cookie")}}
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return nil
	}
	return &trust.SessionCredential{CookieName: sessionCookie, Value: c.Value}
}

// CredentialFromMap does the same for lowercase header maps such as the
// one in an Envoy CheckRequest.
func CredentialFromMap(headers map[string]string, sessionCookie string) trust.Credential {
	h := make(http.Header, 2)
	if v, ok := headers["authorization"]; ok {
		h.Set("Authorization", v)
	}
	if v, ok := headers["cookie"]; ok {
		h.Set("Cookie", v)
	}
	return CredentialFromHeader(h, sessionCookie)
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
