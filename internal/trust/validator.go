package trust

import (
	"context"
	"errors"
	"time"
)

// Common validation errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrNoSession    = errors.New("no valid session")
)

// Validator validates a caller credential and describes the subject behind it
type Validator interface {
	// Validate returns an error if the credential is invalid
	Validate(ctx context.Context, credential Credential) (*Result, error)

	// CredentialTypes returns the credential types this validator accepts
	CredentialTypes() []CredentialType
}

// Result describes a validated subject
type Result struct {
	// Subject is the unique identifier of the authenticated user
	Subject string `json:"subject"`

	// Issuer identifies who vouched for the subject (token issuer or session store)
	Issuer string `json:"issuer"`

	// Claims are additional attributes, e.g. "capabilities" or "roles"
	Claims map[string]any `json:"claims,omitempty"`

	ExpiresAt time.Time `json:"expires_at"`
	IssuedAt  time.Time `json:"issued_at"`

	// Audience is the intended audience of a token credential
	Audience []string `json:"audience,omitempty"`

	// Scope is the OAuth2 scope if applicable
	Scope string `json:"scope,omitempty"`
}

// ToMap exposes the result to expression languages such as CEL
func (r *Result) ToMap() map[string]any {
	if r == nil {
		return map[string]any{}
	}
	claims := r.Claims
	if claims == nil {
		claims = map[string]any{}
	}
	audience := make([]any, len(r.Audience))
	for i, a := range r.Audience {
		audience[i] = a
	}
	return map[string]any{
		"subject":  r.Subject,
		"issuer":   r.Issuer,
		"claims":   claims,
		"audience": audience,
		"scope":    r.Scope,
	}
}

// CredentialType indicates the type of credential
type CredentialType string

const (
	CredentialTypeBearer  CredentialType = "bearer"
	CredentialTypeSession CredentialType = "session"
)

// Credential is the material a caller presents
type Credential interface {
	Type() CredentialType
}

// BearerCredential is a token taken from an `Authorization: Bearer` header
type BearerCredential struct {
	Token string
}

func (c *BearerCredential) Type() CredentialType {
	return CredentialTypeBearer
}

// SessionCredential is the raw value of a login session cookie
type SessionCredential struct {
	CookieName string
	Value      string
}

func (c *SessionCredential) Type() CredentialType {
	return CredentialTypeSession
}
