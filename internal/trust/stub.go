package trust

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// StubValidator accepts any non-empty credential and returns a fixed result.
// It exists for local development and tests; never configure it in production.
type StubValidator struct {
	credTypes []CredentialType
	result    *Result
	err       error
}

// NewStubValidator creates a stub accepting credTypes (default: bearer)
func NewStubValidator(credTypes ...CredentialType) *StubValidator {
	if len(credTypes) == 0 {
		credTypes = []CredentialType{CredentialTypeBearer}
	}

	return &StubValidator{
		credTypes: credTypes,
		result: &Result{
			Subject: "test-subject",
			Issuer:  "stub",
			Claims: map[string]any{
				"capabilities": []any{"read"},
			},
			ExpiresAt: time.Now().Add(time.Hour),
			IssuedAt:  time.Now(),
		},
	}
}

// WithResult configures the stub to return a specific result
func (v *StubValidator) WithResult(result *Result) *StubValidator {
	v.result = result
	return v
}

// WithError configures the stub to return an error
func (v *StubValidator) WithError(err error) *StubValidator {
	v.err = err
	return v
}

// Validate implements Validator
func (v *StubValidator) Validate(_ context.Context, credential Credential) (*Result, error) {
	if v.err != nil {
		return nil, v.err
	}
	if credential == nil || !slices.Contains(v.credTypes, credential.Type()) {
		return nil, fmt.Errorf("credential type not supported by stub validator")
	}

	switch cred := credential.(type) {
	case *BearerCredential:
		if cred.Token == "" {
			return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
		}
	case *SessionCredential:
		if cred.Value == "" {
			return nil, ErrNoSession
		}
	}

	return v.result, nil
}

// CredentialTypes implements Validator
func (v *StubValidator) CredentialTypes() []CredentialType {
	return v.credTypes
}
