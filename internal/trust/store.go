package trust

import (
	"context"
	"errors"
	"fmt"
)

// Store validates credentials against the configured validators
type Store interface {
	// Validate picks validators by credential type and returns the first success
	Validate(ctx context.Context, credential Credential) (*Result, error)
}

// ChainStore tries each validator registered for a credential type in order
type ChainStore struct {
	validatorsByType map[CredentialType][]Validator
}

// NewChainStore creates an empty store
func NewChainStore() *ChainStore {
	return &ChainStore{
		validatorsByType: make(map[CredentialType][]Validator),
	}
}

// AddValidator indexes v by every credential type it supports
func (s *ChainStore) AddValidator(v Validator) *ChainStore {
	for _, credType := range v.CredentialTypes() {
		s.validatorsByType[credType] = append(s.validatorsByType[credType], v)
	}
	return s
}

// Validate implements Store
func (s *ChainStore) Validate(ctx context.Context, credential Credential) (*Result, error) {
	if credential == nil {
		return nil, fmt.Errorf("credential is nil")
	}
	credType := credential.Type()

	validators := s.validatorsByType[credType]
	if len(validators) == 0 {
		return nil, fmt.Errorf("no validator found for credential type %s", credType)
	}

	var errs []error
	for _, v := range validators {
		result, err := v.Validate(ctx, credential)
		if err == nil {
			return result, nil
		}
		errs = append(errs, err)
	}

	return nil, fmt.Errorf("all validators failed for credential type %s: %w", credType, errors.Join(errs...))
}
