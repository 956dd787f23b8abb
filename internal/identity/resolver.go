// Package identity turns request credentials into the guard's AuthContext.
//
// The integration layer extracts a credential from the incoming request and
// attaches it to the context with WithCredential. Resolver validates it
// against a trust.Store and decides privilege with a CEL expression over
// the validated subject.
package identity

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/project-kessel/leakguard/internal/guard"
	"github.com/project-kessel/leakguard/internal/trust"
)

// DefaultPrivilegedExpression grants privilege to site administrators
const DefaultPrivilegedExpression = `"manage_options" in subject.claims.capabilities`

// Resolver implements guard.Resolver
type Resolver struct {
	store      trust.Store
	privileged cel.Program
}

// Config configures a Resolver
type Config struct {
	// Store validates credentials found in the context
	Store trust.Store

	// PrivilegedExpression is a CEL expression over `subject`
	// (subject, issuer, claims, audience, scope) yielding a bool.
	// Defaults to DefaultPrivilegedExpression.
	PrivilegedExpression string
}

// NewResolver compiles the privilege expression
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("trust store is required")
	}

	expr := cfg.PrivilegedExpression
	if expr == "" {
		expr = DefaultPrivilegedExpression
	}

	env, err := cel.NewEnv(cel.Variable("subject", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile privileged expression: %w", issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Resolver{store: cfg.Store, privileged: program}, nil
}

// Resolve implements guard.Resolver.
// No credential resolves to anonymous without error; an invalid credential
// is an error, which the guard treats as anonymous.
func (r *Resolver) Resolve(ctx context.Context) (guard.AuthContext, error) {
	cred, ok := CredentialFrom(ctx)
	if !ok {
		return guard.Anonymous(), nil
	}

	result, err := r.store.Validate(ctx, cred)
	if err != nil {
		return guard.Anonymous(), fmt.Errorf("credential validation failed: %w", err)
	}

	return guard.AuthContext{
		Authenticated: true,
		Privileged:    r.isPrivileged(result),
	}, nil
}

// isPrivileged treats evaluation errors and non-boolean results as unprivileged
func (r *Resolver) isPrivileged(result *trust.Result) bool {
	out, _, err := r.privileged.Eval(map[string]any{"subject": result.ToMap()})
	if err != nil || out.Type() != types.BoolType {
		return false
	}
	b, _ := out.Value().(bool)
	return b
}
