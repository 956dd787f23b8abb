package guard

import (
	"context"
)

// AuthContext is the caller state every evaluator consults.
// It is created fresh for each evaluation and never cached, because
// privileges can change between requests.
type AuthContext struct {
	// Authenticated is true when the caller has an established identity
	Authenticated bool `json:"authenticated" yaml:"authenticated"`

	// Privileged is true when the caller holds site-management rights.
	// Privileged implies Authenticated.
	Privileged bool `json:"privileged" yaml:"privileged"`
}

// Anonymous returns the fail-closed AuthContext
func Anonymous() AuthContext {
	return AuthContext{}
}

// normalize enforces Privileged ⇒ Authenticated by dropping a privilege
// claim that has no identity behind it.
func (a AuthContext) normalize() AuthContext {
	if !a.Authenticated {
		a.Privileged = false
	}
	return a
}

// Resolver supplies the AuthContext for the current caller.
// Implementations read request-scoped identity from ctx; an error means the
// identity could not be established and the guard treats the caller as
// anonymous.
type Resolver interface {
	Resolve(ctx context.Context) (AuthContext, error)
}

// ResolverFunc adapts a function to the Resolver interface
type ResolverFunc func(ctx context.Context) (AuthContext, error)

// Resolve implements Resolver
func (f ResolverFunc) Resolve(ctx context.Context) (AuthContext, error) {
	return f(ctx)
}

// StaticResolver always returns the same AuthContext
type StaticResolver AuthContext

// Resolve implements Resolver
func (s StaticResolver) Resolve(context.Context) (AuthContext, error) {
	return AuthContext(s), nil
}

// AnonymousResolver resolves every caller as anonymous
func AnonymousResolver() Resolver {
	return StaticResolver(Anonymous())
}
