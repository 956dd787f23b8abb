package guard

import (
	"context"
)

// Surface names the leak surface an evaluation covers
type Surface string

const (
	SurfaceREST           Surface = "rest"
	SurfaceAuthorRedirect Surface = "author_redirect"
	SurfaceAuthorURL      Surface = "author_url"
	SurfaceFeedAuthor     Surface = "feed_author"
	SurfaceCommentAuthor  Surface = "comment_author"
	SurfaceLoginError     Surface = "login_error"
)

// Observer creates request-scoped observability probes for guard evaluations.
//
// Following the pattern from https://martinfowler.com/articles/domain-oriented-observability.html#IncludingExecutionContext,
// the observer captures execution context at the start of an evaluation and
// returns a probe that doesn't require context to be passed to each method.
type Observer interface {
	// EvaluationStarted creates a new probe for one evaluation of surface.
	// Returns an instrumented context and a probe scoped to this evaluation.
	EvaluationStarted(ctx context.Context, surface Surface) (context.Context, EvaluationProbe)
}

// EvaluationProbe provides observability for a single evaluation.
//
// The probe lifecycle:
//  1. Created by Observer.EvaluationStarted()
//  2. Identity reported via IdentityResolved or IdentityResolutionFailed
//  3. Outcome reported via Allowed, Redacted or Denied
//  4. Terminated with End() - typically deferred
type EvaluationProbe interface {
	// IdentityResolved is called with the AuthContext the evaluation uses.
	IdentityResolved(ac AuthContext)

	// IdentityResolutionFailed is called when the resolver failed and the
	// caller is treated as anonymous.
	IdentityResolutionFailed(err error)

	// Allowed is called when the value or request passes through unchanged.
	Allowed()

	// Redacted is called when a value was substituted or a redirect cancelled.
	Redacted()

	// Denied is called when a REST request is blocked.
	Denied(d *Denial)

	// End terminates the observation.
	End()
}

// NoOpObserver is an Observer that does nothing.
// Implementations can embed it to get default behavior.
type NoOpObserver struct{}

func (NoOpObserver) EvaluationStarted(ctx context.Context, _ Surface) (context.Context, EvaluationProbe) {
	return ctx, NoOpProbe{}
}

// NoOpProbe is an EvaluationProbe that does nothing
type NoOpProbe struct{}

func (NoOpProbe) IdentityResolved(AuthContext) {}
func (NoOpProbe) IdentityResolutionFailed(error) {}
func (NoOpProbe) Allowed() {}
func (NoOpProbe) Redacted() {}
func (NoOpProbe) Denied(*Denial) {}
func (NoOpProbe) End() {}

// compositeObserver delegates to multiple observers in order.
type compositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an observer that delegates to multiple observers.
// Observers are called in the order provided.
func NewCompositeObserver(observers ...Observer) Observer {
	return &compositeObserver{observers: observers}
}

func (c *compositeObserver) EvaluationStarted(ctx context.Context, surface Surface) (context.Context, EvaluationProbe) {
	probes := make([]EvaluationProbe, len(c.observers))
	for i, obs := range c.observers {
		ctx, probes[i] = obs.EvaluationStarted(ctx, surface)
	}
	return ctx, &compositeProbe{probes: probes}
}

// compositeProbe delegates to multiple probes in order.
type compositeProbe struct {
	probes []EvaluationProbe
}

func (c *compositeProbe) IdentityResolved(ac AuthContext) {
	for _, p := range c.probes {
		p.IdentityResolved(ac)
	}
}

func (c *compositeProbe) IdentityResolutionFailed(err error) {
	for _, p := range c.probes {
		p.IdentityResolutionFailed(err)
	}
}

func (c *compositeProbe) Allowed() {
	for _, p := range c.probes {
		p.Allowed()
	}
}

func (c *compositeProbe) Redacted() {
	for _, p := range c.probes {
		p.Redacted()
	}
}

func (c *compositeProbe) Denied(d *Denial) {
	for _, p := range c.probes {
		p.Denied(d)
	}
}

func (c *compositeProbe) End() {
	for _, p := range c.probes {
		p.End()
	}
}
