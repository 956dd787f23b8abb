// Package guard implements the username-leak guard policy.
//
// The policy decides, for each surface that can reveal a username (REST user
// listings, embedded posts, author archive URLs and redirects, feed and
// comment author names, login errors), whether the current caller may see
// the original value. Every evaluator is a pure function of an AuthContext
// and the value or request being checked; Guard is the facade integration
// code calls, resolving a fresh AuthContext for each call.
package guard

import (
	"context"
	"fmt"

	"github.com/project-kessel/leakguard/internal/request"
)

// Guard is the single entry point for integration code.
// It holds only immutable configuration and is safe for concurrent use.
type Guard struct {
	resolver Resolver
	rest     *RESTEvaluator
	author   *AuthorURLEvaluator
	text     *PublicTextEvaluator
	login    *LoginErrorEvaluator
	observer Observer
}

// Config contains the guard's collaborators
type Config struct {
	// Resolver supplies the caller's AuthContext.
	// If nil, every caller is anonymous.
	Resolver Resolver

	// REST evaluates REST requests. If nil, defaults are used.
	REST *RESTEvaluator

	// AuthorURL guards author archive URLs. If nil, URLs are rewritten
	// against the origin of each generated URL.
	AuthorURL *AuthorURLEvaluator

	// Text substitutes display names. If nil, feed authors become empty.
	Text *PublicTextEvaluator

	// Login collapses login errors. If nil, the default message is used.
	Login *LoginErrorEvaluator

	// Observer receives evaluation events. If nil, a no-op observer is used.
	Observer Observer
}

// New creates a Guard
func New(cfg Config) *Guard {
	g := &Guard{
		resolver: cfg.Resolver,
		rest:     cfg.REST,
		author:   cfg.AuthorURL,
		text:     cfg.Text,
		login:    cfg.Login,
		observer: cfg.Observer,
	}

	if g.resolver == nil {
		g.resolver = AnonymousResolver()
	}
	if g.rest == nil {
		g.rest = NewRESTEvaluator(RESTConfig{})
	}
	if g.author == nil {
		g.author = NewAuthorURLEvaluator("")
	}
	if g.text == nil {
		g.text = NewPublicTextEvaluator("", nil)
	}
	if g.login == nil {
		g.login = NewLoginErrorEvaluator(nil)
	}
	if g.observer == nil {
		g.observer = NoOpObserver{}
	}

	return g
}

// CheckREST evaluates a REST request. A denied decision is final: the
// integration layer must answer with the denial and run nothing else.
func (g *Guard) CheckREST(ctx context.Context, req *request.Descriptor) Decision {
	ctx, probe := g.observer.EvaluationStarted(ctx, SurfaceREST)
	defer probe.End()

	decision := g.rest.Evaluate(g.authContext(ctx, probe), req)
	if decision.Allowed {
		probe.Allowed()
	} else {
		probe.Denied(decision.Denial)
	}
	return decision
}

// FilterRedirect returns the canonical redirect target to use, or false when
// the redirect must be cancelled.
func (g *Guard) FilterRedirect(ctx context.Context, redirectURL, requestedURL string) (string, bool) {
	ctx, probe := g.observer.EvaluationStarted(ctx, SurfaceAuthorRedirect)
	defer probe.End()

	target, ok := g.author.FilterRedirect(g.authContext(ctx, probe), redirectURL, requestedURL)
	if ok {
		probe.Allowed()
	} else {
		probe.Redacted()
	}
	return target, ok
}

// AuthorURL returns the author archive URL to render
func (g *Guard) AuthorURL(ctx context.Context, generatedURL string, userID int64) string {
	ctx, probe := g.observer.EvaluationStarted(ctx, SurfaceAuthorURL)
	defer probe.End()

	out := g.author.RewriteAuthorURL(g.authContext(ctx, probe), generatedURL, userID)
	report(probe, out == generatedURL)
	return out
}

// FeedAuthor returns the author name to emit into a feed
func (g *Guard) FeedAuthor(ctx context.Context, displayName string) string {
	return g.displayText(ctx, SurfaceFeedAuthor, TextFeedAuthor, displayName)
}

// CommentAuthor returns the comment author name to render
func (g *Guard) CommentAuthor(ctx context.Context, displayName string) string {
	return g.displayText(ctx, SurfaceCommentAuthor, TextCommentAuthor, displayName)
}

// LoginError returns the message to show after a failed login.
// The caller's identity is not consulted.
func (g *Guard) LoginError(ctx context.Context, errorText string) string {
	_, probe := g.observer.EvaluationStarted(ctx, SurfaceLoginError)
	defer probe.End()

	out := g.login.FilterLoginError(errorText)
	report(probe, out == errorText)
	return out
}

// Filter dispatches a candidate value to its surface and returns the same
// variant, possibly substituted.
func (g *Guard) Filter(ctx context.Context, c Candidate) (Candidate, error) {
	switch v := c.(type) {
	case AuthorDisplayName:
		return AuthorDisplayName{Text: g.FeedAuthor(ctx, v.Text)}, nil
	case CommentAuthorName:
		return CommentAuthorName{Text: g.CommentAuthor(ctx, v.Text)}, nil
	case AuthorArchiveURL:
		return AuthorArchiveURL{URL: g.AuthorURL(ctx, v.URL, v.UserID), UserID: v.UserID}, nil
	case LoginErrorText:
		return LoginErrorText{Text: g.LoginError(ctx, v.Text)}, nil
	default:
		return nil, fmt.Errorf("unsupported candidate type %T", c)
	}
}

func (g *Guard) displayText(ctx context.Context, surface Surface, ts TextSurface, current string) string {
	ctx, probe := g.observer.EvaluationStarted(ctx, surface)
	defer probe.End()

	out := g.text.FilterDisplayText(g.authContext(ctx, probe), ts, current)
	report(probe, out == current)
	return out
}

// authContext resolves the caller, falling back to anonymous when the
// resolver fails or panics.
func (g *Guard) authContext(ctx context.Context, probe EvaluationProbe) (ac AuthContext) {
	defer func() {
		if r := recover(); r != nil {
			probe.IdentityResolutionFailed(fmt.Errorf("resolver panic: %v", r))
			ac = Anonymous()
		}
	}()

	resolved, err := g.resolver.Resolve(ctx)
	if err != nil {
		probe.IdentityResolutionFailed(err)
		return Anonymous()
	}

	resolved = resolved.normalize()
	probe.IdentityResolved(resolved)
	return resolved
}

func report(probe EvaluationProbe, unchanged bool) {
	if unchanged {
		probe.Allowed()
	} else {
		probe.Redacted()
	}
}
