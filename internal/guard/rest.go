package guard

import (
	"github.com/project-kessel/leakguard/internal/request"
)

// DefaultEmbedFlag is the query flag that asks for embedded related objects
const DefaultEmbedFlag = "_embed"

// RESTConfig configures the REST surface evaluator
type RESTConfig struct {
	// UsersPatterns select routes that list or describe users.
	// Anonymous requests to them are always denied.
	// Defaults to DefaultUsersPatterns().
	UsersPatterns []RoutePattern

	// PostsPatterns select routes whose embedded form carries user objects.
	// Anonymous requests to them are denied only when EmbedFlag is present.
	// Defaults to DefaultPostsPatterns().
	PostsPatterns []RoutePattern

	// EmbedFlag is the query flag requesting embedded objects (default "_embed")
	EmbedFlag string

	// Hooks customizes the denial message via HookRESTErrorText
	Hooks Hooks
}

// RESTEvaluator decides whether a REST request may reveal usernames to the
// caller.
type RESTEvaluator struct {
	users     []RoutePattern
	posts     []RoutePattern
	embedFlag string
	hooks     Hooks
}

// NewRESTEvaluator creates a REST surface evaluator
func NewRESTEvaluator(cfg RESTConfig) *RESTEvaluator {
	e := &RESTEvaluator{
		users:     cfg.UsersPatterns,
		posts:     cfg.PostsPatterns,
		embedFlag: cfg.EmbedFlag,
		hooks:     hooksOrDefault(cfg.Hooks),
	}
	if e.users == nil {
		e.users = DefaultUsersPatterns()
	}
	if e.posts == nil {
		e.posts = DefaultPostsPatterns()
	}
	if e.embedFlag == "" {
		e.embedFlag = DefaultEmbedFlag
	}
	return e
}

// Evaluate applies the REST rules in order; the first match wins:
//  1. privileged callers are allowed
//  2. authenticated callers are allowed
//  3. users routes are denied
//  4. posts routes with the embed flag are denied
//  5. everything else is allowed
func (e *RESTEvaluator) Evaluate(ac AuthContext, req *request.Descriptor) Decision {
	if ac.Privileged || ac.Authenticated {
		return Allow()
	}
	if req == nil {
		return Allow()
	}

	if matchAny(e.users, req) {
		return Deny(e.denial())
	}

	if req.Query.Has(e.embedFlag) && matchAny(e.posts, req) {
		return Deny(e.denial())
	}

	return Allow()
}

func (e *RESTEvaluator) denial() *Denial {
	return newForbidden(e.hooks.Apply(HookRESTErrorText, DefaultRESTErrorText))
}
