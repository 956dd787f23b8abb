package guard

// Names of the text extension points. Integrators register filters under
// these names to change the wording the guard substitutes.
const (
	HookFeedsText      = "feeds_text"
	HookCommentsText   = "comments_text"
	HookRESTErrorText  = "rest_error_text"
	HookLoginErrorText = "login_error_text"
)

// Built-in substitute texts
const (
	DefaultCommentsText   = "Comment"
	DefaultRESTErrorText  = "authorization required"
	DefaultLoginErrorText = "Login failed. Please try again."
)

// Hooks applies named text filters to a built-in default.
// The returned value replaces the default; with no filters registered under
// name the default is returned unchanged.
type Hooks interface {
	Apply(name, value string) string
}

type noHooks struct{}

func (noHooks) Apply(_, value string) string { return value }

// NoHooks returns a Hooks that leaves every value unchanged
func NoHooks() Hooks {
	return noHooks{}
}

func hooksOrDefault(h Hooks) Hooks {
	if h == nil {
		return NoHooks()
	}
	return h
}
