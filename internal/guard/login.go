package guard

// LoginErrorEvaluator collapses every login failure into one message so that
// "unknown username" and "wrong password" cannot be told apart.
type LoginErrorEvaluator struct {
	hooks Hooks
}

// NewLoginErrorEvaluator creates a login error evaluator
func NewLoginErrorEvaluator(hooks Hooks) *LoginErrorEvaluator {
	return &LoginErrorEvaluator{hooks: hooksOrDefault(hooks)}
}

// FilterLoginError replaces current unconditionally. It runs on failed
// logins, where the caller is by definition not authenticated.
func (e *LoginErrorEvaluator) FilterLoginError(string) string {
	return e.hooks.Apply(HookLoginErrorText, DefaultLoginErrorText)
}
