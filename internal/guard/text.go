package guard

import "fmt"

// TextSurface identifies a display-name field rendered to the public
type TextSurface int

const (
	// TextFeedAuthor is the author field of every syndication feed (main,
	// category, tag, date archive, search and comments feeds)
	TextFeedAuthor TextSurface = iota

	// TextCommentAuthor is the display name of a comment author
	TextCommentAuthor
)

func (s TextSurface) String() string {
	switch s {
	case TextFeedAuthor:
		return "feed_author"
	case TextCommentAuthor:
		return "comment_author"
	default:
		return fmt.Sprintf("text_surface(%d)", int(s))
	}
}

// PublicTextEvaluator replaces display names with neutral text for
// anonymous callers.
type PublicTextEvaluator struct {
	siteTitle string
	hooks     Hooks
}

// NewPublicTextEvaluator creates an evaluator that substitutes feed authors
// with siteTitle and comment authors with DefaultCommentsText, each subject
// to its hook.
func NewPublicTextEvaluator(siteTitle string, hooks Hooks) *PublicTextEvaluator {
	return &PublicTextEvaluator{
		siteTitle: siteTitle,
		hooks:     hooksOrDefault(hooks),
	}
}

// FilterDisplayText returns current for authenticated callers and the
// surface's substitute otherwise. The substitute does not depend on current,
// so filtering an already filtered value is a no-op.
func (e *PublicTextEvaluator) FilterDisplayText(ac AuthContext, surface TextSurface, current string) string {
	if ac.Authenticated {
		return current
	}

	switch surface {
	case TextFeedAuthor:
		return e.hooks.Apply(HookFeedsText, e.siteTitle)
	default:
		return e.hooks.Apply(HookCommentsText, DefaultCommentsText)
	}
}
