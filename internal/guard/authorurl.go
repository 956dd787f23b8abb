package guard

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// authorQuery matches an author-ID query argument (?author=7, &author=7/).
// The digits are optional so that ?author= with a non-numeric tail, which
// hosts coerce to an ID, is covered too.
var authorQuery = regexp.MustCompile(`(?i)(?:^|[?&;])author=([0-9]*)(/*)`)

// AuthorURLEvaluator keeps usernames out of author archive URLs.
//
// Both halves must be installed: FilterRedirect stops the host from turning
// ?author=<id> into a pretty /author/<username>/ URL, and RewriteAuthorURL
// neutralizes pretty URLs the host already generated elsewhere.
type AuthorURLEvaluator struct {
	siteURL string
}

// NewAuthorURLEvaluator creates an evaluator that rewrites author URLs
// against siteURL. With an empty siteURL the origin of each generated URL is
// used as the site root.
func NewAuthorURLEvaluator(siteURL string) *AuthorURLEvaluator {
	return &AuthorURLEvaluator{siteURL: strings.TrimRight(siteURL, "/")}
}

// FilterRedirect returns the redirect target to use, and false when the
// redirect must be cancelled.
func (e *AuthorURLEvaluator) FilterRedirect(ac AuthContext, redirectURL, requestedURL string) (string, bool) {
	if ac.Authenticated {
		return redirectURL, true
	}
	if authorQuery.MatchString(requestedURL) {
		return "", false
	}
	return redirectURL, true
}

// RewriteAuthorURL returns generatedURL for authenticated callers and the
// ID-only form <site-root>/?author=<userID> for everybody else.
func (e *AuthorURLEvaluator) RewriteAuthorURL(ac AuthContext, generatedURL string, userID int64) string {
	if ac.Authenticated {
		return generatedURL
	}
	return e.siteRoot(generatedURL) + "/?author=" + strconv.FormatInt(userID, 10)
}

func (e *AuthorURLEvaluator) siteRoot(generatedURL string) string {
	if e.siteURL != "" {
		return e.siteURL
	}
	u, err := url.Parse(generatedURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
