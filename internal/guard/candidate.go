package guard

// Candidate is a value about to be rendered that may leak a username.
// It is one of AuthorDisplayName, CommentAuthorName, AuthorArchiveURL or
// LoginErrorText; Guard.Filter returns the same variant.
type Candidate interface {
	candidate()
}

// AuthorDisplayName is an author name emitted into a feed
type AuthorDisplayName struct {
	Text string
}

// CommentAuthorName is a comment author's display name
type CommentAuthorName struct {
	Text string
}

// AuthorArchiveURL is a generated link to an author's archive
type AuthorArchiveURL struct {
	URL    string
	UserID int64
}

// LoginErrorText is the message shown after a failed login
type LoginErrorText struct {
	Text string
}

func (AuthorDisplayName) candidate() {}
func (CommentAuthorName) candidate() {}
func (AuthorArchiveURL) candidate() {}
func (LoginErrorText) candidate() {}
