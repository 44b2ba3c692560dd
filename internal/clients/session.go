package clients

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

// Session is an authenticated anonymous identity. Its token source refreshes
// the ID token on demand and is safe for concurrent use.
type Session struct {
	uid          string
	refreshToken string
	source       oauth2.TokenSource
}

// NewSession wraps an existing token source, e.g. a static token in tests.
func NewSession(uid, refreshToken string, source oauth2.TokenSource) *Session {
	return &Session{uid: uid, refreshToken: refreshToken, source: source}
}

// UID is empty for a nil session.
func (s *Session) UID() string {
	if s == nil {
		return ""
	}
	return s.uid
}

// RefreshToken is the long-lived credential used to resume this session.
func (s *Session) RefreshToken() string {
	return s.refreshToken
}

func (s *Session) TokenSource() oauth2.TokenSource {
	return s.source
}

// Token matches oauth2.TokenSource. Refreshes run on the context the session
// was created with.
func (s *Session) Token() (*oauth2.Token, error) {
	return s.source.Token()
}

// HTTPClient returns a client that sends the session's ID token as a bearer token.
func (s *Session) HTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, s.source)
}
