package webdriver

import (
	"context"

	"github.com/tidwall/sjson"
)

// BlankURL is the page Reset navigates to.
const BlankURL = "about:blank"

// Session is a remote session. Requests issued through its [Requester]
// methods are relative to /session/{id}.
type Session struct {
	requester

	ID string
	// Capabilities is the raw JSON object the remote end matched.
	Capabilities []byte
}

// Guarded returns a handle on the same remote session whose requests first
// call check and fail with its error when it is non-nil. s is unaffected.
func (s *Session) Guarded(check func() error) *Session {
	g := *s
	g.guard = check
	return &g
}

// Navigate loads url in the current top-level browsing context.
func (s *Session) Navigate(ctx context.Context, url string) error {
	body, err := sjson.SetBytes(nil, "url", url)
	if err != nil {
		return err
	}
	_, err = s.Post(ctx, "/url", body)
	return err
}

// CurrentURL returns the URL of the current top-level browsing context.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	v, err := s.Get(ctx, "/url")
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// DeleteCookies removes every cookie visible to the current page.
func (s *Session) DeleteCookies(ctx context.Context) error {
	_, err := s.Delete(ctx, "/cookie")
	return err
}

// Reset returns the session to a blank page with no cookies.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.Navigate(ctx, BlankURL); err != nil {
		return err
	}
	return s.DeleteCookies(ctx)
}

// Close ends the session on the remote end (DELETE /session/{id}).
func (s *Session) Close(ctx context.Context) error {
	_, err := s.Delete(ctx, "")
	return err
}
