package auth

import (
	"context"
	"sync"
)

// SessionConfig wires the collaborators of a Session.
type SessionConfig struct {
	Tokens   TokenSource
	ClientID string
	Logout   func(ctx context.Context) error
}

// Session is the application-wide authentication context. It is created once
// at startup and handed to every consumer that needs a token, the current
// identity, or the ability to log out.
type Session struct {
	tokens   TokenSource
	clientID string
	logout   func(ctx context.Context) error

	mu         sync.Mutex
	loggedOut  bool
	redirected bool
}

// NewSession builds a Session around the supplied token source.
func NewSession(cfg SessionConfig) *Session {
	logout := cfg.Logout
	if logout == nil {
		logout = func(context.Context) error { return nil }
	}
	return &Session{
		tokens:   cfg.Tokens,
		clientID: cfg.ClientID,
		logout:   logout,
	}
}

// Token returns a bearer token for the next request.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	loggedOut := s.loggedOut
	s.mu.Unlock()
	if loggedOut || s.tokens == nil {
		return "", ErrAuthentication
	}
	return s.tokens.Token(ctx)
}

// Claims decodes the identity of the current token.
func (s *Session) Claims(ctx context.Context) (Claims, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return Claims{}, err
	}
	decoded, err := DecodeUnverified(token)
	if err != nil {
		return Claims{}, err
	}
	return decoded.Identity(s.clientID), nil
}

// Logout ends the session; later token requests fail with ErrAuthentication.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	if s.loggedOut {
		s.mu.Unlock()
		return nil
	}
	s.loggedOut = true
	s.mu.Unlock()
	return s.logout(ctx)
}

// LoggedOut reports whether Logout has run.
func (s *Session) LoggedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedOut
}

// ConsumeFirstRedirect returns true exactly once per session: the first
// caller after login lands on the dashboard.
func (s *Session) ConsumeFirstRedirect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.redirected {
		return false
	}
	s.redirected = true
	return true
}
