package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

var (
	// ErrAuthentication reports that no usable bearer token could be obtained.
	ErrAuthentication    = errors.New("auth: authentication failed")
	errMissingRefresher  = errors.New("auth: token refresher required")
	errEmptyTokenPayload = errors.New("auth: token endpoint returned no access token")
)

// TokenSource yields a bearer token, refreshing it when necessary.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource always returns the same token.
type StaticTokenSource string

// Token returns the static token or ErrAuthentication when it is empty.
func (s StaticTokenSource) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrAuthentication
	}
	return string(s), nil
}

// TokenPair is the result of a refresh grant.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Refresher exchanges a refresh token for a fresh token pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
}

// RefreshingTokenSourceConfig configures a RefreshingTokenSource.
type RefreshingTokenSourceConfig struct {
	AccessToken  string
	RefreshToken string
	Refresher    Refresher
	// MinValidity is the remaining lifetime below which a token is refreshed.
	MinValidity time.Duration
	// OnFailure runs once a refresh fails, typically forcing a logout.
	OnFailure func(ctx context.Context)
	Clock     func() time.Time
}

// RefreshingTokenSource hands out the current access token and refreshes it
// when it is expired or about to expire.
type RefreshingTokenSource struct {
	mu           sync.Mutex
	accessToken  string
	refreshToken string
	refresher    Refresher
	minValidity  time.Duration
	onFailure    func(ctx context.Context)
	clock        func() time.Time
}

// NewRefreshingTokenSource validates configuration and builds a token source.
func NewRefreshingTokenSource(cfg RefreshingTokenSourceConfig) (*RefreshingTokenSource, error) {
	if cfg.Refresher == nil {
		return nil, errMissingRefresher
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	onFailure := cfg.OnFailure
	if onFailure == nil {
		onFailure = func(context.Context) {}
	}
	return &RefreshingTokenSource{
		accessToken:  strings.TrimSpace(cfg.AccessToken),
		refreshToken: strings.TrimSpace(cfg.RefreshToken),
		refresher:    cfg.Refresher,
		minValidity:  cfg.MinValidity,
		onFailure:    onFailure,
		clock:        clock,
	}, nil
}

// Token returns a token valid for at least MinValidity, refreshing if needed.
// OnFailure runs after the source is unlocked.
func (s *RefreshingTokenSource) Token(ctx context.Context) (string, error) {
	token, err := s.currentToken(ctx)
	if err != nil {
		s.onFailure(ctx)
		return "", err
	}
	return token, nil
}

func (s *RefreshingTokenSource) currentToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" && !s.expiresWithin(s.accessToken, s.minValidity) {
		return s.accessToken, nil
	}
	if s.refreshToken == "" {
		return "", fmt.Errorf("%w: token expired and no refresh token available", ErrAuthentication)
	}

	pair, err := s.refresher.Refresh(ctx, s.refreshToken)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	s.accessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		s.refreshToken = pair.RefreshToken
	}
	return s.accessToken, nil
}

// RefreshToken returns the most recent refresh token.
func (s *RefreshingTokenSource) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshToken
}

// IsExpired reports whether the current access token expires within minValidity.
func (s *RefreshingTokenSource) IsExpired(minValidity time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken == "" || s.expiresWithin(s.accessToken, minValidity)
}

func (s *RefreshingTokenSource) expiresWithin(token string, window time.Duration) bool {
	claims, err := DecodeUnverified(token)
	if err != nil || claims.ExpiresAt == nil {
		return true
	}
	return !claims.ExpiresAt.Time.After(s.clock().Add(window))
}

// KeycloakTokenClient talks to the realm token and logout endpoints as a public client.
type KeycloakTokenClient struct {
	TokenURL   string
	LogoutURL  string
	ClientID   string
	HTTPClient *http.Client
}

type tokenEndpointResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Refresh performs a refresh_token grant.
func (c KeycloakTokenClient) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.ClientID)
	form.Set("refresh_token", refreshToken)

	response, err := c.postForm(ctx, c.TokenURL, form)
	if err != nil {
		return TokenPair{}, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return TokenPair{}, fmt.Errorf("token endpoint returned status %d", response.StatusCode)
	}
	var payload tokenEndpointResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return TokenPair{}, fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return TokenPair{}, errEmptyTokenPayload
	}
	return TokenPair{AccessToken: payload.AccessToken, RefreshToken: payload.RefreshToken}, nil
}

// Logout ends the identity provider session bound to refreshToken.
func (c KeycloakTokenClient) Logout(ctx context.Context, refreshToken string) error {
	if c.LogoutURL == "" || refreshToken == "" {
		return nil
	}
	form := url.Values{}
	form.Set("client_id", c.ClientID)
	form.Set("refresh_token", refreshToken)

	response, err := c.postForm(ctx, c.LogoutURL, form)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("logout endpoint returned status %d", response.StatusCode)
	}
	return nil
}

func (c KeycloakTokenClient) postForm(ctx context.Context, endpoint string, form url.Values) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return httpClient.Do(request)
}
