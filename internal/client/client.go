// Package client talks to the KeepNote REST API on behalf of the command line
// client. Every call obtains a fresh bearer token, decodes the JSON body into
// explicit structs and validates it before handing it back.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/keepnote/internal/auth"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	maxErrorBodyBytes  = 4 << 10
	jsonContentType    = "application/json"
)

var (
	errMissingBaseURL     = errors.New("client: base URL is required")
	errMissingTokenSource = errors.New("client: token source is required")
	// ErrInvalidResponse indicates a response body that failed schema validation.
	ErrInvalidResponse = errors.New("client: invalid response body")
)

// HTTPError reports a non-2xx response.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Config describes the collaborators of a Client.
type Config struct {
	BaseURL    string
	Tokens     auth.TokenSource
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client performs authenticated JSON calls against the API.
type Client struct {
	baseURL    string
	tokens     auth.TokenSource
	httpClient *http.Client
	validate   *validator.Validate
	logger     *zap.Logger
}

func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	if cfg.Tokens == nil {
		return nil, errMissingTokenSource
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		tokens:     cfg.Tokens,
		httpClient: httpClient,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     logger,
	}, nil
}

// Notes returns the notes client bound to c.
func (c *Client) Notes() *Notes {
	return &Notes{client: c}
}

// Requests returns the pro request client bound to c.
func (c *Client) Requests() *Requests {
	return &Requests{client: c}
}

// do sends one request. A nil out discards the response body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("obtain token: %w", err)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var payload io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		payload = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Content-Type", jsonContentType)
	request.Header.Set("Accept", jsonContentType)

	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Warn("api request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
		httpErr := &HTTPError{
			Method:     method,
			Path:       path,
			StatusCode: response.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
		c.logger.Warn("api request rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", response.StatusCode))
		return httpErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if err := c.validateBody(out); err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrInvalidResponse, err)
	}
	return nil
}

// validateBody validates a decoded struct or every element of a decoded slice.
func (c *Client) validateBody(out any) error {
	value := reflect.Indirect(reflect.ValueOf(out))
	switch value.Kind() {
	case reflect.Struct:
		return c.validate.Struct(value.Interface())
	case reflect.Slice:
		for index := 0; index < value.Len(); index++ {
			element := reflect.Indirect(value.Index(index))
			if element.Kind() != reflect.Struct {
				continue
			}
			if err := c.validate.Struct(element.Interface()); err != nil {
				return fmt.Errorf("element %d: %w", index, err)
			}
		}
	}
	return nil
}
