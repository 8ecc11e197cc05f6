// Package email delivers mail through the Postmark HTTP API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultEndpoint    = "https://api.postmarkapp.com/email"
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBodyBytes  = 4 << 10
)

// ErrNotConfigured indicates a client without a server token.
var ErrNotConfigured = errors.New("email: client not configured")

// Message is a single email. HTMLBody is optional.
type Message struct {
	To       string
	Subject  string
	Body     string
	HTMLBody string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, message Message) error
}

type Client struct {
	serverToken string
	fromAddress string
	endpoint    string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithEndpoint overrides the Postmark send endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(endpoint); trimmed != "" {
			c.endpoint = trimmed
		}
	}
}

func NewClient(serverToken, fromAddress string, opts ...Option) *Client {
	c := &Client{
		serverToken: strings.TrimSpace(serverToken),
		fromAddress: strings.TrimSpace(fromAddress),
		endpoint:    DefaultEndpoint,
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	TextBody string `json:"TextBody"`
	HtmlBody string `json:"HtmlBody,omitempty"`
}

// Send delivers message. Any status of 400 or above is an error.
func (c *Client) Send(ctx context.Context, message Message) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if strings.TrimSpace(message.To) == "" {
		return fmt.Errorf("email: recipient is required")
	}

	payload := postmarkEmail{
		From:     c.fromAddress,
		To:       strings.TrimSpace(message.To),
		Subject:  message.Subject,
		TextBody: message.Body,
		HtmlBody: message.HTMLBody,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("postmark API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
