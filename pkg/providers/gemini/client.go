// Package gemini implements ports.TextGenerator on the Gemini API through the
// official Go SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/aretw0/autoflow/pkg/domain"
	"google.golang.org/genai"
)

const (
	DefaultModel = "gemini-2.5-flash"

	maxErrorRunes = 200
)

// Client calls the Gemini generateContent API. The API key travels in the
// x-goog-api-key header, never in the request URL.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client

	once   sync.Once
	client *genai.Client
	err    error
}

type Option func(*Client)

// WithModel selects the model name.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL points the client at another endpoint (tests, proxies).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New creates a Gemini client. The SDK client is built on first use.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey: apiKey,
		model:  DefaultModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) sdk(ctx context.Context) (*genai.Client, error) {
	c.once.Do(func() {
		cfg := &genai.ClientConfig{
			APIKey:     c.apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: c.http,
		}
		if c.baseURL != "" {
			cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL + "/"}
		}
		c.client, c.err = genai.NewClient(ctx, cfg)
	})
	return c.client, c.err
}

// Generate sends the prompt and returns the first candidate's text.
// A 429 response is reported as domain.ErrRateLimited.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	client, err := c.sdk(ctx)
	if err != nil {
		return "", fmt.Errorf("gemini: failed to create client: %s", c.redact(err))
	}

	resp, err := client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			if apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED" {
				return "", fmt.Errorf("gemini: %w", domain.ErrRateLimited)
			}
			return "", fmt.Errorf("gemini: unexpected status %d: %s", apiErr.Code, truncate(c.redact(apiErr), maxErrorRunes))
		}
		return "", fmt.Errorf("gemini: %s", c.redact(err))
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: response has no candidates")
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	return sb.String(), nil
}

// redact renders err with the API key masked. Error text ends up in run
// records and logs.
func (c *Client) redact(err error) string {
	msg := err.Error()
	if c.apiKey != "" {
		msg = strings.ReplaceAll(msg, c.apiKey, "[REDACTED]")
	}
	return msg
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
