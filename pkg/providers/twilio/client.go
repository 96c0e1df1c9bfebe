// Package twilio implements ports.MessageSender on the Twilio WhatsApp
// messaging API through the official Go SDK.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/autoflow/pkg/domain"
	twilio "github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// codeTooManyRequests is Twilio's error code for a 429 response.
const codeTooManyRequests = 20429

// Client sends WhatsApp messages through Twilio.
type Client struct {
	accountSID string
	authToken  string
	from       string
	baseURL    *url.URL
	transport  http.RoundTripper
	timeout    time.Duration
}

type Option func(*Client)

// WithBaseURL points the client at another endpoint (tests, proxies).
// Requests keep their API path; only scheme and host change.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if parsed, err := url.Parse(u); err == nil && parsed.Host != "" {
			c.baseURL = parsed
		}
	}
}

// WithTransport replaces the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// New creates a Twilio client sending from the given WhatsApp-enabled number.
func New(accountSID, authToken, from string, opts ...Option) *Client {
	c := &Client{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		transport:  http.DefaultTransport,
		timeout:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendMessage delivers body to the phone number over WhatsApp.
func (c *Client) SendMessage(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &api.CreateMessageParams{}
	params.SetFrom(whatsapp(c.from))
	params.SetTo(whatsapp(to))
	params.SetBody(body)

	if _, err := c.rest(ctx).Api.CreateMessage(params); err != nil {
		var restErr *twclient.TwilioRestError
		if errors.As(err, &restErr) {
			if restErr.Status == http.StatusTooManyRequests || restErr.Code == codeTooManyRequests {
				return fmt.Errorf("twilio: %w", domain.ErrRateLimited)
			}
			return fmt.Errorf("twilio: status %d (code %d): %s", restErr.Status, restErr.Code, restErr.Message)
		}
		return fmt.Errorf("twilio: %w", err)
	}
	return nil
}

// rest builds an SDK client whose requests carry ctx. The SDK's calls take
// no context, so cancellation is threaded through the transport.
func (c *Client) rest(ctx context.Context) *twilio.RestClient {
	base := &twclient.Client{
		Credentials: twclient.NewCredentials(c.accountSID, c.authToken),
		HTTPClient: &http.Client{
			Timeout:   c.timeout,
			Transport: &contextTransport{ctx: ctx, base: c.baseURL, next: c.transport},
		},
	}
	base.SetAccountSid(c.accountSID)
	return twilio.NewRestClientWithParams(twilio.ClientParams{Client: base})
}

type contextTransport struct {
	ctx  context.Context
	base *url.URL
	next http.RoundTripper
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.WithContext(t.ctx)
	if t.base != nil {
		req.URL.Scheme = t.base.Scheme
		req.URL.Host = t.base.Host
		req.Host = t.base.Host
	}
	return t.next.RoundTrip(req)
}

func whatsapp(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}
