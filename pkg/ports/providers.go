package ports

import (
	"context"
	"net/http"
)

// TextGenerator produces text from a prompt (e.g. an LLM).
// Implementations return domain.ErrRateLimited (wrapped) when throttled.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// MessageSender delivers short messages to a phone number (channel B).
type MessageSender interface {
	SendMessage(ctx context.Context, to, body string) error
}

// Mail is an outgoing plain-text email.
type Mail struct {
	To      string
	Subject string
	Body    string
}

// MailSender delivers email (channel A).
type MailSender interface {
	SendMail(ctx context.Context, m Mail) error
}

// HTTPDoer performs outbound HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Providers bundles the external clients handed to node handlers.
// A nil provider makes the matching capability fail with a configuration reason.
type Providers struct {
	Text    TextGenerator
	Message MessageSender
	Mail    MailSender
	HTTP    HTTPDoer
}
