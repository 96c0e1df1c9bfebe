package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/aretw0/autoflow/pkg/ports"
)

const (
	// FetchErrorSentinel replaces the fetched data when the request fails,
	// so downstream nodes still receive something to work with.
	FetchErrorSentinel = "Error: Check your URL or API Key."

	// DefaultInstruction is used by transform nodes without an instruction.
	DefaultInstruction = "Analyze this:\n\n{{input}}"

	// DefaultEmailSubject is used by email nodes without a subject.
	DefaultEmailSubject = "Workflow Update"

	// WebhookSource tags every outbound webhook payload.
	WebhookSource = "autoflow"

	maxWhatsAppBody = 1550
	maxEmailBody    = 10000
	maxFetchBody    = 1 << 20
)

func (d *Dispatcher) trigger(ctx context.Context, node *domain.Node, ec *domain.ExecutionContext) domain.Result {
	var cfg triggerConfig
	if err := decodeConfig(node.ID, node.Config, &cfg); err != nil {
		return domain.Failed("invalid config", err)
	}

	filter := strings.TrimSpace(cfg.Filter)
	identity := strings.TrimSpace(ec.String(domain.SlotIdentity))
	// Only a present filter and a present identity can disagree.
	if filter != "" && identity != "" && !strings.EqualFold(filter, identity) {
		return domain.ShortCircuited("identity does not match filter")
	}
	return domain.Succeeded()
}

func (d *Dispatcher) fetch(ctx context.Context, node *domain.Node, ec *domain.ExecutionContext) domain.Result {
	var cfg fetchConfig
	if err := decodeConfig(node.ID, node.Config, &cfg); err != nil {
		return domain.Failed("invalid config", err)
	}
	if cfg.URL == "" {
		return domain.Skipped("no url configured")
	}

	timeout := d.fetchTimeout
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := d.get(ctx, cfg)
	if err != nil {
		ec.Set(domain.SlotExternalData, FetchErrorSentinel)
		return domain.Failed("fetch failed", err)
	}

	ec.Set(domain.SlotExternalData, prettyJSON(body))
	return domain.Succeeded()
}

func (d *Dispatcher) get(ctx context.Context, cfg fetchConfig) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if cfg.APIKey != "" {
		// Sent under every common convention at once; the endpoint picks the one it knows.
		req.Header.Set("x-cg-demo-api-key", cfg.APIKey)
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
		req.Header.Set("x-api-key", cfg.APIKey)
	}

	resp, err := d.providers.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

func (d *Dispatcher) transform(ctx context.Context, node *domain.Node, ec *domain.ExecutionContext) domain.Result {
	input := ec.String(domain.SlotExternalData)
	if input == "" {
		input = ec.String(domain.SlotPayload)
	}
	if input == "" {
		return domain.Skipped("no upstream input")
	}

	var cfg transformConfig
	if err := decodeConfig(node.ID, node.Config, &cfg); err != nil {
		return domain.Failed("invalid config", err)
	}
	if d.providers.Text == nil {
		return domain.Failed("no text generator configured", nil)
	}

	instruction := cfg.Instruction
	if strings.TrimSpace(instruction) == "" {
		instruction = DefaultInstruction
	}
	prompt := render(instruction, func(key string) (string, bool) {
		if key == "input" {
			return input, true
		}
		if _, ok := ec.Get(key); !ok {
			return "", false
		}
		return ec.String(key), true
	})

	d.logger.Debug("waiting for provider cool-down", "node_id", node.ID, "cooldown", d.cooldown)
	if err := d.sleep(ctx, d.cooldown); err != nil {
		return domain.Failed("cool-down interrupted", err)
	}

	text, err := d.providers.Text.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			d.logger.Warn("text generator still rate limited", "node_id", node.ID, "err", err)
			return domain.Failed("rate limited", err)
		}
		return domain.Failed("text generation failed", err)
	}

	ec.Set(domain.SlotAIResponse, text)
	return domain.Succeeded()
}

func (d *Dispatcher) notifyEmail(ctx context.Context, node *domain.Node, ec *domain.ExecutionContext) domain.Result {
	text := ec.String(domain.SlotAIResponse)
	if text == "" {
		return domain.Skipped("no generated text")
	}

	var cfg emailConfig
	if err := decodeConfig(node.ID, node.Config, &cfg); err != nil {
		return domain.Failed("invalid config", err)
	}

	to := emailRecipient(ec, cfg)
	if to == "" {
		return domain.Skipped("no recipient")
	}
	if d.providers.Mail == nil {
		return domain.Failed("no mail sender configured", nil)
	}

	subject := cfg.Subject
	if subject == "" {
		subject = DefaultEmailSubject
	}

	err := d.providers.Mail.SendMail(ctx, ports.Mail{
		To:      to,
		Subject: subject,
		Body:    truncate(text, maxEmailBody),
	})
	if err != nil {
		return domain.Failed("mail delivery failed", err)
	}
	return domain.Succeeded()
}

// emailRecipient prefers addresses supplied by the triggering event over static config.
func emailRecipient(ec *domain.ExecutionContext, cfg emailConfig) string {
	if v := strings.TrimSpace(ec.String(domain.SlotEmail)); v != "" {
		return v
	}
	if v := strings.TrimSpace(ec.String(domain.SlotIdentity)); strings.Contains(v, "@") {
		return v
	}
	return strings.TrimSpace(cfg.ToEmail)
}

func (d *Dispatcher) notifyWhatsApp(ctx context.Context, node *domain.Node, ec *domain.ExecutionContext) domain.Result {
	text := ec.String(domain.SlotAIResponse)
	if text == "" {
		return domain.Skipped("no generated text")
	}

	var cfg whatsAppConfig
	if err := decodeConfig(node.ID, node.Config, &cfg); err != nil {
		return domain.Failed("invalid config", err)
	}

	phone := ec.String(domain.SlotPhone)
	if strings.TrimSpace(phone) == "" {
		phone = cfg.ToPhone
	}
	phone = sanitizePhone(phone)
	if phone == "" {
		return domain.Skipped("no recipient")
	}
	if d.providers.Message == nil {
		return domain.Failed("no message sender configured", nil)
	}

	if err := d.providers.Message.SendMessage(ctx, phone, truncate(text, maxWhatsAppBody)); err != nil {
		return domain.Failed("message delivery failed", err)
	}
	return domain.Succeeded()
}

// WebhookPayload is the fixed body posted by webhook nodes.
type WebhookPayload struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
	Source  string `json:"source"`
}

func (d *Dispatcher) webhook(ctx context.Context, node *domain.Node, ec *domain.ExecutionContext) domain.Result {
	var cfg webhookConfig
	if err := decodeConfig(node.ID, node.Config, &cfg); err != nil {
		return domain.Failed("invalid config", err)
	}
	if cfg.URL == "" {
		return domain.Skipped("no url configured")
	}

	body, err := json.Marshal(WebhookPayload{
		Subject: ec.String(domain.SlotIdentity),
		Text:    ec.String(domain.SlotAIResponse),
		Source:  WebhookSource,
	})
	if err != nil {
		return domain.Failed("failed to encode payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return domain.Failed("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.providers.HTTP.Do(req)
	if err != nil {
		return domain.Failed("webhook delivery failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Failed("webhook delivery failed", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return domain.Succeeded()
}

func prettyJSON(body []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		return string(body)
	}
	return buf.String()
}

func sanitizePhone(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '+' || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
