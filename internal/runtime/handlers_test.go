package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/aretw0/autoflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_SendsCredentialHeadersAndStoresPrettyJSON(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":1}}`))
	}))
	defer srv.Close()

	d := NewDispatcher(ports.Providers{})
	ec := domain.NewExecutionContext(nil)
	node := &domain.Node{ID: "http", Capability: domain.CapabilityFetch, Config: map[string]string{"url": srv.URL, "api_key": "k-123"}}

	res := d.Dispatch(context.Background(), node, ec)

	require.Equal(t, domain.StatusSucceeded, res.Status)
	assert.Equal(t, "k-123", got.Get("x-cg-demo-api-key"))
	assert.Equal(t, "Bearer k-123", got.Get("Authorization"))
	assert.Equal(t, "k-123", got.Get("x-api-key"))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "{\n  \"bitcoin\": {\n    \"usd\": 1\n  }\n}", ec.String(domain.SlotExternalData))
}

func TestFetch_NoCredentialHeadersWithoutKey(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte("plain text"))
	}))
	defer srv.Close()

	d := NewDispatcher(ports.Providers{})
	ec := domain.NewExecutionContext(nil)
	res := d.Dispatch(context.Background(), &domain.Node{ID: "http", Capability: domain.CapabilityFetch, Config: map[string]string{"url": srv.URL}}, ec)

	require.Equal(t, domain.StatusSucceeded, res.Status)
	assert.Empty(t, got.Get("Authorization"))
	assert.Empty(t, got.Get("x-api-key"))
	assert.Equal(t, "plain text", ec.String(domain.SlotExternalData))
}

func TestFetch_FailureStoresSentinel(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		opts    []DispatcherOption
		config  map[string]string
	}{
		{
			name:    "Server Error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
		},
		{
			name: "Timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			opts: []DispatcherOption{WithFetchTimeout(50 * time.Millisecond)},
		},
		{
			name:    "Per Node Timeout",
			handler: func(w http.ResponseWriter, r *http.Request) { time.Sleep(200 * time.Millisecond) },
			config:  map[string]string{"timeout": "20ms"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			cfg := map[string]string{"url": srv.URL}
			for k, v := range tt.config {
				cfg[k] = v
			}

			d := NewDispatcher(ports.Providers{}, tt.opts...)
			ec := domain.NewExecutionContext(nil)
			res := d.Dispatch(context.Background(), &domain.Node{ID: "http", Capability: domain.CapabilityFetch, Config: cfg}, ec)

			assert.Equal(t, domain.StatusFailed, res.Status)
			assert.Error(t, res.Err)
			assert.Equal(t, FetchErrorSentinel, ec.String(domain.SlotExternalData))
		})
	}
}

func TestFetch_WithoutURLIsSkipped(t *testing.T) {
	d := NewDispatcher(ports.Providers{})
	res := d.Dispatch(context.Background(), &domain.Node{ID: "http", Capability: domain.CapabilityFetch}, domain.NewExecutionContext(nil))
	assert.Equal(t, domain.StatusSkipped, res.Status)
}

func TestTransform_UsesExternalDataAndCooldown(t *testing.T) {
	text := &fakeText{reply: "analysis"}
	var waited time.Duration
	d := NewDispatcher(ports.Providers{Text: text},
		WithCooldown(3*time.Second),
		WithSleeper(func(ctx context.Context, dur time.Duration) error {
			waited = dur
			return nil
		}),
	)

	ec := domain.NewExecutionContext(map[string]any{domain.SlotExternalData: `{"price":1}`, "payload": "ignored"})
	node := &domain.Node{ID: "ai", Capability: domain.CapabilityTransform, Config: map[string]string{"instruction": "Price report: {{externalData}} / {{unknown}}"}}

	res := d.Dispatch(context.Background(), node, ec)

	require.Equal(t, domain.StatusSucceeded, res.Status)
	assert.Equal(t, 3*time.Second, waited)
	assert.Equal(t, []string{`Price report: {"price":1} / {{unknown}}`}, text.calls())
	assert.Equal(t, "analysis", ec.String(domain.SlotAIResponse))
}

func TestTransform_DefaultInstruction(t *testing.T) {
	text := &fakeText{reply: "ok"}
	d := NewDispatcher(ports.Providers{Text: text}, WithSleeper(noSleep))
	ec := domain.NewExecutionContext(map[string]any{domain.SlotExternalData: "data"})

	d.Dispatch(context.Background(), &domain.Node{ID: "ai", Capability: domain.CapabilityTransform}, ec)

	assert.Equal(t, []string{"Analyze this:\n\ndata"}, text.calls())
}

func TestTransform_RateLimitedIsFailure(t *testing.T) {
	text := &fakeText{err: fmt.Errorf("gemini: %w", domain.ErrRateLimited)}
	d := NewDispatcher(ports.Providers{Text: text}, WithSleeper(noSleep))
	ec := domain.NewExecutionContext(map[string]any{domain.SlotExternalData: "data"})

	res := d.Dispatch(context.Background(), &domain.Node{ID: "ai", Capability: domain.CapabilityTransform}, ec)

	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, "rate limited", res.Reason)
	assert.ErrorIs(t, res.Err, domain.ErrRateLimited)
	assert.Empty(t, ec.String(domain.SlotAIResponse))
}

func TestTransform_CooldownRespectsContext(t *testing.T) {
	text := &fakeText{reply: "never"}
	d := NewDispatcher(ports.Providers{Text: text}, WithCooldown(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := d.Dispatch(ctx, &domain.Node{ID: "ai", Capability: domain.CapabilityTransform}, domain.NewExecutionContext(map[string]any{domain.SlotExternalData: "x"}))

	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Empty(t, text.calls())
}

func TestNotify_RequiresGeneratedText(t *testing.T) {
	mail := &fakeMail{}
	msg := &fakeMessage{}
	d := NewDispatcher(ports.Providers{Mail: mail, Message: msg})
	ec := domain.NewExecutionContext(map[string]any{domain.SlotIdentity: "a@x.com", domain.SlotPhone: "+1 555"})

	for _, c := range []domain.Capability{domain.CapabilityNotifyEmail, domain.CapabilityNotifyWhatsApp} {
		res := d.Dispatch(context.Background(), &domain.Node{ID: string(c), Capability: c}, ec)
		assert.Equal(t, domain.StatusSkipped, res.Status, string(c))
	}
	assert.Empty(t, mail.calls())
	assert.Empty(t, msg.calls())
}

func TestNotifyEmail_RecipientPreference(t *testing.T) {
	tests := []struct {
		name string
		seed map[string]any
		cfg  map[string]string
		want string
	}{
		{"Context Email Wins", map[string]any{"email": "ctx@x.com", "identity": "id@x.com"}, map[string]string{"to_email": "cfg@x.com"}, "ctx@x.com"},
		{"Identity Address", map[string]any{"identity": "id@x.com"}, map[string]string{"to_email": "cfg@x.com"}, "id@x.com"},
		{"Non Address Identity Falls Back", map[string]any{"identity": "user-17"}, map[string]string{"to_email": "cfg@x.com"}, "cfg@x.com"},
		{"Static Config", nil, map[string]string{"to_email": "cfg@x.com"}, "cfg@x.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mail := &fakeMail{}
			d := NewDispatcher(ports.Providers{Mail: mail})
			seed := map[string]any{domain.SlotAIResponse: "body"}
			for k, v := range tt.seed {
				seed[k] = v
			}

			res := d.Dispatch(context.Background(), &domain.Node{ID: "mail", Capability: domain.CapabilityNotifyEmail, Config: tt.cfg}, domain.NewExecutionContext(seed))

			require.Equal(t, domain.StatusSucceeded, res.Status)
			sent := mail.calls()
			require.Len(t, sent, 1)
			assert.Equal(t, tt.want, sent[0].To)
			assert.Equal(t, DefaultEmailSubject, sent[0].Subject)
		})
	}
}

func TestNotifyWhatsApp_SanitizesAndTruncates(t *testing.T) {
	msg := &fakeMessage{}
	d := NewDispatcher(ports.Providers{Message: msg})
	long := strings.Repeat("é", 2000)
	ec := domain.NewExecutionContext(map[string]any{domain.SlotAIResponse: long})

	res := d.Dispatch(context.Background(), &domain.Node{
		ID:         "wa",
		Capability: domain.CapabilityNotifyWhatsApp,
		Config:     map[string]string{"to_phone": "+1 (555) 010-9999"},
	}, ec)

	require.Equal(t, domain.StatusSucceeded, res.Status)
	sent := msg.calls()
	require.Len(t, sent, 1)
	assert.Equal(t, "+15550109999", sent[0].To)
	assert.Equal(t, 1550, len([]rune(sent[0].Body)))
}

func TestNotifyWhatsApp_ContextPhoneWins(t *testing.T) {
	msg := &fakeMessage{}
	d := NewDispatcher(ports.Providers{Message: msg})
	ec := domain.NewExecutionContext(map[string]any{domain.SlotAIResponse: "hi", domain.SlotPhone: "+44 20 7946"})

	d.Dispatch(context.Background(), &domain.Node{ID: "wa", Capability: domain.CapabilityNotifyWhatsApp, Config: map[string]string{"to_phone": "+1555"}}, ec)

	require.Len(t, msg.calls(), 1)
	assert.Equal(t, "+44207946", msg.calls()[0].To)
}

func TestNotify_MissingProviderFails(t *testing.T) {
	d := NewDispatcher(ports.Providers{})
	ec := domain.NewExecutionContext(map[string]any{domain.SlotAIResponse: "hi", domain.SlotEmail: "a@x.com"})

	res := d.Dispatch(context.Background(), &domain.Node{ID: "mail", Capability: domain.CapabilityNotifyEmail}, ec)
	assert.Equal(t, domain.StatusFailed, res.Status)
}

func TestWebhook(t *testing.T) {
	t.Run("Posts Fixed Payload", func(t *testing.T) {
		var got WebhookPayload
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			_ = json.NewDecoder(r.Body).Decode(&got)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		d := NewDispatcher(ports.Providers{})
		ec := domain.NewExecutionContext(map[string]any{domain.SlotIdentity: "a@x.com", domain.SlotAIResponse: "text"})
		res := d.Dispatch(context.Background(), &domain.Node{ID: "hook", Capability: domain.CapabilityWebhook, Config: map[string]string{"url": srv.URL}}, ec)

		require.Equal(t, domain.StatusSucceeded, res.Status)
		assert.Equal(t, WebhookPayload{Subject: "a@x.com", Text: "text", Source: "autoflow"}, got)
	})

	t.Run("Non Success Status Fails", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		d := NewDispatcher(ports.Providers{})
		res := d.Dispatch(context.Background(), &domain.Node{ID: "hook", Capability: domain.CapabilityWebhook, Config: map[string]string{"url": srv.URL}}, domain.NewExecutionContext(nil))
		assert.Equal(t, domain.StatusFailed, res.Status)
	})

	t.Run("Unconfigured Is Skipped", func(t *testing.T) {
		d := NewDispatcher(ports.Providers{})
		res := d.Dispatch(context.Background(), &domain.Node{ID: "hook", Capability: domain.CapabilityWebhook}, domain.NewExecutionContext(nil))
		assert.Equal(t, domain.StatusSkipped, res.Status)
	})
}

func TestRender(t *testing.T) {
	lookup := func(key string) (string, bool) {
		v, ok := map[string]string{"name": "Sam", "externalData": "{}"}[key]
		return v, ok
	}

	assert.Equal(t, "Hi Sam", render("Hi {{name}}", lookup))
	assert.Equal(t, "Hi Sam", render("Hi {{ name }}", lookup))
	assert.Equal(t, "data: {} {{missing}}", render("data: {{externalData}} {{missing}}", lookup))
	assert.Equal(t, "plain", render("plain", lookup))
}

func TestDecodeConfig_Invalid(t *testing.T) {
	var cfg fetchConfig
	err := decodeConfig("n1", map[string]string{"timeout": "not-a-duration"}, &cfg)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "n1", ce.NodeID)
}
