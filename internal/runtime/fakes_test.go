package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aretw0/autoflow/pkg/ports"
)

type fakeText struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (f *fakeText) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeText) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

type fakeMail struct {
	mu     sync.Mutex
	sent   []ports.Mail
	failTo map[string]bool
}

func (f *fakeMail) SendMail(ctx context.Context, m ports.Mail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[m.To] {
		return errors.New("smtp: mailbox unavailable")
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeMail) calls() []ports.Mail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.Mail(nil), f.sent...)
}

type sentMessage struct {
	To   string
	Body string
}

type fakeMessage struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeMessage) SendMessage(ctx context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{To: to, Body: body})
	return nil
}

func (f *fakeMessage) calls() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func noSleep(context.Context, time.Duration) error { return nil }
