// Package mail implements ports.MailSender over SMTP with go-mail.
package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/autoflow/pkg/ports"
	gomail "github.com/wneessen/go-mail"
)

// SendFunc delivers a composed message (the SMTP dial by default, a stub in tests).
type SendFunc func(ctx context.Context, msg *gomail.Msg) error

// Sender delivers plain-text mail through an SMTP relay (Gmail by default).
// Port 465 uses implicit TLS; any other port requires STARTTLS.
type Sender struct {
	host     string
	port     int
	username string
	password string
	fromName string
	timeout  time.Duration
	send     SendFunc
}

type Option func(*Sender)

// WithFromName sets the display name of the sender.
func WithFromName(name string) Option {
	return func(s *Sender) {
		s.fromName = name
	}
}

// WithTimeout bounds the SMTP dial and conversation.
func WithTimeout(d time.Duration) Option {
	return func(s *Sender) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSendFunc replaces the transport.
func WithSendFunc(fn SendFunc) Option {
	return func(s *Sender) {
		s.send = fn
	}
}

// New creates an SMTP sender authenticating as username.
func New(host string, port int, username, password string, opts ...Option) *Sender {
	s := &Sender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		fromName: "AutoFlow",
		timeout:  30 * time.Second,
	}
	s.send = s.dialAndSend
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendMail delivers m.
func (s *Sender) SendMail(ctx context.Context, m ports.Mail) error {
	if strings.ContainsAny(m.Subject, "\r\n") {
		return fmt.Errorf("mail: subject contains line breaks")
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.username); err != nil {
		return fmt.Errorf("mail: invalid sender %q: %w", s.username, err)
	}
	if err := msg.To(m.To); err != nil {
		return fmt.Errorf("mail: invalid recipient %q: %w", m.To, err)
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, m.Body)

	if err := s.send(ctx, msg); err != nil {
		return fmt.Errorf("mail: %w", err)
	}
	return nil
}

func (s *Sender) dialAndSend(ctx context.Context, msg *gomail.Msg) error {
	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTimeout(s.timeout),
	}
	if s.port == 465 {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	}
	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}

	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("failed to configure smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}
