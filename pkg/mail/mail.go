package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// ErrNotConfigured is returned when no SMTP server is configured.
var ErrNotConfigured = errors.New("mail: smtp server not configured")

// Message is an outgoing plain text mail.
type Message struct {
	Subject    string
	Body       string
	To         string
	SenderName string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Config holds the SMTP submission settings.
type Config struct {
	Server        string
	Port          int
	User          string
	Password      string
	DefaultSender string
	Timeout       time.Duration
}

// SMTPMailer submits mail over SMTP, upgrading with STARTTLS when the
// server offers it and authenticating with PLAIN when credentials are set.
// The user doubles as the sender address.
type SMTPMailer struct {
	cfg Config
}

// NewSMTPMailer creates a mailer. Zero Port defaults to 587.
func NewSMTPMailer(cfg Config) *SMTPMailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.DefaultSender == "" {
		cfg.DefaultSender = "Mesh-Service"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPMailer{cfg: cfg}
}

// Send delivers msg in a single SMTP session.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if m.cfg.Server == "" {
		return ErrNotConfigured
	}

	out, err := m.Build(msg)
	if err != nil {
		return err
	}

	opts := []gomail.Option{
		gomail.WithPort(m.cfg.Port),
		gomail.WithTimeout(m.cfg.Timeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if m.cfg.User != "" && m.cfg.Password != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.User),
			gomail.WithPassword(m.cfg.Password),
		)
	}
	client, err := gomail.NewClient(m.cfg.Server, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

// Build renders msg with the configured account as the envelope sender.
// An invalid recipient or sender address is rejected here.
func (m *SMTPMailer) Build(msg Message) (*gomail.Msg, error) {
	name := msg.SenderName
	if name == "" {
		name = m.cfg.DefaultSender
	}

	out := gomail.NewMsg()
	if err := out.FromFormat(name, m.cfg.User); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.cfg.User, err)
	}
	if err := out.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	out.Subject(msg.Subject)
	out.SetDate()
	out.SetBodyString(gomail.TypeTextPlain, msg.Body)
	return out, nil
}
