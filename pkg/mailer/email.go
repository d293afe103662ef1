package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
)

// Email is a rendered message ready for delivery.
type Email struct {
	Headers     map[string]string
	Tags        map[string]string
	Subject     string
	HTML        string
	Text        string
	From        string
	ReplyTo     string
	To          []string
	Attachments []Attachment
}

// Attachment is a file sent along with an email.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Validate reports whether the email can be handed to a provider.
func (e *Email) Validate() error {
	if len(e.To) == 0 {
		return ErrNoRecipient
	}
	for _, to := range e.To {
		if _, err := mail.ParseAddress(to); err != nil {
			return fmt.Errorf("%w: %q", ErrNoRecipient, to)
		}
	}
	if e.Subject == "" {
		return ErrNoSubject
	}
	if e.HTML == "" && e.Text == "" {
		return ErrNoContent
	}
	return nil
}

// Address formats a display name and address as "Name <addr>".
func Address(name, addr string) string {
	if name == "" {
		return addr
	}
	return (&mail.Address{Name: name, Address: addr}).String()
}

// Sender delivers rendered emails.
type Sender interface {
	Send(ctx context.Context, email *Email) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, email *Email) error

func (f SenderFunc) Send(ctx context.Context, email *Email) error { return f(ctx, email) }

// LogSender writes emails to a logger instead of delivering them.
// The plain text part is logged so links can be followed in development.
type LogSender struct {
	log *slog.Logger
}

// NewLogSender returns a LogSender. A nil logger uses slog.Default.
func NewLogSender(log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.Default()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, email *Email) error {
	s.log.InfoContext(ctx, "email not delivered, no provider configured",
		slog.Any("to", email.To),
		slog.String("subject", email.Subject),
		slog.String("text", email.Text),
	)
	return nil
}
