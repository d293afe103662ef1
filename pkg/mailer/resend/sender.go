// Package resend delivers mailer emails through the Resend API.
package resend

import (
	"context"
	"errors"
	"fmt"

	"github.com/resend/resend-go/v3"

	"github.com/nmi-agro/fdm/pkg/mailer"
)

// ErrMissingAPIKey is returned by New when no API key is configured.
var ErrMissingAPIKey = errors.New("resend: missing api key")

// Config holds Resend credentials and the default sender.
type Config struct {
	APIKey    string `env:"RESEND_API_KEY"`
	FromEmail string `env:"RESEND_FROM_EMAIL" envDefault:"no-reply@fdm.nmi-agro.nl"`
	FromName  string `env:"RESEND_FROM_NAME" envDefault:"FDM"`
}

// Enabled reports whether an API key is set.
func (c Config) Enabled() bool { return c.APIKey != "" }

// Sender implements mailer.Sender.
type Sender struct {
	client *resend.Client
	from   string
}

// New returns a Sender for cfg.
func New(cfg Config) (*Sender, error) {
	if !cfg.Enabled() {
		return nil, ErrMissingAPIKey
	}
	return &Sender{
		client: resend.NewClient(cfg.APIKey),
		from:   mailer.Address(cfg.FromName, cfg.FromEmail),
	}, nil
}

func (s *Sender) Send(ctx context.Context, email *mailer.Email) error {
	req := &resend.SendEmailRequest{
		From:    s.from,
		To:      email.To,
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
		ReplyTo: email.ReplyTo,
		Headers: email.Headers,
	}
	if email.From != "" {
		req.From = email.From
	}
	for _, a := range email.Attachments {
		req.Attachments = append(req.Attachments, &resend.Attachment{
			Filename:    a.Filename,
			Content:     a.Content,
			ContentType: a.ContentType,
		})
	}
	for name, value := range email.Tags {
		req.Tags = append(req.Tags, resend.Tag{Name: name, Value: value})
	}

	if _, err := s.client.Emails.SendWithContext(ctx, req); err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}
