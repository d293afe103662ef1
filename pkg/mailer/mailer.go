package mailer

import (
	"context"
	"errors"
	"strings"
	texttemplate "text/template"
)

// Config holds mailer defaults.
type Config struct {
	FallbackSubject string `env:"MAILER_FALLBACK_SUBJECT" envDefault:"FDM"`
	DefaultLayout   string `env:"MAILER_DEFAULT_LAYOUT" envDefault:"base.html"`
}

// Message describes a templated email.
type Message struct {
	Data     any
	To       string
	Template string

	// Subject overrides the template's frontmatter subject.
	Subject string
	// Layout overrides Config.DefaultLayout.
	Layout  string
	ReplyTo string
	Tags    map[string]string
}

// Mailer renders templates and sends them.
type Mailer struct {
	sender   Sender
	renderer *Renderer
	cfg      Config
}

// New returns a Mailer. Empty config fields fall back to package defaults.
func New(sender Sender, renderer *Renderer, cfg Config) *Mailer {
	if cfg.DefaultLayout == "" {
		cfg.DefaultLayout = "base.html"
	}
	if cfg.FallbackSubject == "" {
		cfg.FallbackSubject = "FDM"
	}
	return &Mailer{sender: sender, renderer: renderer, cfg: cfg}
}

// Send renders msg and delivers it.
// The subject comes from msg.Subject, then the template frontmatter, then
// Config.FallbackSubject, and is itself executed as a template with msg.Data.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}

	email, err := m.Build(msg)
	if err != nil {
		return err
	}
	return m.SendEmail(ctx, email)
}

// Build renders msg without sending it.
func (m *Mailer) Build(msg Message) (*Email, error) {
	layout := msg.Layout
	if layout == "" {
		layout = m.cfg.DefaultLayout
	}

	out, err := m.renderer.Render(layout, msg.Template, msg.Data)
	if err != nil {
		return nil, err
	}

	subject := msg.Subject
	if subject == "" {
		subject = out.Subject()
	}
	if subject == "" {
		subject = m.cfg.FallbackSubject
	}
	subject, err = executeSubject(subject, msg.Data)
	if err != nil {
		return nil, errors.Join(ErrRenderFailed, err)
	}

	return &Email{
		To:      []string{msg.To},
		Subject: subject,
		HTML:    out.HTML,
		Text:    out.Text,
		ReplyTo: msg.ReplyTo,
		Tags:    msg.Tags,
	}, nil
}

// SendEmail validates and delivers a prepared email.
func (m *Mailer) SendEmail(ctx context.Context, email *Email) error {
	if err := email.Validate(); err != nil {
		return err
	}
	if err := m.sender.Send(ctx, email); err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	return nil
}

func executeSubject(subject string, data any) (string, error) {
	if !strings.Contains(subject, "{{") {
		return subject, nil
	}
	tmpl, err := texttemplate.New("subject").Option("missingkey=zero").Parse(subject)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
