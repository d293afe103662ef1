// Package mailer renders markdown email templates and hands the result to a
// delivery provider.
//
// A template is a markdown file with optional YAML frontmatter. The body is a
// text/template executed with the message data; the result becomes the plain
// text part and, after markdown conversion, the HTML part wrapped in an
// html/template layout:
//
//	---
//	Subject: Sign in to {{.AppName}}
//	---
//	Hello,
//
//	[!button|Sign in]({{.URL}})
//
// The `[!button|Label](url)` syntax renders a call-to-action link styled by
// the layout.
//
// Delivery is pluggable through Sender. The resend subpackage talks to the
// Resend API; LogSender writes messages to a slog.Logger and is used when no
// provider is configured.
//
//	m := mailer.New(sender, mailer.NewRenderer(emails.FS), mailer.Config{})
//	err := m.Send(ctx, mailer.Message{
//		To:       "grower@example.com",
//		Template: "magic_link.md",
//		Data:     map[string]any{"URL": link},
//	})
package mailer
