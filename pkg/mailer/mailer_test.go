package mailer_test

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmi-agro/fdm/pkg/logger"
	"github.com/nmi-agro/fdm/pkg/mailer"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"layouts/base.html": {Data: []byte(`<html><body>{{.Content}}</body></html>`)},
		"magic_link.md": {Data: []byte(`---
Subject: Sign in to {{.App}}
---
Hello,

[!button|Sign in]({{.URL}})
`)},
		"plain.md": {Data: []byte("No frontmatter for **{{.Name}}**\n")},
	}
}

type captureSender struct {
	sent []*mailer.Email
	err  error
}

func (c *captureSender) Send(_ context.Context, e *mailer.Email) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, e)
	return nil
}

func TestMailer_Send(t *testing.T) {
	t.Parallel()

	t.Run("subject from frontmatter", func(t *testing.T) {
		t.Parallel()

		s := &captureSender{}
		m := mailer.New(s, mailer.NewRenderer(testFS()), mailer.Config{})

		err := m.Send(context.Background(), mailer.Message{
			To:       "grower@example.com",
			Template: "magic_link.md",
			Data:     map[string]string{"App": "FDM", "URL": "https://fdm.test/verify?token=abc&x=1"},
		})
		require.NoError(t, err)
		require.Len(t, s.sent, 1)

		e := s.sent[0]
		assert.Equal(t, []string{"grower@example.com"}, e.To)
		assert.Equal(t, "Sign in to FDM", e.Subject)
		assert.Contains(t, e.HTML, `<a class="button" href="https://fdm.test/verify?token=abc&amp;x=1">Sign in</a>`)
		assert.Contains(t, e.Text, "[!button|Sign in](https://fdm.test/verify?token=abc&x=1)")
	})

	t.Run("fallback subject", func(t *testing.T) {
		t.Parallel()

		s := &captureSender{}
		m := mailer.New(s, mailer.NewRenderer(testFS()), mailer.Config{FallbackSubject: "Notice"})

		err := m.Send(context.Background(), mailer.Message{
			To:       "grower@example.com",
			Template: "plain.md",
			Data:     map[string]string{"Name": "Jan"},
		})
		require.NoError(t, err)
		assert.Equal(t, "Notice", s.sent[0].Subject)
		assert.Contains(t, s.sent[0].HTML, "<strong>Jan</strong>")
	})

	t.Run("explicit subject wins", func(t *testing.T) {
		t.Parallel()

		s := &captureSender{}
		m := mailer.New(s, mailer.NewRenderer(testFS()), mailer.Config{})

		err := m.Send(context.Background(), mailer.Message{
			To:       "grower@example.com",
			Template: "magic_link.md",
			Subject:  "Override",
		})
		require.NoError(t, err)
		assert.Equal(t, "Override", s.sent[0].Subject)
	})

	t.Run("no recipient", func(t *testing.T) {
		t.Parallel()

		m := mailer.New(&captureSender{}, mailer.NewRenderer(testFS()), mailer.Config{})
		err := m.Send(context.Background(), mailer.Message{Template: "plain.md"})
		require.ErrorIs(t, err, mailer.ErrNoRecipient)
	})

	t.Run("unknown template", func(t *testing.T) {
		t.Parallel()

		m := mailer.New(&captureSender{}, mailer.NewRenderer(testFS()), mailer.Config{})
		err := m.Send(context.Background(), mailer.Message{To: "a@example.com", Template: "missing.md"})
		require.ErrorIs(t, err, mailer.ErrTemplateNotFound)
	})

	t.Run("unknown layout", func(t *testing.T) {
		t.Parallel()

		m := mailer.New(&captureSender{}, mailer.NewRenderer(testFS()), mailer.Config{})
		err := m.Send(context.Background(), mailer.Message{To: "a@example.com", Template: "plain.md", Layout: "nope.html"})
		require.ErrorIs(t, err, mailer.ErrLayoutNotFound)
	})

	t.Run("sender error", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		m := mailer.New(&captureSender{err: boom}, mailer.NewRenderer(testFS()), mailer.Config{})
		err := m.Send(context.Background(), mailer.Message{To: "a@example.com", Template: "plain.md"})
		require.ErrorIs(t, err, mailer.ErrSendFailed)
		require.ErrorIs(t, err, boom)
	})
}

func TestEmail_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		email mailer.Email
		want  error
	}{
		{"valid", mailer.Email{To: []string{"a@example.com"}, Subject: "s", Text: "t"}, nil},
		{"named address", mailer.Email{To: []string{"Jan <a@example.com>"}, Subject: "s", HTML: "h"}, nil},
		{"no recipient", mailer.Email{Subject: "s", HTML: "h"}, mailer.ErrNoRecipient},
		{"bad address", mailer.Email{To: []string{"not-an-address"}, Subject: "s", HTML: "h"}, mailer.ErrNoRecipient},
		{"no subject", mailer.Email{To: []string{"a@example.com"}, HTML: "h"}, mailer.ErrNoSubject},
		{"no content", mailer.Email{To: []string{"a@example.com"}, Subject: "s"}, mailer.ErrNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.email.Validate()
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAddress(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a@example.com", mailer.Address("", "a@example.com"))
	assert.Equal(t, `"FDM" <a@example.com>`, mailer.Address("FDM", "a@example.com"))
}

func TestLogSender(t *testing.T) {
	t.Parallel()

	s := mailer.NewLogSender(logger.NewNope())
	require.NoError(t, s.Send(context.Background(), &mailer.Email{To: []string{"a@example.com"}}))
}
