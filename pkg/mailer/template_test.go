package mailer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTemplate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       string
		wantMeta map[string]any
		wantBody string
		wantErr  bool
	}{
		{
			name:     "no frontmatter",
			in:       "Hello\n",
			wantMeta: map[string]any{},
			wantBody: "Hello\n",
		},
		{
			name:     "frontmatter",
			in:       "---\nSubject: Hi\n---\nBody\n",
			wantMeta: map[string]any{"Subject": "Hi"},
			wantBody: "Body\n",
		},
		{
			name:     "crlf",
			in:       "---\r\nSubject: Hi\r\n---\r\nBody",
			wantMeta: map[string]any{"Subject": "Hi"},
			wantBody: "Body",
		},
		{
			name:     "empty frontmatter",
			in:       "---\n---\nBody",
			wantMeta: map[string]any{},
			wantBody: "Body",
		},
		{
			name:     "byte order mark",
			in:       "\ufeff---\nSubject: Hi\n---\nBody",
			wantMeta: map[string]any{"Subject": "Hi"},
			wantBody: "Body",
		},
		{name: "unclosed", in: "---\nSubject: Hi\nBody", wantErr: true},
		{name: "only fence", in: "---\n", wantErr: true},
		{name: "bad yaml", in: "---\nSubject: [unclosed\n---\nBody", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseTemplate([]byte(tt.in))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidFrontmatter)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantMeta, got.Metadata)
			require.Equal(t, tt.wantBody, got.Body)
		})
	}
}

func TestButtonExtension(t *testing.T) {
	t.Parallel()

	r := NewRenderer(nil)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"button", "[!button|Open](https://fdm.test/a)", `<a class="button" href="https://fdm.test/a">Open</a>`},
		{"escaped label", "[!button|<b>](https://fdm.test)", `<a class="button" href="https://fdm.test">&lt;b&gt;</a>`},
		{"regular link untouched", "[Open](https://fdm.test)", `<a href="https://fdm.test">Open</a>`},
		{"missing url", "[!button|Open]", "[!button|Open]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			require.NoError(t, r.md.Convert([]byte(tt.in), &out))
			require.Contains(t, out.String(), tt.want)
		})
	}
}
