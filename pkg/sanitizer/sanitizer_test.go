package sanitizer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nmi-agro/fdm/pkg/sanitizer"
)

func TestStripHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"script", `<p>Hello</p><script>alert('xss')</script>`, "Hello"},
		{"nested tags", `<p>Hello <strong>world</strong></p>`, "Hello world"},
		{"event handler", `<img src="x" onerror="alert(1)">`, ""},
		{"javascript url", `<a href="javascript:alert(1)">click</a>`, "click"},
		{"entities unescaped", `Boer &amp; Zn`, "Boer & Zn"},
		{"plain text", "Perceel 1", "Perceel 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, sanitizer.StripHTML(tt.input))
		})
	}
}

func TestName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"collapses whitespace", "  De   Hoeve\t\n Noord ", 0, "De Hoeve Noord"},
		{"strips markup", "<b>Akker</b> 3", 0, "Akker 3"},
		{"nfc", "Cafe\u0301", 0, "Caf\u00e9"},
		{"control characters", "Veld\x07 A", 0, "Veld A"},
		{"truncates runes", "Ëénmaal perceel", 6, "Ëénmaa"},
		{"trims after cut", "ab cd", 3, "ab"},
		{"empty", "   ", 10, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, sanitizer.Name(tt.input, tt.max))
		})
	}
}

func TestText(t *testing.T) {
	t.Parallel()

	in := "\r\n<p>Line one  </p>\r\n\r\n\r\nLine\ttwo\x01\n\n"
	assert.Equal(t, "Line one\n\nLine two", sanitizer.Text(in, 0))
	assert.Equal(t, "Line", sanitizer.Text(in, 5))
}
