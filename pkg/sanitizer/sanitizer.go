// Package sanitizer cleans user supplied text before it is stored.
//
// All functions strip markup, normalize to Unicode NFC and drop control
// characters. Names are collapsed to a single line; free text keeps line
// breaks.
package sanitizer

import (
	"html"
	"strings"
	"sync"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var strict = sync.OnceValue(bluemonday.StrictPolicy)

// StripHTML removes every tag and returns the unescaped text content.
func StripHTML(s string) string {
	return html.UnescapeString(strict().Sanitize(s))
}

// Name cleans a single-line label such as a farm or field name.
// Whitespace runs collapse to one space and the result is cut to maxRunes
// (no limit when maxRunes <= 0).
func Name(s string, maxRunes int) string {
	s = norm.NFC.String(StripHTML(s))
	s = strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}), " ")
	return truncate(s, maxRunes)
}

// Text cleans multi-line free text such as notes. Line endings are
// normalized to \n, trailing spaces are trimmed from each line and runs of
// more than one blank line are reduced to one.
func Text(s string, maxRunes int) string {
	s = norm.NFC.String(StripHTML(s))
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRightFunc(strings.Map(dropControl, line), unicode.IsSpace)
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return truncate(strings.TrimSpace(strings.Join(out, "\n")), maxRunes)
}

func dropControl(r rune) rune {
	if r == '\t' {
		return ' '
	}
	if unicode.IsControl(r) {
		return -1
	}
	return r
}

func truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return strings.TrimRightFunc(s[:i], unicode.IsSpace)
		}
		n++
	}
	return s
}
