package mailer

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

var frontmatterFence = []byte("---")

// Template is a parsed template file.
type Template struct {
	Metadata map[string]any
	Body     string
}

// ParseTemplate splits optional YAML frontmatter from the markdown body.
// Content that does not start with a fence is all body.
func ParseTemplate(content []byte) (*Template, error) {
	content = bytes.TrimPrefix(content, []byte("\ufeff"))
	if !bytes.HasPrefix(content, frontmatterFence) {
		return &Template{Metadata: map[string]any{}, Body: string(content)}, nil
	}

	rest := bytes.TrimLeft(content[len(frontmatterFence):], "\r\n")
	if len(rest) == 0 {
		return nil, fmt.Errorf("%w: empty template after opening fence", ErrInvalidFrontmatter)
	}

	end := bytes.Index(rest, frontmatterFence)
	if end < 0 {
		return nil, fmt.Errorf("%w: missing closing fence", ErrInvalidFrontmatter)
	}

	meta := map[string]any{}
	if raw := bytes.TrimSpace(rest[:end]); len(raw) > 0 {
		if err := yaml.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrontmatter, err)
		}
	}

	body := rest[end+len(frontmatterFence):]
	switch {
	case bytes.HasPrefix(body, []byte("\r\n")):
		body = body[2:]
	case bytes.HasPrefix(body, []byte("\n")):
		body = body[1:]
	}

	return &Template{Metadata: meta, Body: string(body)}, nil
}
