package storage

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

const sniffLen = 512

// DocumentTypes are the content types accepted for lab reports.
var DocumentTypes = []string{
	"application/pdf",
	"image/png",
	"image/jpeg",
	"text/csv",
	"text/plain",
}

var extensions = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"text/csv":        ".csv",
	"text/plain":      ".txt",
}

// Ext returns the preferred file extension for a content type, or ".bin".
func Ext(contentType string) string {
	if ext, ok := extensions[baseMIME(contentType)]; ok {
		return ext
	}
	return ".bin"
}

// DetectContentType sniffs the content type of data.
func DetectContentType(data []byte) string {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	return http.DetectContentType(data)
}

func baseMIME(contentType string) string {
	contentType, _, _ = strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(contentType))
}

// Rule checks an upload before it is stored.
type Rule func(size int64, contentType string) error

// NotEmpty rejects zero-length uploads.
func NotEmpty() Rule {
	return func(size int64, _ string) error {
		if size == 0 {
			return &ValidationError{Err: ErrEmptyFile, Message: "file is empty"}
		}
		return nil
	}
}

// MaxSize rejects uploads larger than limit bytes.
func MaxSize(limit int64) Rule {
	return func(size int64, _ string) error {
		if size > limit {
			return &ValidationError{
				Err:     ErrFileTooLarge,
				Message: fmt.Sprintf("file size %d exceeds limit of %d bytes", size, limit),
			}
		}
		return nil
	}
}

// AllowedTypes accepts only the given content types. A pattern ending in
// "/*" matches a whole family.
func AllowedTypes(patterns ...string) Rule {
	return func(_ int64, contentType string) error {
		ct := baseMIME(contentType)
		for _, p := range patterns {
			p = strings.ToLower(p)
			if ct == p || (strings.HasSuffix(p, "/*") && strings.HasPrefix(ct, strings.TrimSuffix(p, "*"))) {
				return nil
			}
		}
		return &ValidationError{
			Err:     ErrInvalidMIME,
			Message: fmt.Sprintf("file type %q is not allowed", ct),
		}
	}
}

// prepare reads r into memory, resolves the content type and applies rules.
func prepare(r io.Reader, contentType string, rules []Rule) ([]byte, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("storage: read upload: %w", err)
	}
	if contentType == "" {
		contentType = DetectContentType(data)
	}
	for _, rule := range rules {
		if err := rule(int64(len(data)), contentType); err != nil {
			return nil, "", err
		}
	}
	return data, baseMIME(contentType), nil
}
