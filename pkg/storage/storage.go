package storage

import (
	"context"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Storage stores opaque objects under string keys.
type Storage interface {
	// Put uploads r under key. An empty contentType is detected from the
	// content. The returned Object carries the stored size and type.
	Put(ctx context.Context, key string, r io.Reader, contentType string, rules ...Rule) (*Object, error)

	// Get opens the object. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns a time-limited download link. A non-empty filename sets
	// an attachment Content-Disposition.
	URL(ctx context.Context, key, filename string, expiry time.Duration) (string, error)
}

// Object describes a stored file.
type Object struct {
	Key         string
	ContentType string
	Size        int64
}

// DefaultURLExpiry is used when URL is called with a non-positive expiry.
const DefaultURLExpiry = 15 * time.Minute

// Config holds S3 settings. Storage is disabled when Bucket is empty.
type Config struct {
	Bucket    string `env:"S3_BUCKET"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
	Endpoint  string `env:"S3_ENDPOINT"`
	Region    string `env:"S3_REGION" envDefault:"eu-west-1"`
	PathStyle bool   `env:"S3_PATH_STYLE" envDefault:"false"`
}

// Enabled reports whether a bucket is configured.
func (c Config) Enabled() bool { return c.Bucket != "" }

var unsafeSegment = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// Key joins sanitized path segments into an object key. Segments that
// sanitize to nothing are skipped; if none remain the key is "".
func Key(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.ReplaceAll(s, "..", "")
		s = strings.Trim(s, " /\\")
		s = unsafeSegment.ReplaceAllString(s, "_")
		if s == "" || s == "." {
			continue
		}
		parts = append(parts, url.PathEscape(s))
	}
	return strings.Join(parts, "/")
}
