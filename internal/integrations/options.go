package integrations

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/nmi-agro/fdm/internal/metrics"
	"github.com/nmi-agro/fdm/pkg/logger"
)

type options struct {
	client  *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func defaultOptions() options {
	return options{
		client: http.DefaultClient,
		logger: logger.NewNope(),
		now:    time.Now,
	}
}

// Option configures an integration client.
type Option func(*options)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.client = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records fetches and cache lookups on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
