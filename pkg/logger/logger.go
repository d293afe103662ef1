package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
)

// Config controls the log level, output format and Sentry forwarding.
type Config struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`

	SentryDSN         string `env:"SENTRY_DSN"`
	SentryEnvironment string `env:"SENTRY_ENVIRONMENT" envDefault:"production"`
	SentryRelease     string `env:"SENTRY_RELEASE"`
}

// ParseLevel converts debug, info, warn or error to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("logger: unknown level %q", s)
	}
	return lvl, nil
}

// New builds a logger writing to out. The returned flush function drains
// buffered Sentry events and must be called before the process exits.
func New(cfg Config, out io.Writer, extractors ...ContextExtractor) (*slog.Logger, func()) {
	level, err := ParseLevel(cfg.Level)
	local := localHandler(cfg.Format, out, level)
	if err != nil {
		slog.New(local).Warn("falling back to info level", slog.String("error", err.Error()))
	}

	flush := func() {}
	handler := local
	if cfg.SentryDSN != "" {
		if sh, initErr := sentryHandler(cfg); initErr != nil {
			slog.New(local).Error("failed to initialize sentry", slog.String("error", initErr.Error()))
		} else {
			handler = newMultiHandler(local, sh)
			flush = func() { sentry.Flush(2 * time.Second) }
		}
	}

	return slog.New(NewLogHandlerDecorator(handler, extractors...)), flush
}

// NewNope returns a logger that discards all output.
func NewNope() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func localHandler(format string, out io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(out, opts)
	}
	return slog.NewJSONHandler(out, opts)
}

func sentryHandler(cfg Config) (slog.Handler, error) {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     cfg.SentryRelease,
		EnableLogs:  true,
	}); err != nil {
		return nil, err
	}

	return sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelError},
	}.NewSentryHandler(context.Background()), nil
}
