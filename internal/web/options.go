package web

import (
	"log/slog"
	"net/http"

	"github.com/nmi-agro/fdm/pkg/cookie"
	"github.com/nmi-agro/fdm/pkg/health"
	"github.com/nmi-agro/fdm/pkg/job"
	"github.com/nmi-agro/fdm/pkg/storage"
)

// Option configures an App.
type Option func(*App)

// WithLogger sets the application logger. Nil keeps the no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMiddleware adds global middleware, applied in the order given.
func WithMiddleware(mw ...Middleware) Option {
	return func(a *App) {
		a.middlewares = append(a.middlewares, mw...)
	}
}

// WithHandlers registers handlers that declare routes.
func WithHandlers(h ...Handler) Option {
	return func(a *App) {
		a.handlers = append(a.handlers, h...)
	}
}

// WithErrorHandler sets the handler for errors returned by handlers and
// middleware.
func WithErrorHandler(h ErrorHandler) Option {
	return func(a *App) {
		a.errorHandler = h
	}
}

// WithNotFoundHandler sets the 404 handler.
func WithNotFoundHandler(h HandlerFunc) Option {
	return func(a *App) {
		a.notFound = h
	}
}

// WithMethodNotAllowedHandler sets the 405 handler.
func WithMethodNotAllowedHandler(h HandlerFunc) Option {
	return func(a *App) {
		a.notAllowed = h
	}
}

// WithCookieManager replaces the default unsigned cookie manager.
func WithCookieManager(m *cookie.Manager) Option {
	return func(a *App) {
		if m != nil {
			a.cookies = m
		}
	}
}

// WithSessionManager enables Context.Session and friends.
func WithSessionManager(sm *SessionManager) Option {
	return func(a *App) {
		a.sessions = sm
	}
}

// WithJobs enables Context.Enqueue.
func WithJobs(e job.Enqueuer) Option {
	return func(a *App) {
		a.jobs = e
	}
}

// WithStorage enables Context.Storage.
func WithStorage(s storage.Storage) Option {
	return func(a *App) {
		a.storage = s
	}
}

// WithMount attaches a plain http.Handler under pattern, outside the
// Context-based handler chain but behind global middleware.
func WithMount(pattern string, h http.Handler) Option {
	return func(a *App) {
		if pattern != "" && h != nil {
			a.mounts = append(a.mounts, mount{pattern: pattern, handler: h})
		}
	}
}

type healthConfig struct {
	livenessPath  string
	readinessPath string
	checks        health.Checks
	opts          []health.Option
}

// HealthOption configures the health endpoints.
type HealthOption func(*healthConfig)

// WithLivenessPath overrides "/health/live".
func WithLivenessPath(p string) HealthOption {
	return func(c *healthConfig) {
		if p != "" {
			c.livenessPath = p
		}
	}
}

// WithReadinessPath overrides "/health/ready".
func WithReadinessPath(p string) HealthOption {
	return func(c *healthConfig) {
		if p != "" {
			c.readinessPath = p
		}
	}
}

// WithReadinessCheck adds a named check that must pass.
func WithReadinessCheck(name string, fn health.CheckFunc) HealthOption {
	return func(c *healthConfig) {
		c.checks[name] = fn
	}
}

// WithOptionalCheck adds a named check whose failure only degrades
// readiness.
func WithOptionalCheck(name string, fn health.CheckFunc) HealthOption {
	return func(c *healthConfig) {
		c.checks[name] = fn
		c.opts = append(c.opts, health.WithOptional(name))
	}
}

// WithHealthOptions passes options through to health.ReadinessHandler.
func WithHealthOptions(opts ...health.Option) HealthOption {
	return func(c *healthConfig) {
		c.opts = append(c.opts, opts...)
	}
}

// WithHealthChecks enables liveness and readiness endpoints.
func WithHealthChecks(opts ...HealthOption) Option {
	return func(a *App) {
		cfg := &healthConfig{
			livenessPath:  "/health/live",
			readinessPath: "/health/ready",
			checks:        health.Checks{},
		}
		for _, opt := range opts {
			opt(cfg)
		}
		a.health = cfg
	}
}
