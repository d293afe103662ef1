package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nmi-agro/fdm/pkg/cookie"
	"github.com/nmi-agro/fdm/pkg/health"
	"github.com/nmi-agro/fdm/pkg/job"
	"github.com/nmi-agro/fdm/pkg/logger"
	"github.com/nmi-agro/fdm/pkg/storage"
)

// App is the HTTP application: a chi router plus the services handlers
// reach through Context. It is immutable after New.
type App struct {
	mux          chi.Router
	logger       *slog.Logger
	cookies      *cookie.Manager
	sessions     *SessionManager
	jobs         job.Enqueuer
	storage      storage.Storage
	errorHandler ErrorHandler
	notFound     HandlerFunc
	notAllowed   HandlerFunc
	health       *healthConfig
	middlewares  []Middleware
	handlers     []Handler
	mounts       []mount
}

type mount struct {
	pattern string
	handler http.Handler
}

// New builds an App from opts.
func New(opts ...Option) *App {
	a := &App{
		mux:     chi.NewRouter(),
		logger:  logger.NewNope(),
		cookies: cookie.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.setupRoutes()
	return a
}

// ServeHTTP dispatches to the router.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger { return a.logger }

func (a *App) setupRoutes() {
	if a.notFound != nil {
		a.mux.NotFound(a.handler(a.notFound))
	}
	if a.notAllowed != nil {
		a.mux.MethodNotAllowed(a.handler(a.notAllowed))
	}

	for _, mw := range a.middlewares {
		a.mux.Use(a.adapt(mw))
	}

	if a.health != nil {
		a.mux.Get(a.health.livenessPath, health.LivenessHandler())
		a.mux.Get(a.health.readinessPath, health.ReadinessHandler(a.health.checks, a.health.opts...))
	}

	for _, m := range a.mounts {
		a.mux.Mount(m.pattern, m.handler)
	}

	r := &routerAdapter{mux: a.mux, app: a}
	for _, h := range a.handlers {
		h.Routes(r)
	}
}

// handler adapts a HandlerFunc to net/http, routing returned errors to the
// error handler.
func (a *App) handler(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := newContext(w, r, a)
		if err := h(c); err != nil {
			a.handleError(c, withCause(c, err))
		}
	}
}

// withCause joins the cancellation cause of an expired request context,
// such as the *TimeoutError set by a deadline middleware, onto err.
func withCause(c Context, err error) error {
	if c.Err() == nil {
		return err
	}
	cause := context.Cause(c)
	if cause == nil || errors.Is(err, cause) {
		return err
	}
	return errors.Join(cause, err)
}

// adapt turns a Middleware into chi middleware. The next handler receives
// the request as modified through Context.Set.
func (a *App) adapt(mw Middleware) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := newContext(w, r, a)
			h := mw(func(c Context) error {
				next.ServeHTTP(c.Response(), c.Request())
				return nil
			})
			if err := h(c); err != nil {
				a.handleError(c, withCause(c, err))
			}
		})
	}
}

func (a *App) handleError(c Context, err error) {
	if c.Written() {
		a.logger.WarnContext(c, "error after response was written", slog.Any("error", err))
		return
	}
	if a.errorHandler != nil {
		if herr := a.errorHandler(c, err); herr != nil {
			a.logger.ErrorContext(c, "error handler failed", slog.Any("error", herr))
		}
		return
	}
	if he := AsHTTPError(err); he != nil {
		http.Error(c.Response(), he.Message, he.Code)
		return
	}
	a.logger.ErrorContext(c, "unhandled error", slog.Any("error", err))
	http.Error(c.Response(), http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
