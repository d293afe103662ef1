package middlewares_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmi-agro/fdm/internal/web"
	"github.com/nmi-agro/fdm/middlewares"
	"github.com/nmi-agro/fdm/pkg/logger"
	"github.com/nmi-agro/fdm/pkg/ratelimit"
)

type routes func(r web.Router)

func (f routes) Routes(r web.Router) { f(r) }

// newApp serves h at GET and POST "/" behind mw and records the error
// that reached the error handler.
func newApp(h web.HandlerFunc, got *error, mw ...web.Middleware) *web.App {
	return web.New(
		web.WithMiddleware(mw...),
		web.WithErrorHandler(func(c web.Context, err error) error {
			if got != nil {
				*got = err
			}
			return c.String(http.StatusInternalServerError, "error")
		}),
		web.WithHandlers(routes(func(r web.Router) {
			r.GET("/", h)
			r.POST("/", h)
		})),
	)
}

func ok(c web.Context) error { return c.String(http.StatusOK, "ok") }

func do(app http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, r)
	return rec
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	var seen string
	h := func(c web.Context) error {
		seen = middlewares.GetRequestID(c)
		return ok(c)
	}

	t.Run("generated", func(t *testing.T) {
		app := newApp(h, nil, middlewares.RequestID(middlewares.WithRequestIDGenerator(func() string { return "gen-1" })))
		rec := do(app, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, "gen-1", rec.Header().Get("X-Request-ID"))
		assert.Equal(t, "gen-1", seen)
	})

	t.Run("upstream header wins", func(t *testing.T) {
		app := newApp(h, nil, middlewares.RequestID())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Correlation-ID", "upstream")
		rec := do(app, req)
		assert.Equal(t, "upstream", rec.Header().Get("X-Request-ID"))
	})

	t.Run("oversized header is replaced", func(t *testing.T) {
		app := newApp(h, nil, middlewares.RequestID())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", strings.Repeat("x", 500))
		rec := do(app, req)
		assert.Len(t, rec.Header().Get("X-Request-ID"), 16)
	})

	t.Run("extractor", func(t *testing.T) {
		var buf bytes.Buffer
		log, _ := logger.New(logger.Config{Level: "debug", Format: "json"}, &buf, middlewares.RequestIDExtractor())

		app := web.New(
			web.WithLogger(log),
			web.WithMiddleware(middlewares.RequestID(middlewares.WithRequestIDGenerator(func() string { return "rid-9" }))),
			web.WithHandlers(routes(func(r web.Router) {
				r.GET("/", func(c web.Context) error {
					c.Logger().InfoContext(c, "hello")
					return ok(c)
				})
			})),
		)
		do(app, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Contains(t, buf.String(), `"request_id":"rid-9"`)
	})
}

func TestRecover(t *testing.T) {
	t.Parallel()

	var got error
	app := newApp(func(web.Context) error { panic("boom") }, &got, middlewares.Recover())

	rec := do(app, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	pe, isPanic := middlewares.AsPanicError(got)
	require.True(t, isPanic)
	assert.Equal(t, "boom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
}

func TestRecover_WithoutStack(t *testing.T) {
	t.Parallel()

	var got error
	app := newApp(func(web.Context) error { panic(errors.New("x")) }, &got, middlewares.Recover(middlewares.WithoutRecoverStack()))
	do(app, httptest.NewRequest(http.MethodGet, "/", nil))

	pe, isPanic := middlewares.AsPanicError(got)
	require.True(t, isPanic)
	assert.Nil(t, pe.Stack)
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	t.Run("deadline exceeded", func(t *testing.T) {
		t.Parallel()

		var got error
		slow := func(c web.Context) error {
			<-c.Done()
			return c.Err()
		}
		app := newApp(slow, &got, middlewares.Timeout(20*time.Millisecond))
		do(app, httptest.NewRequest(http.MethodGet, "/", nil))

		te, isTimeout := middlewares.AsTimeoutError(got)
		require.True(t, isTimeout)
		assert.Equal(t, 20*time.Millisecond, te.Duration)
		require.ErrorIs(t, got, context.DeadlineExceeded)
	})

	t.Run("fast handler", func(t *testing.T) {
		t.Parallel()

		var got error
		app := newApp(ok, &got, middlewares.Timeout(time.Second))
		rec := do(app, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NoError(t, got)
	})
}

func TestLogging(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	app := web.New(
		web.WithLogger(log),
		web.WithMiddleware(middlewares.Logging("/health/live")),
		web.WithHandlers(routes(func(r web.Router) {
			r.GET("/ok", ok)
			r.GET("/missing", func(web.Context) error { return web.ErrNotFound("farm not found") })
			r.GET("/health/live", ok)
		})),
	)

	do(app, httptest.NewRequest(http.MethodGet, "/ok", nil))
	do(app, httptest.NewRequest(http.MethodGet, "/missing", nil))
	do(app, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	out := buf.String()
	assert.Contains(t, out, `"path":"/ok"`)
	assert.Contains(t, out, `"status":404`)
	assert.Contains(t, out, `"level":"WARN"`)
	assert.NotContains(t, out, "/health/live")
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	t.Run("rejects over budget", func(t *testing.T) {
		t.Parallel()

		l := ratelimit.New(ratelimit.Config{RPS: 1, Burst: 2})
		var got error
		app := newApp(ok, &got, middlewares.RateLimit(l, nil))

		req := func() *http.Request {
			r := httptest.NewRequest(http.MethodPost, "/", nil)
			r.RemoteAddr = "198.51.100.4:5000"
			return r
		}
		assert.Equal(t, http.StatusOK, do(app, req()).Code)
		assert.Equal(t, http.StatusOK, do(app, req()).Code)

		rec := do(app, req())
		_, limited := middlewares.AsRateLimitError(got)
		require.True(t, limited)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))

		other := httptest.NewRequest(http.MethodPost, "/", nil)
		other.RemoteAddr = "198.51.100.5:5000"
		assert.Equal(t, http.StatusOK, do(app, other).Code)
	})

	t.Run("nil limiter", func(t *testing.T) {
		t.Parallel()

		app := newApp(ok, nil, middlewares.RateLimit(nil, nil))
		for range 5 {
			assert.Equal(t, http.StatusOK, do(app, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
		}
	})
}

func TestCORS(t *testing.T) {
	t.Parallel()

	app := web.New(
		web.WithMiddleware(middlewares.CORS(middlewares.WithAllowOrigins("https://fdm.nmi-agro.nl"))),
		web.WithHandlers(routes(func(r web.Router) {
			r.GET("/", ok)
		})),
	)

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://fdm.nmi-agro.nl")
		rec := do(app, req)
		assert.Equal(t, "https://fdm.nmi-agro.nl", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("other origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.test")
		rec := do(app, req)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", "https://fdm.nmi-agro.nl")
		rec := do(app, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	})
}
