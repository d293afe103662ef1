package web_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmi-agro/fdm/internal/web"
	"github.com/nmi-agro/fdm/pkg/cookie"
	"github.com/nmi-agro/fdm/pkg/job"
	"github.com/nmi-agro/fdm/pkg/session"
	"github.com/nmi-agro/fdm/pkg/storage"
)

type routes func(r web.Router)

func (f routes) Routes(r web.Router) { f(r) }

func serve(app http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, r)
	return rec
}

func TestApp_Routing(t *testing.T) {
	t.Parallel()

	var order []string
	mw := func(name string) web.Middleware {
		return func(next web.HandlerFunc) web.HandlerFunc {
			return func(c web.Context) error {
				order = append(order, name)
				return next(c)
			}
		}
	}

	app := web.New(
		web.WithMiddleware(mw("global")),
		web.WithHandlers(routes(func(r web.Router) {
			r.GET("/farm/{b_id_farm}", func(c web.Context) error {
				return c.String(http.StatusOK, c.Param("b_id_farm"))
			}, mw("route"))
			r.Route("/api", func(r web.Router) {
				r.Use(mw("group"))
				r.POST("/echo", func(c web.Context) error {
					var body struct {
						Name string `json:"name"`
					}
					if err := c.BindJSON(&body); err != nil {
						return err
					}
					return c.JSON(http.StatusCreated, body)
				})
			})
		})),
	)

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/farm/f1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "f1", rec.Body.String())
	assert.Equal(t, []string{"global", "route"}, order)

	order = nil
	rec = serve(app, httptest.NewRequest(http.MethodPost, "/api/echo", strings.NewReader(`{"name":"De Hoeve"}`)))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"name":"De Hoeve"}`, rec.Body.String())
	assert.Equal(t, []string{"global", "group"}, order)

	rec = serve(app, httptest.NewRequest(http.MethodPost, "/api/echo", strings.NewReader(`{"nope":1}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApp_Errors(t *testing.T) {
	t.Parallel()

	handlers := routes(func(r web.Router) {
		r.GET("/http", func(c web.Context) error {
			return web.ErrNotFound("farm not found")
		})
		r.GET("/plain", func(c web.Context) error {
			return errors.New("database exploded")
		})
		r.GET("/late", func(c web.Context) error {
			_ = c.String(http.StatusOK, "partial")
			return errors.New("too late")
		})
	})

	t.Run("default handler", func(t *testing.T) {
		t.Parallel()

		app := web.New(web.WithHandlers(handlers))

		rec := serve(app, httptest.NewRequest(http.MethodGet, "/http", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "farm not found")

		rec = serve(app, httptest.NewRequest(http.MethodGet, "/plain", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "exploded")

		rec = serve(app, httptest.NewRequest(http.MethodGet, "/late", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "partial", rec.Body.String())
	})

	t.Run("custom handler", func(t *testing.T) {
		t.Parallel()

		var got error
		app := web.New(
			web.WithHandlers(handlers),
			web.WithErrorHandler(func(c web.Context, err error) error {
				got = err
				return c.String(http.StatusTeapot, "custom")
			}),
			web.WithNotFoundHandler(func(c web.Context) error {
				return c.String(http.StatusNotFound, "nothing here")
			}),
		)

		rec := serve(app, httptest.NewRequest(http.MethodGet, "/plain", nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.EqualError(t, got, "database exploded")

		rec = serve(app, httptest.NewRequest(http.MethodGet, "/missing", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "nothing here", rec.Body.String())
	})
}

func TestApp_CancellationCause(t *testing.T) {
	t.Parallel()

	expired := errors.New("deadline passed")
	var got error
	app := web.New(
		web.WithMiddleware(func(next web.HandlerFunc) web.HandlerFunc {
			return func(c web.Context) error {
				ctx, cancel := context.WithTimeoutCause(c, time.Millisecond, expired)
				defer cancel()
				c.SetContext(ctx)
				return next(c)
			}
		}),
		web.WithErrorHandler(func(c web.Context, err error) error {
			got = err
			return c.NoContent(http.StatusGatewayTimeout)
		}),
		web.WithHandlers(routes(func(r web.Router) {
			r.GET("/slow", func(c web.Context) error {
				<-c.Done()
				return c.Err()
			})
			r.GET("/fail", func(web.Context) error { return web.ErrBadRequest("nope") })
		})),
	)

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	require.ErrorIs(t, got, expired)
	require.ErrorIs(t, got, context.DeadlineExceeded)

	serve(app, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.NotErrorIs(t, got, expired)
}

func TestApp_Sessions(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore()
	cookies := cookie.New(cookie.WithSecret(testSecret))
	sm := web.NewSessionManager(store, cookies)

	app := web.New(
		web.WithCookieManager(cookies),
		web.WithSessionManager(sm),
		web.WithHandlers(routes(func(r web.Router) {
			r.POST("/signin", func(c web.Context) error {
				if err := c.AuthenticateSession("p1"); err != nil {
					return err
				}
				return c.NoContent(http.StatusNoContent)
			})
			r.GET("/me", func(c web.Context) error {
				sess, err := c.Session()
				if err != nil {
					return err
				}
				if sess == nil || !sess.IsAuthenticated() {
					return web.ErrUnauthorized("")
				}
				sess.SetValue("seen", true)
				return c.String(http.StatusOK, *sess.PrincipalID)
			})
			r.POST("/signout", func(c web.Context) error {
				if err := c.DestroySession(); err != nil {
					return err
				}
				return c.NoContent(http.StatusNoContent)
			})
		})),
	)

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(app, httptest.NewRequest(http.MethodPost, "/signin", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, 1, store.Len())

	req := requestWith(rec, "/me")
	rec = serve(app, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "p1", rec.Body.String())

	// The dirty session was written back before the response.
	token, err := cookies.GetSigned(req, web.DefaultSessionCookie)
	require.NoError(t, err)
	stored, err := store.Get(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, true, stored.Values["seen"])

	out := httptest.NewRequest(http.MethodPost, "/signout", nil)
	for _, c := range req.Cookies() {
		out.AddCookie(c)
	}
	rec = serve(app, out)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, store.Len())
}

func TestApp_Services(t *testing.T) {
	t.Parallel()

	t.Run("not configured", func(t *testing.T) {
		t.Parallel()

		var enqueueErr, storageErr, sessionErr error
		app := web.New(web.WithHandlers(routes(func(r web.Router) {
			r.GET("/", func(c web.Context) error {
				enqueueErr = c.Enqueue("noop", nil)
				_, storageErr = c.Storage()
				_, sessionErr = c.Session()
				return c.NoContent(http.StatusOK)
			})
		})))

		serve(app, httptest.NewRequest(http.MethodGet, "/", nil))
		require.ErrorIs(t, enqueueErr, job.ErrNotConfigured)
		require.ErrorIs(t, storageErr, storage.ErrNotConfigured)
		require.ErrorIs(t, sessionErr, session.ErrNotConfigured)
	})

	t.Run("configured", func(t *testing.T) {
		t.Parallel()

		jobs := job.NewInline(job.WithTask[map[string]string](noopTask{}))
		app := web.New(
			web.WithJobs(jobs),
			web.WithStorage(storage.NewMemory("https://files.test")),
			web.WithHandlers(routes(func(r web.Router) {
				r.GET("/", func(c web.Context) error {
					if err := c.Enqueue("noop", map[string]string{"a": "b"}); err != nil {
						return err
					}
					if _, err := c.Storage(); err != nil {
						return err
					}
					return c.NoContent(http.StatusOK)
				})
			})),
		)

		rec := serve(app, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"noop"}, jobs.Executed())
	})
}

type noopTask struct{}

func (noopTask) Name() string                                    { return "noop" }
func (noopTask) Handle(context.Context, map[string]string) error { return nil }

func TestApp_Health(t *testing.T) {
	t.Parallel()

	app := web.New(web.WithHealthChecks(
		web.WithReadinessCheck("postgres", func(context.Context) error { return nil }),
		web.WithOptionalCheck("ahn", func(context.Context) error { return errors.New("down") }),
	))

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(app, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Degraded", rec.Body.String())
}

func TestHelpers(t *testing.T) {
	t.Parallel()

	type key struct{}
	var (
		year  int
		farm  string
		ok    bool
		limit int
		value string
	)
	app := web.New(web.WithHandlers(routes(func(r web.Router) {
		r.GET("/farm/{b_id_farm}/{year}", func(c web.Context) error {
			c.Set(key{}, "stored")
			value = web.ContextValue[string](c, key{})
			year = web.Param[int](c, "year")
			farm = web.Param[string](c, "b_id_farm")
			ok = web.Query[bool](c, "ok")
			limit = web.QueryDefault(c, "limit", 50)
			return c.NoContent(http.StatusOK)
		})
	})))

	serve(app, httptest.NewRequest(http.MethodGet, "/farm/f1/2024?ok=true&limit=abc", nil))
	assert.Equal(t, 2024, year)
	assert.Equal(t, "f1", farm)
	assert.True(t, ok)
	assert.Equal(t, 50, limit)
	assert.Equal(t, "stored", value)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var stopped bool

	done := make(chan error, 1)
	go func() {
		done <- web.Run(web.New(),
			web.Address("127.0.0.1:0"),
			web.WithContext(ctx),
			web.ShutdownTimeout(time.Second),
			web.ShutdownHook(func(context.Context) error {
				stopped = true
				return nil
			}),
		)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.True(t, stopped)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
