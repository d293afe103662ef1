package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nmi-agro/fdm/pkg/cookie"
	"github.com/nmi-agro/fdm/pkg/job"
	"github.com/nmi-agro/fdm/pkg/session"
	"github.com/nmi-agro/fdm/pkg/storage"
)

// maxJSONBody caps request bodies decoded by BindJSON.
const maxJSONBody = 1 << 20

// Context gives handlers access to the request, the response and the
// application services. It is also a context.Context bound to the request.
type Context interface {
	context.Context

	Request() *http.Request
	Response() http.ResponseWriter
	// ResponseWriter returns the wrapping writer with status tracking.
	ResponseWriter() *ResponseWriter

	// Param returns a URL path parameter, or "".
	Param(name string) string
	// Query returns a query parameter, or "".
	Query(name string) string
	// Form returns a form value, parsing the body on first access.
	Form(name string) string
	FormFile(name string) (multipart.File, *multipart.FileHeader, error)
	Header(name string) string
	SetHeader(name, value string)

	// WantsJSON reports whether the client expects a JSON response.
	WantsJSON() bool

	JSON(code int, v any) error
	String(code int, s string) error
	NoContent(code int) error
	Redirect(code int, url string) error
	// Error builds an HTTPError to be returned from the handler.
	Error(code int, message string, opts ...HTTPErrorOption) *HTTPError
	// BindJSON decodes the request body into v. Unknown fields are rejected.
	BindJSON(v any) error
	Written() bool

	Logger() *slog.Logger

	// Set stores a request-scoped value; Get and Value read it back.
	Set(key, value any)
	Get(key any) any
	// SetContext replaces the request context, e.g. to add a deadline.
	SetContext(ctx context.Context)

	Cookie(name string) (string, error)
	SetCookie(name, value string, maxAge time.Duration)
	DeleteCookie(name string)
	CookieSigned(name string) (string, error)
	SetCookieSigned(name, value string, maxAge time.Duration) error
	CookieEncrypted(name string) (string, error)
	SetCookieEncrypted(name, value string, maxAge time.Duration) error

	// Session returns the session for the request cookie, or nil when the
	// request carries none. It is loaded once per request.
	Session() (*session.Session, error)
	// AuthenticateSession binds principalID to the session, creating one
	// when needed, and rotates its token.
	AuthenticateSession(principalID string) error
	// DestroySession deletes the session and clears the cookie.
	DestroySession() error
	// ClearSessionCookie expires the cookie without touching the store.
	ClearSessionCookie()

	// Enqueue schedules a background task.
	Enqueue(name string, payload any, opts ...job.EnqueueOption) error
	// Storage returns the object store or storage.ErrNotConfigured.
	Storage() (storage.Storage, error)
}

type sessionKey struct{}

type requestContext struct {
	request  *http.Request
	response *ResponseWriter
	app      *App

	session       *session.Session
	sessionLoaded bool
	hookAttached  bool
}

func newContext(w http.ResponseWriter, r *http.Request, app *App) *requestContext {
	return &requestContext{
		request:  r,
		response: NewResponseWriter(w),
		app:      app,
	}
}

func (c *requestContext) Deadline() (time.Time, bool) { return c.request.Context().Deadline() }
func (c *requestContext) Done() <-chan struct{}       { return c.request.Context().Done() }
func (c *requestContext) Err() error                  { return c.request.Context().Err() }
func (c *requestContext) Value(key any) any           { return c.request.Context().Value(key) }

func (c *requestContext) Request() *http.Request          { return c.request }
func (c *requestContext) Response() http.ResponseWriter   { return c.response }
func (c *requestContext) ResponseWriter() *ResponseWriter { return c.response }

func (c *requestContext) Param(name string) string { return chi.URLParam(c.request, name) }
func (c *requestContext) Query(name string) string { return c.request.URL.Query().Get(name) }
func (c *requestContext) Form(name string) string  { return c.request.FormValue(name) }

func (c *requestContext) FormFile(name string) (multipart.File, *multipart.FileHeader, error) {
	return c.request.FormFile(name)
}

func (c *requestContext) Header(name string) string { return c.request.Header.Get(name) }

func (c *requestContext) SetHeader(name, value string) { c.response.Header().Set(name, value) }

func (c *requestContext) WantsJSON() bool {
	if strings.HasPrefix(c.request.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(c.request.Header.Get("Accept"), "application/json")
}

func (c *requestContext) JSON(code int, v any) error {
	c.response.Header().Set("Content-Type", "application/json; charset=utf-8")
	c.response.WriteHeader(code)
	return json.NewEncoder(c.response).Encode(v)
}

func (c *requestContext) String(code int, s string) error {
	c.response.Header().Set("Content-Type", "text/plain; charset=utf-8")
	c.response.WriteHeader(code)
	_, err := io.WriteString(c.response, s)
	return err
}

func (c *requestContext) NoContent(code int) error {
	c.response.WriteHeader(code)
	return nil
}

func (c *requestContext) Redirect(code int, url string) error {
	http.Redirect(c.response, c.request, url, code)
	return nil
}

func (c *requestContext) Error(code int, message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(code, message, opts...)
}

func (c *requestContext) BindJSON(v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(c.response, c.request.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return ErrBadRequest("invalid JSON body", WithErrorCode("invalid_body"), WithCause(err))
	}
	if dec.More() {
		return ErrBadRequest("invalid JSON body", WithErrorCode("invalid_body"))
	}
	return nil
}

func (c *requestContext) Written() bool { return c.response.Written() }

func (c *requestContext) Logger() *slog.Logger { return c.app.logger }

func (c *requestContext) Set(key, value any) {
	c.request = c.request.WithContext(context.WithValue(c.request.Context(), key, value))
}

func (c *requestContext) Get(key any) any { return c.request.Context().Value(key) }

func (c *requestContext) SetContext(ctx context.Context) { c.request = c.request.WithContext(ctx) }

func (c *requestContext) Cookie(name string) (string, error) {
	return c.app.cookies.Get(c.request, name)
}

func (c *requestContext) SetCookie(name, value string, maxAge time.Duration) {
	c.app.cookies.Set(c.response, name, value, maxAge)
}

func (c *requestContext) DeleteCookie(name string) { c.app.cookies.Delete(c.response, name) }

func (c *requestContext) CookieSigned(name string) (string, error) {
	return c.app.cookies.GetSigned(c.request, name)
}

func (c *requestContext) SetCookieSigned(name, value string, maxAge time.Duration) error {
	return c.app.cookies.SetSigned(c.response, name, value, maxAge)
}

func (c *requestContext) CookieEncrypted(name string) (string, error) {
	return c.app.cookies.GetEncrypted(c.request, name)
}

func (c *requestContext) SetCookieEncrypted(name, value string, maxAge time.Duration) error {
	return c.app.cookies.SetEncrypted(c.response, name, value, maxAge)
}

// attachSessionHook persists a dirty session right before the response
// header goes out.
func (c *requestContext) attachSessionHook() {
	if c.hookAttached {
		return
	}
	c.hookAttached = true
	c.response.OnBeforeWrite(func() {
		if c.session == nil || !c.session.IsDirty() {
			return
		}
		if err := c.app.sessions.Store().Update(c.request.Context(), c.session); err != nil {
			c.app.logger.ErrorContext(c.request.Context(), "save session", slog.Any("error", err))
			return
		}
		c.session.ClearDirty()
	})
}

func (c *requestContext) Session() (*session.Session, error) {
	if c.app.sessions == nil {
		return nil, session.ErrNotConfigured
	}
	if c.sessionLoaded {
		return c.session, nil
	}
	c.attachSessionHook()

	// A middleware earlier in the chain may have loaded it already.
	if sess, ok := c.Get(sessionKey{}).(*session.Session); ok {
		c.session, c.sessionLoaded = sess, true
		return sess, nil
	}

	sess, err := c.app.sessions.LoadSession(c.request.Context(), c.request)
	if err != nil {
		return nil, err
	}
	c.session = sess
	c.sessionLoaded = true
	if sess != nil {
		c.Set(sessionKey{}, sess)
	}
	return sess, nil
}

func (c *requestContext) AuthenticateSession(principalID string) error {
	sm := c.app.sessions
	if sm == nil {
		return session.ErrNotConfigured
	}

	sess, err := c.Session()
	if err != nil && !isStaleSession(err) {
		return err
	}
	if sess == nil {
		if sess, err = sm.CreateSession(c.request.Context(), c.request); err != nil {
			return err
		}
		c.session = sess
		c.sessionLoaded = true
		c.attachSessionHook()
	}

	sess.Authenticate(principalID)
	if err := sm.RotateToken(c.request.Context(), sess); err != nil {
		return fmt.Errorf("rotate session token: %w", err)
	}
	return sm.SaveSession(c.response, sess)
}

func (c *requestContext) DestroySession() error {
	sm := c.app.sessions
	if sm == nil {
		return session.ErrNotConfigured
	}

	sess, err := c.Session()
	if err != nil && !isStaleSession(err) {
		return err
	}
	if sess != nil {
		if err := sm.Store().Delete(c.request.Context(), sess.ID); err != nil {
			return err
		}
	}
	sm.DeleteSession(c.response)
	c.session = nil
	c.sessionLoaded = true
	return nil
}

func (c *requestContext) ClearSessionCookie() {
	if c.app.sessions != nil {
		c.app.sessions.DeleteSession(c.response)
	}
}

func (c *requestContext) Enqueue(name string, payload any, opts ...job.EnqueueOption) error {
	if c.app.jobs == nil {
		return job.ErrNotConfigured
	}
	return c.app.jobs.Enqueue(c.request.Context(), name, payload, opts...)
}

func (c *requestContext) Storage() (storage.Storage, error) {
	if c.app.storage == nil {
		return nil, storage.ErrNotConfigured
	}
	return c.app.storage, nil
}

// isStaleSession reports errors that mean "the cookie points nowhere".
// A fresh session may replace such a cookie.
func isStaleSession(err error) bool {
	return errors.Is(err, session.ErrNotFound) ||
		errors.Is(err, session.ErrExpired) ||
		errors.Is(err, cookie.ErrBadSig)
}
