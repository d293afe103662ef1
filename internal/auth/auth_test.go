package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/nmi-agro/fdm/internal/auth"
	"github.com/nmi-agro/fdm/internal/core"
	"github.com/nmi-agro/fdm/internal/core/coretest"
	"github.com/nmi-agro/fdm/internal/web"
	"github.com/nmi-agro/fdm/pkg/cookie"
	"github.com/nmi-agro/fdm/pkg/job"
	"github.com/nmi-agro/fdm/pkg/oauth"
	"github.com/nmi-agro/fdm/pkg/session"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type routes func(r web.Router)

func (f routes) Routes(r web.Router) { f(r) }

// mailbox captures magic links instead of sending them.
type mailbox struct {
	mu    sync.Mutex
	links []auth.MagicLinkPayload
}

func (m *mailbox) Name() string { return auth.SendMagicLinkTask }

func (m *mailbox) Handle(_ context.Context, p auth.MagicLinkPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, p)
	return nil
}

func (m *mailbox) last(t *testing.T) auth.MagicLinkPayload {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.links)
	return m.links[len(m.links)-1]
}

type fakeProvider struct{}

func (fakeProvider) Name() string { return "google" }

func (fakeProvider) AuthCodeURL(state, verifier string) string {
	return "https://idp.test/auth?" + url.Values{"state": {state}, "verifier": {verifier}}.Encode()
}

func (fakeProvider) Exchange(_ context.Context, code, verifier string) (*oauth2.Token, error) {
	if code != "good" || verifier == "" {
		return nil, errors.New("bad code")
	}
	return &oauth2.Token{AccessToken: "at"}, nil
}

func (fakeProvider) FetchUserInfo(context.Context, *oauth2.Token) (*oauth.UserInfo, error) {
	return &oauth.UserInfo{Provider: "google", Subject: "g-42", Email: "Grower@Example.com", Name: "Grower"}, nil
}

// browser keeps cookies between requests.
type browser struct {
	t       *testing.T
	app     http.Handler
	cookies map[string]*http.Cookie
}

func (b *browser) do(r *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	for _, c := range b.cookies {
		r.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	b.app.ServeHTTP(rec, r)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *browser) get(target string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (b *browser) postForm(target string, form url.Values) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(r)
}

type env struct {
	app  *web.App
	mail *mailbox
	repo *coretest.Repository
}

func newEnv(t *testing.T) *env {
	t.Helper()

	repo := coretest.New()
	svc := core.New(repo)
	cookies := cookie.New(cookie.WithSecret(testSecret))
	sessions := web.NewSessionManager(session.NewMemoryStore(), cookies)
	mail := &mailbox{}

	resolver := auth.NewResolver(svc, nil)
	handler := auth.NewHandler(svc, resolver, "https://fdm.test/",
		auth.WithProviders(fakeProvider{}),
	)

	app := web.New(
		web.WithCookieManager(cookies),
		web.WithSessionManager(sessions),
		web.WithJobs(job.NewInline(job.WithTask[auth.MagicLinkPayload](mail))),
		web.WithHandlers(handler, routes(func(r web.Router) {
			r.Group(func(r web.Router) {
				r.Use(auth.RequireSession(resolver))
				r.GET("/farm", func(c web.Context) error {
					p, err := auth.MustPrincipal(c)
					if err != nil {
						return err
					}
					return c.String(http.StatusOK, p.Email)
				})
			})
		})),
	)
	return &env{app: app, mail: mail, repo: repo}
}

func (e *env) browser(t *testing.T) *browser {
	return &browser{t: t, app: e.app, cookies: map[string]*http.Cookie{}}
}

func TestRequireSession(t *testing.T) {
	t.Parallel()

	t.Run("no cookie redirects to sign-in", func(t *testing.T) {
		t.Parallel()
		b := newEnv(t).browser(t)

		rec := b.get("/farm?calendar=2024")
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/signin?redirectTo=%2Ffarm%3Fcalendar%3D2024", rec.Header().Get("Location"))
		assert.Empty(t, rec.Result().Cookies())
		assert.NotContains(t, rec.Body.String(), "@")
	})

	t.Run("tampered cookie is cleared", func(t *testing.T) {
		t.Parallel()
		b := newEnv(t).browser(t)

		r := httptest.NewRequest(http.MethodGet, "/farm", nil)
		r.AddCookie(&http.Cookie{Name: web.DefaultSessionCookie, Value: "forged.value"})
		rec := httptest.NewRecorder()
		b.app.ServeHTTP(rec, r)

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, auth.SignInPath+"?redirectTo=%2Ffarm", rec.Header().Get("Location"))
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, web.DefaultSessionCookie, cookies[0].Name)
		assert.Negative(t, cookies[0].MaxAge)
	})
}

func TestMagicLink(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	b := e.browser(t)

	rec := b.postForm("/signin/magic-link", url.Values{"email": {"Grower@Example.com"}, "redirectTo": {"/farm?calendar=2024"}})
	require.Equal(t, http.StatusAccepted, rec.Code)

	link := e.mail.last(t)
	assert.Equal(t, "grower@example.com", link.Email)
	require.True(t, strings.HasPrefix(link.URL, "https://fdm.test/signin/magic-link/verify?token="))

	u, err := url.Parse(link.URL)
	require.NoError(t, err)
	verify := u.RequestURI()

	rec = b.get(verify)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/farm?calendar=2024", rec.Header().Get("Location"))
	session := b.cookies[web.DefaultSessionCookie]
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, 7*24*60*60, session.MaxAge)

	rec = b.get("/farm")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "grower@example.com", rec.Body.String())

	rec = b.get("/api/me")
	require.Equal(t, http.StatusOK, rec.Code)
	var me core.Principal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "grower@example.com", me.Email)

	t.Run("link works once", func(t *testing.T) {
		rec := e.browser(t).get(verify)
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/signin?error=link_expired", rec.Header().Get("Location"))
	})

	t.Run("sign out", func(t *testing.T) {
		rec := b.do(httptest.NewRequest(http.MethodPost, "/signout", nil))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, auth.SignInPath, rec.Header().Get("Location"))
		assert.NotContains(t, b.cookies, web.DefaultSessionCookie)

		// Replaying the old cookie does not bring the session back.
		b.cookies[web.DefaultSessionCookie] = session
		rec = b.get("/farm")
		assert.Equal(t, http.StatusFound, rec.Code)
	})
}

func TestMagicLink_JSONAndValidation(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	b := e.browser(t)

	r := httptest.NewRequest(http.MethodPost, "/signin/magic-link", strings.NewReader(`{"email":"a@example.com","redirectTo":"https://evil.test"}`))
	r.Header.Set("Content-Type", "application/json")
	rec := b.do(r)
	require.Equal(t, http.StatusAccepted, rec.Code)

	u, err := url.Parse(e.mail.last(t).URL)
	require.NoError(t, err)
	rec = b.get(u.RequestURI())
	assert.Equal(t, auth.DefaultRedirect, rec.Header().Get("Location"))

	e.mail.mu.Lock()
	sent := len(e.mail.links)
	e.mail.mu.Unlock()
	rec = b.postForm("/signin/magic-link", url.Values{"email": {"not an email"}})
	assert.NotEqual(t, http.StatusAccepted, rec.Code)
	assert.Len(t, e.mail.links, sent)

	rec = b.get("/signin/magic-link/verify")
	assert.Equal(t, "/signin?error=link_invalid", rec.Header().Get("Location"))
}

func TestOAuth(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		b := e.browser(t)

		rec := b.get("/signin/google?redirectTo=%2Ffarm%2Fabc")
		require.Equal(t, http.StatusFound, rec.Code)
		idp, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "idp.test", idp.Host)
		state := idp.Query().Get("state")
		require.NotEmpty(t, state)
		require.Contains(t, b.cookies, "fdm_oauth")

		rec = b.get("/signin/google/callback?" + url.Values{"state": {state}, "code": {"good"}}.Encode())
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/farm/abc", rec.Header().Get("Location"))
		assert.NotContains(t, b.cookies, "fdm_oauth")

		rec = b.get("/farm")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "grower@example.com", rec.Body.String())

		acc, err := e.repo.GetAccount(context.Background(), "google", "g-42")
		require.NoError(t, err)
		assert.NotEmpty(t, acc.PrincipalID)
	})

	t.Run("state mismatch", func(t *testing.T) {
		t.Parallel()
		b := newEnv(t).browser(t)

		rec := b.get("/signin/google")
		require.Equal(t, http.StatusFound, rec.Code)

		rec = b.get("/signin/google/callback?state=forged&code=good")
		assert.Equal(t, "/signin?error=oauth_state", rec.Header().Get("Location"))
		assert.NotContains(t, b.cookies, web.DefaultSessionCookie)
	})

	t.Run("missing state cookie", func(t *testing.T) {
		t.Parallel()
		b := newEnv(t).browser(t)

		rec := b.get("/signin/google/callback?state=x&code=good")
		assert.Equal(t, "/signin?error=oauth_state", rec.Header().Get("Location"))
	})

	t.Run("exchange failure", func(t *testing.T) {
		t.Parallel()
		b := newEnv(t).browser(t)

		rec := b.get("/signin/google")
		idp, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)

		rec = b.get("/signin/google/callback?" + url.Values{"state": {idp.Query().Get("state")}, "code": {"bad"}}.Encode())
		assert.Equal(t, "/signin?error=oauth_exchange", rec.Header().Get("Location"))
	})

	t.Run("unknown provider", func(t *testing.T) {
		t.Parallel()
		b := newEnv(t).browser(t)

		rec := b.get("/signin/myspace")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("sign-in page lists providers", func(t *testing.T) {
		t.Parallel()
		b := newEnv(t).browser(t)

		rec := b.get("/signin?redirectTo=%2F%2Fevil.test")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"providers":["google"],"magic_link":true,"redirectTo":"/farm","error":""}`, rec.Body.String())
	})
}

func TestSafeRedirect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"", "/farm"},
		{"/farm/abc/2024/field", "/farm/abc/2024/field"},
		{"/farm?calendar=all", "/farm?calendar=all"},
		{"https://evil.test/farm", "/farm"},
		{"//evil.test", "/farm"},
		{"/\\evil.test", "/farm"},
		{"farm", "/farm"},
		{"/signin?redirectTo=/x", "/farm"},
		{"/farm\r\nSet-Cookie: x", "/farm"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, auth.SafeRedirect(tt.in), tt.in)
	}
}

func TestSignInURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/signin", auth.SignInURL("/"))
	assert.Equal(t, "/signin?redirectTo=%2Ffarm%2Fx", auth.SignInURL("/farm/x"))
}
