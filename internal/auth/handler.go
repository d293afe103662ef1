package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/nmi-agro/fdm/internal/core"
	"github.com/nmi-agro/fdm/internal/web"
	"github.com/nmi-agro/fdm/middlewares"
	"github.com/nmi-agro/fdm/pkg/id"
	"github.com/nmi-agro/fdm/pkg/logger"
	"github.com/nmi-agro/fdm/pkg/oauth"
	"github.com/nmi-agro/fdm/pkg/ratelimit"
)

const (
	// SendMagicLinkTask is the job that mails a sign-in link.
	SendMagicLinkTask = "send_magic_link"

	MagicLinkTTL = 15 * time.Minute

	oauthStateCookie = "fdm_oauth"
	oauthStateTTL    = 10 * time.Minute
)

// MagicLinkPayload is the job payload of SendMagicLinkTask.
type MagicLinkPayload struct {
	Email     string    `json:"email"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Accounts is the part of core.Service sign-in needs.
type Accounts interface {
	PrincipalLoader
	SignIn(ctx context.Context, id core.Identity) (*core.Principal, error)
	StartVerification(ctx context.Context, email, tokenHash, redirectTo string, ttl time.Duration) error
	CompleteVerification(ctx context.Context, tokenHash string) (*core.Principal, *core.Verification, error)
}

// Handler serves sign-in, sign-out and the current principal.
type Handler struct {
	accounts  Accounts
	resolver  *Resolver
	providers oauth.Registry
	baseURL   string
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
	now       func() time.Time
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithProviders enables OAuth sign-in for the given providers.
func WithProviders(providers ...oauth.Provider) HandlerOption {
	return func(h *Handler) {
		for _, p := range providers {
			h.providers.Register(p)
		}
	}
}

// WithMagicLinkLimiter throttles magic-link requests per client IP.
func WithMagicLinkLimiter(l *ratelimit.Limiter) HandlerOption {
	return func(h *Handler) { h.limiter = l }
}

func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler returns the sign-in handler. baseURL is the absolute origin
// used in magic links.
func NewHandler(accounts Accounts, resolver *Resolver, baseURL string, opts ...HandlerOption) *Handler {
	h := &Handler{
		accounts:  accounts,
		resolver:  resolver,
		providers: oauth.Registry{},
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    logger.NewNope(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Routes(r web.Router) {
	r.GET("/signin", h.signInPage)
	r.POST("/signin/magic-link", h.requestMagicLink, middlewares.RateLimit(h.limiter, middlewares.ByClientIP))
	r.GET("/signin/magic-link/verify", h.verifyMagicLink)
	r.GET("/signin/{provider}", h.startOAuth)
	r.GET("/signin/{provider}/callback", h.oauthCallback)
	r.POST("/signout", h.signOut)
	r.GET("/api/me", h.me)
}

// signInPage describes the available sign-in methods. Rendering is up to
// the client.
func (h *Handler) signInPage(c web.Context) error {
	names := make([]string, 0, len(h.providers))
	for name := range h.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return c.JSON(http.StatusOK, map[string]any{
		"providers":  names,
		"magic_link": true,
		"redirectTo": SafeRedirect(c.Query("redirectTo")),
		"error":      c.Query("error"),
	})
}

type oauthState struct {
	State      string `json:"state"`
	Verifier   string `json:"verifier"`
	RedirectTo string `json:"redirect_to"`
}

func (h *Handler) startOAuth(c web.Context) error {
	p, err := h.providers.Get(c.Param("provider"))
	if err != nil {
		return web.ErrNotFound("unknown sign-in provider", web.WithCause(err))
	}

	st := oauthState{
		State:      id.NewToken(),
		Verifier:   oauth2.GenerateVerifier(),
		RedirectTo: SafeRedirect(c.Query("redirectTo")),
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := c.SetCookieEncrypted(oauthStateCookie, string(raw), oauthStateTTL); err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, p.AuthCodeURL(st.State, st.Verifier))
}

func (h *Handler) oauthCallback(c web.Context) error {
	p, err := h.providers.Get(c.Param("provider"))
	if err != nil {
		return web.ErrNotFound("unknown sign-in provider", web.WithCause(err))
	}

	raw, err := c.CookieEncrypted(oauthStateCookie)
	c.DeleteCookie(oauthStateCookie)
	var st oauthState
	if err != nil || json.Unmarshal([]byte(raw), &st) != nil {
		return h.failSignIn(c, "oauth_state", err)
	}
	if subtle.ConstantTimeCompare([]byte(st.State), []byte(c.Query("state"))) != 1 {
		return h.failSignIn(c, "oauth_state", errors.New("state mismatch"))
	}
	if e := c.Query("error"); e != "" {
		return h.failSignIn(c, "oauth_denied", errors.New(e))
	}

	token, err := p.Exchange(c, c.Query("code"), st.Verifier)
	if err != nil {
		return h.failSignIn(c, "oauth_exchange", err)
	}
	info, err := p.FetchUserInfo(c, token)
	if err != nil {
		return h.failSignIn(c, "oauth_profile", err)
	}

	principal, err := h.accounts.SignIn(c, core.Identity{
		Email:          info.Email,
		Name:           info.Name,
		Image:          info.Picture,
		Provider:       p.Name(),
		ProviderUserID: info.Subject,
	})
	if err != nil {
		return err
	}
	if err := c.AuthenticateSession(principal.ID); err != nil {
		return err
	}
	h.logger.InfoContext(c, "signed in",
		slog.String("principal_id", principal.ID),
		slog.String("provider", p.Name()),
	)
	return c.Redirect(http.StatusFound, SafeRedirect(st.RedirectTo))
}

// failSignIn sends the browser back to the sign-in page with a short
// error code. Details stay in the log.
func (h *Handler) failSignIn(c web.Context, code string, cause error) error {
	h.logger.WarnContext(c, "sign-in failed", slog.String("reason", code), slog.Any("error", cause))
	return c.Redirect(http.StatusFound, SignInPath+"?"+url.Values{"error": {code}}.Encode())
}

type magicLinkRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirectTo"`
}

// requestMagicLink answers 202 for every well-formed address, so the
// response does not reveal whether an account exists.
func (h *Handler) requestMagicLink(c web.Context) error {
	var req magicLinkRequest
	if strings.HasPrefix(c.Header("Content-Type"), "application/json") {
		if err := c.BindJSON(&req); err != nil {
			return err
		}
	} else {
		req.Email, req.RedirectTo = c.Form("email"), c.Form("redirectTo")
	}

	token := id.NewToken()
	if err := h.accounts.StartVerification(c, req.Email, HashToken(token), SafeRedirect(req.RedirectTo), MagicLinkTTL); err != nil {
		return err
	}

	payload := MagicLinkPayload{
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		URL:       h.baseURL + "/signin/magic-link/verify?" + url.Values{"token": {token}}.Encode(),
		ExpiresAt: h.now().Add(MagicLinkTTL).UTC(),
	}
	if err := c.Enqueue(SendMagicLinkTask, payload); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *Handler) verifyMagicLink(c web.Context) error {
	token := c.Query("token")
	if token == "" {
		return h.failSignIn(c, "link_invalid", errors.New("missing token"))
	}

	principal, v, err := h.accounts.CompleteVerification(c, HashToken(token))
	if errors.Is(err, core.ErrNotFound) {
		return h.failSignIn(c, "link_expired", err)
	}
	if err != nil {
		return err
	}
	if err := c.AuthenticateSession(principal.ID); err != nil {
		return err
	}
	h.logger.InfoContext(c, "signed in",
		slog.String("principal_id", principal.ID),
		slog.String("provider", "magic_link"),
	)
	return c.Redirect(http.StatusFound, SafeRedirect(v.RedirectTo))
}

func (h *Handler) signOut(c web.Context) error {
	if err := c.DestroySession(); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, SignInPath)
}

func (h *Handler) me(c web.Context) error {
	p, err := h.resolver.Resolve(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// HashToken is the stored form of a magic-link token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
