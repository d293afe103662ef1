package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/nmi-agro/fdm/internal/core"
	"github.com/nmi-agro/fdm/internal/web"
	"github.com/nmi-agro/fdm/pkg/logger"
)

// SignInPath is where unauthenticated requests are sent.
const SignInPath = "/signin"

var (
	ErrNoSession = errors.New("auth: no valid session")

	errNoCookie = errors.New("no session cookie")
)

// PrincipalLoader resolves a principal id.
type PrincipalLoader interface {
	Principal(ctx context.Context, principalID string) (*core.Principal, error)
}

type principalKey struct{}

// Resolver turns the session cookie of a request into a principal.
type Resolver struct {
	principals PrincipalLoader
	logger     *slog.Logger
}

// NewResolver returns a Resolver. A nil logger discards output.
func NewResolver(principals PrincipalLoader, log *slog.Logger) *Resolver {
	if log == nil {
		log = logger.NewNope()
	}
	return &Resolver{principals: principals, logger: log}
}

// Resolve returns the principal behind the request's session. Every
// failure is reported as ErrNoSession wrapping the cause: a missing,
// tampered, expired or anonymous session, or an unknown principal.
func (r *Resolver) Resolve(c web.Context) (*core.Principal, error) {
	if p, ok := PrincipalFrom(c); ok {
		return p, nil
	}

	sess, err := c.Session()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	if sess == nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSession, errNoCookie)
	}
	if !sess.IsAuthenticated() {
		return nil, fmt.Errorf("%w: session is anonymous", ErrNoSession)
	}

	p, err := r.principals.Principal(c, *sess.PrincipalID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	c.Set(principalKey{}, p)
	return p, nil
}

// RequireSession redirects requests without a valid session to the
// sign-in page, remembering where they were headed. An invalid cookie is
// cleared on the way. On success the principal is available through
// PrincipalFrom.
func RequireSession(r *Resolver) web.Middleware {
	return func(next web.HandlerFunc) web.HandlerFunc {
		return func(c web.Context) error {
			if _, err := r.Resolve(c); err != nil {
				r.logger.DebugContext(c, "session required", slog.Any("error", err))
				if !errors.Is(err, errNoCookie) {
					c.ClearSessionCookie()
				}
				return c.Redirect(http.StatusFound, SignInURL(c.Request().URL.RequestURI()))
			}
			return next(c)
		}
	}
}

// SignInURL is the sign-in page that returns to redirectTo afterwards.
func SignInURL(redirectTo string) string {
	if redirectTo == "" || redirectTo == "/" {
		return SignInPath
	}
	return SignInPath + "?" + url.Values{"redirectTo": {redirectTo}}.Encode()
}

// PrincipalFrom returns the principal resolved for the request.
func PrincipalFrom(ctx context.Context) (*core.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*core.Principal)
	return p, ok && p != nil
}

// MustPrincipal returns the resolved principal or ErrNoSession. Handlers
// behind RequireSession can rely on it succeeding.
func MustPrincipal(ctx context.Context) (*core.Principal, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return nil, ErrNoSession
	}
	return p, nil
}

// PrincipalExtractor adds "principal_id" to log records of authenticated
// requests.
func PrincipalExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if p, ok := PrincipalFrom(ctx); ok {
			return slog.String("principal_id", p.ID), true
		}
		return slog.Attr{}, false
	}
}
