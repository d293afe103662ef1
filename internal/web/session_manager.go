package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/nmi-agro/fdm/pkg/clientip"
	"github.com/nmi-agro/fdm/pkg/cookie"
	"github.com/nmi-agro/fdm/pkg/id"
	"github.com/nmi-agro/fdm/pkg/logger"
	"github.com/nmi-agro/fdm/pkg/session"
)

const (
	DefaultSessionCookie = "fdm_session"
	DefaultSessionMaxAge = 7 * 24 * time.Hour

	// touchInterval limits how often LastActiveAt is written back.
	touchInterval = 5 * time.Minute
)

// SessionManager moves session tokens between the signed cookie and the
// session store.
type SessionManager struct {
	store   session.Store
	cookies *cookie.Manager
	logger  *slog.Logger
	now     func() time.Time
	name    string
	maxAge  time.Duration
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithSessionCookieName sets the cookie name. Default "fdm_session".
func WithSessionCookieName(name string) SessionOption {
	return func(sm *SessionManager) {
		if name != "" {
			sm.name = name
		}
	}
}

// WithSessionMaxAge sets cookie and session lifetime. Default one week.
func WithSessionMaxAge(d time.Duration) SessionOption {
	return func(sm *SessionManager) {
		if d > 0 {
			sm.maxAge = d
		}
	}
}

// WithSessionClock replaces time.Now.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(sm *SessionManager) {
		if now != nil {
			sm.now = now
		}
	}
}

// WithSessionLogger sets the logger for session events.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(sm *SessionManager) {
		if l != nil {
			sm.logger = l
		}
	}
}

// NewSessionManager returns a SessionManager. cookies must carry a secret;
// session cookies are always signed.
func NewSessionManager(store session.Store, cookies *cookie.Manager, opts ...SessionOption) *SessionManager {
	sm := &SessionManager{
		store:   store,
		cookies: cookies,
		logger:  logger.NewNope(),
		now:     time.Now,
		name:    DefaultSessionCookie,
		maxAge:  DefaultSessionMaxAge,
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// CookieName returns the session cookie name.
func (sm *SessionManager) CookieName() string { return sm.name }

// Store returns the session store.
func (sm *SessionManager) Store() session.Store { return sm.store }

// LoadSession returns the session referenced by the request cookie.
// It returns nil, nil when there is no cookie. A cookie with a bad
// signature yields cookie.ErrBadSig; an unknown or expired token yields
// session.ErrNotFound or session.ErrExpired.
func (sm *SessionManager) LoadSession(ctx context.Context, r *http.Request) (*session.Session, error) {
	token, err := sm.cookies.GetSigned(r, sm.name)
	if errors.Is(err, cookie.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sess, err := sm.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.IsExpired(sm.now()) {
		return nil, session.ErrExpired
	}

	if now := sm.now(); now.Sub(sess.LastActiveAt) > touchInterval {
		if err := sm.store.Touch(ctx, sess.ID, now); err != nil {
			sm.logger.WarnContext(ctx, "touch session", slog.String("session_id", sess.ID), slog.Any("error", err))
		} else {
			sess.LastActiveAt = now
		}
	}
	return sess, nil
}

// CreateSession stores a new anonymous session for the request.
func (sm *SessionManager) CreateSession(ctx context.Context, r *http.Request) (*session.Session, error) {
	now := sm.now()
	sess := session.New(id.NewUUID(), id.NewToken(), now.Add(sm.maxAge))
	sess.CreatedAt = now
	sess.LastActiveAt = now
	sess.IP = clientip.GetIP(r)
	sess.UserAgent = r.UserAgent()

	if err := sm.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	sess.ClearNew()
	sess.ClearDirty()
	return sess, nil
}

// SaveSession writes the signed session cookie.
func (sm *SessionManager) SaveSession(w http.ResponseWriter, sess *session.Session) error {
	return sm.cookies.SetSigned(w, sm.name, sess.Token, sm.maxAge)
}

// RotateToken replaces the session token and extends its expiry.
// Called on sign-in so a token planted before authentication stops working.
func (sm *SessionManager) RotateToken(ctx context.Context, sess *session.Session) error {
	prevToken, prevExpiry := sess.Token, sess.ExpiresAt
	sess.Token = id.NewToken()
	sess.ExpiresAt = sm.now().Add(sm.maxAge)
	sess.MarkDirty()

	if err := sm.store.Update(ctx, sess); err != nil {
		sess.Token, sess.ExpiresAt = prevToken, prevExpiry
		return err
	}
	sess.ClearDirty()
	return nil
}

// DeleteSession expires the session cookie.
func (sm *SessionManager) DeleteSession(w http.ResponseWriter) {
	sm.cookies.Delete(w, sm.name)
}
