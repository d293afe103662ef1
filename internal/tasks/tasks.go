package tasks

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"time"

	"github.com/nmi-agro/fdm/internal/auth"
	"github.com/nmi-agro/fdm/internal/catalogue"
	"github.com/nmi-agro/fdm/internal/metrics"
	"github.com/nmi-agro/fdm/pkg/job"
	"github.com/nmi-agro/fdm/pkg/logger"
	"github.com/nmi-agro/fdm/pkg/mailer"
	"github.com/nmi-agro/fdm/pkg/session"
)

const (
	CleanupSessionsTask = "cleanup_sessions"
	SyncCataloguesTask  = "sync_catalogues"

	appName = "FDM"
)

//go:embed templates
var templates embed.FS

// Templates returns the mail templates with layouts under layouts/.
func Templates() fs.FS {
	sub, err := fs.Sub(templates, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// MagicLink mails a sign-in link.
type MagicLink struct {
	mailer  *mailer.Mailer
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewMagicLink(m *mailer.Mailer, mt *metrics.Metrics) *MagicLink {
	return &MagicLink{mailer: m, metrics: mt, now: time.Now}
}

func (t *MagicLink) Name() string { return auth.SendMagicLinkTask }

// Handle sends the link unless it already expired while queued.
func (t *MagicLink) Handle(ctx context.Context, p auth.MagicLinkPayload) (err error) {
	defer func() { t.metrics.ObserveJob(t.Name(), err) }()

	remaining := p.ExpiresAt.Sub(t.now())
	if remaining <= 0 {
		return nil
	}
	return t.mailer.Send(ctx, mailer.Message{
		To:       p.Email,
		Template: "magic_link.md",
		Data: map[string]any{
			"App":      appName,
			"URL":      p.URL,
			"ValidFor": int(math.Ceil(remaining.Minutes())),
		},
	})
}

// VerificationCleaner deletes sign-in links that expired before a time.
// core.Repository implements it.
type VerificationCleaner interface {
	DeleteExpiredVerifications(ctx context.Context, before time.Time) (int64, error)
}

// CleanupSessions prunes expired sessions and sign-in links every hour.
type CleanupSessions struct {
	sessions      session.Store
	verifications VerificationCleaner
	logger        *slog.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewCleanupSessions(sessions session.Store, verifications VerificationCleaner, log *slog.Logger, mt *metrics.Metrics) *CleanupSessions {
	if log == nil {
		log = logger.NewNope()
	}
	return &CleanupSessions{
		sessions:      sessions,
		verifications: verifications,
		logger:        log,
		metrics:       mt,
		now:           time.Now,
	}
}

func (t *CleanupSessions) Name() string     { return CleanupSessionsTask }
func (t *CleanupSessions) Schedule() string { return "17 * * * *" }

func (t *CleanupSessions) Handle(ctx context.Context) (err error) {
	defer func() { t.metrics.ObserveJob(t.Name(), err) }()

	now := t.now()
	sessions, err := t.sessions.DeleteExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}
	links, err := t.verifications.DeleteExpiredVerifications(ctx, now)
	if err != nil {
		return fmt.Errorf("delete expired verifications: %w", err)
	}
	if sessions > 0 || links > 0 {
		t.logger.InfoContext(ctx, "expired sign-in state removed",
			slog.Int64("sessions", sessions),
			slog.Int64("verifications", links),
		)
	}
	return nil
}

// SyncCatalogues upserts the embedded catalogues nightly and, with
// job.WithRunScheduledOnStart, once at startup.
type SyncCatalogues struct {
	catalogue *catalogue.Service
	metrics   *metrics.Metrics
}

func NewSyncCatalogues(c *catalogue.Service, mt *metrics.Metrics) *SyncCatalogues {
	return &SyncCatalogues{catalogue: c, metrics: mt}
}

func (t *SyncCatalogues) Name() string     { return SyncCataloguesTask }
func (t *SyncCatalogues) Schedule() string { return "30 3 * * *" }

func (t *SyncCatalogues) Handle(ctx context.Context) (err error) {
	defer func() { t.metrics.ObserveJob(t.Name(), err) }()

	_, err = t.catalogue.Sync(ctx)
	return err
}

// Deps are the services the tasks run against.
type Deps struct {
	Mailer        *mailer.Mailer
	Sessions      session.Store
	Verifications VerificationCleaner
	Catalogue     *catalogue.Service
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

// Options registers every task.
func Options(d Deps) []job.Option {
	return []job.Option{
		job.WithTask[auth.MagicLinkPayload](NewMagicLink(d.Mailer, d.Metrics)),
		job.WithScheduledTask(NewCleanupSessions(d.Sessions, d.Verifications, d.Logger, d.Metrics)),
		job.WithScheduledTask(NewSyncCatalogues(d.Catalogue, d.Metrics)),
	}
}
