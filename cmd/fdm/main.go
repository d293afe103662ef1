// Command fdm serves the farm data API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nmi-agro/fdm/internal/auth"
	"github.com/nmi-agro/fdm/internal/catalogue"
	"github.com/nmi-agro/fdm/internal/config"
	"github.com/nmi-agro/fdm/internal/core"
	"github.com/nmi-agro/fdm/internal/handlers"
	"github.com/nmi-agro/fdm/internal/integrations"
	"github.com/nmi-agro/fdm/internal/loader"
	"github.com/nmi-agro/fdm/internal/metrics"
	"github.com/nmi-agro/fdm/internal/tasks"
	"github.com/nmi-agro/fdm/internal/web"
	"github.com/nmi-agro/fdm/middlewares"
	"github.com/nmi-agro/fdm/pkg/cache"
	"github.com/nmi-agro/fdm/pkg/cookie"
	"github.com/nmi-agro/fdm/pkg/db"
	"github.com/nmi-agro/fdm/pkg/job"
	"github.com/nmi-agro/fdm/pkg/logger"
	"github.com/nmi-agro/fdm/pkg/mailer"
	"github.com/nmi-agro/fdm/pkg/mailer/resend"
	"github.com/nmi-agro/fdm/pkg/oauth"
	"github.com/nmi-agro/fdm/pkg/ratelimit"
	"github.com/nmi-agro/fdm/pkg/redis"
	"github.com/nmi-agro/fdm/pkg/session"
	"github.com/nmi-agro/fdm/pkg/storage"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	log, flush := logger.New(cfg.Log, os.Stdout,
		middlewares.RequestIDExtractor(),
		auth.PrincipalExtractor(),
	)
	defer flush()

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("application error", slog.Any("error", err))
		flush()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	pool, err := db.Connect(ctx, cfg.DB)
	if err != nil {
		return err
	}
	if _, err := core.Migrate(ctx, pool, cfg.DB.MigrationsTable, log); err != nil {
		pool.Close()
		return err
	}
	if err := job.Migrate(ctx, pool, log); err != nil {
		pool.Close()
		return err
	}

	mt := metrics.New()
	repo := core.NewPostgresRepository(pool)
	svc := core.New(repo, core.WithLogger(log))
	cat := catalogue.New(repo, catalogue.WithLogger(log))
	sessions := session.NewPostgresStore(pool)
	resolver := auth.NewResolver(svc, log)

	health := []web.HealthOption{
		web.WithReadinessCheck("postgres", db.Healthcheck(pool)),
	}
	runOpts := []web.RunOption{
		web.Address(cfg.Address),
		web.Logger(log),
		web.ShutdownTimeout(shutdownTimeout),
	}

	soilStore, redisClient, err := soilCache(ctx, cfg.Redis)
	if err != nil {
		pool.Close()
		return err
	}
	if redisClient != nil {
		health = append(health, web.WithOptionalCheck("redis", redis.Healthcheck(redisClient)))
	}

	sender, err := mailSender(cfg.Resend, log)
	if err != nil {
		pool.Close()
		return err
	}
	mail := mailer.New(sender, mailer.NewRenderer(tasks.Templates()), cfg.Mailer)

	jobs, err := job.NewManager(pool, append(tasks.Options(tasks.Deps{
		Mailer:        mail,
		Sessions:      sessions,
		Verifications: repo,
		Catalogue:     cat,
		Logger:        log,
		Metrics:       mt,
	}), job.WithLogger(log), job.WithRunScheduledOnStart(true))...)
	if err != nil {
		pool.Close()
		return err
	}
	health = append(health, web.WithReadinessCheck("jobs", job.Healthcheck(jobs)))

	appOpts := []web.Option{
		web.WithJobs(jobs),
	}

	if cfg.Storage.Enabled() {
		s3, err := storage.NewS3(cfg.Storage)
		if err != nil {
			pool.Close()
			return err
		}
		appOpts = append(appOpts, web.WithStorage(s3))
		health = append(health, web.WithOptionalCheck("s3", s3.Healthcheck))
	} else {
		log.Info("object storage disabled, soil analysis documents are not stored")
	}

	providers, err := oauthProviders(cfg)
	if err != nil {
		pool.Close()
		return err
	}

	ahn := integrations.NewAHNIndex(cfg.AHNIndex(),
		integrations.WithLogger(log),
		integrations.WithMetrics(mt),
	)
	apiOpts := []handlers.APIOption{handlers.WithElevation(ahn)}

	soil, err := integrations.NewSoilLookup(cfg.NMIAPIURL, cfg.NMIAPIKey, soilStore,
		integrations.WithLogger(log),
		integrations.WithMetrics(mt),
	)
	switch {
	case err == nil:
		apiOpts = append(apiOpts, handlers.WithSoilLookup(soil))
	case errors.Is(err, integrations.ErrNotConfigured):
		log.Info("soil classification disabled, NMI_API_KEY is not set")
	default:
		pool.Close()
		return err
	}

	routes := []web.Handler{
		auth.NewHandler(svc, resolver, cfg.BaseURL,
			auth.WithProviders(providers...),
			auth.WithMagicLinkLimiter(ratelimit.New(cfg.MagicLink)),
			auth.WithHandlerLogger(log),
		),
		handlers.NewFarms(svc, loader.New(svc, log), resolver),
		handlers.NewAPI(cat, resolver, apiOpts...),
	}

	ingest, err := integrations.NewIngestProxy(cfg.PostHogHost, ratelimit.New(cfg.Ingest),
		integrations.WithLogger(log),
	)
	switch {
	case err == nil:
		routes = append(routes, ingest)
	case errors.Is(err, integrations.ErrNotConfigured):
		log.Info("analytics ingestion disabled, POSTHOG_HOST is not set")
	default:
		pool.Close()
		return err
	}

	cookies := cookie.New(
		cookie.WithSecret(cfg.AuthSecret),
		cookie.WithSecure(cfg.IsProduction()),
	)

	app := web.New(append(appOpts,
		web.WithLogger(log),
		web.WithMiddleware(
			middlewares.RequestID(),
			middlewares.Recover(),
			middlewares.Logging("/health/live", "/health/ready", "/metrics"),
			mt.Middleware(),
			middlewares.Timeout(requestTimeout),
			middlewares.CORS(
				middlewares.WithAllowOrigins(strings.TrimRight(cfg.BaseURL, "/")),
				middlewares.WithAllowCredentials(),
			),
		),
		web.WithCookieManager(cookies),
		web.WithSessionManager(web.NewSessionManager(sessions, cookies, web.WithSessionLogger(log))),
		web.WithHandlers(routes...),
		web.WithErrorHandler(handlers.ErrorHandler(log)),
		web.WithNotFoundHandler(func(web.Context) error {
			return web.ErrNotFound("Not Found")
		}),
		web.WithMount("/metrics", mt.Handler()),
		web.WithHealthChecks(health...),
	)...)

	runOpts = append(runOpts,
		web.StartupHook(jobs.StartFunc()),
		web.ShutdownHook(jobs.Shutdown()),
		web.ShutdownHook(func(context.Context) error { return ahn.Close() }),
		web.ShutdownHook(func(context.Context) error { return cat.Close() }),
	)
	if redisClient != nil {
		runOpts = append(runOpts, web.ShutdownHook(redis.Shutdown(redisClient)))
	}
	runOpts = append(runOpts, web.ShutdownHook(db.Shutdown(pool)))

	return web.Run(app, runOpts...)
}

// soilCache keeps soil lookups in Redis when REDIS_URL is set and in
// process memory otherwise.
func soilCache(ctx context.Context, cfg redis.Config) (cache.Cache[integrations.SoilClassification], goredis.UniversalClient, error) {
	if !cfg.Enabled() {
		return nil, nil, nil
	}
	client, err := redis.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	c := cache.NewRedis[integrations.SoilClassification](client, nil,
		cache.WithPrefix("fdm:soil:"),
		cache.WithRedisDefaultTTL(integrations.SoilCacheTTL),
	)
	return c, client, nil
}

func mailSender(cfg resend.Config, log *slog.Logger) (mailer.Sender, error) {
	if !cfg.Enabled() {
		log.Warn("RESEND_API_KEY is not set, magic links are logged instead of sent")
		return mailer.NewLogSender(log), nil
	}
	return resend.New(cfg)
}

func oauthProviders(cfg config.Config) ([]oauth.Provider, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	callback := func(name string) string { return base + "/signin/" + name + "/callback" }

	var providers []oauth.Provider
	if cfg.Google.Enabled() {
		p, err := oauth.NewGoogleProvider(cfg.Google, callback(oauth.GoogleProviderName))
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if cfg.Microsoft.Enabled() {
		p, err := oauth.NewMicrosoftProvider(cfg.Microsoft, callback(oauth.MicrosoftProviderName))
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}
