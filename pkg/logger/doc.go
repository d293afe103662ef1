// Package logger builds slog loggers with request-scoped attributes and
// optional Sentry forwarding.
//
// Context extractors run on every log call, so values stored in the request
// context (request ID, principal ID, farm ID) are attached to each record
// without threading a logger through call sites:
//
//	log, flush := logger.New(cfg.Log, os.Stdout,
//		middlewares.RequestIDExtractor(),
//		auth.PrincipalExtractor(),
//	)
//	defer flush()
//
//	log.InfoContext(ctx, "farm loaded", slog.String("b_id_farm", farmID))
//
// When SENTRY_DSN is set, errors become Sentry issues and warnings are kept
// as breadcrumbs. Without a DSN only the local handler is used.
package logger
