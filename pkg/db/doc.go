// Package db provides PostgreSQL helpers on top of pgxpool.
//
// [Connect] opens a pool from [Config] (loaded from DATABASE_* variables)
// with startup retries. [Migrate] applies embedded goose migrations,
// [WithTx] wraps a function in a transaction, and [Healthcheck] and
// [Shutdown] plug the pool into readiness probes and shutdown hooks.
//
//	//go:embed migrations/*.sql
//	var migrations embed.FS
//
//	pool, err := db.Connect(ctx, cfg.Database)
//	sub, _ := fs.Sub(migrations, "migrations")
//	version, err := db.Migrate(ctx, pool, sub, cfg.Database.MigrationsTable, log)
//
// Errors are joined with the sentinel values below so callers can use errors.Is:
//
//   - [ErrFailedToParseDBConfig]
//   - [ErrFailedToOpenDBConnection]
//   - [ErrHealthcheckFailed]
//   - [ErrSetDialect]
//   - [ErrApplyMigrations]
package db
