package core

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nmi-agro/fdm/pkg/db"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies pending schema migrations and returns the resulting
// version.
func Migrate(ctx context.Context, pool *pgxpool.Pool, table string, log *slog.Logger) (int64, error) {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return 0, err
	}
	return db.Migrate(ctx, pool, sub, table, log)
}
