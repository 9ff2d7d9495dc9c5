package infra

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// Migrate applies the embedded schema migrations for the given backend.
func Migrate(ctx context.Context, db *sql.DB, backend Backend, logger zerolog.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dialect, dir := "postgres", "migrations/postgres"
	if backend == BackendSQLite {
		dialect, dir = "sqlite3", "migrations/sqlite"
	}

	goose.SetLogger(gooseLogger{logger: logger})
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("migrate %s: %w", backend, err)
	}
	return nil
}

// MigratePool runs the Postgres migrations through a database/sql handle
// borrowed from the pgx pool.
func MigratePool(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return Migrate(ctx, db, BackendPostgres, logger)
}

type gooseLogger struct {
	logger zerolog.Logger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.logger.Info().Str("component", "migrate").Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.logger.Fatal().Str("component", "migrate").Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
