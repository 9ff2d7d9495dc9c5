// Package bootstrap opens the persistence backend selected by DATABASE_URL
// and assembles the queue, selector and planner on top of it.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aiakap/travel-planner-v1/internal/adapter/repo"
	"github.com/aiakap/travel-planner-v1/internal/adapter/sqlite"
	"github.com/aiakap/travel-planner-v1/internal/domain"
	"github.com/aiakap/travel-planner-v1/internal/imageprompt"
	"github.com/aiakap/travel-planner-v1/internal/imagequeue"
	"github.com/aiakap/travel-planner-v1/internal/infra"
	"github.com/aiakap/travel-planner-v1/internal/infra/credentials"
	"github.com/aiakap/travel-planner-v1/internal/planner"
)

// Backend bundles the repositories of one database.
type Backend struct {
	Kind     infra.Backend
	Jobs     domain.ImageJobRepository
	Prompts  domain.PromptTemplateRepository
	Entities domain.EntityRepository
	// Credentials is nil on SQLite, which has no integration_tokens table.
	Credentials *credentials.Store
	// Ping checks the database is reachable.
	Ping  func(ctx context.Context) error
	close func()
}

func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// Open connects to cfg.DatabaseURL and migrates it when AutoMigrate is set.
// SQLite databases are always migrated.
func Open(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*Backend, error) {
	kind, dsn, err := infra.ParseDatabaseURL(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	switch kind {
	case infra.BackendPostgres:
		return openPostgres(ctx, cfg, logger)
	case infra.BackendSQLite:
		return openSQLite(ctx, dsn, logger)
	}
	return nil, fmt.Errorf("unsupported backend %q", kind)
}

func openPostgres(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*Backend, error) {
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := infra.MigratePool(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}
	runner := infra.NewSQLRunner(pool, infra.Component(logger, "sql"))
	return &Backend{
		Kind:        infra.BackendPostgres,
		Jobs:        repo.NewJobRepository(runner),
		Prompts:     repo.NewPromptRepository(runner),
		Entities:    repo.NewEntityRepository(runner),
		Credentials: credentials.NewStore(runner),
		Ping:        pool.Ping,
		close:       pool.Close,
	}, nil
}

func openSQLite(ctx context.Context, dsn string, logger zerolog.Logger) (*Backend, error) {
	db, err := sqlite.OpenMigrated(ctx, dsn, logger)
	if err != nil {
		return nil, err
	}
	return &Backend{
		Kind:     infra.BackendSQLite,
		Jobs:     sqlite.NewJobStore(db),
		Prompts:  sqlite.NewPromptStore(db),
		Entities: sqlite.NewEntityStore(db),
		Ping:     db.PingContext,
		close:    func() { _ = db.Close() },
	}, nil
}

// Queue builds the image queue with the configured retry policy.
func Queue(cfg *infra.Config, b *Backend, logger zerolog.Logger) (*imagequeue.Queue, error) {
	policy := imagequeue.Policy{
		MaxAttempts: cfg.QueueMaxAttempts,
		BaseBackoff: cfg.QueueBaseBackoff,
		MaxBackoff:  cfg.QueueMaxBackoff,
		StaleAfter:  cfg.QueueStaleAfter,
	}
	return imagequeue.New(b.Jobs, policy, imagequeue.WithLogger(infra.Component(logger, "imagequeue")))
}

// Planner wires the caller-side service.
func Planner(b *Backend, q *imagequeue.Queue, logger zerolog.Logger) *planner.Service {
	selector := imageprompt.NewSelector(b.Prompts, nil)
	return planner.NewService(b.Entities, selector, q, planner.WithLogger(logger))
}

// GeminiAPIKey prefers the environment and falls back to the stored
// integration token.
func GeminiAPIKey(ctx context.Context, cfg *infra.Config, b *Backend, logger zerolog.Logger) string {
	if key := strings.TrimSpace(cfg.GeminiAPIKey); key != "" {
		return key
	}
	if b.Credentials == nil {
		return ""
	}
	key, err := b.Credentials.GeminiAPIKey(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("load gemini api key from integration_tokens")
		return ""
	}
	return key
}
