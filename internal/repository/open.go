package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"agent-architect/backend/internal/config"
)

// Open connects to the store selected by cfg.DB.Driver and applies the
// schema.
func Open(ctx context.Context, cfg *config.Config) (Repository, error) {
	var repo Repository
	switch cfg.DB.Driver {
	case "postgres":
		poolConfig, err := pgxpool.ParseConfig(cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to parse database config: %w", err)
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		repo = NewPostgresStore(pool)
	case "sqlite":
		store, err := OpenSQLite(cfg.DB.Path)
		if err != nil {
			return nil, err
		}
		repo = store
	default:
		return nil, fmt.Errorf("unsupported db.driver %q", cfg.DB.Driver)
	}

	if err := repo.Ping(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := repo.Migrate(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return repo, nil
}
