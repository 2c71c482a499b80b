// Package database opens the shared PostgreSQL connection pool.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomhq/loom/internal/pkg/options"
	"github.com/loomhq/loom/pkg/logger"
)

// NewPgxPool builds a pgx connection pool from the Postgres options and
// verifies connectivity with a ping.
func NewPgxPool(ctx context.Context, opts *options.PostgresOptions) (*pgxpool.Pool, error) {
	if opts.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the postgres store")
	}

	cfg, err := pgxpool.ParseConfig(opts.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = int32(opts.MaxPoolSize)
	cfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("[Database] connected (max_conns=%d)", cfg.MaxConns)
	return pool, nil
}
