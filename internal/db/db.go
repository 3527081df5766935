package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoDatabase is returned by Connect when no URL is configured.
var ErrNoDatabase = errors.New("database url is not configured")

// Connect opens and pings a pool for dbURL.
func Connect(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	if strings.TrimSpace(dbURL) == "" {
		return nil, ErrNoDatabase
	}

	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing db config: %w", err)
	}
	if config.MaxConns > 10 {
		config.MaxConns = 10
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error connecting to db: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging db: %w", err)
	}

	return pool, nil
}
