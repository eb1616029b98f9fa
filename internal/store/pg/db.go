// Package pg implements the managed-mode Store interfaces
// (internal/memory.Store, internal/sessions.Persistence,
// internal/providers.CostStore) on top of github.com/jackc/pgx/v5, the
// driver the pack upgrades to over the teacher's database/sql usage (pack:
// manifold, goclaw go.mod). Schema migrations are driven by
// github.com/golang-migrate/migrate/v4 against the SQL files in
// internal/store/migrations.
package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Open builds a connection pool from a Postgres DSN.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}
