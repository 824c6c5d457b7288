// Package store is the transactional storage collaborator from spec
// section 6: row-level reads with locks, inserts, updates, and the unique
// constraint on token.idempotencyKey the engine relies on for race-free
// idempotent replay. Adapted from the teacher's internal/db + internal/
// appointment (PgRepository), generalized from a flat pool-backed
// repository into a transaction-scoped one, since every allocation
// decision must read and write inside the same SERIALIZABLE transaction.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectPostgres dials Postgres and verifies connectivity, adapted from
// the teacher's db.ConnectPostgres.
func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}
