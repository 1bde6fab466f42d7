package db

import (
	"context"
	"time"

	"backend-triptracker/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	newPoolFn  = pgxpool.New
	pingPoolFn = func(ctx context.Context, pool *pgxpool.Pool) error { return pool.Ping(ctx) }
)

const createTripTable = `
	CREATE TABLE IF NOT EXISTS trip_tracker (
		id        TEXT PRIMARY KEY,
		trip_data TEXT NOT NULL
	)
`

func ConnectPostgres(cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.PostgresURL == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := newPoolFn(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, err
	}
	if err := pingPoolFn(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// MigratePostgres creates the trip record table when missing.
func MigratePostgres(ctx context.Context, q Querier) error {
	_, err := q.Exec(ctx, createTripTable)
	return err
}
