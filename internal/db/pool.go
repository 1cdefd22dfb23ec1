package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS leverclick`,
	`CREATE TABLE IF NOT EXISTS leverclick.match_results (
		match_id    UUID PRIMARY KEY,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		ticks       BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS leverclick.match_standings (
		match_id    UUID NOT NULL REFERENCES leverclick.match_results (match_id) ON DELETE CASCADE,
		rank        BIGINT NOT NULL,
		player_name TEXT NOT NULL,
		net_worth   NUMERIC NOT NULL,
		balance     NUMERIC NOT NULL,
		bankrupt    BOOLEAN NOT NULL DEFAULT false,
		PRIMARY KEY (match_id, rank)
	)`,
	`CREATE INDEX IF NOT EXISTS match_results_finished_idx ON leverclick.match_results (finished_at DESC)`,
	`CREATE INDEX IF NOT EXISTS match_standings_player_idx ON leverclick.match_standings (player_name)`,
}

// EnsureSchema creates the results archive tables if they are missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
