package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the moderation table and the referencing marketplace
// tables the cleanup resolvers touch. Having the migration in code keeps the
// service self-contained so docker-compose can bootstrap everything.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS moderation_records (
	id TEXT PRIMARY KEY,
	image_url TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	status TEXT NOT NULL,
	nsfw_score DOUBLE PRECISION,
	failure_reason TEXT,
	retry_count INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ,
	reviewed_at TIMESTAMPTZ,
	reviewed_by TEXT,
	review_notes TEXT,
	cleanup_at TIMESTAMPTZ,
	UNIQUE (image_url, entity_type, entity_id)
);
CREATE INDEX IF NOT EXISTS idx_moderation_status ON moderation_records(status);
CREATE INDEX IF NOT EXISTS idx_moderation_cleanup
	ON moderation_records(status, processed_at)
	WHERE cleanup_at IS NULL;

CREATE TABLE IF NOT EXISTS store_photos (
	id TEXT PRIMARY KEY,
	store_id TEXT NOT NULL,
	image_url TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	avatar_url TEXT
);
CREATE TABLE IF NOT EXISTS guide_contents (
	id TEXT PRIMARY KEY,
	image_url TEXT
);`
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
