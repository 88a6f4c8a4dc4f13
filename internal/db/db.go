package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Connect builds the PostgreSQL connection pool.
func Connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Info().Msg("connected to postgres")
	return pool, nil
}

// Migrate applies the schema. Idempotent; safe to run on every boot.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            uuid PRIMARY KEY,
			username      text NOT NULL UNIQUE,
			email         text NOT NULL UNIQUE,
			password_hash text NOT NULL,
			created_at    timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS groups (
			id                 uuid PRIMARY KEY,
			code               text NOT NULL UNIQUE,
			name               text NOT NULL,
			description        text NOT NULL DEFAULT '',
			created_by         uuid NOT NULL,
			is_private         boolean NOT NULL DEFAULT false,
			max_members        int NOT NULL,
			study_duration     int NOT NULL,
			break_duration     int NOT NULL,
			auto_start_timer   boolean NOT NULL DEFAULT false,
			require_focus_mode boolean NOT NULL DEFAULT false,
			timer_status       text NOT NULL DEFAULT 'idle',
			timer_mode         text NOT NULL DEFAULT 'study',
			timer_time_left    int NOT NULL DEFAULT 1500,
			timer_cycles       int NOT NULL DEFAULT 0,
			created_at         timestamptz NOT NULL DEFAULT now(),
			updated_at         timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS group_members (
			group_id  uuid NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			user_id   uuid NOT NULL,
			username  text NOT NULL DEFAULT '',
			is_host   boolean NOT NULL DEFAULT false,
			joined_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (group_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id          uuid PRIMARY KEY,
			group_id    uuid NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			sender_id   uuid,
			sender_name text NOT NULL DEFAULT '',
			content     text NOT NULL,
			kind        text NOT NULL DEFAULT 'text',
			created_at  timestamptz NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_group_created ON messages (group_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id         uuid PRIMARY KEY,
			group_id   uuid NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			text       text NOT NULL,
			completed  boolean NOT NULL DEFAULT false,
			created_by uuid,
			assignees  text[] NOT NULL DEFAULT '{}',
			due_date   timestamptz,
			priority   text NOT NULL DEFAULT 'medium',
			created_at timestamptz NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
