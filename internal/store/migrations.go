package store

import (
	"context"
	"fmt"
)

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS service_api_keys (
		id UUID PRIMARY KEY,
		key_name VARCHAR(100) NOT NULL,
		generation INTEGER NOT NULL DEFAULT 1,
		secret_hash VARCHAR(64) NOT NULL UNIQUE,
		key_prefix VARCHAR(32) NOT NULL,
		environment VARCHAR(8) NOT NULL CHECK (environment IN ('prod', 'dev')),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ,
		UNIQUE (key_name, generation)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_service_api_keys_active
		ON service_api_keys (secret_hash) WHERE active = TRUE`,

	`CREATE TABLE IF NOT EXISTS tasks (
		id UUID PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		title VARCHAR(500) NOT NULL,
		description TEXT,
		status VARCHAR(50) NOT NULL DEFAULT 'pending',
		priority VARCHAR(50),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at TIMESTAMPTZ,
		due_date TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON tasks (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_user_status ON tasks (user_id, status)`,
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS service_api_keys (
		id TEXT PRIMARY KEY,
		key_name TEXT NOT NULL,
		generation INTEGER NOT NULL DEFAULT 1,
		secret_hash TEXT NOT NULL UNIQUE,
		key_prefix TEXT NOT NULL,
		environment TEXT NOT NULL CHECK (environment IN ('prod', 'dev')),
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		expires_at DATETIME,
		UNIQUE (key_name, generation)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_service_api_keys_active
		ON service_api_keys (secret_hash) WHERE active = 1`,

	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		priority TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		completed_at DATETIME,
		due_date DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON tasks (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_user_status ON tasks (user_id, status)`,
}

// Migrate creates any missing tables and indexes. Every statement is
// idempotent, so it is safe to run on each start.
func (s *Store) Migrate(ctx context.Context) error {
	migrations := sqliteMigrations
	if s.dialect == DialectPostgres {
		migrations = postgresMigrations
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
