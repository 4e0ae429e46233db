package postgres

import (
	"context"
	"fmt"
)

// schemaStatements create the tables used by Repository. They are
// idempotent and safe to run at every start.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         UUID PRIMARY KEY,
		email      TEXT NOT NULL,
		username   TEXT NOT NULL,
		name       TEXT NOT NULL DEFAULT '',
		about      TEXT NOT NULL DEFAULT '',
		images     JSONB NOT NULL DEFAULT '[]'::jsonb,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (lower(email))`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_username_key ON users (lower(username))`,
	`CREATE TABLE IF NOT EXISTS posts (
		id         UUID PRIMARY KEY,
		seq        BIGINT GENERATED ALWAYS AS IDENTITY,
		content    TEXT NOT NULL,
		owner_id   UUID NOT NULL REFERENCES users (id),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		search     TSVECTOR GENERATED ALWAYS AS (to_tsvector('simple', content)) STORED
	)`,
	`CREATE INDEX IF NOT EXISTS posts_created_at_idx ON posts (created_at DESC, seq DESC)`,
	`CREATE INDEX IF NOT EXISTS posts_owner_created_at_idx ON posts (owner_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS posts_search_idx ON posts USING GIN (search)`,
}

// Migrate creates the schema objects Repository depends on.
func Migrate(ctx context.Context, db DBTX) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", handlePostgresError("migrate", err))
		}
	}
	return nil
}
