package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Balances are TEXT holding canonical decimal strings so they survive any
// magnitude without rounding. Leaderboards cast to NUMERIC when sorting.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE TABLE IF NOT EXISTS users (
		id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		username text NOT NULL,
		password_hash text NOT NULL,
		rare_candy text NOT NULL DEFAULT '0',
		favorite_pokemon_id integer,
		selected_pokemon_id integer,
		show_in_ranks boolean NOT NULL DEFAULT true,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_username_unique ON users (lower(username))`,
	`CREATE INDEX IF NOT EXISTS users_show_in_ranks ON users (show_in_ranks)`,
	`CREATE TABLE IF NOT EXISTS user_upgrades (
		user_id uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		upgrade_key text NOT NULL,
		level integer NOT NULL DEFAULT 1 CHECK (level >= 1),
		updated_at timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, upgrade_key)
	)`,
	`CREATE TABLE IF NOT EXISTS owned_pokemon (
		user_id uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		pokemon_id integer NOT NULL CHECK (pokemon_id >= 1),
		source text NOT NULL DEFAULT 'purchase',
		acquired_at timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, pokemon_id)
	)`,
	`CREATE TABLE IF NOT EXISTS pokemon_upgrades (
		user_id uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		pokemon_id integer NOT NULL,
		level integer NOT NULL DEFAULT 1 CHECK (level >= 1),
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, pokemon_id)
	)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		user_id uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		key text NOT NULL,
		action text NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, key)
	)`,
	`CREATE TABLE IF NOT EXISTS pokemon_catalog (
		id integer PRIMARY KEY,
		name text NOT NULL DEFAULT '',
		generation text NOT NULL DEFAULT '',
		bst integer NOT NULL,
		price text NOT NULL,
		estimated boolean NOT NULL DEFAULT false,
		refreshed_at timestamptz NOT NULL DEFAULT now()
	)`,
	`ALTER TABLE pokemon_catalog ADD COLUMN IF NOT EXISTS types text[] NOT NULL DEFAULT '{}'`,
	`ALTER TABLE pokemon_catalog ADD COLUMN IF NOT EXISTS sprite text NOT NULL DEFAULT ''`,
	`CREATE INDEX IF NOT EXISTS pokemon_catalog_bst ON pokemon_catalog (bst)`,
	`CREATE INDEX IF NOT EXISTS pokemon_catalog_types ON pokemon_catalog USING gin (types)`,
}

// EnsureSchema creates missing tables and indexes. Every statement is
// idempotent, so it runs on each start.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
