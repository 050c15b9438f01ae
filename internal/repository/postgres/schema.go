package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const candidatesSchema = `
CREATE TABLE IF NOT EXISTS candidates (
	id              BIGSERIAL PRIMARY KEY,
	first_name      TEXT NOT NULL,
	last_name       TEXT NOT NULL,
	phone_number    TEXT NOT NULL,
	email           TEXT NOT NULL,
	birth_date      DATE NOT NULL,
	expected_salary INTEGER NOT NULL DEFAULT 0,
	notes           TEXT NOT NULL DEFAULT '',
	is_favorite     BOOLEAN NOT NULL DEFAULT FALSE,
	photo_uri       TEXT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_candidates_favorite ON candidates (is_favorite) WHERE is_favorite;
`

// EnsureSchema creates the candidates table when it does not exist yet.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, candidatesSchema); err != nil {
		return fmt.Errorf("failed to ensure candidates schema: %w", err)
	}
	return nil
}
