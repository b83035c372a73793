package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS redemptions (
		code              TEXT PRIMARY KEY,
		product           TEXT NOT NULL DEFAULT '*',
		source_session_id TEXT,
		purchaser_email   TEXT,
		purchaser_name    TEXT,
		manual            BOOLEAN NOT NULL DEFAULT FALSE,
		state             TEXT NOT NULL DEFAULT 'unused',
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		used_at           TIMESTAMPTZ,
		CONSTRAINT redemptions_state_check CHECK (state IN ('unused', 'used')),
		CONSTRAINT redemptions_used_at_check CHECK ((state = 'used') = (used_at IS NOT NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_redemptions_source_session_id ON redemptions (source_session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_redemptions_created_at ON redemptions (created_at)`,
}

// Migrate creates the ledger tables when they do not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	return db.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		return nil
	})
}
