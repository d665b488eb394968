package repo

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS contacts (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		address    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS commands (
		id                    TEXT PRIMARY KEY,
		triggers              TEXT NOT NULL,
		text_message          TEXT NOT NULL DEFAULT '',
		file_data             JSONB NOT NULL DEFAULT '[]',
		is_active             BOOLEAN NOT NULL DEFAULT TRUE,
		created_at            TIMESTAMPTZ NOT NULL,
		linked_subcategory_id BIGINT,
		linked_item_id        BIGINT,
		CONSTRAINT commands_single_link
			CHECK (linked_subcategory_id IS NULL OR linked_item_id IS NULL)
	)`,
	`CREATE TABLE IF NOT EXISTS scheduled_messages (
		id             TEXT PRIMARY KEY,
		contact_id     TEXT,
		target_address TEXT,
		message        TEXT NOT NULL,
		is_broadcast   BOOLEAN NOT NULL DEFAULT FALSE,
		scheduled_at   TIMESTAMPTZ NOT NULL,
		status         TEXT NOT NULL DEFAULT 'pending',
		claimed_at     TIMESTAMPTZ,
		sent_at        TIMESTAMPTZ,
		last_error     TEXT,
		recipients     INTEGER NOT NULL DEFAULT 0,
		delivered      INTEGER NOT NULL DEFAULT 0,
		created_at     TIMESTAMPTZ NOT NULL,
		CONSTRAINT scheduled_messages_sent_at
			CHECK ((status = 'pending') = (sent_at IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_commands_created_at ON commands (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_scheduled_messages_due
		ON scheduled_messages (scheduled_at)
		WHERE status = 'pending' AND claimed_at IS NULL`,
}

// Migrate creates the tables this service owns if they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return tx.Commit()
}
