package database

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS monitored_entry (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		product_url TEXT NOT NULL,
		user_email TEXT NOT NULL,
		name TEXT,
		image_url TEXT,
		original_price BIGINT,
		discount_price BIGINT,
		discount_available BOOLEAN NOT NULL DEFAULT FALSE,
		check_interval_minutes INTEGER NOT NULL DEFAULT 60,
		last_checked_at TIMESTAMPTZ,
		last_notified_at TIMESTAMPTZ,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS check_history (
		id UUID PRIMARY KEY,
		entry_id UUID NOT NULL REFERENCES monitored_entry(id) ON DELETE CASCADE,
		status VARCHAR(10) NOT NULL CHECK (status IN ('success', 'error')),
		original_price BIGINT,
		discount_price BIGINT,
		discount_available BOOLEAN NOT NULL DEFAULT FALSE,
		error_message TEXT,
		checked_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS price_history (
		id UUID PRIMARY KEY,
		entry_id UUID NOT NULL REFERENCES monitored_entry(id) ON DELETE CASCADE,
		original_price BIGINT,
		discount_price BIGINT,
		discount_available BOOLEAN NOT NULL DEFAULT FALSE,
		sampled_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS outbox_event (
		id UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload JSONB NOT NULL,
		target_stream TEXT NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		processed_at TIMESTAMPTZ,
		next_retry_at TIMESTAMPTZ
	)`,

	`CREATE INDEX IF NOT EXISTS idx_monitored_entry_user ON monitored_entry (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_monitored_entry_sweep ON monitored_entry (active, last_checked_at)`,
	`CREATE INDEX IF NOT EXISTS idx_check_history_entry ON check_history (entry_id, checked_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_price_history_entry ON price_history (entry_id, sampled_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_event_pending ON outbox_event (status, next_retry_at)`,
}

// Migrate creates the schema if it does not exist. Statements are idempotent
// so this is safe to run on every startup.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
