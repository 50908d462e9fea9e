package storage

import (
	"context"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS consumption (
    interval_start timestamptz PRIMARY KEY,
    interval_end   timestamptz NOT NULL,
    kwh            numeric NOT NULL
);

CREATE TABLE IF NOT EXISTS tariff_rates (
    valid_from    timestamptz NOT NULL,
    kind          text NOT NULL,
    valid_to      timestamptz,
    value_exc_vat numeric NOT NULL,
    value_inc_vat numeric NOT NULL,
    PRIMARY KEY (valid_from, kind)
);

CREATE TABLE IF NOT EXISTS sync_ledger (
    resource       text PRIMARY KEY,
    synced_through timestamptz NOT NULL,
    updated_at     timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS alert_state (
    channel    text PRIMARY KEY,
    direction  text NOT NULL,
    last_value numeric NOT NULL,
    threshold  numeric NOT NULL,
    alerted_at timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS bot_state (
    id              smallint PRIMARY KEY CHECK (id = 1),
    muted           boolean NOT NULL DEFAULT false,
    pending_command text NOT NULL DEFAULT '',
    update_offset   bigint NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_tariff_rates_kind_from ON tariff_rates (kind, valid_from);
`

// EnsureSchema creates the tables on first use. All DDL is idempotent so
// every command can call this at startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
