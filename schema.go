package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

func InitializeSchema(db *pgxpool.Pool) error {
	log.Info().Msg("Checking database schema...")

	schema := `
	-- 1. PRODUCT COUNTERS
	-- available stock is derived (stock - reserved_stock), never stored
	CREATE TABLE IF NOT EXISTS products (
		sku TEXT PRIMARY KEY,
		stock INT NOT NULL DEFAULT 0,
		reserved_stock INT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (stock >= 0),
		CHECK (reserved_stock >= 0 AND reserved_stock <= stock)
	);

	-- 2. RESERVATIONS
	-- one active reservation per cart line item
	CREATE TABLE IF NOT EXISTS reservations (
		id UUID PRIMARY KEY,
		cart_line_item_id TEXT UNIQUE NOT NULL,
		sku TEXT NOT NULL REFERENCES products(sku),
		quantity INT NOT NULL CHECK (quantity > 0),
		reserved_until TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	-- 3. STOCK LEDGER (append-only, never updated or deleted)
	CREATE TABLE IF NOT EXISTS stock_ledger (
		id BIGSERIAL PRIMARY KEY,
		sku TEXT NOT NULL,
		entry_type TEXT NOT NULL CHECK (entry_type IN ('RESERVE','RELEASE','COMMIT','ADJUST')),
		quantity INT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		cart_line_item_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	-- INDEXES
	CREATE INDEX IF NOT EXISTS idx_reservations_expiry ON reservations(reserved_until);
	CREATE INDEX IF NOT EXISTS idx_ledger_sku ON stock_ledger(sku);
	`

	if _, err := db.Exec(context.Background(), schema); err != nil {
		return err
	}

	log.Info().Msg("Database schema initialized successfully.")
	return nil
}
