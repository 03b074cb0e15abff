package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"fundwatch/internal/config"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS price_history (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    instrument_key    TEXT NOT NULL,
    price             TEXT NOT NULL,
    price_date        TEXT,
    fetched_at        TIMESTAMP NOT NULL,
    performances_json TEXT NOT NULL DEFAULT '{}',
    ongoing_charges   TEXT,
    UNIQUE(instrument_key, price_date)
);

CREATE TABLE IF NOT EXISTS subscriptions (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    instrument_key TEXT NOT NULL,
    guild_id       TEXT NOT NULL,
    channel_id     TEXT NOT NULL,
    subscribed_at  TIMESTAMP NOT NULL,
    UNIQUE(instrument_key, guild_id, channel_id)
);

CREATE TABLE IF NOT EXISTS guild_settings (
    guild_id     TEXT PRIMARY KEY,
    ping_role_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_price_history_key ON price_history(instrument_key, fetched_at);
CREATE INDEX IF NOT EXISTS idx_subscriptions_key ON subscriptions(instrument_key);
`

// Open opens the SQLite database file and bootstraps the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database.path is required")
	}

	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=%d&_journal_mode=WAL&_fk=1", cfg.Path, busy.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// The sqlite3 driver serialises access per connection; a single connection
	// avoids SQLITE_BUSY between the poll cycle and the command surface.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return db, nil
}
