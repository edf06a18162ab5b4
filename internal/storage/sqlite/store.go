// Package sqlite persists the signal store, the portfolio ledger, the trade
// history and the audit log in a single local database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS daily_prices (
    symbol TEXT NOT NULL,
    trade_date TEXT NOT NULL,
    open REAL NOT NULL,
    high REAL NOT NULL,
    low REAL NOT NULL,
    close REAL NOT NULL,
    volume INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (trade_date, symbol)
);

CREATE TABLE IF NOT EXISTS snapshots (
    snapshot_date TEXT NOT NULL,
    symbol TEXT NOT NULL,
    rsi REAL,
    price REAL NOT NULL,
    PRIMARY KEY (snapshot_date, symbol)
);

CREATE TABLE IF NOT EXISTS positions (
    symbol TEXT PRIMARY KEY,
    qty INTEGER NOT NULL,
    avg_price REAL NOT NULL,
    entry_date TEXT NOT NULL,
    adds INTEGER NOT NULL DEFAULT 0,
    original_qty INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trade_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    trade_date TEXT NOT NULL,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    direction TEXT NOT NULL DEFAULT '',
    qty INTEGER NOT NULL,
    price REAL NOT NULL,
    order_status TEXT NOT NULL,
    broker_order_id TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_trade_history_broker_order
    ON trade_history(broker_order_id) WHERE broker_order_id <> '';
CREATE INDEX IF NOT EXISTS idx_trade_history_symbol_date
    ON trade_history(symbol, trade_date);

CREATE TABLE IF NOT EXISTS trade_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL DEFAULT '',
    qty INTEGER NOT NULL DEFAULT 0,
    price REAL NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    notes TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

// Cleanup deletes price, snapshot and audit rows older than the retention
// window. Positions and trade history are never cleaned; they are the
// ledger. Returns deleted row counts per table.
func (s *Store) Cleanup(ctx context.Context, retentionDays int) (map[string]int64, error) {
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}
	cutoff := s.Now().AddDate(0, 0, -retentionDays).Format("2006-01-02")

	deleted := make(map[string]int64)
	stmts := []struct {
		table string
		query string
	}{
		{"daily_prices", "DELETE FROM daily_prices WHERE trade_date < ?"},
		{"snapshots", "DELETE FROM snapshots WHERE snapshot_date < ?"},
		{"trade_log", "DELETE FROM trade_log WHERE created_at < ?"},
	}
	for _, st := range stmts {
		res, err := s.db.ExecContext(ctx, st.query, cutoff)
		if err != nil {
			return deleted, fmt.Errorf("cleanup %s: %w", st.table, err)
		}
		n, _ := res.RowsAffected()
		deleted[st.table] = n
	}
	return deleted, nil
}
