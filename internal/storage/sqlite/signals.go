package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"rsidesk/internal/models"
)

// ErrStaleSnapshotDate is returned when a write would touch snapshot rows
// for a date older than the newest stored date. Past snapshots are
// immutable; only the current review date may be re-run.
var ErrStaleSnapshotDate = errors.New("snapshot date older than latest stored date")

// InsertPrices appends daily bars. Existing (trade_date, symbol) rows are
// left untouched, which keeps past bars immutable across re-runs.
// Returns the number of newly inserted rows.
func (s *Store) InsertPrices(ctx context.Context, points []models.PricePoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	stmt, err := s.db.PrepareContext(ctx, `
INSERT INTO daily_prices (symbol, trade_date, open, high, low, close, volume)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(trade_date, symbol) DO NOTHING
`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert prices: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, p := range points {
		res, err := stmt.ExecContext(ctx, p.Symbol, p.TradeDate, p.Open, p.High, p.Low, p.Close, p.Volume)
		if err != nil {
			return inserted, fmt.Errorf("insert price %s %s: %w", p.Symbol, p.TradeDate, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// Closes returns the close series for a symbol in [from, to], oldest first.
func (s *Store) Closes(ctx context.Context, symbol, from, to string) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT close FROM daily_prices
WHERE symbol = ? AND trade_date >= ? AND trade_date <= ?
ORDER BY trade_date ASC
`, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("query closes: %w", err)
	}
	defer rows.Close()

	var closes []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan close: %w", err)
		}
		closes = append(closes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("closes rows: %w", err)
	}
	return closes, nil
}

// UpsertSnapshots writes the RSI snapshot rows for one date. A re-run for
// the newest date replaces its rows; writing any earlier date fails with
// ErrStaleSnapshotDate.
func (s *Store) UpsertSnapshots(ctx context.Context, date string, snaps []models.RsiSnapshot) (int, error) {
	latest, err := s.LatestSnapshotDate(ctx)
	if err != nil {
		return 0, err
	}
	if latest != "" && date < latest {
		return 0, fmt.Errorf("write snapshots for %s (latest is %s): %w", date, latest, ErrStaleSnapshotDate)
	}

	stmt, err := s.db.PrepareContext(ctx, `
INSERT INTO snapshots (snapshot_date, symbol, rsi, price)
VALUES (?, ?, ?, ?)
ON CONFLICT(snapshot_date, symbol) DO UPDATE SET
    rsi=excluded.rsi,
    price=excluded.price
`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert snapshots: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, snap := range snaps {
		var rsi sql.NullFloat64
		if snap.RSI != nil {
			rsi = sql.NullFloat64{Float64: *snap.RSI, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, date, snap.Symbol, rsi, snap.Price); err != nil {
			return written, fmt.Errorf("upsert snapshot %s %s: %w", snap.Symbol, date, err)
		}
		written++
	}
	return written, nil
}

// LatestSnapshotDate returns the newest snapshot date, or "" when the
// signal store is empty.
func (s *Store) LatestSnapshotDate(ctx context.Context) (string, error) {
	var date sql.NullString
	row := s.db.QueryRowContext(ctx, `SELECT MAX(snapshot_date) FROM snapshots`)
	if err := row.Scan(&date); err != nil {
		return "", fmt.Errorf("latest snapshot date: %w", err)
	}
	if !date.Valid {
		return "", nil
	}
	return date.String, nil
}

// LatestSnapshots returns the full snapshot set for the newest date,
// ordered by symbol for determinism.
func (s *Store) LatestSnapshots(ctx context.Context) (string, []models.RsiSnapshot, error) {
	date, err := s.LatestSnapshotDate(ctx)
	if err != nil || date == "" {
		return "", nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT symbol, rsi, price FROM snapshots
WHERE snapshot_date = ?
ORDER BY symbol ASC
`, date)
	if err != nil {
		return "", nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []models.RsiSnapshot
	for rows.Next() {
		var (
			snap models.RsiSnapshot
			rsi  sql.NullFloat64
		)
		snap.SnapshotDate = date
		if err := rows.Scan(&snap.Symbol, &rsi, &snap.Price); err != nil {
			return "", nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if rsi.Valid {
			v := rsi.Float64
			snap.RSI = &v
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return "", nil, fmt.Errorf("snapshot rows: %w", err)
	}
	return date, snaps, nil
}
