package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"rsidesk/internal/models"
)

// Positions returns the full ledger snapshot, ordered by symbol.
func (s *Store) Positions(ctx context.Context) ([]models.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT symbol, qty, avg_price, entry_date, adds, original_qty
FROM positions
ORDER BY symbol ASC
`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var p models.Position
		if err := rows.Scan(&p.Symbol, &p.Qty, &p.AvgPrice, &p.EntryDate, &p.Adds, &p.OriginalQty); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("position rows: %w", err)
	}
	return positions, nil
}

// Position returns the open position for symbol, or nil when flat.
func (s *Store) Position(ctx context.Context, symbol string) (*models.Position, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT symbol, qty, avg_price, entry_date, adds, original_qty
FROM positions WHERE symbol = ?
`, symbol)
	return scanPosition(row)
}

// OverwritePosition replaces the row for a symbol with broker-reported
// state. Only the portfolio sync collaborator calls this; fills go through
// the reconciler instead.
func (s *Store) OverwritePosition(ctx context.Context, p models.Position) error {
	if p.Qty == 0 {
		return s.DeletePosition(ctx, p.Symbol)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO positions (symbol, qty, avg_price, entry_date, adds, original_qty)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(symbol) DO UPDATE SET
    qty=excluded.qty,
    avg_price=excluded.avg_price
`, p.Symbol, p.Qty, p.AvgPrice, p.EntryDate, p.Adds, p.OriginalQty)
	if err != nil {
		return fmt.Errorf("overwrite position %s: %w", p.Symbol, err)
	}
	return nil
}

func (s *Store) DeletePosition(ctx context.Context, symbol string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ?`, symbol); err != nil {
		return fmt.Errorf("delete position %s: %w", symbol, err)
	}
	return nil
}

// InsertSubmitted records an order the moment it is handed to the broker.
// The status is forced to submitted; terminal statuses are only ever set by
// the reconciler through a LedgerTx.
func (s *Store) InsertSubmitted(ctx context.Context, t models.TradeRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO trade_history (trade_date, symbol, side, direction, qty, price, order_status, broker_order_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, t.TradeDate, t.Symbol, string(t.Side), string(t.Direction), t.Qty, t.Price, string(models.StatusSubmitted), t.BrokerOrderID)
	if err != nil {
		return 0, fmt.Errorf("insert trade record %s: %w", t.Symbol, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("trade record id: %w", err)
	}
	return id, nil
}

// TradeByBrokerOrder looks a trade record up by its broker order id, the
// natural idempotency key. Returns nil when unknown.
func (s *Store) TradeByBrokerOrder(ctx context.Context, brokerOrderID string) (*models.TradeRecord, error) {
	if brokerOrderID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, tradeSelect+` WHERE broker_order_id = ? LIMIT 1`, brokerOrderID)
	return scanTrade(row)
}

// TradeByDomainKey is the fallback lookup when the broker supplied no order
// id: (date, symbol, side, qty, price) identifies the order.
func (s *Store) TradeByDomainKey(ctx context.Context, date, symbol string, side models.Side, qty int64, price float64) (*models.TradeRecord, error) {
	row := s.db.QueryRowContext(ctx, tradeSelect+`
 WHERE trade_date = ? AND symbol = ? AND side = ? AND qty = ? AND ABS(price - ?) < 1e-9
 ORDER BY id DESC LIMIT 1`, date, symbol, string(side), qty, price)
	return scanTrade(row)
}

// OpenTrades lists records still in submitted state, oldest first. Used to
// resume reconciliation after a crash or broker timeout.
func (s *Store) OpenTrades(ctx context.Context) ([]models.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, tradeSelect+` WHERE order_status = ? ORDER BY id ASC`, string(models.StatusSubmitted))
	if err != nil {
		return nil, fmt.Errorf("query open trades: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// TradeHistory lists the most recent trade records, newest first.
func (s *Store) TradeHistory(ctx context.Context, limit int) ([]models.TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, tradeSelect+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trade history: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// CountTrades returns the number of trade history rows.
func (s *Store) CountTrades(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trade_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return n, nil
}

// AppendTradeLog appends one audit row. The audit log is independent of the
// trade/position transaction and never read by the decision engine.
func (s *Store) AppendTradeLog(ctx context.Context, e models.TradeLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO trade_log (symbol, side, qty, price, status, notes)
VALUES (?, ?, ?, ?, ?, ?)
`, e.Symbol, e.Side, e.Qty, e.Price, e.Status, e.Notes)
	if err != nil {
		return fmt.Errorf("append trade log: %w", err)
	}
	return nil
}

// TradeLogTail lists the most recent audit rows, newest first.
func (s *Store) TradeLogTail(ctx context.Context, limit int) ([]models.TradeLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, symbol, side, qty, price, status, notes, created_at
FROM trade_log ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trade log: %w", err)
	}
	defer rows.Close()

	var entries []models.TradeLogEntry
	for rows.Next() {
		var e models.TradeLogEntry
		if err := rows.Scan(&e.ID, &e.Symbol, &e.Side, &e.Qty, &e.Price, &e.Status, &e.Notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trade log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LedgerTx scopes the one hard transactional requirement in the system: a
// trade-record status transition and its paired position mutation commit or
// roll back together.
type LedgerTx struct {
	ctx context.Context
	tx  *sql.Tx
}

// InLedgerTx runs fn inside a single transaction. Any error rolls the whole
// unit back, leaving the ledger as if the fill never happened.
func (s *Store) InLedgerTx(ctx context.Context, fn func(tx *LedgerTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	if err := fn(&LedgerTx{ctx: ctx, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

// SetTradeStatus transitions a trade record from one status to another.
// The WHERE clause enforces the forward-only state machine at the storage
// level: zero affected rows means the record was not in the expected state.
func (t *LedgerTx) SetTradeStatus(id int64, from, to models.OrderStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("illegal order status transition %s -> %s", from, to)
	}
	res, err := t.tx.ExecContext(t.ctx, `
UPDATE trade_history SET order_status = ? WHERE id = ? AND order_status = ?
`, string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("set trade status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("trade %d not in status %s", id, from)
	}
	return nil
}

// Position reads the position row inside the transaction, or nil when flat.
func (t *LedgerTx) Position(symbol string) (*models.Position, error) {
	row := t.tx.QueryRowContext(t.ctx, `
SELECT symbol, qty, avg_price, entry_date, adds, original_qty
FROM positions WHERE symbol = ?
`, symbol)
	return scanPosition(row)
}

// PutPosition upserts the position row inside the transaction.
func (t *LedgerTx) PutPosition(p models.Position) error {
	_, err := t.tx.ExecContext(t.ctx, `
INSERT INTO positions (symbol, qty, avg_price, entry_date, adds, original_qty)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(symbol) DO UPDATE SET
    qty=excluded.qty,
    avg_price=excluded.avg_price,
    adds=excluded.adds
`, p.Symbol, p.Qty, p.AvgPrice, p.EntryDate, p.Adds, p.OriginalQty)
	if err != nil {
		return fmt.Errorf("put position %s: %w", p.Symbol, err)
	}
	return nil
}

// DeletePosition removes the row inside the transaction. A full exit must
// not leave a zero-quantity row behind.
func (t *LedgerTx) DeletePosition(symbol string) error {
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM positions WHERE symbol = ?`, symbol); err != nil {
		return fmt.Errorf("delete position %s: %w", symbol, err)
	}
	return nil
}

const tradeSelect = `
SELECT id, trade_date, symbol, side, direction, qty, price, order_status, broker_order_id, created_at
FROM trade_history`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (*models.TradeRecord, error) {
	var (
		rec  models.TradeRecord
		side string
		dir  string
		stat string
	)
	err := row.Scan(&rec.ID, &rec.TradeDate, &rec.Symbol, &side, &dir, &rec.Qty, &rec.Price, &stat, &rec.BrokerOrderID, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan trade record: %w", err)
	}
	rec.Side = models.Side(side)
	rec.Direction = models.Direction(dir)
	rec.OrderStatus = models.OrderStatus(stat)
	return &rec, nil
}

func collectTrades(rows *sql.Rows) ([]models.TradeRecord, error) {
	var trades []models.TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("trade rows: %w", err)
	}
	return trades, nil
}

func scanPosition(row rowScanner) (*models.Position, error) {
	var p models.Position
	err := row.Scan(&p.Symbol, &p.Qty, &p.AvgPrice, &p.EntryDate, &p.Adds, &p.OriginalQty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan position: %w", err)
	}
	return &p, nil
}
