// Package ledger merges broker-confirmed trade outcomes into the durable
// portfolio ledger and trade history.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"rsidesk/internal/models"
	"rsidesk/internal/storage/sqlite"
)

// ErrLedgerDrift marks consistency errors between the local ledger and the
// broker: a result with no matching submitted record, an exit exceeding the
// held quantity, a conflicting terminal status. These abort reconciliation
// for the symbol and must surface loudly; they are never absorbed.
var ErrLedgerDrift = errors.New("ledger drift")

// Reconciler applies broker results to the ledger. It is the only component
// that mutates positions through fills.
type Reconciler struct {
	store *sqlite.Store
	log   *logrus.Entry
}

func New(store *sqlite.Store, log *logrus.Entry) *Reconciler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Reconciler{store: store, log: log}
}

// Reconcile applies one broker result. The matching trade record is located
// by broker order id, falling back to the domain key. Re-processing a
// result whose record already reached the same terminal status is a no-op,
// which makes crash-and-resume safe.
//
// On a fill, the status transition and the position merge commit as a
// single transaction; a crash between the two cannot happen by
// construction. The audit log append stays outside the transaction: it is
// independently idempotent in effect and never read by the decision engine.
func (r *Reconciler) Reconcile(ctx context.Context, trade models.TradeRecord, result models.BrokerResult) error {
	rec, err := r.locate(ctx, trade, result)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: no submitted trade record for %s %s %d %s",
			ErrLedgerDrift, trade.Symbol, trade.Side, trade.Qty, trade.TradeDate)
	}

	if rec.OrderStatus.Terminal() {
		if rec.OrderStatus == result.Status {
			r.log.WithFields(logrus.Fields{"symbol": rec.Symbol, "trade_id": rec.ID}).
				Debug("trade already reconciled, skipping")
			return nil
		}
		return fmt.Errorf("%w: trade %d already %s, got conflicting result %s",
			ErrLedgerDrift, rec.ID, rec.OrderStatus, result.Status)
	}

	if !rec.OrderStatus.CanTransitionTo(result.Status) {
		return fmt.Errorf("%w: trade %d cannot transition %s -> %s",
			ErrLedgerDrift, rec.ID, rec.OrderStatus, result.Status)
	}

	switch result.Status {
	case models.StatusFilled:
		return r.applyFill(ctx, rec, result)
	case models.StatusRejected, models.StatusCancelled:
		return r.applyTerminalFailure(ctx, rec, result)
	default:
		return fmt.Errorf("%w: unexpected broker status %q for trade %d", ErrLedgerDrift, result.Status, rec.ID)
	}
}

// ResumeOpen re-checks every trade still in submitted state against the
// broker via lookup. Used on startup after a crash or broker timeout.
func (r *Reconciler) ResumeOpen(ctx context.Context, lookup func(ctx context.Context, brokerOrderID string) (models.BrokerResult, error)) (int, error) {
	open, err := r.store.OpenTrades(ctx)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, rec := range open {
		if rec.BrokerOrderID == "" {
			r.log.WithField("trade_id", rec.ID).Warn("open trade has no broker order id, cannot resume")
			continue
		}
		result, err := lookup(ctx, rec.BrokerOrderID)
		if err != nil {
			r.log.WithFields(logrus.Fields{"trade_id": rec.ID, "order_id": rec.BrokerOrderID}).
				WithError(err).Warn("broker lookup failed, leaving trade submitted")
			continue
		}
		if !result.Status.Terminal() {
			continue
		}
		if err := r.Reconcile(ctx, rec, result); err != nil {
			return resolved, err
		}
		resolved++
	}
	return resolved, nil
}

func (r *Reconciler) locate(ctx context.Context, trade models.TradeRecord, result models.BrokerResult) (*models.TradeRecord, error) {
	if result.OrderID != "" {
		rec, err := r.store.TradeByBrokerOrder(ctx, result.OrderID)
		if err != nil || rec != nil {
			return rec, err
		}
	}
	return r.store.TradeByDomainKey(ctx, trade.TradeDate, trade.Symbol, trade.Side, trade.Qty, trade.Price)
}

func (r *Reconciler) applyFill(ctx context.Context, rec *models.TradeRecord, result models.BrokerResult) error {
	fillQty := result.FilledQty
	if fillQty == 0 {
		fillQty = rec.Qty
	}
	fillPrice := result.FilledPrice
	if fillPrice <= 0 {
		fillPrice = rec.Price
	}

	// A fill is a signed delta against the position: buys add, sells
	// subtract. A short entry opens a negative-quantity row.
	delta := fillQty
	if rec.Side == models.SideSell {
		delta = -fillQty
	}

	// Validate the delta before opening the transaction so drift never
	// half-commits.
	pos, err := r.store.Position(ctx, rec.Symbol)
	if err != nil {
		return err
	}
	if err := validateDelta(pos, rec, delta); err != nil {
		return err
	}

	err = r.store.InLedgerTx(ctx, func(tx *sqlite.LedgerTx) error {
		if err := tx.SetTradeStatus(rec.ID, rec.OrderStatus, models.StatusFilled); err != nil {
			return err
		}

		cur, err := tx.Position(rec.Symbol)
		if err != nil {
			return err
		}
		if err := validateDelta(cur, rec, delta); err != nil {
			return fmt.Errorf("%w: position for %s changed during reconcile", ErrLedgerDrift, rec.Symbol)
		}

		if cur == nil {
			return tx.PutPosition(models.Position{
				Symbol:      rec.Symbol,
				Qty:         delta,
				AvgPrice:    fillPrice,
				EntryDate:   rec.TradeDate,
				Adds:        0,
				OriginalQty: delta,
			})
		}

		newQty := cur.Qty + delta
		if newQty == 0 {
			// A full exit deletes the row rather than leaving qty 0.
			return tx.DeletePosition(rec.Symbol)
		}
		if sameSign(cur.Qty, delta) {
			// Same-direction fill merges into the weighted average.
			cur.AvgPrice = (float64(cur.Qty)*cur.AvgPrice + float64(delta)*fillPrice) / float64(newQty)
			cur.Adds++
		}
		// A reducing fill leaves the average entry price unchanged.
		cur.Qty = newQty
		return tx.PutPosition(*cur)
	})
	if err != nil {
		return err
	}

	r.log.WithFields(logrus.Fields{
		"symbol": rec.Symbol,
		"side":   rec.Side,
		"qty":    fillQty,
		"price":  fillPrice,
	}).Info("fill reconciled into ledger")

	return r.store.AppendTradeLog(ctx, models.TradeLogEntry{
		Symbol: rec.Symbol,
		Side:   string(rec.Side),
		Qty:    fillQty,
		Price:  fillPrice,
		Status: string(models.StatusFilled),
		Notes:  fmt.Sprintf("order %s filled", orderRef(rec, result)),
	})
}

func (r *Reconciler) applyTerminalFailure(ctx context.Context, rec *models.TradeRecord, result models.BrokerResult) error {
	err := r.store.InLedgerTx(ctx, func(tx *sqlite.LedgerTx) error {
		return tx.SetTradeStatus(rec.ID, rec.OrderStatus, result.Status)
	})
	if err != nil {
		return err
	}

	r.log.WithFields(logrus.Fields{
		"symbol": rec.Symbol,
		"side":   rec.Side,
		"status": result.Status,
		"reason": result.Reason,
	}).Warn("order did not fill")

	notes := fmt.Sprintf("order %s %s", orderRef(rec, result), result.Status)
	if result.Reason != "" {
		notes += ": " + result.Reason
	}
	return r.store.AppendTradeLog(ctx, models.TradeLogEntry{
		Symbol: rec.Symbol,
		Side:   string(rec.Side),
		Qty:    rec.Qty,
		Price:  rec.Price,
		Status: string(result.Status),
		Notes:  notes,
	})
}

// validateDelta enforces the signed-position rules: a sell with no held
// position is only legal as a short entry, and a reducing fill must never
// flip the position's sign (exit quantity must not exceed the held
// quantity).
func validateDelta(pos *models.Position, rec *models.TradeRecord, delta int64) error {
	if pos == nil {
		if delta < 0 && rec.Direction != models.OpenShort {
			return fmt.Errorf("%w: sell fill for %s but no position held", ErrLedgerDrift, rec.Symbol)
		}
		return nil
	}
	if !sameSign(pos.Qty, delta) && abs(delta) > abs(pos.Qty) {
		return fmt.Errorf("%w: fill qty %d would flip %s position of %d",
			ErrLedgerDrift, delta, rec.Symbol, pos.Qty)
	}
	return nil
}

func sameSign(a, b int64) bool {
	return (a > 0) == (b > 0)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func orderRef(rec *models.TradeRecord, result models.BrokerResult) string {
	if result.OrderID != "" {
		return result.OrderID
	}
	if rec.BrokerOrderID != "" {
		return rec.BrokerOrderID
	}
	return rec.DomainKey()
}
