// Package portfolio reconciles the local position ledger against the
// broker's account state. Broker state is authoritative: whatever it
// reports is what the ledger ends up holding.
package portfolio

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"rsidesk/internal/broker"
	"rsidesk/internal/models"
	"rsidesk/internal/storage/sqlite"
)

// PositionSource is the slice of the broker API the syncer needs.
type PositionSource interface {
	Positions(ctx context.Context) ([]broker.HeldPosition, error)
}

// SyncReport summarizes what a sync run changed.
type SyncReport struct {
	Updated int
	Added   int
	Removed int
}

func (r SyncReport) Clean() bool {
	return r.Updated == 0 && r.Added == 0 && r.Removed == 0
}

type Syncer struct {
	store  *sqlite.Store
	source PositionSource
	log    *logrus.Entry
}

func NewSyncer(store *sqlite.Store, source PositionSource, log *logrus.Entry) *Syncer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Syncer{store: store, source: source, log: log}
}

// Sync pulls the broker's positions and corrects the local ledger to match:
// quantities and average prices are overwritten, locally-unknown holdings
// are inserted, and locally-held symbols the broker no longer reports are
// removed. Every correction is logged and written to the audit trail.
func (s *Syncer) Sync(ctx context.Context) (SyncReport, error) {
	var report SyncReport

	held, err := s.source.Positions(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch broker positions: %w", err)
	}

	local, err := s.store.Positions(ctx)
	if err != nil {
		return report, err
	}
	localBySymbol := make(map[string]models.Position, len(local))
	for _, p := range local {
		localBySymbol[p.Symbol] = p
	}

	today := s.store.Now().Format(models.DateLayout)

	for _, h := range held {
		cur, known := localBySymbol[h.Symbol]
		delete(localBySymbol, h.Symbol)

		if known && cur.Qty == h.Qty && cur.AvgPrice == h.AvgPrice {
			continue
		}

		p := models.Position{
			Symbol:      h.Symbol,
			Qty:         h.Qty,
			AvgPrice:    h.AvgPrice,
			EntryDate:   cur.EntryDate,
			Adds:        cur.Adds,
			OriginalQty: cur.OriginalQty,
		}
		if !known {
			// Position opened outside the system: entry date and original
			// quantity are unknown, so today's state is the best anchor.
			p.EntryDate = today
			p.OriginalQty = h.Qty
		}
		if err := s.store.OverwritePosition(ctx, p); err != nil {
			return report, err
		}

		if known {
			report.Updated++
			s.log.WithFields(logrus.Fields{
				"symbol":    h.Symbol,
				"local_qty": cur.Qty, "broker_qty": h.Qty,
				"local_avg": cur.AvgPrice, "broker_avg": h.AvgPrice,
			}).Warn("position corrected to broker state")
			s.audit(ctx, h, fmt.Sprintf("sync corrected qty %d->%d avg %.2f->%.2f", cur.Qty, h.Qty, cur.AvgPrice, h.AvgPrice))
		} else {
			report.Added++
			s.log.WithFields(logrus.Fields{"symbol": h.Symbol, "qty": h.Qty}).
				Warn("broker holds position unknown to ledger, adding")
			s.audit(ctx, h, "sync added position held at broker")
		}
	}

	// Anything left in the local map is not held at the broker.
	for symbol, cur := range localBySymbol {
		if err := s.store.DeletePosition(ctx, symbol); err != nil {
			return report, err
		}
		report.Removed++
		s.log.WithFields(logrus.Fields{"symbol": symbol, "qty": cur.Qty}).
			Warn("ledger position not held at broker, removing")
		s.audit(ctx, broker.HeldPosition{Symbol: symbol, Qty: cur.Qty, AvgPrice: cur.AvgPrice},
			"sync removed position absent at broker")
	}

	if report.Clean() {
		s.log.Info("portfolio in sync with broker")
	}
	return report, nil
}

func (s *Syncer) audit(ctx context.Context, h broker.HeldPosition, notes string) {
	err := s.store.AppendTradeLog(ctx, models.TradeLogEntry{
		Symbol: h.Symbol,
		Qty:    h.Qty,
		Price:  h.AvgPrice,
		Status: "sync",
		Notes:  notes,
	})
	if err != nil {
		s.log.WithError(err).Warn("failed to write sync audit entry")
	}
}
