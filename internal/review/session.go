// Package review runs the daily review session: it assembles the decision
// inputs, walks the operator through each sized order and routes approved
// orders through the broker into the ledger. Nothing is ever submitted
// without an explicit approval.
package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"rsidesk/internal/broker"
	"rsidesk/internal/config"
	"rsidesk/internal/ledger"
	"rsidesk/internal/models"
	"rsidesk/internal/storage/sqlite"
	"rsidesk/internal/strategy"
)

// Decision is the operator's verdict on one proposed order.
type Decision int

const (
	Approve Decision = iota
	Reject
	SkipRemaining
)

// ApprovalSurface is the interactive collaborator. Review presents one
// actionable order; ShowSkipped displays an order the sizing guard could
// not size, which needs no verdict.
type ApprovalSurface interface {
	Review(order models.SizedOrder, idx, total int) (Decision, error)
	ShowSkipped(order models.SizedOrder)
}

// Broker is the slice of the execution API the session drives.
type Broker interface {
	Account(ctx context.Context) (broker.Account, error)
	MarketOpen(ctx context.Context) bool
	SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.Order, error)
	AwaitTerminal(ctx context.Context, orderID string, wait time.Duration) (models.BrokerResult, error)
}

// Quoter supplies live prices. Optional; without one (or with the market
// closed) the session sizes against snapshot closes.
type Quoter interface {
	Quote(symbol string) (float64, error)
}

// Summary is what one session run produced.
type Summary struct {
	SnapshotDate string
	Candidates   int
	Skipped      int
	Filled       int
	Unfilled     int
	Declined     int
	Pending      int
	Halted       bool
}

type Session struct {
	store      *sqlite.Store
	broker     Broker
	quoter     Quoter
	reconciler *ledger.Reconciler
	surface    ApprovalSurface
	sectors    strategy.SectorLookup
	cfg        config.Strategy
	log        *logrus.Entry

	// fillWait bounds how long a submitted order is polled before the
	// session moves on and leaves it for the reconcile command.
	fillWait time.Duration
}

func NewSession(store *sqlite.Store, b Broker, q Quoter, rec *ledger.Reconciler, surface ApprovalSurface, sectors strategy.SectorLookup, cfg config.Strategy, log *logrus.Entry) *Session {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Session{
		store:      store,
		broker:     b,
		quoter:     q,
		reconciler: rec,
		surface:    surface,
		sectors:    sectors,
		cfg:        cfg,
		log:        log,
		fillWait:   30 * time.Second,
	}
}

// Run executes one full review pass over the latest snapshot set. Orders
// the operator approves are submitted one at a time and reconciled before
// the next order is shown, so each decision sees the ledger state left by
// the previous fill. A skip-remaining verdict halts the session; the
// remaining orders leave no record. A ledger drift error aborts the session
// immediately.
func (s *Session) Run(ctx context.Context) (Summary, error) {
	date, snaps, err := s.store.LatestSnapshots(ctx)
	if err != nil {
		return Summary{}, err
	}
	if date == "" {
		return Summary{}, errors.New("no signal snapshots stored; run refresh first")
	}
	summary := Summary{SnapshotDate: date}

	positions, err := s.store.Positions(ctx)
	if err != nil {
		return summary, err
	}

	account, err := s.broker.Account(ctx)
	if err != nil {
		return summary, fmt.Errorf("fetch broker account: %w", err)
	}

	candidates := strategy.Decide(date, snaps, positions, s.cfg)
	summary.Candidates = len(candidates)
	if len(candidates) == 0 {
		s.log.WithField("date", date).Info("no candidates today")
		return summary, nil
	}

	prices := s.buildPrices(ctx, snaps, candidates)
	orders := strategy.Size(strategy.SizeInput{
		Candidates:    candidates,
		Positions:     positions,
		AvailableCash: account.Cash,
		Prices:        prices,
		Sectors:       s.sectors,
	}, s.cfg)

	actionable := 0
	for _, o := range orders {
		if !o.Skipped() {
			actionable++
		}
	}

	shown := 0
	for _, order := range orders {
		if order.Skipped() {
			summary.Skipped++
			s.surface.ShowSkipped(order)
			if err := s.recordSkipped(ctx, date, order); err != nil {
				return summary, err
			}
			continue
		}
		shown++

		decision, err := s.surface.Review(order, shown, actionable)
		if err != nil {
			return summary, fmt.Errorf("approval prompt: %w", err)
		}

		switch decision {
		case SkipRemaining:
			summary.Halted = true
			s.log.WithField("remaining", actionable-shown+1).Info("operator halted session")
			return summary, nil

		case Reject:
			summary.Declined++
			if err := s.recordDeclined(ctx, date, order); err != nil {
				return summary, err
			}

		case Approve:
			if err := s.execute(ctx, date, order, &summary); err != nil {
				return summary, err
			}
		}
	}

	s.log.WithFields(logrus.Fields{
		"date":     date,
		"filled":   summary.Filled,
		"declined": summary.Declined,
		"pending":  summary.Pending,
	}).Info("review session complete")
	return summary, nil
}

// buildPrices maps every snapshot symbol to its estimated execution price:
// the snapshot close, upgraded to a live quote for candidate symbols when
// the market is open. Quote failures fall back silently to the close.
func (s *Session) buildPrices(ctx context.Context, snaps []models.RsiSnapshot, candidates []models.CandidateIntent) map[string]float64 {
	prices := make(map[string]float64, len(snaps))
	for _, snap := range snaps {
		prices[snap.Symbol] = snap.Price
	}

	if s.quoter == nil || !s.broker.MarketOpen(ctx) {
		return prices
	}
	for _, c := range candidates {
		quote, err := s.quoter.Quote(c.Symbol)
		if err != nil || quote <= 0 {
			s.log.WithField("symbol", c.Symbol).Debug("live quote unavailable, using snapshot close")
			continue
		}
		prices[c.Symbol] = quote
	}
	return prices
}

// execute submits one approved order, records it and drives it to a
// terminal state when the broker answers within the wait budget. A timeout
// leaves the record submitted for the reconcile command; a ledger drift
// error aborts the session.
func (s *Session) execute(ctx context.Context, date string, order models.SizedOrder, summary *Summary) error {
	submitted, err := s.broker.SubmitOrder(ctx, broker.OrderRequest{
		Symbol: order.Symbol,
		Side:   order.Side,
		Qty:    order.Qty,
	})
	if err != nil {
		// The order never reached the broker; nothing to reconcile.
		s.log.WithField("symbol", order.Symbol).WithError(err).Error("order submission failed")
		return s.store.AppendTradeLog(ctx, models.TradeLogEntry{
			Symbol: order.Symbol,
			Side:   string(order.Side),
			Qty:    order.Qty,
			Price:  order.EstimatedPrice,
			Status: "error",
			Notes:  "submission failed: " + err.Error(),
		})
	}

	rec := models.TradeRecord{
		TradeDate:     date,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Direction:     order.Direction,
		Qty:           order.Qty,
		Price:         order.EstimatedPrice,
		OrderStatus:   models.StatusSubmitted,
		BrokerOrderID: submitted.ID,
	}
	rec.ID, err = s.store.InsertSubmitted(ctx, rec)
	if err != nil {
		return err
	}

	result, err := s.broker.AwaitTerminal(ctx, submitted.ID, s.fillWait)
	if err != nil {
		if errors.Is(err, broker.ErrAwaitTimeout) {
			summary.Pending++
			s.log.WithFields(logrus.Fields{"symbol": order.Symbol, "order_id": submitted.ID}).
				Warn("order still open, run reconcile later")
			return nil
		}
		return err
	}

	if err := s.reconciler.Reconcile(ctx, rec, result); err != nil {
		return err
	}
	if result.Status == models.StatusFilled {
		summary.Filled++
	} else {
		summary.Unfilled++
	}
	return nil
}

// recordSkipped leaves a durable trace of a candidate the sizing guard
// could not size; every decision outcome reaches the audit log.
func (s *Session) recordSkipped(ctx context.Context, date string, order models.SizedOrder) error {
	return s.store.AppendTradeLog(ctx, models.TradeLogEntry{
		Symbol: order.Symbol,
		Side:   string(order.Side),
		Price:  order.EstimatedPrice,
		Status: "skipped",
		Notes:  "not sized during review on " + date + ": " + order.SkipReason,
	})
}

func (s *Session) recordDeclined(ctx context.Context, date string, order models.SizedOrder) error {
	s.log.WithFields(logrus.Fields{"symbol": order.Symbol, "side": order.Side, "qty": order.Qty}).
		Info("order declined by operator")
	return s.store.AppendTradeLog(ctx, models.TradeLogEntry{
		Symbol: order.Symbol,
		Side:   string(order.Side),
		Qty:    order.Qty,
		Price:  order.EstimatedPrice,
		Status: "declined",
		Notes:  "declined during review on " + date + ": " + order.Rationale,
	})
}
