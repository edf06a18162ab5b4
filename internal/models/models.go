// Package models holds the domain types shared across the signal store,
// the strategy engine and the ledger.
package models

import (
	"fmt"
	"time"
)

// DateLayout is the canonical trade-date format used in storage keys.
const DateLayout = "2006-01-02"

// PricePoint is one daily OHLCV bar. Rows are immutable once written and
// unique per (trade_date, symbol).
type PricePoint struct {
	Symbol    string
	TradeDate string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// RsiSnapshot is the computed signal for one symbol on one date. RSI is nil
// when fewer than the lookback window of closes exist; that is a valid
// state, not an error.
type RsiSnapshot struct {
	SnapshotDate string
	Symbol       string
	RSI          *float64
	Price        float64
}

// Position is the aggregated open position for a symbol. A symbol is either
// flat (no row) or holds exactly one row. Qty is signed: positive is long,
// negative is short. Adds counts averaging-down fills over the position's
// lifetime; OriginalQty is the share count of the opening fill and drives
// add sizing.
type Position struct {
	Symbol      string
	Qty         int64
	AvgPrice    float64
	EntryDate   string
	Adds        int
	OriginalQty int64
}

// MarketValue returns qty*price, falling back to the average entry price
// when no market price is known.
func (p Position) MarketValue(price float64) float64 {
	if price <= 0 {
		price = p.AvgPrice
	}
	return float64(p.Qty) * price
}

// UnrealizedPct returns the unrealized return in percent against price.
func (p Position) UnrealizedPct(price float64) float64 {
	if p.AvgPrice == 0 {
		return 0
	}
	return (price - p.AvgPrice) / p.AvgPrice * 100
}

// HoldingDays returns the whole days elapsed since entry as of asOf.
func (p Position) HoldingDays(asOf time.Time) int {
	entry, err := time.Parse(DateLayout, p.EntryDate)
	if err != nil {
		return 0
	}
	return int(asOf.Sub(entry).Hours() / 24)
}

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderStatus is the trade-record state machine:
// submitted -> filled | rejected | cancelled. Terminal states never
// transition again.
type OrderStatus string

const (
	StatusSubmitted OrderStatus = "submitted"
	StatusFilled    OrderStatus = "filled"
	StatusRejected  OrderStatus = "rejected"
	StatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusRejected || s == StatusCancelled
}

// CanTransitionTo reports whether next is a legal forward transition.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return s == StatusSubmitted && next.Terminal()
}

// TradeRecord is one order the system decided to submit. Immutable after
// insert except OrderStatus. Direction disambiguates what a fill means for
// the position: a sell is a short entry when Direction is open_short and a
// long decrement otherwise.
type TradeRecord struct {
	ID            int64
	TradeDate     string
	Symbol        string
	Side          Side
	Direction     Direction
	Qty           int64
	Price         float64
	OrderStatus   OrderStatus
	BrokerOrderID string
	CreatedAt     time.Time
}

// DomainKey identifies a trade when no broker order id is available.
func (t TradeRecord) DomainKey() string {
	return fmt.Sprintf("%s/%s/%s/%d/%.4f", t.TradeDate, t.Symbol, t.Side, t.Qty, t.Price)
}

// TradeLogEntry is one row of the append-only audit trail. The decision
// engine never reads it.
type TradeLogEntry struct {
	ID        int64
	Symbol    string
	Side      string
	Qty       int64
	Price     float64
	Status    string
	Notes     string
	CreatedAt time.Time
}

// Direction classifies a candidate trading idea.
type Direction string

const (
	OpenLong      Direction = "open_long"
	OpenShort     Direction = "open_short"
	Exit          Direction = "exit"
	AddToPosition Direction = "add_to_position"
)

// CandidateIntent is a proposed trade before sizing. Mandatory marks
// stop-loss exits, which sort ahead of everything else.
type CandidateIntent struct {
	Symbol         string
	Direction      Direction
	Rationale      string
	SignalStrength float64
	Mandatory      bool
	RSI            float64
	Price          float64
}

// SizedOrder is a candidate after dollar/share sizing and exposure
// enforcement. SkipReason is set (and Qty is zero) when the guard could not
// size the candidate; skipped orders are shown to the operator but not
// actionable.
type SizedOrder struct {
	Symbol         string
	Side           Side
	Direction      Direction
	Qty            int64
	EstimatedPrice float64
	Rationale      string
	SkipReason     string
}

// Skipped reports whether the guard emitted this order as non-actionable.
func (o SizedOrder) Skipped() bool {
	return o.SkipReason != ""
}

// BrokerResult is the bounded outcome the broker collaborator surfaces for
// one submitted order.
type BrokerResult struct {
	OrderID     string
	Status      OrderStatus
	FilledQty   int64
	FilledPrice float64
	Reason      string
}
