// Package signal builds the daily RSI snapshot set from fetched market
// data. Refresh is the only writer of the signal store.
package signal

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"rsidesk/internal/config"
	"rsidesk/internal/dataflows"
	"rsidesk/internal/indicators"
	"rsidesk/internal/models"
	"rsidesk/internal/storage/sqlite"
	"rsidesk/internal/universe"
)

// fetchBuffer is how many extra calendar days beyond the RSI window get
// requested, covering weekends and market holidays.
const fetchBuffer = 14

// Result summarizes one refresh run.
type Result struct {
	SnapshotDate string
	Symbols      int
	WithRSI      int
	BarsInserted int
	Failed       []string
}

type Refresher struct {
	store    *sqlite.Store
	provider dataflows.Provider
	universe *universe.Universe
	cfg      config.Strategy
	log      *logrus.Entry

	// pause between symbol fetches so backfills stay polite to the
	// upstream API
	pause time.Duration
}

func NewRefresher(store *sqlite.Store, provider dataflows.Provider, u *universe.Universe, cfg config.Strategy, log *logrus.Entry) *Refresher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Refresher{
		store:    store,
		provider: provider,
		universe: u,
		cfg:      cfg,
		log:      log,
		pause:    200 * time.Millisecond,
	}
}

// Refresh fetches daily bars for every universe symbol, appends them to the
// price store, computes each symbol's RSI from stored closes and writes the
// snapshot set for asOf's date. backfillDays extends the fetch window for
// first runs or gap repair; zero means just enough history for the RSI
// window. A symbol whose fetch fails is recorded and skipped; the run keeps
// going.
func (r *Refresher) Refresh(ctx context.Context, asOf time.Time, backfillDays int) (Result, error) {
	date := asOf.Format(models.DateLayout)
	result := Result{SnapshotDate: date}

	windowDays := r.cfg.RSIPeriod + fetchBuffer
	if backfillDays > windowDays {
		windowDays = backfillDays
	}
	start := asOf.AddDate(0, 0, -windowDays)

	symbols := r.universe.Symbols()
	result.Symbols = len(symbols)

	var snaps []models.RsiSnapshot
	for i, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if i > 0 && r.pause > 0 {
			time.Sleep(r.pause)
		}

		bars, err := r.provider.DailyBars(symbol, start, asOf)
		if err != nil {
			r.log.WithField("symbol", symbol).WithError(err).Warn("bar fetch failed, skipping symbol")
			result.Failed = append(result.Failed, symbol)
			continue
		}
		if len(bars) == 0 {
			r.log.WithField("symbol", symbol).Warn("no bars returned, skipping symbol")
			result.Failed = append(result.Failed, symbol)
			continue
		}

		inserted, err := r.store.InsertPrices(ctx, bars)
		if err != nil {
			return result, err
		}
		result.BarsInserted += inserted

		closes, err := r.store.Closes(ctx, symbol, start.Format(models.DateLayout), date)
		if err != nil {
			return result, err
		}

		snap := models.RsiSnapshot{
			SnapshotDate: date,
			Symbol:       symbol,
			Price:        closes[len(closes)-1],
		}
		if rsi, ok := indicators.Latest(closes, r.cfg.RSIPeriod); ok {
			snap.RSI = &rsi
			result.WithRSI++
		} else {
			r.log.WithFields(logrus.Fields{"symbol": symbol, "closes": len(closes)}).
				Debug("not enough history for rsi, storing price-only snapshot")
		}
		snaps = append(snaps, snap)
	}

	if len(snaps) > 0 {
		if _, err := r.store.UpsertSnapshots(ctx, date, snaps); err != nil {
			return result, err
		}
	}

	r.log.WithFields(logrus.Fields{
		"date":     date,
		"symbols":  result.Symbols,
		"with_rsi": result.WithRSI,
		"bars":     result.BarsInserted,
		"failed":   len(result.Failed),
	}).Info("signal refresh complete")

	return result, nil
}
