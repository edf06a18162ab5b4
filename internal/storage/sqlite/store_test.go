package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsidesk/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func rsiPtr(v float64) *float64 { return &v }

func TestInsertPricesKeepsExistingBarsImmutable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bars := []models.PricePoint{
		{Symbol: "AAA", TradeDate: "2026-08-27", Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1000},
		{Symbol: "AAA", TradeDate: "2026-08-28", Open: 10.5, High: 12, Low: 10, Close: 11.5, Volume: 1200},
	}
	n, err := store.InsertPrices(ctx, bars)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Re-inserting the same dates with different closes changes nothing.
	bars[0].Close = 99
	n, err = store.InsertPrices(ctx, bars)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	closes, err := store.Closes(ctx, "AAA", "2026-08-01", "2026-08-31")
	require.NoError(t, err)
	assert.Equal(t, []float64{10.5, 11.5}, closes)
}

func TestUpsertSnapshotsRejectsStaleDate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	snaps := []models.RsiSnapshot{{Symbol: "AAA", RSI: rsiPtr(25), Price: 100}}
	_, err := store.UpsertSnapshots(ctx, "2026-08-28", snaps)
	require.NoError(t, err)

	// Re-running the newest date is fine.
	_, err = store.UpsertSnapshots(ctx, "2026-08-28", snaps)
	require.NoError(t, err)

	// Writing an earlier date is not.
	_, err = store.UpsertSnapshots(ctx, "2026-08-27", snaps)
	assert.ErrorIs(t, err, ErrStaleSnapshotDate)
}

func TestLatestSnapshotsOrderedAndNullable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertSnapshots(ctx, "2026-08-28", []models.RsiSnapshot{
		{Symbol: "ZZZ", RSI: rsiPtr(30), Price: 50},
		{Symbol: "AAA", RSI: nil, Price: 100},
	})
	require.NoError(t, err)

	date, snaps, err := store.LatestSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-28", date)
	require.Len(t, snaps, 2)
	assert.Equal(t, "AAA", snaps[0].Symbol)
	assert.Nil(t, snaps[0].RSI, "insufficient history stores as NULL, not zero")
	require.NotNil(t, snaps[1].RSI)
	assert.Equal(t, 30.0, *snaps[1].RSI)
}

func TestLatestSnapshotsEmptyStore(t *testing.T) {
	store := newTestStore(t)
	date, snaps, err := store.LatestSnapshots(context.Background())
	require.NoError(t, err)
	assert.Empty(t, date)
	assert.Nil(t, snaps)
}

func TestInsertSubmittedForcesStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.InsertSubmitted(ctx, models.TradeRecord{
		TradeDate:   "2026-08-28",
		Symbol:      "AAA",
		Side:        models.SideBuy,
		Qty:         10,
		Price:       100,
		OrderStatus: models.StatusFilled, // ignored
	})
	require.NoError(t, err)

	open, err := store.OpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, id, open[0].ID)
	assert.Equal(t, models.StatusSubmitted, open[0].OrderStatus)
}

func TestSetTradeStatusIsForwardOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.InsertSubmitted(ctx, models.TradeRecord{
		TradeDate: "2026-08-28", Symbol: "AAA", Side: models.SideBuy, Qty: 10, Price: 100,
	})
	require.NoError(t, err)

	err = store.InLedgerTx(ctx, func(tx *LedgerTx) error {
		return tx.SetTradeStatus(id, models.StatusSubmitted, models.StatusFilled)
	})
	require.NoError(t, err)

	// A second transition away from the terminal state must fail.
	err = store.InLedgerTx(ctx, func(tx *LedgerTx) error {
		return tx.SetTradeStatus(id, models.StatusFilled, models.StatusCancelled)
	})
	assert.Error(t, err)

	// So must a replay of the original transition.
	err = store.InLedgerTx(ctx, func(tx *LedgerTx) error {
		return tx.SetTradeStatus(id, models.StatusSubmitted, models.StatusFilled)
	})
	assert.Error(t, err)
}

func TestTradeLookups(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.InsertSubmitted(ctx, models.TradeRecord{
		TradeDate: "2026-08-28", Symbol: "AAA", Side: models.SideBuy,
		Direction: models.OpenLong, Qty: 10, Price: 100.25, BrokerOrderID: "ord-1",
	})
	require.NoError(t, err)

	byOrder, err := store.TradeByBrokerOrder(ctx, "ord-1")
	require.NoError(t, err)
	require.NotNil(t, byOrder)
	assert.Equal(t, "AAA", byOrder.Symbol)
	assert.Equal(t, models.OpenLong, byOrder.Direction)

	byKey, err := store.TradeByDomainKey(ctx, "2026-08-28", "AAA", models.SideBuy, 10, 100.25)
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, byOrder.ID, byKey.ID)

	missing, err := store.TradeByBrokerOrder(ctx, "ord-unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestOverwritePositionDeletesAtZeroQty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pos := models.Position{Symbol: "AAA", Qty: 10, AvgPrice: 100, EntryDate: "2026-08-28", OriginalQty: 10}
	require.NoError(t, store.OverwritePosition(ctx, pos))

	got, err := store.Position(ctx, "AAA")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(10), got.Qty)

	pos.Qty = 0
	require.NoError(t, store.OverwritePosition(ctx, pos))

	got, err = store.Position(ctx, "AAA")
	require.NoError(t, err)
	assert.Nil(t, got, "a flat symbol holds no row")
}

func TestCleanupPreservesLedger(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.InsertPrices(ctx, []models.PricePoint{
		{Symbol: "AAA", TradeDate: "2020-01-02", Close: 10},
	})
	require.NoError(t, err)
	require.NoError(t, store.OverwritePosition(ctx, models.Position{
		Symbol: "AAA", Qty: 10, AvgPrice: 100, EntryDate: "2020-01-02", OriginalQty: 10,
	}))
	_, err = store.InsertSubmitted(ctx, models.TradeRecord{
		TradeDate: "2020-01-02", Symbol: "AAA", Side: models.SideBuy, Qty: 10, Price: 100,
	})
	require.NoError(t, err)

	deleted, err := store.Cleanup(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted["daily_prices"])

	pos, err := store.Position(ctx, "AAA")
	require.NoError(t, err)
	assert.NotNil(t, pos)

	n, err := store.CountTrades(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
