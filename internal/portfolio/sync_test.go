package portfolio

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsidesk/internal/broker"
	"rsidesk/internal/models"
	"rsidesk/internal/storage/sqlite"
)

type fakeSource struct {
	held []broker.HeldPosition
}

func (f *fakeSource) Positions(ctx context.Context) ([]broker.HeldPosition, error) {
	return f.held, nil
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSyncCorrectsAddsAndRemoves(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Local ledger: AAA drifted, BBB is gone at the broker, CCC matches.
	require.NoError(t, store.OverwritePosition(ctx, models.Position{
		Symbol: "AAA", Qty: 10, AvgPrice: 100, EntryDate: "2026-08-01", OriginalQty: 10,
	}))
	require.NoError(t, store.OverwritePosition(ctx, models.Position{
		Symbol: "BBB", Qty: 5, AvgPrice: 50, EntryDate: "2026-08-01", OriginalQty: 5,
	}))
	require.NoError(t, store.OverwritePosition(ctx, models.Position{
		Symbol: "CCC", Qty: 7, AvgPrice: 20, EntryDate: "2026-08-01", OriginalQty: 7,
	}))

	source := &fakeSource{held: []broker.HeldPosition{
		{Symbol: "AAA", Qty: 12, AvgPrice: 98},
		{Symbol: "CCC", Qty: 7, AvgPrice: 20},
		{Symbol: "DDD", Qty: 3, AvgPrice: 40}, // opened outside the system
	}}

	report, err := NewSyncer(store, source, nil).Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, 1, report.Removed)

	aaa, err := store.Position(ctx, "AAA")
	require.NoError(t, err)
	assert.Equal(t, int64(12), aaa.Qty)
	assert.Equal(t, 98.0, aaa.AvgPrice)

	bbb, err := store.Position(ctx, "BBB")
	require.NoError(t, err)
	assert.Nil(t, bbb)

	ddd, err := store.Position(ctx, "DDD")
	require.NoError(t, err)
	require.NotNil(t, ddd)
	assert.Equal(t, int64(3), ddd.Qty)
	assert.Equal(t, int64(3), ddd.OriginalQty)
	assert.NotEmpty(t, ddd.EntryDate)

	// Every correction left an audit row.
	entries, err := store.TradeLogTail(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, "sync", e.Status)
	}
}

func TestSyncCleanWhenMatching(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.OverwritePosition(ctx, models.Position{
		Symbol: "AAA", Qty: 10, AvgPrice: 100, EntryDate: "2026-08-01", OriginalQty: 10,
	}))
	source := &fakeSource{held: []broker.HeldPosition{{Symbol: "AAA", Qty: 10, AvgPrice: 100}}}

	report, err := NewSyncer(store, source, nil).Sync(ctx)
	require.NoError(t, err)
	assert.True(t, report.Clean())

	entries, err := store.TradeLogTail(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
