package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsidesk/internal/config"
	"rsidesk/internal/models"
)

func rsiPtr(v float64) *float64 { return &v }

func snap(symbol string, rsi *float64, price float64) models.RsiSnapshot {
	return models.RsiSnapshot{SnapshotDate: "2026-08-28", Symbol: symbol, RSI: rsi, Price: price}
}

func TestDecideOrdersBySignalStrength(t *testing.T) {
	cfg := config.DefaultStrategy()
	signals := []models.RsiSnapshot{
		snap("AAA", rsiPtr(22), 100), // strength 4
		snap("BBB", rsiPtr(18), 100), // strength 8
		snap("CCC", rsiPtr(27), 100), // above primary, no candidate
	}

	candidates := Decide("2026-08-28", signals, nil, cfg)
	require.Len(t, candidates, 2)
	assert.Equal(t, "BBB", candidates[0].Symbol)
	assert.Equal(t, "AAA", candidates[1].Symbol)
	assert.Equal(t, models.OpenLong, candidates[0].Direction)
}

func TestDecideTiesBreakBySymbol(t *testing.T) {
	cfg := config.DefaultStrategy()
	signals := []models.RsiSnapshot{
		snap("ZZZ", rsiPtr(20), 100),
		snap("AAA", rsiPtr(20), 50),
	}

	candidates := Decide("2026-08-28", signals, nil, cfg)
	require.Len(t, candidates, 2)
	assert.Equal(t, "AAA", candidates[0].Symbol)
	assert.Equal(t, "ZZZ", candidates[1].Symbol)
}

func TestDecideIsDeterministic(t *testing.T) {
	cfg := config.DefaultStrategy()
	signals := []models.RsiSnapshot{
		snap("AAA", rsiPtr(25), 100),
		snap("BBB", rsiPtr(19), 40),
		snap("CCC", rsiPtr(22), 70),
	}

	first := Decide("2026-08-28", signals, nil, cfg)
	second := Decide("2026-08-28", signals, nil, cfg)
	assert.Equal(t, first, second)
}

func TestDecideSkipsSymbolsWithoutRSI(t *testing.T) {
	cfg := config.DefaultStrategy()
	candidates := Decide("2026-08-28", []models.RsiSnapshot{snap("AAA", nil, 100)}, nil, cfg)
	assert.Empty(t, candidates)
}

func TestDecideMandatoryStopLossSortsFirst(t *testing.T) {
	cfg := config.DefaultStrategy()
	positions := []models.Position{
		{Symbol: "DDD", Qty: 10, AvgPrice: 100, EntryDate: "2026-08-20", OriginalQty: 10},
	}
	signals := []models.RsiSnapshot{
		snap("AAA", rsiPtr(2), 100), // entry, strength 24
		snap("DDD", rsiPtr(35), 84), // -16% stop loss, strength 16
	}

	candidates := Decide("2026-08-28", signals, positions, cfg)
	require.Len(t, candidates, 2)
	assert.Equal(t, "DDD", candidates[0].Symbol)
	assert.True(t, candidates[0].Mandatory)
	assert.Equal(t, models.Exit, candidates[0].Direction)
	assert.False(t, candidates[1].Mandatory)
}

func TestDecidePositionRules(t *testing.T) {
	cfg := config.DefaultStrategy()
	entry := time.Now().AddDate(0, 0, -5).Format(models.DateLayout)

	cases := []struct {
		name      string
		rsi       *float64
		price     float64
		want      models.Direction
		mandatory bool
	}{
		{"stop loss", rsiPtr(30), 84, models.Exit, true},       // -16%
		{"take profit", rsiPtr(70), 112, models.Exit, false},   // +12%
		{"neutral band", rsiPtr(50), 102, models.Exit, false},  // +2%, RSI in [40,60]
		{"average down", rsiPtr(30), 89, models.AddToPosition, false}, // -11%
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pos := []models.Position{
				{Symbol: "AAA", Qty: 10, AvgPrice: 100, EntryDate: entry, OriginalQty: 10},
			}
			candidates := Decide("2026-08-28", []models.RsiSnapshot{snap("AAA", tc.rsi, tc.price)}, pos, cfg)
			require.Len(t, candidates, 1)
			assert.Equal(t, tc.want, candidates[0].Direction)
			assert.Equal(t, tc.mandatory, candidates[0].Mandatory)
		})
	}
}

func TestDecideHoldDurationExit(t *testing.T) {
	cfg := config.DefaultStrategy()
	entry := "2026-07-01" // 58 days before review, past the 30 day max
	pos := []models.Position{
		{Symbol: "AAA", Qty: 10, AvgPrice: 100, EntryDate: entry, OriginalQty: 10},
	}
	// +2% with RSI outside the neutral band, so only the hold rule fires.
	candidates := Decide("2026-08-28", []models.RsiSnapshot{snap("AAA", rsiPtr(35), 102)}, pos, cfg)
	require.Len(t, candidates, 1)
	assert.Equal(t, models.Exit, candidates[0].Direction)
	assert.False(t, candidates[0].Mandatory)
}

func TestDecideNoAddPastMaxAdds(t *testing.T) {
	cfg := config.DefaultStrategy()
	pos := []models.Position{
		{Symbol: "AAA", Qty: 20, AvgPrice: 100, EntryDate: "2026-08-20", Adds: 2, OriginalQty: 10},
	}
	candidates := Decide("2026-08-28", []models.RsiSnapshot{snap("AAA", rsiPtr(30), 89)}, pos, cfg)
	assert.Empty(t, candidates)
}

func TestDecideShortEntryWhenEnabled(t *testing.T) {
	cfg := config.DefaultStrategy()
	signals := []models.RsiSnapshot{snap("AAA", rsiPtr(85), 100)}

	assert.Empty(t, Decide("2026-08-28", signals, nil, cfg))

	cfg.Entry.ShortingEnabled = true
	candidates := Decide("2026-08-28", signals, nil, cfg)
	require.Len(t, candidates, 1)
	assert.Equal(t, models.OpenShort, candidates[0].Direction)
}
