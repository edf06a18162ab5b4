package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsidesk/internal/config"
	"rsidesk/internal/models"
)

func openCandidate(symbol string, rsi, price float64) models.CandidateIntent {
	return models.CandidateIntent{
		Symbol:    symbol,
		Direction: models.OpenLong,
		RSI:       rsi,
		Price:     price,
	}
}

func TestSizeBaselineAndExtremeAllocation(t *testing.T) {
	cfg := config.DefaultStrategy()
	in := SizeInput{
		Candidates: []models.CandidateIntent{
			openCandidate("AAA", 22, 50), // primary: 2000 -> 40 shares
			openCandidate("BBB", 18, 50), // extreme: 4000 -> 80 shares
		},
		AvailableCash: 50000,
		Prices:        map[string]float64{"AAA": 50, "BBB": 50},
	}

	orders := Size(in, cfg)
	require.Len(t, orders, 2)
	assert.Equal(t, int64(40), orders[0].Qty)
	assert.Equal(t, int64(80), orders[1].Qty)
	assert.False(t, orders[0].Skipped())
}

func TestSizeSkipsWhenShareCountRoundsToZero(t *testing.T) {
	cfg := config.DefaultStrategy()
	in := SizeInput{
		Candidates:    []models.CandidateIntent{openCandidate("AAA", 22, 5000)},
		AvailableCash: 50000,
		Prices:        map[string]float64{"AAA": 5000},
	}

	orders := Size(in, cfg)
	require.Len(t, orders, 1)
	assert.True(t, orders[0].Skipped())
	assert.Zero(t, orders[0].Qty)
	assert.Contains(t, orders[0].SkipReason, "exceeds allocation")
}

func TestSizeSkipsWhenNoPrice(t *testing.T) {
	cfg := config.DefaultStrategy()
	in := SizeInput{
		Candidates:    []models.CandidateIntent{openCandidate("AAA", 22, 0)},
		AvailableCash: 50000,
		Prices:        map[string]float64{},
	}

	orders := Size(in, cfg)
	require.Len(t, orders, 1)
	assert.Contains(t, orders[0].SkipReason, "no price")
}

func TestSizeEnforcesPortfolioExposureCap(t *testing.T) {
	cfg := config.DefaultStrategy() // cap 0.30 * 100000 = 30000
	in := SizeInput{
		Candidates: []models.CandidateIntent{openCandidate("AAA", 22, 50)},
		Positions: []models.Position{
			{Symbol: "HELD", Qty: 285, AvgPrice: 100, EntryDate: "2026-08-01", OriginalQty: 285},
		},
		AvailableCash: 50000,
		Prices:        map[string]float64{"AAA": 50, "HELD": 100},
	}

	orders := Size(in, cfg)
	require.Len(t, orders, 1)
	assert.True(t, orders[0].Skipped())
	assert.Contains(t, orders[0].SkipReason, "exposure cap")
}

func TestSizeExitsFreeCapitalForLaterOpens(t *testing.T) {
	cfg := config.DefaultStrategy()
	in := SizeInput{
		Candidates: []models.CandidateIntent{
			openCandidate("AAA", 22, 50),
			{Symbol: "HELD", Direction: models.Exit, Mandatory: true},
		},
		Positions: []models.Position{
			{Symbol: "HELD", Qty: 100, AvgPrice: 100, EntryDate: "2026-08-01", OriginalQty: 100},
		},
		AvailableCash: 500,
		Prices:        map[string]float64{"AAA": 50, "HELD": 80},
	}

	orders := Size(in, cfg)
	require.Len(t, orders, 2)

	// The exit is processed first regardless of input position and sells
	// the full held quantity.
	assert.Equal(t, "HELD", orders[0].Symbol)
	assert.Equal(t, models.SideSell, orders[0].Side)
	assert.Equal(t, int64(100), orders[0].Qty)

	// 500 cash alone cannot fund the 2000 open; the 8000 exit proceeds can.
	assert.Equal(t, "AAA", orders[1].Symbol)
	assert.False(t, orders[1].Skipped())
	assert.Equal(t, int64(40), orders[1].Qty)
}

func TestSizeSkipsOnInsufficientCash(t *testing.T) {
	cfg := config.DefaultStrategy()
	in := SizeInput{
		Candidates:    []models.CandidateIntent{openCandidate("AAA", 22, 50)},
		AvailableCash: 500,
		Prices:        map[string]float64{"AAA": 50},
	}

	orders := Size(in, cfg)
	require.Len(t, orders, 1)
	assert.Contains(t, orders[0].SkipReason, "insufficient cash")
}

func TestSizeSectorCapFailsOpen(t *testing.T) {
	cfg := config.DefaultStrategy()
	cfg.MaxSectorExposurePct = 0.05 // 5000 per sector

	sectors := func(symbol string) (string, bool) {
		if symbol == "AAA" || symbol == "HELD" {
			return "Tech", true
		}
		return "", false
	}

	in := SizeInput{
		Candidates: []models.CandidateIntent{
			openCandidate("AAA", 22, 50), // Tech, would push sector past 5000
			openCandidate("BBB", 22, 50), // unclassified, sector check skipped
		},
		Positions: []models.Position{
			{Symbol: "HELD", Qty: 40, AvgPrice: 100, EntryDate: "2026-08-01", OriginalQty: 40},
		},
		AvailableCash: 50000,
		Prices:        map[string]float64{"AAA": 50, "BBB": 50, "HELD": 100},
		Sectors:       sectors,
	}

	orders := Size(in, cfg)
	require.Len(t, orders, 2)
	assert.Contains(t, orders[0].SkipReason, "sector cap")
	assert.False(t, orders[1].Skipped())
}

func TestSizeAddAllocationUsesOriginalQty(t *testing.T) {
	cfg := config.DefaultStrategy() // add fraction 0.5
	in := SizeInput{
		Candidates: []models.CandidateIntent{
			{Symbol: "AAA", Direction: models.AddToPosition, RSI: 30, Price: 45},
		},
		Positions: []models.Position{
			// Original fill was 40 @ 100; add target is 0.5 * 4000 = 2000.
			{Symbol: "AAA", Qty: 40, AvgPrice: 100, EntryDate: "2026-08-01", OriginalQty: 40},
		},
		AvailableCash: 50000,
		Prices:        map[string]float64{"AAA": 45},
	}

	orders := Size(in, cfg)
	require.Len(t, orders, 1)
	assert.Equal(t, models.SideBuy, orders[0].Side)
	assert.Equal(t, int64(44), orders[0].Qty) // floor(2000/45)
}

func TestSizeNeverDropsCandidates(t *testing.T) {
	cfg := config.DefaultStrategy()
	in := SizeInput{
		Candidates: []models.CandidateIntent{
			openCandidate("AAA", 22, 0),
			openCandidate("BBB", 22, 5000),
			{Symbol: "GONE", Direction: models.Exit},
		},
		AvailableCash: 100,
		Prices:        map[string]float64{"BBB": 5000},
	}

	orders := Size(in, cfg)
	assert.Len(t, orders, len(in.Candidates))
	for _, o := range orders {
		assert.True(t, o.Skipped(), "%s should carry a skip reason", o.Symbol)
	}
}
