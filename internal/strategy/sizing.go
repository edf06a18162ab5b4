package strategy

import (
	"fmt"
	"math"

	"rsidesk/internal/config"
	"rsidesk/internal/models"
)

// SectorLookup resolves a symbol to its sector. ok=false disables the
// sector exposure check for that symbol only (fail open, not closed).
type SectorLookup func(symbol string) (sector string, ok bool)

// SizeInput is the full state the guard needs for one pass. Prices carries
// the estimated execution price per symbol (live quote when the market is
// open, otherwise the snapshot close).
type SizeInput struct {
	Candidates    []models.CandidateIntent
	Positions     []models.Position
	AvailableCash float64
	Prices        map[string]float64
	Sectors       SectorLookup
}

// Size converts the priority-ordered candidates into sized orders in a
// single left-to-right pass. Exits are processed first regardless of their
// input position and are never capped; the capital they free is available
// to later opening candidates. Candidates the guard cannot size are emitted
// with qty=0 and a skip reason, never dropped, so the operator can see why.
func Size(in SizeInput, cfg config.Strategy) []models.SizedOrder {
	posBySymbol := make(map[string]models.Position, len(in.Positions))
	exposure := 0.0
	sectorExposure := make(map[string]float64)
	for _, p := range in.Positions {
		posBySymbol[p.Symbol] = p
		mv := p.MarketValue(in.Prices[p.Symbol])
		exposure += mv
		if in.Sectors != nil {
			if sector, ok := in.Sectors(p.Symbol); ok {
				sectorExposure[sector] += mv
			}
		}
	}

	var exits, opens []models.CandidateIntent
	for _, c := range in.Candidates {
		if c.Direction == models.Exit {
			exits = append(exits, c)
		} else {
			opens = append(opens, c)
		}
	}

	cash := in.AvailableCash
	orders := make([]models.SizedOrder, 0, len(in.Candidates))

	for _, c := range exits {
		pos, held := posBySymbol[c.Symbol]
		if !held {
			orders = append(orders, skipped(c, models.SideSell, "no held position to exit"))
			continue
		}
		price := in.Prices[c.Symbol]
		// A market exit does not need a price estimate to be actionable,
		// but without one its freed capital cannot be projected.
		proceeds := float64(pos.Qty) * price
		exposure -= pos.MarketValue(price)
		cash += proceeds
		if in.Sectors != nil {
			if sector, ok := in.Sectors(c.Symbol); ok {
				sectorExposure[sector] -= pos.MarketValue(price)
			}
		}
		orders = append(orders, models.SizedOrder{
			Symbol:         c.Symbol,
			Side:           models.SideSell,
			Direction:      c.Direction,
			Qty:            pos.Qty,
			EstimatedPrice: price,
			Rationale:      c.Rationale,
		})
	}

	committed := 0.0
	maxExposure := cfg.MaxPortfolioExposurePct * cfg.TotalCapital

	for _, c := range opens {
		side := models.SideBuy
		if c.Direction == models.OpenShort {
			side = models.SideSell
		}

		price := in.Prices[c.Symbol]
		if price <= 0 {
			orders = append(orders, skipped(c, side, "no price available for sizing"))
			continue
		}

		dollars := allocation(c, posBySymbol, cfg)
		qty := int64(math.Floor(dollars / price))
		if qty == 0 {
			orders = append(orders, skipped(c, side, fmt.Sprintf("price %.2f exceeds allocation %.2f", price, dollars)))
			continue
		}
		cost := float64(qty) * price

		if exposure+committed+cost > maxExposure {
			orders = append(orders, skipped(c, side, fmt.Sprintf("would exceed portfolio exposure cap %.0f", maxExposure)))
			continue
		}

		if in.Sectors != nil && cfg.MaxSectorExposurePct > 0 {
			if sector, ok := in.Sectors(c.Symbol); ok {
				sectorCap := cfg.MaxSectorExposurePct * cfg.TotalCapital
				if sectorExposure[sector]+cost > sectorCap {
					orders = append(orders, skipped(c, side, fmt.Sprintf("would exceed %s sector cap %.0f", sector, sectorCap)))
					continue
				}
			}
		}

		if cost > cash {
			orders = append(orders, skipped(c, side, fmt.Sprintf("insufficient cash: need %.2f, have %.2f", cost, cash)))
			continue
		}

		cash -= cost
		committed += cost
		if in.Sectors != nil {
			if sector, ok := in.Sectors(c.Symbol); ok {
				sectorExposure[sector] += cost
			}
		}
		orders = append(orders, models.SizedOrder{
			Symbol:         c.Symbol,
			Side:           side,
			Direction:      c.Direction,
			Qty:            qty,
			EstimatedPrice: price,
			Rationale:      c.Rationale,
		})
	}

	return orders
}

// allocation returns the dollar target for an opening or adding candidate.
// Opens scale the baseline by the extreme/primary multiplier; adds take the
// configured fraction of the original position's cost basis.
func allocation(c models.CandidateIntent, positions map[string]models.Position, cfg config.Strategy) float64 {
	if c.Direction == models.AddToPosition {
		pos, held := positions[c.Symbol]
		if !held {
			return 0
		}
		return cfg.AveragingDown.AddFraction * float64(pos.OriginalQty) * pos.AvgPrice
	}

	dollars := cfg.BaselineDollars
	switch {
	case !math.IsNaN(c.RSI) && c.RSI < cfg.Entry.Extreme:
		dollars *= cfg.Entry.ExtremeMultiplier
	case cfg.Entry.PrimaryMultiplier > 0:
		dollars *= cfg.Entry.PrimaryMultiplier
	}
	return dollars
}

func skipped(c models.CandidateIntent, side models.Side, reason string) models.SizedOrder {
	return models.SizedOrder{
		Symbol:         c.Symbol,
		Side:           side,
		Direction:      c.Direction,
		Qty:            0,
		EstimatedPrice: c.Price,
		Rationale:      c.Rationale,
		SkipReason:     reason,
	}
}
