// Package strategy contains the decision engine and the exposure/sizing
// guard. Both are pure: identical inputs produce identical ordered outputs,
// and neither touches storage or the network.
package strategy

import (
	"fmt"
	"math"
	"sort"
	"time"

	"rsidesk/internal/config"
	"rsidesk/internal/models"
)

// Decide evaluates the latest snapshot per symbol against the open
// positions and returns the ordered candidate list for the review date.
//
// Ordering: mandatory stop-loss exits first, then |signal strength|
// descending, ties broken by symbol ascending.
func Decide(reviewDate string, signals []models.RsiSnapshot, positions []models.Position, cfg config.Strategy) []models.CandidateIntent {
	asOf, err := time.Parse(models.DateLayout, reviewDate)
	if err != nil {
		asOf = time.Time{}
	}

	posBySymbol := make(map[string]models.Position, len(positions))
	for _, p := range positions {
		posBySymbol[p.Symbol] = p
	}

	var candidates []models.CandidateIntent
	for _, sig := range signals {
		pos, held := posBySymbol[sig.Symbol]
		switch {
		case !held:
			if c, ok := entryCandidate(sig, cfg); ok {
				candidates = append(candidates, c)
			}
		case pos.Qty > 0:
			if c, ok := positionCandidate(sig, pos, asOf, cfg); ok {
				candidates = append(candidates, c)
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Mandatory != b.Mandatory {
			return a.Mandatory
		}
		sa, sb := math.Abs(a.SignalStrength), math.Abs(b.SignalStrength)
		if sa != sb {
			return sa > sb
		}
		return a.Symbol < b.Symbol
	})

	return candidates
}

// entryCandidate applies the flat-symbol rules. A symbol with no RSI value
// (insufficient history) yields no candidate; that is not an error.
func entryCandidate(sig models.RsiSnapshot, cfg config.Strategy) (models.CandidateIntent, bool) {
	if sig.RSI == nil {
		return models.CandidateIntent{}, false
	}
	rsi := *sig.RSI

	if rsi <= cfg.Entry.Primary {
		return models.CandidateIntent{
			Symbol:         sig.Symbol,
			Direction:      models.OpenLong,
			Rationale:      fmt.Sprintf("oversold: RSI %.2f <= %.2f", rsi, cfg.Entry.Primary),
			SignalStrength: cfg.Entry.Primary - rsi,
			RSI:            rsi,
			Price:          sig.Price,
		}, true
	}

	if cfg.Entry.ShortingEnabled && rsi >= cfg.Entry.ShortThreshold() {
		return models.CandidateIntent{
			Symbol:         sig.Symbol,
			Direction:      models.OpenShort,
			Rationale:      fmt.Sprintf("overbought: RSI %.2f >= %.2f", rsi, cfg.Entry.ShortThreshold()),
			SignalStrength: rsi - cfg.Entry.ShortThreshold(),
			RSI:            rsi,
			Price:          sig.Price,
		}, true
	}

	return models.CandidateIntent{}, false
}

// positionCandidate applies the open-long rules. Exit triggers win over
// averaging down; the stop-loss exit is mandatory and checked before
// anything else.
func positionCandidate(sig models.RsiSnapshot, pos models.Position, asOf time.Time, cfg config.Strategy) (models.CandidateIntent, bool) {
	unrealized := pos.UnrealizedPct(sig.Price)

	if unrealized <= cfg.Exit.StopLossPct {
		return models.CandidateIntent{
			Symbol:         sig.Symbol,
			Direction:      models.Exit,
			Rationale:      fmt.Sprintf("stop-loss: %.2f%% <= %.2f%%", unrealized, cfg.Exit.StopLossPct),
			SignalStrength: unrealized,
			Mandatory:      true,
			RSI:            rsiOrNaN(sig),
			Price:          sig.Price,
		}, true
	}

	if unrealized >= cfg.Exit.TakeProfitPct {
		return models.CandidateIntent{
			Symbol:         sig.Symbol,
			Direction:      models.Exit,
			Rationale:      fmt.Sprintf("take-profit: %.2f%% >= %.2f%%", unrealized, cfg.Exit.TakeProfitPct),
			SignalStrength: unrealized,
			RSI:            rsiOrNaN(sig),
			Price:          sig.Price,
		}, true
	}

	if sig.RSI != nil && *sig.RSI >= cfg.Exit.NeutralLow && *sig.RSI <= cfg.Exit.NeutralHigh {
		return models.CandidateIntent{
			Symbol:         sig.Symbol,
			Direction:      models.Exit,
			Rationale:      fmt.Sprintf("RSI %.2f back in neutral band [%.0f,%.0f]", *sig.RSI, cfg.Exit.NeutralLow, cfg.Exit.NeutralHigh),
			SignalStrength: unrealized,
			RSI:            *sig.RSI,
			Price:          sig.Price,
		}, true
	}

	if cfg.Exit.HoldMaxDays > 0 && !asOf.IsZero() {
		if days := pos.HoldingDays(asOf); days > cfg.Exit.HoldMaxDays {
			return models.CandidateIntent{
				Symbol:         sig.Symbol,
				Direction:      models.Exit,
				Rationale:      fmt.Sprintf("held %dd > max %dd", days, cfg.Exit.HoldMaxDays),
				SignalStrength: unrealized,
				RSI:            rsiOrNaN(sig),
				Price:          sig.Price,
			}, true
		}
	}

	ad := cfg.AveragingDown
	if ad.Enabled && unrealized <= ad.TriggerPct && pos.Adds < ad.MaxAdds {
		return models.CandidateIntent{
			Symbol:         sig.Symbol,
			Direction:      models.AddToPosition,
			Rationale:      fmt.Sprintf("average down: %.2f%% <= %.2f%%, add %d/%d", unrealized, ad.TriggerPct, pos.Adds+1, ad.MaxAdds),
			SignalStrength: ad.TriggerPct - unrealized,
			RSI:            rsiOrNaN(sig),
			Price:          sig.Price,
		}, true
	}

	return models.CandidateIntent{}, false
}

func rsiOrNaN(sig models.RsiSnapshot) float64 {
	if sig.RSI == nil {
		return math.NaN()
	}
	return *sig.RSI
}
