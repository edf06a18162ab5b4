package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"rsidesk/internal/config"
	"rsidesk/internal/models"
	"rsidesk/internal/portfolio"
	"rsidesk/internal/review"
	"rsidesk/internal/signal"
)

// UI styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	orderStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2).
			Width(72)

	buyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	sellStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)

	gainStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	lossStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))
)

func sideStyled(side models.Side) string {
	if side == models.SideBuy {
		return buyStyle.Render(strings.ToUpper(string(side)))
	}
	return sellStyle.Render(strings.ToUpper(string(side)))
}

func pctStyled(pct float64) string {
	s := fmt.Sprintf("%+.2f%%", pct)
	if pct >= 0 {
		return gainStyle.Render(s)
	}
	return lossStyle.Render(s)
}

// RenderOrder renders one actionable order for the approval prompt.
func RenderOrder(order models.SizedOrder, idx, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %d of %d\n", idx, total)
	fmt.Fprintf(&b, "%s  %s %d shares @ ~%.2f  (%s)\n",
		order.Symbol, sideStyled(order.Side), order.Qty, order.EstimatedPrice, order.Direction)
	fmt.Fprintf(&b, "Estimated value: %.2f\n", float64(order.Qty)*order.EstimatedPrice)
	fmt.Fprintf(&b, "Reason: %s", order.Rationale)
	return orderStyle.Render(b.String())
}

// RenderSkipped renders an order the sizing guard could not size.
func RenderSkipped(order models.SizedOrder) string {
	return mutedStyle.Render(fmt.Sprintf("  skipped %s %s (%s): %s",
		order.Side, order.Symbol, order.Direction, order.SkipReason))
}

// PrintRefreshResult prints the outcome of a signal refresh run.
func PrintRefreshResult(r signal.Result) {
	fmt.Println(titleStyle.Render("Signal refresh " + r.SnapshotDate))
	fmt.Printf("  symbols: %d   with RSI: %d   new bars: %d\n", r.Symbols, r.WithRSI, r.BarsInserted)
	if len(r.Failed) > 0 {
		fmt.Println(warnStyle.Render("  failed: " + strings.Join(r.Failed, ", ")))
	}
}

// PrintSessionSummary prints the outcome of a review session.
func PrintSessionSummary(s review.Summary) {
	fmt.Println(titleStyle.Render("Review session " + s.SnapshotDate))
	fmt.Printf("  candidates: %d   filled: %d   unfilled: %d   declined: %d   skipped by guard: %d\n",
		s.Candidates, s.Filled, s.Unfilled, s.Declined, s.Skipped)
	if s.Pending > 0 {
		fmt.Println(warnStyle.Render(fmt.Sprintf("  %d order(s) still open - run `rsidesk reconcile`", s.Pending)))
	}
	if s.Halted {
		fmt.Println(mutedStyle.Render("  session halted by operator"))
	}
}

// PrintSyncReport prints what a portfolio sync changed.
func PrintSyncReport(r portfolio.SyncReport) {
	if r.Clean() {
		fmt.Println("Portfolio is in sync with the broker.")
		return
	}
	fmt.Println(titleStyle.Render("Portfolio sync"))
	fmt.Printf("  corrected: %d   added: %d   removed: %d\n", r.Updated, r.Added, r.Removed)
}

// PrintPortfolio prints open positions marked against the latest snapshot
// closes, plus total exposure against the configured cap.
func PrintPortfolio(positions []models.Position, prices map[string]float64, cfg config.Strategy) {
	if len(positions) == 0 {
		fmt.Println("No open positions.")
		return
	}

	fmt.Println(titleStyle.Render("Portfolio"))
	fmt.Printf("  %-8s %8s %10s %10s %12s %10s %6s %6s\n",
		"SYMBOL", "QTY", "AVG", "MARK", "VALUE", "UNRLZD", "DAYS", "ADDS")

	now := time.Now()
	exposure := 0.0
	for _, p := range positions {
		price := prices[p.Symbol]
		mv := p.MarketValue(price)
		exposure += mv

		mark := "-"
		unrlzd := mutedStyle.Render("-")
		if price > 0 {
			mark = fmt.Sprintf("%.2f", price)
			unrlzd = pctStyled(p.UnrealizedPct(price))
		}
		fmt.Printf("  %-8s %8d %10.2f %10s %12.2f %10s %6d %6d\n",
			p.Symbol, p.Qty, p.AvgPrice, mark, mv, unrlzd, p.HoldingDays(now), p.Adds)
	}

	limit := cfg.MaxPortfolioExposurePct * cfg.TotalCapital
	pct := 0.0
	if limit > 0 {
		pct = exposure / limit * 100
	}
	line := fmt.Sprintf("  exposure: %.2f of %.2f cap (%.1f%%)", exposure, limit, pct)
	if exposure > limit {
		fmt.Println(warnStyle.Render(line))
	} else {
		fmt.Println(mutedStyle.Render(line))
	}
}

// PrintTradeHistory prints recent trade records, newest first.
func PrintTradeHistory(trades []models.TradeRecord) {
	if len(trades) == 0 {
		fmt.Println("No trades recorded.")
		return
	}

	fmt.Println(titleStyle.Render("Trade history"))
	fmt.Printf("  %-12s %-8s %-5s %8s %10s %-10s %s\n",
		"DATE", "SYMBOL", "SIDE", "QTY", "PRICE", "STATUS", "ORDER")
	for _, t := range trades {
		fmt.Printf("  %-12s %-8s %-5s %8d %10.2f %-10s %s\n",
			t.TradeDate, t.Symbol, t.Side, t.Qty, t.Price, t.OrderStatus, t.BrokerOrderID)
	}
}

// PrintTradeLog prints the audit trail tail, newest first.
func PrintTradeLog(entries []models.TradeLogEntry) {
	if len(entries) == 0 {
		fmt.Println("Audit log is empty.")
		return
	}

	fmt.Println(titleStyle.Render("Audit log"))
	for _, e := range entries {
		qty := ""
		if e.Qty > 0 {
			qty = fmt.Sprintf(" %d @ %.2f", e.Qty, e.Price)
		}
		fmt.Printf("  %s  %-9s %-8s%s  %s\n",
			e.CreatedAt.Format("2006-01-02 15:04"), e.Status, e.Symbol, qty, e.Notes)
	}
}
