package positions

import (
	"fmt"
	"strings"
)

// FormatPositionsReport renders the open positions, with the current move when a price is known.
func (m *Manager) FormatPositionsReport(prices map[string]float64) string {
	open := m.OpenPositions()
	if len(open) == 0 {
		return "No open positions."
	}

	now := m.now()
	lines := []string{fmt.Sprintf("Open Positions (%d):", len(open))}
	for _, p := range open {
		var pnl string
		if price, ok := prices[p.TokenAddress]; ok {
			pnl = fmt.Sprintf(" | Now: $%.8f (%+.1f%%)", price, p.PnLPct(price))
		}
		ageMin := int(now.Sub(p.EntryTime).Minutes())
		lines = append(lines, fmt.Sprintf("  %s: %.3f SOL @ $%.8f | SL: $%.8f | TP: $%.8f%s | %dm ago",
			p.Symbol, p.AmountSOLIn, p.EntryPriceUSD, p.StopLossPrice, p.TakeProfitPrice, pnl, ageMin))
	}
	return strings.Join(lines, "\n")
}

// FormatStats renders the aggregate trading statistics.
func (m *Manager) FormatStats() string {
	s := m.Stats()
	return fmt.Sprintf("Trading Stats:\n"+
		"  Trades: %d | Wins: %d | Losses: %d\n"+
		"  Win Rate: %.1f%%\n"+
		"  Total PnL: %+.4f SOL",
		s.TotalTrades, s.Wins, s.Losses, s.WinRatePct, s.TotalPnLSOL)
}
