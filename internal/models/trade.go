package models

import "time"

// Trade log actions.
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
)

// TradeLogEntry is an immutable record of a buy or sell. Sell entries carry the realized P&L.
type TradeLogEntry struct {
	Action     string    `json:"action"` // "buy" or "sell"
	Token      string    `json:"token"`
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price,omitempty"`
	SOLAmount  float64   `json:"sol_amount,omitempty"`
	EntryPrice float64   `json:"entry_price,omitempty"`
	ExitPrice  float64   `json:"exit_price,omitempty"`
	SOLIn      float64   `json:"sol_in,omitempty"`
	SOLOut     float64   `json:"sol_out,omitempty"`
	PnLSOL     *float64  `json:"pnl_sol,omitempty"`
	PnLPct     *float64  `json:"pnl_pct,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Time       time.Time `json:"time"`
}

// Stats are the aggregate counters updated on every close.
type Stats struct {
	TotalPnLSOL float64 `json:"total_pnl_sol"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
}

// TotalTrades is the number of closed positions.
func (s Stats) TotalTrades() int {
	return s.Wins + s.Losses
}
