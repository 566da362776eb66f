package models

import "time"

// PositionStatus is the lifecycle state of a position. Anything but open is terminal.
type PositionStatus string

const (
	StatusOpen       PositionStatus = "open"
	StatusClosed     PositionStatus = "closed"
	StatusStoppedOut PositionStatus = "stopped_out"
	StatusTookProfit PositionStatus = "took_profit"
)

// IsTerminal reports whether s is one of the closing statuses.
func (s PositionStatus) IsTerminal() bool {
	switch s {
	case StatusClosed, StatusStoppedOut, StatusTookProfit:
		return true
	}
	return false
}

// Position is an open or closed holding of a single token.
type Position struct {
	TokenAddress    string         `json:"token_address"`
	Symbol          string         `json:"symbol"`
	EntryPriceUSD   float64        `json:"entry_price_usd"`
	AmountTokens    float64        `json:"amount_tokens"`
	AmountSOLIn     float64        `json:"amount_sol_in"`
	EntryTime       time.Time      `json:"entry_time"`
	StopLossPrice   float64        `json:"stop_loss_price"`
	TakeProfitPrice float64        `json:"take_profit_price"`
	Status          PositionStatus `json:"status"`
}

// IsOpen reports whether the position has not been closed yet.
func (p Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// PnLPct returns the percentage move from entry to price, or 0 without an entry price.
func (p Position) PnLPct(price float64) float64 {
	if p.EntryPriceUSD == 0 {
		return 0
	}
	return (price - p.EntryPriceUSD) / p.EntryPriceUSD * 100
}
