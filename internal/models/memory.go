package models

import "time"

// Lesson is a piece of learned knowledge, either user supplied or derived from a trade outcome.
type Lesson struct {
	Text   string    `json:"lesson"`
	Source string    `json:"source"`
	Time   time.Time `json:"time"`
}

// AvoidEntry blocks a token address from being traded.
type AvoidEntry struct {
	Address string    `json:"address"`
	Reason  string    `json:"reason"`
	Time    time.Time `json:"time"`
}

// UserNote is guidance from the operator.
type UserNote struct {
	Text string    `json:"note"`
	Time time.Time `json:"time"`
}

// TradeReview is the post-trade record used for auto-learning and performance summaries.
type TradeReview struct {
	Token        string    `json:"token"`
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"`
	PnLSOL       float64   `json:"pnl_sol"`
	PnLPct       float64   `json:"pnl_pct"`
	TrendScore   int       `json:"trend_score"`
	BuyRatio     float64   `json:"buy_ratio"`
	LiquidityUSD float64   `json:"liquidity_usd"`
	HoldTimeMin  float64   `json:"hold_time_min"`
	Reason       string    `json:"reason"`
	Time         time.Time `json:"time"`
}
