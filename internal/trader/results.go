package trader

import (
	"fmt"
	"strings"

	"solana-trade-bot-go/internal/models"
	"solana-trade-bot-go/internal/textfmt"
)

// Scan flags.
const (
	FlagLowLiquidity = "LOW_LIQ"
	FlagLowVolume    = "LOW_VOL"
)

const recentTrades = 10

// Candidate is a scored trending token.
type Candidate struct {
	Token   models.TokenInfo `json:"token"`
	Score   int              `json:"score"`
	BuyPct  float64          `json:"buy_pct"`
	Flags   []string         `json:"flags,omitempty"`
	AutoBuy bool             `json:"auto_buy"`
}

// ScanResult holds the top ranked candidates of a scan and any auto-buys it made.
type ScanResult struct {
	Trending     int         `json:"trending"`
	Candidates   []Candidate `json:"candidates"`
	AutoBought   []BuyResult `json:"auto_bought,omitempty"`
	BalanceSOL   float64     `json:"balance_sol"`
	SuggestedSOL float64     `json:"suggested_sol"`
	Autonomous   bool        `json:"autonomous"`
	DryRun       bool        `json:"dry_run"`
}

func (r *ScanResult) String() string {
	if r.Trending == 0 {
		return "No trending Solana tokens found right now."
	}

	lines := []string{"Trending Solana Meme Coins" + dryTag(r.DryRun) + ":", ""}
	for _, c := range r.Candidates {
		var flags, marker string
		if len(c.Flags) > 0 {
			flags = " [" + strings.Join(c.Flags, ", ") + "]"
		}
		if c.AutoBuy && r.Autonomous {
			marker = " >>> AUTO-BUY CANDIDATE"
		}
		t := c.Token
		lines = append(lines,
			fmt.Sprintf("  %s | Score: %d/100%s%s", t.Symbol, c.Score, flags, marker),
			fmt.Sprintf("    Addr: %s", t.Address),
			fmt.Sprintf("    Price: $%.8f | 5m: %+.1f%% | 1h: %+.1f%%", t.PriceUSD, t.PriceChange5m, t.PriceChange1h),
			fmt.Sprintf("    Vol24h: $%s | Liq: $%s", textfmt.Thousands(t.Volume24h), textfmt.Thousands(t.LiquidityUSD)),
			fmt.Sprintf("    5m: %d buys / %d sells (%.0f%% buy)", t.Buys5m, t.Sells5m, c.BuyPct),
		)
	}

	mode := "MANUAL"
	if r.Autonomous {
		mode = "AUTONOMOUS"
	}
	lines = append(lines,
		"",
		fmt.Sprintf("SOL balance: %.4f SOL", r.BalanceSOL),
		fmt.Sprintf("Suggested trade size: %g SOL", r.SuggestedSOL),
		fmt.Sprintf("Mode: %s%s", mode, dryTag(r.DryRun)),
	)

	if len(r.AutoBought) > 0 {
		lines = append(lines, "", fmt.Sprintf("AUTO-BOUGHT (%d):", len(r.AutoBought)))
		for _, b := range r.AutoBought {
			lines = append(lines, fmt.Sprintf("  %s: %s", b.Token.Symbol, b.headline()))
		}
	}
	return strings.Join(lines, "\n")
}

// BuyResult is an executed or blocked buy.
type BuyResult struct {
	Address       string           `json:"address"`
	Token         models.TokenInfo `json:"token"`
	AmountSOL     float64          `json:"amount_sol"`
	Score         int              `json:"score"`
	Reasons       []string         `json:"reasons,omitempty"`
	Quote         *models.Quote    `json:"quote,omitempty"`
	Position      *models.Position `json:"position,omitempty"`
	Signature     string           `json:"signature,omitempty"`
	StopLossPct   float64          `json:"stop_loss_pct"`
	TakeProfitPct float64          `json:"take_profit_pct"`
	DryRun        bool             `json:"dry_run"`
}

// Blocked reports whether the buy was refused.
func (r *BuyResult) Blocked() bool {
	return len(r.Reasons) > 0
}

func (r *BuyResult) headline() string {
	switch {
	case r.Blocked():
		return "Trade BLOCKED"
	case r.DryRun:
		return "DRY RUN BUY:"
	}
	return "BUY EXECUTED:"
}

func (r *BuyResult) String() string {
	if r.Blocked() {
		return fmt.Sprintf("Trade BLOCKED:\n  %s\nTrend score: %d/100", strings.Join(r.Reasons, "\n  "), r.Score)
	}

	lines := []string{
		r.headline(),
		fmt.Sprintf("  Token: %s (%s)", r.Token.Symbol, r.Address),
	}
	if r.DryRun {
		var out uint64
		if r.Quote != nil {
			out = r.Quote.OutAmount
		}
		lines = append(lines,
			fmt.Sprintf("  Spent: %g SOL | Received: ~%d tokens", r.AmountSOL, out),
			fmt.Sprintf("  Price: $%.8f | Score: %d/100", r.Token.PriceUSD, r.Score))
	} else {
		lines = append(lines,
			fmt.Sprintf("  Spent: %g SOL | Score: %d/100", r.AmountSOL, r.Score),
			fmt.Sprintf("  TX: %s", r.Signature))
	}
	lines = append(lines, fmt.Sprintf("  SL: -%g%% | TP: +%g%%", r.StopLossPct, r.TakeProfitPct))
	return strings.Join(lines, "\n")
}

// SellResult is an executed sell, or NoPosition when there was nothing to sell.
type SellResult struct {
	Address    string                `json:"address"`
	NoPosition bool                  `json:"no_position"`
	Position   models.Position       `json:"position"`
	Reason     models.PositionStatus `json:"reason"`
	SOLOut     float64               `json:"sol_out"`
	PnLSOL     float64               `json:"pnl_sol"`
	PnLPct     float64               `json:"pnl_pct"`
	HoldMin    float64               `json:"hold_min"`
	Signature  string                `json:"signature,omitempty"`
	DryRun     bool                  `json:"dry_run"`
}

func (r *SellResult) String() string {
	if r.NoPosition {
		return "No open position for " + r.Address
	}
	prefix := ""
	if r.DryRun {
		prefix = "DRY RUN "
	}
	return fmt.Sprintf("%sSELL EXECUTED:\n"+
		"  Token: %s (%s)\n"+
		"  SOL out: %.4f | PnL: %+.4f SOL (%+.1f%%)\n"+
		"  Held: %.0f min",
		prefix, r.Position.Symbol, r.Address, r.SOLOut, r.PnLSOL, r.PnLPct, r.HoldMin)
}

// SwapResult holds the outcome of whichever side was executed.
type SwapResult struct {
	Buy  *BuyResult  `json:"buy,omitempty"`
	Sell *SellResult `json:"sell,omitempty"`
}

func (r *SwapResult) String() string {
	if r.Buy != nil {
		return r.Buy.String()
	}
	if r.Sell != nil {
		return r.Sell.String()
	}
	return ""
}

// PricedPosition is an open position with its current price.
type PricedPosition struct {
	Position models.Position `json:"position"`
	Price    float64         `json:"price"`
}

// Exit is a triggered position and what happened to it.
type Exit struct {
	Position models.Position       `json:"position"`
	Reason   models.PositionStatus `json:"reason"`
	Price    float64               `json:"price"`
	PnLPct   float64               `json:"pnl_pct"`
	SOLOut   float64               `json:"sol_out"`
	HoldMin  float64               `json:"hold_min"`
	Sold     *SellResult           `json:"sold,omitempty"`
	Err      error                 `json:"-"`
}

// ExitReport is the result of an exit check.
type ExitReport struct {
	Checked int              `json:"checked"`
	Within  []PricedPosition `json:"within,omitempty"`
	Exits   []Exit           `json:"exits,omitempty"`
	DryRun  bool             `json:"dry_run"`
}

func (r *ExitReport) String() string {
	if r.Checked == 0 {
		return "No open positions to check."
	}
	if len(r.Exits) == 0 {
		lines := []string{"All positions within limits.", ""}
		for _, p := range r.Within {
			lines = append(lines, fmt.Sprintf("  %s: $%.8f (%+.1f%%)", p.Position.Symbol, p.Price, p.Position.PnLPct(p.Price)))
		}
		return strings.Join(lines, "\n")
	}

	prefix := ""
	if r.DryRun {
		prefix = "DRY RUN "
	}
	lines := []string{"Exit Results:"}
	for _, x := range r.Exits {
		sym := x.Position.Symbol
		switch {
		case x.Err != nil && !r.DryRun:
			lines = append(lines, fmt.Sprintf("AUTO-SELL FAILED: %s | %v", sym, x.Err))
		case x.Err != nil:
			lines = append(lines, fmt.Sprintf("EXIT FAILED: %s | %s | %v", sym, x.Reason, x.Err))
		case x.Sold != nil:
			headline, _, _ := strings.Cut(x.Sold.String(), "\n")
			lines = append(lines, fmt.Sprintf("AUTO-SOLD: %s | %s | %s", sym, x.Reason, headline))
		default:
			lines = append(lines, fmt.Sprintf("%sEXIT: %s | %s | %+.1f%% | ~%.4f SOL | held %.0fm",
				prefix, sym, x.Reason, x.PnLPct, x.SOLOut, x.HoldMin))
		}
	}
	return strings.Join(lines, "\n")
}

// Portfolio is the wallet balance, its token holdings and the SOL committed to open positions.
type Portfolio struct {
	Wallet          string                `json:"wallet"`
	BalanceSOL      float64               `json:"balance_sol"`
	Holdings        []models.TokenHolding `json:"holdings"`
	HoldingsErr     string                `json:"holdings_error,omitempty"`
	Positions       []models.Position     `json:"positions"`
	InvestedSOL     float64               `json:"invested_sol"`
	MaxPortfolioSOL float64               `json:"max_portfolio_sol"`
}

func (p *Portfolio) String() string {
	lines := []string{
		fmt.Sprintf("Wallet: %s", shortWallet(p.Wallet)),
		fmt.Sprintf("SOL: %.4f", p.BalanceSOL),
	}
	if p.HoldingsErr != "" {
		lines = append(lines, "Tokens: unavailable ("+p.HoldingsErr+")")
	} else {
		lines = append(lines, fmt.Sprintf("Tokens (%d):", len(p.Holdings)))
		for _, h := range p.Holdings[:min(maxPortfolioHoldings, len(p.Holdings))] {
			lines = append(lines, fmt.Sprintf("  %s: %s (~$%s)", h.Symbol, textfmt.Amount(h.Balance), textfmt.Amount(h.ValueUSD)))
		}
	}
	lines = append(lines, fmt.Sprintf("Open positions (%d):", len(p.Positions)))
	for _, pos := range p.Positions {
		lines = append(lines, fmt.Sprintf("  %s: %.0f tokens for %.3f SOL", pos.Symbol, pos.AmountTokens, pos.AmountSOLIn))
	}
	lines = append(lines, fmt.Sprintf("Invested: %.3f SOL / Max: %g SOL", p.InvestedSOL, p.MaxPortfolioSOL))
	return strings.Join(lines, "\n")
}

func formatHistory(history []models.TradeLogEntry, stats string) string {
	if len(history) == 0 {
		return "No positions and no trade history."
	}
	lines := []string{"No open positions.", "", "Recent trades:"}
	for _, t := range history {
		var pnl string
		if t.PnLSOL != nil {
			pnl = fmt.Sprintf(" (%+.4f SOL)", *t.PnLSOL)
		}
		lines = append(lines, fmt.Sprintf("  %s %s%s", strings.ToUpper(t.Action), t.Symbol, pnl))
	}
	lines = append(lines, "", stats)
	return strings.Join(lines, "\n")
}

func shortWallet(w string) string {
	if len(w) <= 12 {
		return w
	}
	return w[:8] + "..." + w[len(w)-4:]
}

func dryTag(dryRun bool) string {
	if dryRun {
		return " [DRY RUN]"
	}
	return ""
}
