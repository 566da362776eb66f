package trader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"solana-trade-bot-go/internal/config"
	"solana-trade-bot-go/internal/models"
	"solana-trade-bot-go/internal/textfmt"
)

// SafetyResult is the outcome of the pre-trade checks. A rejection is a decision, not an error.
type SafetyResult struct {
	Safe    bool     `json:"safe"`
	Reasons []string `json:"reasons,omitempty"`
	Score   int      `json:"score"`
}

func (r SafetyResult) String() string {
	if r.Safe {
		return fmt.Sprintf("PASS (score: %d/100)", r.Score)
	}
	return "BLOCKED: " + strings.Join(r.Reasons, "; ")
}

// CheckTokenSafety runs every pre-trade check and collects all failing reasons. A holder lookup
// failure blocks the trade. The trend score is always computed.
func CheckTokenSafety(ctx context.Context, token models.TokenInfo, risk config.Risk, book PositionBook,
	holders HolderSource, amountSOL float64, now time.Time) SafetyResult {
	var reasons []string

	if token.LiquidityUSD < risk.MinLiquidityUSD {
		reasons = append(reasons, fmt.Sprintf("Liquidity $%s < min $%s",
			textfmt.Thousands(token.LiquidityUSD), textfmt.Thousands(risk.MinLiquidityUSD)))
	}

	if token.Volume24h < risk.MinVolume24hUSD {
		reasons = append(reasons, fmt.Sprintf("24h vol $%s < min $%s",
			textfmt.Thousands(token.Volume24h), textfmt.Thousands(risk.MinVolume24hUSD)))
	}

	if amountSOL > risk.MaxPositionSOL {
		reasons = append(reasons, fmt.Sprintf("Position %g SOL > max %g SOL", amountSOL, risk.MaxPositionSOL))
	}

	invested := book.TotalSOLInvested()
	if invested+amountSOL > risk.MaxPortfolioSOL {
		reasons = append(reasons, fmt.Sprintf("Portfolio would be %.2f SOL > max %g SOL", invested+amountSOL, risk.MaxPortfolioSOL))
	}

	if last, ok := book.LastTradeTime(token.Address); ok {
		cooldown := time.Duration(risk.CooldownSeconds) * time.Second
		if elapsed := now.Sub(last); elapsed < cooldown {
			remaining := int((cooldown - elapsed).Seconds())
			reasons = append(reasons, fmt.Sprintf("Cooldown: %ds remaining for %s", remaining, token.Symbol))
		}
	}

	if len(book.PositionsForToken(token.Address)) > 0 {
		reasons = append(reasons, fmt.Sprintf("Already have open position for %s", token.Symbol))
	}

	stats, err := holders.GetHolderStats(ctx, token.Address)
	if err != nil {
		reasons = append(reasons, fmt.Sprintf("Holder check failed: %v", err))
	} else {
		if stats.Count < risk.MinHolderCount {
			reasons = append(reasons, fmt.Sprintf("Only %d holders < min %d", stats.Count, risk.MinHolderCount))
		}
		if stats.TopHolderPct > risk.MaxTopHolderPct {
			reasons = append(reasons, fmt.Sprintf("Top holder %.1f%% > max %g%%", stats.TopHolderPct, risk.MaxTopHolderPct))
		}
	}

	return SafetyResult{
		Safe:    len(reasons) == 0,
		Reasons: reasons,
		Score:   Score(token),
	}
}
