package trader

import "solana-trade-bot-go/internal/models"

const baselineScore = 50

// Score rates a token 0-100 on trend strength. Every adjustment applies independently and the
// sum is clamped at the end.
func Score(t models.TokenInfo) int {
	score := baselineScore

	// 5m buy pressure
	if r, ok := t.BuyRatio(); ok {
		switch {
		case r >= 0.7:
			score += 20
		case r >= 0.6:
			score += 10
		case r < 0.4:
			score -= 15
		}
	}

	// momentum
	if t.PriceChange5m > 5 {
		score += 10
	} else if t.PriceChange5m < -5 {
		score -= 10
	}
	if t.PriceChange1h > 10 {
		score += 10
	} else if t.PriceChange1h < -10 {
		score -= 10
	}

	// depth
	if t.LiquidityUSD > 200_000 {
		score += 10
	} else if t.LiquidityUSD > 100_000 {
		score += 5
	}

	// turnover
	if t.LiquidityUSD > 0 {
		velocity := t.Volume24h / t.LiquidityUSD
		if velocity > 5 {
			score += 5
		} else if velocity < 0.5 {
			score -= 5
		}
	}

	return max(0, min(100, score))
}
