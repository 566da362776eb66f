package trader

import (
	"context"
	"time"

	"solana-trade-bot-go/internal/models"
)

// MarketData provides token market snapshots.
type MarketData interface {
	FetchTokenInfo(ctx context.Context, addresses []string) ([]models.TokenInfo, error)
	FetchTrending(ctx context.Context) ([]models.TokenInfo, error)
}

// Router quotes and builds swaps.
type Router interface {
	Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*models.Quote, error)
	ExecuteSwap(ctx context.Context, quote *models.Quote, wallet string) (*models.SwapReceipt, error)
}

// HolderSource reports the holder distribution of a token.
type HolderSource interface {
	GetHolderStats(ctx context.Context, mint string) (models.HolderStats, error)
}

// Chain is the on-chain side: balances, holders and transaction submission.
type Chain interface {
	HolderSource
	GetBalance(ctx context.Context, wallet string) (float64, error)
	// GetTokenHoldings lists the fungible tokens with a positive balance held by wallet.
	GetTokenHoldings(ctx context.Context, wallet string) ([]models.TokenHolding, error)
	// SignAndSubmit signs a base64 encoded unsigned transaction with the wallet key and sends it.
	SignAndSubmit(ctx context.Context, swapTransaction string) (string, error)
}

// PositionBook is the read side of the position manager consulted by the safety gate.
type PositionBook interface {
	TotalSOLInvested() float64
	LastTradeTime(token string) (time.Time, bool)
	PositionsForToken(token string) []models.Position
}
