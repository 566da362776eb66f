package trader

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"solana-trade-bot-go/internal/models"
)

// MockMarket is a mock implementation of MarketData.
type MockMarket struct {
	mock.Mock
}

func (m *MockMarket) FetchTokenInfo(ctx context.Context, addresses []string) ([]models.TokenInfo, error) {
	args := m.Called(ctx, addresses)
	tokens, _ := args.Get(0).([]models.TokenInfo)
	return tokens, args.Error(1)
}

func (m *MockMarket) FetchTrending(ctx context.Context) ([]models.TokenInfo, error) {
	args := m.Called(ctx)
	tokens, _ := args.Get(0).([]models.TokenInfo)
	return tokens, args.Error(1)
}

// MockRouter is a mock implementation of Router.
type MockRouter struct {
	mock.Mock
}

func (m *MockRouter) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*models.Quote, error) {
	args := m.Called(ctx, inputMint, outputMint, amount, slippageBps)
	q, _ := args.Get(0).(*models.Quote)
	return q, args.Error(1)
}

func (m *MockRouter) ExecuteSwap(ctx context.Context, quote *models.Quote, wallet string) (*models.SwapReceipt, error) {
	args := m.Called(ctx, quote, wallet)
	r, _ := args.Get(0).(*models.SwapReceipt)
	return r, args.Error(1)
}

// MockChain is a mock implementation of Chain.
type MockChain struct {
	mock.Mock
}

func (m *MockChain) GetHolderStats(ctx context.Context, mint string) (models.HolderStats, error) {
	args := m.Called(ctx, mint)
	return args.Get(0).(models.HolderStats), args.Error(1)
}

func (m *MockChain) GetBalance(ctx context.Context, wallet string) (float64, error) {
	args := m.Called(ctx, wallet)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockChain) GetTokenHoldings(ctx context.Context, wallet string) ([]models.TokenHolding, error) {
	args := m.Called(ctx, wallet)
	holdings, _ := args.Get(0).([]models.TokenHolding)
	return holdings, args.Error(1)
}

func (m *MockChain) SignAndSubmit(ctx context.Context, swapTransaction string) (string, error) {
	args := m.Called(ctx, swapTransaction)
	return args.String(0), args.Error(1)
}

// fakeBook is a fixed PositionBook.
type fakeBook struct {
	invested  float64
	lastTrade time.Time
	open      []models.Position
}

func (b fakeBook) TotalSOLInvested() float64 {
	return b.invested
}

func (b fakeBook) LastTradeTime(string) (time.Time, bool) {
	return b.lastTrade, !b.lastTrade.IsZero()
}

func (b fakeBook) PositionsForToken(string) []models.Position {
	return b.open
}
