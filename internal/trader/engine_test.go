package trader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"solana-trade-bot-go/internal/config"
	"solana-trade-bot-go/internal/memory"
	"solana-trade-bot-go/internal/models"
	"solana-trade-bot-go/internal/positions"
	"solana-trade-bot-go/internal/store"
)

const testWallet = "WaLLet1111111111111111111111111111111111111"

type testEnv struct {
	engine    *Engine
	cfg       *config.Config
	market    *MockMarket
	router    *MockRouter
	chain     *MockChain
	positions *positions.Manager
	memory    *memory.Memory
}

func setupEngine(t *testing.T, dryRun bool, opts ...Option) *testEnv {
	ctx := context.Background()
	clock := func() time.Time { return testNow }
	st := store.NewMemoryStore()

	cfg := &config.Config{
		Risk: testRisk(),
		Trading: config.Trading{
			Enabled:       true,
			DryRun:        dryRun,
			MinTrendScore: 70,
			MaxAutoBuys:   3,
			ScanInterval:  300,
		},
	}
	env := &testEnv{
		cfg:       cfg,
		market:    new(MockMarket),
		router:    new(MockRouter),
		chain:     new(MockChain),
		positions: positions.NewManager(ctx, st, zap.NewNop(), positions.WithClock(clock)),
		memory:    memory.New(ctx, st, zap.NewNop(), memory.WithClock(clock)),
	}
	opts = append([]Option{WithClock(clock)}, opts...)
	env.engine = NewEngine(zap.NewNop(), cfg, Deps{
		Market:    env.market,
		Router:    env.router,
		Chain:     env.chain,
		Positions: env.positions,
		Memory:    env.memory,
		Wallet:    testWallet,
	}, opts...)
	return env
}

func (env *testEnv) expectDryRunBuy(token models.TokenInfo, lamports uint64, outAmount uint64) {
	env.market.On("FetchTokenInfo", mock.Anything, []string{token.Address}).Return([]models.TokenInfo{token}, nil).Once()
	holdersOK(env.chain, token.Address)
	quote := &models.Quote{InputMint: SOLMint, OutputMint: token.Address, InAmount: lamports, OutAmount: outAmount, PriceImpactPct: 0.5}
	env.router.On("Quote", mock.Anything, SOLMint, token.Address, lamports, 300).Return(quote, nil).Once()
	env.router.On("ExecuteSwap", mock.Anything, quote, testWallet).Return(&models.SwapReceipt{Status: models.SwapStatusDryRun}, nil).Once()
}

func TestEngine_BuyThenStopLossExit(t *testing.T) {
	env := setupEngine(t, true)
	ctx := context.Background()
	token := healthyToken("T")
	env.expectDryRunBuy(token, 100_000_000, 5_000)

	buy, err := env.engine.Buy(ctx, "T", 0.1, 300)
	require.NoError(t, err)
	require.False(t, buy.Blocked())
	require.NotNil(t, buy.Position)
	assert.InDelta(t, 0.9, buy.Position.StopLossPrice, 1e-12)
	assert.InDelta(t, 1.5, buy.Position.TakeProfitPrice, 1e-12)
	assert.Equal(t, 5000.0, buy.Position.AmountTokens)
	assert.Contains(t, buy.String(), "DRY RUN BUY:")
	env.chain.AssertNotCalled(t, "SignAndSubmit", mock.Anything, mock.Anything)

	dropped := token
	dropped.PriceUSD = 0.85
	env.market.On("FetchTokenInfo", mock.Anything, []string{"T"}).Return([]models.TokenInfo{dropped}, nil).Once()

	report, err := env.engine.CheckExits(ctx)
	require.NoError(t, err)
	require.Len(t, report.Exits, 1)
	exit := report.Exits[0]
	assert.Equal(t, models.StatusStoppedOut, exit.Reason)
	assert.InDelta(t, -15, exit.PnLPct, 1e-9)
	assert.InDelta(t, 0.085, exit.SOLOut, 1e-12)
	assert.NoError(t, exit.Err)
	assert.Contains(t, report.String(), "DRY RUN EXIT: TKN | stopped_out | -15.0%")

	assert.Empty(t, env.positions.OpenPositions())
	history := env.positions.TradeHistory(1)
	require.Len(t, history, 1)
	assert.Equal(t, string(models.StatusStoppedOut), history[0].Reason)
	assert.Equal(t, -15.0, *history[0].PnLPct)
	assert.Equal(t, 1, env.positions.Stats().Losses)

	reviews := env.memory.Reviews(10)
	require.Len(t, reviews, 1)
	assert.Equal(t, SideSell, reviews[0].Side)
	assert.Equal(t, "stopped_out", reviews[0].Reason)
	assert.Empty(t, env.memory.Lessons(10))

	env.market.AssertExpectations(t)
	env.router.AssertExpectations(t)
}

func TestEngine_CheckExits_WithinLimits(t *testing.T) {
	env := setupEngine(t, true)
	ctx := context.Background()
	env.expectDryRunBuy(healthyToken("T"), 100_000_000, 5_000)
	_, err := env.engine.Buy(ctx, "T", 0.1, 300)
	require.NoError(t, err)

	env.market.On("FetchTokenInfo", mock.Anything, []string{"T"}).Return([]models.TokenInfo{healthyToken("T")}, nil).Once()

	report, err := env.engine.CheckExits(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Exits)
	require.Len(t, report.Within, 1)
	assert.Contains(t, report.String(), "All positions within limits.")
	assert.Len(t, env.positions.OpenPositions(), 1)
}

func TestEngine_CheckExits_NoPositions(t *testing.T) {
	env := setupEngine(t, true)

	report, err := env.engine.CheckExits(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "No open positions to check.", report.String())
	env.market.AssertNotCalled(t, "FetchTokenInfo", mock.Anything, mock.Anything)
}

func TestEngine_CheckExits_LiveSellFailureDoesNotStopOthers(t *testing.T) {
	env := setupEngine(t, false)
	ctx := context.Background()
	for _, addr := range []string{"A", "B"} {
		_, err := env.positions.Open(ctx, positions.OpenRequest{
			TokenAddress: addr, Symbol: addr, EntryPriceUSD: 1.0, AmountTokens: 1000, AmountSOLIn: 0.1,
			StopLossPct: 10, TakeProfitPct: 50,
		})
		require.NoError(t, err)
	}
	a := models.TokenInfo{Address: "A", Symbol: "A", PriceUSD: 0.5}
	b := models.TokenInfo{Address: "B", Symbol: "B", PriceUSD: 2.0}
	env.market.On("FetchTokenInfo", mock.Anything, []string{"A", "B"}).Return([]models.TokenInfo{a, b}, nil).Once()
	env.market.On("FetchTokenInfo", mock.Anything, []string{"A"}).Return([]models.TokenInfo{a}, nil).Once()
	env.market.On("FetchTokenInfo", mock.Anything, []string{"B"}).Return([]models.TokenInfo{b}, nil).Once()

	env.router.On("Quote", mock.Anything, "A", SOLMint, uint64(1000), 300).Return(nil, errors.New("no route")).Once()
	quoteB := &models.Quote{InputMint: "B", OutputMint: SOLMint, InAmount: 1000, OutAmount: 200_000_000}
	env.router.On("Quote", mock.Anything, "B", SOLMint, uint64(1000), 300).Return(quoteB, nil).Once()
	env.router.On("ExecuteSwap", mock.Anything, quoteB, testWallet).
		Return(&models.SwapReceipt{Status: models.SwapStatusBuilt, SwapTransaction: "dHg="}, nil).Once()
	env.chain.On("SignAndSubmit", mock.Anything, "dHg=").Return("SIG", nil).Once()

	report, err := env.engine.CheckExits(ctx)
	require.NoError(t, err)
	require.Len(t, report.Exits, 2)

	assert.Error(t, report.Exits[0].Err)
	assert.Equal(t, models.StatusStoppedOut, report.Exits[0].Reason)
	require.NoError(t, report.Exits[1].Err)
	require.NotNil(t, report.Exits[1].Sold)
	assert.Equal(t, "SIG", report.Exits[1].Sold.Signature)
	assert.Equal(t, models.StatusTookProfit, report.Exits[1].Sold.Position.Status)

	open := env.positions.OpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, "A", open[0].TokenAddress)
	assert.Contains(t, report.String(), "AUTO-SELL FAILED: A")
	assert.Contains(t, report.String(), "AUTO-SOLD: B | took_profit | SELL EXECUTED:")
	env.router.AssertExpectations(t)
	env.chain.AssertExpectations(t)
}

func TestEngine_SellLive(t *testing.T) {
	env := setupEngine(t, false, WithClock(func() time.Time { return testNow.Add(30 * time.Minute) }))
	ctx := context.Background()
	_, err := env.positions.Open(ctx, positions.OpenRequest{
		TokenAddress: "T", Symbol: "TKN", EntryPriceUSD: 1.0, AmountTokens: 1000, AmountSOLIn: 0.1,
		StopLossPct: 10, TakeProfitPct: 50,
	})
	require.NoError(t, err)

	up := healthyToken("T")
	up.PriceUSD = 2.0
	env.market.On("FetchTokenInfo", mock.Anything, []string{"T"}).Return([]models.TokenInfo{up}, nil).Once()
	quote := &models.Quote{InputMint: "T", OutputMint: SOLMint, InAmount: 1000, OutAmount: 200_000_000}
	env.router.On("Quote", mock.Anything, "T", SOLMint, uint64(1000), 300).Return(quote, nil).Once()
	env.router.On("ExecuteSwap", mock.Anything, quote, testWallet).
		Return(&models.SwapReceipt{Status: models.SwapStatusBuilt, SwapTransaction: "dHg="}, nil).Once()
	env.chain.On("SignAndSubmit", mock.Anything, "dHg=").Return("SIG", nil).Once()

	res, err := env.engine.Swap(ctx, SwapRequest{Token: "T", Amount: 1000, Side: SideSell})
	require.NoError(t, err)
	require.NotNil(t, res.Sell)
	sell := res.Sell
	assert.False(t, sell.NoPosition)
	assert.Equal(t, "SIG", sell.Signature)
	assert.InDelta(t, 0.2, sell.SOLOut, 1e-12)
	assert.InDelta(t, 0.1, sell.PnLSOL, 1e-12)
	assert.InDelta(t, 100, sell.PnLPct, 1e-9)
	assert.InDelta(t, 30, sell.HoldMin, 1e-9)
	assert.Equal(t, models.StatusClosed, sell.Position.Status)
	assert.Contains(t, res.String(), "SELL EXECUTED:")

	assert.Equal(t, []string{"score>=100,buy_ratio>=90%,liq>=$300,000"}, env.memory.Patterns())
	env.chain.AssertExpectations(t)
}

func TestEngine_SellWithoutPosition(t *testing.T) {
	env := setupEngine(t, true)

	res, err := env.engine.Sell(context.Background(), "T", 1000, 300, models.StatusClosed)

	require.NoError(t, err)
	assert.True(t, res.NoPosition)
	assert.Equal(t, "No open position for T", res.String())
	env.router.AssertNotCalled(t, "Quote", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_Buy_BlockedByMemory(t *testing.T) {
	env := setupEngine(t, true)
	ctx := context.Background()
	require.NoError(t, env.memory.AddAvoid(ctx, "T", "rug pull"))

	res, err := env.engine.Buy(ctx, "T", 0.1, 300)

	require.NoError(t, err)
	assert.True(t, res.Blocked())
	assert.Equal(t, []string{"memory: rug pull"}, res.Reasons)
	env.market.AssertNotCalled(t, "FetchTokenInfo", mock.Anything, mock.Anything)
}

func TestEngine_Swap_PriceImpactBlocksAndSlippageIsClamped(t *testing.T) {
	env := setupEngine(t, true)
	ctx := context.Background()
	env.market.On("FetchTokenInfo", mock.Anything, []string{"T"}).Return([]models.TokenInfo{healthyToken("T")}, nil).Once()
	holdersOK(env.chain, "T")
	env.router.On("Quote", mock.Anything, SOLMint, "T", uint64(100_000_000), 300).
		Return(&models.Quote{OutAmount: 10, PriceImpactPct: -7.5}, nil).Once()

	res, err := env.engine.Swap(ctx, SwapRequest{Token: "T", Amount: 0.1, Side: SideBuy, SlippageBps: 1000})

	require.NoError(t, err)
	require.NotNil(t, res.Buy)
	assert.True(t, res.Buy.Blocked())
	assert.Equal(t, []string{"Price impact -7.50% > 5% limit"}, res.Buy.Reasons)
	assert.Empty(t, env.positions.OpenPositions())
	env.router.AssertNotCalled(t, "ExecuteSwap", mock.Anything, mock.Anything, mock.Anything)
	env.router.AssertExpectations(t)
}

func TestEngine_Buy_TokenNotFound(t *testing.T) {
	env := setupEngine(t, true)
	env.market.On("FetchTokenInfo", mock.Anything, []string{"T"}).Return([]models.TokenInfo{}, nil).Once()

	_, err := env.engine.Buy(context.Background(), "T", 0.1, 300)

	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestEngine_Scan_AutonomousBuysCandidates(t *testing.T) {
	env := setupEngine(t, true)
	env.cfg.Trading.Autonomous = true
	ctx := context.Background()
	require.NoError(t, env.memory.AddAvoid(ctx, "BAD", "lost 40%"))

	good := healthyToken("GOOD")
	good.Symbol = "GOOD"
	low := models.TokenInfo{Address: "LOW", Symbol: "LOW", PriceUSD: 1, LiquidityUSD: 10_000, Volume24h: 1_000_000, Buys5m: 50, Sells5m: 50}
	bad := healthyToken("BAD")
	env.market.On("FetchTrending", mock.Anything).Return([]models.TokenInfo{low, bad, good}, nil).Once()
	env.chain.On("GetBalance", mock.Anything, testWallet).Return(10.0, nil).Once()
	env.expectDryRunBuy(good, 100_000_000, 5_000)

	res, err := env.engine.Scan(ctx)
	require.NoError(t, err)

	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "GOOD", res.Candidates[0].Token.Address)
	assert.True(t, res.Candidates[0].AutoBuy)
	assert.Equal(t, "LOW", res.Candidates[1].Token.Address)
	assert.Equal(t, []string{FlagLowLiquidity}, res.Candidates[1].Flags)
	assert.False(t, res.Candidates[1].AutoBuy)
	assert.Equal(t, 0.1, res.SuggestedSOL)

	require.Len(t, res.AutoBought, 1)
	assert.Len(t, env.positions.OpenPositions(), 1)
	reviews := env.memory.Reviews(10)
	require.Len(t, reviews, 1)
	assert.Equal(t, SideBuy, reviews[0].Side)
	assert.Equal(t, "auto_buy", reviews[0].Reason)
	assert.Equal(t, 0.0, reviews[0].PnLPct)

	out := res.String()
	assert.Contains(t, out, "GOOD | Score: 100/100 >>> AUTO-BUY CANDIDATE")
	assert.Contains(t, out, "LOW | Score: 55/100 [LOW_LIQ]")
	assert.Contains(t, out, "AUTO-BOUGHT (1):")
	assert.NotContains(t, out, "BAD")
	env.market.AssertExpectations(t)
}

func TestEngine_Scan_ManualModeDoesNotBuy(t *testing.T) {
	env := setupEngine(t, true)
	env.market.On("FetchTrending", mock.Anything).Return([]models.TokenInfo{healthyToken("GOOD")}, nil).Once()
	env.chain.On("GetBalance", mock.Anything, testWallet).Return(10.0, nil).Once()

	res, err := env.engine.Scan(context.Background())

	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.True(t, res.Candidates[0].AutoBuy)
	assert.Empty(t, res.AutoBought)
	assert.NotContains(t, res.String(), "AUTO-BUY CANDIDATE")
	env.router.AssertNotCalled(t, "Quote", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_Validation(t *testing.T) {
	ctx := context.Background()

	disabled := setupEngine(t, true)
	disabled.cfg.Trading.Enabled = false
	_, err := disabled.engine.Scan(ctx)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = disabled.engine.Stats()
	assert.ErrorIs(t, err, ErrValidation)

	env := setupEngine(t, true)
	testCases := []struct {
		name string
		req  SwapRequest
	}{
		{name: "missing token", req: SwapRequest{Amount: 0.1, Side: SideBuy}},
		{name: "non-positive amount", req: SwapRequest{Token: "T", Side: SideBuy}},
		{name: "unknown side", req: SwapRequest{Token: "T", Amount: 0.1, Side: "hold"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.Swap(ctx, tc.req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	assert.ErrorIs(t, env.engine.Learn(ctx, ""), ErrValidation)
}

func TestEngine_LearnAndMemoryContext(t *testing.T) {
	env := setupEngine(t, true)
	ctx := context.Background()

	require.NoError(t, env.engine.Learn(ctx, "avoid tokens younger than an hour"))

	out, err := env.engine.MemoryContext()
	require.NoError(t, err)
	assert.Contains(t, out, "USER GUIDANCE:\n  - avoid tokens younger than an hour")
}

func TestEngine_SetLimits(t *testing.T) {
	env := setupEngine(t, true)
	ctx := context.Background()
	_, err := env.positions.Open(ctx, positions.OpenRequest{
		TokenAddress: "T", Symbol: "TKN", EntryPriceUSD: 2.0, AmountSOLIn: 0.1, StopLossPct: 10, TakeProfitPct: 50,
	})
	require.NoError(t, err)

	pos, err := env.engine.SetLimits(ctx, "T", 25, 0)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.InDelta(t, 1.5, pos.StopLossPrice, 1e-12)
	assert.InDelta(t, 3.0, pos.TakeProfitPrice, 1e-12)

	missing, err := env.engine.SetLimits(ctx, "OTHER", 25, 0)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestEngine_PortfolioAndReports(t *testing.T) {
	env := setupEngine(t, true)
	ctx := context.Background()

	report, err := env.engine.PositionsReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, "No positions and no trade history.", report)

	_, err = env.positions.Open(ctx, positions.OpenRequest{
		TokenAddress: "T", Symbol: "TKN", EntryPriceUSD: 1.0, AmountTokens: 500, AmountSOLIn: 0.1, StopLossPct: 10, TakeProfitPct: 50,
	})
	require.NoError(t, err)
	env.market.On("FetchTokenInfo", mock.Anything, []string{"T"}).Return(nil, errors.New("timeout")).Once()

	report, err = env.engine.PositionsReport(ctx)
	require.NoError(t, err)
	assert.Contains(t, report, "Open Positions (1):")
	assert.Contains(t, report, "Invested: 0.100 SOL / Max: 1 SOL")

	env.chain.On("GetBalance", mock.Anything, testWallet).Return(1.5, nil).Once()
	env.chain.On("GetTokenHoldings", mock.Anything, testWallet).Return([]models.TokenHolding{
		{Mint: "M", Symbol: "BONK", Balance: 1234.5, ValueUSD: 0.02},
	}, nil).Once()
	p, err := env.engine.Portfolio(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.5, p.BalanceSOL)
	assert.Len(t, p.Positions, 1)
	require.Len(t, p.Holdings, 1)
	assert.Contains(t, p.String(), "Wallet: WaLLet11...1111")
	assert.Contains(t, p.String(), "Tokens (1):\n  BONK: 1,234.50 (~$0.02)")
}

func TestEngine_Portfolio_Holdings(t *testing.T) {
	t.Run("CappedListing", func(t *testing.T) {
		env := setupEngine(t, true)
		var holdings []models.TokenHolding
		for i := 0; i < 30; i++ {
			holdings = append(holdings, models.TokenHolding{Mint: fmt.Sprint(i), Symbol: fmt.Sprintf("TK%d", i), Balance: 1})
		}
		env.chain.On("GetBalance", mock.Anything, testWallet).Return(0.5, nil).Once()
		env.chain.On("GetTokenHoldings", mock.Anything, testWallet).Return(holdings, nil).Once()

		p, err := env.engine.Portfolio(context.Background())

		require.NoError(t, err)
		out := p.String()
		assert.Contains(t, out, "Tokens (30):")
		assert.Contains(t, out, "  TK24: 1.00 (~$0.00)")
		assert.NotContains(t, out, "TK25")
		assert.Equal(t, maxPortfolioHoldings, strings.Count(out, "(~$"))
	})

	t.Run("LookupFailureKeepsBalance", func(t *testing.T) {
		env := setupEngine(t, true)
		env.chain.On("GetBalance", mock.Anything, testWallet).Return(0.5, nil).Once()
		env.chain.On("GetTokenHoldings", mock.Anything, testWallet).Return(nil, errors.New("method not found")).Once()

		p, err := env.engine.Portfolio(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 0.5, p.BalanceSOL)
		assert.Empty(t, p.Holdings)
		assert.Contains(t, p.String(), "Tokens: unavailable (method not found)")
	})
}

func TestEngine_Buy_NoPrice(t *testing.T) {
	env := setupEngine(t, true)
	token := healthyToken("T")
	token.PriceUSD = 0
	env.market.On("FetchTokenInfo", mock.Anything, []string{"T"}).Return([]models.TokenInfo{token}, nil).Once()

	_, err := env.engine.Buy(context.Background(), "T", 0.1, 300)

	assert.ErrorIs(t, err, ErrNoPrice)
	assert.Empty(t, env.positions.OpenPositions())
	env.chain.AssertNotCalled(t, "GetHolderStats", mock.Anything, mock.Anything)
	env.router.AssertNotCalled(t, "Quote", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_CheckExits_SkipsMissingPrice(t *testing.T) {
	env := setupEngine(t, true)
	ctx := context.Background()
	_, err := env.positions.Open(ctx, positions.OpenRequest{
		TokenAddress: "T", Symbol: "TKN", EntryPriceUSD: 1.0, AmountTokens: 1000, AmountSOLIn: 0.1,
		StopLossPct: 10, TakeProfitPct: 50,
	})
	require.NoError(t, err)
	unpriced := healthyToken("T")
	unpriced.PriceUSD = 0
	env.market.On("FetchTokenInfo", mock.Anything, []string{"T"}).Return([]models.TokenInfo{unpriced}, nil).Once()

	report, err := env.engine.CheckExits(ctx)

	require.NoError(t, err)
	assert.Empty(t, report.Exits)
	assert.Empty(t, report.Within)
	assert.Len(t, env.positions.OpenPositions(), 1)
	assert.Empty(t, env.memory.Reviews(10))
	_, avoided := env.memory.ShouldAvoid("T")
	assert.False(t, avoided)
}

func TestEngine_SellLive_NoPriceUsesRealizedReturn(t *testing.T) {
	env := setupEngine(t, false)
	ctx := context.Background()
	_, err := env.positions.Open(ctx, positions.OpenRequest{
		TokenAddress: "T", Symbol: "TKN", EntryPriceUSD: 1.0, AmountTokens: 1000, AmountSOLIn: 0.1,
		StopLossPct: 10, TakeProfitPct: 50,
	})
	require.NoError(t, err)

	unpriced := healthyToken("T")
	unpriced.PriceUSD = 0
	env.market.On("FetchTokenInfo", mock.Anything, []string{"T"}).Return([]models.TokenInfo{unpriced}, nil).Once()
	quote := &models.Quote{InputMint: "T", OutputMint: SOLMint, InAmount: 1000, OutAmount: 80_000_000}
	env.router.On("Quote", mock.Anything, "T", SOLMint, uint64(1000), 300).Return(quote, nil).Once()
	env.router.On("ExecuteSwap", mock.Anything, quote, testWallet).
		Return(&models.SwapReceipt{Status: models.SwapStatusBuilt, SwapTransaction: "dHg="}, nil).Once()
	env.chain.On("SignAndSubmit", mock.Anything, "dHg=").Return("SIG", nil).Once()

	sell, err := env.engine.Sell(ctx, "T", 1000, 300, models.StatusClosed)

	require.NoError(t, err)
	assert.InDelta(t, -20, sell.PnLPct, 1e-9)
	assert.InDelta(t, -0.02, sell.PnLSOL, 1e-12)

	reviews := env.memory.Reviews(1)
	require.Len(t, reviews, 1)
	assert.Equal(t, "manual_sell", reviews[0].Reason)
	assert.Equal(t, string(models.StatusClosed), env.positions.TradeHistory(1)[0].Reason)
}

func TestEngine_BuyLive(t *testing.T) {
	env := setupEngine(t, false)
	token := healthyToken("T")
	env.market.On("FetchTokenInfo", mock.Anything, []string{"T"}).Return([]models.TokenInfo{token}, nil).Once()
	holdersOK(env.chain, "T")
	quote := &models.Quote{InputMint: SOLMint, OutputMint: "T", InAmount: 100_000_000, OutAmount: 5_000}
	env.router.On("Quote", mock.Anything, SOLMint, "T", uint64(100_000_000), 300).Return(quote, nil).Once()
	env.router.On("ExecuteSwap", mock.Anything, quote, testWallet).
		Return(&models.SwapReceipt{Status: models.SwapStatusBuilt, SwapTransaction: "dHg="}, nil).Once()
	env.chain.On("SignAndSubmit", mock.Anything, "dHg=").Return("SIG", nil).Once()

	buy, err := env.engine.Buy(context.Background(), "T", 0.1, 300)

	require.NoError(t, err)
	require.False(t, buy.Blocked())
	assert.Equal(t, "SIG", buy.Signature)
	require.NotNil(t, buy.Position)
	assert.Equal(t, 5000.0, buy.Position.AmountTokens)
	assert.Len(t, env.positions.OpenPositions(), 1)
	assert.Contains(t, buy.String(), "BUY EXECUTED:")
	assert.Contains(t, buy.String(), "TX: SIG")
	env.router.AssertExpectations(t)
	env.chain.AssertExpectations(t)
}

func TestEngine_BuyLive_SubmissionFailure(t *testing.T) {
	testCases := []struct {
		name      string
		receipt   *models.SwapReceipt
		submitErr error
		expected  string
	}{
		{
			name:      "Submit fails",
			receipt:   &models.SwapReceipt{Status: models.SwapStatusBuilt, SwapTransaction: "dHg="},
			submitErr: errors.New("blockhash not found"),
			expected:  "blockhash not found",
		},
		{
			name:     "No swap transaction",
			receipt:  &models.SwapReceipt{Status: models.SwapStatusBuilt},
			expected: "router returned no swap transaction",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := setupEngine(t, false)
			env.market.On("FetchTokenInfo", mock.Anything, []string{"T"}).Return([]models.TokenInfo{healthyToken("T")}, nil).Once()
			holdersOK(env.chain, "T")
			quote := &models.Quote{InputMint: SOLMint, OutputMint: "T", InAmount: 100_000_000, OutAmount: 5_000}
			env.router.On("Quote", mock.Anything, SOLMint, "T", uint64(100_000_000), 300).Return(quote, nil).Once()
			env.router.On("ExecuteSwap", mock.Anything, quote, testWallet).Return(tc.receipt, nil).Once()
			if tc.receipt.SwapTransaction != "" {
				env.chain.On("SignAndSubmit", mock.Anything, tc.receipt.SwapTransaction).Return("", tc.submitErr).Once()
			}

			buy, err := env.engine.Buy(context.Background(), "T", 0.1, 300)

			assert.Nil(t, buy)
			assert.ErrorContains(t, err, tc.expected)
			assert.Empty(t, env.positions.OpenPositions())
			assert.Empty(t, env.positions.TradeHistory(-1))
			env.chain.AssertExpectations(t)
		})
	}
}

func TestEngine_Run(t *testing.T) {
	env := setupEngine(t, true, WithIntervals(10*time.Millisecond, 15*time.Millisecond))
	_, err := env.positions.Open(context.Background(), positions.OpenRequest{
		TokenAddress: "T", Symbol: "TKN", EntryPriceUSD: 1.0, AmountTokens: 1000, AmountSOLIn: 0.1,
		StopLossPct: 10, TakeProfitPct: 50,
	})
	require.NoError(t, err)

	var scans, exitChecks atomic.Int32
	env.market.On("FetchTrending", mock.Anything).Return([]models.TokenInfo{}, nil).
		Run(func(mock.Arguments) { scans.Add(1) })
	env.market.On("FetchTokenInfo", mock.Anything, []string{"T"}).Return([]models.TokenInfo{healthyToken("T")}, nil).
		Run(func(mock.Arguments) { exitChecks.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		env.engine.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return scans.Load() > 0 && exitChecks.Load() > 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after the context was cancelled")
	}
	assert.Len(t, env.positions.OpenPositions(), 1)
}

func TestEngine_Run_NonPositiveScanInterval(t *testing.T) {
	env := setupEngine(t, true, WithIntervals(0, time.Millisecond))

	done := make(chan struct{})
	go func() {
		env.engine.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run started with a zero scan interval")
	}
	env.market.AssertNotCalled(t, "FetchTrending", mock.Anything)
}
