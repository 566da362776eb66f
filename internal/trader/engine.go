package trader

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"solana-trade-bot-go/internal/config"
	"solana-trade-bot-go/internal/memory"
	"solana-trade-bot-go/internal/models"
	"solana-trade-bot-go/internal/positions"
)

const (
	// SOLMint is the wrapped SOL mint used as the quote asset of every swap.
	SOLMint        = "So11111111111111111111111111111111111111112"
	lamportsPerSOL = 1_000_000_000

	// maxPriceImpactPct blocks a buy even when the safety checks passed.
	maxPriceImpactPct = 5.0

	scanTopN           = 5
	minCandidateBuyPct = 60.0

	// Used in reviews when fresh token data is unavailable.
	defaultReviewScore    = 50
	defaultReviewBuyRatio = 50.0

	// reviewReasonManual tags reviews of operator sells.
	reviewReasonManual = "manual_sell"

	maxPortfolioHoldings = 25
)

// Sides of a swap.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Deps are the collaborators and stores the engine drives.
type Deps struct {
	Market    MarketData
	Router    Router
	Chain     Chain
	Positions *positions.Manager
	Memory    *memory.Memory
	// Wallet is the base58 public key of the trading wallet. Empty disables trading.
	Wallet string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIntervals overrides the scan and exit-check periods taken from the config.
func WithIntervals(scan, exitCheck time.Duration) Option {
	return func(e *Engine) {
		e.scanInterval = scan
		e.exitInterval = exitCheck
	}
}

// Engine runs the scan, buy, sell and exit-check flows.
type Engine struct {
	logger    *zap.Logger
	cfg       *config.Config
	market    MarketData
	router    Router
	chain     Chain
	positions *positions.Manager
	memory    *memory.Memory
	wallet    string
	now       func() time.Time

	scanInterval time.Duration
	exitInterval time.Duration

	// mu serializes the trading flows of Run and the control API.
	mu sync.Mutex
}

// NewEngine creates a new trading engine.
func NewEngine(logger *zap.Logger, cfg *config.Config, deps Deps, opts ...Option) *Engine {
	e := &Engine{
		logger:    logger.Named("engine"),
		cfg:       cfg,
		market:    deps.Market,
		router:    deps.Router,
		chain:     deps.Chain,
		positions: deps.Positions,
		memory:    deps.Memory,
		wallet:    deps.Wallet,
		now:       time.Now,

		scanInterval: time.Duration(cfg.Trading.ScanInterval) * time.Second,
		exitInterval: time.Duration(cfg.Trading.ExitCheckInterval) * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run drives the scan and exit-check cycles until ctx is done. Both run on this goroutine and
// hold the engine lock, so trading actions never overlap.
func (e *Engine) Run(ctx context.Context) {
	if err := e.ready(); err != nil {
		e.logger.Error("Trading engine not started", zap.Error(err))
		return
	}

	scanInterval, exitInterval := e.scanInterval, e.exitInterval
	if scanInterval <= 0 {
		e.logger.Error("Trading engine not started", zap.Duration("scan_interval", scanInterval))
		return
	}
	scanTicker := time.NewTicker(scanInterval)
	defer scanTicker.Stop()

	var exitC <-chan time.Time
	if exitInterval > 0 {
		exitTicker := time.NewTicker(exitInterval)
		defer exitTicker.Stop()
		exitC = exitTicker.C
	}

	e.logger.Info("Starting trading loop",
		zap.Duration("scan_interval", scanInterval),
		zap.Duration("exit_check_interval", exitInterval),
		zap.Bool("autonomous", e.cfg.Trading.Autonomous),
		zap.Bool("dry_run", e.cfg.Trading.DryRun))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping trading engine...")
			return
		case <-scanTicker.C:
			l := e.logger.With(zap.String("cycle_id", uuid.NewString()))
			e.mu.Lock()
			res, err := e.Scan(ctx)
			e.mu.Unlock()
			if err != nil {
				l.Error("Scan failed", zap.Error(err))
				continue
			}
			l.Info("Scan cycle complete",
				zap.Int("candidates", len(res.Candidates)),
				zap.Int("auto_bought", len(res.AutoBought)))
		case <-exitC:
			l := e.logger.With(zap.String("cycle_id", uuid.NewString()))
			e.mu.Lock()
			res, err := e.CheckExits(ctx)
			e.mu.Unlock()
			if err != nil {
				l.Error("Exit check failed", zap.Error(err))
				continue
			}
			l.Info("Exit check complete", zap.Int("exits", len(res.Exits)))
		}
	}
}

func (e *Engine) ready() error {
	if !e.cfg.Trading.Enabled {
		return validationErrorf("trading is not enabled, set trading.enabled=true")
	}
	if e.wallet == "" {
		return validationErrorf("no wallet configured, set solana.wallet_private_key")
	}
	return nil
}

// Scan fetches trending tokens, drops avoided ones, scores and ranks them, and in autonomous
// mode buys the best candidates at the suggested size.
func (e *Engine) Scan(ctx context.Context) (*ScanResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	tokens, err := e.market.FetchTrending(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not fetch trending tokens: %w", err)
	}

	risk := e.cfg.Risk
	res := &ScanResult{
		Autonomous: e.cfg.Trading.Autonomous,
		DryRun:     e.cfg.Trading.DryRun,
		Trending:   len(tokens),
	}
	if len(tokens) == 0 {
		return res, nil
	}

	balance, err := e.chain.GetBalance(ctx, e.wallet)
	if err != nil {
		return nil, fmt.Errorf("could not get SOL balance: %w", err)
	}
	res.BalanceSOL = balance
	res.SuggestedSOL = e.positions.SuggestTradeSize(risk.MaxPositionSOL, balance)

	var scored []Candidate
	for _, t := range tokens {
		if reason, avoid := e.memory.ShouldAvoid(t.Address); avoid {
			e.logger.Debug("Skipping avoided token", zap.String("token", t.Address), zap.String("reason", reason))
			continue
		}
		scored = append(scored, Candidate{Token: t, Score: Score(t), BuyPct: t.BuyPct()})
	}
	slices.SortStableFunc(scored, func(a, b Candidate) int {
		return b.Score - a.Score
	})

	for _, c := range scored[:min(scanTopN, len(scored))] {
		if c.Token.LiquidityUSD < risk.MinLiquidityUSD {
			c.Flags = append(c.Flags, FlagLowLiquidity)
		}
		if c.Token.Volume24h < risk.MinVolume24hUSD {
			c.Flags = append(c.Flags, FlagLowVolume)
		}
		c.AutoBuy = c.Score >= e.cfg.Trading.MinTrendScore && len(c.Flags) == 0 && c.BuyPct >= minCandidateBuyPct
		res.Candidates = append(res.Candidates, c)

		if !c.AutoBuy || !res.Autonomous || len(res.AutoBought) >= e.cfg.Trading.MaxAutoBuys {
			continue
		}
		buy, err := e.Buy(ctx, c.Token.Address, res.SuggestedSOL, risk.MaxSlippageBps)
		if err != nil {
			e.logger.Warn("Auto-buy failed", zap.String("token", c.Token.Address), zap.Error(err))
			continue
		}
		if buy.Blocked() {
			e.logger.Info("Auto-buy blocked", zap.String("token", c.Token.Address), zap.Strings("reasons", buy.Reasons))
			continue
		}
		res.AutoBought = append(res.AutoBought, *buy)

		err = e.memory.RecordTradeReview(ctx, memory.ReviewRequest{
			Token:        c.Token.Address,
			Symbol:       c.Token.Symbol,
			Side:         SideBuy,
			TrendScore:   c.Score,
			BuyRatio:     c.BuyPct,
			LiquidityUSD: c.Token.LiquidityUSD,
			Reason:       "auto_buy",
		})
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// QuoteRequest asks for a route for a buy (amount in SOL) or a sell (amount in raw token units).
type QuoteRequest struct {
	Token       string  `json:"token_address"`
	Amount      float64 `json:"amount"`
	Side        string  `json:"side"`
	SlippageBps int     `json:"slippage_bps"`
}

// GetQuote returns a swap quote. A zero slippage uses the configured maximum.
func (e *Engine) GetQuote(ctx context.Context, req QuoteRequest) (*models.Quote, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if req.Token == "" {
		return nil, validationErrorf("token_address required")
	}
	if req.Amount <= 0 {
		return nil, validationErrorf("amount must be positive")
	}

	slippage := req.SlippageBps
	if slippage <= 0 {
		slippage = e.cfg.Risk.MaxSlippageBps
	}
	if req.Side == SideSell {
		return e.router.Quote(ctx, req.Token, SOLMint, uint64(req.Amount), slippage)
	}
	return e.router.Quote(ctx, SOLMint, req.Token, toLamports(req.Amount), slippage)
}

// SwapRequest is a manual buy or sell.
type SwapRequest = QuoteRequest

// Swap validates the request and dispatches to Buy or Sell. Slippage never exceeds the
// configured maximum.
func (e *Engine) Swap(ctx context.Context, req SwapRequest) (*SwapResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if req.Token == "" {
		return nil, validationErrorf("token_address required")
	}
	if req.Amount <= 0 {
		return nil, validationErrorf("amount must be positive")
	}
	if req.Side != SideBuy && req.Side != SideSell {
		return nil, validationErrorf("side must be %q or %q", SideBuy, SideSell)
	}

	maxSlippage := e.cfg.Risk.MaxSlippageBps
	slippage := req.SlippageBps
	if slippage <= 0 || slippage > maxSlippage {
		slippage = maxSlippage
	}

	if req.Side == SideBuy {
		buy, err := e.Buy(ctx, req.Token, req.Amount, slippage)
		if err != nil {
			return nil, err
		}
		return &SwapResult{Buy: buy}, nil
	}
	sell, err := e.Sell(ctx, req.Token, req.Amount, slippage, models.StatusClosed)
	if err != nil {
		return nil, err
	}
	return &SwapResult{Sell: sell}, nil
}

// Buy runs the avoid list, safety checks and price impact limit, then swaps SOL for the token
// and opens a position. A blocked buy is returned as a result with reasons, not an error.
func (e *Engine) Buy(ctx context.Context, token string, amountSOL float64, slippageBps int) (*BuyResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	res := &BuyResult{Address: token, AmountSOL: amountSOL, DryRun: e.cfg.Trading.DryRun}

	if reason, avoid := e.memory.ShouldAvoid(token); avoid {
		res.Reasons = []string{"memory: " + reason}
		return res, nil
	}

	infos, err := e.market.FetchTokenInfo(ctx, []string{token})
	if err != nil {
		return nil, fmt.Errorf("could not fetch token info: %w", err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, token)
	}
	info := infos[0]
	if info.PriceUSD <= 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoPrice, token)
	}
	res.Token = info

	risk := e.cfg.Risk
	safety := CheckTokenSafety(ctx, info, risk, e.positions, e.chain, amountSOL, e.now())
	res.Score = safety.Score
	if !safety.Safe {
		res.Reasons = safety.Reasons
		return res, nil
	}

	quote, err := e.router.Quote(ctx, SOLMint, token, toLamports(amountSOL), slippageBps)
	if err != nil {
		return nil, fmt.Errorf("could not get buy quote: %w", err)
	}
	res.Quote = quote
	if impact := quote.PriceImpactPct; impact > maxPriceImpactPct || impact < -maxPriceImpactPct {
		res.Reasons = []string{fmt.Sprintf("Price impact %.2f%% > %.0f%% limit", impact, maxPriceImpactPct)}
		return res, nil
	}

	receipt, err := e.router.ExecuteSwap(ctx, quote, e.wallet)
	if err != nil {
		return nil, fmt.Errorf("could not execute buy swap: %w", err)
	}
	if !res.DryRun {
		sig, err := e.submit(ctx, receipt)
		if err != nil {
			return nil, err
		}
		res.Signature = sig
	}

	pos, err := e.positions.Open(ctx, positions.OpenRequest{
		TokenAddress:  token,
		Symbol:        info.Symbol,
		EntryPriceUSD: info.PriceUSD,
		AmountTokens:  float64(quote.OutAmount),
		AmountSOLIn:   amountSOL,
		StopLossPct:   risk.StopLossPct,
		TakeProfitPct: risk.TakeProfitPct,
	})
	if err != nil {
		return nil, err
	}
	res.Position = &pos
	res.StopLossPct = risk.StopLossPct
	res.TakeProfitPct = risk.TakeProfitPct

	e.logger.Info("Bought token",
		zap.String("token", token),
		zap.String("symbol", info.Symbol),
		zap.Float64("amount_sol", amountSOL),
		zap.Int("score", safety.Score),
		zap.Bool("dry_run", res.DryRun),
		zap.String("signature", res.Signature))
	return res, nil
}

// Sell swaps amountTokens raw units of the token back to SOL, closes the first open position
// for it with reason and records a review. Without an open position the result has NoPosition set.
func (e *Engine) Sell(ctx context.Context, token string, amountTokens float64, slippageBps int, reason models.PositionStatus) (*SellResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	res := &SellResult{Address: token, Reason: reason, DryRun: e.cfg.Trading.DryRun}

	open := e.positions.PositionsForToken(token)
	if len(open) == 0 {
		res.NoPosition = true
		return res, nil
	}
	pos := open[0]

	infos, err := e.market.FetchTokenInfo(ctx, []string{token})
	if err != nil {
		return nil, fmt.Errorf("could not fetch token info: %w", err)
	}
	var info *models.TokenInfo
	if len(infos) > 0 {
		info = &infos[0]
	}
	var price float64
	if info != nil {
		price = info.PriceUSD
	}

	quote, err := e.router.Quote(ctx, token, SOLMint, uint64(amountTokens), slippageBps)
	if err != nil {
		return nil, fmt.Errorf("could not get sell quote: %w", err)
	}
	solOut := float64(quote.OutAmount) / lamportsPerSOL
	if price <= 0 && pos.AmountSOLIn > 0 {
		// No market price: value the exit at the realized SOL return.
		price = pos.EntryPriceUSD * solOut / pos.AmountSOLIn
	}

	receipt, err := e.router.ExecuteSwap(ctx, quote, e.wallet)
	if err != nil {
		return nil, fmt.Errorf("could not execute sell swap: %w", err)
	}
	if !res.DryRun {
		sig, err := e.submit(ctx, receipt)
		if err != nil {
			return nil, err
		}
		res.Signature = sig
	}

	closed, found, err := e.positions.Close(ctx, token, price, solOut, reason)
	if err != nil {
		return nil, err
	}
	if !found {
		res.NoPosition = true
		return res, nil
	}
	res.Position = closed
	res.SOLOut = solOut
	res.PnLSOL = solOut - closed.AmountSOLIn
	res.PnLPct = closed.PnLPct(price)
	res.HoldMin = e.now().Sub(closed.EntryTime).Minutes()

	reviewReason := string(reason)
	if reason == models.StatusClosed {
		reviewReason = reviewReasonManual
	}
	if err := e.review(ctx, closed, info, res.PnLSOL, res.PnLPct, res.HoldMin, reviewReason); err != nil {
		return res, err
	}

	e.logger.Info("Sold token",
		zap.String("token", token),
		zap.String("symbol", closed.Symbol),
		zap.String("reason", string(reason)),
		zap.Float64("sol_out", solOut),
		zap.Float64("pnl_pct", res.PnLPct),
		zap.Bool("dry_run", res.DryRun))
	return res, nil
}

// CheckExits prices all open positions and closes the ones whose stop-loss or take-profit was hit.
// In dry-run the close is simulated at the current price; live positions are sold. A failed sell
// is reported on its exit and does not stop the others.
func (e *Engine) CheckExits(ctx context.Context) (*ExitReport, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	report := &ExitReport{DryRun: e.cfg.Trading.DryRun}

	open := e.positions.OpenPositions()
	if len(open) == 0 {
		return report, nil
	}
	report.Checked = len(open)

	tokens, err := e.market.FetchTokenInfo(ctx, addressesOf(open))
	if err != nil {
		return nil, fmt.Errorf("could not fetch prices: %w", err)
	}
	prices := make(map[string]float64, len(tokens))
	byAddress := make(map[string]models.TokenInfo, len(tokens))
	for _, t := range tokens {
		byAddress[t.Address] = t
		if t.PriceUSD > 0 {
			prices[t.Address] = t.PriceUSD
		} else {
			e.logger.Warn("No price for open position, skipping exit check", zap.String("token", t.Address))
		}
	}

	triggered := e.positions.CheckTriggers(prices)
	if len(triggered) == 0 {
		for _, p := range open {
			if price, ok := prices[p.TokenAddress]; ok {
				report.Within = append(report.Within, PricedPosition{Position: p, Price: price})
			}
		}
		return report, nil
	}

	for _, trig := range triggered {
		pos := trig.Position
		price := prices[pos.TokenAddress]
		exit := Exit{Position: pos, Reason: trig.Reason, Price: price, PnLPct: pos.PnLPct(price)}
		exit.SOLOut = pos.AmountSOLIn * (1 + exit.PnLPct/100)
		exit.HoldMin = e.now().Sub(pos.EntryTime).Minutes()
		l := e.logger.With(zap.String("token", pos.TokenAddress), zap.String("reason", string(trig.Reason)))

		if !report.DryRun {
			sold, err := e.Sell(ctx, pos.TokenAddress, pos.AmountTokens, e.cfg.Risk.MaxSlippageBps, trig.Reason)
			if err != nil {
				l.Error("Auto-sell failed", zap.Error(err))
				exit.Err = err
			} else {
				exit.Sold = sold
			}
			report.Exits = append(report.Exits, exit)
			continue
		}

		if _, _, err := e.positions.Close(ctx, pos.TokenAddress, price, exit.SOLOut, trig.Reason); err != nil {
			l.Error("Failed to close position", zap.Error(err))
			exit.Err = err
			report.Exits = append(report.Exits, exit)
			continue
		}
		var info *models.TokenInfo
		if t, ok := byAddress[pos.TokenAddress]; ok {
			info = &t
		}
		if err := e.review(ctx, pos, info, exit.SOLOut-pos.AmountSOLIn, exit.PnLPct, exit.HoldMin, string(trig.Reason)); err != nil {
			l.Error("Failed to record trade review", zap.Error(err))
			exit.Err = err
		}
		l.Info("Position exited", zap.Float64("pnl_pct", exit.PnLPct))
		report.Exits = append(report.Exits, exit)
	}
	return report, nil
}

// SetLimits moves the stop-loss and take-profit of the open position for token.
func (e *Engine) SetLimits(ctx context.Context, token string, stopLossPct, takeProfitPct float64) (*models.Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, validationErrorf("token_address required")
	}
	pos, found, err := e.positions.UpdateLimits(ctx, token, stopLossPct, takeProfitPct)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &pos, nil
}

// Portfolio returns the wallet balance, its token holdings and the open positions. A failed
// holdings lookup is reported on the result instead of failing the call.
func (e *Engine) Portfolio(ctx context.Context) (*Portfolio, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	balance, err := e.chain.GetBalance(ctx, e.wallet)
	if err != nil {
		return nil, fmt.Errorf("could not get SOL balance: %w", err)
	}
	p := &Portfolio{
		Wallet:          e.wallet,
		BalanceSOL:      balance,
		Positions:       e.positions.OpenPositions(),
		InvestedSOL:     e.positions.TotalSOLInvested(),
		MaxPortfolioSOL: e.cfg.Risk.MaxPortfolioSOL,
	}

	holdings, err := e.chain.GetTokenHoldings(ctx, e.wallet)
	if err != nil {
		e.logger.Warn("Could not fetch token holdings", zap.Error(err))
		p.HoldingsErr = err.Error()
		return p, nil
	}
	p.Holdings = holdings
	return p, nil
}

// PositionsReport renders the open positions with live prices, or recent history when none are open.
func (e *Engine) PositionsReport(ctx context.Context) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	open := e.positions.OpenPositions()
	if len(open) == 0 {
		return formatHistory(e.positions.TradeHistory(recentTrades), e.positions.FormatStats()), nil
	}

	prices := make(map[string]float64)
	tokens, err := e.market.FetchTokenInfo(ctx, addressesOf(open))
	if err != nil {
		e.logger.Warn("Could not fetch prices for positions report", zap.Error(err))
	}
	for _, t := range tokens {
		prices[t.Address] = t.PriceUSD
	}

	return fmt.Sprintf("%s\n\nInvested: %.3f SOL / Max: %g SOL\n%s",
		e.positions.FormatPositionsReport(prices),
		e.positions.TotalSOLInvested(), e.cfg.Risk.MaxPortfolioSOL,
		e.positions.FormatStats()), nil
}

// Stats renders the aggregate trading statistics.
func (e *Engine) Stats() (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	return e.positions.FormatStats(), nil
}

// MemoryContext renders the strategy memory digest.
func (e *Engine) MemoryContext() (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	return e.memory.BuildContext(), nil
}

// Learn stores operator guidance in memory.
func (e *Engine) Learn(ctx context.Context, note string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if note == "" {
		return validationErrorf("provide a note with the lesson to learn")
	}
	return e.memory.AddUserNote(ctx, note)
}

func (e *Engine) submit(ctx context.Context, receipt *models.SwapReceipt) (string, error) {
	if receipt == nil || receipt.SwapTransaction == "" {
		return "", errors.New("router returned no swap transaction")
	}
	sig, err := e.chain.SignAndSubmit(ctx, receipt.SwapTransaction)
	if err != nil {
		return "", fmt.Errorf("could not submit swap transaction: %w", err)
	}
	return sig, nil
}

func (e *Engine) review(ctx context.Context, pos models.Position, info *models.TokenInfo, pnlSOL, pnlPct, holdMin float64, reason string) error {
	req := memory.ReviewRequest{
		Token:       pos.TokenAddress,
		Symbol:      pos.Symbol,
		Side:        SideSell,
		PnLSOL:      pnlSOL,
		PnLPct:      pnlPct,
		TrendScore:  defaultReviewScore,
		BuyRatio:    defaultReviewBuyRatio,
		HoldTimeMin: holdMin,
		Reason:      reason,
	}
	if info != nil {
		req.TrendScore = Score(*info)
		req.LiquidityUSD = info.LiquidityUSD
		if r, ok := info.BuyRatio(); ok {
			req.BuyRatio = r * 100
		}
	}
	return e.memory.RecordTradeReview(ctx, req)
}

func addressesOf(ps []models.Position) []string {
	var out []string
	for _, p := range ps {
		if !slices.Contains(out, p.TokenAddress) {
			out = append(out, p.TokenAddress)
		}
	}
	return out
}

func toLamports(sol float64) uint64 {
	return uint64(sol * lamportsPerSOL)
}
