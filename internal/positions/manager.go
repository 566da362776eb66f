// Package positions tracks open and closed positions, realized P&L and trade sizing.
package positions

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-trade-bot-go/internal/models"
	"solana-trade-bot-go/internal/store"
)

const (
	storeKey = "positions"

	// maxTradeLog is the number of trade log entries kept on save.
	maxTradeLog = 500

	minTradesForSizing = 5
	minTradeSizeSOL    = 0.01
)

// document is the persisted shape of the manager state.
type document struct {
	Positions []models.Position      `json:"positions"`
	TradeLog  []models.TradeLogEntry `json:"trade_log"`
	Stats     models.Stats           `json:"stats"`
}

// OpenRequest describes a freshly executed buy.
type OpenRequest struct {
	TokenAddress  string
	Symbol        string
	EntryPriceUSD float64
	AmountTokens  float64
	AmountSOLIn   float64
	StopLossPct   float64
	TakeProfitPct float64
}

// Trigger is an open position whose stop-loss or take-profit was hit.
type Trigger struct {
	Position models.Position
	Reason   models.PositionStatus
}

// Summary is Stats plus derived totals.
type Summary struct {
	models.Stats
	TotalTrades int     `json:"total_trades"`
	WinRatePct  float64 `json:"win_rate_pct"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager owns all positions. Every mutation is persisted before it returns.
type Manager struct {
	mu     sync.Mutex
	store  store.Store
	logger *zap.Logger
	now    func() time.Time

	positions []models.Position
	tradeLog  []models.TradeLogEntry
	stats     models.Stats
}

// NewManager creates a manager and loads its state from st. A missing or unreadable
// document starts the manager empty.
func NewManager(ctx context.Context, st store.Store, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  st,
		logger: logger.Named("positions"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.Reload(ctx)
	return m
}

// Reload replaces the in-memory state with the stored document.
func (m *Manager) Reload(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var doc document
	err := m.store.Load(ctx, storeKey, &doc)
	switch {
	case errors.Is(err, store.ErrNotFound):
		doc = document{}
	case err != nil:
		m.logger.Warn("Failed to load positions, starting empty", zap.Error(err))
		doc = document{}
	}

	m.positions = doc.Positions
	m.tradeLog = doc.TradeLog
	m.stats = doc.Stats
}

func (m *Manager) save(ctx context.Context) error {
	log := m.tradeLog
	if len(log) > maxTradeLog {
		log = log[len(log)-maxTradeLog:]
		m.tradeLog = log
	}
	doc := document{Positions: m.positions, TradeLog: log, Stats: m.stats}
	if err := m.store.Save(ctx, storeKey, doc); err != nil {
		return fmt.Errorf("failed to persist positions: %w", err)
	}
	return nil
}

type state struct {
	positions []models.Position
	tradeLog  []models.TradeLogEntry
	stats     models.Stats
}

func (m *Manager) snapshot() state {
	return state{positions: slices.Clone(m.positions), tradeLog: m.tradeLog, stats: m.stats}
}

// commit persists the state. A failed write restores prev, so the manager never holds unsaved changes.
func (m *Manager) commit(ctx context.Context, prev state) error {
	if err := m.save(ctx); err != nil {
		m.positions, m.tradeLog, m.stats = prev.positions, prev.tradeLog, prev.stats
		return err
	}
	return nil
}

// Open records a new open position with stop-loss and take-profit prices derived from the entry.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.snapshot()
	now := m.now()
	pos := models.Position{
		TokenAddress:    req.TokenAddress,
		Symbol:          req.Symbol,
		EntryPriceUSD:   req.EntryPriceUSD,
		AmountTokens:    req.AmountTokens,
		AmountSOLIn:     req.AmountSOLIn,
		EntryTime:       now,
		StopLossPrice:   req.EntryPriceUSD * (1 - req.StopLossPct/100),
		TakeProfitPrice: req.EntryPriceUSD * (1 + req.TakeProfitPct/100),
		Status:          models.StatusOpen,
	}
	m.positions = append(m.positions, pos)
	m.tradeLog = append(m.tradeLog, models.TradeLogEntry{
		Action:    models.ActionBuy,
		Token:     req.TokenAddress,
		Symbol:    req.Symbol,
		Price:     req.EntryPriceUSD,
		SOLAmount: req.AmountSOLIn,
		Time:      now,
	})

	if err := m.commit(ctx, prev); err != nil {
		return pos, err
	}

	m.logger.Info("Opened position",
		zap.String("token", pos.TokenAddress),
		zap.String("symbol", pos.Symbol),
		zap.Float64("entry_price", pos.EntryPriceUSD),
		zap.Float64("sol_in", pos.AmountSOLIn),
		zap.Float64("stop_loss", pos.StopLossPrice),
		zap.Float64("take_profit", pos.TakeProfitPrice))
	return pos, nil
}

// Close closes the first open position for the token in storage order. found is false
// when there is no open position for it.
func (m *Manager) Close(ctx context.Context, token string, exitPrice, solOut float64, reason models.PositionStatus) (pos models.Position, found bool, err error) {
	if !reason.IsTerminal() {
		return models.Position{}, false, fmt.Errorf("invalid close reason %q", reason)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i := range m.positions {
		if m.positions[i].TokenAddress == token && m.positions[i].IsOpen() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.Position{}, false, nil
	}

	prev := m.snapshot()
	p := &m.positions[idx]
	p.Status = reason
	pnlSOL := solOut - p.AmountSOLIn
	pnlPct := p.PnLPct(exitPrice)

	m.stats.TotalPnLSOL = round(m.stats.TotalPnLSOL+pnlSOL, 6)
	if pnlSOL >= 0 {
		m.stats.Wins++
	} else {
		m.stats.Losses++
	}

	roundedSOL, roundedPct := round(pnlSOL, 6), round(pnlPct, 2)
	m.tradeLog = append(m.tradeLog, models.TradeLogEntry{
		Action:     models.ActionSell,
		Token:      token,
		Symbol:     p.Symbol,
		EntryPrice: p.EntryPriceUSD,
		ExitPrice:  exitPrice,
		SOLIn:      p.AmountSOLIn,
		SOLOut:     solOut,
		PnLSOL:     &roundedSOL,
		PnLPct:     &roundedPct,
		Reason:     string(reason),
		Time:       m.now(),
	})

	closed := *p
	if err := m.commit(ctx, prev); err != nil {
		return closed, true, err
	}

	m.logger.Info("Closed position",
		zap.String("token", token),
		zap.String("symbol", closed.Symbol),
		zap.String("reason", string(reason)),
		zap.Float64("pnl_sol", roundedSOL),
		zap.Float64("pnl_pct", roundedPct))
	return closed, true, nil
}

// UpdateLimits recomputes the stop-loss and take-profit of the first open position for the
// token from its entry price. A non-positive percentage leaves that bound unchanged.
func (m *Manager) UpdateLimits(ctx context.Context, token string, stopLossPct, takeProfitPct float64) (models.Position, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.positions {
		p := &m.positions[i]
		if p.TokenAddress != token || !p.IsOpen() {
			continue
		}
		prev := m.snapshot()
		if stopLossPct > 0 {
			p.StopLossPrice = p.EntryPriceUSD * (1 - stopLossPct/100)
		}
		if takeProfitPct > 0 {
			p.TakeProfitPrice = p.EntryPriceUSD * (1 + takeProfitPct/100)
		}
		updated := *p
		return updated, true, m.commit(ctx, prev)
	}
	return models.Position{}, false, nil
}

// CheckTriggers evaluates every open position with a known positive price. Stop-loss is
// checked first, so a position triggers at most once.
func (m *Manager) CheckTriggers(prices map[string]float64) []Trigger {
	var triggered []Trigger
	for _, p := range m.OpenPositions() {
		price, ok := prices[p.TokenAddress]
		if !ok || price <= 0 {
			continue
		}
		if price <= p.StopLossPrice {
			triggered = append(triggered, Trigger{Position: p, Reason: models.StatusStoppedOut})
		} else if price >= p.TakeProfitPrice {
			triggered = append(triggered, Trigger{Position: p, Reason: models.StatusTookProfit})
		}
	}
	return triggered
}

// OpenPositions returns copies of all open positions in storage order.
func (m *Manager) OpenPositions() []models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	var open []models.Position
	for _, p := range m.positions {
		if p.IsOpen() {
			open = append(open, p)
		}
	}
	return open
}

// PositionsForToken returns the open positions for a token.
func (m *Manager) PositionsForToken(token string) []models.Position {
	var out []models.Position
	for _, p := range m.OpenPositions() {
		if p.TokenAddress == token {
			out = append(out, p)
		}
	}
	return out
}

// TotalSOLInvested sums the SOL committed to open positions.
func (m *Manager) TotalSOLInvested() float64 {
	var total float64
	for _, p := range m.OpenPositions() {
		total += p.AmountSOLIn
	}
	return total
}

// LastTradeTime returns the time of the newest trade log entry for the token.
func (m *Manager) LastTradeTime(token string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.tradeLog) - 1; i >= 0; i-- {
		if m.tradeLog[i].Token == token {
			return m.tradeLog[i].Time, true
		}
	}
	return time.Time{}, false
}

// TradeHistory returns up to limit of the most recent trade log entries, oldest first.
func (m *Manager) TradeHistory(limit int) []models.TradeLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := 0
	if limit >= 0 && len(m.tradeLog) > limit {
		start = len(m.tradeLog) - limit
	}
	out := make([]models.TradeLogEntry, len(m.tradeLog)-start)
	copy(out, m.tradeLog[start:])
	return out
}

// Stats returns the aggregate counters and the win rate.
func (m *Manager) Stats() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := m.stats.TotalTrades()
	var winRate float64
	if total > 0 {
		winRate = round(float64(m.stats.Wins)/float64(total)*100, 1)
	}
	return Summary{Stats: m.stats, TotalTrades: total, WinRatePct: winRate}
}

// SuggestTradeSize scales the base size by the historical win rate once at least five
// trades have closed. The result never exceeds twice the base or a tenth of the balance.
func (m *Manager) SuggestTradeSize(baseSOL, balanceSOL float64) float64 {
	s := m.Stats()
	if s.TotalTrades < minTradesForSizing {
		return baseSOL
	}

	var multiplier float64
	switch {
	case s.WinRatePct >= 70:
		multiplier = 1.5
	case s.WinRatePct >= 55:
		multiplier = 1.2
	case s.WinRatePct < 40:
		multiplier = 0.5
	default:
		multiplier = 1.0
	}

	suggested := min(baseSOL*multiplier, baseSOL*2, balanceSOL*0.1)
	return round(max(suggested, minTradeSizeSOL), 4)
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
