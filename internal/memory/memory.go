// Package memory is the bot's persistent strategy memory: lessons, an avoid list, winning
// patterns, operator notes and post-trade reviews.
package memory

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
	"solana-trade-bot-go/internal/textfmt"
)

const (
	storeKey = "strategy"

	// maxEntries bounds lessons, reviews and notes at write time.
	maxEntries = 200

	autoLossPct = -30
	autoWinPct  = 50
)

// Lesson sources.
const (
	SourceUser     = "user"
	SourceAuto     = "auto"
	SourceAutoLoss = "auto_loss"
	SourceAutoWin  = "auto_win"
)

type document struct {
	Lessons        []models.Lesson      `json:"lessons"`
	AvoidTokens    []models.AvoidEntry  `json:"avoid_tokens"`
	PreferPatterns []string             `json:"prefer_patterns"`
	SessionNotes   []models.UserNote    `json:"session_notes"`
	TradeReviews   []models.TradeReview `json:"trade_reviews"`
}

// ReviewRequest is the outcome of a trade as seen by the orchestrator.
type ReviewRequest struct {
	Token        string
	Symbol       string
	Side         string
	PnLSOL       float64
	PnLPct       float64
	TrendScore   int
	BuyRatio     float64 // percent
	LiquidityUSD float64
	HoldTimeMin  float64
	Reason       string
}

// Option configures a Memory.
type Option func(*Memory)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		m.now = now
	}
}

// Memory is an append-only knowledge store persisted on every write.
type Memory struct {
	mu     sync.Mutex
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
	data   document
}

// New creates the memory and loads it from st. Unreadable data starts an empty memory.
func New(ctx context.Context, st store.Store, logger *zap.Logger, opts ...Option) *Memory {
	m := &Memory{
		store:  st,
		logger: logger.Named("memory"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.Reload(ctx)
	return m
}

// Reload replaces the in-memory state with the stored document.
func (m *Memory) Reload(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var doc document
	err := m.store.Load(ctx, storeKey, &doc)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		m.logger.Warn("Failed to load strategy memory, starting empty", zap.Error(err))
		doc = document{}
	}
	m.data = doc
}

func (m *Memory) save(ctx context.Context) error {
	m.data.Lessons = lastN(m.data.Lessons, maxEntries)
	m.data.TradeReviews = lastN(m.data.TradeReviews, maxEntries)
	m.data.SessionNotes = lastN(m.data.SessionNotes, maxEntries)
	if err := m.store.Save(ctx, storeKey, m.data); err != nil {
		return fmt.Errorf("failed to persist strategy memory: %w", err)
	}
	return nil
}

// commit saves the document. A failed write restores prev, so memory never holds unsaved entries.
func (m *Memory) commit(ctx context.Context, prev document) error {
	if err := m.save(ctx); err != nil {
		m.data = prev
		return err
	}
	return nil
}

// AddLesson appends a lesson.
func (m *Memory) AddLesson(ctx context.Context, text, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLesson(ctx, text, source)
}

func (m *Memory) addLesson(ctx context.Context, text, source string) error {
	prev := m.data
	m.data.Lessons = append(m.data.Lessons, models.Lesson{Text: text, Source: source, Time: m.now()})
	return m.commit(ctx, prev)
}

// Lessons returns the text of the most recent limit lessons, oldest first.
func (m *Memory) Lessons(limit int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for _, l := range lastN(m.data.Lessons, limit) {
		out = append(out, l.Text)
	}
	return out
}

// AddAvoid puts the address on the avoid list. The first reason recorded for an address wins.
func (m *Memory) AddAvoid(ctx context.Context, address, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addAvoid(ctx, address, reason)
}

func (m *Memory) addAvoid(ctx context.Context, address, reason string) error {
	for _, a := range m.data.AvoidTokens {
		if a.Address == address {
			return nil
		}
	}
	prev := m.data
	m.data.AvoidTokens = append(m.data.AvoidTokens, models.AvoidEntry{Address: address, Reason: reason, Time: m.now()})
	if err := m.commit(ctx, prev); err != nil {
		return err
	}
	m.logger.Info("Added token to avoid list", zap.String("token", address), zap.String("reason", reason))
	return nil
}

// ShouldAvoid returns the avoid reason for the address, if any.
func (m *Memory) ShouldAvoid(address string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.data.AvoidTokens {
		if a.Address == address {
			return a.Reason, true
		}
	}
	return "", false
}

// AddPattern registers a winning pattern once.
func (m *Memory) AddPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addPattern(ctx, pattern)
}

func (m *Memory) addPattern(ctx context.Context, pattern string) error {
	if slices.Contains(m.data.PreferPatterns, pattern) {
		return nil
	}
	prev := m.data
	m.data.PreferPatterns = append(m.data.PreferPatterns, pattern)
	return m.commit(ctx, prev)
}

// Patterns returns all winning patterns.
func (m *Memory) Patterns() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.data.PreferPatterns)
}

// AddUserNote stores operator guidance.
func (m *Memory) AddUserNote(ctx context.Context, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.data
	m.data.SessionNotes = append(m.data.SessionNotes, models.UserNote{Text: note, Time: m.now()})
	return m.commit(ctx, prev)
}

// UserNotes returns the most recent limit notes, oldest first.
func (m *Memory) UserNotes(limit int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for _, n := range lastN(m.data.SessionNotes, limit) {
		out = append(out, n.Text)
	}
	return out
}

// Reviews returns the most recent limit trade reviews, oldest first.
func (m *Memory) Reviews(limit int) []models.TradeReview {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(lastN(m.data.TradeReviews, limit))
}

// RecordTradeReview appends the review and derives lessons from big losses and big wins.
func (m *Memory) RecordTradeReview(ctx context.Context, req ReviewRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	review := models.TradeReview{
		Token:        req.Token,
		Symbol:       req.Symbol,
		Side:         req.Side,
		PnLSOL:       round(req.PnLSOL, 6),
		PnLPct:       round(req.PnLPct, 2),
		TrendScore:   req.TrendScore,
		BuyRatio:     round(req.BuyRatio, 1),
		LiquidityUSD: round(req.LiquidityUSD, 0),
		HoldTimeMin:  round(req.HoldTimeMin, 1),
		Reason:       req.Reason,
		Time:         m.now(),
	}
	prev := m.data
	m.data.TradeReviews = append(m.data.TradeReviews, review)
	if err := m.commit(ctx, prev); err != nil {
		return err
	}

	return m.autoLearn(ctx, req)
}

func (m *Memory) autoLearn(ctx context.Context, req ReviewRequest) error {
	liq := textfmt.Thousands(req.LiquidityUSD)

	switch {
	case req.PnLPct <= autoLossPct:
		lesson := fmt.Sprintf("Big loss on %s: score=%d, buy_ratio=%.0f%%, liq=$%s. Reason: %s. Be more cautious with similar setups.",
			req.Symbol, req.TrendScore, req.BuyRatio, liq, req.Reason)
		if err := m.addLesson(ctx, lesson, SourceAutoLoss); err != nil {
			return err
		}
		return m.addAvoid(ctx, req.Token, fmt.Sprintf("Lost %.0f%%: %s", req.PnLPct, req.Reason))

	case req.PnLPct >= autoWinPct:
		lesson := fmt.Sprintf("Big win on %s: score=%d, buy_ratio=%.0f%%, liq=$%s. Look for similar setups.",
			req.Symbol, req.TrendScore, req.BuyRatio, liq)
		if err := m.addLesson(ctx, lesson, SourceAutoWin); err != nil {
			return err
		}
		return m.addPattern(ctx, fmt.Sprintf("score>=%d,buy_ratio>=%.0f%%,liq>=$%s", req.TrendScore, req.BuyRatio, liq))
	}
	return nil
}

func lastN[T any](s []T, n int) []T {
	if n < 0 {
		return s
	}
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
