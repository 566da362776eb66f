package memory

import (
	"fmt"
	"strings"

	"solana-trade-bot-go/internal/models"
	"solana-trade-bot-go/internal/textfmt"
)

// EmptyContext is returned by BuildContext when nothing has been recorded yet.
const EmptyContext = "No trading memory yet. Start trading to build experience."

const (
	contextLessons      = 15
	contextNotes        = 10
	contextAvoidWindow  = 20
	contextAvoidShown   = 10
	contextReviewWindow = 50
)

// BuildContext renders the memory as a digest to read before making trading decisions.
func (m *Memory) BuildContext() string {
	lessons := m.Lessons(contextLessons)
	patterns := m.Patterns()
	notes := m.UserNotes(contextNotes)
	reviews := m.Reviews(contextReviewWindow)

	m.mu.Lock()
	avoids := append([]models.AvoidEntry(nil), lastN(m.data.AvoidTokens, contextAvoidWindow)...)
	m.mu.Unlock()

	var sections []string
	if len(lessons) > 0 {
		sections = append(sections, bulletSection("LEARNED LESSONS:", lessons))
	}
	if len(patterns) > 0 {
		sections = append(sections, bulletSection("WINNING PATTERNS:", patterns))
	}
	if len(notes) > 0 {
		sections = append(sections, bulletSection("USER GUIDANCE:", notes))
	}
	if len(avoids) > 0 {
		var lines []string
		for _, a := range lastN(avoids, contextAvoidShown) {
			lines = append(lines, fmt.Sprintf("%s : %s", textfmt.Shorten(a.Address, 16), a.Reason))
		}
		sections = append(sections, bulletSection(fmt.Sprintf("AVOID LIST (%d tokens):", len(avoids)), lines))
	}
	if len(reviews) > 0 {
		sections = append(sections, performanceSection(reviews))
	}

	if len(sections) == 0 {
		return EmptyContext
	}
	return strings.Join(sections, "\n\n")
}

func bulletSection(title string, items []string) string {
	var b strings.Builder
	b.WriteString(title)
	for _, item := range items {
		b.WriteString("\n  - ")
		b.WriteString(item)
	}
	return b.String()
}

type bucket struct {
	count    int
	pnlSum   float64
	scoreSum float64
}

func (b bucket) avgPnL() float64 {
	if b.count == 0 {
		return 0
	}
	return b.pnlSum / float64(b.count)
}

func (b bucket) avgScore() float64 {
	if b.count == 0 {
		return 0
	}
	return b.scoreSum / float64(b.count)
}

func performanceSection(reviews []models.TradeReview) string {
	var wins, losses bucket
	for _, r := range reviews {
		b := &losses
		if r.PnLPct > 0 {
			b = &wins
		}
		b.count++
		b.pnlSum += r.PnLPct
		b.scoreSum += float64(r.TrendScore)
	}

	lines := []string{
		fmt.Sprintf("RECENT PERFORMANCE (%d trades):", len(reviews)),
		fmt.Sprintf("  Wins: %d (avg +%.1f%%, avg score %.0f)", wins.count, wins.avgPnL(), wins.avgScore()),
		fmt.Sprintf("  Losses: %d (avg %.1f%%, avg score %.0f)", losses.count, losses.avgPnL(), losses.avgScore()),
	}
	if wins.avgScore() > losses.avgScore() {
		lines = append(lines, fmt.Sprintf("  Insight: Higher scores (%.0f+) correlate with wins", wins.avgScore()))
	}
	return strings.Join(lines, "\n")
}
