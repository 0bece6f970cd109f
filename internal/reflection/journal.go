package reflection

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"market-matrix/internal/position"
)

// Journal appends rendered lessons to a markdown log. It implements
// position.CloseListener so lessons are produced as trades close; a write
// failure is logged and never fails the cycle.
type Journal struct {
	mu     sync.Mutex
	path   string
	logger zerolog.Logger
}

// NewJournal creates a lesson journal writing to path.
func NewJournal(path string, logger zerolog.Logger) *Journal {
	return &Journal{
		path:   path,
		logger: logger.With().Str("component", "lesson_journal").Logger(),
	}
}

// OnTradeClosed generates and appends the post-mortem for one closed trade.
func (j *Journal) OnTradeClosed(_ context.Context, trade position.ClosedTrade, stats position.RunningStats) {
	lesson := Generate(trade)

	block := fmt.Sprintf(
		"## %s %s — %s (%s)\n\n- Closed: %s\n- Entry %.6g, exit %.6g, PnL %.2f%% ($%.2f)\n- Running record: %d-%d, streak %d losses\n\n%s\n\n`adjustment: %s`\n\n",
		trade.Symbol, trade.Side, trade.Result, trade.ExitReason,
		trade.ExitTime.Format("2006-01-02 15:04:05"),
		trade.EntryPrice, trade.ExitPrice, trade.PnlPercent, trade.PnlUSD,
		stats.Wins, stats.Losses, stats.ConsecutiveLosses,
		lesson.Text, lesson.StrategyAdjustment)

	if err := j.append(block); err != nil {
		j.logger.Error().Err(err).Str("trade_id", trade.TradeID).Msg("failed to append lesson")
		return
	}
	j.logger.Info().Str("trade_id", trade.TradeID).Str("adjustment", lesson.StrategyAdjustment).Msg("lesson recorded")
}

func (j *Journal) append(block string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if dir := filepath.Dir(j.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(block)
	return err
}
