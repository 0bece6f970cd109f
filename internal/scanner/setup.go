package scanner

import (
	"time"

	"market-matrix/internal/market"
	"market-matrix/internal/position"
)

// BuildSetup synthesizes a trade setup from a scored analysis. Returns nil
// when the score is below the threshold or the tactical snapshot has no
// usable price or ATR; a setup is never emitted with guessed levels.
func (s *Scanner) BuildSetup(a *Analysis, score ConfluenceScore, now time.Time) *position.TradeSetup {
	if score.Score < s.confCfg.MinScore || score.Side == "" {
		return nil
	}

	m15 := a.Snapshot(market.Timeframe15m)
	if m15 == nil || m15.Price <= 0 || m15.ATR <= 0 {
		s.logger.Warn().Str("symbol", a.Symbol).Msg("setup discarded: missing price or ATR")
		return nil
	}

	entry := m15.Price
	stopDistance := s.paperCfg.StopATRMultiplier * m15.ATR
	targetDistance := s.paperCfg.TargetATRMultiplier * m15.ATR

	setup := &position.TradeSetup{
		Symbol:        a.Symbol,
		Side:          position.Side(score.Side),
		Confluence:    score.Score,
		Factors:       score.Factors,
		Entry:         entry,
		RiskPercent:   stopDistance / entry * 100,
		RewardPercent: targetDistance / entry * 100,
		Timestamp:     now,
	}
	if setup.Side == position.SideLong {
		setup.StopLoss = entry - stopDistance
		setup.TakeProfit = entry + targetDistance
	} else {
		setup.StopLoss = entry + stopDistance
		setup.TakeProfit = entry - targetDistance
	}

	s.logger.Info().
		Str("symbol", a.Symbol).
		Str("side", score.Side).
		Float64("confluence", score.Score).
		Float64("entry", setup.Entry).
		Float64("stop_loss", setup.StopLoss).
		Float64("take_profit", setup.TakeProfit).
		Msg("trade setup generated")
	return setup
}
