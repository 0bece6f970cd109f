// Package position tracks simulated positions through their lifecycle:
// open, trailing-active, closed. One manager owns both the fixed stop/target
// checks and the trailing take-profit policy, with pluggable market data and
// reconciliation sources.
package position

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"market-matrix/config"
	"market-matrix/internal/market"
	"market-matrix/internal/telemetry"
)

// Manager runs one lifecycle pass per invocation. It must not be run
// concurrently against the same store; the caller serializes cycles.
type Manager struct {
	paperCfg config.PaperConfig
	trailCfg config.TrailingConfig

	store     Store
	prices    market.PriceSource
	livePos   market.PositionSource
	closer    market.CloseExecutor
	listeners []CloseListener
	sink      telemetry.Sink

	logger zerolog.Logger
	now    func() time.Time
	newID  func() string
}

// NewManager creates a position lifecycle manager.
func NewManager(paperCfg config.PaperConfig, trailCfg config.TrailingConfig, st Store, prices market.PriceSource, logger zerolog.Logger) *Manager {
	return &Manager{
		paperCfg: paperCfg,
		trailCfg: trailCfg,
		store:    st,
		prices:   prices,
		sink:     telemetry.NewNopSink(),
		logger:   logger.With().Str("component", "position_manager").Logger(),
		now:      time.Now,
		newID:    mintTradeID,
	}
}

// SetReconciliation wires the optional live exchange sources used by the
// trailing update pass.
func (m *Manager) SetReconciliation(livePos market.PositionSource, closer market.CloseExecutor) {
	m.livePos = livePos
	m.closer = closer
}

// AddCloseListener registers a listener invoked after each persisted close.
func (m *Manager) AddCloseListener(l CloseListener) {
	m.listeners = append(m.listeners, l)
}

// SetTelemetry replaces the default no-op telemetry sink.
func (m *Manager) SetTelemetry(sink telemetry.Sink) {
	if sink != nil {
		m.sink = sink
	}
}

// SetClock overrides the time source. Used by tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// SetIDSource overrides trade ID minting. Used by tests.
func (m *Manager) SetIDSource(newID func() string) { m.newID = newID }

// mintTradeID returns an ID in the prefix-timestamp-random form.
func mintTradeID() string {
	return fmt.Sprintf("TRD-%d-%s", time.Now().Unix(), uuid.New().String()[:8])
}

// ============================================================================
// OPENING
// ============================================================================

// AcceptSetups opens tracked positions for eligible setups and persists the
// result in one write. Setups for already-tracked symbols are ignored, the
// circuit breaker blocks all acceptance, and the open-position cap applies.
func (m *Manager) AcceptSetups(ctx context.Context, setups []TradeSetup) ([]*TrackedPosition, error) {
	if len(setups) == 0 {
		return nil, nil
	}

	state, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	var opened []*TrackedPosition
	for _, setup := range setups {
		pos, ok := m.openFromSetup(state, setup)
		if ok {
			opened = append(opened, pos)
		}
	}

	if len(opened) == 0 {
		return nil, nil
	}
	if err := m.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to persist opened positions: %w", err)
	}

	for _, pos := range opened {
		m.sink.RecordSignal(ctx, pos.Symbol, string(pos.Side), pos.Confluence)
		m.logger.Info().
			Str("trade_id", pos.TradeID).
			Str("symbol", pos.Symbol).
			Str("side", string(pos.Side)).
			Float64("entry", pos.EntryPrice).
			Float64("stop_loss", pos.StopLoss).
			Float64("take_profit", pos.TakeProfit).
			Msg("position opened")
	}
	return opened, nil
}

func (m *Manager) openFromSetup(state *State, setup TradeSetup) (*TrackedPosition, bool) {
	if state.Stats.CircuitBreakerActive {
		m.logger.Warn().Str("symbol", setup.Symbol).Msg("circuit breaker active, setup rejected")
		return nil, false
	}
	if _, exists := state.Positions[setup.Symbol]; exists {
		m.logger.Debug().Str("symbol", setup.Symbol).Msg("symbol already tracked, setup ignored")
		return nil, false
	}
	if len(state.Positions) >= m.paperCfg.MaxOpenPositions {
		m.logger.Warn().Str("symbol", setup.Symbol).Int("max", m.paperCfg.MaxOpenPositions).Msg("max open positions reached, setup rejected")
		return nil, false
	}
	if setup.Entry <= 0 || setup.StopLoss <= 0 || setup.TakeProfit <= 0 {
		m.logger.Warn().Str("symbol", setup.Symbol).Msg("setup has invalid levels, discarded")
		return nil, false
	}

	pos := &TrackedPosition{
		TradeID:         m.newID(),
		Symbol:          setup.Symbol,
		Side:            setup.Side,
		EntryPrice:      setup.Entry,
		StopLoss:        setup.StopLoss,
		TakeProfit:      setup.TakeProfit,
		Confluence:      setup.Confluence,
		Factors:         setup.Factors,
		PositionSizeUSD: m.paperCfg.PositionSizeUSD,
		EntryTime:       m.now(),
	}
	state.Positions[setup.Symbol] = pos
	return pos, true
}

// ============================================================================
// LIFECYCLE PASS
// ============================================================================

// CheckResult summarizes one lifecycle pass for cycle output.
type CheckResult struct {
	Open   int
	Closed []ClosedTrade
	Stats  RunningStats
}

// CheckPositions runs one pass over every tracked position: fixed stop and
// target first, then the trailing policy. All decisions are computed before
// the single state write; price lookup failures skip the affected symbol
// without touching its state.
func (m *Manager) CheckPositions(ctx context.Context) (*CheckResult, error) {
	state, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(state.Positions))
	for sym := range state.Positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var closes []ClosedTrade
	for _, sym := range symbols {
		pos := state.Positions[sym]

		price, err := m.prices.CurrentPrice(ctx, sym)
		if err != nil {
			m.logger.Warn().Err(err).Str("symbol", sym).Msg("price lookup failed, skipping symbol this cycle")
			continue
		}

		if trade, closed := m.evaluate(pos, price); closed {
			closes = append(closes, *trade)
		}
	}

	for _, trade := range closes {
		delete(state.Positions, trade.Symbol)
		state.History = append(state.History, trade)
		m.applyStats(&state.Stats, trade)
	}

	if err := m.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to persist position state: %w", err)
	}

	for _, trade := range closes {
		m.logger.Info().
			Str("trade_id", trade.TradeID).
			Str("symbol", trade.Symbol).
			Str("exit_reason", string(trade.ExitReason)).
			Float64("exit_price", trade.ExitPrice).
			Float64("pnl_percent", trade.PnlPercent).
			Str("result", string(trade.Result)).
			Msg("position closed")
		m.sink.RecordTradeClosed(ctx, trade.Symbol, trade.PnlPercent, string(trade.Result))
		for _, l := range m.listeners {
			l.OnTradeClosed(ctx, trade, state.Stats)
		}
	}

	if state.Stats.CircuitBreakerActive {
		m.logger.Warn().Int("consecutive_losses", state.Stats.ConsecutiveLosses).Msg("circuit breaker active, no new positions will be accepted")
	}

	return &CheckResult{
		Open:   len(state.Positions),
		Closed: closes,
		Stats:  state.Stats,
	}, nil
}

// evaluate applies the exit rules to one position. Fixed levels are checked
// before the trailing level; when both would fire in the same cycle the fixed
// exit wins. Trailing state mutations stay on the position when no exit fires.
func (m *Manager) evaluate(pos *TrackedPosition, price float64) (*ClosedTrade, bool) {
	if exitPrice, reason, hit := m.checkFixedExits(pos, price); hit {
		return m.close(pos, exitPrice, reason), true
	}
	if exitPrice, hit := m.updateTrailing(pos, price); hit {
		return m.close(pos, exitPrice, ExitTrailingTP), true
	}
	return nil, false
}

func (m *Manager) checkFixedExits(pos *TrackedPosition, price float64) (float64, ExitReason, bool) {
	if pos.Side == SideLong {
		if price >= pos.TakeProfit {
			return pos.TakeProfit, ExitTakeProfit, true
		}
		if price <= pos.StopLoss {
			return pos.StopLoss, ExitStopLoss, true
		}
		return 0, ExitUnknown, false
	}

	if price <= pos.TakeProfit {
		return pos.TakeProfit, ExitTakeProfit, true
	}
	if price >= pos.StopLoss {
		return pos.StopLoss, ExitStopLoss, true
	}
	return 0, ExitUnknown, false
}

// updateTrailing arms, ratchets and checks the trailing level. The trail sits
// on the unfavorable side of the best price by the configured percent and
// only ever tightens. An exit closes at the observed crossing price.
func (m *Manager) updateTrailing(pos *TrackedPosition, price float64) (float64, bool) {
	t := &pos.Trailing
	profit := favorableMove(pos.Side, pos.EntryPrice, price)

	if !t.Activated {
		if profit < m.trailCfg.MinProfitPercent {
			return 0, false
		}
		t.Activated = true
		t.BestPrice = price
		t.TrailLevel = m.trailLevelFrom(pos.Side, price)
		m.logger.Info().
			Str("symbol", pos.Symbol).
			Float64("trail_level", t.TrailLevel).
			Float64("profit_percent", profit*100).
			Msg("trailing activated")
	}

	if pos.Side == SideShort {
		if price < t.BestPrice {
			t.BestPrice = price
			t.TrailLevel = m.trailLevelFrom(pos.Side, price)
		}
		if price >= t.TrailLevel {
			return price, true
		}
		return 0, false
	}

	if price > t.BestPrice {
		t.BestPrice = price
		t.TrailLevel = m.trailLevelFrom(pos.Side, price)
	}
	if price <= t.TrailLevel {
		return price, true
	}
	return 0, false
}

func (m *Manager) trailLevelFrom(side Side, best float64) float64 {
	if side == SideShort {
		return best * (1 + m.trailCfg.TrailPercent)
	}
	return best * (1 - m.trailCfg.TrailPercent)
}

func (m *Manager) close(pos *TrackedPosition, exitPrice float64, reason ExitReason) *ClosedTrade {
	pnlPercent := favorableMove(pos.Side, pos.EntryPrice, exitPrice) * 100
	pnlUSD := pos.PositionSizeUSD * pnlPercent / 100

	result := ResultWin
	if pnlPercent < 0 {
		result = ResultLoss
	}

	return &ClosedTrade{
		TrackedPosition: *pos,
		ExitPrice:       exitPrice,
		ExitTime:        m.now(),
		ExitReason:      reason,
		PnlUSD:          pnlUSD,
		PnlPercent:      pnlPercent,
		Result:          result,
	}
}

// applyStats updates running stats for one close. The circuit breaker trips
// on the configured loss streak and stays tripped until an explicit reset.
func (m *Manager) applyStats(stats *RunningStats, trade ClosedTrade) {
	stats.TotalTrades++
	stats.TotalPnlUSD += trade.PnlUSD

	if trade.Result == ResultWin {
		stats.Wins++
		stats.ConsecutiveLosses = 0
		return
	}

	stats.Losses++
	stats.ConsecutiveLosses++
	if stats.ConsecutiveLosses >= m.paperCfg.MaxConsecutiveLosses && !stats.CircuitBreakerActive {
		stats.CircuitBreakerActive = true
		m.logger.Warn().Int("consecutive_losses", stats.ConsecutiveLosses).Msg("circuit breaker tripped")
	}
}

// favorableMove returns the favorable-direction fractional move from entry.
func favorableMove(side Side, entry, price float64) float64 {
	if entry == 0 {
		return 0
	}
	if side == SideShort {
		return (entry - price) / entry
	}
	return (price - entry) / entry
}

// ============================================================================
// CIRCUIT BREAKER
// ============================================================================

// ResetCircuitBreaker clears the breaker flag and the loss streak. This is
// the only mechanism that ever clears the breaker.
func (m *Manager) ResetCircuitBreaker(ctx context.Context) error {
	state, err := m.store.Load(ctx)
	if err != nil {
		return err
	}

	state.Stats.CircuitBreakerActive = false
	state.Stats.ConsecutiveLosses = 0

	if err := m.store.Save(ctx, state); err != nil {
		return fmt.Errorf("failed to persist circuit breaker reset: %w", err)
	}
	m.logger.Info().Msg("circuit breaker reset")
	return nil
}

// Stats returns the current running stats.
func (m *Manager) Stats(ctx context.Context) (RunningStats, error) {
	state, err := m.store.Load(ctx)
	if err != nil {
		return RunningStats{}, err
	}
	return state.Stats, nil
}
