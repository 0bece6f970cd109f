package position

import (
	"context"
	"fmt"
)

// TrailingResult summarizes one live trailing pass.
type TrailingResult struct {
	Tracked   int
	Triggered []TrailEvent
}

// UpdateTrailing runs the trailing policy against positions held at the
// exchange rather than the simulated book. Live positions are snapshotted
// from the configured position source; trailing state for symbols that no
// longer appear live is dropped. A trigger issues a close through the
// executor and the trail state is removed only when that close succeeds.
func (m *Manager) UpdateTrailing(ctx context.Context) (*TrailingResult, error) {
	if m.livePos == nil || m.closer == nil {
		return nil, fmt.Errorf("live trailing requires a position source and close executor")
	}

	state, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	live, err := m.livePos.OpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch live positions: %w", err)
	}

	liveBySymbol := make(map[string]bool, len(live))
	for _, lp := range live {
		liveBySymbol[lp.Symbol] = true
	}
	for sym := range state.LiveTrails {
		if !liveBySymbol[sym] {
			m.logger.Info().Str("symbol", sym).Msg("live position gone, dropping trail state")
			delete(state.LiveTrails, sym)
		}
	}

	result := &TrailingResult{Tracked: len(live)}
	for _, lp := range live {
		price, err := m.prices.CurrentPrice(ctx, lp.Symbol)
		if err != nil {
			m.logger.Warn().Err(err).Str("symbol", lp.Symbol).Msg("price lookup failed, skipping live symbol this cycle")
			continue
		}

		trail, ok := state.LiveTrails[lp.Symbol]
		if !ok {
			trail = &LiveTrailState{
				Symbol:     lp.Symbol,
				Side:       Side(lp.Side),
				EntryPrice: lp.EntryPrice,
				BestPrice:  price,
				StartTime:  m.now(),
			}
			state.LiveTrails[lp.Symbol] = trail
		}

		if !m.advanceLiveTrail(trail, price) {
			continue
		}

		if err := m.closer.ClosePosition(ctx, lp.Symbol); err != nil {
			m.logger.Error().Err(err).Str("symbol", lp.Symbol).Msg("trailing close failed, keeping trail state for retry")
			continue
		}

		event := TrailEvent{
			Symbol: lp.Symbol,
			Reason: string(ExitTrailingTP),
			Price:  price,
			Time:   m.now(),
		}
		state.TrailEvents = append(state.TrailEvents, event)
		result.Triggered = append(result.Triggered, event)
		delete(state.LiveTrails, lp.Symbol)

		m.logger.Info().
			Str("symbol", lp.Symbol).
			Float64("price", price).
			Msg("live position closed by trailing take-profit")
	}

	if err := m.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to persist trailing state: %w", err)
	}
	return result, nil
}

// advanceLiveTrail applies the same activate-ratchet-trigger sequence as the
// simulated book and reports whether the trail was crossed at this price.
func (m *Manager) advanceLiveTrail(trail *LiveTrailState, price float64) bool {
	profit := favorableMove(trail.Side, trail.EntryPrice, price)

	if !trail.Activated {
		if profit < m.trailCfg.MinProfitPercent {
			return false
		}
		trail.Activated = true
		trail.BestPrice = price
		trail.TrailLevel = m.trailLevelFrom(trail.Side, price)
		m.logger.Info().
			Str("symbol", trail.Symbol).
			Float64("trail_level", trail.TrailLevel).
			Msg("live trailing activated")
	}

	if trail.Side == SideShort {
		if price < trail.BestPrice {
			trail.BestPrice = price
			trail.TrailLevel = m.trailLevelFrom(trail.Side, price)
		}
		return price >= trail.TrailLevel
	}

	if price > trail.BestPrice {
		trail.BestPrice = price
		trail.TrailLevel = m.trailLevelFrom(trail.Side, price)
	}
	return price <= trail.TrailLevel
}
