package position

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"market-matrix/config"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	state    *State
	saves    int
	failSave bool
}

func (s *memStore) Load(context.Context) (*State, error) {
	if s.state == nil {
		s.state = NewState()
	}
	return s.state, nil
}

func (s *memStore) Save(_ context.Context, state *State) error {
	if s.failSave {
		return errors.New("disk full")
	}
	s.saves++
	s.state = state
	return nil
}

// fakePrices serves scripted prices per symbol; missing symbols error.
type fakePrices struct {
	prices map[string]float64
}

func (f *fakePrices) CurrentPrice(_ context.Context, symbol string) (float64, error) {
	p, ok := f.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return p, nil
}

func testPaperConfig() config.PaperConfig {
	return config.PaperConfig{
		PositionSizeUSD:      1000,
		MaxOpenPositions:     5,
		StopATRMultiplier:    1.5,
		TargetATRMultiplier:  3.0,
		MaxConsecutiveLosses: 3,
	}
}

func testTrailConfig() config.TrailingConfig {
	return config.TrailingConfig{TrailPercent: 0.01, MinProfitPercent: 0.005}
}

func newTestManager(st Store, prices *fakePrices) *Manager {
	m := NewManager(testPaperConfig(), testTrailConfig(), st, prices, zerolog.Nop())
	m.SetClock(func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) })
	seq := 0
	m.SetIDSource(func() string {
		seq++
		return fmt.Sprintf("TRD-test-%d", seq)
	})
	return m
}

func trackShort(st *memStore, symbol string, entry, stop, target float64) *TrackedPosition {
	pos := &TrackedPosition{
		TradeID: "TRD-seed-" + symbol, Symbol: symbol, Side: SideShort,
		EntryPrice: entry, StopLoss: stop, TakeProfit: target,
		PositionSizeUSD: 1000,
	}
	if st.state == nil {
		st.state = NewState()
	}
	st.state.Positions[symbol] = pos
	return pos
}

func trackLong(st *memStore, symbol string, entry, stop, target float64) *TrackedPosition {
	pos := &TrackedPosition{
		TradeID: "TRD-seed-" + symbol, Symbol: symbol, Side: SideLong,
		EntryPrice: entry, StopLoss: stop, TakeProfit: target,
		PositionSizeUSD: 1000,
	}
	if st.state == nil {
		st.state = NewState()
	}
	st.state.Positions[symbol] = pos
	return pos
}

func checkOnce(t *testing.T, m *Manager) *CheckResult {
	t.Helper()
	result, err := m.CheckPositions(context.Background())
	if err != nil {
		t.Fatalf("CheckPositions: %v", err)
	}
	return result
}

func TestTrailingShortScenario(t *testing.T) {
	// SHORT entry=100, trail 1%, min profit 0.5%. Path 100 -> 99.4 -> 98 -> 99:
	// activation at 99.4 (0.6% profit), ratchet at 98, reversal to 99 closes
	// TRAILING_TP at 99 for +1.0%.
	st := &memStore{}
	prices := &fakePrices{prices: map[string]float64{"BTCUSDT": 100}}
	m := newTestManager(st, prices)
	trackShort(st, "BTCUSDT", 100, 110, 80)

	result := checkOnce(t, m)
	if len(result.Closed) != 0 {
		t.Fatal("no exit expected at entry price")
	}
	if st.state.Positions["BTCUSDT"].Trailing.Activated {
		t.Fatal("trailing must not arm at 0% profit")
	}

	prices.prices["BTCUSDT"] = 99.4
	checkOnce(t, m)
	trail := st.state.Positions["BTCUSDT"].Trailing
	if !trail.Activated {
		t.Fatal("trailing must arm at 0.6% profit")
	}
	if math.Abs(trail.TrailLevel-100.394) > 1e-9 {
		t.Errorf("expected trail level 100.394, got %f", trail.TrailLevel)
	}

	prices.prices["BTCUSDT"] = 98
	checkOnce(t, m)
	trail = st.state.Positions["BTCUSDT"].Trailing
	if math.Abs(trail.TrailLevel-98.98) > 1e-9 {
		t.Errorf("expected ratcheted trail level 98.98, got %f", trail.TrailLevel)
	}

	prices.prices["BTCUSDT"] = 99
	result = checkOnce(t, m)
	if len(result.Closed) != 1 {
		t.Fatal("expected trailing close on reversal through the trail")
	}
	trade := result.Closed[0]
	if trade.ExitReason != ExitTrailingTP {
		t.Errorf("expected TRAILING_TP, got %s", trade.ExitReason)
	}
	if trade.ExitPrice != 99 {
		t.Errorf("expected close at observed price 99, got %f", trade.ExitPrice)
	}
	if math.Abs(trade.PnlPercent-1.0) > 1e-9 {
		t.Errorf("expected +1.0%% realized, got %f", trade.PnlPercent)
	}
	if trade.Result != ResultWin {
		t.Errorf("expected WIN, got %s", trade.Result)
	}
	if _, still := st.state.Positions["BTCUSDT"]; still {
		t.Error("closed position must leave the open set")
	}
	if len(st.state.History) != 1 {
		t.Errorf("expected 1 history entry, got %d", len(st.state.History))
	}
}

func TestTrailingRatchetNeverLoosens(t *testing.T) {
	st := &memStore{}
	prices := &fakePrices{prices: map[string]float64{"ETHUSDT": 102}}
	m := newTestManager(st, prices)
	trackLong(st, "ETHUSDT", 100, 90, 120)

	checkOnce(t, m)
	first := st.state.Positions["ETHUSDT"].Trailing.TrailLevel

	// A dip that stays above the trail must not move the trail down.
	prices.prices["ETHUSDT"] = 101.5
	checkOnce(t, m)
	after := st.state.Positions["ETHUSDT"].Trailing
	if after.TrailLevel != first {
		t.Errorf("trail moved on unfavorable price: %f -> %f", first, after.TrailLevel)
	}
	if after.BestPrice != 102 {
		t.Errorf("best price must not regress, got %f", after.BestPrice)
	}
}

func TestFixedExitPrecedenceOverTrailing(t *testing.T) {
	// Price gaps through both the armed trail and the fixed stop in one
	// cycle: the fixed exit must win and close at the stop level.
	st := &memStore{}
	prices := &fakePrices{prices: map[string]float64{"BTCUSDT": 102}}
	m := newTestManager(st, prices)
	trackLong(st, "BTCUSDT", 100, 95, 120)

	checkOnce(t, m)
	if !st.state.Positions["BTCUSDT"].Trailing.Activated {
		t.Fatal("trailing should be armed at +2%")
	}

	prices.prices["BTCUSDT"] = 94
	result := checkOnce(t, m)
	if len(result.Closed) != 1 {
		t.Fatal("expected a close")
	}
	trade := result.Closed[0]
	if trade.ExitReason != ExitStopLoss {
		t.Errorf("fixed exit must take precedence, got %s", trade.ExitReason)
	}
	if trade.ExitPrice != 95 {
		t.Errorf("expected close at stop level 95, got %f", trade.ExitPrice)
	}
}

func TestTakeProfitClosesAtExactLevel(t *testing.T) {
	st := &memStore{}
	prices := &fakePrices{prices: map[string]float64{"SOLUSDT": 107.3}}
	m := newTestManager(st, prices)
	trackLong(st, "SOLUSDT", 100, 95, 106)

	result := checkOnce(t, m)
	if len(result.Closed) != 1 {
		t.Fatal("expected take-profit close")
	}
	trade := result.Closed[0]
	if trade.ExitReason != ExitTakeProfit {
		t.Errorf("expected TAKE_PROFIT, got %s", trade.ExitReason)
	}
	if trade.ExitPrice != 106 {
		t.Errorf("expected close at target 106, got %f", trade.ExitPrice)
	}
	if math.Abs(trade.PnlUSD-60) > 1e-9 {
		t.Errorf("expected $60 on $1000 at +6%%, got %f", trade.PnlUSD)
	}
}

func TestCircuitBreakerExactlyThirdLoss(t *testing.T) {
	st := &memStore{}
	prices := &fakePrices{prices: map[string]float64{}}
	m := newTestManager(st, prices)

	lose := func(symbol string) {
		trackLong(st, symbol, 100, 95, 120)
		prices.prices[symbol] = 94
		checkOnce(t, m)
	}

	lose("AAAUSDT")
	if st.state.Stats.CircuitBreakerActive {
		t.Fatal("breaker must not trip after 1 loss")
	}
	lose("BBBUSDT")
	if st.state.Stats.CircuitBreakerActive {
		t.Fatal("breaker must not trip after 2 losses")
	}
	lose("CCCUSDT")
	if !st.state.Stats.CircuitBreakerActive {
		t.Fatal("breaker must trip on the 3rd consecutive loss")
	}
	if st.state.Stats.ConsecutiveLosses != 3 {
		t.Errorf("expected streak 3, got %d", st.state.Stats.ConsecutiveLosses)
	}
}

func TestWinResetsStreakBeforeThird(t *testing.T) {
	st := &memStore{}
	prices := &fakePrices{prices: map[string]float64{}}
	m := newTestManager(st, prices)

	trackLong(st, "AAAUSDT", 100, 95, 120)
	prices.prices["AAAUSDT"] = 94
	checkOnce(t, m)
	trackLong(st, "BBBUSDT", 100, 95, 120)
	prices.prices["BBBUSDT"] = 94
	checkOnce(t, m)

	trackLong(st, "WINUSDT", 100, 95, 106)
	prices.prices["WINUSDT"] = 107
	checkOnce(t, m)
	if st.state.Stats.ConsecutiveLosses != 0 {
		t.Errorf("WIN must reset the streak, got %d", st.state.Stats.ConsecutiveLosses)
	}

	trackLong(st, "CCCUSDT", 100, 95, 120)
	prices.prices["CCCUSDT"] = 94
	checkOnce(t, m)
	if st.state.Stats.CircuitBreakerActive {
		t.Error("2 losses + WIN + 1 loss must not trip the breaker")
	}
}

func TestBreakerBlocksNewSetupsUntilReset(t *testing.T) {
	st := &memStore{}
	st.state = NewState()
	st.state.Stats.CircuitBreakerActive = true
	st.state.Stats.ConsecutiveLosses = 3
	m := newTestManager(st, &fakePrices{})

	setup := TradeSetup{Symbol: "BTCUSDT", Side: SideLong, Entry: 100, StopLoss: 95, TakeProfit: 110, Confluence: 8}
	opened, err := m.AcceptSetups(context.Background(), []TradeSetup{setup})
	if err != nil {
		t.Fatalf("AcceptSetups: %v", err)
	}
	if len(opened) != 0 {
		t.Fatal("breaker must block acceptance")
	}

	if err := m.ResetCircuitBreaker(context.Background()); err != nil {
		t.Fatalf("ResetCircuitBreaker: %v", err)
	}
	if st.state.Stats.CircuitBreakerActive || st.state.Stats.ConsecutiveLosses != 0 {
		t.Fatal("reset must clear breaker and streak")
	}

	opened, err = m.AcceptSetups(context.Background(), []TradeSetup{setup})
	if err != nil {
		t.Fatalf("AcceptSetups after reset: %v", err)
	}
	if len(opened) != 1 {
		t.Fatal("expected acceptance after reset")
	}
}

func TestAcceptSetupsOnePerSymbolAndCap(t *testing.T) {
	st := &memStore{}
	m := newTestManager(st, &fakePrices{})
	ctx := context.Background()

	setup := func(sym string) TradeSetup {
		return TradeSetup{Symbol: sym, Side: SideLong, Entry: 100, StopLoss: 95, TakeProfit: 110, Confluence: 7}
	}

	opened, err := m.AcceptSetups(ctx, []TradeSetup{setup("BTCUSDT"), setup("BTCUSDT")})
	if err != nil {
		t.Fatalf("AcceptSetups: %v", err)
	}
	if len(opened) != 1 {
		t.Fatalf("duplicate symbol must be ignored, got %d opens", len(opened))
	}

	var batch []TradeSetup
	for i := 0; i < 6; i++ {
		batch = append(batch, setup(fmt.Sprintf("SYM%dUSDT", i)))
	}
	opened, err = m.AcceptSetups(ctx, batch)
	if err != nil {
		t.Fatalf("AcceptSetups: %v", err)
	}
	// One slot already used by BTCUSDT; cap is 5.
	if len(opened) != 4 {
		t.Errorf("expected 4 opens under the cap, got %d", len(opened))
	}
	if len(st.state.Positions) != 5 {
		t.Errorf("expected 5 tracked positions, got %d", len(st.state.Positions))
	}
}

func TestPriceLookupFailureSkipsSymbol(t *testing.T) {
	st := &memStore{}
	prices := &fakePrices{prices: map[string]float64{"GOODUSDT": 107}}
	m := newTestManager(st, prices)
	trackLong(st, "GOODUSDT", 100, 95, 106)
	badPos := trackLong(st, "BADUSDT", 100, 95, 106)

	result := checkOnce(t, m)
	if len(result.Closed) != 1 || result.Closed[0].Symbol != "GOODUSDT" {
		t.Fatalf("expected only GOODUSDT to close, got %+v", result.Closed)
	}

	kept, ok := st.state.Positions["BADUSDT"]
	if !ok {
		t.Fatal("symbol with failed lookup must keep its position")
	}
	if kept.TradeID != badPos.TradeID || kept.Trailing.Activated {
		t.Error("skipped position state must be untouched")
	}
}

func TestSaveFailurePropagates(t *testing.T) {
	st := &memStore{failSave: true}
	prices := &fakePrices{prices: map[string]float64{"BTCUSDT": 107}}
	m := newTestManager(st, prices)
	trackLong(st, "BTCUSDT", 100, 95, 106)

	if _, err := m.CheckPositions(context.Background()); err == nil {
		t.Fatal("a failed save must fail the cycle")
	}
}

func TestCloseListenersRunAfterPersist(t *testing.T) {
	st := &memStore{}
	prices := &fakePrices{prices: map[string]float64{"BTCUSDT": 107}}
	m := newTestManager(st, prices)
	trackLong(st, "BTCUSDT", 100, 95, 106)

	var seen []ClosedTrade
	var seenStats []RunningStats
	m.AddCloseListener(listenerFunc(func(_ context.Context, trade ClosedTrade, stats RunningStats) {
		seen = append(seen, trade)
		seenStats = append(seenStats, stats)
	}))

	checkOnce(t, m)
	if len(seen) != 1 {
		t.Fatalf("expected 1 listener call, got %d", len(seen))
	}
	if seen[0].Result != ResultWin {
		t.Errorf("expected WIN, got %s", seen[0].Result)
	}
	// Stats passed to listeners must already include the close.
	if seenStats[0].TotalTrades != 1 || seenStats[0].Wins != 1 {
		t.Errorf("listener saw stale stats: %+v", seenStats[0])
	}
}

type listenerFunc func(context.Context, ClosedTrade, RunningStats)

func (f listenerFunc) OnTradeClosed(ctx context.Context, trade ClosedTrade, stats RunningStats) {
	f(ctx, trade, stats)
}

func TestZeroPnlIsWin(t *testing.T) {
	st := &memStore{}
	prices := &fakePrices{prices: map[string]float64{"BTCUSDT": 100}}
	m := newTestManager(st, prices)
	// Target at entry price: closes immediately with exactly 0% PnL.
	trackLong(st, "BTCUSDT", 100, 95, 100)

	result := checkOnce(t, m)
	if len(result.Closed) != 1 {
		t.Fatal("expected a close")
	}
	if result.Closed[0].Result != ResultWin {
		t.Errorf("zero PnL must classify as WIN, got %s", result.Closed[0].Result)
	}
}
