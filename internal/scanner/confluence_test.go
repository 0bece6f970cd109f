package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"market-matrix/config"
	"market-matrix/internal/indicator"
	"market-matrix/internal/market"
	"market-matrix/internal/position"
	"market-matrix/internal/verifier"
)

func newTestScanner() *Scanner {
	cfg := config.DefaultConfig()
	v := verifier.New(zerolog.Nop())
	return New(cfg, market.NewMockFeed(), v, zerolog.Nop())
}

// analysisWith builds a verified four-timeframe analysis from trend and RSI
// inputs, defaulting everything else to benign values.
func analysisWith(daily, h4, h1 indicator.TrendDirection, rsi15 float64) *Analysis {
	snap := func(dir indicator.TrendDirection) *Snapshot {
		return &Snapshot{
			Price: 100,
			Trend: indicator.TrendResult{Direction: dir, Strength: 0.6},
			RSI:   50,
			ATR:   2,
		}
	}

	m15 := snap(h1)
	m15.RSI = rsi15
	switch {
	case rsi15 >= 70:
		m15.RSICondition = RSIOverbought
	case rsi15 <= 30:
		m15.RSICondition = RSIOversold
	default:
		m15.RSICondition = RSINeutral
	}

	return &Analysis{
		Symbol:   "BTCUSDT",
		Verified: true,
		Timeframes: map[market.Timeframe]*Snapshot{
			market.Timeframe1d:  snap(daily),
			market.Timeframe4h:  snap(h4),
			market.Timeframe1h:  snap(h1),
			market.Timeframe15m: m15,
		},
	}
}

func TestConfluenceFullAlignment(t *testing.T) {
	s := newTestScanner()
	a := analysisWith(indicator.TrendBullish, indicator.TrendBullish, indicator.TrendBullish, 28)

	score := s.ScoreConfluence(a)
	if score.Score != 9 {
		t.Errorf("expected score 9 (3+2+2+2), got %f", score.Score)
	}
	if score.Side != string(position.SideLong) {
		t.Errorf("expected LONG side, got %q", score.Side)
	}
	if len(score.Factors) != 4 {
		t.Errorf("expected 4 factors, got %v", score.Factors)
	}
}

func TestConfluenceDailyRangingGatesEverything(t *testing.T) {
	s := newTestScanner()
	a := analysisWith(indicator.TrendRanging, indicator.TrendBullish, indicator.TrendBullish, 28)

	score := s.ScoreConfluence(a)
	if score.Score != 0 {
		t.Errorf("expected 0 with RANGING daily, got %f", score.Score)
	}
	if score.Side != "" {
		t.Errorf("expected no side, got %q", score.Side)
	}
}

func TestConfluenceUnverifiedScoresZero(t *testing.T) {
	s := newTestScanner()
	a := analysisWith(indicator.TrendBullish, indicator.TrendBullish, indicator.TrendBullish, 28)
	a.Verified = false

	if score := s.ScoreConfluence(a); score.Score != 0 {
		t.Errorf("expected 0 for unverified analysis, got %f", score.Score)
	}
}

func TestConfluenceClampedAtTen(t *testing.T) {
	s := newTestScanner()
	a := analysisWith(indicator.TrendBullish, indicator.TrendBullish, indicator.TrendBullish, 28)

	// Put daily levels within 2% of price so both level factors fire:
	// 3+2+2+2+1+1 = 11 raw, clamped to 10.
	daily := a.Snapshot(market.Timeframe1d)
	daily.NearestSupport = 99
	daily.NearestResistance = 101

	score := s.ScoreConfluence(a)
	if score.Score != 10 {
		t.Errorf("expected clamp at 10, got %f", score.Score)
	}
	if len(score.Factors) != 6 {
		t.Errorf("expected all 6 factors recorded, got %v", score.Factors)
	}
}

func TestConfluenceShortSide(t *testing.T) {
	s := newTestScanner()
	a := analysisWith(indicator.TrendBearish, indicator.TrendBearish, indicator.TrendBearish, 75)

	score := s.ScoreConfluence(a)
	if score.Score != 9 {
		t.Errorf("expected score 9, got %f", score.Score)
	}
	if score.Side != string(position.SideShort) {
		t.Errorf("expected SHORT side, got %q", score.Side)
	}
}

func TestBuildSetupLevels(t *testing.T) {
	s := newTestScanner()
	a := analysisWith(indicator.TrendBullish, indicator.TrendBullish, indicator.TrendBullish, 28)
	score := s.ScoreConfluence(a)
	now := time.Now()

	setup := s.BuildSetup(a, score, now)
	if setup == nil {
		t.Fatal("expected a setup at score 9")
	}
	if setup.Side != position.SideLong {
		t.Errorf("expected LONG, got %s", setup.Side)
	}

	// ATR=2, entry=100: stop = 100 - 1.5*2 = 97, target = 100 + 3*2 = 106.
	if setup.StopLoss != 97 {
		t.Errorf("expected stop 97, got %f", setup.StopLoss)
	}
	if setup.TakeProfit != 106 {
		t.Errorf("expected target 106, got %f", setup.TakeProfit)
	}
	if setup.RewardPercent != 2*setup.RiskPercent {
		t.Errorf("expected 2:1 reward:risk, got risk %f reward %f", setup.RiskPercent, setup.RewardPercent)
	}
}

func TestBuildSetupBelowThreshold(t *testing.T) {
	s := newTestScanner()
	a := analysisWith(indicator.TrendBullish, indicator.TrendBearish, indicator.TrendBearish, 50)
	score := s.ScoreConfluence(a)

	if score.Score >= s.confCfg.MinScore {
		t.Fatalf("test setup wrong: score %f should be below threshold", score.Score)
	}
	if setup := s.BuildSetup(a, score, time.Now()); setup != nil {
		t.Errorf("expected no setup below threshold, got %+v", setup)
	}
}

func TestBuildSetupMissingATRDiscarded(t *testing.T) {
	s := newTestScanner()
	a := analysisWith(indicator.TrendBullish, indicator.TrendBullish, indicator.TrendBullish, 28)
	a.Snapshot(market.Timeframe15m).ATR = 0
	score := s.ScoreConfluence(a)

	if setup := s.BuildSetup(a, score, time.Now()); setup != nil {
		t.Errorf("expected setup discarded without ATR, got %+v", setup)
	}
}

func TestAnalyzeSymbolWithMockFeed(t *testing.T) {
	s := newTestScanner()

	analysis := s.AnalyzeSymbol(context.Background(), "BTCUSDT", market.AllTimeframes)
	if !analysis.Verified {
		t.Fatal("expected mock data to verify")
	}
	if len(analysis.Timeframes) != 4 {
		t.Fatalf("expected 4 timeframes, got %d", len(analysis.Timeframes))
	}
	for tf, snap := range analysis.Timeframes {
		if snap.Price <= 0 {
			t.Errorf("%s: no price", tf)
		}
		if snap.RSI < 0 || snap.RSI > 100 {
			t.Errorf("%s: RSI out of bounds: %f", tf, snap.RSI)
		}
		if snap.Trend.Direction == "" {
			t.Errorf("%s: no trend direction", tf)
		}
	}
}
