package scanner

import (
	"fmt"
	"math"

	"market-matrix/internal/indicator"
	"market-matrix/internal/market"
	"market-matrix/internal/position"
)

// Factor weights. The raw sum can exceed the cap; the score clamps to [0,10].
const (
	weightDailyTrend   = 3.0
	weightTrendAlign4H = 2.0
	weightTrendAlign1H = 2.0
	weightRSIReversal  = 2.0
	weightNearSupport  = 1.0
	weightNearLevel    = 1.0

	maxConfluence = 10.0

	// levelProximity is how close price must sit to a daily level, as a
	// fraction of the level, for the level factors to fire.
	levelProximity = 0.02
)

// Confluence factor labels. The reflection generator matches on these.
const (
	FactorNearSupport    = "Near support"
	FactorNearResistance = "Near resistance"
)

// ScoreConfluence computes the multi-timeframe agreement score for one
// analysis. An unverified analysis or a RANGING daily trend scores 0 with no
// side; the daily trend gates everything else.
func (s *Scanner) ScoreConfluence(a *Analysis) ConfluenceScore {
	if a == nil || !a.Verified {
		return ConfluenceScore{}
	}

	daily := a.Snapshot(market.Timeframe1d)
	h4 := a.Snapshot(market.Timeframe4h)
	h1 := a.Snapshot(market.Timeframe1h)
	m15 := a.Snapshot(market.Timeframe15m)
	if daily == nil || h4 == nil || h1 == nil || m15 == nil {
		return ConfluenceScore{}
	}
	if daily.Trend.Direction == indicator.TrendRanging {
		return ConfluenceScore{}
	}

	score := weightDailyTrend
	factors := []string{fmt.Sprintf("Daily trend %s", daily.Trend.Direction)}

	if h4.Trend.Direction == daily.Trend.Direction {
		score += weightTrendAlign4H
		factors = append(factors, "4H trend aligned")
	}
	if h1.Trend.Direction == daily.Trend.Direction {
		score += weightTrendAlign1H
		factors = append(factors, "1H trend aligned")
	}

	bullish := daily.Trend.Direction == indicator.TrendBullish
	if bullish && m15.RSICondition == RSIOversold {
		score += weightRSIReversal
		factors = append(factors, fmt.Sprintf("15m RSI oversold (%.1f)", m15.RSI))
	}
	if !bullish && m15.RSICondition == RSIOverbought {
		score += weightRSIReversal
		factors = append(factors, fmt.Sprintf("15m RSI overbought (%.1f)", m15.RSI))
	}

	price := m15.Price
	if sup := daily.NearestSupport; sup > 0 && price >= sup && (price-sup)/sup <= levelProximity {
		score += weightNearSupport
		factors = append(factors, FactorNearSupport)
	}
	if res := daily.NearestResistance; res > 0 && price <= res && (res-price)/res <= levelProximity {
		score += weightNearLevel
		factors = append(factors, FactorNearResistance)
	}

	side := string(position.SideShort)
	if bullish {
		side = string(position.SideLong)
	}
	return ConfluenceScore{
		Score:   math.Min(score, maxConfluence),
		Side:    side,
		Factors: factors,
	}
}
