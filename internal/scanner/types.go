package scanner

import (
	"time"

	"market-matrix/internal/indicator"
	"market-matrix/internal/market"
)

// RSICondition classifies an RSI reading against the configured thresholds.
type RSICondition string

const (
	RSIOverbought RSICondition = "OVERBOUGHT"
	RSIOversold   RSICondition = "OVERSOLD"
	RSINeutral    RSICondition = "NEUTRAL"
)

// snapshotLevels caps how many support/resistance levels a snapshot carries.
const snapshotLevels = 5

// Snapshot holds the derived values for one (symbol, timeframe). Recomputed
// every cycle, never mutated, only replaced.
type Snapshot struct {
	Price             float64                  `json:"price"`
	Trend             indicator.TrendResult    `json:"trend"`
	EMAFast           float64                  `json:"ema_fast"`
	EMASlow           float64                  `json:"ema_slow"`
	EMAMacro          float64                  `json:"ema_macro"`
	RSI               float64                  `json:"rsi"`
	RSICondition      RSICondition             `json:"rsi_condition"`
	ATR               float64                  `json:"atr"`
	ATRPercent        float64                  `json:"atr_percent"`
	Bollinger         indicator.BollingerBands `json:"bollinger"`
	MACD              indicator.MACDResult     `json:"macd"`
	NearestSupport    float64                  `json:"nearest_support"`
	NearestResistance float64                  `json:"nearest_resistance"`
	Levels            []indicator.Level        `json:"levels"`
	Volume            float64                  `json:"volume"`
	AvgVolume         float64                  `json:"avg_volume"`
	Timestamp         time.Time                `json:"timestamp"`
}

// Analysis is the full multi-timeframe view of one symbol for one cycle.
// Verified is false when any timeframe failed fetch or verification; an
// unverified analysis is excluded from confluence scoring.
type Analysis struct {
	Symbol     string                         `json:"symbol"`
	Timeframes map[market.Timeframe]*Snapshot `json:"timeframes"`
	Verified   bool                           `json:"verified"`
	Timestamp  time.Time                      `json:"timestamp"`
}

// Snapshot returns the snapshot for a timeframe, or nil.
func (a *Analysis) Snapshot(tf market.Timeframe) *Snapshot {
	if a == nil {
		return nil
	}
	return a.Timeframes[tf]
}

// ConfluenceScore is the agreement measure across timeframes for one symbol.
// Derived each cycle; not stored beyond it.
type ConfluenceScore struct {
	Score   float64  `json:"score"`
	Side    string   `json:"side"` // "LONG", "SHORT" or "" when ineligible
	Factors []string `json:"factors"`
}
