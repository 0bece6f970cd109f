package indicator

import "math"

// TrendDirection represents the voted trend.
type TrendDirection string

const (
	TrendBullish TrendDirection = "BULLISH"
	TrendBearish TrendDirection = "BEARISH"
	TrendRanging TrendDirection = "RANGING"
)

// TrendResult is the outcome of the EMA alignment vote.
type TrendResult struct {
	Direction TrendDirection `json:"direction"`
	Strength  float64        `json:"strength"` // 0..1, vote margin over five comparisons
}

// DetectTrend votes on five price/EMA alignment comparisons. A majority of
// bullish comparisons is BULLISH, a majority bearish is BEARISH, a tie is
// RANGING. Strength is the vote margin divided by five.
func DetectTrend(price, emaFast, emaSlow, emaMacro float64) TrendResult {
	bullish := 0
	bearish := 0

	vote := func(cond bool) {
		if cond {
			bullish++
		} else {
			bearish++
		}
	}

	vote(price > emaFast)
	vote(price > emaSlow)
	vote(price > emaMacro)
	vote(emaFast > emaSlow)
	vote(emaSlow > emaMacro)

	result := TrendResult{Strength: math.Abs(float64(bullish-bearish)) / 5}
	switch {
	case bullish > bearish:
		result.Direction = TrendBullish
	case bearish > bullish:
		result.Direction = TrendBearish
	default:
		result.Direction = TrendRanging
	}
	return result
}
