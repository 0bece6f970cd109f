package indicator

import (
	"math"
	"sort"
)

// Pure, stateless indicator functions over ordered numeric series.
// Safe to call from parallel workers; nothing here holds state.

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// EMA calculates the Exponential Moving Average series. The series is seeded
// with the first value; the multiplier is 2/(period+1).
func EMA(series []float64, period int) []float64 {
	if len(series) == 0 {
		return nil
	}

	k := 2.0 / float64(period+1)
	ema := make([]float64, len(series))
	ema[0] = series[0]

	for i := 1; i < len(series); i++ {
		ema[i] = (series[i]-ema[i-1])*k + ema[i-1]
	}
	return ema
}

// SMA calculates the Simple Moving Average series. The first period-1 entries
// have no value and are reported as NaN.
func SMA(series []float64, period int) []float64 {
	sma := make([]float64, len(series))
	sum := 0.0

	for i := range series {
		sum += series[i]
		if i >= period {
			sum -= series[i-period]
		}
		if i < period-1 {
			sma[i] = math.NaN()
		} else {
			sma[i] = sum / float64(period)
		}
	}
	return sma
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// RSI calculates the latest Relative Strength Index using Wilder smoothing.
// Returns a neutral 50 when the series is too short; the result always
// saturates to [0,100].
func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50.0
	}

	gains := 0.0
	losses := 0.0
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100.0
	}

	rsi := 100 - (100 / (1 + avgGain/avgLoss))
	if rsi < 0 {
		return 0
	}
	if rsi > 100 {
		return 100
	}
	return rsi
}

// ============================================================================
// ATR (Average True Range)
// ============================================================================

// ATR calculates the latest Average True Range: the true range series
// smoothed by a simple moving average over the period.
func ATR(highs, lows, closes []float64, period int) float64 {
	if len(highs) < period+1 || len(highs) != len(lows) || len(highs) != len(closes) {
		return 0
	}

	trSum := 0.0
	for i := len(highs) - period; i < len(highs); i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		trSum += math.Max(hl, math.Max(hc, lc))
	}
	return trSum / float64(period)
}

// ============================================================================
// BOLLINGER BANDS
// ============================================================================

// BollingerBands holds Bollinger Band values for the latest candle.
type BollingerBands struct {
	Upper        float64 `json:"upper"`
	Middle       float64 `json:"middle"`
	Lower        float64 `json:"lower"`
	WidthPercent float64 `json:"width_percent"` // Band width as percent of the middle band
}

// Bollinger calculates Bollinger Bands for the latest close using the
// population standard deviation over the trailing window.
func Bollinger(closes []float64, period int, stdDevMultiplier float64) BollingerBands {
	if len(closes) < period {
		return BollingerBands{}
	}

	window := closes[len(closes)-period:]
	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(period)

	variance := 0.0
	for _, v := range window {
		diff := v - mean
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))

	bands := BollingerBands{
		Upper:  mean + stdDevMultiplier*stdDev,
		Middle: mean,
		Lower:  mean - stdDevMultiplier*stdDev,
	}
	if mean != 0 {
		bands.WidthPercent = (2 * stdDevMultiplier * stdDev) / mean * 100
	}
	return bands
}

// ============================================================================
// MACD (Moving Average Convergence Divergence)
// ============================================================================

// MACDResult holds the latest MACD values.
type MACDResult struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// MACD calculates MACD line, signal line and histogram for the latest close.
// The signal line is a true EMA of the MACD series, not an approximation.
func MACD(closes []float64, fastPeriod, slowPeriod, signalPeriod int) MACDResult {
	if len(closes) == 0 {
		return MACDResult{}
	}

	emaFast := EMA(closes, fastPeriod)
	emaSlow := EMA(closes, slowPeriod)

	macdLine := make([]float64, len(closes))
	for i := range closes {
		macdLine[i] = emaFast[i] - emaSlow[i]
	}
	signalLine := EMA(macdLine, signalPeriod)

	last := len(closes) - 1
	return MACDResult{
		Line:      macdLine[last],
		Signal:    signalLine[last],
		Histogram: macdLine[last] - signalLine[last],
	}
}

// ============================================================================
// SUPPORT AND RESISTANCE
// ============================================================================

// LevelType distinguishes support from resistance levels.
type LevelType string

const (
	LevelSupport    LevelType = "support"
	LevelResistance LevelType = "resistance"
)

// Level is a clustered pivot level. Strength counts how many pivots merged
// into the cluster.
type Level struct {
	Price    float64   `json:"price"`
	Type     LevelType `json:"type"`
	Strength int       `json:"strength"`
}

// clusterTolerance merges pivots within 2% of each other into one level.
const clusterTolerance = 0.02

// maxLevels caps the reported level count.
const maxLevels = 10

// SupportResistance finds pivot highs/lows (strictly above/below the two
// neighbors on each side), clusters nearby pivots, and returns the strongest
// levels first.
func SupportResistance(highs, lows []float64) []Level {
	var pivots []Level

	for i := 2; i < len(highs)-2; i++ {
		if highs[i] > highs[i-1] && highs[i] > highs[i-2] &&
			highs[i] > highs[i+1] && highs[i] > highs[i+2] {
			pivots = append(pivots, Level{Price: highs[i], Type: LevelResistance, Strength: 1})
		}
		if lows[i] < lows[i-1] && lows[i] < lows[i-2] &&
			lows[i] < lows[i+1] && lows[i] < lows[i+2] {
			pivots = append(pivots, Level{Price: lows[i], Type: LevelSupport, Strength: 1})
		}
	}

	var clustered []Level
	for _, pivot := range pivots {
		merged := false
		for i := range clustered {
			if math.Abs(clustered[i].Price-pivot.Price)/clustered[i].Price < clusterTolerance {
				clustered[i].Strength++
				merged = true
				break
			}
		}
		if !merged {
			clustered = append(clustered, pivot)
		}
	}

	sort.SliceStable(clustered, func(i, j int) bool {
		return clustered[i].Strength > clustered[j].Strength
	})

	if len(clustered) > maxLevels {
		clustered = clustered[:maxLevels]
	}
	return clustered
}

// NearestSupport returns the closest support level below the price, or 0.
func NearestSupport(levels []Level, price float64) float64 {
	best := 0.0
	for _, l := range levels {
		if l.Type == LevelSupport && l.Price < price && l.Price > best {
			best = l.Price
		}
	}
	return best
}

// NearestResistance returns the closest resistance level above the price, or 0.
func NearestResistance(levels []Level, price float64) float64 {
	best := 0.0
	for _, l := range levels {
		if l.Type == LevelResistance && l.Price > price && (best == 0 || l.Price < best) {
			best = l.Price
		}
	}
	return best
}
