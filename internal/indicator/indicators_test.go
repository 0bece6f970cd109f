package indicator

import (
	"math"
	"testing"
)

func TestEMASeedsWithFirstValue(t *testing.T) {
	series := []float64{10, 11, 12, 13, 14}
	ema := EMA(series, 3)

	if len(ema) != len(series) {
		t.Fatalf("expected %d values, got %d", len(series), len(ema))
	}
	if ema[0] != 10 {
		t.Errorf("expected seed 10, got %f", ema[0])
	}

	// k = 2/(3+1) = 0.5, so ema[1] = (11-10)*0.5 + 10 = 10.5
	if math.Abs(ema[1]-10.5) > 1e-9 {
		t.Errorf("expected ema[1] = 10.5, got %f", ema[1])
	}
}

func TestEMAEmptySeries(t *testing.T) {
	if ema := EMA(nil, 9); ema != nil {
		t.Errorf("expected nil for empty series, got %v", ema)
	}
}

func TestSMAUndefinedHead(t *testing.T) {
	sma := SMA([]float64{2, 4, 6, 8}, 3)

	if !math.IsNaN(sma[0]) || !math.IsNaN(sma[1]) {
		t.Errorf("expected NaN for the first period-1 entries, got %v", sma[:2])
	}
	if math.Abs(sma[2]-4) > 1e-9 {
		t.Errorf("expected sma[2] = 4, got %f", sma[2])
	}
	if math.Abs(sma[3]-6) > 1e-9 {
		t.Errorf("expected sma[3] = 6, got %f", sma[3])
	}
}

func TestRSIBounds(t *testing.T) {
	closes := []float64{
		100, 102, 101, 103, 105, 104, 106, 108, 107, 109,
		111, 110, 112, 114, 113, 115, 117, 116, 118, 120,
	}
	rsi := RSI(closes, 14)
	if rsi < 0 || rsi > 100 {
		t.Errorf("RSI out of bounds: %f", rsi)
	}
}

func TestRSIMonotonicIncreaseApproaches100(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	rsi := RSI(closes, 14)
	if rsi != 100 {
		t.Errorf("expected RSI 100 for strictly increasing series, got %f", rsi)
	}
}

func TestRSIShortSeriesIsNeutral(t *testing.T) {
	if rsi := RSI([]float64{100, 101, 102}, 14); rsi != 50 {
		t.Errorf("expected neutral 50 for short series, got %f", rsi)
	}
}

func TestATRTooShortReturnsZero(t *testing.T) {
	highs := []float64{10, 11}
	lows := []float64{9, 10}
	closes := []float64{9.5, 10.5}
	if atr := ATR(highs, lows, closes, 14); atr != 0 {
		t.Errorf("expected 0 for short series, got %f", atr)
	}
}

func TestBollingerConstantSeries(t *testing.T) {
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 50
	}

	bands := Bollinger(closes, 20, 2)
	if bands.Middle != 50 || bands.Upper != 50 || bands.Lower != 50 {
		t.Errorf("expected flat bands at 50, got %+v", bands)
	}
	if bands.WidthPercent != 0 {
		t.Errorf("expected zero width, got %f", bands.WidthPercent)
	}
}

func TestMACDFlatSeriesIsZero(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100
	}

	macd := MACD(closes, 12, 26, 9)
	if macd.Line != 0 || macd.Signal != 0 || macd.Histogram != 0 {
		t.Errorf("expected zero MACD on flat series, got %+v", macd)
	}
}

// seriesWithPivots builds highs/lows that are flat except for pivot spikes at
// the given indexes.
func seriesWithPivots(n int, base float64, pivotHighs map[int]float64) ([]float64, []float64) {
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i] = base
		lows[i] = base - 1
	}
	for idx, v := range pivotHighs {
		highs[idx] = v
	}
	return highs, lows
}

func TestSupportResistanceClusterMerge(t *testing.T) {
	// Two pivot highs 1.5% apart must merge into one cluster of strength 2.
	highs, lows := seriesWithPivots(20, 100, map[int]float64{5: 200, 12: 203})

	levels := SupportResistance(highs, lows)

	var resistances []Level
	for _, l := range levels {
		if l.Type == LevelResistance {
			resistances = append(resistances, l)
		}
	}
	if len(resistances) != 1 {
		t.Fatalf("expected 1 merged resistance cluster, got %d: %v", len(resistances), resistances)
	}
	if resistances[0].Strength != 2 {
		t.Errorf("expected strength 2, got %d", resistances[0].Strength)
	}
}

func TestSupportResistanceSeparateClusters(t *testing.T) {
	// Two pivot highs 3% apart must remain separate strength-1 clusters.
	highs, lows := seriesWithPivots(20, 100, map[int]float64{5: 200, 12: 206})

	levels := SupportResistance(highs, lows)

	var resistances []Level
	for _, l := range levels {
		if l.Type == LevelResistance {
			resistances = append(resistances, l)
		}
	}
	if len(resistances) != 2 {
		t.Fatalf("expected 2 separate resistance clusters, got %d: %v", len(resistances), resistances)
	}
	for _, r := range resistances {
		if r.Strength != 1 {
			t.Errorf("expected strength 1, got %d", r.Strength)
		}
	}
}

func TestNearestLevelsArePriceRelative(t *testing.T) {
	levels := []Level{
		{Price: 90, Type: LevelSupport, Strength: 2},
		{Price: 95, Type: LevelSupport, Strength: 1},
		{Price: 110, Type: LevelResistance, Strength: 3},
		{Price: 105, Type: LevelResistance, Strength: 1},
	}

	if sup := NearestSupport(levels, 100); sup != 95 {
		t.Errorf("expected nearest support 95, got %f", sup)
	}
	if res := NearestResistance(levels, 100); res != 105 {
		t.Errorf("expected nearest resistance 105, got %f", res)
	}
	if sup := NearestSupport(levels, 85); sup != 0 {
		t.Errorf("expected no support below 85, got %f", sup)
	}
}

func TestDetectTrendVote(t *testing.T) {
	tests := []struct {
		name      string
		price     float64
		fast      float64
		slow      float64
		macro     float64
		direction TrendDirection
		strength  float64
	}{
		{"all bullish", 110, 105, 100, 95, TrendBullish, 1.0},
		{"all bearish", 90, 95, 100, 105, TrendBearish, 1.0},
		{"mixed bullish majority", 102, 101, 100, 103, TrendBullish, 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DetectTrend(tt.price, tt.fast, tt.slow, tt.macro)
			if result.Direction != tt.direction {
				t.Errorf("expected %s, got %s", tt.direction, result.Direction)
			}
			if math.Abs(result.Strength-tt.strength) > 1e-9 {
				t.Errorf("expected strength %f, got %f", tt.strength, result.Strength)
			}
		})
	}
}
