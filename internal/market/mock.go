package market

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// MockFeed provides simulated market data for development and dry runs.
// Candles are generated as a gentle random walk around a base price so that
// indicator output stays plausible.
type MockFeed struct {
	prices map[string]float64
	closed map[string]bool
	mu     sync.RWMutex
}

// NewMockFeed creates a mock feed with realistic base prices.
func NewMockFeed() *MockFeed {
	return &MockFeed{
		prices: map[string]float64{
			"BTCUSDT":  104500.00,
			"ETHUSDT":  3900.00,
			"SOLUSDT":  220.00,
			"BNBUSDT":  710.00,
			"XRPUSDT":  2.35,
			"DOGEUSDT": 0.40,
			"ADAUSDT":  1.05,
			"AVAXUSDT": 50.00,
			"LINKUSDT": 28.00,
			"DOTUSDT":  9.50,
		},
		closed: make(map[string]bool),
	}
}

func (m *MockFeed) basePrice(symbol string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.prices[symbol]; ok {
		return p
	}
	return 100.0
}

// FetchCandles generates a synthetic candle series ending now.
func (m *MockFeed) FetchCandles(_ context.Context, symbol string, tf Timeframe, limit int) ([]Candle, error) {
	base := m.basePrice(symbol)
	rng := rand.New(rand.NewSource(seedFor(symbol, tf)))

	step := tf.Duration().Milliseconds()
	now := time.Now().UnixMilli()
	start := now - int64(limit)*step

	candles := make([]Candle, 0, limit)
	price := base * 0.97
	for i := 0; i < limit; i++ {
		drift := 1 + (rng.Float64()-0.48)*0.01
		open := price
		close := price * drift
		high := math.Max(open, close) * (1 + rng.Float64()*0.004)
		low := math.Min(open, close) * (1 - rng.Float64()*0.004)
		candles = append(candles, Candle{
			OpenTime: start + int64(i)*step,
			Open:     open,
			High:     high,
			Low:      low,
			Close:    close,
			Volume:   1e6 * (0.5 + rng.Float64()),
		})
		price = close
	}
	return candles, nil
}

// CurrentPrice returns the mock's latest price for a symbol.
func (m *MockFeed) CurrentPrice(_ context.Context, symbol string) (float64, error) {
	return m.basePrice(symbol), nil
}

// SetPrice overrides the mock price for a symbol.
func (m *MockFeed) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
}

// OpenPositions returns no live positions; the mock exchange holds none.
func (m *MockFeed) OpenPositions(_ context.Context) ([]LivePosition, error) {
	return nil, nil
}

// ClosePosition records the close instruction.
func (m *MockFeed) ClosePosition(_ context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed[symbol] = true
	return nil
}

func seedFor(symbol string, tf Timeframe) int64 {
	var seed int64
	for _, r := range symbol + string(tf) {
		seed = seed*31 + int64(r)
	}
	return seed
}
