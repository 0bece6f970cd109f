package market

import (
	"context"
	"time"
)

// Timeframe identifies a candle interval.
type Timeframe string

const (
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// AllTimeframes lists the four scanned intervals from macro to tactical.
var AllTimeframes = []Timeframe{Timeframe1d, Timeframe4h, Timeframe1h, Timeframe15m}

// Duration returns the nominal candle duration for the timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe4h:
		return 4 * time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// Candle is one OHLCV interval. Immutable once fetched.
type Candle struct {
	OpenTime int64   `json:"open_time"` // Unix milliseconds
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Closes extracts the close series from a candle sequence.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Highs extracts the high series from a candle sequence.
func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

// Lows extracts the low series from a candle sequence.
func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

// Volumes extracts the volume series from a candle sequence.
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// DataFeed supplies candle history. Implementations must bound every call
// with a timeout; a timeout is reported as an error, never a hang.
type DataFeed interface {
	FetchCandles(ctx context.Context, symbol string, tf Timeframe, limit int) ([]Candle, error)
}

// PriceSource supplies the latest traded price for a symbol.
type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// LivePosition is a snapshot of a position held at the exchange, used only
// for trailing reconciliation.
type LivePosition struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"` // "LONG" or "SHORT"
	Size          float64 `json:"size"`
	EntryPrice    float64 `json:"entry_price"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
}

// PositionSource reports positions currently open at the exchange.
type PositionSource interface {
	OpenPositions(ctx context.Context) ([]LivePosition, error)
}

// CloseExecutor carries out a close instruction. The caller decides when to
// close; the executor decides how.
type CloseExecutor interface {
	ClosePosition(ctx context.Context, symbol string) error
}
