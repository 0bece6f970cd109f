package verifier

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"market-matrix/internal/market"
)

// structuralWindow is how many of the most recent candles get structural checks.
const structuralWindow = 10

// maxAgeMultiplier rejects data older than this many timeframe durations.
const maxAgeMultiplier = 2

// RejectionRecord is one audit trail entry. Append-only; nothing is ever
// silently dropped.
type RejectionRecord struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditSink receives every rejection the verifier produces.
type AuditSink interface {
	RecordRejection(ctx context.Context, rec RejectionRecord) error
}

// Verifier is the anti-hallucination gate: it rejects stale, malformed or
// out-of-range market data before anything downstream can trust it.
type Verifier struct {
	sinks  []AuditSink
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a Verifier writing rejections to the given sinks.
func New(logger zerolog.Logger, sinks ...AuditSink) *Verifier {
	return &Verifier{
		sinks:  sinks,
		logger: logger.With().Str("component", "verifier").Logger(),
		now:    time.Now,
	}
}

// SetClock overrides the time source. Used by tests.
func (v *Verifier) SetClock(now func() time.Time) {
	v.now = now
}

// VerifyCandles checks a candle sequence for emptiness, staleness and
// structural validity, in that order, short-circuiting on the first failure.
// A non-nil error carries the rejection reason; the rejection has already
// been audited when the error is returned.
func (v *Verifier) VerifyCandles(ctx context.Context, candles []market.Candle, symbol string, tf market.Timeframe) error {
	if len(candles) == 0 {
		return v.reject(ctx, symbol, tf, "empty candle data")
	}

	last := candles[len(candles)-1]
	age := v.now().Sub(time.UnixMilli(last.OpenTime))
	maxAge := maxAgeMultiplier * tf.Duration()
	if age > maxAge {
		return v.reject(ctx, symbol, tf, fmt.Sprintf("stale data: last candle is %s old (max %s)", age.Round(time.Second), maxAge))
	}

	start := len(candles) - structuralWindow
	if start < 0 {
		start = 0
	}
	for i := start; i < len(candles); i++ {
		c := candles[i]
		if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
			return v.reject(ctx, symbol, tf, "invalid price values (<= 0)")
		}
		if c.Volume < 0 {
			return v.reject(ctx, symbol, tf, "negative volume")
		}
		if c.High < c.Low || c.High < c.Open || c.High < c.Close || c.Low > c.Open || c.Low > c.Close {
			return v.reject(ctx, symbol, tf, "OHLC consistency error")
		}
	}

	return nil
}

// VerifyIndicator rejects non-finite indicator values, and RSI values
// outside [0,100].
func (v *Verifier) VerifyIndicator(ctx context.Context, name string, value float64, symbol string) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return v.reject(ctx, symbol, "indicator", fmt.Sprintf("%s is not a finite number", name))
	}
	if name == "RSI" && (value < 0 || value > 100) {
		return v.reject(ctx, symbol, "indicator", fmt.Sprintf("RSI out of bounds: %.2f", value))
	}
	return nil
}

func (v *Verifier) reject(ctx context.Context, symbol string, tf market.Timeframe, reason string) error {
	rec := RejectionRecord{
		Symbol:    symbol,
		Timeframe: string(tf),
		Reason:    reason,
		Timestamp: v.now(),
	}

	v.logger.Warn().
		Str("symbol", symbol).
		Str("timeframe", string(tf)).
		Str("reason", reason).
		Msg("data rejected")

	for _, sink := range v.sinks {
		if err := sink.RecordRejection(ctx, rec); err != nil {
			v.logger.Error().Err(err).Msg("failed to record rejection in audit trail")
		}
	}

	return fmt.Errorf("%s %s rejected: %s", symbol, tf, reason)
}
