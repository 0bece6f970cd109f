// Package scanner orchestrates the per-cycle pipeline: fetch candles, verify
// them, compute indicators per timeframe, score multi-timeframe confluence
// and synthesize trade setups.
package scanner

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"market-matrix/config"
	"market-matrix/internal/indicator"
	"market-matrix/internal/market"
	"market-matrix/internal/verifier"
)

// Scanner computes multi-timeframe analyses for watchlist symbols. Stateless
// between cycles apart from its collaborators.
type Scanner struct {
	cfg      config.IndicatorConfig
	confCfg  config.ConfluenceConfig
	paperCfg config.PaperConfig
	feed     market.DataFeed
	verifier *verifier.Verifier
	logger   zerolog.Logger
}

// New creates a Scanner.
func New(cfg *config.Config, feed market.DataFeed, v *verifier.Verifier, logger zerolog.Logger) *Scanner {
	return &Scanner{
		cfg:      cfg.IndicatorConfig,
		confCfg:  cfg.ConfluenceConfig,
		paperCfg: cfg.PaperConfig,
		feed:     feed,
		verifier: v,
		logger:   logger.With().Str("component", "scanner").Logger(),
	}
}

// AnalyzeSymbol builds the full multi-timeframe analysis for one symbol.
// A fetch or verification failure on any timeframe marks the whole analysis
// unverified but never aborts the scan; the remaining timeframes are still
// computed for report output.
func (s *Scanner) AnalyzeSymbol(ctx context.Context, symbol string, timeframes []market.Timeframe) *Analysis {
	analysis := &Analysis{
		Symbol:     symbol,
		Timeframes: make(map[market.Timeframe]*Snapshot, len(timeframes)),
		Verified:   true,
	}

	for _, tf := range timeframes {
		candles, err := s.feed.FetchCandles(ctx, symbol, tf, s.cfg.CandleLimit)
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", symbol).Str("timeframe", string(tf)).Msg("candle fetch failed")
			analysis.Verified = false
			continue
		}
		if err := s.verifier.VerifyCandles(ctx, candles, symbol, tf); err != nil {
			analysis.Verified = false
			continue
		}

		snap := s.computeSnapshot(ctx, symbol, tf, candles)
		if snap == nil {
			analysis.Verified = false
			continue
		}
		analysis.Timeframes[tf] = snap
		if !analysis.Timestamp.IsZero() && snap.Timestamp.Before(analysis.Timestamp) {
			continue
		}
		analysis.Timestamp = snap.Timestamp
	}

	return analysis
}

// computeSnapshot derives the indicator snapshot from verified candles.
// Returns nil when a derived value fails indicator verification.
func (s *Scanner) computeSnapshot(ctx context.Context, symbol string, tf market.Timeframe, candles []market.Candle) *Snapshot {
	closes := market.Closes(candles)
	highs := market.Highs(candles)
	lows := market.Lows(candles)
	volumes := market.Volumes(candles)

	price := closes[len(closes)-1]

	emaFast := lastOf(indicator.EMA(closes, s.cfg.EMAFast))
	emaSlow := lastOf(indicator.EMA(closes, s.cfg.EMASlow))
	emaMacro := lastOf(indicator.EMA(closes, s.cfg.EMAMacro))

	rsi := indicator.RSI(closes, s.cfg.RSIPeriod)
	if err := s.verifier.VerifyIndicator(ctx, "RSI", rsi, symbol); err != nil {
		return nil
	}

	atr := indicator.ATR(highs, lows, closes, s.cfg.ATRPeriod)
	levels := indicator.SupportResistance(highs, lows)
	if len(levels) > snapshotLevels {
		levels = levels[:snapshotLevels]
	}

	snap := &Snapshot{
		Price:             price,
		Trend:             indicator.DetectTrend(price, emaFast, emaSlow, emaMacro),
		EMAFast:           emaFast,
		EMASlow:           emaSlow,
		EMAMacro:          emaMacro,
		RSI:               rsi,
		RSICondition:      s.classifyRSI(rsi),
		ATR:               atr,
		Bollinger:         indicator.Bollinger(closes, s.cfg.BollingerPeriod, s.cfg.BollingerStdDev),
		MACD:              indicator.MACD(closes, s.cfg.MACDFast, s.cfg.MACDSlow, s.cfg.MACDSignal),
		NearestSupport:    indicator.NearestSupport(levels, price),
		NearestResistance: indicator.NearestResistance(levels, price),
		Levels:            levels,
		Volume:            volumes[len(volumes)-1],
		AvgVolume:         mean(volumes),
		Timestamp:         candleTime(candles[len(candles)-1]),
	}
	if price != 0 {
		snap.ATRPercent = atr / price * 100
	}
	return snap
}

func (s *Scanner) classifyRSI(rsi float64) RSICondition {
	switch {
	case rsi >= s.cfg.RSIOverbought:
		return RSIOverbought
	case rsi <= s.cfg.RSIOversold:
		return RSIOversold
	default:
		return RSINeutral
	}
}

func candleTime(c market.Candle) time.Time {
	return time.UnixMilli(c.OpenTime)
}

func lastOf(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

func mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}
