package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"market-matrix/config"
	"market-matrix/internal/indicator"
	"market-matrix/internal/market"
	"market-matrix/internal/position"
)

// ScanType names one of the per-timeframe scan cycles.
type ScanType string

const (
	ScanDaily    ScanType = "daily"
	Scan4H       ScanType = "4h"
	Scan1H       ScanType = "1h"
	Scan15m      ScanType = "15m"
	ScanComplete ScanType = "all"
)

// scanTimeframes maps a scan type to the timeframes it needs. The tactical
// scans need the higher timeframes too since confluence reads all four.
func scanTimeframes(st ScanType) []market.Timeframe {
	switch st {
	case ScanDaily:
		return []market.Timeframe{market.Timeframe1d}
	case Scan4H:
		return []market.Timeframe{market.Timeframe1d, market.Timeframe4h}
	case Scan1H:
		return []market.Timeframe{market.Timeframe1d, market.Timeframe4h, market.Timeframe1h}
	default:
		return market.AllTimeframes
	}
}

// SymbolReport is the per-symbol section of a cycle report.
type SymbolReport struct {
	Symbol     string                         `json:"symbol"`
	Verified   bool                           `json:"verified"`
	Timeframes map[market.Timeframe]*Snapshot `json:"timeframes"`
	MacroBias  MacroBias                      `json:"macro_bias,omitempty"`
	Confluence *ConfluenceScore               `json:"confluence,omitempty"`
	Setup      *position.TradeSetup           `json:"setup,omitempty"`
}

// CycleReport is the artifact written once per scan cycle.
type CycleReport struct {
	ScanType  ScanType              `json:"scan_type"`
	Timestamp time.Time             `json:"timestamp"`
	Symbols   []SymbolReport        `json:"symbols"`
	Alerts    []string              `json:"alerts"`
	Setups    []position.TradeSetup `json:"setups"`
}

// Runner drives scan cycles over the watchlist and writes report artifacts.
type Runner struct {
	scanner   *Scanner
	watchlist []string
	reportCfg config.ReportConfig
	logger    zerolog.Logger
	now       func() time.Time
}

// NewRunner creates a cycle runner.
func NewRunner(sc *Scanner, watchlist []string, reportCfg config.ReportConfig, logger zerolog.Logger) *Runner {
	return &Runner{
		scanner:   sc,
		watchlist: watchlist,
		reportCfg: reportCfg,
		logger:    logger.With().Str("component", "scan_runner").Logger(),
		now:       time.Now,
	}
}

// SetClock overrides the time source. Used by tests.
func (r *Runner) SetClock(now func() time.Time) { r.now = now }

// Run executes one scan cycle over the whole watchlist, writes the report
// artifact and returns the report. Individual symbol failures degrade that
// symbol only; the cycle itself succeeds.
func (r *Runner) Run(ctx context.Context, st ScanType) (*CycleReport, error) {
	report := &CycleReport{
		ScanType:  st,
		Timestamp: r.now(),
		Alerts:    []string{},
		Setups:    []position.TradeSetup{},
	}
	timeframes := scanTimeframes(st)
	tactical := st == Scan15m || st == ScanComplete

	for _, symbol := range r.watchlist {
		analysis := r.scanner.AnalyzeSymbol(ctx, symbol, timeframes)

		sr := SymbolReport{
			Symbol:     symbol,
			Verified:   analysis.Verified,
			Timeframes: analysis.Timeframes,
		}
		if st == ScanDaily {
			if daily := analysis.Snapshot(market.Timeframe1d); daily != nil {
				sr.MacroBias = macroBias(daily)
			}
		}
		report.Alerts = append(report.Alerts, r.alertsFor(st, analysis)...)

		if tactical {
			score := r.scanner.ScoreConfluence(analysis)
			sr.Confluence = &score
			if setup := r.scanner.BuildSetup(analysis, score, report.Timestamp); setup != nil {
				sr.Setup = setup
				report.Setups = append(report.Setups, *setup)
			}
		}
		report.Symbols = append(report.Symbols, sr)
	}

	if err := r.saveReport(report); err != nil {
		r.logger.Error().Err(err).Msg("failed to write report artifact")
	}

	r.logger.Info().
		Str("scan_type", string(st)).
		Int("symbols", len(report.Symbols)).
		Int("alerts", len(report.Alerts)).
		Int("setups", len(report.Setups)).
		Msg("scan cycle complete")
	return report, nil
}

// AnalyzeOne runs the full four-timeframe analysis for a single symbol,
// scored but without report output. Used by the analyze command.
func (r *Runner) AnalyzeOne(ctx context.Context, symbol string) (*Analysis, ConfluenceScore) {
	analysis := r.scanner.AnalyzeSymbol(ctx, symbol, market.AllTimeframes)
	return analysis, r.scanner.ScoreConfluence(analysis)
}

// MacroBias classifies the daily regime for one symbol.
type MacroBias string

const (
	BiasBullish       MacroBias = "BULLISH_BIAS"
	BiasBearish       MacroBias = "BEARISH_BIAS"
	BiasCautionLongs  MacroBias = "CAUTION_LONGS"
	BiasCautionShorts MacroBias = "CAUTION_SHORTS"
	BiasNeutral       MacroBias = "NEUTRAL"
)

// Alert thresholds. A level is "testing" within 1% and "broken" beyond 1%
// past it; a volume spike is twice the average; exhaustion is an RSI extreme
// against the 4H trend.
const (
	biasMinStrength = 0.6
	levelBandPct    = 0.01
	volumeSpikeMult = 2.0
	exhaustionHigh  = 75.0
	exhaustionLow   = 25.0
)

// macroBias classifies the daily snapshot. A strong trend with room left in
// RSI is a directional bias; an RSI extreme alone is a caution.
func macroBias(daily *Snapshot) MacroBias {
	switch {
	case daily.Trend.Direction == indicator.TrendBullish &&
		daily.RSICondition != RSIOverbought && daily.Trend.Strength > biasMinStrength:
		return BiasBullish
	case daily.Trend.Direction == indicator.TrendBearish &&
		daily.RSICondition != RSIOversold && daily.Trend.Strength > biasMinStrength:
		return BiasBearish
	case daily.RSICondition == RSIOverbought:
		return BiasCautionLongs
	case daily.RSICondition == RSIOversold:
		return BiasCautionShorts
	default:
		return BiasNeutral
	}
}

// alertsFor renders the per-scan-type human-readable alert lines.
func (r *Runner) alertsFor(st ScanType, a *Analysis) []string {
	switch st {
	case ScanDaily:
		return dailyAlerts(a)
	case Scan4H:
		return fourHourAlerts(a)
	case Scan1H:
		return oneHourAlerts(a)
	default:
		return nil
	}
}

func dailyAlerts(a *Analysis) []string {
	daily := a.Snapshot(market.Timeframe1d)
	if daily == nil {
		return nil
	}
	return []string{fmt.Sprintf("%s: %s | trend %s (strength %.1f), RSI %.1f",
		a.Symbol, macroBias(daily), daily.Trend.Direction, daily.Trend.Strength, daily.RSI)}
}

// fourHourAlerts reports daily alignment, MACD divergence against the daily
// trend, and price testing a mapped level. Quiet symbols produce no line.
func fourHourAlerts(a *Analysis) []string {
	daily := a.Snapshot(market.Timeframe1d)
	h4 := a.Snapshot(market.Timeframe4h)
	if daily == nil || h4 == nil {
		return nil
	}

	var reasons []string
	if h4.Trend.Direction == daily.Trend.Direction {
		reasons = append(reasons, fmt.Sprintf("4H aligned with daily %s", daily.Trend.Direction))
	}
	if macdDiverges(h4.MACD.Histogram, daily.Trend.Direction) {
		reasons = append(reasons, "MACD divergence against daily trend")
	}
	if res := h4.NearestResistance; res > 0 && h4.Price > res*(1-levelBandPct) {
		reasons = append(reasons, fmt.Sprintf("testing resistance %.6g", res))
	}
	if sup := h4.NearestSupport; sup > 0 && h4.Price < sup*(1+levelBandPct) {
		reasons = append(reasons, fmt.Sprintf("testing support %.6g", sup))
	}

	if len(reasons) == 0 {
		return nil
	}
	return []string{a.Symbol + ": " + strings.Join(reasons, " | ")}
}

// macdDiverges reports 4H momentum pointing against the daily trend.
func macdDiverges(histogram float64, daily indicator.TrendDirection) bool {
	return (histogram < 0 && daily == indicator.TrendBullish) ||
		(histogram > 0 && daily == indicator.TrendBearish)
}

// oneHourAlerts reports volume spikes, breaks of mapped levels, and trend
// exhaustion (1H RSI extreme against the 4H trend).
func oneHourAlerts(a *Analysis) []string {
	h1 := a.Snapshot(market.Timeframe1h)
	if h1 == nil {
		return nil
	}

	var reasons []string
	if h1.AvgVolume > 0 && h1.Volume > h1.AvgVolume*volumeSpikeMult {
		reasons = append(reasons, fmt.Sprintf("volume spike (%.1fM vs %.1fM avg)", h1.Volume/1e6, h1.AvgVolume/1e6))
	}
	if level, broken := brokenLevel(h1.Levels, h1.Price, indicator.LevelSupport); broken {
		reasons = append(reasons, fmt.Sprintf("support break below %.6g", level))
	}
	if level, broken := brokenLevel(h1.Levels, h1.Price, indicator.LevelResistance); broken {
		reasons = append(reasons, fmt.Sprintf("resistance break above %.6g", level))
	}
	if h4 := a.Snapshot(market.Timeframe4h); h4 != nil {
		if (h4.Trend.Direction == indicator.TrendBullish && h1.RSI > exhaustionHigh) ||
			(h4.Trend.Direction == indicator.TrendBearish && h1.RSI < exhaustionLow) {
			reasons = append(reasons, fmt.Sprintf("trend exhaustion (RSI %.1f)", h1.RSI))
		}
	}

	if len(reasons) == 0 {
		return nil
	}
	return []string{a.Symbol + ": " + strings.Join(reasons, " | ")}
}

// brokenLevel returns the strongest mapped level of the given type that price
// has moved more than the band beyond: below a support, above a resistance.
// Levels are already ordered strongest first.
func brokenLevel(levels []indicator.Level, price float64, typ indicator.LevelType) (float64, bool) {
	for _, l := range levels {
		if l.Type != typ || l.Price <= 0 {
			continue
		}
		if typ == indicator.LevelSupport && price < l.Price*(1-levelBandPct) {
			return l.Price, true
		}
		if typ == indicator.LevelResistance && price > l.Price*(1+levelBandPct) {
			return l.Price, true
		}
	}
	return 0, false
}

// saveReport writes the cycle artifact as <type>-<unix timestamp>.json.
func (r *Runner) saveReport(report *CycleReport) error {
	if r.reportCfg.OutputDir == "" {
		return nil
	}
	if err := os.MkdirAll(r.reportCfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create report dir: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	name := fmt.Sprintf("%s-%d.json", report.ScanType, report.Timestamp.Unix())
	path := filepath.Join(r.reportCfg.OutputDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}
