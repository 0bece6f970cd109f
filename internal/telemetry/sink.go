// Package telemetry defines the optional training-data sink. The default
// implementation does nothing; a real collector is injected at startup, never
// conditionally imported inside trading logic.
package telemetry

import "context"

// Sink receives trade outcomes and signals for downstream analysis.
type Sink interface {
	RecordSignal(ctx context.Context, symbol string, side string, confluence float64)
	RecordTradeClosed(ctx context.Context, symbol string, pnlPercent float64, result string)
}

// NopSink discards everything.
type NopSink struct{}

// NewNopSink returns the do-nothing sink.
func NewNopSink() *NopSink { return &NopSink{} }

func (*NopSink) RecordSignal(context.Context, string, string, float64)      {}
func (*NopSink) RecordTradeClosed(context.Context, string, float64, string) {}
