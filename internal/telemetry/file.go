package telemetry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileSink appends signals and trade outcomes to a JSONL file, one record per
// line. Write failures are swallowed: telemetry never fails a trading cycle.
type FileSink struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// NewFileSink creates a telemetry writer for the given path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path, now: time.Now}
}

type record struct {
	Kind       string    `json:"kind"` // "signal" or "trade_closed"
	Timestamp  time.Time `json:"timestamp"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side,omitempty"`
	Confluence float64   `json:"confluence,omitempty"`
	PnlPercent float64   `json:"pnl_percent,omitempty"`
	Result     string    `json:"result,omitempty"`
}

func (s *FileSink) RecordSignal(_ context.Context, symbol, side string, confluence float64) {
	s.append(record{Kind: "signal", Timestamp: s.now(), Symbol: symbol, Side: side, Confluence: confluence})
}

func (s *FileSink) RecordTradeClosed(_ context.Context, symbol string, pnlPercent float64, result string) {
	s.append(record{Kind: "trade_closed", Timestamp: s.now(), Symbol: symbol, PnlPercent: pnlPercent, Result: result})
}

func (s *FileSink) append(rec record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_, _ = f.Write(append(line, '\n'))
}
