package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileSinkAppendsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry", "events.jsonl")
	sink := NewFileSink(path)
	sink.now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	sink.RecordSignal(ctx, "BTCUSDT", "LONG", 8.5)
	sink.RecordTradeClosed(ctx, "BTCUSDT", -1.2, "LOSS")

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open telemetry file: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(scan.Bytes(), &rec); err != nil {
			t.Fatalf("bad JSONL line: %v", err)
		}
		lines = append(lines, rec)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 records, got %d", len(lines))
	}

	if lines[0]["kind"] != "signal" || lines[0]["confluence"] != 8.5 {
		t.Errorf("unexpected signal record: %v", lines[0])
	}
	if lines[1]["kind"] != "trade_closed" || lines[1]["result"] != "LOSS" {
		t.Errorf("unexpected close record: %v", lines[1])
	}
}

func TestFileSinkSwallowsWriteFailures(t *testing.T) {
	// The path's parent is a file, so the sink can never create the directory.
	base := t.TempDir()
	blocker := filepath.Join(base, "blocked")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	sink := NewFileSink(filepath.Join(blocker, "events.jsonl"))
	sink.RecordSignal(context.Background(), "ETHUSDT", "SHORT", 7) // must not panic
}
