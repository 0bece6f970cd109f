package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileAuditLog appends rejection records to a JSONL file, one record per
// line. The file is the append-only audit trail operators inspect after
// cycles with degraded data.
type FileAuditLog struct {
	path string
	mu   sync.Mutex
}

// NewFileAuditLog creates an audit log writer for the given path.
func NewFileAuditLog(path string) *FileAuditLog {
	return &FileAuditLog{path: path}
}

// RecordRejection appends one record to the audit file.
func (a *FileAuditLog) RecordRejection(_ context.Context, rec RejectionRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if dir := filepath.Dir(a.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create audit dir: %w", err)
		}
	}

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal rejection: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append rejection: %w", err)
	}
	return nil
}
