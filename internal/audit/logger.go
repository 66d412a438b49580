package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("audit")

// Entry is a single audit record.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	Outcome   string    `json:"outcome"`
	LatencyMs int64     `json:"latencyMs"`
}

// Logger appends audit records to a JSONL file.
type Logger struct {
	mu   sync.Mutex
	file *os.File
}

// NewLogger opens (creating if needed) the audit log under dir.
func NewLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	path := filepath.Join(dir, "actions.jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Logger{file: file}, nil
}

// LogAction appends one record. Write failures are logged, never propagated;
// auditing must not block the control path.
func (l *Logger) LogAction(action, detail, outcome string, latency time.Duration) {
	entry := Entry{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Detail:    detail,
		Outcome:   outcome,
		LatencyMs: latency.Milliseconds(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Errorf("marshal audit entry: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		log.Errorf("write audit entry: %v", err)
	}
}

// Close releases the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
