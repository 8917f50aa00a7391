// Package audit writes an append-only JSONL trail of control actions.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is a single audit record.
type Entry struct {
	Timestamp     time.Time      `json:"ts"`
	Action        string         `json:"action"`
	Params        map[string]any `json:"params,omitempty"`
	Outcome       string         `json:"outcome"`
	LatencyMs     float64        `json:"latencyMs"`
	CorrelationID string         `json:"correlationId,omitempty"`
}

// contextKey scopes audit context values.
type contextKey string

const correlationIDKey contextKey = "correlationId"

// WithCorrelationID attaches a request correlation ID for audit records.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID retrieves the correlation ID from the context, if any.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// Logger appends audit entries to <dir>/audit.jsonl.
type Logger struct {
	mu   sync.Mutex
	file *os.File
}

// NewLogger creates the log directory if needed and opens the audit file
// for append-only writing.
func NewLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	path := filepath.Join(dir, "audit.jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return &Logger{file: file}, nil
}

// LogAction records one control action with its outcome and latency.
func (l *Logger) LogAction(ctx context.Context, action string, params map[string]any, outcome string, latency time.Duration) {
	entry := Entry{
		Timestamp:     time.Now().UTC(),
		Action:        action,
		Params:        params,
		Outcome:       outcome,
		LatencyMs:     float64(latency.Microseconds()) / 1000.0,
		CorrelationID: CorrelationID(ctx),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.file.Write(data)
}

// Close flushes and closes the audit file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
