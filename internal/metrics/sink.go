package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// record is the on-disk shape of one JSONL line: a Summary plus the wall
// clock time it was written.
type record struct {
	Timestamp time.Time `json:"timestamp"`
	Summary
}

// JSONLSink appends one JSON object per line to a local file, one line per
// finalized session. It never prunes or rotates the file; that is left to
// the surrounding deployment.
type JSONLSink struct {
	mu   sync.Mutex
	path string
}

// NewJSONLSink creates a JSONLSink writing to path. The file is created on
// first write if it does not already exist.
func NewJSONLSink(path string) *JSONLSink {
	return &JSONLSink{path: path}
}

// Write appends summary as one JSON line.
func (s *JSONLSink) Write(summary Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(record{Timestamp: time.Now().UTC(), Summary: summary})
	if err != nil {
		return fmt.Errorf("metrics: marshal summary: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("metrics: open %s: %w", s.path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("metrics: write %s: %w", s.path, err)
	}
	return nil
}
