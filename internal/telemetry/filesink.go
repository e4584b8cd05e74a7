package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileSink is the durable, append-only log-file sink: one file per match,
// one JSON object per line, flushed after every write. It is the
// authoritative audit trail — prompts are always stored verbatim here
// regardless of the document sink's prompt-storage mode.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (creating if necessary) <dir>/<matchID>.log for
// append.
func NewFileSink(dir, matchID string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create telemetry dir: %w", err)
	}
	path := filepath.Join(dir, matchID+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open telemetry log %s: %w", path, err)
	}
	return &FileSink{file: f}, nil
}

// WriteRecord serializes v as one JSON line and flushes. File-sink write
// failures are fatal to the run: the audit trail being unwritable is
// never silently dropped.
func (s *FileSink) WriteRecord(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := MarshalJSONL(v)
	if err != nil {
		return fmt.Errorf("marshal telemetry record: %w", err)
	}
	data = append(data, '\n')

	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("write telemetry record: %w", err)
	}
	return s.file.Sync()
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
