package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	auditFileMode = 0644
	auditDirMode  = 0755
)

// FileSink appends records to a JSONL file, one record per line.
type FileSink struct {
	path string
	mu   sync.Mutex
}

// NewFileSink creates an append-only JSONL sink at path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// DefaultFilePath returns <workspace>/state/audit.jsonl.
func DefaultFilePath(workspace string) string {
	return filepath.Join(workspace, "state", "audit.jsonl")
}

// Path returns the file the sink writes to.
func (s *FileSink) Path() string {
	return s.path
}

// Append writes one record as one JSONL line with a single write call.
func (s *FileSink) Append(_ context.Context, rec Record) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	encoded = append(encoded, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), auditDirMode); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, auditFileMode)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(encoded); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync audit file: %w", err)
	}
	return nil
}

// Close is a no-op; the file is opened per append.
func (s *FileSink) Close() error { return nil }

// ReadFile returns the records stored at path, optionally filtered by run id.
// Lines that fail to parse are skipped.
func ReadFile(path, runID string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	runID = strings.TrimSpace(runID)
	var records []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if runID != "" && rec.RunID != runID {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("scan audit file: %w", err)
	}
	return records, nil
}
