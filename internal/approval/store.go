package approval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

const (
	storeVersion      = 1
	approvalsFileMode = 0644
	approvalsDirMode  = 0755
	firstRequestID    = int64(1)
)

type fileData struct {
	Version  int       `json:"version"`
	NextID   int64     `json:"next_id"`
	Requests []Request `json:"requests"`
}

// Store persists approval requests as one JSON document, replaced atomically
// on every save.
type Store struct {
	path string
	mu   sync.Mutex
}

// DefaultStorePath returns <workspace>/state/approvals.json.
func DefaultStorePath(workspace string) string {
	return filepath.Join(workspace, "state", "approvals.json")
}

// NewStore creates a store at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() (fileData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return emptyFileData(), nil
		}
		return fileData{}, fmt.Errorf("read approval store: %w", err)
	}

	var parsed fileData
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fileData{}, fmt.Errorf("parse approval store: %w", err)
	}
	return normalizeFileData(parsed), nil
}

func (s *Store) save(data fileData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded, err := json.MarshalIndent(normalizeFileData(data), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal approval store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, approvalsDirMode); err != nil {
		return fmt.Errorf("create approval store dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "approvals-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp approval store: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(encoded); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp approval store: %w", err)
	}
	if err := tmp.Chmod(approvalsFileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp approval store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp approval store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp approval store: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace approval store: %w", err)
	}
	return nil
}

// update runs fn over the current document while holding the store's
// cross-process lock and saves the result when fn reports a change.
func (s *Store) update(fn func(data *fileData) (bool, error)) error {
	if err := os.MkdirAll(filepath.Dir(s.path), approvalsDirMode); err != nil {
		return fmt.Errorf("create approval store dir: %w", err)
	}
	unlock, err := lockFile(s.path + ".lock")
	if err != nil {
		return err
	}
	defer unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	changed, err := fn(&data)
	if err != nil || !changed {
		return err
	}
	return s.save(data)
}

func emptyFileData() fileData {
	return fileData{Version: storeVersion, NextID: firstRequestID, Requests: []Request{}}
}

func normalizeFileData(data fileData) fileData {
	if data.Version <= 0 {
		data.Version = storeVersion
	}
	if data.Requests == nil {
		data.Requests = []Request{}
	}
	if data.NextID <= 0 {
		data.NextID = nextIDFromRequests(data.Requests)
	}
	return data
}

func nextIDFromRequests(requests []Request) int64 {
	highest := int64(0)
	for _, req := range requests {
		if id, err := strconv.ParseInt(req.ID, 10, 64); err == nil && id > highest {
			highest = id
		}
	}
	if highest < firstRequestID {
		return firstRequestID
	}
	return highest + 1
}
