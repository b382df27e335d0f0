package recovery

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// CheckpointStore persists the last durable checkpoint sequence number
// so that replay after a restart can resume from it.
type CheckpointStore interface {
	// Save records the checkpoint sequence number.
	Save(lsn uint64) error

	// Load returns the last saved checkpoint, or 0 when none exists.
	Load() (uint64, error)
}

// MemoryCheckpointStore keeps the checkpoint in memory. Useful for
// tests and for embedders that persist elsewhere.
type MemoryCheckpointStore struct {
	mu  sync.Mutex
	lsn uint64
}

// NewMemoryCheckpointStore creates an empty in-memory store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{}
}

func (s *MemoryCheckpointStore) Save(lsn uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lsn = lsn
	return nil
}

func (s *MemoryCheckpointStore) Load() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lsn, nil
}

// FileCheckpointStore persists the checkpoint to a file, written
// atomically via rename.
type FileCheckpointStore struct {
	mu   sync.Mutex
	path string
}

// NewFileCheckpointStore creates a store backed by the given path.
func NewFileCheckpointStore(path string) *FileCheckpointStore {
	return &FileCheckpointStore{path: path}
}

func (s *FileCheckpointStore) Save(lsn uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatUint(lsn, 10)+"\n"), 0644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("install checkpoint: %w", err)
	}
	return nil
}

func (s *FileCheckpointStore) Load() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}

	lsn, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse checkpoint: %w", err)
	}
	return lsn, nil
}
