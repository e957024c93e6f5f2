package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ShayCichocki/rlm/internal/fsutil"
	"github.com/ShayCichocki/rlm/pkg/models"
)

// CheckpointFileName is the checkpoint file inside the working directory.
const CheckpointFileName = ".rlm_state.json"

// CorruptCheckpointError reports a checkpoint that exists but cannot be
// parsed or fails structural validation.
type CorruptCheckpointError struct {
	Path string
	Err  error
}

func (e *CorruptCheckpointError) Error() string {
	return fmt.Sprintf("corrupt checkpoint %s: %v", e.Path, e.Err)
}

func (e *CorruptCheckpointError) Unwrap() error {
	return e.Err
}

// FileCheckpointStore keeps the checkpoint in a single JSON file, replaced
// atomically on every save.
type FileCheckpointStore struct {
	path string
}

// NewFileCheckpointStore returns a store for the checkpoint of workDir.
func NewFileCheckpointStore(workDir string) *FileCheckpointStore {
	return &FileCheckpointStore{path: filepath.Join(workDir, CheckpointFileName)}
}

// Path returns the checkpoint file path.
func (s *FileCheckpointStore) Path() string {
	return s.path
}

// Load implements CheckpointStore.
func (s *FileCheckpointStore) Load() (*models.Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, &CorruptCheckpointError{Path: s.path, Err: err}
	}
	if err := cp.Validate(); err != nil {
		return nil, &CorruptCheckpointError{Path: s.path, Err: err}
	}
	return &cp, nil
}

// Save implements CheckpointStore.
func (s *FileCheckpointStore) Save(cp *models.Checkpoint) error {
	if err := fsutil.WriteJSONAtomic(s.path, cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Clear implements CheckpointStore. Clearing a missing checkpoint is not an
// error.
func (s *FileCheckpointStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

// Exists implements CheckpointStore.
func (s *FileCheckpointStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// MemoryCheckpointStore keeps the checkpoint in memory as its JSON encoding,
// so a loaded checkpoint never aliases the saved one.
type MemoryCheckpointStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

// NewMemoryCheckpointStore returns an empty in-memory store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{}
}

// Load implements CheckpointStore.
func (s *MemoryCheckpointStore) Load() (*models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, nil
	}
	var cp models.Checkpoint
	if err := json.Unmarshal(s.data, &cp); err != nil {
		return nil, &CorruptCheckpointError{Path: "memory", Err: err}
	}
	if err := cp.Validate(); err != nil {
		return nil, &CorruptCheckpointError{Path: "memory", Err: err}
	}
	return &cp, nil
}

// Save implements CheckpointStore.
func (s *MemoryCheckpointStore) Save(cp *models.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.saves++
	return nil
}

// Clear implements CheckpointStore.
func (s *MemoryCheckpointStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}

// Exists implements CheckpointStore.
func (s *MemoryCheckpointStore) Exists() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data != nil
}

// Saves returns how many times Save has succeeded.
func (s *MemoryCheckpointStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// SetRaw replaces the stored encoding, for simulating damaged checkpoints.
func (s *MemoryCheckpointStore) SetRaw(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
}
