package state

import (
	"io"
	"time"

	"github.com/ShayCichocki/rlm/pkg/models"
)

// CheckpointStore persists the single resumable checkpoint of a working
// directory. Load returns nil, nil when no checkpoint exists and a
// *CorruptCheckpointError when one exists but cannot be used.
type CheckpointStore interface {
	Load() (*models.Checkpoint, error)
	Save(cp *models.Checkpoint) error
	Clear() error
	Exists() bool
}

// RunStore handles run-ledger persistence operations.
type RunStore interface {
	CreateRun(r *Run) error
	FinishRun(id string, out Outcome, finishedAt time.Time) error
	GetRun(id string) (*Run, error)
	ListRuns(status *RunStatus, limit int) ([]Run, error)
	PurgeOldRuns(olderThan time.Duration) (int64, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Ledger is the full run-ledger contract, so callers can work with any
// backend without depending on the concrete SQLite implementation.
type Ledger interface {
	io.Closer
	Migrator
	RunStore
}

// Compile-time verification that the implementations satisfy the interfaces.
var (
	_ Ledger          = (*DB)(nil)
	_ RunStore        = (*DB)(nil)
	_ CheckpointStore = (*FileCheckpointStore)(nil)
	_ CheckpointStore = (*MemoryCheckpointStore)(nil)
)
