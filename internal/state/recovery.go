package state

import (
	"fmt"
	"time"
)

// InterruptedRun describes a run left behind by a process that stopped
// before finishing.
type InterruptedRun struct {
	RunID        string
	Path         string
	Query        string
	StartedAt    time.Time
	LastActivity time.Time
	Depth        int
	StackSize    int
	Results      int
	// Run is the ledger row, if the ledger knows the run.
	Run *Run
}

// RecoveryManager handles detection and cleanup of interrupted runs.
type RecoveryManager struct {
	runs        RunStore
	checkpoints CheckpointStore
}

// NewRecoveryManager creates a RecoveryManager. runs may be nil when no
// ledger is available.
func NewRecoveryManager(runs RunStore, checkpoints CheckpointStore) *RecoveryManager {
	return &RecoveryManager{runs: runs, checkpoints: checkpoints}
}

// CheckForInterrupted reports the run whose checkpoint is on disk, or nil if
// there is none.
func (rm *RecoveryManager) CheckForInterrupted() (*InterruptedRun, error) {
	cp, err := rm.checkpoints.Load()
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, nil
	}

	ir := &InterruptedRun{
		RunID:        cp.RunID,
		StartedAt:    cp.Stats.StartTime,
		LastActivity: cp.Timestamp,
		Depth:        cp.CurrentTask.Depth,
		StackSize:    len(cp.Stack),
		Results:      len(cp.Results),
	}

	root := cp.CurrentTask
	if len(cp.Stack) > 0 {
		root = cp.Stack[0]
	}
	if p, ok := root.Context["path"].(string); ok {
		ir.Path = p
	}
	if q, ok := root.Context["query"].(string); ok {
		ir.Query = q
	}

	if rm.runs != nil && cp.RunID != "" {
		run, err := rm.runs.GetRun(cp.RunID)
		if err != nil {
			return nil, fmt.Errorf("look up interrupted run: %w", err)
		}
		ir.Run = run
	}
	return ir, nil
}

// Abandon discards the checkpoint and marks its run abandoned in the ledger.
func (rm *RecoveryManager) Abandon() error {
	// A corrupt checkpoint is still cleared.
	cp, _ := rm.checkpoints.Load()

	if err := rm.checkpoints.Clear(); err != nil {
		return err
	}
	if rm.runs == nil || cp == nil || cp.RunID == "" {
		return nil
	}

	run, err := rm.runs.GetRun(cp.RunID)
	if err != nil {
		return fmt.Errorf("look up abandoned run: %w", err)
	}
	if run == nil || run.Status.Finished() {
		return nil
	}
	return rm.runs.FinishRun(cp.RunID, Outcome{Status: RunAbandoned, Stats: cp.Stats}, time.Now())
}

// ReconcileOrphans marks running ledger rows abandoned when they are not the
// run held by the current checkpoint. It returns how many rows it changed.
func (rm *RecoveryManager) ReconcileOrphans() (int, error) {
	if rm.runs == nil {
		return 0, nil
	}

	keep := ""
	if cp, err := rm.checkpoints.Load(); err == nil && cp != nil {
		keep = cp.RunID
	}

	status := RunRunning
	running, err := rm.runs.ListRuns(&status, 0)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, r := range running {
		if r.ID == keep {
			continue
		}
		if err := rm.runs.FinishRun(r.ID, Outcome{Status: RunAbandoned}, time.Now()); err != nil {
			return n, fmt.Errorf("abandon run %s: %w", r.ID, err)
		}
		n++
	}
	return n, nil
}
