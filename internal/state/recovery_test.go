package state

import (
	"testing"
	"time"
)

func TestNewRecoveryManager(t *testing.T) {
	rm := NewRecoveryManager(nil, NewMemoryCheckpointStore())
	if rm == nil {
		t.Fatal("NewRecoveryManager returned nil")
	}
}

func TestCheckForInterrupted_NoCheckpoint(t *testing.T) {
	db := setupTestDB(t)
	rm := NewRecoveryManager(db, NewMemoryCheckpointStore())

	ir, err := rm.CheckForInterrupted()
	if err != nil {
		t.Fatalf("CheckForInterrupted failed: %v", err)
	}
	if ir != nil {
		t.Errorf("CheckForInterrupted() = %+v, want nil", ir)
	}
}

func TestCheckForInterrupted_WithCheckpoint(t *testing.T) {
	db := setupTestDB(t)
	if err := db.CreateRun(newRun("run-1", time.Now())); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	store := NewMemoryCheckpointStore()
	if err := store.Save(sampleCheckpoint()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	ir, err := NewRecoveryManager(db, store).CheckForInterrupted()
	if err != nil {
		t.Fatalf("CheckForInterrupted failed: %v", err)
	}
	if ir == nil {
		t.Fatal("CheckForInterrupted() = nil, want interrupted run")
	}
	if ir.RunID != "run-1" || ir.Path != "/src" || ir.Query != "find bugs" {
		t.Errorf("interrupted = %+v", ir)
	}
	if ir.Depth != 1 || ir.StackSize != 1 || ir.Results != 1 {
		t.Errorf("shape = depth %d, stack %d, results %d; want 1, 1, 1", ir.Depth, ir.StackSize, ir.Results)
	}
	if ir.Run == nil || ir.Run.Status != RunRunning {
		t.Errorf("ledger row = %+v, want running run", ir.Run)
	}
}

func TestCheckForInterrupted_CorruptCheckpoint(t *testing.T) {
	store := NewMemoryCheckpointStore()
	store.SetRaw([]byte("{"))
	if _, err := NewRecoveryManager(nil, store).CheckForInterrupted(); err == nil {
		t.Error("CheckForInterrupted() on corrupt checkpoint = nil error, want error")
	}
}

func TestAbandon(t *testing.T) {
	db := setupTestDB(t)
	if err := db.CreateRun(newRun("run-1", time.Now())); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	store := NewMemoryCheckpointStore()
	if err := store.Save(sampleCheckpoint()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := NewRecoveryManager(db, store).Abandon(); err != nil {
		t.Fatalf("Abandon failed: %v", err)
	}
	if store.Exists() {
		t.Error("checkpoint still exists after Abandon")
	}
	r, _ := db.GetRun("run-1")
	if r.Status != RunAbandoned {
		t.Errorf("Status = %q, want %q", r.Status, RunAbandoned)
	}
}

func TestAbandon_CorruptCheckpoint(t *testing.T) {
	store := NewMemoryCheckpointStore()
	store.SetRaw([]byte("garbage"))
	if err := NewRecoveryManager(nil, store).Abandon(); err != nil {
		t.Fatalf("Abandon failed: %v", err)
	}
	if store.Exists() {
		t.Error("corrupt checkpoint not cleared")
	}
}

func TestReconcileOrphans(t *testing.T) {
	db := setupTestDB(t)
	for _, id := range []string{"run-1", "orphan"} {
		if err := db.CreateRun(newRun(id, time.Now())); err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}
	}
	store := NewMemoryCheckpointStore()
	if err := store.Save(sampleCheckpoint()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	n, err := NewRecoveryManager(db, store).ReconcileOrphans()
	if err != nil {
		t.Fatalf("ReconcileOrphans failed: %v", err)
	}
	if n != 1 {
		t.Errorf("ReconcileOrphans() = %d, want 1", n)
	}
	if r, _ := db.GetRun("orphan"); r.Status != RunAbandoned {
		t.Errorf("orphan status = %q, want %q", r.Status, RunAbandoned)
	}
	if r, _ := db.GetRun("run-1"); r.Status != RunRunning {
		t.Errorf("checkpointed run status = %q, want %q", r.Status, RunRunning)
	}
}
