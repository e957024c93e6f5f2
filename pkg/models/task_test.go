package models

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestRole_Valid(t *testing.T) {
	tests := []struct {
		name string
		role Role
		want bool
	}{
		{"explorer is valid", RoleExplorer, true},
		{"worker is valid", RoleWorker, true},
		{"synthesizer is valid", RoleSynthesizer, true},
		{"custom role is valid", Role("Auditor"), true},
		{"empty string is invalid", Role(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.role.Valid(); got != tt.want {
				t.Errorf("Role(%q).Valid() = %v, want %v", tt.role, got, tt.want)
			}
		})
	}
}

func TestRole_Known(t *testing.T) {
	if !RoleWorker.Known() {
		t.Error("RoleWorker.Known() = false, want true")
	}
	if Role("Auditor").Known() {
		t.Error("Role(Auditor).Known() = true, want false")
	}
}

func TestNewRootTask(t *testing.T) {
	task := NewRootTask("find bugs", map[string]any{"path": "/src"})

	if task.Role != RoleExplorer {
		t.Errorf("Role = %q, want %q", task.Role, RoleExplorer)
	}
	if task.Depth != 0 {
		t.Errorf("Depth = %d, want 0", task.Depth)
	}
	if task.ReturnTo != nil {
		t.Errorf("ReturnTo = %v, want nil", *task.ReturnTo)
	}
	if task.ReturnKey() != "" {
		t.Errorf("ReturnKey() = %q, want empty", task.ReturnKey())
	}
}

func TestTask_Child(t *testing.T) {
	parent := Task{Role: RoleExplorer, Description: "root", Depth: 2}
	cont := &ContinuationRequest{
		Role:     RoleWorker,
		Task:     "inspect auth",
		Context:  map[string]any{"file": "auth.go"},
		ReturnTo: "auth",
	}

	child := parent.Child(cont)

	if child.Depth != 3 {
		t.Errorf("Depth = %d, want 3", child.Depth)
	}
	if child.Role != RoleWorker {
		t.Errorf("Role = %q, want %q", child.Role, RoleWorker)
	}
	if child.Description != "inspect auth" {
		t.Errorf("Description = %q, want %q", child.Description, "inspect auth")
	}
	if child.ReturnKey() != "auth" {
		t.Errorf("ReturnKey() = %q, want %q", child.ReturnKey(), "auth")
	}

	// The child owns its context.
	cont.Context["file"] = "other.go"
	if child.Context["file"] != "auth.go" {
		t.Errorf("child context changed with continuation: %v", child.Context["file"])
	}
}

func TestTask_Clone(t *testing.T) {
	rt := "k"
	orig := Task{
		Role:         RoleWorker,
		Description:  "x",
		Context:      map[string]any{"a": 1},
		ReturnTo:     &rt,
		ChildResults: map[string]*AnalysisResult{"c": {Content: "done"}},
	}

	c := orig.Clone()
	c.Context["a"] = 2
	c.ChildResults["d"] = &AnalysisResult{}
	*c.ReturnTo = "changed"

	if orig.Context["a"] != 1 {
		t.Errorf("original context mutated: %v", orig.Context["a"])
	}
	if len(orig.ChildResults) != 1 {
		t.Errorf("original child results mutated: %d entries", len(orig.ChildResults))
	}
	if *orig.ReturnTo != "k" {
		t.Errorf("original ReturnTo mutated: %q", *orig.ReturnTo)
	}
}

func TestOutcome_Validate(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		wantErr bool
	}{
		{"result", ResultOutcome(&AnalysisResult{Content: "ok"}), false},
		{"continuation", ContinuationOutcome(&ContinuationRequest{Role: RoleWorker, Task: "t", ReturnTo: "k"}), false},
		{"result without payload", Outcome{Kind: OutcomeResult}, true},
		{"continuation without payload", Outcome{Kind: OutcomeContinuation}, true},
		{"both payloads", Outcome{Kind: OutcomeResult, Result: &AnalysisResult{}, Continuation: &ContinuationRequest{}}, true},
		{"unknown kind", Outcome{Kind: "maybe", Result: &AnalysisResult{}}, true},
		{"negative tokens", ResultOutcome(&AnalysisResult{TokenCount: -1}), true},
		{"negative cost", ResultOutcome(&AnalysisResult{CostUSD: -0.5}), true},
		{"continuation without role", ContinuationOutcome(&ContinuationRequest{Task: "t"}), true},
		{"continuation without task", ContinuationOutcome(&ContinuationRequest{Role: RoleWorker}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.outcome.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func validCheckpoint() Checkpoint {
	rt0 := "a"
	rt1 := "b"
	return Checkpoint{
		Version: CheckpointVersion,
		RunID:   "run-1",
		Stack: []Task{
			{Role: RoleExplorer, Description: "root", Depth: 0, Context: map[string]any{"path": "/src"}},
			{Role: RoleWorker, Description: "mid", Depth: 1, ReturnTo: &rt0},
		},
		CurrentTask: Task{Role: RoleWorker, Description: "leaf", Depth: 2, ReturnTo: &rt1},
		Results: map[string]*AnalysisResult{
			"x": {Content: "earlier", TokenCount: 12, CostUSD: 0.01},
		},
		Stats:     Stats{SubagentCalls: 2, MaxDepthReached: 2, Iterations: 2},
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestCheckpoint_Validate(t *testing.T) {
	cp := validCheckpoint()
	if err := cp.Validate(); err != nil {
		t.Fatalf("Validate() on valid checkpoint: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Checkpoint)
	}{
		{"missing role", func(c *Checkpoint) { c.CurrentTask.Role = "" }},
		{"missing description", func(c *Checkpoint) { c.CurrentTask.Description = "" }},
		{"stack depth gap", func(c *Checkpoint) { c.Stack[1].Depth = 5 }},
		{"current depth mismatch", func(c *Checkpoint) { c.CurrentTask.Depth = 7 }},
		{"future version", func(c *Checkpoint) { c.Version = CheckpointVersion + 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCheckpoint()
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestCheckpoint_JSONRoundTrip(t *testing.T) {
	cp := validCheckpoint()

	data, err := json.Marshal(cp)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Checkpoint
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if len(got.Stack) != len(cp.Stack) {
		t.Fatalf("stack length = %d, want %d", len(got.Stack), len(cp.Stack))
	}
	for i := range cp.Stack {
		if got.Stack[i].Description != cp.Stack[i].Description || got.Stack[i].Depth != cp.Stack[i].Depth {
			t.Errorf("stack[%d] = %+v, want %+v", i, got.Stack[i], cp.Stack[i])
		}
	}
	if got.CurrentTask.ReturnKey() != "b" {
		t.Errorf("current ReturnKey() = %q, want %q", got.CurrentTask.ReturnKey(), "b")
	}
	if !reflect.DeepEqual(got.Results, cp.Results) {
		t.Errorf("results = %+v, want %+v", got.Results, cp.Results)
	}
	if !got.Timestamp.Equal(cp.Timestamp) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, cp.Timestamp)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("round-tripped checkpoint invalid: %v", err)
	}
}

func TestCopyResults(t *testing.T) {
	if got := CopyResults(nil); got == nil {
		t.Error("CopyResults(nil) = nil, want empty map")
	}

	src := map[string]*AnalysisResult{"a": {Content: "x"}}
	dst := CopyResults(src)
	dst["b"] = &AnalysisResult{}
	if len(src) != 1 {
		t.Errorf("source mutated: %d entries", len(src))
	}
}
