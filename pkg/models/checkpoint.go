package models

import (
	"errors"
	"fmt"
	"maps"
	"time"
)

// CheckpointVersion is written into every checkpoint.
const CheckpointVersion = 1

// Stats aggregates counters for one run. Token and cost totals are advisory
// and never used to stop a run.
type Stats struct {
	SubagentCalls   int       `json:"total_subagent_calls"`
	CacheHits       int       `json:"cache_hits"`
	TotalTokens     int       `json:"total_tokens"`
	TotalCostUSD    float64   `json:"total_cost_usd"`
	MaxDepthReached int       `json:"max_depth_reached"`
	Iterations      int       `json:"iterations"`
	StartTime       time.Time `json:"start_time"`
}

// Checkpoint is the serialized, resumable state of an in-progress run.
type Checkpoint struct {
	Version     int                        `json:"version"`
	RunID       string                     `json:"run_id,omitempty"`
	Stack       []Task                     `json:"stack"`
	CurrentTask Task                       `json:"current_task"`
	Results     map[string]*AnalysisResult `json:"results"`
	Stats       Stats                      `json:"stats"`
	Timestamp   time.Time                  `json:"timestamp"`
}

// Validate checks the structural invariants a checkpoint must satisfy to be
// resumed: every stacked task sits at the depth equal to its position, and
// the current task sits directly below the top of the stack.
func (c *Checkpoint) Validate() error {
	if c.Version > CheckpointVersion {
		return fmt.Errorf("unsupported checkpoint version %d", c.Version)
	}
	if !c.CurrentTask.Role.Valid() {
		return errors.New("current task has no role")
	}
	if c.CurrentTask.Description == "" {
		return errors.New("current task has no description")
	}
	for i, t := range c.Stack {
		if t.Depth != i {
			return fmt.Errorf("stack entry %d has depth %d", i, t.Depth)
		}
		if !t.Role.Valid() {
			return fmt.Errorf("stack entry %d has no role", i)
		}
	}
	if c.CurrentTask.Depth != len(c.Stack) {
		return fmt.Errorf("current task depth %d does not match stack size %d", c.CurrentTask.Depth, len(c.Stack))
	}
	return nil
}

// CopyResults returns a shallow copy of the accumulated results mapping.
func CopyResults(results map[string]*AnalysisResult) map[string]*AnalysisResult {
	if results == nil {
		return make(map[string]*AnalysisResult)
	}
	return maps.Clone(results)
}
