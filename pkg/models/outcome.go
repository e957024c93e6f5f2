package models

import (
	"errors"
	"fmt"
)

// OutcomeKind discriminates the two shapes a dispatch can return.
type OutcomeKind string

const (
	// OutcomeResult is a terminal AnalysisResult.
	OutcomeResult OutcomeKind = "result"
	// OutcomeContinuation asks the orchestrator to descend before the current
	// task can finish.
	OutcomeContinuation OutcomeKind = "continuation"
)

// AnalysisResult is the terminal value produced by a worker.
type AnalysisResult struct {
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	TokenCount int            `json:"token_count"`
	CostUSD    float64        `json:"cost_usd"`
}

// Validate checks the non-negativity constraints on counters.
func (r *AnalysisResult) Validate() error {
	if r.TokenCount < 0 {
		return fmt.Errorf("token_count must be >= 0, got %d", r.TokenCount)
	}
	if r.CostUSD < 0 {
		return fmt.Errorf("cost_usd must be >= 0, got %f", r.CostUSD)
	}
	return nil
}

// ContinuationRequest is produced by a worker that needs a sub-task answered
// first. It is consumed immediately to build a child Task and never persisted.
type ContinuationRequest struct {
	Role     Role           `json:"role"`
	Task     string         `json:"task"`
	Context  map[string]any `json:"context,omitempty"`
	ReturnTo string         `json:"return_to"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate checks that the continuation can be turned into a child task.
func (c *ContinuationRequest) Validate() error {
	if !c.Role.Valid() {
		return errors.New("continuation role is empty")
	}
	if c.Task == "" {
		return errors.New("continuation task is empty")
	}
	return nil
}

// Outcome is the closed union returned by a dispatch: exactly one of Result or
// Continuation is set, as named by Kind.
type Outcome struct {
	Kind         OutcomeKind
	Result       *AnalysisResult
	Continuation *ContinuationRequest
}

// ResultOutcome wraps a terminal result.
func ResultOutcome(r *AnalysisResult) Outcome {
	return Outcome{Kind: OutcomeResult, Result: r}
}

// ContinuationOutcome wraps a continuation request.
func ContinuationOutcome(c *ContinuationRequest) Outcome {
	return Outcome{Kind: OutcomeContinuation, Continuation: c}
}

// Validate checks that the payload matches the tag.
func (o Outcome) Validate() error {
	switch o.Kind {
	case OutcomeResult:
		if o.Result == nil || o.Continuation != nil {
			return errors.New("result outcome must carry only a result")
		}
		return o.Result.Validate()
	case OutcomeContinuation:
		if o.Continuation == nil || o.Result != nil {
			return errors.New("continuation outcome must carry only a continuation")
		}
		return o.Continuation.Validate()
	default:
		return fmt.Errorf("unknown outcome kind %q", o.Kind)
	}
}
