package models

import "maps"

// Task is one unit of decomposed work owned by the orchestrator for the
// duration of a run.
type Task struct {
	// Role selects the kind of worker the task is delegated to.
	Role Role `json:"role"`
	// Description is the natural-language objective of the task.
	Description string `json:"description"`
	// Context carries arbitrary key/value inputs for the worker.
	Context map[string]any `json:"context"`
	// Depth is the distance from the root task. The root has depth 0.
	Depth int `json:"depth"`
	// ReturnTo is the key under which this task's result is recorded when it
	// finishes. The root task has none.
	ReturnTo *string `json:"return_to,omitempty"`
	// ChildResults holds results of finished children, keyed by their
	// ReturnTo. Populated only when the task is resumed as a parent.
	ChildResults map[string]*AnalysisResult `json:"child_results,omitempty"`
}

// NewRootTask creates the depth-0 Explorer task for a run.
func NewRootTask(query string, ctx map[string]any) Task {
	return Task{
		Role:        RoleExplorer,
		Description: query,
		Context:     ctx,
		Depth:       0,
	}
}

// Child builds the task requested by a continuation. The child sits one level
// below t and inherits nothing from it except depth.
func (t Task) Child(c *ContinuationRequest) Task {
	returnTo := c.ReturnTo
	return Task{
		Role:        c.Role,
		Description: c.Task,
		Context:     maps.Clone(c.Context),
		Depth:       t.Depth + 1,
		ReturnTo:    &returnTo,
	}
}

// ReturnKey returns the ReturnTo key, or "" for tasks without one.
func (t Task) ReturnKey() string {
	if t.ReturnTo == nil {
		return ""
	}
	return *t.ReturnTo
}

// Clone returns a copy of the task whose maps can be mutated independently.
// Context values are copied shallowly.
func (t Task) Clone() Task {
	c := t
	c.Context = maps.Clone(t.Context)
	c.ChildResults = maps.Clone(t.ChildResults)
	if t.ReturnTo != nil {
		rt := *t.ReturnTo
		c.ReturnTo = &rt
	}
	return c
}
