package orchestrator

import (
	"context"

	"github.com/ShayCichocki/rlm/pkg/models"
)

// DispatchRequest is what the orchestrator hands to the delegation
// capability for one step.
type DispatchRequest struct {
	// Task is a copy of the current task, including any child results.
	Task models.Task
	// MaxDepth is the recursion ceiling, so workers can avoid asking for
	// continuations that would exceed it.
	MaxDepth int
}

// Dispatcher runs a single task and returns either a result or a request for
// a sub-task.
type Dispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) (models.Outcome, error)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, req DispatchRequest) (models.Outcome, error)

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, req DispatchRequest) (models.Outcome, error) {
	return f(ctx, req)
}

// Cache is the result cache consulted before each dispatch. *cache.Manager
// satisfies it.
type Cache interface {
	Get(task models.Task) (*models.AnalysisResult, error)
	Put(task models.Task, result *models.AnalysisResult) error
}
