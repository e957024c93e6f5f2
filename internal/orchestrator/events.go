package orchestrator

import (
	"time"

	"github.com/ShayCichocki/rlm/pkg/models"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventStarted indicates a run has started or resumed.
	EventStarted EventType = "started"
	// EventDispatch indicates a task is being sent to the dispatcher.
	EventDispatch EventType = "dispatch"
	// EventCacheHit indicates a task was answered from the cache.
	EventCacheHit EventType = "cache_hit"
	// EventDescend indicates a continuation pushed a child task.
	EventDescend EventType = "descend"
	// EventAscend indicates a child result was handed back to its parent.
	EventAscend EventType = "ascend"
	// EventComplete indicates the root task finished.
	EventComplete EventType = "complete"
	// EventFailed indicates the run stopped with an error.
	EventFailed EventType = "failed"
)

// Event represents one step of a run. Events drive the progress view.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// RunID identifies the run.
	RunID string
	// Role is the role of the task the event concerns.
	Role models.Role
	// Description is the task's objective.
	Description string
	// ReturnTo is the task's result key, if any.
	ReturnTo string
	// Depth is the task's depth.
	Depth int
	// StackSize is the number of suspended parent tasks.
	StackSize int
	// Stats is a snapshot of the run counters.
	Stats models.Stats
	// Resumed is set on EventStarted when the run continues a checkpoint.
	Resumed bool
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
