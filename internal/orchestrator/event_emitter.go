package orchestrator

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// emitTimeout is how long Emit waits for a full channel to drain.
const emitTimeout = 100 * time.Millisecond

// EventEmitter delivers events to a single subscriber without letting a slow
// subscriber stall the run.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
	logger       *slog.Logger
	closeOnce    sync.Once
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int, logger *slog.Logger) *EventEmitter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &EventEmitter{
		events: make(chan Event, bufferSize),
		logger: logger,
	}
}

// Emit sends an event to the events channel.
// If the channel is full, it tries with a timeout before dropping the event.
// Emit on a nil emitter is a no-op.
func (e *EventEmitter) Emit(event Event) {
	if e == nil {
		return
	}

	select {
	case e.events <- event:
		return
	default:
	}

	timer := time.NewTimer(emitTimeout)
	defer timer.Stop()
	select {
	case e.events <- event:
	case <-timer.C:
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			e.logger.Warn("event channel full, dropping events", "dropped", count, "type", event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel. No events may be emitted afterwards.
func (e *EventEmitter) Close() {
	e.closeOnce.Do(func() { close(e.events) })
}
