package orchestrator

import (
	"log/slog"
	"time"

	"github.com/ShayCichocki/rlm/internal/state"
)

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

type orchestratorOptions struct {
	config      Config
	cache       Cache
	checkpoints state.CheckpointStore
	logger      *slog.Logger
	emitter     *EventEmitter
	now         func() time.Time
	runID       string
}

// WithConfig sets the run limits.
func WithConfig(c Config) Option {
	return func(o *orchestratorOptions) { o.config = c }
}

// WithCache sets the result cache. Without one every task is dispatched.
func WithCache(c Cache) Option {
	return func(o *orchestratorOptions) { o.cache = c }
}

// WithCheckpointStore sets where checkpoints are persisted. The default is
// an in-memory store, which does not survive the process.
func WithCheckpointStore(s state.CheckpointStore) Option {
	return func(o *orchestratorOptions) { o.checkpoints = s }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithEventEmitter sets the emitter that receives step events.
func WithEventEmitter(e *EventEmitter) Option {
	return func(o *orchestratorOptions) { o.emitter = e }
}

// WithClock overrides time.Now (mainly for testing).
func WithClock(now func() time.Time) Option {
	return func(o *orchestratorOptions) { o.now = now }
}

// WithRunID sets the id recorded in checkpoints of a new run. A resumed run
// keeps the id from its checkpoint.
func WithRunID(id string) Option {
	return func(o *orchestratorOptions) { o.runID = id }
}
