package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/rlm/internal/state"
	"github.com/ShayCichocki/rlm/pkg/models"
)

// Orchestrator runs the trampoline loop for one working directory. It is not
// safe for concurrent Analyze calls.
type Orchestrator struct {
	dispatcher  Dispatcher
	config      Config
	cache       Cache
	checkpoints state.CheckpointStore
	logger      *slog.Logger
	emitter     *EventEmitter
	now         func() time.Time

	newRunID string
	runID    string
	resumed  bool

	// Loop state. Mirrors the fields of models.Checkpoint.
	stack   []models.Task
	current models.Task
	results map[string]*models.AnalysisResult

	mu    sync.Mutex
	stats models.Stats
}

// New creates an orchestrator that delegates tasks to dispatcher.
func New(dispatcher Dispatcher, opts ...Option) *Orchestrator {
	o := &orchestratorOptions{
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.checkpoints == nil {
		o.checkpoints = state.NewMemoryCheckpointStore()
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.now == nil {
		o.now = time.Now
	}

	return &Orchestrator{
		dispatcher:  dispatcher,
		config:      o.config.withDefaults(),
		cache:       o.cache,
		checkpoints: o.checkpoints,
		logger:      o.logger,
		emitter:     o.emitter,
		now:         o.now,
		newRunID:    o.runID,
	}
}

// Stats returns a snapshot of the counters of the current or last run.
func (o *Orchestrator) Stats() models.Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

// RunID returns the id of the current or last run.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Resumed reports whether the last Analyze call continued a checkpoint.
func (o *Orchestrator) Resumed() bool {
	return o.resumed
}

// HasCheckpoint reports whether an unfinished run is persisted.
func (o *Orchestrator) HasCheckpoint() bool {
	return o.checkpoints.Exists()
}

// Analyze answers query about path. If a checkpoint exists the persisted run
// is resumed and path and query are ignored.
//
// Ceiling violations return a *CeilingError and leave the checkpoint in
// place. Dispatch failures return a *DelegationError, and an unreadable
// checkpoint returns a *StateCorruptionError.
func (o *Orchestrator) Analyze(ctx context.Context, path, query string) (*models.AnalysisResult, error) {
	if o.dispatcher == nil {
		return nil, ErrNoDispatcher
	}

	if err := o.start(path, query); err != nil {
		return nil, err
	}

	result, err := o.loop(ctx)
	if err != nil {
		o.emit(EventFailed, func(e *Event) { e.Error = err })
		o.logger.Error("analysis failed",
			"run_id", o.runID,
			"role", o.current.Role,
			"depth", o.current.Depth,
			"error", err,
		)
		return nil, err
	}
	return result, nil
}

// start restores the checkpoint, or builds the root task of a new run.
func (o *Orchestrator) start(path, query string) error {
	cp, err := o.checkpoints.Load()
	if err != nil {
		var corrupt *state.CorruptCheckpointError
		if errors.As(err, &corrupt) {
			return &StateCorruptionError{Err: err}
		}
		return fmt.Errorf("load checkpoint: %w", err)
	}

	if cp != nil {
		o.resumed = true
		o.stack = slices.Clone(cp.Stack)
		o.current = cp.CurrentTask
		o.results = models.CopyResults(cp.Results)
		o.setStats(cp.Stats)
		o.runID = cp.RunID
		if o.runID == "" {
			o.runID = o.runIDForNewRun()
		}
		o.logger.Info("resuming run from checkpoint",
			"run_id", o.runID,
			"depth", o.current.Depth,
			"stack_size", len(o.stack),
			"results", len(o.results),
		)
		o.emit(EventStarted, func(e *Event) { e.Resumed = true })
		return nil
	}

	start := o.now()
	o.resumed = false
	o.stack = nil
	o.results = make(map[string]*models.AnalysisResult)
	o.current = models.NewRootTask(query, map[string]any{
		"path":       path,
		"query":      query,
		"start_time": start.UTC().Format(time.RFC3339),
	})
	o.setStats(models.Stats{StartTime: start})
	o.runID = o.runIDForNewRun()
	o.logger.Info("starting run", "run_id", o.runID, "path", path, "query", query)
	o.emit(EventStarted, nil)
	return nil
}

func (o *Orchestrator) runIDForNewRun() string {
	if o.newRunID != "" {
		return o.newRunID
	}
	return uuid.NewString()
}

// loop drives the trampoline. The iteration count starts from the restored
// stats, so a resumed run shares its ceiling with the attempts before it.
func (o *Orchestrator) loop(ctx context.Context) (*models.AnalysisResult, error) {
	iterations := o.Stats().Iterations
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Depth is checked before anything else so an over-depth task is
		// never dispatched.
		if o.current.Depth > o.config.MaxRecursionDepth {
			return nil, &CeilingError{
				Err:   ErrRecursionLimitExceeded,
				Depth: o.current.Depth,
				Limit: o.config.MaxRecursionDepth,
			}
		}
		iterations++
		if iterations > o.config.MaxIterations {
			return nil, &CeilingError{
				Err:        ErrIterationCeilingExceeded,
				Depth:      o.current.Depth,
				Iterations: iterations,
				Limit:      o.config.MaxIterations,
			}
		}

		o.updateStats(func(s *models.Stats) {
			s.Iterations++
			s.MaxDepthReached = max(s.MaxDepthReached, o.current.Depth)
		})

		outcome, err := o.step(ctx)
		if err != nil {
			return nil, err
		}

		switch outcome.Kind {
		case models.OutcomeContinuation:
			o.descend(outcome.Continuation)

		case models.OutcomeResult:
			if len(o.stack) == 0 {
				o.finish()
				return outcome.Result, nil
			}
			o.ascend(outcome.Result)

		default:
			return nil, &DelegationError{Kind: KindProtocol, Message: fmt.Sprintf("unknown outcome kind %q", outcome.Kind)}
		}
	}
}

// step produces the outcome for the current task, from the cache or from the
// dispatcher.
func (o *Orchestrator) step(ctx context.Context) (models.Outcome, error) {
	if cached := o.cached(o.current); cached != nil {
		o.updateStats(func(s *models.Stats) { s.CacheHits++ })
		o.logger.Debug("cache hit", "role", o.current.Role, "depth", o.current.Depth)
		o.emit(EventCacheHit, nil)
		return models.ResultOutcome(cached), nil
	}

	o.logger.Info("dispatching task",
		"role", o.current.Role,
		"depth", o.current.Depth,
		"stack_size", len(o.stack),
	)
	o.emit(EventDispatch, nil)

	outcome, err := o.dispatcher.Dispatch(ctx, DispatchRequest{
		Task:     o.current.Clone(),
		MaxDepth: o.config.MaxRecursionDepth,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Outcome{}, ctxErr
		}
		return models.Outcome{}, asDelegationError(err)
	}
	o.updateStats(func(s *models.Stats) { s.SubagentCalls++ })

	if err := outcome.Validate(); err != nil {
		return models.Outcome{}, &DelegationError{Kind: KindProtocol, Message: "invalid outcome", Err: err}
	}

	if outcome.Kind == models.OutcomeResult {
		o.updateStats(func(s *models.Stats) {
			s.TotalTokens += outcome.Result.TokenCount
			if o.config.CostTracking {
				s.TotalCostUSD += outcome.Result.CostUSD
			}
		})
	}
	return outcome, nil
}

func (o *Orchestrator) cached(task models.Task) *models.AnalysisResult {
	if o.cache == nil {
		return nil
	}
	result, err := o.cache.Get(task)
	if err != nil {
		o.logger.Warn("cache read failed, dispatching", "error", err)
		return nil
	}
	return result
}

// descend suspends the current task and makes the requested child current.
func (o *Orchestrator) descend(c *models.ContinuationRequest) {
	o.logger.Debug("continuation requested",
		"role", c.Role,
		"return_to", c.ReturnTo,
		"depth", o.current.Depth+1,
	)
	parent := o.current
	o.stack = append(o.stack, parent)
	o.current = parent.Child(c)
	o.persist()
	o.emit(EventDescend, nil)
}

// ascend hands a finished child's result back to its parent and makes the
// parent current again.
func (o *Orchestrator) ascend(result *models.AnalysisResult) {
	finished := o.current

	// Only results consumed by a parent are cached. A root task that
	// finishes on its first dispatch is never written to the cache.
	if o.cache != nil {
		if err := o.cache.Put(finished, result); err != nil {
			o.logger.Warn("cache write failed", "error", err)
		}
	}

	if finished.ReturnTo != nil {
		o.results[*finished.ReturnTo] = result
	}

	parent := o.stack[len(o.stack)-1]
	o.stack = o.stack[:len(o.stack)-1]
	parent.ChildResults = models.CopyResults(o.results)
	o.current = parent

	o.logger.Debug("returned to parent",
		"return_to", finished.ReturnKey(),
		"depth", o.current.Depth,
		"stack_size", len(o.stack),
	)
	o.persist()
	o.emit(EventAscend, func(e *Event) { e.ReturnTo = finished.ReturnKey() })
}

// finish clears the checkpoint of a completed run.
func (o *Orchestrator) finish() {
	if err := o.checkpoints.Clear(); err != nil {
		o.logger.Warn("failed to clear checkpoint", "error", err)
	}
	stats := o.Stats()
	o.logger.Info("analysis complete",
		"run_id", o.runID,
		"subagent_calls", stats.SubagentCalls,
		"cache_hits", stats.CacheHits,
		"max_depth", stats.MaxDepthReached,
		"tokens", stats.TotalTokens,
	)
	o.emit(EventComplete, nil)
}

// persist writes the loop state. A failed save is logged and the run
// continues.
func (o *Orchestrator) persist() {
	cp := &models.Checkpoint{
		Version:     models.CheckpointVersion,
		RunID:       o.runID,
		Stack:       slices.Clone(o.stack),
		CurrentTask: o.current,
		Results:     models.CopyResults(o.results),
		Stats:       o.Stats(),
		Timestamp:   o.now(),
	}
	if err := o.checkpoints.Save(cp); err != nil {
		o.logger.Warn("failed to save checkpoint", "error", err)
	}
}

func (o *Orchestrator) setStats(s models.Stats) {
	o.mu.Lock()
	o.stats = s
	o.mu.Unlock()
}

func (o *Orchestrator) updateStats(fn func(*models.Stats)) {
	o.mu.Lock()
	fn(&o.stats)
	o.mu.Unlock()
}

func (o *Orchestrator) emit(t EventType, fill func(*Event)) {
	if o.emitter == nil {
		return
	}
	e := Event{
		Type:        t,
		RunID:       o.runID,
		Role:        o.current.Role,
		Description: o.current.Description,
		ReturnTo:    o.current.ReturnKey(),
		Depth:       o.current.Depth,
		StackSize:   len(o.stack),
		Stats:       o.Stats(),
		Timestamp:   o.now(),
	}
	if fill != nil {
		fill(&e)
	}
	o.emitter.Emit(e)
}
