// Package orchestrator runs recursive analyses without native recursion.
//
// A run starts with a root Explorer task. Each step sends the current task to
// a Dispatcher, which answers with either a result or a continuation asking
// for a sub-task. Continuations push the current task onto an explicit stack;
// results pop it and hand the accumulated child results back to the parent.
// After every push and pop the whole loop state is written to a
// CheckpointStore, so an interrupted run resumes where it stopped.
//
// Two ceilings bound a run: the recursion depth, checked before any task is
// dispatched, and the number of loop iterations. Both are fatal and leave the
// checkpoint in place.
//
// Example usage:
//
//	o := orchestrator.New(dispatcher,
//		orchestrator.WithCache(cache.New(cache.Config{WorkDir: dir, Enabled: true})),
//		orchestrator.WithCheckpointStore(state.NewFileCheckpointStore(dir)),
//	)
//	result, err := o.Analyze(ctx, "./src", "How is authentication handled?")
package orchestrator
