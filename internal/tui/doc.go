// Package tui provides the terminal progress view for rlm's analyze command.
//
// The view is read-only. It shows the current task, its depth against the
// recursion ceiling, the run counters and an activity log built from
// orchestrator events. Users can only quit with 'q' or Ctrl+C; quitting
// leaves the run's checkpoint in place.
//
// Usage:
//
//	emitter := orchestrator.NewEventEmitter(64, logger)
//	program, app := tui.NewProgressProgram(path, query, maxDepth)
//	go tui.Forward(program, emitter.Events())
//
//	// Signal completion
//	program.Send(tui.DoneMsg{Err: err})
package tui
