package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrRecursionLimitExceeded is returned when a task would be dispatched
	// deeper than Config.MaxRecursionDepth.
	ErrRecursionLimitExceeded = errors.New("maximum recursion depth exceeded")
	// ErrIterationCeilingExceeded is returned when a run takes more steps
	// than Config.MaxIterations.
	ErrIterationCeilingExceeded = errors.New("maximum iterations exceeded")
	// ErrNoDispatcher is returned by Analyze when the orchestrator was built
	// without a dispatcher.
	ErrNoDispatcher = errors.New("no dispatcher configured")
)

// CeilingError reports a fatal ceiling violation. The checkpoint is left in
// place so the run can be inspected or resumed with a higher limit.
type CeilingError struct {
	// Err is ErrRecursionLimitExceeded or ErrIterationCeilingExceeded.
	Err        error
	Depth      int
	Iterations int
	Limit      int
}

func (e *CeilingError) Error() string {
	if errors.Is(e.Err, ErrRecursionLimitExceeded) {
		return fmt.Sprintf("%v: depth %d > %d", e.Err, e.Depth, e.Limit)
	}
	return fmt.Sprintf("%v: %d iterations > %d", e.Err, e.Iterations, e.Limit)
}

func (e *CeilingError) Unwrap() error {
	return e.Err
}

// IsCeiling reports whether err is one of the two fatal ceiling violations.
func IsCeiling(err error) bool {
	return errors.Is(err, ErrRecursionLimitExceeded) || errors.Is(err, ErrIterationCeilingExceeded)
}

// StateCorruptionError reports a checkpoint that exists but cannot be
// resumed.
type StateCorruptionError struct {
	Err error
}

func (e *StateCorruptionError) Error() string {
	return fmt.Sprintf("checkpoint corrupted: %v", e.Err)
}

func (e *StateCorruptionError) Unwrap() error {
	return e.Err
}

// Delegation error kinds.
const (
	KindDispatch = "dispatch"
	KindProtocol = "protocol"
)

// DelegationError reports a failed dispatch. Kind is "dispatch" for
// transport failures and "protocol" for malformed outcomes; adapters may use
// their own kinds.
type DelegationError struct {
	Kind    string
	Message string
	Err     error
}

func (e *DelegationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delegation %s error: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("delegation %s error: %s", e.Kind, e.Message)
}

func (e *DelegationError) Unwrap() error {
	return e.Err
}

// asDelegationError wraps a dispatcher error. Errors that carry their own
// kind through an ErrorKind() string method keep it.
func asDelegationError(err error) *DelegationError {
	var de *DelegationError
	if errors.As(err, &de) {
		return de
	}
	kind := KindDispatch
	var kinded interface{ ErrorKind() string }
	if errors.As(err, &kinded) && kinded.ErrorKind() != "" {
		kind = kinded.ErrorKind()
	}
	return &DelegationError{Kind: kind, Message: "dispatch failed", Err: err}
}
