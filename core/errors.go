package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for state-machine guard violations. These are caller
// contract violations returned synchronously; they never terminate an
// already-running session.
var (
	// ErrAlreadyRunning is returned by StartSession while another session is
	// non-terminal. Sessions are never queued.
	ErrAlreadyRunning = errors.New("a session is already running")

	// ErrInvalidTransition is returned when an operation is not legal from
	// the current session status (e.g. Pause while idle).
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrCancelled marks user-initiated termination of an in-flight operation.
	ErrCancelled = errors.New("session cancelled")
)

// SpawnError indicates the native transport failed to start the agent
// process. It is surfaced distinctly so callers can offer a remediation
// path such as retrying on the remote transport.
type SpawnError struct {
	Err error
}

// Error implements the error interface.
func (e *SpawnError) Error() string { return fmt.Sprintf("spawn failed: %v", e.Err) }

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *SpawnError) Unwrap() error { return e.Err }

// NetworkError indicates the remote transport call failed (connect, auth,
// stream interruption).
type NetworkError struct {
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string { return fmt.Sprintf("remote transport failed: %v", e.Err) }

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *NetworkError) Unwrap() error { return e.Err }

// ParseError indicates planner output did not decode into a valid Plan
// shape. The coordinator recovers from it via the deterministic local plan;
// it is never fatal to a session.
type ParseError struct {
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string { return fmt.Sprintf("malformed plan: %s", e.Reason) }

// ValidationError indicates a task references an agent id absent from the
// registry. The offending task is dropped and the plan continues.
type ValidationError struct {
	AgentID string
	Task    string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("task %q assigned to unknown agent %q", e.Task, e.AgentID)
}
