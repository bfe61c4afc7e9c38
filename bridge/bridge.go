// Package bridge defines the transport contract that executes one agent
// turn: either a native subprocess channel driving the locally installed
// coding agent, or a remote streaming API call to an LLM provider. Exactly
// one variant is selected at environment-detection time and used for the
// process lifetime; both implement the identical execute/cancel/status
// contract.
package bridge

import (
	"context"

	"github.com/mindmapper/conductor/core"
	"github.com/mindmapper/conductor/model"
)

// Status reports the bridge's coarse state.
type Status string

const (
	// StatusIdle means no execution is in flight.
	StatusIdle Status = "idle"
	// StatusRunning means an execution is in flight.
	StatusRunning Status = "running"
	// StatusCancelling means cancellation was requested but the transport has
	// not yet acknowledged termination.
	StatusCancelling Status = "cancelling"
)

// EventKind enumerates the inbound event kinds of a bridge stream.
type EventKind string

const (
	// KindStarted announces that the transport accepted the prompt.
	KindStarted EventKind = "started"
	// KindProgress carries one ordered output chunk.
	KindProgress EventKind = "progress"
	// KindError carries a non-fatal error line from the transport.
	KindError EventKind = "error"
	// KindApproval signals a blocking tool-use permission request. It is a
	// resumable control signal, not an error.
	KindApproval EventKind = "approval"
	// KindComplete is terminal; no event follows it on the stream.
	KindComplete EventKind = "complete"
)

// CompleteInfo describes terminal completion of a bridge execution,
// including cost accounting when the transport reports it.
type CompleteInfo struct {
	ExitCode  int               `json:"exit_code"`
	Success   bool              `json:"success"`
	Cancelled bool              `json:"cancelled"`
	Model     string            `json:"model,omitempty"`
	Usage     *model.TokenUsage `json:"usage,omitempty"`
	CostUSD   float64           `json:"cost_usd,omitempty"`
}

// Event is one unit of the ordered per-session bridge stream. Exactly one
// payload field matching Kind is populated. The stream is closed after the
// KindComplete event; the close is the completion acknowledgement that frees
// the bridge for a new execution.
type Event struct {
	Kind      EventKind             `json:"kind"`
	SessionID string                `json:"session_id"`
	Started   *core.StartedPayload  `json:"started,omitempty"`
	Progress  *core.ProgressEvent   `json:"progress,omitempty"`
	Error     *core.ErrorPayload    `json:"error,omitempty"`
	Approval  *core.ApprovalPayload `json:"approval,omitempty"`
	Complete  *CompleteInfo         `json:"complete,omitempty"`
}

// ExecuteResult is the immediate result of a successful Execute call.
type ExecuteResult struct {
	SessionID string `json:"session_id"`
	PID       int    `json:"pid,omitempty"`
}

// CancelResult reports the outcome of a cancellation request. Cancellation
// is cooperative: Cancelled true means the request was delivered, not that
// the session already terminated.
type CancelResult struct {
	Cancelled bool   `json:"cancelled"`
	Reason    string `json:"reason,omitempty"`
}

// Availability is the result of a transport capability probe.
type Availability struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Bridge executes one agent turn at a time over a concrete transport.
// Implementations must deliver stream events in emission order, emit
// KindComplete exactly once as the final event, and reject Execute while a
// previous stream is still open.
type Bridge interface {
	// Execute starts one agent turn. The returned channel delivers the
	// ordered event stream and is closed after the terminal event.
	Execute(ctx context.Context, opts core.StartOptions) (ExecuteResult, <-chan Event, error)

	// Cancel requests cooperative termination of the in-flight execution.
	// Calling Cancel with nothing in flight returns {Cancelled: false}.
	Cancel(ctx context.Context) (CancelResult, error)

	// Status reports the coarse bridge state.
	Status() Status

	// DetectAvailability probes whether the transport can serve executions.
	DetectAvailability(ctx context.Context) (Availability, error)
}
