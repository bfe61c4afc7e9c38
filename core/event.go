package core

import "time"

// ProgressType classifies a progress event payload.
type ProgressType string

const (
	// ProgressText is a plain text chunk; text events concatenate into the
	// session transcript.
	ProgressText ProgressType = "text"
	// ProgressJSON is a structured payload parsed from the agent stream.
	ProgressJSON ProgressType = "json"
)

// ProgressEvent is one ordered, append-only unit of session output. Text
// events carry Payload; JSON events carry Data.
type ProgressEvent struct {
	SessionID string         `json:"session_id"`
	Type      ProgressType   `json:"type"`
	Payload   string         `json:"payload,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// StartedPayload announces a session start. PID is zero for remote sessions.
type StartedPayload struct {
	SessionID string `json:"session_id"`
	PID       int    `json:"pid,omitempty"`
}

// ErrorPayload carries a non-fatal or fatal error surfaced during a session.
type ErrorPayload struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Phase     string `json:"phase,omitempty"`
}

// CompletePayload reports terminal completion of the underlying transport.
type CompletePayload struct {
	SessionID string `json:"session_id"`
	ExitCode  int    `json:"exit_code"`
	Success   bool   `json:"success"`
}

// ApprovalPayload is a blocking, resumable control signal: the agent asked
// to use a tool and requires external acknowledgement before proceeding.
// It is explicitly not an error class.
type ApprovalPayload struct {
	SessionID string         `json:"session_id"`
	Tool      string         `json:"tool"`
	Input     map[string]any `json:"input,omitempty"`
}

// StateChangePayload records one edge of the session status machine.
type StateChangePayload struct {
	Previous SessionStatus `json:"previous"`
	Current  SessionStatus `json:"current"`
}

// Metrics is the periodic snapshot emitted while a session is active.
type Metrics struct {
	MessageCount int           `json:"message_count"`
	ErrorCount   int           `json:"error_count"`
	Elapsed      time.Duration `json:"elapsed"`
}

// MetricsPayload wraps a metrics snapshot for the bus.
type MetricsPayload struct {
	SessionID string  `json:"session_id"`
	Metrics   Metrics `json:"metrics"`
}

// MessagePayload routes user chat input into the active session.
type MessagePayload struct {
	Text string `json:"text"`
}
