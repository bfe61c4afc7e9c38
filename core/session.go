package core

import (
	"sync"
	"time"
)

// SessionStatus enumerates the lifecycle states of a session. The closed set
// and its transition table are the authority for every controller operation;
// illegal transitions are rejected, never silently applied.
type SessionStatus string

const (
	// StatusIdle is the rest state; no session resources are held.
	StatusIdle SessionStatus = "idle"
	// StatusInitializing covers bridge validation and the execute call.
	StatusInitializing SessionStatus = "initializing"
	// StatusExecuting means the bridge accepted the prompt and work started.
	StatusExecuting SessionStatus = "executing"
	// StatusMonitoring means the session streams progress and accepts pause.
	StatusMonitoring SessionStatus = "monitoring"
	// StatusPaused holds the session pending an external resume.
	StatusPaused SessionStatus = "paused"
	// StatusCompleted is terminal: the bridge reported successful completion.
	StatusCompleted SessionStatus = "completed"
	// StatusFailed is terminal: the bridge or transport reported a failure.
	StatusFailed SessionStatus = "failed"
	// StatusCancelled is terminal: the user requested termination and the
	// bridge acknowledged it.
	StatusCancelled SessionStatus = "cancelled"
)

// IsTerminal reports whether the status ends a session. Terminal sessions
// free the single-active-session slot; a new StartSession returns to idle.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// validTransitions is the total transition function of the status machine.
// Absence of an edge means the transition is illegal.
var validTransitions = map[SessionStatus][]SessionStatus{
	StatusIdle:         {StatusInitializing},
	StatusInitializing: {StatusExecuting, StatusFailed, StatusCancelled},
	StatusExecuting:    {StatusMonitoring, StatusCompleted, StatusFailed, StatusCancelled},
	StatusMonitoring:   {StatusPaused, StatusCompleted, StatusFailed, StatusCancelled},
	StatusPaused:       {StatusMonitoring, StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:    {StatusIdle},
	StatusFailed:       {StatusIdle},
	StatusCancelled:    {StatusIdle},
}

// CanTransition reports whether moving from s to next is a legal edge.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	for _, t := range validTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// StartOptions captures the caller-supplied parameters of a session start.
// Failed and cancelled sessions retain their options to support retry.
type StartOptions struct {
	Prompt    string `json:"prompt"`
	OutputDir string `json:"output_dir"`
	Model     string `json:"model,omitempty"`
	HandsOff  bool   `json:"hands_off"`
}

// Session tracks one delegated execution run. At most one session may be
// non-terminal at a time, system-wide; the controller enforces this.
// Session is safe for concurrent access.
type Session struct {
	ID          string        `json:"id"`
	Status      SessionStatus `json:"status"`
	PID         int           `json:"pid,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	LastPrompt  string        `json:"last_prompt"`
	LastOptions StartOptions  `json:"last_options"`
	HandsOff    bool          `json:"hands_off"`

	mu         sync.RWMutex
	transcript []ProgressEvent
}

// NewSession creates an idle session with the given id.
func NewSession(id string) *Session {
	return &Session{ID: id, Status: StatusIdle}
}

// CurrentStatus returns the status under the read lock.
func (s *Session) CurrentStatus() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// Transition moves the session to next if the edge is legal, returning
// ErrInvalidTransition otherwise. The returned previous status lets callers
// emit {previous, current} change events without a second lock acquisition.
func (s *Session) Transition(next SessionStatus) (previous SessionStatus, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Status.CanTransition(next) {
		return s.Status, ErrInvalidTransition
	}
	previous = s.Status
	s.Status = next
	return previous, nil
}

// AppendProgress records a progress event in emission order. The transcript
// is append-only within a session.
func (s *Session) AppendProgress(ev ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, ev)
}

// Transcript returns a defensive copy of the ordered progress events.
func (s *Session) Transcript() []ProgressEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ProgressEvent, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// TranscriptText concatenates the text-type progress events in emission
// order into one growing transcript string.
func (s *Session) TranscriptText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out string
	for _, ev := range s.transcript {
		if ev.Type == ProgressText {
			out += ev.Payload
		}
	}
	return out
}
