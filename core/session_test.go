package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())

	assert.False(t, StatusIdle.IsTerminal())
	assert.False(t, StatusInitializing.IsTerminal())
	assert.False(t, StatusExecuting.IsTerminal())
	assert.False(t, StatusMonitoring.IsTerminal())
	assert.False(t, StatusPaused.IsTerminal())
}

func TestSession_Transition_LegalEdges(t *testing.T) {
	s := NewSession("s-1")

	prev, err := s.Transition(StatusInitializing)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, prev)

	_, err = s.Transition(StatusExecuting)
	require.NoError(t, err)
	_, err = s.Transition(StatusMonitoring)
	require.NoError(t, err)
	_, err = s.Transition(StatusPaused)
	require.NoError(t, err)
	_, err = s.Transition(StatusMonitoring)
	require.NoError(t, err)
	_, err = s.Transition(StatusCompleted)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, s.CurrentStatus())
}

func TestSession_Transition_IllegalEdgeRejected(t *testing.T) {
	s := NewSession("s-1")

	// Pausing an idle session is not a legal edge.
	prev, err := s.Transition(StatusPaused)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusIdle, prev)
	assert.Equal(t, StatusIdle, s.CurrentStatus())

	// Terminal states only lead back to idle.
	_, err = s.Transition(StatusInitializing)
	require.NoError(t, err)
	_, err = s.Transition(StatusFailed)
	require.NoError(t, err)
	_, err = s.Transition(StatusExecuting)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSession_TranscriptText_ConcatenatesInOrder(t *testing.T) {
	s := NewSession("s-1")
	s.AppendProgress(ProgressEvent{SessionID: "s-1", Type: ProgressText, Payload: "hello "})
	s.AppendProgress(ProgressEvent{SessionID: "s-1", Type: ProgressJSON, Data: map[string]any{"tool": "Read"}})
	s.AppendProgress(ProgressEvent{SessionID: "s-1", Type: ProgressText, Payload: "world"})

	assert.Equal(t, "hello world", s.TranscriptText())
	assert.Len(t, s.Transcript(), 3)
}
