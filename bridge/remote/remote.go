// Package remote implements the transport bridge that executes an agent
// turn as one in-flight streaming call to an LLM provider. Response chunks
// are forwarded as text progress events; cancellation aborts the request.
// There is no process to reap: completion is signaled purely by stream end
// or abort.
package remote

import (
	"context"
	"errors"
	"sync"

	"github.com/mindmapper/conductor/bridge"
	"github.com/mindmapper/conductor/core"
	"github.com/mindmapper/conductor/internal/util"
	"github.com/mindmapper/conductor/logging"
	"github.com/mindmapper/conductor/model"
)

// Options configures the remote bridge.
type Options struct {
	// System is an optional system prompt prepended to every turn.
	System string
	// EventBufferSize sets the stream channel buffer.
	EventBufferSize int
	// Logger receives bridge diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Bridge executes one streaming provider call per session.
type Bridge struct {
	mdl        model.Model
	system     string
	bufferSize int
	logger     logging.Logger

	mu        sync.Mutex
	status    bridge.Status
	sessionID string
	abort     context.CancelFunc
}

var _ bridge.Bridge = (*Bridge)(nil)

// New constructs a remote bridge around a provider model.
func New(mdl model.Model, optFns ...func(o *Options)) *Bridge {
	opts := Options{
		EventBufferSize: 100,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.EventBufferSize < 1 {
		// The started event is buffered before Execute returns; an unbuffered
		// channel would deadlock.
		opts.EventBufferSize = 1
	}
	return &Bridge{
		mdl:        mdl,
		system:     opts.System,
		bufferSize: opts.EventBufferSize,
		logger:     opts.Logger,
		status:     bridge.StatusIdle,
	}
}

// DetectAvailability reports whether a provider model is configured. The
// remote transport has no local footprint to probe.
func (b *Bridge) DetectAvailability(_ context.Context) (bridge.Availability, error) {
	if b.mdl == nil {
		return bridge.Availability{Available: false, Reason: "no provider model configured"}, nil
	}
	info := b.mdl.Info()
	return bridge.Availability{Available: true, Version: info.Provider + "/" + info.Name}, nil
}

// Status reports the coarse bridge state.
func (b *Bridge) Status() bridge.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Execute issues one streaming provider call. The event stream closes when
// the provider stream ends or the call is aborted.
func (b *Bridge) Execute(ctx context.Context, opts core.StartOptions) (bridge.ExecuteResult, <-chan bridge.Event, error) {
	b.mu.Lock()
	if b.status != bridge.StatusIdle {
		b.mu.Unlock()
		return bridge.ExecuteResult{}, nil, core.ErrAlreadyRunning
	}
	if b.mdl == nil {
		b.mu.Unlock()
		return bridge.ExecuteResult{}, nil, &core.NetworkError{Err: errors.New("no provider model configured")}
	}

	sessionID := util.NewID()
	callCtx, abort := context.WithCancel(context.WithoutCancel(ctx))
	b.sessionID = sessionID
	b.abort = abort
	b.status = bridge.StatusRunning
	b.mu.Unlock()

	events := make(chan bridge.Event, b.bufferSize)
	events <- bridge.Event{
		Kind:      bridge.KindStarted,
		SessionID: sessionID,
		Started:   &core.StartedPayload{SessionID: sessionID},
	}

	respCh, errCh := b.mdl.Generate(callCtx, model.Request{
		System: b.system,
		Prompt: opts.Prompt,
		Stream: true,
	})

	go b.pump(sessionID, respCh, errCh, events)

	b.logger.Info("remote turn started", "session_id", sessionID, "provider", b.mdl.Info().Provider)
	return bridge.ExecuteResult{SessionID: sessionID}, events, nil
}

// pump forwards provider chunks until the streams close, then emits the
// terminal complete event.
func (b *Bridge) pump(sessionID string, respCh <-chan model.Response, errCh <-chan error, events chan<- bridge.Event) {
	var usage *model.TokenUsage
	var failure error
	modelName := b.mdl.Info().Name

	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Usage != nil {
				usage = resp.Usage
			}
			if resp.Partial && resp.Text != "" {
				events <- bridge.Event{
					Kind:      bridge.KindProgress,
					SessionID: sessionID,
					Progress:  &core.ProgressEvent{SessionID: sessionID, Type: core.ProgressText, Payload: resp.Text},
				}
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				failure = err
			}
		}
	}

	b.mu.Lock()
	cancelled := b.status == bridge.StatusCancelling
	b.abort = nil
	b.status = bridge.StatusIdle
	b.mu.Unlock()

	if failure != nil && !cancelled {
		events <- bridge.Event{
			Kind:      bridge.KindError,
			SessionID: sessionID,
			Error:     &core.ErrorPayload{SessionID: sessionID, Message: failure.Error()},
		}
	}

	info := &bridge.CompleteInfo{
		Success:   failure == nil && !cancelled,
		Cancelled: cancelled,
		Model:     modelName,
		Usage:     usage,
	}
	if !info.Success {
		info.ExitCode = -1
	}
	events <- bridge.Event{Kind: bridge.KindComplete, SessionID: sessionID, Complete: info}
	close(events)
}

// Cancel aborts the in-flight provider call.
func (b *Bridge) Cancel(_ context.Context) (bridge.CancelResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.abort == nil {
		return bridge.CancelResult{Cancelled: false, Reason: "no in-flight request"}, nil
	}
	b.logger.Info("aborting remote turn", "session_id", b.sessionID)
	b.status = bridge.StatusCancelling
	b.abort()
	return bridge.CancelResult{Cancelled: true}, nil
}
