// Package native implements the transport bridge that drives the locally
// installed coding agent CLI as a long-running subprocess. Stdout is
// consumed line-by-line in the CLI's stream-json format and forwarded as
// ordered progress events; stderr lines become error events; process exit
// becomes the terminal complete event. Cancellation sends SIGTERM and the
// session is not considered over until the exit is observed.
package native

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/tidwall/gjson"

	"github.com/mindmapper/conductor/bridge"
	"github.com/mindmapper/conductor/core"
	"github.com/mindmapper/conductor/logging"
	"github.com/mindmapper/conductor/model"
)

// handsOffTools is the tool allowlist passed to the CLI when approval gates
// are suppressed.
const handsOffTools = "Bash,Read,Write,Edit,MultiEdit,Glob,Grep,LS,TodoRead,TodoWrite"

// Options configures the native bridge.
type Options struct {
	// Command is the agent CLI binary name or path. Defaults to "claude".
	Command string
	// EventBufferSize sets the stream channel buffer.
	EventBufferSize int
	// Logger receives bridge diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Bridge drives the agent CLI subprocess. Safe for concurrent use; at most
// one execution is in flight at a time.
type Bridge struct {
	command    string
	bufferSize int
	logger     logging.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	sessionID string
	status    bridge.Status
	cancelled bool
}

var _ bridge.Bridge = (*Bridge)(nil)

// New constructs a native bridge with optional overrides.
func New(optFns ...func(o *Options)) *Bridge {
	opts := Options{
		Command:         "claude",
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
		command:    opts.Command,
		bufferSize: opts.EventBufferSize,
		logger:     opts.Logger,
		status:     bridge.StatusIdle,
	}
}

// DetectAvailability probes the CLI with --version. A missing or failing
// binary yields {Available: false} with the failure reason; Execute must not
// be attempted in that case.
func (b *Bridge) DetectAvailability(ctx context.Context) (bridge.Availability, error) {
	out, err := exec.CommandContext(ctx, b.command, "--version").CombinedOutput()
	version := strings.TrimSpace(string(out))
	if err != nil {
		reason := version
		if reason == "" {
			reason = err.Error()
		}
		return bridge.Availability{Available: false, Reason: fmt.Sprintf("agent CLI not found: %s", reason)}, nil
	}
	return bridge.Availability{Available: true, Version: version}, nil
}

// Status reports the coarse bridge state.
func (b *Bridge) Status() bridge.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Execute spawns the agent CLI with the prompt and streams its output. The
// returned channel is closed only after the process exit has been observed,
// preventing a new execution from starting against a half-torn-down process.
func (b *Bridge) Execute(ctx context.Context, opts core.StartOptions) (bridge.ExecuteResult, <-chan bridge.Event, error) {
	b.mu.Lock()
	if b.status != bridge.StatusIdle {
		b.mu.Unlock()
		return bridge.ExecuteResult{}, nil, core.ErrAlreadyRunning
	}

	args := []string{"-p", opts.Prompt, "--output-format", "stream-json"}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.HandsOff {
		args = append(args, "--allowedTools", handsOffTools)
	}

	cmd := exec.Command(b.command, args...)
	cmd.Dir = opts.OutputDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		b.mu.Unlock()
		return bridge.ExecuteResult{}, nil, &core.SpawnError{Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		b.mu.Unlock()
		return bridge.ExecuteResult{}, nil, &core.SpawnError{Err: err}
	}

	if err := cmd.Start(); err != nil {
		b.mu.Unlock()
		return bridge.ExecuteResult{}, nil, &core.SpawnError{Err: err}
	}

	pid := cmd.Process.Pid
	sessionID := fmt.Sprintf("session_%d", pid)
	b.cmd = cmd
	b.sessionID = sessionID
	b.status = bridge.StatusRunning
	b.cancelled = false
	b.mu.Unlock()

	b.logger.Info("spawned agent process",
		"session_id", sessionID, "pid", pid,
		"prompt_chars", len(opts.Prompt), "dir", opts.OutputDir, "model", opts.Model)

	events := make(chan bridge.Event, b.bufferSize)
	events <- bridge.Event{
		Kind:      bridge.KindStarted,
		SessionID: sessionID,
		Started:   &core.StartedPayload{SessionID: sessionID, PID: pid},
	}

	go b.stream(sessionID, cmd, stdout, stderr, events)

	return bridge.ExecuteResult{SessionID: sessionID, PID: pid}, events, nil
}

// stream pumps stdout/stderr until both close, waits for process exit and
// emits the terminal complete event.
func (b *Bridge) stream(sessionID string, cmd *exec.Cmd, stdout, stderr io.Reader, events chan<- bridge.Event) {
	var wg sync.WaitGroup
	var result resultLine

	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			events <- b.classifyLine(sessionID, scanner.Text(), &result)
		}
		if err := scanner.Err(); err != nil {
			b.logger.Error("stdout read error", "session_id", sessionID, "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			events <- bridge.Event{
				Kind:      bridge.KindError,
				SessionID: sessionID,
				Error:     &core.ErrorPayload{SessionID: sessionID, Message: scanner.Text()},
			}
		}
		if err := scanner.Err(); err != nil {
			b.logger.Error("stderr read error", "session_id", sessionID, "error", err)
		}
	}()
	wg.Wait()

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		exitCode = -1
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
	}

	b.mu.Lock()
	cancelled := b.cancelled
	b.cmd = nil
	b.status = bridge.StatusIdle
	b.mu.Unlock()

	info := &bridge.CompleteInfo{
		ExitCode:  exitCode,
		Success:   exitCode == 0 && !cancelled,
		Cancelled: cancelled,
		Model:     result.Model,
		CostUSD:   result.CostUSD,
	}
	if result.Usage != nil {
		info.Usage = result.Usage
	}
	events <- bridge.Event{Kind: bridge.KindComplete, SessionID: sessionID, Complete: info}
	close(events)

	b.logger.Info("agent process finished", "session_id", sessionID, "exit_code", exitCode, "cancelled", cancelled)
}

// resultLine accumulates cost accounting parsed from the CLI's terminal
// result record.
type resultLine struct {
	Model   string
	CostUSD float64
	Usage   *model.TokenUsage
}

// classifyLine turns one stdout line into a bridge event. Valid JSON lines
// become json-typed progress events; a tool_use_permission payload is
// surfaced as an approval signal instead; anything else is raw text.
func (b *Bridge) classifyLine(sessionID, line string, result *resultLine) bridge.Event {
	if !gjson.Valid(line) {
		return bridge.Event{
			Kind:      bridge.KindProgress,
			SessionID: sessionID,
			Progress:  &core.ProgressEvent{SessionID: sessionID, Type: core.ProgressText, Payload: line},
		}
	}

	parsed := gjson.Parse(line)
	switch parsed.Get("type").String() {
	case "tool_use_permission":
		input := map[string]any{}
		if raw := parsed.Get("input").Raw; raw != "" {
			_ = json.Unmarshal([]byte(raw), &input)
		}
		return bridge.Event{
			Kind:      bridge.KindApproval,
			SessionID: sessionID,
			Approval: &core.ApprovalPayload{
				SessionID: sessionID,
				Tool:      parsed.Get("tool").String(),
				Input:     input,
			},
		}
	case "result":
		result.Model = parsed.Get("model").String()
		result.CostUSD = parsed.Get("total_cost_usd").Float()
		if usage := parsed.Get("usage"); usage.Exists() {
			in := int(usage.Get("input_tokens").Int())
			out := int(usage.Get("output_tokens").Int())
			result.Usage = &model.TokenUsage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}
		}
	}

	data := map[string]any{}
	_ = json.Unmarshal([]byte(line), &data)
	return bridge.Event{
		Kind:      bridge.KindProgress,
		SessionID: sessionID,
		Progress:  &core.ProgressEvent{SessionID: sessionID, Type: core.ProgressJSON, Data: data},
	}
}

// Cancel sends SIGTERM to the running process. The bridge stays in
// cancelling state until the exit is observed by the stream goroutine.
func (b *Bridge) Cancel(_ context.Context) (bridge.CancelResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cmd == nil || b.cmd.Process == nil {
		return bridge.CancelResult{Cancelled: false, Reason: "no active agent process"}, nil
	}

	b.logger.Info("cancelling agent process", "session_id", b.sessionID, "pid", b.cmd.Process.Pid)
	if err := b.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return bridge.CancelResult{Cancelled: false, Reason: err.Error()}, fmt.Errorf("signal agent process: %w", err)
	}
	b.cancelled = true
	b.status = bridge.StatusCancelling
	return bridge.CancelResult{Cancelled: true}, nil
}
