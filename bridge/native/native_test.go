package native

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindmapper/conductor/bridge"
	"github.com/mindmapper/conductor/core"
)

// writeFakeCLI installs a shell script standing in for the agent CLI.
func writeFakeCLI(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake CLI scripts require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-agent")
	script := "#!/bin/sh\nif [ \"$1\" = \"--version\" ]; then echo \"fake-agent 1.0.0\"; exit 0; fi\n" + body
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func collect(t *testing.T, events <-chan bridge.Event) []bridge.Event {
	t.Helper()
	var out []bridge.Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out draining bridge events")
		}
	}
}

func TestDetectAvailability(t *testing.T) {
	b := New(func(o *Options) { o.Command = writeFakeCLI(t, "exit 0\n") })

	avail, err := b.DetectAvailability(context.Background())
	require.NoError(t, err)
	assert.True(t, avail.Available)
	assert.Equal(t, "fake-agent 1.0.0", avail.Version)
}

func TestDetectAvailability_MissingBinary(t *testing.T) {
	b := New(func(o *Options) { o.Command = "/nonexistent/agent-cli" })

	avail, err := b.DetectAvailability(context.Background())
	require.NoError(t, err)
	assert.False(t, avail.Available)
	assert.Contains(t, avail.Reason, "not found")
}

func TestExecute_StreamsClassifiedEvents(t *testing.T) {
	cli := writeFakeCLI(t, `
echo '{"type":"assistant","text":"working"}'
echo 'raw progress line'
echo '{"type":"tool_use_permission","tool":"Bash","input":{"command":"ls"}}'
echo '{"type":"result","model":"claude-sonnet","total_cost_usd":0.12,"usage":{"input_tokens":10,"output_tokens":5}}'
exit 0
`)
	b := New(func(o *Options) { o.Command = cli })

	res, events, err := b.Execute(context.Background(), core.StartOptions{Prompt: "build it"})
	require.NoError(t, err)
	assert.NotZero(t, res.PID)
	assert.Contains(t, res.SessionID, "session_")

	got := collect(t, events)
	require.NotEmpty(t, got)

	assert.Equal(t, bridge.KindStarted, got[0].Kind)
	assert.Equal(t, res.PID, got[0].Started.PID)

	last := got[len(got)-1]
	require.Equal(t, bridge.KindComplete, last.Kind)
	assert.True(t, last.Complete.Success)
	assert.Equal(t, 0, last.Complete.ExitCode)
	assert.Equal(t, "claude-sonnet", last.Complete.Model)
	assert.InDelta(t, 0.12, last.Complete.CostUSD, 1e-9)
	require.NotNil(t, last.Complete.Usage)
	assert.Equal(t, 15, last.Complete.Usage.TotalTokens)

	var kinds []bridge.EventKind
	var textPayloads []string
	for _, ev := range got[1 : len(got)-1] {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == bridge.KindProgress && ev.Progress.Type == core.ProgressText {
			textPayloads = append(textPayloads, ev.Progress.Payload)
		}
	}
	assert.Contains(t, kinds, bridge.KindApproval)
	assert.Contains(t, textPayloads, "raw progress line")

	// The bridge is reusable once the stream closed.
	assert.Equal(t, bridge.StatusIdle, b.Status())
}

func TestExecute_StderrBecomesErrorEvents(t *testing.T) {
	cli := writeFakeCLI(t, "echo 'something broke' >&2\nexit 1\n")
	b := New(func(o *Options) { o.Command = cli })

	_, events, err := b.Execute(context.Background(), core.StartOptions{Prompt: "p"})
	require.NoError(t, err)

	got := collect(t, events)
	last := got[len(got)-1]
	require.Equal(t, bridge.KindComplete, last.Kind)
	assert.False(t, last.Complete.Success)
	assert.Equal(t, 1, last.Complete.ExitCode)

	var sawError bool
	for _, ev := range got {
		if ev.Kind == bridge.KindError {
			sawError = true
			assert.Equal(t, "something broke", ev.Error.Message)
		}
	}
	assert.True(t, sawError)
}

func TestExecute_SpawnFailure(t *testing.T) {
	b := New(func(o *Options) { o.Command = "/nonexistent/agent-cli" })

	_, _, err := b.Execute(context.Background(), core.StartOptions{Prompt: "p"})
	var spawnErr *core.SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, bridge.StatusIdle, b.Status())
}

func TestExecute_RejectsConcurrentRuns(t *testing.T) {
	cli := writeFakeCLI(t, "sleep 5\n")
	b := New(func(o *Options) { o.Command = cli })

	_, events, err := b.Execute(context.Background(), core.StartOptions{Prompt: "p"})
	require.NoError(t, err)

	_, _, err = b.Execute(context.Background(), core.StartOptions{Prompt: "q"})
	assert.ErrorIs(t, err, core.ErrAlreadyRunning)

	_, err = b.Cancel(context.Background())
	require.NoError(t, err)
	collect(t, events)
}

func TestCancel_TerminatesProcess(t *testing.T) {
	cli := writeFakeCLI(t, "sleep 30\n")
	b := New(func(o *Options) { o.Command = cli })

	_, events, err := b.Execute(context.Background(), core.StartOptions{Prompt: "p"})
	require.NoError(t, err)

	res, err := b.Cancel(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Cancelled)

	got := collect(t, events)
	last := got[len(got)-1]
	require.Equal(t, bridge.KindComplete, last.Kind)
	assert.True(t, last.Complete.Cancelled)
	assert.False(t, last.Complete.Success)
}

func TestCancel_NothingRunning(t *testing.T) {
	b := New()

	res, err := b.Cancel(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Cancelled)
	assert.Equal(t, "no active agent process", res.Reason)
}

func TestExecute_ZeroBufferOptionDoesNotBlock(t *testing.T) {
	cli := writeFakeCLI(t, "echo progress line\nexit 0\n")
	b := New(func(o *Options) {
		o.Command = cli
		o.EventBufferSize = 0
	})

	returned := make(chan struct{})
	var events <-chan bridge.Event
	go func() {
		var err error
		_, events, err = b.Execute(context.Background(), core.StartOptions{Prompt: "go"})
		require.NoError(t, err)
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("Execute blocked with a zero event buffer")
	}

	got := collect(t, events)
	require.NotEmpty(t, got)
	assert.Equal(t, bridge.KindStarted, got[0].Kind)
	assert.Equal(t, bridge.KindComplete, got[len(got)-1].Kind)
}
