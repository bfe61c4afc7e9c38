package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindmapper/conductor/bridge/remote"
	"github.com/mindmapper/conductor/bus"
	"github.com/mindmapper/conductor/core"
	"github.com/mindmapper/conductor/model"
	"github.com/mindmapper/conductor/planner"
	"github.com/mindmapper/conductor/registry"
)

const planJSON = `{
  "phases": [
    {
      "name": "Setup",
      "routingTier": "cheap",
      "milestones": [
        {"tasks": [
          {"title": "Scaffold", "assignedTo": "devops", "tier": "cheap", "priority": "high", "phase": "Setup"},
          {"title": "Design API", "assignedTo": "architect", "tier": "high", "priority": "high", "phase": "Setup"},
          {"title": "Ghost task", "assignedTo": "intern", "tier": "cheap", "priority": "low", "phase": "Setup"}
        ]}
      ]
    }
  ],
  "estimatedRounds": 1,
  "summary": "three tasks, one unknown assignee"
}`

func plannerWithReply(t *testing.T, reply string) *planner.Planner {
	t.Helper()
	mdl := model.NewMockModel("planner-model", "mock")
	mdl.SetDefault(reply)
	return planner.New(remote.New(mdl), registry.New())
}

func failingPlanner(t *testing.T) *planner.Planner {
	t.Helper()
	mdl := model.NewMockModel("planner-model", "mock")
	mdl.FailWith(errors.New("connection reset"))
	return planner.New(remote.New(mdl), registry.New())
}

func sampleContext() core.ProjectContext {
	return core.ProjectContext{
		ProjectName: "Task Tracker",
		Stack:       []string{"Go"},
		Features: []core.ContextItem{
			{Text: "Authentication", Priority: core.PriorityCritical},
			{Text: "Dashboard", Priority: core.PriorityHigh},
		},
	}
}

func TestStartSession_WalksPlanAndDropsUnknownAssignees(t *testing.T) {
	var mu sync.Mutex
	var ran []string
	runner := func(_ context.Context, task core.Task) error {
		mu.Lock()
		ran = append(ran, task.Title)
		mu.Unlock()
		return nil
	}

	c := New(plannerWithReply(t, planJSON), registry.New(), bus.New(), func(o *Options) {
		o.Runner = runner
	})
	defer c.Close()

	result, err := c.StartSession(context.Background(), StartInput{
		Context:  sampleContext(),
		HandsOff: true,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Plan)
	assert.False(t, result.UsedFallback)

	mu.Lock()
	gotRan := append([]string(nil), ran...)
	mu.Unlock()
	assert.Equal(t, []string{"Scaffold", "Design API"}, gotRan)

	require.Len(t, result.Dropped, 1)
	assert.Equal(t, "Ghost task", result.Dropped[0].Title)
	assert.Len(t, result.Completed, 2)

	states := c.AgentStates()
	assert.Equal(t, registry.StateDone, states["devops"])
	assert.Equal(t, registry.StateDone, states["architect"])
	assert.Equal(t, registry.StateIdle, states["backend"])
}

func TestStartSession_ParseErrorFallsBackToLocalPlan(t *testing.T) {
	c := New(plannerWithReply(t, "no JSON here, sorry"), registry.New(), bus.New())
	defer c.Close()

	result, err := c.StartSession(context.Background(), StartInput{
		Context:  sampleContext(),
		HandsOff: true,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Plan)
	assert.True(t, result.UsedFallback)
	assert.NotEmpty(t, result.Plan.Phases)
	assert.Equal(t, "Setup", result.Plan.Phases[0].Name)

	// Every fallback assignment resolves against the roster; nothing drops.
	assert.Empty(t, result.Dropped)
}

func TestStartSession_TransportFailureFallsBackToLocalPlan(t *testing.T) {
	c := New(failingPlanner(t), registry.New(), bus.New())
	defer c.Close()

	result, err := c.StartSession(context.Background(), StartInput{
		Context:  sampleContext(),
		HandsOff: true,
	})
	require.NoError(t, err)
	assert.True(t, result.UsedFallback)
	assert.Greater(t, result.Plan.TaskCount(), 0)
}

func TestStartSession_TaskFailureMarksAgentErrored(t *testing.T) {
	runner := func(_ context.Context, task core.Task) error {
		if task.Title == "Design API" {
			return errors.New("agent turn failed")
		}
		return nil
	}

	c := New(plannerWithReply(t, planJSON), registry.New(), bus.New(), func(o *Options) {
		o.Runner = runner
	})
	defer c.Close()

	result, err := c.StartSession(context.Background(), StartInput{
		Context:  sampleContext(),
		HandsOff: true,
	})
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "Design API", result.Failed[0].Title)
	assert.Len(t, result.Completed, 1)

	states := c.AgentStates()
	assert.Equal(t, registry.StateError, states["architect"])
	assert.Equal(t, registry.StateDone, states["devops"])
}

func TestStartSession_ApprovalGateHoldsUntilResume(t *testing.T) {
	eventBus := bus.New()
	var mu sync.Mutex
	var approvals []core.ApprovalPayload
	eventBus.Subscribe(bus.TopicApprovalNeeded, func(p any) {
		mu.Lock()
		approvals = append(approvals, p.(core.ApprovalPayload))
		mu.Unlock()
	})

	c := New(plannerWithReply(t, planJSON), registry.New(), eventBus, func(o *Options) {
		o.RequiresApproval = func(task core.Task) bool { return task.Title == "Design API" }
	})
	defer c.Close()

	done := make(chan *Result, 1)
	go func() {
		result, err := c.StartSession(context.Background(), StartInput{
			Context:  sampleContext(),
			HandsOff: false,
		})
		require.NoError(t, err)
		done <- result
	}()

	// The walk must hold at the gated task until the resume signal.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(approvals) == 1
	}, 2*time.Second, 5*time.Millisecond)

	select {
	case <-done:
		t.Fatal("session finished while holding for approval")
	case <-time.After(50 * time.Millisecond):
	}

	// External resume arrives over the control topic.
	eventBus.Publish(bus.TopicResumeRequest, nil)

	select {
	case result := <-done:
		assert.Len(t, result.Completed, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish after resume")
	}

	mu.Lock()
	assert.Equal(t, "delegate", approvals[0].Tool)
	assert.Equal(t, "Design API", approvals[0].Input["task"])
	mu.Unlock()
}

func TestStartSession_HandsOffBypassesApproval(t *testing.T) {
	eventBus := bus.New()
	var approvals int
	eventBus.Subscribe(bus.TopicApprovalNeeded, func(any) { approvals++ })

	c := New(plannerWithReply(t, planJSON), registry.New(), eventBus, func(o *Options) {
		o.RequiresApproval = func(core.Task) bool { return true }
	})
	defer c.Close()

	result, err := c.StartSession(context.Background(), StartInput{
		Context:  sampleContext(),
		HandsOff: true,
	})
	require.NoError(t, err)
	assert.Zero(t, approvals)
	assert.Len(t, result.Completed, 2)
}

func TestStartSession_CancelDuringHoldReturnsCancelled(t *testing.T) {
	c := New(plannerWithReply(t, planJSON), registry.New(), bus.New(), func(o *Options) {
		o.RequiresApproval = func(core.Task) bool { return true }
	})
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.StartSession(ctx, StartInput{Context: sampleContext(), HandsOff: false})
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, core.ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation did not unblock the hold")
	}
}

func TestDefaultApprovalRule(t *testing.T) {
	c := New(plannerWithReply(t, planJSON), registry.New(), bus.New())
	defer c.Close()

	assert.True(t, c.requiresApproval(core.Task{Title: "Review", AssignedTo: "ceo", Priority: core.PriorityLow}))
	assert.True(t, c.requiresApproval(core.Task{Title: "Auth", AssignedTo: "backend", Priority: core.PriorityCritical}))
	assert.False(t, c.requiresApproval(core.Task{Title: "Polish", AssignedTo: "frontend", Priority: core.PriorityLow}))
}

func TestStartSession_StaleResumeDoesNotPreReleaseGate(t *testing.T) {
	eventBus := bus.New()
	var mu sync.Mutex
	var approvals int
	eventBus.Subscribe(bus.TopicApprovalNeeded, func(any) {
		mu.Lock()
		approvals++
		mu.Unlock()
	})

	c := New(plannerWithReply(t, planJSON), registry.New(), eventBus, func(o *Options) {
		o.RequiresApproval = func(task core.Task) bool { return task.Title == "Design API" }
	})
	defer c.Close()

	// A resume arriving while no gate is pending must be dropped, not
	// queued against the next hold.
	eventBus.Publish(bus.TopicResumeRequest, nil)
	c.Resume()

	done := make(chan *Result, 1)
	go func() {
		result, err := c.StartSession(context.Background(), StartInput{
			Context:  sampleContext(),
			HandsOff: false,
		})
		require.NoError(t, err)
		done <- result
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return approvals == 1
	}, 2*time.Second, 5*time.Millisecond)

	select {
	case <-done:
		t.Fatal("gate released without an approval answer")
	case <-time.After(100 * time.Millisecond):
	}

	eventBus.Publish(bus.TopicResumeRequest, nil)

	select {
	case result := <-done:
		assert.Len(t, result.Completed, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish after the real resume")
	}
}

func TestStartSession_AgentStateEventsCarryRunID(t *testing.T) {
	eventBus := bus.New()
	var mu sync.Mutex
	var ids []string
	eventBus.Subscribe(bus.TopicSessionProgress, func(p any) {
		if ev, ok := p.(core.ProgressEvent); ok && ev.Type == core.ProgressJSON {
			mu.Lock()
			ids = append(ids, ev.SessionID)
			mu.Unlock()
		}
	})

	c := New(plannerWithReply(t, planJSON), registry.New(), eventBus)
	defer c.Close()

	_, err := c.StartSession(context.Background(), StartInput{
		Context:  sampleContext(),
		HandsOff: true,
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, ids)
	for _, id := range ids {
		assert.NotEmpty(t, id)
		assert.Equal(t, ids[0], id)
	}
}
