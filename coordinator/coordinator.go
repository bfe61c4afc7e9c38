// Package coordinator turns a project context into an executed plan. It
// requests a plan from the planner, falls back to the deterministic local
// plan on planner failure, and walks the plan's phases and milestones in
// strict sequential order, tracking per-agent state and holding at approval
// gates when hands-off mode is disabled.
package coordinator

import (
	"context"
	"errors"
	"sync"

	"github.com/mindmapper/conductor/bus"
	"github.com/mindmapper/conductor/core"
	"github.com/mindmapper/conductor/internal/util"
	"github.com/mindmapper/conductor/logging"
	"github.com/mindmapper/conductor/planner"
	"github.com/mindmapper/conductor/registry"
)

// TaskRunner executes one delegated task. The default runner completes
// immediately; the façade injects a runner that relays the task through the
// active bridge session.
type TaskRunner func(ctx context.Context, task core.Task) error

// Options configures a Coordinator.
type Options struct {
	// Logger receives coordinator diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
	// Runner executes individual tasks. Defaults to an immediate no-op
	// success.
	Runner TaskRunner
	// RequiresApproval marks tasks that must hold for external confirmation
	// when hands-off mode is off. Defaults to tasks assigned to a human or
	// carrying critical priority.
	RequiresApproval func(task core.Task) bool
}

// StartInput is the input of one coordinated session.
type StartInput struct {
	Context  core.ProjectContext
	HandsOff bool
	Meta     planner.Meta
}

// Result reports the outcome of a coordinated session. The session always
// carries a valid plan: planner failures are absorbed by the local fallback.
type Result struct {
	Plan         *core.Plan
	UsedFallback bool
	Completed    []core.Task
	Failed       []core.Task
	Dropped      []core.Task
}

// Coordinator sequences plan execution over the agent roster.
type Coordinator struct {
	planner          *planner.Planner
	registry         *registry.Registry
	bus              *bus.Bus
	logger           logging.Logger
	runner           TaskRunner
	requiresApproval func(task core.Task) bool

	mu      sync.Mutex
	states  map[string]registry.AgentState
	resume  chan struct{}
	holding bool
	runID   string

	sub *bus.Subscription
}

// New constructs a Coordinator. The coordinator holds references to the
// planner, the roster and the bus only; it never holds a controller
// back-reference.
func New(p *planner.Planner, reg *registry.Registry, eventBus *bus.Bus, optFns ...func(o *Options)) *Coordinator {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	c := &Coordinator{
		planner:          p,
		registry:         reg,
		bus:              eventBus,
		logger:           opts.Logger,
		runner:           opts.Runner,
		requiresApproval: opts.RequiresApproval,
		states:           make(map[string]registry.AgentState),
		resume:           make(chan struct{}, 1),
	}
	if c.runner == nil {
		c.runner = func(context.Context, core.Task) error { return nil }
	}
	if c.requiresApproval == nil {
		c.requiresApproval = c.defaultApprovalRule
	}
	for _, role := range reg.GetAll() {
		c.states[role.ID] = registry.StateIdle
	}

	c.sub = eventBus.Subscribe(bus.TopicResumeRequest, func(any) { c.Resume() })
	return c
}

// Close releases the coordinator's bus subscription.
func (c *Coordinator) Close() {
	c.sub.Unsubscribe()
}

// defaultApprovalRule holds tasks delegated to a human and critical work.
func (c *Coordinator) defaultApprovalRule(task core.Task) bool {
	if role, ok := c.registry.Lookup(task.AssignedTo); ok && role.IsHuman {
		return true
	}
	return task.Priority == core.PriorityCritical
}

// StartSession plans and executes one session. A planner ParseError or
// transport failure never fails the session: the deterministic local plan
// substitutes and execution continues. Only context cancellation aborts.
func (c *Coordinator) StartSession(ctx context.Context, input StartInput) (*Result, error) {
	c.mu.Lock()
	c.runID = util.NewID()
	c.mu.Unlock()

	plan, usedFallback, err := c.resolvePlan(ctx, input)
	if err != nil {
		return nil, err
	}

	result := &Result{Plan: plan, UsedFallback: usedFallback}
	if err := c.walk(ctx, plan, input.HandsOff, result); err != nil {
		return result, err
	}
	return result, nil
}

// resolvePlan obtains the plan, substituting the local fallback on any
// recoverable planner failure.
func (c *Coordinator) resolvePlan(ctx context.Context, input StartInput) (*core.Plan, bool, error) {
	plan, err := c.planner.Execute(ctx, input.Context)
	if err == nil {
		return plan, false, nil
	}
	if ctx.Err() != nil {
		return nil, false, core.ErrCancelled
	}

	var parseErr *core.ParseError
	var netErr *core.NetworkError
	var spawnErr *core.SpawnError
	if errors.As(err, &parseErr) || errors.As(err, &netErr) || errors.As(err, &spawnErr) {
		c.logger.Warn("planner turn failed, substituting local plan", "error", err)
		return c.planner.CreateLocalPlan(input.Context, input.Meta), true, nil
	}
	return nil, false, err
}

// walk executes the plan strictly sequentially: phases in order, milestones
// in order, one task at a time. Unknown assignees are dropped with a
// warning; task failures mark the agent errored and execution continues.
func (c *Coordinator) walk(ctx context.Context, plan *core.Plan, handsOff bool, result *Result) error {
	for _, phase := range plan.Phases {
		c.logger.Info("phase started", "phase", phase.Name, "tier", string(phase.RoutingTier))
		for _, milestone := range phase.Milestones {
			for _, task := range milestone.Tasks {
				if err := ctx.Err(); err != nil {
					return core.ErrCancelled
				}
				if err := c.registry.Validate(task); err != nil {
					c.logger.Warn("task dropped", "task", task.Title, "assigned_to", task.AssignedTo, "error", err)
					result.Dropped = append(result.Dropped, task)
					continue
				}
				if err := c.runTask(ctx, task, handsOff); err != nil {
					if errors.Is(err, core.ErrCancelled) {
						return err
					}
					result.Failed = append(result.Failed, task)
					continue
				}
				result.Completed = append(result.Completed, task)
			}
		}
	}
	return nil
}

// runTask drives one task through thinking → responding → done/error,
// holding at the approval gate first when required.
func (c *Coordinator) runTask(ctx context.Context, task core.Task, handsOff bool) error {
	c.setState(task.AssignedTo, registry.StateThinking, task)

	if !handsOff && c.requiresApproval(task) {
		c.mu.Lock()
		// A resume that arrived while no gate was pending must not release
		// this one. The gate is armed before the approval event goes out so
		// a handler answering synchronously is still accepted.
		select {
		case <-c.resume:
		default:
		}
		c.holding = true
		c.mu.Unlock()

		c.bus.Publish(bus.TopicApprovalNeeded, core.ApprovalPayload{
			Tool: "delegate",
			Input: map[string]any{
				"task":  task.Title,
				"agent": task.AssignedTo,
			},
		})
		c.logger.Info("holding for approval", "task", task.Title, "agent", task.AssignedTo)

		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.holding = false
			c.mu.Unlock()
			c.setState(task.AssignedTo, registry.StateIdle, task)
			return core.ErrCancelled
		case <-c.resume:
		}
		c.mu.Lock()
		c.holding = false
		c.mu.Unlock()
	}

	c.setState(task.AssignedTo, registry.StateResponding, task)

	if err := c.runner(ctx, task); err != nil {
		if ctx.Err() != nil {
			c.setState(task.AssignedTo, registry.StateIdle, task)
			return core.ErrCancelled
		}
		c.logger.Error("task failed", "task", task.Title, "agent", task.AssignedTo, "error", err)
		c.setState(task.AssignedTo, registry.StateError, task)
		return err
	}

	c.setState(task.AssignedTo, registry.StateDone, task)
	return nil
}

// Resume releases the coordinator from an approval hold. A signal arriving
// while no gate is pending is dropped; every hold requires its own answer.
func (c *Coordinator) Resume() {
	c.mu.Lock()
	holding := c.holding
	c.mu.Unlock()
	if !holding {
		return
	}
	select {
	case c.resume <- struct{}{}:
	default:
	}
}

// AgentStates returns a snapshot of the per-agent execution states.
func (c *Coordinator) AgentStates() map[string]registry.AgentState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]registry.AgentState, len(c.states))
	for id, st := range c.states {
		out[id] = st
	}
	return out
}

// setState records an agent state change and mirrors it onto the progress
// stream as a structured event so observers can render the roster. Events
// carry the run id so they correlate like bridge-pumped progress.
func (c *Coordinator) setState(agentID string, state registry.AgentState, task core.Task) {
	c.mu.Lock()
	c.states[agentID] = state
	runID := c.runID
	c.mu.Unlock()

	c.bus.Publish(bus.TopicSessionProgress, core.ProgressEvent{
		SessionID: runID,
		Type:      core.ProgressJSON,
		Data: map[string]any{
			"kind":  "agent-state",
			"agent": agentID,
			"state": string(state),
			"task":  task.Title,
		},
	})
}
