// Package planner produces the execution Plan driving a session: either by
// delegating one planning turn through the transport bridge and parsing the
// model's JSON output, or by a deterministic local heuristic with no network
// dependency. Planner output is treated as untrusted; any shape violation is
// a ParseError, never silently accepted.
package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mindmapper/conductor/bridge"
	"github.com/mindmapper/conductor/contextmgr"
	"github.com/mindmapper/conductor/core"
	"github.com/mindmapper/conductor/logging"
	"github.com/mindmapper/conductor/registry"
)

// DefaultTurnTimeout bounds one planning turn before the caller falls back
// to the local plan. There is no automatic retry; the fallback is the retry
// path.
const DefaultTurnTimeout = 120 * time.Second

// Options configures a Planner.
type Options struct {
	// TurnTimeout bounds the bridge planning turn.
	TurnTimeout time.Duration
	// Logger receives planner diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Planner issues planning turns and builds fallback plans.
type Planner struct {
	bridge   bridge.Bridge
	registry *registry.Registry
	timeout  time.Duration
	logger   logging.Logger
}

// New constructs a Planner bound to a transport bridge and the agent roster.
func New(b bridge.Bridge, reg *registry.Registry, optFns ...func(o *Options)) *Planner {
	opts := Options{
		TurnTimeout: DefaultTurnTimeout,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Planner{bridge: b, registry: reg, timeout: opts.TurnTimeout, logger: opts.Logger}
}

// Execute issues one planning turn through the bridge with the serialized
// project context and parses the response into a Plan. Transport failures
// surface as SpawnError/NetworkError; malformed output surfaces as
// ParseError. The caller decides whether to fall back.
func (p *Planner) Execute(ctx context.Context, project core.ProjectContext) (*core.Plan, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	prompt := p.buildPlanningPrompt(contextmgr.Serialize(project))
	_, events, err := p.bridge.Execute(ctx, core.StartOptions{Prompt: prompt})
	if err != nil {
		return nil, err
	}

	output, err := p.drain(ctx, events)
	if err != nil {
		return nil, err
	}

	raw := extractJSON(output)
	if raw == "" {
		return nil, &core.ParseError{Reason: "no JSON object in planner output"}
	}
	plan, err := core.DecodePlan([]byte(raw))
	if err != nil {
		return nil, err
	}
	p.logger.Info("planner turn produced plan", "phases", len(plan.Phases), "tasks", plan.TaskCount())
	return plan, nil
}

// drain accumulates the turn's text output until the stream completes.
func (p *Planner) drain(ctx context.Context, events <-chan bridge.Event) (string, error) {
	var sb strings.Builder
	for {
		// The deadline wins over buffered events so an expired turn never
		// sneaks a late plan through.
		select {
		case <-ctx.Done():
			return "", p.abandonTurn(ctx, events)
		default:
		}

		select {
		case <-ctx.Done():
			return "", p.abandonTurn(ctx, events)
		case ev, ok := <-events:
			if !ok {
				return sb.String(), nil
			}
			switch ev.Kind {
			case bridge.KindProgress:
				sb.WriteString(progressText(ev.Progress))
			case bridge.KindComplete:
				if !ev.Complete.Success {
					return "", &core.NetworkError{Err: fmt.Errorf("planning turn failed with exit code %d", ev.Complete.ExitCode)}
				}
			}
		}
	}
}

// abandonTurn cancels the bridge execution after a timeout and leaves a
// goroutine to drain the stream until the bridge acknowledges termination.
func (p *Planner) abandonTurn(ctx context.Context, events <-chan bridge.Event) error {
	if _, cerr := p.bridge.Cancel(context.WithoutCancel(ctx)); cerr != nil {
		p.logger.Warn("cancel after planning timeout failed", "error", cerr)
	}
	go func() {
		for range events {
		}
	}()
	return &core.NetworkError{Err: ctx.Err()}
}

// progressText extracts the textual contribution of one progress event.
// JSON events from the native CLI carry their text under "result" or "text".
func progressText(ev *core.ProgressEvent) string {
	if ev == nil {
		return ""
	}
	if ev.Type == core.ProgressText {
		return ev.Payload
	}
	for _, key := range []string{"result", "text"} {
		if s, ok := ev.Data[key].(string); ok {
			return s
		}
	}
	return ""
}

// buildPlanningPrompt frames the serialized project context as a single
// planning turn with a strict JSON response contract.
func (p *Planner) buildPlanningPrompt(serialized string) string {
	var ids []string
	for _, role := range p.registry.GetAll() {
		if !role.IsHuman {
			ids = append(ids, role.ID)
		}
	}

	var sb strings.Builder
	sb.WriteString("You are the planning lead of a virtual software team. ")
	sb.WriteString("Produce an execution plan for the project below.\n\n")
	sb.WriteString(serialized)
	sb.WriteString("\nRespond with a single JSON object and nothing else, using this shape:\n")
	sb.WriteString(`{"phases":[{"name":"...","routingTier":"cheap|standard|high","rationale":"...","milestones":[{"tasks":[{"title":"...","assignedTo":"...","tier":"cheap|standard|high","priority":"critical|high|medium|low","phase":"..."}]}]}],"estimatedRounds":1,"summary":"..."}`)
	sb.WriteString("\nValid assignedTo ids: ")
	sb.WriteString(strings.Join(ids, ", "))
	return sb.String()
}

// extractJSON locates the JSON object in free-form model output, tolerating
// surrounding prose and markdown fences.
func extractJSON(output string) string {
	if i := strings.Index(output, "```json"); i >= 0 {
		rest := output[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start < 0 || end <= start {
		return ""
	}
	return output[start : end+1]
}
