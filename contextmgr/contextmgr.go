// Package contextmgr derives the project context slice the planner needs
// from the externally-supplied graph payload. It holds the slice only for
// the session's duration and performs no network or disk I/O.
package contextmgr

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mindmapper/conductor/core"
)

// Manager owns the current session's project context.
type Manager struct {
	mu  sync.RWMutex
	ctx core.ProjectContext
}

// New creates an empty context manager.
func New() *Manager {
	return &Manager{}
}

// Load derives the project context from a serialized graph payload and
// retains it for the session. The payload is otherwise treated as opaque.
func (m *Manager) Load(data []byte) (core.ProjectContext, error) {
	var payload core.GraphPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return core.ProjectContext{}, fmt.Errorf("decode graph payload: %w", err)
	}
	return m.LoadPayload(payload), nil
}

// LoadPayload derives and retains the project context from an already
// decoded graph payload.
func (m *Manager) LoadPayload(payload core.GraphPayload) core.ProjectContext {
	ctx := Derive(payload)
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()
	return ctx
}

// Current returns the retained context.
func (m *Manager) Current() core.ProjectContext {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ctx
}

// Reset drops the retained context at session end.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.ctx = core.ProjectContext{}
	m.mu.Unlock()
}

// Derive slices a graph payload into the planner's inputs. Node types are
// interpreted as follows: "project" names the project, "stack" declares
// technologies, "constraint" adds constraints, everything else with text is
// a feature. Node order is preserved within each group.
func Derive(payload core.GraphPayload) core.ProjectContext {
	ctx := core.ProjectContext{}
	for _, node := range payload.Nodes {
		text := strings.TrimSpace(node.Text)
		if text == "" {
			continue
		}
		switch node.NodeType {
		case "project":
			if ctx.ProjectName == "" {
				ctx.ProjectName = text
			}
		case "stack":
			ctx.Stack = append(ctx.Stack, text)
		case "constraint":
			ctx.Constraints = append(ctx.Constraints, core.ContextItem{Text: text, Priority: priorityOf(node)})
		default:
			ctx.Features = append(ctx.Features, core.ContextItem{Text: text, Priority: priorityOf(node)})
		}
	}
	if ctx.ProjectName == "" {
		ctx.ProjectName = "Untitled Project"
	}
	return ctx
}

func priorityOf(node core.GraphNode) core.Priority {
	switch node.Priority {
	case core.PriorityCritical, core.PriorityHigh, core.PriorityMedium, core.PriorityLow:
		return node.Priority
	default:
		return core.PriorityMedium
	}
}

// Serialize renders the context as the planner prompt payload.
func Serialize(ctx core.ProjectContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Project: %s\n", ctx.ProjectName)
	if len(ctx.Stack) > 0 {
		fmt.Fprintf(&sb, "Stack: %s\n", strings.Join(ctx.Stack, ", "))
	}
	if len(ctx.Features) > 0 {
		sb.WriteString("Features:\n")
		for _, f := range ctx.Features {
			fmt.Fprintf(&sb, "- [%s] %s\n", f.Priority, f.Text)
		}
	}
	if len(ctx.Constraints) > 0 {
		sb.WriteString("Constraints:\n")
		for _, c := range ctx.Constraints {
			fmt.Fprintf(&sb, "- [%s] %s\n", c.Priority, c.Text)
		}
	}
	return sb.String()
}
