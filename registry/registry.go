// Package registry holds the static roster of agent roles available to the
// engine. The roster is created at process start, includes the human
// principal, and is never mutated at runtime; it is used both to populate
// observer UIs and to validate task assignments.
package registry

import "github.com/mindmapper/conductor/core"

// AgentRole describes one roster entry.
type AgentRole struct {
	ID      string    `json:"id"`
	Label   string    `json:"label"`
	Tier    core.Tier `json:"tier"`
	IsHuman bool      `json:"is_human"`
}

// AgentState is the coordinator-visible execution state of a roster agent.
type AgentState string

const (
	// StateIdle means the agent has no task in flight.
	StateIdle AgentState = "idle"
	// StateThinking means the agent's task has been dispatched.
	StateThinking AgentState = "thinking"
	// StateResponding means work is streaming in for the agent's task.
	StateResponding AgentState = "responding"
	// StateDone means the agent's current task finished.
	StateDone AgentState = "done"
	// StateError means the agent's current task failed.
	StateError AgentState = "error"
)

// Registry is the immutable agent roster.
type Registry struct {
	roles []AgentRole
	byID  map[string]AgentRole
}

// defaultRoster is the fixed virtual team, the human principal first.
var defaultRoster = []AgentRole{
	{ID: "ceo", Label: "CEO", Tier: core.TierHigh, IsHuman: true},
	{ID: "architect", Label: "Architect", Tier: core.TierHigh},
	{ID: "backend", Label: "Backend Engineer", Tier: core.TierStandard},
	{ID: "frontend", Label: "Frontend Engineer", Tier: core.TierStandard},
	{ID: "devops", Label: "DevOps Engineer", Tier: core.TierCheap},
	{ID: "qa", Label: "QA Engineer", Tier: core.TierHigh},
}

// New returns the default roster.
func New() *Registry {
	return FromRoles(defaultRoster)
}

// FromRoles builds a registry from an explicit roster. The slice is copied;
// later mutation of the argument does not affect the registry.
func FromRoles(roles []AgentRole) *Registry {
	r := &Registry{
		roles: make([]AgentRole, len(roles)),
		byID:  make(map[string]AgentRole, len(roles)),
	}
	copy(r.roles, roles)
	for _, role := range r.roles {
		r.byID[role.ID] = role
	}
	return r
}

// GetAll returns the complete fixed roster as a defensive copy.
func (r *Registry) GetAll() []AgentRole {
	out := make([]AgentRole, len(r.roles))
	copy(out, r.roles)
	return out
}

// Lookup returns the role for id.
func (r *Registry) Lookup(id string) (AgentRole, bool) {
	role, ok := r.byID[id]
	return role, ok
}

// Validate checks a task assignment against the roster. An unknown id is a
// validation failure, not a crash; callers drop the task and continue.
func (r *Registry) Validate(task core.Task) error {
	if _, ok := r.byID[task.AssignedTo]; !ok {
		return &core.ValidationError{AgentID: task.AssignedTo, Task: task.Title}
	}
	return nil
}

// DefaultForTier returns the deterministic non-human assignee for a
// capability tier, used by the local fallback planner.
func (r *Registry) DefaultForTier(tier core.Tier) AgentRole {
	for _, role := range r.roles {
		if role.IsHuman {
			continue
		}
		if role.Tier == tier {
			return role
		}
	}
	// Fall back to the first non-human role rather than invent an id.
	for _, role := range r.roles {
		if !role.IsHuman {
			return role
		}
	}
	return AgentRole{}
}
