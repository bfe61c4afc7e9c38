package testutil

import "github.com/mindmapper/conductor/core"

// PlanBuilder provides a fluent helper for constructing plans in tests.
// Example:
//
//	plan := NewPlanBuilder().
//		Phase("Setup", core.TierCheap).
//		Task("Scaffold", "devops", core.PriorityHigh).
//		Build()
//
// Chain only the parts you need; sensible defaults are applied.
type PlanBuilder struct {
	plan core.Plan
}

// NewPlanBuilder creates an empty plan builder.
func NewPlanBuilder() *PlanBuilder { return &PlanBuilder{} }

// Phase appends a phase with one empty milestone and makes it current
// (chainable).
func (b *PlanBuilder) Phase(name string, tier core.Tier) *PlanBuilder {
	b.plan.Phases = append(b.plan.Phases, core.Phase{
		Name:        name,
		RoutingTier: tier,
		Milestones:  []core.Milestone{{}},
	})
	return b
}

// Milestone starts a new milestone in the current phase (chainable).
func (b *PlanBuilder) Milestone() *PlanBuilder {
	ph := b.currentPhase()
	ph.Milestones = append(ph.Milestones, core.Milestone{})
	return b
}

// Task appends a task to the current milestone. The task inherits the
// current phase's name and routing tier (chainable).
func (b *PlanBuilder) Task(title, assignedTo string, priority core.Priority) *PlanBuilder {
	ph := b.currentPhase()
	ms := &ph.Milestones[len(ph.Milestones)-1]
	ms.Tasks = append(ms.Tasks, core.Task{
		Title:      title,
		AssignedTo: assignedTo,
		Tier:       ph.RoutingTier,
		Priority:   priority,
		Phase:      ph.Name,
	})
	return b
}

// Summary sets the plan summary (chainable).
func (b *PlanBuilder) Summary(s string) *PlanBuilder {
	b.plan.Summary = s
	return b
}

// Rounds sets the estimated round count (chainable).
func (b *PlanBuilder) Rounds(n int) *PlanBuilder {
	b.plan.EstimatedRounds = n
	return b
}

// Build returns the constructed plan. EstimatedRounds defaults to the phase
// count when unset.
func (b *PlanBuilder) Build() *core.Plan {
	plan := b.plan
	if plan.EstimatedRounds == 0 {
		plan.EstimatedRounds = len(plan.Phases)
	}
	return &plan
}

func (b *PlanBuilder) currentPhase() *core.Phase {
	if len(b.plan.Phases) == 0 {
		b.Phase("Setup", core.TierCheap)
	}
	return &b.plan.Phases[len(b.plan.Phases)-1]
}
