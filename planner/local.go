package planner

import (
	"fmt"

	"github.com/mindmapper/conductor/core"
)

// Meta carries the caller-supplied framing of a local plan.
type Meta struct {
	// Objective becomes the plan summary when set.
	Objective string
}

// Phase names of the local plan, in their fixed order.
const (
	PhaseSetup       = "Setup"
	PhaseCoreArch    = "Core Architecture"
	PhasePrimary     = "Primary Features"
	PhaseSecondary   = "Secondary Features"
	PhaseEnhancement = "Enhancement/Polish"
	PhaseQA          = "QA, Security & Documentation"
)

// CreateLocalPlan builds a deterministic plan from the project context with
// no network dependency. Context items are bucketed by declared priority
// into fixed phases in a fixed order; priority-driven phases with zero items
// are omitted, while Setup and the closing QA phase are unconditional.
// Identical (context, meta) inputs always yield structurally identical
// output.
func (p *Planner) CreateLocalPlan(project core.ProjectContext, meta Meta) *core.Plan {
	buckets := map[core.Priority][]core.ContextItem{}
	for _, item := range project.Items() {
		buckets[item.Priority] = append(buckets[item.Priority], item)
	}

	var phases []core.Phase
	phases = append(phases, p.setupPhase(project))

	type bucketPhase struct {
		name     string
		priority core.Priority
		tier     core.Tier
	}
	for _, bp := range []bucketPhase{
		{PhaseCoreArch, core.PriorityCritical, core.TierHigh},
		{PhasePrimary, core.PriorityHigh, core.TierStandard},
		{PhaseSecondary, core.PriorityMedium, core.TierStandard},
		{PhaseEnhancement, core.PriorityLow, core.TierCheap},
	} {
		items := buckets[bp.priority]
		if len(items) == 0 {
			continue
		}
		phases = append(phases, p.itemPhase(bp.name, bp.tier, bp.priority, items))
	}

	phases = append(phases, p.qaPhase(project))

	summary := meta.Objective
	if summary == "" {
		summary = fmt.Sprintf("Local plan for %s", project.ProjectName)
	}

	return &core.Plan{
		Phases:          phases,
		EstimatedRounds: len(phases),
		Summary:         summary,
	}
}

// setupPhase is always first and routed to the cheapest tier.
func (p *Planner) setupPhase(project core.ProjectContext) core.Phase {
	assignee := p.registry.DefaultForTier(core.TierCheap).ID
	tasks := []core.Task{{
		Title:      "Initialize project scaffolding",
		AssignedTo: assignee,
		Tier:       core.TierCheap,
		Priority:   core.PriorityHigh,
		Phase:      PhaseSetup,
	}}
	for _, stack := range project.Stack {
		tasks = append(tasks, core.Task{
			Title:      fmt.Sprintf("Configure %s toolchain", stack),
			AssignedTo: assignee,
			Tier:       core.TierCheap,
			Priority:   core.PriorityHigh,
			Phase:      PhaseSetup,
		})
	}
	return core.Phase{
		Name:        PhaseSetup,
		RoutingTier: core.TierCheap,
		Rationale:   "Environment and scaffolding before any feature work",
		Milestones:  []core.Milestone{{Tasks: tasks}},
	}
}

// itemPhase converts one priority bucket into a single-milestone phase.
func (p *Planner) itemPhase(name string, tier core.Tier, priority core.Priority, items []core.ContextItem) core.Phase {
	assignee := p.registry.DefaultForTier(tier).ID
	tasks := make([]core.Task, 0, len(items))
	for _, item := range items {
		tasks = append(tasks, core.Task{
			Title:      item.Text,
			AssignedTo: assignee,
			Tier:       tier,
			Priority:   priority,
			Phase:      name,
		})
	}
	return core.Phase{
		Name:        name,
		RoutingTier: tier,
		Rationale:   fmt.Sprintf("%s-priority context items", priority),
		Milestones:  []core.Milestone{{Tasks: tasks}},
	}
}

// qaPhase is always last and routed to the highest-capability tier,
// independent of item priorities.
func (p *Planner) qaPhase(project core.ProjectContext) core.Phase {
	assignee := p.registry.DefaultForTier(core.TierHigh).ID
	if role, ok := p.registry.Lookup("qa"); ok && !role.IsHuman {
		assignee = role.ID
	}
	tasks := []core.Task{
		{Title: "End-to-end verification pass", AssignedTo: assignee, Tier: core.TierHigh, Priority: core.PriorityHigh, Phase: PhaseQA},
		{Title: "Security review", AssignedTo: assignee, Tier: core.TierHigh, Priority: core.PriorityHigh, Phase: PhaseQA},
		{Title: fmt.Sprintf("Document %s", project.ProjectName), AssignedTo: assignee, Tier: core.TierHigh, Priority: core.PriorityMedium, Phase: PhaseQA},
	}
	return core.Phase{
		Name:        PhaseQA,
		RoutingTier: core.TierHigh,
		Rationale:   "Closing quality, security and documentation gate",
		Milestones:  []core.Milestone{{Tasks: tasks}},
	}
}
