package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindmapper/conductor/core"
	"github.com/mindmapper/conductor/registry"
)

func contextWithPriorities(critical, high, medium, low int) core.ProjectContext {
	ctx := core.ProjectContext{ProjectName: "Demo"}
	add := func(n int, p core.Priority, label string) {
		for i := 0; i < n; i++ {
			ctx.Features = append(ctx.Features, core.ContextItem{
				Text:     label,
				Priority: p,
			})
		}
	}
	add(critical, core.PriorityCritical, "critical item")
	add(high, core.PriorityHigh, "high item")
	add(medium, core.PriorityMedium, "medium item")
	add(low, core.PriorityLow, "low item")
	return ctx
}

func phaseNames(p *core.Plan) []string {
	names := make([]string, 0, len(p.Phases))
	for _, ph := range p.Phases {
		names = append(names, ph.Name)
	}
	return names
}

func TestCreateLocalPlan_FixedPhaseOrder(t *testing.T) {
	p := New(nil, registry.New())

	plan := p.CreateLocalPlan(contextWithPriorities(3, 4, 2, 1), Meta{})

	assert.Equal(t, []string{
		PhaseSetup,
		PhaseCoreArch,
		PhasePrimary,
		PhaseSecondary,
		PhaseEnhancement,
		PhaseQA,
	}, phaseNames(plan))

	for _, ph := range plan.Phases {
		require.NotEmpty(t, ph.Milestones)
		for _, m := range ph.Milestones {
			assert.NotEmpty(t, m.Tasks, "phase %s has an empty milestone", ph.Name)
		}
	}
}

func TestCreateLocalPlan_EmptyBucketsOmitted(t *testing.T) {
	p := New(nil, registry.New())

	plan := p.CreateLocalPlan(contextWithPriorities(0, 0, 0, 0), Meta{})

	// Setup and the QA gate are unconditional even with no context items.
	assert.Equal(t, []string{PhaseSetup, PhaseQA}, phaseNames(plan))
}

func TestCreateLocalPlan_TierRouting(t *testing.T) {
	p := New(nil, registry.New())

	plan := p.CreateLocalPlan(contextWithPriorities(1, 1, 1, 1), Meta{})

	tiers := map[string]core.Tier{}
	for _, ph := range plan.Phases {
		tiers[ph.Name] = ph.RoutingTier
	}
	assert.Equal(t, core.TierCheap, tiers[PhaseSetup])
	assert.Equal(t, core.TierHigh, tiers[PhaseCoreArch])
	assert.Equal(t, core.TierStandard, tiers[PhasePrimary])
	assert.Equal(t, core.TierStandard, tiers[PhaseSecondary])
	assert.Equal(t, core.TierCheap, tiers[PhaseEnhancement])
	assert.Equal(t, core.TierHigh, tiers[PhaseQA])
}

func TestCreateLocalPlan_IsDeterministic(t *testing.T) {
	p := New(nil, registry.New())
	ctx := contextWithPriorities(2, 1, 0, 3)
	ctx.Stack = []string{"Go", "SQLite"}
	meta := Meta{Objective: "ship it"}

	first := p.CreateLocalPlan(ctx, meta)
	second := p.CreateLocalPlan(ctx, meta)

	assert.Equal(t, first, second)
	assert.Equal(t, "ship it", first.Summary)
}

func TestCreateLocalPlan_AssignmentsResolveToRoster(t *testing.T) {
	reg := registry.New()
	p := New(nil, reg)

	plan := p.CreateLocalPlan(contextWithPriorities(2, 2, 2, 2), Meta{})

	ids := map[string]bool{}
	for _, role := range reg.GetAll() {
		ids[role.ID] = true
	}
	for _, ph := range plan.Phases {
		for _, m := range ph.Milestones {
			for _, task := range m.Tasks {
				assert.True(t, ids[task.AssignedTo], "task %q assigned to unknown agent %q", task.Title, task.AssignedTo)
			}
		}
	}
}

func TestCreateLocalPlan_ValidatesCleanly(t *testing.T) {
	p := New(nil, registry.New())
	plan := p.CreateLocalPlan(contextWithPriorities(1, 0, 1, 0), Meta{})
	require.NoError(t, plan.Validate())
}
