package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Tier is the cost/capability class routed to a task or phase.
type Tier string

const (
	// TierCheap routes to the cheapest capability class.
	TierCheap Tier = "cheap"
	// TierStandard routes to the mid capability class.
	TierStandard Tier = "standard"
	// TierHigh routes to the highest capability class.
	TierHigh Tier = "high"
)

// Priority is the declared urgency of a context item or task.
type Priority string

const (
	// PriorityCritical marks must-have architecture work.
	PriorityCritical Priority = "critical"
	// PriorityHigh marks primary features.
	PriorityHigh Priority = "high"
	// PriorityMedium marks secondary features.
	PriorityMedium Priority = "medium"
	// PriorityLow marks enhancement and polish work.
	PriorityLow Priority = "low"
)

// Task is one unit of delegated work inside a milestone. AssignedTo must
// resolve to a registry agent id or the coordinator drops the task.
type Task struct {
	Title      string   `json:"title"`
	AssignedTo string   `json:"assignedTo"`
	Tier       Tier     `json:"tier"`
	Priority   Priority `json:"priority"`
	Phase      string   `json:"phase"`
}

// Milestone groups tasks executed strictly sequentially.
type Milestone struct {
	Tasks []Task `json:"tasks"`
}

// Phase is an ordered stage of the plan routed to one capability tier.
type Phase struct {
	Name        string      `json:"name"`
	RoutingTier Tier        `json:"routingTier"`
	Rationale   string      `json:"rationale,omitempty"`
	Milestones  []Milestone `json:"milestones"`
}

// Plan is the phase → milestone → task structure produced by the planner.
type Plan struct {
	Phases          []Phase `json:"phases"`
	EstimatedRounds int     `json:"estimatedRounds"`
	Summary         string  `json:"summary,omitempty"`
}

// TaskCount returns the total number of tasks across all phases.
func (p *Plan) TaskCount() int {
	n := 0
	for _, ph := range p.Phases {
		for _, m := range ph.Milestones {
			n += len(m.Tasks)
		}
	}
	return n
}

// Validate enforces the minimal plan shape: at least one phase, and every
// task carries a title and a priority. It returns a *ParseError describing
// the first violation found.
func (p *Plan) Validate() error {
	if len(p.Phases) == 0 {
		return &ParseError{Reason: "plan has no phases"}
	}
	for pi, ph := range p.Phases {
		if ph.Name == "" {
			return &ParseError{Reason: fmt.Sprintf("phase %d has no name", pi)}
		}
		for mi, m := range ph.Milestones {
			for ti, t := range m.Tasks {
				if t.Title == "" {
					return &ParseError{Reason: fmt.Sprintf("phase %q milestone %d task %d has no title", ph.Name, mi, ti)}
				}
				if t.Priority == "" {
					return &ParseError{Reason: fmt.Sprintf("task %q has no priority", t.Title)}
				}
			}
		}
	}
	return nil
}

// EncodePlan serializes a plan to JSON. The output round-trips through
// DecodePlan to an identical phase/milestone/task tree.
func EncodePlan(p *Plan) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode plan: %w", err)
	}
	return data, nil
}

// DecodePlan parses untrusted planner output into a Plan. The payload is
// treated as external and unvalidated: unknown fields and any shape mismatch
// yield a *ParseError rather than a partially trusted structure.
func DecodePlan(data []byte) (*Plan, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var p Plan
	if err := dec.Decode(&p); err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
