package core

// GraphNode is one node of the externally-serialized project graph. The
// engine treats the graph as an opaque context blob; only the fields below
// are interpreted.
type GraphNode struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	NodeType      string   `json:"nodeType"`
	Priority      Priority `json:"priority,omitempty"`
	Phase         string   `json:"phase,omitempty"`
	AssignedAgent string   `json:"assignedAgent,omitempty"`
	AgentStatus   string   `json:"agentStatus,omitempty"`
}

// GraphConnection is a directed edge between two graph nodes.
type GraphConnection struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// GraphPayload is the serialized project description produced by the
// external graph editor.
type GraphPayload struct {
	Nodes       []GraphNode       `json:"nodes"`
	Connections []GraphConnection `json:"connections"`
}

// ContextItem is one planning input derived from the graph: a feature,
// constraint or stack declaration with its declared priority.
type ContextItem struct {
	Text     string   `json:"text"`
	Priority Priority `json:"priority"`
}

// ProjectContext is the slice of project information the planner consumes.
// It lives only for the session's duration.
type ProjectContext struct {
	ProjectName string        `json:"project_name"`
	Stack       []string      `json:"stack"`
	Features    []ContextItem `json:"features"`
	Constraints []ContextItem `json:"constraints"`
}

// Items returns features and constraints as one ordered planning list,
// features first, preserving input order within each group.
func (c *ProjectContext) Items() []ContextItem {
	items := make([]ContextItem, 0, len(c.Features)+len(c.Constraints))
	items = append(items, c.Features...)
	items = append(items, c.Constraints...)
	return items
}
