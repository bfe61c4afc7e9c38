package testutil

import (
	"fmt"

	"github.com/mindmapper/conductor/core"
)

// GraphBuilder provides a fluent helper for constructing serialized project
// graphs in tests. Example:
//
//	payload := NewGraphBuilder("Todo App").
//		Stack("Go").
//		Feature("Auth", core.PriorityCritical).
//		Constraint("Offline-first").
//		Build()
//
// Node ids are assigned sequentially.
type GraphBuilder struct {
	payload core.GraphPayload
	nextID  int
}

// NewGraphBuilder creates a builder seeded with one project node.
func NewGraphBuilder(projectName string) *GraphBuilder {
	b := &GraphBuilder{}
	b.node(core.GraphNode{Text: projectName, NodeType: "project"})
	return b
}

// Stack appends a stack node (chainable).
func (b *GraphBuilder) Stack(text string) *GraphBuilder {
	return b.node(core.GraphNode{Text: text, NodeType: "stack"})
}

// Feature appends a feature node with the given priority (chainable).
func (b *GraphBuilder) Feature(text string, priority core.Priority) *GraphBuilder {
	return b.node(core.GraphNode{Text: text, NodeType: "feature", Priority: priority})
}

// Constraint appends a constraint node (chainable).
func (b *GraphBuilder) Constraint(text string) *GraphBuilder {
	return b.node(core.GraphNode{Text: text, NodeType: "constraint"})
}

// Connect appends a directed edge between two node ids (chainable).
func (b *GraphBuilder) Connect(from, to string) *GraphBuilder {
	b.payload.Connections = append(b.payload.Connections, core.GraphConnection{From: from, To: to})
	return b
}

// Build returns the constructed payload.
func (b *GraphBuilder) Build() core.GraphPayload {
	return b.payload
}

func (b *GraphBuilder) node(n core.GraphNode) *GraphBuilder {
	b.nextID++
	n.ID = fmt.Sprintf("n%d", b.nextID)
	b.payload.Nodes = append(b.payload.Nodes, n)
	return b
}
