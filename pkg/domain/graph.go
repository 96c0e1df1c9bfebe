package domain

// Graph is an indexed, read-only view over a workflow snapshot.
// It is built once per run and shared by all branches of that run.
type Graph struct {
	workflow *Workflow
	index    map[string]int
	outgoing map[string][]Edge
}

// NewGraph indexes w for O(1) node lookup and outgoing-edge enumeration.
// Edges pointing at unknown nodes are kept; traversal simply stops there.
func NewGraph(w *Workflow) *Graph {
	g := &Graph{
		workflow: w,
		index:    make(map[string]int, len(w.Nodes)),
		outgoing: make(map[string][]Edge),
	}
	for i, n := range w.Nodes {
		// First declaration wins for duplicated ids.
		if _, ok := g.index[n.ID]; !ok {
			g.index[n.ID] = i
		}
	}
	for _, e := range w.Edges {
		g.outgoing[e.Source] = append(g.outgoing[e.Source], e)
	}
	return g
}

// Workflow returns the snapshot backing the graph.
func (g *Graph) Workflow() *Workflow {
	return g.workflow
}

// Node resolves a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return &g.workflow.Nodes[i], true
}

// Outgoing returns the edges leaving the given node, in declaration order.
func (g *Graph) Outgoing(id string) []Edge {
	return g.outgoing[id]
}

// Start returns the node a run begins at: the first trigger-tagged node,
// or the first declared node when no trigger exists.
// It reports false for an empty workflow.
func (g *Graph) Start() (*Node, bool) {
	nodes := g.workflow.Nodes
	for i := range nodes {
		if nodes[i].Capability == CapabilityTrigger {
			return &nodes[i], true
		}
	}
	if len(nodes) == 0 {
		return nil, false
	}
	return &nodes[0], true
}

// Reachable returns the set of node ids reachable from the start node.
func (g *Graph) Reachable() map[string]bool {
	seen := make(map[string]bool)
	start, ok := g.Start()
	if !ok {
		return seen
	}
	stack := []string{start.ID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		if _, ok := g.Node(id); !ok {
			continue
		}
		seen[id] = true
		for _, e := range g.outgoing[id] {
			stack = append(stack, e.Target)
		}
	}
	return seen
}
