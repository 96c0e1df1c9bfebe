package dsl

import (
	"fmt"

	"github.com/aretw0/autoflow/pkg/domain"
)

// Builder manages the workflow construction.
type Builder struct {
	id    string
	name  string
	order []string
	nodes map[string]*NodeBuilder
	edges []domain.Edge
}

// New creates a new workflow builder.
func New(id, name string) *Builder {
	return &Builder{
		id:    id,
		name:  name,
		nodes: make(map[string]*NodeBuilder),
	}
}

// Add creates a node with the given capability.
// If the node already exists, it returns the existing builder with the capability updated.
func (b *Builder) Add(id string, capability domain.Capability) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		nb.node.Capability = capability
		return nb
	}
	nb := &NodeBuilder{
		node: domain.Node{
			ID:         id,
			Capability: capability,
			Config:     map[string]string{},
		},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Trigger adds the entry node.
func (b *Builder) Trigger(id string) *NodeBuilder { return b.Add(id, domain.CapabilityTrigger) }

// Fetch adds an HTTP fetch node.
func (b *Builder) Fetch(id string) *NodeBuilder { return b.Add(id, domain.CapabilityFetch) }

// Transform adds a text generation node.
func (b *Builder) Transform(id string) *NodeBuilder { return b.Add(id, domain.CapabilityTransform) }

// Email adds an email notification node.
func (b *Builder) Email(id string) *NodeBuilder { return b.Add(id, domain.CapabilityNotifyEmail) }

// WhatsApp adds a WhatsApp notification node.
func (b *Builder) WhatsApp(id string) *NodeBuilder { return b.Add(id, domain.CapabilityNotifyWhatsApp) }

// Webhook adds an outbound webhook node.
func (b *Builder) Webhook(id string) *NodeBuilder { return b.Add(id, domain.CapabilityWebhook) }

// Connect adds an edge between two nodes.
func (b *Builder) Connect(source, target string) *Builder {
	b.edges = append(b.edges, domain.Edge{
		ID:     fmt.Sprintf("e-%s-%s", source, target),
		Source: source,
		Target: target,
	})
	return b
}

// Build assembles the workflow in declaration order and validates it.
func (b *Builder) Build() (*domain.Workflow, error) {
	wf := &domain.Workflow{
		ID:    b.id,
		Name:  b.name,
		Nodes: make([]domain.Node, 0, len(b.order)),
		Edges: append([]domain.Edge(nil), b.edges...),
	}
	for _, id := range b.order {
		wf.Nodes = append(wf.Nodes, b.nodes[id].Build())
	}

	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return wf, nil
}

// MustBuild is Build that panics on error, for tests and static definitions.
func (b *Builder) MustBuild() *domain.Workflow {
	wf, err := b.Build()
	if err != nil {
		panic(err)
	}
	return wf
}
