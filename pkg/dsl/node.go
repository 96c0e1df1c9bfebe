package dsl

import (
	"maps"

	"github.com/aretw0/autoflow/pkg/domain"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    domain.Node
	builder *Builder
}

// Label sets the display label.
func (n *NodeBuilder) Label(label string) *NodeBuilder {
	n.node.Label = label
	return n
}

// At sets the editor position.
func (n *NodeBuilder) At(x, y float64) *NodeBuilder {
	n.node.Position = domain.Position{X: x, Y: y}
	return n
}

// Set writes a raw config value.
func (n *NodeBuilder) Set(key, value string) *NodeBuilder {
	n.node.Config[key] = value
	return n
}

// Filter restricts a trigger to runs whose identity matches.
func (n *NodeBuilder) Filter(identity string) *NodeBuilder { return n.Set("filter", identity) }

// Schedule overrides the activation schedule of a trigger.
func (n *NodeBuilder) Schedule(spec string) *NodeBuilder { return n.Set("schedule", spec) }

// URL sets the endpoint of a fetch or webhook node.
func (n *NodeBuilder) URL(url string) *NodeBuilder { return n.Set("url", url) }

// APIKey sets the credential of a fetch node.
func (n *NodeBuilder) APIKey(key string) *NodeBuilder { return n.Set("api_key", key) }

// Instruction sets the prompt template of a transform node.
func (n *NodeBuilder) Instruction(tmpl string) *NodeBuilder { return n.Set("instruction", tmpl) }

// ToEmail sets the static recipient of an email node.
func (n *NodeBuilder) ToEmail(addr string) *NodeBuilder { return n.Set("to_email", addr) }

// Subject sets the subject of an email node.
func (n *NodeBuilder) Subject(s string) *NodeBuilder { return n.Set("subject", s) }

// ToPhone sets the static recipient of a WhatsApp node.
func (n *NodeBuilder) ToPhone(phone string) *NodeBuilder { return n.Set("to_phone", phone) }

// To adds edges from this node to each target.
func (n *NodeBuilder) To(targets ...string) *NodeBuilder {
	for _, t := range targets {
		n.builder.Connect(n.node.ID, t)
	}
	return n
}

// Build returns a copy of the underlying domain.Node.
func (n *NodeBuilder) Build() domain.Node {
	out := n.node
	out.Config = maps.Clone(n.node.Config)
	return out
}
