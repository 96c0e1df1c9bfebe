package domain

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"time"
)

// Capability tags the behaviour a node exhibits when dispatched.
// Behaviour is selected by this tag alone; the node label is presentation only.
type Capability string

const (
	// CapabilityTrigger marks the entry point. It may act as a gate on the run identity.
	CapabilityTrigger Capability = "trigger"
	// CapabilityFetch retrieves data from an external HTTP endpoint.
	CapabilityFetch Capability = "fetch"
	// CapabilityTransform turns upstream data into text using a text generator.
	CapabilityTransform Capability = "transform"
	// CapabilityNotifyEmail delivers the generated text by email (channel A).
	CapabilityNotifyEmail Capability = "notify-email"
	// CapabilityNotifyWhatsApp delivers the generated text by WhatsApp message (channel B).
	CapabilityNotifyWhatsApp Capability = "notify-whatsapp"
	// CapabilityWebhook posts the generated text to an outbound webhook.
	CapabilityWebhook Capability = "webhook"
)

// Capabilities lists every capability tag the engine knows how to dispatch.
func Capabilities() []Capability {
	return []Capability{
		CapabilityTrigger,
		CapabilityFetch,
		CapabilityTransform,
		CapabilityNotifyEmail,
		CapabilityNotifyWhatsApp,
		CapabilityWebhook,
	}
}

// Known reports whether c is part of the closed capability set.
func (c Capability) Known() bool {
	for _, k := range Capabilities() {
		if c == k {
			return true
		}
	}
	return false
}

// Position is the editor placement of a node. The engine ignores it.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is a unit of work inside a workflow.
type Node struct {
	ID         string            `json:"id" yaml:"id"`
	Capability Capability        `json:"type" yaml:"type"`
	Label      string            `json:"label,omitempty" yaml:"label,omitempty"`
	Config     map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
	Position   Position          `json:"position" yaml:"position"`
}

// Edge is a directed connection from Source to Target.
type Edge struct {
	ID     string `json:"id,omitempty" yaml:"id,omitempty"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// Workflow is a stored, named graph of nodes and edges.
type Workflow struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Nodes     []Node    `json:"nodes" yaml:"nodes"`
	Edges     []Edge    `json:"edges" yaml:"edges"`
	Version   int64     `json:"version" yaml:"version,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at,omitempty"`
}

// WorkflowSummary is the listing projection of a Workflow.
type WorkflowSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Nodes     int       `json:"nodes"`
	Edges     int       `json:"edges"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary returns the listing projection of w.
func (w *Workflow) Summary() WorkflowSummary {
	return WorkflowSummary{
		ID:        w.ID,
		Name:      w.Name,
		Nodes:     len(w.Nodes),
		Edges:     len(w.Edges),
		Version:   w.Version,
		UpdatedAt: w.UpdatedAt,
	}
}

// Clone returns a deep copy of w. Runs operate on clones so that later edits
// to the stored workflow never affect a run in flight.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	c := *w
	c.Nodes = make([]Node, len(w.Nodes))
	for i, n := range w.Nodes {
		n.Config = maps.Clone(n.Config)
		c.Nodes[i] = n
	}
	c.Edges = append([]Edge(nil), w.Edges...)
	return &c
}

// Validate checks the structural invariants of the workflow: node ids are
// non-empty and unique, every node carries a capability tag, and every edge
// references existing nodes. Unknown tags pass; runs skip those nodes.
// All violations are reported together, wrapped in ErrInvalidWorkflow.
func (w *Workflow) Validate() error {
	var errs []error

	seen := make(map[string]bool, len(w.Nodes))
	for i, n := range w.Nodes {
		if n.ID == "" {
			errs = append(errs, fmt.Errorf("node at index %d has an empty id", i))
			continue
		}
		if seen[n.ID] {
			errs = append(errs, fmt.Errorf("duplicate node id %q", n.ID))
		}
		seen[n.ID] = true
		if strings.TrimSpace(string(n.Capability)) == "" {
			errs = append(errs, fmt.Errorf("node %q has no capability", n.ID))
		}
	}

	for i, e := range w.Edges {
		if !seen[e.Source] {
			errs = append(errs, fmt.Errorf("edge %d references unknown source %q", i, e.Source))
		}
		if !seen[e.Target] {
			errs = append(errs, fmt.Errorf("edge %d references unknown target %q", i, e.Target))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidWorkflow, errors.Join(errs...))
}

// SortSummaries orders summaries by update time (newest first), then by id.
func SortSummaries(s []WorkflowSummary) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].UpdatedAt.Equal(s[j].UpdatedAt) {
			return s[i].UpdatedAt.After(s[j].UpdatedAt)
		}
		return s[i].ID < s[j].ID
	})
}
