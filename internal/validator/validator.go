package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/autoflow/pkg/domain"
)

// Warning is a non-fatal issue: the workflow runs, but probably not as intended.
type Warning struct {
	NodeID  string `json:"node_id,omitempty"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	if w.NodeID == "" {
		return w.Message
	}
	return fmt.Sprintf("%s: %s", w.NodeID, w.Message)
}

// ValidateWorkflow checks structural integrity and then lints the workflow.
// A structural error makes the warnings meaningless, so none are returned with it.
func ValidateWorkflow(wf *domain.Workflow) ([]Warning, error) {
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return Lint(wf), nil
}

// Lint reports unknown capabilities, missing or ambiguous triggers, unreachable nodes,
// and delivery nodes that can never receive generated text.
func Lint(wf *domain.Workflow) []Warning {
	var warnings []Warning
	g := domain.NewGraph(wf)

	triggers := 0
	for _, n := range wf.Nodes {
		if n.Capability == domain.CapabilityTrigger {
			triggers++
		}
		if !n.Capability.Known() {
			warnings = append(warnings, Warning{NodeID: n.ID, Message: fmt.Sprintf("unknown capability %q, node will be skipped", n.Capability)})
		}
	}
	switch {
	case len(wf.Nodes) == 0:
		return append(warnings, Warning{Message: "workflow has no nodes"})
	case triggers == 0:
		warnings = append(warnings, Warning{Message: fmt.Sprintf("no trigger node, runs start at %q", wf.Nodes[0].ID)})
	case triggers > 1:
		start, _ := g.Start()
		warnings = append(warnings, Warning{Message: fmt.Sprintf("%d trigger nodes, only %q starts runs", triggers, start.ID)})
	}

	reachable := g.Reachable()
	for _, n := range wf.Nodes {
		if !reachable[n.ID] {
			warnings = append(warnings, Warning{NodeID: n.ID, Message: "unreachable from the start node"})
		}
	}

	fed := downstreamOfTransform(wf)
	for _, n := range wf.Nodes {
		if !reachable[n.ID] {
			continue
		}
		switch n.Capability {
		case domain.CapabilityNotifyEmail, domain.CapabilityNotifyWhatsApp, domain.CapabilityWebhook:
			if !fed[n.ID] {
				warnings = append(warnings, Warning{NodeID: n.ID, Message: "no upstream transform, delivery will be skipped"})
			}
		case domain.CapabilityFetch:
			if strings.TrimSpace(n.Config["url"]) == "" {
				warnings = append(warnings, Warning{NodeID: n.ID, Message: "no url configured, fetch will be skipped"})
			}
		}
	}
	return warnings
}

// downstreamOfTransform returns the ids of nodes reachable from any transform node.
func downstreamOfTransform(wf *domain.Workflow) map[string]bool {
	g := domain.NewGraph(wf)
	seen := make(map[string]bool)
	var stack []string
	for _, n := range wf.Nodes {
		if n.Capability == domain.CapabilityTransform {
			for _, e := range g.Outgoing(n.ID) {
				stack = append(stack, e.Target)
			}
		}
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, e := range g.Outgoing(id) {
			stack = append(stack, e.Target)
		}
	}
	return seen
}
