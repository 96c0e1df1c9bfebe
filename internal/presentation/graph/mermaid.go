package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/autoflow/pkg/domain"
)

// GraphOverlay contains run data to visualize on the graph.
type GraphOverlay struct {
	// Statuses maps node ids to the status they reached in a run.
	Statuses map[string]domain.Status
}

// OverlayFromOutcomes builds an overlay from the outcomes of a run.
func OverlayFromOutcomes(outcomes []domain.Outcome) *GraphOverlay {
	o := &GraphOverlay{Statuses: make(map[string]domain.Status, len(outcomes))}
	for _, oc := range outcomes {
		o.Statuses[oc.NodeID] = oc.Status
	}
	return o
}

// statusClasses maps outcome statuses to Mermaid class names and styles, in output order.
var statusClasses = []struct {
	status domain.Status
	class  string
	style  string
}{
	{domain.StatusSucceeded, "succeeded", "fill:#e8f5e9,stroke:#2e7d32,stroke-width:2px,color:#000"},
	{domain.StatusSkipped, "skipped", "fill:#eceff1,stroke:#78909c,stroke-dasharray:4 2,color:#000"},
	{domain.StatusFailed, "failed", "fill:#ffebee,stroke:#c62828,stroke-width:3px,color:#000"},
	{domain.StatusShortCircuited, "stopped", "fill:#fff8e1,stroke:#f9a825,stroke-width:2px,color:#000"},
}

// GenerateMermaid produces a Mermaid flowchart from a workflow.
// It applies semantic styling per capability:
// - Trigger: ((Circle))
// - Fetch: [/Parallelogram/]
// - Transform: {{Hexagon}}
// - Notifications: >Flag]
// - Webhook: [[Subroutine]]
// - Unknown: [Rectangle]
// It also applies outcome styles if an overlay is provided.
func GenerateMermaid(wf *domain.Workflow, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	for _, node := range wf.Nodes {
		opener, closer := shape(node.Capability)
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", sanitizeMermaidID(node.ID), opener, nodeLabel(node), closer)
	}

	for _, e := range wf.Edges {
		fmt.Fprintf(&sb, "    %s --> %s\n", sanitizeMermaidID(e.Source), sanitizeMermaidID(e.Target))
	}

	if overlay != nil && len(overlay.Statuses) > 0 {
		sb.WriteString("\n    %% Run Overlay\n")
		for _, sc := range statusClasses {
			fmt.Fprintf(&sb, "    classDef %s %s;\n", sc.class, sc.style)
		}
		// Node order keeps the output deterministic.
		for _, node := range wf.Nodes {
			status, ok := overlay.Statuses[node.ID]
			if !ok {
				continue
			}
			for _, sc := range statusClasses {
				if sc.status == status {
					fmt.Fprintf(&sb, "    class %s %s;\n", sanitizeMermaidID(node.ID), sc.class)
				}
			}
		}
	}

	return sb.String()
}

func shape(c domain.Capability) (string, string) {
	switch c {
	case domain.CapabilityTrigger:
		return "((", "))"
	case domain.CapabilityFetch:
		return "[/", "/]"
	case domain.CapabilityTransform:
		return "{{", "}}"
	case domain.CapabilityNotifyEmail, domain.CapabilityNotifyWhatsApp:
		return ">", "]"
	case domain.CapabilityWebhook:
		return "[[", "]]"
	default:
		return "[", "]"
	}
}

func nodeLabel(n domain.Node) string {
	label := n.Label
	if label == "" {
		label = n.ID
	}
	label = strings.ReplaceAll(label, "\"", "'")
	if n.Capability == "" {
		return label
	}
	return fmt.Sprintf("%s <br/> <small>%s</small>", label, n.Capability)
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
