package tui

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// NewRenderer returns a function that renders markdown using glamour.
// When stdout is not a terminal (pipes, CI logs) the markdown is returned as is.
func NewRenderer() func(string) (string, error) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return func(markdown string) (string, error) { return markdown, nil }
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// ReportMarkdown formats a run report as a markdown document:
// a header, one table row per node outcome and the generated text, if any.
func ReportMarkdown(r *domain.RunReport) string {
	var sb strings.Builder

	name := r.WorkflowName
	if name == "" {
		name = r.WorkflowID
	}
	status := "succeeded"
	if r.Failed() {
		status = "failed"
	}

	fmt.Fprintf(&sb, "# %s\n\n", name)
	fmt.Fprintf(&sb, "Run `%s` (%s) %s in %s.\n\n", r.RunID, r.Mode, status, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))

	if len(r.Outcomes) == 0 {
		sb.WriteString("_No node was visited._\n")
	} else {
		sb.WriteString("| Node | Capability | Status | Detail |\n")
		sb.WriteString("|---|---|---|---|\n")
		for _, o := range r.Outcomes {
			detail := o.Reason
			if o.Error != "" {
				detail = strings.TrimSpace(detail + " " + o.Error)
			}
			fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n", o.NodeID, o.Capability, o.Status, escapeCell(detail))
		}
	}

	if text, ok := r.Context[domain.SlotAIResponse].(string); ok && text != "" {
		sb.WriteString("\n## Generated text\n\n")
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	keys := make([]string, 0, len(r.Context))
	for k := range r.Context {
		if k != domain.SlotAIResponse {
			keys = append(keys, k)
		}
	}
	if len(keys) > 0 {
		sort.Strings(keys)
		sb.WriteString("\n## Context\n\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "- **%s**: %s\n", k, escapeCell(fmt.Sprint(r.Context[k])))
		}
	}
	return sb.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
