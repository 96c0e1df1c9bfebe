package tui

import (
	"bytes"
	"testing"
	"time"

	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestReportMarkdown(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	report := &domain.RunReport{
		RunID:        "run-1",
		WorkflowID:   "wf-1",
		WorkflowName: "Follow-up",
		Mode:         domain.RunModeManual,
		StartedAt:    start,
		FinishedAt:   start.Add(1500 * time.Millisecond),
		Outcomes: []domain.Outcome{
			{NodeID: "start", Capability: domain.CapabilityTrigger, Status: domain.StatusSucceeded},
			{NodeID: "mail", Capability: domain.CapabilityNotifyEmail, Status: domain.StatusFailed, Reason: "send failed", Error: "a|b"},
		},
		Context: map[string]any{
			domain.SlotAIResponse: "Hello Sam",
			domain.SlotName:       "Sam",
		},
	}

	md := ReportMarkdown(report)
	assert.Contains(t, md, "# Follow-up")
	assert.Contains(t, md, "Run `run-1` (manual) failed in 1.5s.")
	assert.Contains(t, md, "| mail | notify-email | failed | send failed a\\|b |")
	assert.Contains(t, md, "## Generated text\n\nHello Sam")
	assert.Contains(t, md, "- **name**: Sam")
}

func TestReportMarkdown_Empty(t *testing.T) {
	md := ReportMarkdown(&domain.RunReport{WorkflowID: "wf-1", Mode: domain.RunModeScheduled})
	assert.Contains(t, md, "# wf-1")
	assert.Contains(t, md, "succeeded")
	assert.Contains(t, md, "_No node was visited._")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "1.2.3")
	assert.Contains(t, buf.String(), "version 1.2.3")
}
