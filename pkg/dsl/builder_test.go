package dsl

import (
	"errors"
	"testing"

	"github.com/aretw0/autoflow/pkg/domain"
)

func TestBuilder_SimpleFlow(t *testing.T) {
	b := New("wf-1", "Greeting")

	b.Trigger("start").Filter("a@x.com").To("ai")
	b.Transform("ai").Instruction("Hi {{name}}").To("mail", "chat")
	b.Email("mail").Subject("Hello")
	b.WhatsApp("chat").ToPhone("+1 555").At(10, 20)

	wf, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	if wf.ID != "wf-1" || wf.Name != "Greeting" {
		t.Errorf("unexpected identity %q/%q", wf.ID, wf.Name)
	}
	if len(wf.Nodes) != 4 || wf.Nodes[0].ID != "start" || wf.Nodes[3].ID != "chat" {
		t.Fatalf("nodes not in declaration order: %+v", wf.Nodes)
	}
	if wf.Nodes[0].Capability != domain.CapabilityTrigger || wf.Nodes[0].Config["filter"] != "a@x.com" {
		t.Errorf("unexpected trigger %+v", wf.Nodes[0])
	}
	if wf.Nodes[3].Position.X != 10 {
		t.Errorf("position not set")
	}
	if len(wf.Edges) != 3 {
		t.Fatalf("expected 3 edges, got %d", len(wf.Edges))
	}
	if wf.Edges[1].Source != "ai" || wf.Edges[1].Target != "mail" {
		t.Errorf("unexpected edge %+v", wf.Edges[1])
	}

	start, ok := domain.NewGraph(wf).Start()
	if !ok || start.ID != "start" {
		t.Errorf("unexpected start node")
	}
}

func TestBuilder_RejectsDanglingEdge(t *testing.T) {
	b := New("wf", "Broken")
	b.Trigger("start").To("missing")

	_, err := b.Build()
	if !errors.Is(err, domain.ErrInvalidWorkflow) {
		t.Fatalf("expected ErrInvalidWorkflow, got %v", err)
	}
}

func TestBuilder_BuildIsolatesNodes(t *testing.T) {
	b := New("wf", "Copy")
	nb := b.Fetch("http").URL("http://one")

	wf := b.MustBuild()
	nb.URL("http://two")

	if wf.Nodes[0].Config["url"] != "http://one" {
		t.Errorf("built workflow shares config with builder")
	}
}
