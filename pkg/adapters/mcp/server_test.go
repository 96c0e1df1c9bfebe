package mcp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/autoflow"
	"github.com/aretw0/autoflow/pkg/adapters/memory"
	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/aretw0/autoflow/pkg/dsl"
	"github.com/aretw0/autoflow/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upperText struct{}

func (upperText) Generate(ctx context.Context, prompt string) (string, error) {
	return strings.ToUpper(prompt), nil
}

func newTestServer(t *testing.T) (*Server, *autoflow.Engine) {
	t.Helper()
	eng, err := autoflow.New(memory.NewRepository(),
		autoflow.WithProviders(ports.Providers{Text: upperText{}}),
		autoflow.WithCooldown(0),
		autoflow.WithRunLog(memory.NewRunLog(0)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Shutdown(ctx)
	})

	b := dsl.New("wf-1", "Echo")
	b.Trigger("start").To("ai")
	b.Transform("ai").Instruction("hello {{name}}")
	_, err = eng.Create(context.Background(), b.MustBuild())
	require.NoError(t, err)

	return NewServer(eng, "test"), eng
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func TestHandleList(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.handleList(context.Background(), mcp.CallToolRequest{}, nil)
	require.NoError(t, err)
	require.Len(t, resp.Workflows, 1)
	assert.Equal(t, "wf-1", resp.Workflows[0].ID)
	assert.Equal(t, 2, resp.Workflows[0].Nodes)
	assert.False(t, resp.Workflows[0].Active)
}

func TestHandleRun_Wait(t *testing.T) {
	s, _ := newTestServer(t)
	args := map[string]any{"id": "wf-1", "context": `{"name":"ann"}`, "wait": true}

	resp, err := s.handleRun(context.Background(), callRequest(args), args)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", resp.Status)
	require.NotNil(t, resp.Report)
	assert.Equal(t, "HELLO ANN", resp.Report.Context[domain.SlotAIResponse])
}

func TestHandleRun_Background(t *testing.T) {
	s, eng := newTestServer(t)
	args := map[string]any{"id": "wf-1"}

	resp, err := s.handleRun(context.Background(), callRequest(args), args)
	require.NoError(t, err)
	assert.Equal(t, "accepted", resp.Status)
	assert.Nil(t, resp.Report)

	assert.Eventually(t, func() bool {
		runs, _ := eng.Runs(context.Background(), "wf-1", 1)
		return len(runs) == 1 && runs[0].RunID == resp.RunID
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleRun_Errors(t *testing.T) {
	s, _ := newTestServer(t)

	args := map[string]any{"id": "wf-1", "context": "not json"}
	_, err := s.handleRun(context.Background(), callRequest(args), args)
	assert.Error(t, err)

	args = map[string]any{"id": "missing"}
	_, err = s.handleRun(context.Background(), callRequest(args), args)
	assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
}

func TestHandleActivation(t *testing.T) {
	s, _ := newTestServer(t)
	args := map[string]any{"id": "wf-1"}

	act, err := s.handleActivate(context.Background(), callRequest(args), args)
	require.NoError(t, err)
	assert.True(t, act.Active)
	assert.NotEmpty(t, act.Schedule)

	deact, err := s.handleDeactivate(context.Background(), callRequest(args), args)
	require.NoError(t, err)
	assert.False(t, deact.Noop)

	deact, err = s.handleDeactivate(context.Background(), callRequest(args), args)
	require.NoError(t, err)
	assert.True(t, deact.Noop)
}

func TestHandleGraphAndRuns(t *testing.T) {
	s, eng := newTestServer(t)
	report, err := eng.RunSync(context.Background(), "wf-1", map[string]any{"name": "x"})
	require.NoError(t, err)

	res, err := s.handleGraph(context.Background(), callRequest(map[string]any{"id": "wf-1", "run_id": report.RunID}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), "class ai succeeded;")

	res, err = s.handleGraph(context.Background(), callRequest(map[string]any{"id": "wf-1", "run_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleRuns(context.Background(), callRequest(map[string]any{"id": "wf-1", "limit": 5.0}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), report.RunID)
}

func TestHandleValidate(t *testing.T) {
	s, _ := newTestServer(t)

	res, err := s.handleValidate(context.Background(), callRequest(map[string]any{
		"definition": `{"id":"x","nodes":[{"id":"a","type":"trigger"},{"id":"b","type":"notify-email"}],"edges":[{"source":"a","target":"b"}]}`,
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), "b: no upstream transform")

	res, err = s.handleValidate(context.Background(), callRequest(map[string]any{
		"definition": `{"id":"x","nodes":[{"id":"a"}],"edges":[{"source":"a","target":"ghost"}]}`,
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
