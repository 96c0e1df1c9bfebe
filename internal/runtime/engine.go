package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/autoflow/internal/logging"
	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Engine walks workflow graphs, dispatching each reachable node exactly once per run.
type Engine struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
	hooks      domain.LifecycleHooks
	newID      func() string
	now        func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithRunIDGenerator replaces the run id generator.
func WithRunIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newID = fn
	}
}

// NewEngine creates a new engine around a dispatcher.
func NewEngine(dispatcher *Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		dispatcher: dispatcher,
		logger:     logging.NewNop(),
		newID:      uuid.NewString,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewRunID returns a fresh run identifier.
func (e *Engine) NewRunID() string {
	return e.newID()
}

// Run executes one traversal of wf and blocks until every branch has settled.
// Node failures never abort the run; they are recorded in the returned report.
func (e *Engine) Run(ctx context.Context, wf *domain.Workflow, mode domain.RunMode, seed map[string]any) *domain.RunReport {
	return e.RunWithID(ctx, e.newID(), wf, mode, seed)
}

// RunWithID is Run with a caller-chosen run id.
func (e *Engine) RunWithID(ctx context.Context, runID string, wf *domain.Workflow, mode domain.RunMode, seed map[string]any) *domain.RunReport {
	snapshot := wf.Clone()
	r := &run{
		engine:  e,
		graph:   domain.NewGraph(snapshot),
		ec:      domain.NewExecutionContext(seedContext(seed)),
		visited: &visitedSet{},
		logger: e.logger.With(
			"run_id", runID,
			"workflow_id", snapshot.ID,
			"mode", mode,
		),
		report: &domain.RunReport{
			RunID:        runID,
			WorkflowID:   snapshot.ID,
			WorkflowName: snapshot.Name,
			Mode:         mode,
			StartedAt:    e.now().UTC(),
		},
	}

	base := domain.EventBase{RunID: runID, WorkflowID: snapshot.ID, Mode: mode}
	if e.hooks.OnRunStart != nil {
		ev := &domain.RunEvent{EventBase: base}
		ev.Type, ev.Timestamp = domain.EventRunStart, e.now()
		e.hooks.OnRunStart(ctx, ev)
	}

	r.logger.Info("run started", "workflow_name", snapshot.Name)
	if start, ok := r.graph.Start(); ok {
		r.visit(ctx, start.ID)
	} else {
		r.logger.Info("workflow has no start node, nothing to run")
	}

	r.report.FinishedAt = e.now().UTC()
	r.report.Context = r.ec.Snapshot()
	r.logger.Info("run completed",
		"nodes", len(r.report.Outcomes),
		"failed", r.report.Failed(),
		"duration", r.report.FinishedAt.Sub(r.report.StartedAt),
	)

	if e.hooks.OnRunComplete != nil {
		ev := &domain.RunEvent{EventBase: base, Report: r.report}
		ev.Type, ev.Timestamp = domain.EventRunComplete, e.now()
		e.hooks.OnRunComplete(ctx, ev)
	}
	return r.report
}

// seedContext copies the seed and, when it carries data but no explicit payload,
// exposes the seed itself as the payload slot for downstream transforms.
func seedContext(seed map[string]any) map[string]any {
	out := make(map[string]any, len(seed)+1)
	for k, v := range seed {
		out[k] = v
	}
	if len(seed) == 0 {
		return out
	}
	if _, ok := out[domain.SlotPayload]; !ok {
		if b, err := json.Marshal(seed); err == nil {
			out[domain.SlotPayload] = string(b)
		}
	}
	return out
}

// run holds the state of a single traversal.
type run struct {
	engine  *Engine
	graph   *domain.Graph
	ec      *domain.ExecutionContext
	visited *visitedSet
	logger  *slog.Logger

	mu     sync.Mutex
	report *domain.RunReport
}

func (r *run) visit(ctx context.Context, id string) {
	if !r.visited.claim(id) {
		return
	}
	node, ok := r.graph.Node(id)
	if !ok {
		// Dangling edge: the branch just ends.
		return
	}

	outcome := r.execute(ctx, node)
	if outcome.Status == domain.StatusShortCircuited {
		return
	}

	var g errgroup.Group
	for _, edge := range r.graph.Outgoing(id) {
		target := edge.Target
		g.Go(func() error {
			r.visit(ctx, target)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *run) execute(ctx context.Context, node *domain.Node) domain.Outcome {
	e := r.engine
	base := domain.EventBase{RunID: r.report.RunID, WorkflowID: r.report.WorkflowID, Mode: r.report.Mode}

	if e.hooks.OnNodeEnter != nil {
		ev := &domain.NodeEvent{EventBase: base, NodeID: node.ID, Capability: node.Capability}
		ev.Type, ev.Timestamp = domain.EventNodeEnter, e.now()
		e.hooks.OnNodeEnter(ctx, ev)
	}

	started := e.now()
	res := e.dispatcher.Dispatch(ctx, node, r.ec)
	outcome := domain.Outcome{
		NodeID:     node.ID,
		Capability: node.Capability,
		Status:     res.Status,
		Reason:     res.Reason,
		StartedAt:  started.UTC(),
		Duration:   e.now().Sub(started),
	}
	if res.Err != nil {
		outcome.Error = res.Err.Error()
	}

	r.mu.Lock()
	r.report.Outcomes = append(r.report.Outcomes, outcome)
	r.mu.Unlock()

	r.log(node, outcome, res.Err)

	if e.hooks.OnNodeLeave != nil {
		ev := &domain.NodeEvent{EventBase: base, NodeID: node.ID, Capability: node.Capability, Outcome: &outcome}
		ev.Type, ev.Timestamp = domain.EventNodeLeave, e.now()
		e.hooks.OnNodeLeave(ctx, ev)
	}
	return outcome
}

func (r *run) log(node *domain.Node, o domain.Outcome, err error) {
	attrs := []any{
		"node_id", node.ID,
		"label", node.Label,
		"capability", node.Capability,
		"status", o.Status,
		"duration", o.Duration,
	}
	if o.Reason != "" {
		attrs = append(attrs, "reason", o.Reason)
	}

	switch o.Status {
	case domain.StatusFailed:
		if err != nil {
			attrs = append(attrs, "err", err)
		}
		r.logger.Warn("node failed", attrs...)
	case domain.StatusSucceeded:
		r.logger.Info("node executed", attrs...)
	default:
		r.logger.Debug("node did not execute", attrs...)
	}
}
