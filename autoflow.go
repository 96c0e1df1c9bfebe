package autoflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/autoflow/internal/logging"
	"github.com/aretw0/autoflow/internal/runtime"
	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/aretw0/autoflow/pkg/observability"
	"github.com/aretw0/autoflow/pkg/ports"
	"github.com/aretw0/autoflow/pkg/scheduler"
	"github.com/google/uuid"
)

// ErrClosed is returned when a run is requested after Shutdown.
var ErrClosed = domain.ErrEngineClosed

// identityFields are the payload keys that can carry the run identity, in priority order.
var identityFields = []string{"identity", "email", "respondentEmail"}

// Engine is the high-level entry point for AutoFlow.
// It owns workflow storage, the activation registry and every run it starts.
type Engine struct {
	repo      ports.WorkflowRepository
	runLog    ports.RunLog
	runtime   *runtime.Engine
	scheduler *scheduler.Scheduler
	metrics   *observability.Metrics
	logger    *slog.Logger

	hooks        domain.LifecycleHooks
	providers    ports.Providers
	schedule     string
	cooldown     *time.Duration
	fetchTimeout time.Duration
	newID        func() string

	mu     sync.Mutex
	closed bool
	runs   sync.WaitGroup
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithProviders injects the external clients used by node handlers.
func WithProviders(p ports.Providers) Option {
	return func(e *Engine) {
		e.providers = p
	}
}

// WithSchedule sets the default cron spec of activated workflows.
func WithSchedule(spec string) Option {
	return func(e *Engine) {
		e.schedule = spec
	}
}

// WithCooldown overrides the pause before each text generation call.
func WithCooldown(d time.Duration) Option {
	return func(e *Engine) {
		e.cooldown = &d
	}
}

// WithFetchTimeout bounds the fetch capability.
func WithFetchTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.fetchTimeout = d
	}
}

// WithRunLog records a summary of every finished run.
func WithRunLog(l ports.RunLog) Option {
	return func(e *Engine) {
		e.runLog = l
	}
}

// WithMetrics exports run and node metrics to m.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithIDGenerator replaces the generator of workflow and run ids.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newID = fn
	}
}

// New initializes an Engine backed by repo.
// The activation timers do not fire until Start is called.
func New(repo ports.WorkflowRepository, opts ...Option) (*Engine, error) {
	if repo == nil {
		return nil, fmt.Errorf("workflow repository is required")
	}

	e := &Engine{
		repo:     repo,
		logger:   logging.NewNop(),
		schedule: scheduler.DefaultSchedule,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}

	dispatchOpts := []runtime.DispatcherOption{runtime.WithDispatchLogger(e.logger)}
	if e.cooldown != nil {
		dispatchOpts = append(dispatchOpts, runtime.WithCooldown(*e.cooldown))
	}
	if e.fetchTimeout > 0 {
		dispatchOpts = append(dispatchOpts, runtime.WithFetchTimeout(e.fetchTimeout))
	}

	hooks := e.hooks
	if e.metrics != nil {
		hooks = domain.CombineHooks(e.metrics.Hooks(), hooks)
	}

	e.runtime = runtime.NewEngine(
		runtime.NewDispatcher(e.providers, dispatchOpts...),
		runtime.WithLogger(e.logger),
		runtime.WithLifecycleHooks(hooks),
		runtime.WithRunIDGenerator(e.newID),
	)
	e.scheduler = scheduler.New(repo, e.scheduledRun,
		scheduler.WithSchedule(e.schedule),
		scheduler.WithLogger(e.logger.With("component", "scheduler")),
	)
	return e, nil
}

// Start begins firing the timers of activated workflows.
func (e *Engine) Start() {
	e.scheduler.Start()
}

// Shutdown stops the timers, refuses new runs and waits for in-flight runs, bounded by ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	if err := e.scheduler.Stop(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		e.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- Workflow storage ---

// Get loads a workflow by id.
func (e *Engine) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	return e.repo.Get(ctx, id)
}

// List returns summaries of every stored workflow, most recently updated first.
func (e *Engine) List(ctx context.Context) ([]domain.WorkflowSummary, error) {
	return e.repo.List(ctx)
}

// Create validates and stores a new workflow. An empty id is replaced with a generated one.
func (e *Engine) Create(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, error) {
	wf = wf.Clone()
	if strings.TrimSpace(wf.ID) == "" {
		wf.ID = e.newID()
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}

	stored, err := e.repo.Create(ctx, wf)
	if err != nil {
		return nil, err
	}
	e.logger.Info("workflow created", "workflow_id", stored.ID, "workflow_name", stored.Name)
	return stored, nil
}

// Update replaces the stored workflow id with wf.
// A non-zero wf.Version must match the stored version.
// An active workflow is re-armed so a changed schedule takes effect.
func (e *Engine) Update(ctx context.Context, id string, wf *domain.Workflow) (*domain.Workflow, error) {
	wf = wf.Clone()
	wf.ID = id
	if err := wf.Validate(); err != nil {
		return nil, err
	}

	stored, err := e.repo.Replace(ctx, wf)
	if err != nil {
		return nil, err
	}
	e.logger.Info("workflow updated", "workflow_id", id, "version", stored.Version)

	if _, err := e.scheduler.Rearm(ctx, id); err != nil && !errors.Is(err, domain.ErrNotActive) {
		e.logger.Warn("failed to re-arm active workflow", "workflow_id", id, "err", err)
	}
	return stored, nil
}

// Delete removes a workflow and its timer, if any.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := e.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := e.scheduler.Deactivate(ctx, id); err == nil {
		e.updateActiveGauge()
	}
	e.logger.Info("workflow deleted", "workflow_id", id)
	return nil
}

// Runs lists the most recent run records of a workflow, newest first.
// It returns an empty list when no run log is configured.
func (e *Engine) Runs(ctx context.Context, id string, limit int) ([]domain.RunRecord, error) {
	if e.runLog == nil {
		return []domain.RunRecord{}, nil
	}
	return e.runLog.List(ctx, id, limit)
}

// --- Activation ---

// Activate installs a recurring timer for the workflow, replacing any existing one.
func (e *Engine) Activate(ctx context.Context, id string) (*scheduler.Activation, error) {
	act, err := e.scheduler.Activate(ctx, id)
	if err != nil {
		return nil, err
	}
	e.updateActiveGauge()
	return act, nil
}

// Deactivate removes the workflow's timer. It returns domain.ErrNotActive when none existed.
func (e *Engine) Deactivate(ctx context.Context, id string) error {
	if err := e.scheduler.Deactivate(ctx, id); err != nil {
		return err
	}
	e.updateActiveGauge()
	return nil
}

// IsActive reports whether the workflow has a live timer.
func (e *Engine) IsActive(id string) bool {
	return e.scheduler.IsActive(id)
}

// Active lists every live activation.
func (e *Engine) Active() []scheduler.Activation {
	return e.scheduler.Active()
}

// NextRun returns the next fire time of an active workflow.
func (e *Engine) NextRun(id string) (time.Time, bool) {
	return e.scheduler.NextRun(id)
}

func (e *Engine) updateActiveGauge() {
	if e.metrics != nil {
		e.metrics.SetActiveWorkflows(len(e.scheduler.Active()))
	}
}

// --- Runs ---

// RunOnce starts a manual run in the background and returns its id.
// The run is detached from ctx; only loading the workflow honours it.
func (e *Engine) RunOnce(ctx context.Context, id string, seed map[string]any) (string, error) {
	wf, err := e.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return e.launch(ctx, wf, domain.RunModeManual, seed)
}

// Receive starts a triggered run from an inbound event payload and returns its id.
// Every payload field is copied into the execution context, and the identity slot
// is taken from the first of identity, email or respondentEmail.
func (e *Engine) Receive(ctx context.Context, id string, payload map[string]any) (string, error) {
	wf, err := e.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return e.launch(ctx, wf, domain.RunModeTriggered, SeedFromPayload(payload))
}

// RunSync runs a stored workflow in the foreground and returns its report.
func (e *Engine) RunSync(ctx context.Context, id string, seed map[string]any) (*domain.RunReport, error) {
	wf, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, wf, domain.RunModeManual, seed)
}

// Execute runs wf in the foreground without storing it first.
func (e *Engine) Execute(ctx context.Context, wf *domain.Workflow, mode domain.RunMode, seed map[string]any) (*domain.RunReport, error) {
	if err := e.track(); err != nil {
		return nil, err
	}
	defer e.runs.Done()
	return e.execute(ctx, e.newID(), wf, mode, seed), nil
}

// SeedFromPayload builds the initial execution context of a triggered run.
func SeedFromPayload(payload map[string]any) map[string]any {
	seed := maps.Clone(payload)
	if seed == nil {
		seed = map[string]any{}
	}
	for _, key := range identityFields {
		if s, ok := payload[key].(string); ok && strings.TrimSpace(s) != "" {
			seed[domain.SlotIdentity] = strings.TrimSpace(s)
			break
		}
	}
	return seed
}

func (e *Engine) launch(ctx context.Context, wf *domain.Workflow, mode domain.RunMode, seed map[string]any) (string, error) {
	if err := e.track(); err != nil {
		return "", err
	}
	runID := e.newID()
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer e.runs.Done()
		e.execute(runCtx, runID, wf, mode, seed)
	}()
	return runID, nil
}

func (e *Engine) scheduledRun(ctx context.Context, wf *domain.Workflow) {
	if err := e.track(); err != nil {
		e.logger.Debug("skipping scheduled run", "workflow_id", wf.ID, "err", err)
		return
	}
	defer e.runs.Done()
	e.execute(ctx, e.newID(), wf, domain.RunModeScheduled, nil)
}

// track registers a run with the shutdown wait group.
func (e *Engine) track() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.runs.Add(1)
	return nil
}

func (e *Engine) execute(ctx context.Context, runID string, wf *domain.Workflow, mode domain.RunMode, seed map[string]any) *domain.RunReport {
	report := e.runtime.RunWithID(ctx, runID, wf, mode, seed)
	if e.runLog == nil {
		return report
	}

	if err := e.runLog.Append(ctx, NewRunRecord(report, seed)); err != nil {
		e.logger.Error("failed to record run", "run_id", runID, "workflow_id", wf.ID, "err", err)
	}
	return report
}

// NewRunRecord summarizes a run report for the run log.
func NewRunRecord(report *domain.RunReport, input map[string]any) domain.RunRecord {
	rec := domain.RunRecord{
		RunID:        report.RunID,
		WorkflowID:   report.WorkflowID,
		WorkflowName: report.WorkflowName,
		Mode:         report.Mode,
		Status:       domain.RunStatusSuccess,
		Input:        maps.Clone(input),
		Outcomes:     append([]domain.Outcome(nil), report.Outcomes...),
		Timestamp:    report.FinishedAt,
	}
	if s, ok := report.Context[domain.SlotAIResponse].(string); ok {
		rec.AIResponse = s
	}

	var failures []string
	for _, o := range report.Outcomes {
		if o.Status != domain.StatusFailed {
			continue
		}
		msg := o.NodeID + ": " + o.Reason
		if o.Error != "" {
			msg += ": " + o.Error
		}
		failures = append(failures, msg)
	}
	if len(failures) > 0 {
		rec.Status = domain.RunStatusFailed
		rec.Error = strings.Join(failures, "; ")
	}
	return rec
}
