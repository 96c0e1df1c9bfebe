package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/autoflow/internal/logging"
	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/aretw0/autoflow/pkg/ports"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule fires once a minute.
const DefaultSchedule = "@every 1m"

// ScheduleKey is the trigger node config key that overrides the default schedule.
const ScheduleKey = "schedule"

// RunFunc starts a scheduled run of the given workflow snapshot.
type RunFunc func(ctx context.Context, wf *domain.Workflow)

// Activation is the record of a live recurring timer.
type Activation struct {
	WorkflowID  string           `json:"workflow_id"`
	Schedule    string           `json:"schedule"`
	ActivatedAt time.Time        `json:"activated_at"`
	Snapshot    *domain.Workflow `json:"-"`

	entryID cron.EntryID
}

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Scheduler manages recurring runs of workflows.
type Scheduler struct {
	repo     ports.WorkflowRepository
	run      RunFunc
	cron     *cron.Cron
	parser   cron.Parser
	schedule string
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	recMu   sync.RWMutex
	records map[string]*Activation
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithSchedule sets the default cron spec (e.g. "@every 30s", "*/5 * * * *").
func WithSchedule(spec string) Option {
	return func(s *Scheduler) {
		s.schedule = spec
	}
}

// WithInterval sets the default schedule to a fixed interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.schedule = "@every " + d.String()
	}
}

// WithLogger configures a logger for the Scheduler.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// New creates a scheduler that loads workflows from repo and hands each tick to run.
// The timer loop does not fire until Start is called.
func New(repo ports.WorkflowRepository, run RunFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		repo:     repo,
		run:      run,
		schedule: DefaultSchedule,
		logger:   logging.NewNop(),
		now:      time.Now,
		locks:    make(map[string]*lockEntry),
		records:  make(map[string]*Activation),
	}
	for _, opt := range opts {
		opt(s)
	}

	cl := cronLogger{s.logger}
	s.parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s.cron = cron.New(
		cron.WithParser(s.parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	return s
}

// Start begins firing timers.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the timer loop and waits for in-flight ticks, bounded by ctx.
// Activation records are kept so IsActive still reflects the registry.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Activate installs a recurring timer for the workflow, replacing any existing one.
func (s *Scheduler) Activate(ctx context.Context, id string) (*Activation, error) {
	return s.arm(ctx, id, false)
}

// Rearm reloads an active workflow and replaces its timer, so a changed
// schedule takes effect. It returns domain.ErrNotActive when the workflow
// has no timer; the check and the swap happen under the same per-id lock.
func (s *Scheduler) Rearm(ctx context.Context, id string) (*Activation, error) {
	return s.arm(ctx, id, true)
}

func (s *Scheduler) arm(ctx context.Context, id string, onlyActive bool) (*Activation, error) {
	var act *Activation
	err := s.withLock(id, func() error {
		if onlyActive && !s.IsActive(id) {
			return domain.ErrNotActive
		}
		wf, err := s.repo.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load workflow %q: %w", id, err)
		}

		spec := s.scheduleFor(wf)
		sched, err := s.parser.Parse(spec)
		if err != nil {
			return fmt.Errorf("%w: invalid schedule %q: %v", domain.ErrInvalidWorkflow, spec, err)
		}

		s.recMu.Lock()
		defer s.recMu.Unlock()

		if old, ok := s.records[id]; ok {
			s.cron.Remove(old.entryID)
			delete(s.records, id)
			s.logger.Info("replacing activation", "workflow_id", id)
		}

		entryID := s.cron.Schedule(sched, cron.FuncJob(func() { s.tick(id) }))

		act = &Activation{
			WorkflowID:  id,
			Schedule:    spec,
			ActivatedAt: s.now().UTC(),
			Snapshot:    wf,
			entryID:     entryID,
		}
		s.records[id] = act
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("workflow activated", "workflow_id", id, "schedule", act.Schedule)
	return act, nil
}

// Deactivate removes the workflow's timer. Runs already in flight are not affected.
// Returns domain.ErrNotActive when there was nothing to remove.
func (s *Scheduler) Deactivate(ctx context.Context, id string) error {
	return s.withLock(id, func() error {
		s.recMu.Lock()
		defer s.recMu.Unlock()

		act, ok := s.records[id]
		if !ok {
			return domain.ErrNotActive
		}
		s.cron.Remove(act.entryID)
		delete(s.records, id)
		s.logger.Info("workflow deactivated", "workflow_id", id)
		return nil
	})
}

// IsActive reports whether the workflow has a live timer.
func (s *Scheduler) IsActive(id string) bool {
	s.recMu.RLock()
	defer s.recMu.RUnlock()
	_, ok := s.records[id]
	return ok
}

// Active lists activation records ordered by workflow id.
func (s *Scheduler) Active() []Activation {
	s.recMu.RLock()
	defer s.recMu.RUnlock()

	out := make([]Activation, 0, len(s.records))
	for _, a := range s.records {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkflowID < out[j].WorkflowID })
	return out
}

// NextRun returns the next fire time of an active workflow.
func (s *Scheduler) NextRun(id string) (time.Time, bool) {
	s.recMu.RLock()
	act, ok := s.records[id]
	s.recMu.RUnlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(act.entryID).Next, true
}

// tick runs the current stored version of the workflow.
func (s *Scheduler) tick(id string) {
	ctx := context.Background()
	wf, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrWorkflowNotFound) {
			s.logger.Warn("scheduled workflow no longer exists", "workflow_id", id)
			return
		}
		s.logger.Error("failed to load scheduled workflow", "workflow_id", id, "err", err)
		return
	}
	s.logger.Debug("scheduled tick", "workflow_id", id, "workflow_name", wf.Name)
	s.run(ctx, wf)
}

// scheduleFor returns the trigger node's schedule override, or the default.
func (s *Scheduler) scheduleFor(wf *domain.Workflow) string {
	if start, ok := domain.NewGraph(wf).Start(); ok && start.Capability == domain.CapabilityTrigger {
		if spec := strings.TrimSpace(start.Config[ScheduleKey]); spec != "" {
			return spec
		}
	}
	return s.schedule
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(id) after unlocking.
func (s *Scheduler) acquire(id string) *lockEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.locks[id]
	if !exists {
		entry = &lockEntry{}
		s.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (s *Scheduler) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.locks[id]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(s.locks, id)
	}
}

// withLock executes fn while holding the lock for the workflow id.
func (s *Scheduler) withLock(id string, fn func() error) error {
	entry := s.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		s.release(id)
	}()
	return fn()
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
