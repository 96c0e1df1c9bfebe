package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/autoflow/pkg/adapters/memory"
	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runRecorder struct {
	mu   sync.Mutex
	runs []*domain.Workflow
}

func (r *runRecorder) run(ctx context.Context, wf *domain.Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, wf)
}

func (r *runRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func seedRepo(t *testing.T, ids ...string) *memory.Repository {
	t.Helper()
	repo := memory.NewRepository()
	for _, id := range ids {
		_, err := repo.Create(context.Background(), &domain.Workflow{
			ID:    id,
			Name:  "wf " + id,
			Nodes: []domain.Node{{ID: "t", Capability: domain.CapabilityTrigger}},
		})
		require.NoError(t, err)
	}
	return repo
}

func TestActivate_TwiceLeavesOneTimer(t *testing.T) {
	rec := &runRecorder{}
	s := New(seedRepo(t, "wf-1"), rec.run)
	ctx := context.Background()

	_, err := s.Activate(ctx, "wf-1")
	require.NoError(t, err)
	_, err = s.Activate(ctx, "wf-1")
	require.NoError(t, err)

	assert.Len(t, s.cron.Entries(), 1)
	assert.True(t, s.IsActive("wf-1"))

	require.NoError(t, s.Deactivate(ctx, "wf-1"))
	assert.Empty(t, s.cron.Entries())
	assert.False(t, s.IsActive("wf-1"))
}

func TestDeactivate_WithoutRecordIsNoOp(t *testing.T) {
	s := New(seedRepo(t, "wf-1"), (&runRecorder{}).run)

	err := s.Deactivate(context.Background(), "wf-1")
	assert.ErrorIs(t, err, domain.ErrNotActive)

	err = s.Deactivate(context.Background(), "never-existed")
	assert.ErrorIs(t, err, domain.ErrNotActive)
}

func TestActivate_UnknownWorkflow(t *testing.T) {
	s := New(seedRepo(t), (&runRecorder{}).run)

	_, err := s.Activate(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
	assert.Empty(t, s.Active())
}

func TestActivate_ConcurrentCallsKeepSingleTimer(t *testing.T) {
	s := New(seedRepo(t, "wf-1", "wf-2"), (&runRecorder{}).run)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.Activate(ctx, "wf-1")
		}()
		go func() {
			defer wg.Done()
			_, _ = s.Activate(ctx, "wf-2")
		}()
	}
	wg.Wait()

	assert.Len(t, s.cron.Entries(), 2)
	active := s.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "wf-1", active[0].WorkflowID)
	assert.Equal(t, "wf-2", active[1].WorkflowID)

	s.mu.Lock()
	assert.Empty(t, s.locks, "lock entries must be released")
	s.mu.Unlock()
}

func TestRearm_OnlyReplacesLiveTimers(t *testing.T) {
	s := New(seedRepo(t, "wf-1"), (&runRecorder{}).run)
	ctx := context.Background()

	_, err := s.Rearm(ctx, "wf-1")
	assert.ErrorIs(t, err, domain.ErrNotActive)
	assert.False(t, s.IsActive("wf-1"))
	assert.Empty(t, s.cron.Entries())

	_, err = s.Activate(ctx, "wf-1")
	require.NoError(t, err)
	act, err := s.Rearm(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, act.Schedule)
	assert.Len(t, s.cron.Entries(), 1)
}

func TestRearm_NeverUndoesDeactivate(t *testing.T) {
	s := New(seedRepo(t, "wf-1"), (&runRecorder{}).run)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, err := s.Activate(ctx, "wf-1")
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.Rearm(ctx, "wf-1")
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Deactivate(ctx, "wf-1"))
		}()
		wg.Wait()

		require.False(t, s.IsActive("wf-1"), "iteration %d", i)
		require.Empty(t, s.cron.Entries())
	}
}

func TestTick_LoadsCurrentSnapshot(t *testing.T) {
	rec := &runRecorder{}
	repo := seedRepo(t, "wf-1")
	s := New(repo, rec.run)
	ctx := context.Background()

	_, err := s.Activate(ctx, "wf-1")
	require.NoError(t, err)

	wf, err := repo.Get(ctx, "wf-1")
	require.NoError(t, err)
	wf.Name = "edited after activation"
	_, err = repo.Replace(ctx, wf)
	require.NoError(t, err)

	s.tick("wf-1")

	require.Equal(t, 1, rec.count())
	assert.Equal(t, "edited after activation", rec.runs[0].Name)
}

func TestTick_DeletedWorkflowIsIgnored(t *testing.T) {
	rec := &runRecorder{}
	repo := seedRepo(t, "wf-1")
	s := New(repo, rec.run)

	require.NoError(t, repo.Delete(context.Background(), "wf-1"))
	s.tick("wf-1")

	assert.Equal(t, 0, rec.count())
}

func TestSchedule_TriggerOverride(t *testing.T) {
	repo := memory.NewRepository()
	ctx := context.Background()
	_, err := repo.Create(ctx, &domain.Workflow{
		ID:    "custom",
		Nodes: []domain.Node{{ID: "t", Capability: domain.CapabilityTrigger, Config: map[string]string{"schedule": "*/5 * * * *"}}},
	})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &domain.Workflow{
		ID:    "broken",
		Nodes: []domain.Node{{ID: "t", Capability: domain.CapabilityTrigger, Config: map[string]string{"schedule": "every tuesday"}}},
	})
	require.NoError(t, err)

	s := New(repo, (&runRecorder{}).run, WithInterval(30*time.Second))

	act, err := s.Activate(ctx, "custom")
	require.NoError(t, err)
	assert.Equal(t, "*/5 * * * *", act.Schedule)

	_, err = s.Activate(ctx, "broken")
	assert.ErrorIs(t, err, domain.ErrInvalidWorkflow)
	assert.False(t, s.IsActive("broken"))
}

func TestScheduler_FiresAndStops(t *testing.T) {
	rec := &runRecorder{}
	s := New(seedRepo(t, "wf-1"), rec.run, WithSchedule("@every 1s"))
	ctx := context.Background()

	_, err := s.Activate(ctx, "wf-1")
	require.NoError(t, err)

	s.Start()
	assert.Eventually(t, func() bool { return rec.count() >= 1 }, 3*time.Second, 50*time.Millisecond)

	next, ok := s.NextRun("wf-1")
	require.True(t, ok)
	assert.False(t, next.IsZero())

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
}
