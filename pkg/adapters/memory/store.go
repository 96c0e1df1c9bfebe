package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/autoflow/pkg/domain"
)

// Repository implements ports.WorkflowRepository in memory.
// Safe for concurrent use.
type Repository struct {
	data map[string]*domain.Workflow
	mu   sync.RWMutex
	now  func() time.Time
}

// NewRepository creates a new in-memory workflow repository.
func NewRepository() *Repository {
	return &Repository{
		data: make(map[string]*domain.Workflow),
		now:  time.Now,
	}
}

// Get retrieves a copy of the workflow, so callers can't mutate the stored graph by pointer.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, ok := r.data[id]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	return wf.Clone(), nil
}

// List returns summaries, most recently updated first.
func (r *Repository) List(ctx context.Context) ([]domain.WorkflowSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.WorkflowSummary, 0, len(r.data))
	for _, wf := range r.data {
		out = append(out, wf.Summary())
	}
	domain.SortSummaries(out)
	return out, nil
}

// Create stores a new workflow.
func (r *Repository) Create(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data[wf.ID]; exists {
		return nil, fmt.Errorf("%w: id %q already exists", domain.ErrWriteConflict, wf.ID)
	}

	stored := wf.Clone()
	now := r.now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	stored.Version = 1

	r.data[stored.ID] = stored
	return stored.Clone(), nil
}

// Replace overwrites an existing workflow, enforcing optimistic versioning.
func (r *Repository) Replace(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.data[wf.ID]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	if wf.Version != 0 && wf.Version != current.Version {
		return nil, fmt.Errorf("%w: have version %d, stored %d", domain.ErrWriteConflict, wf.Version, current.Version)
	}

	stored := wf.Clone()
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = r.now().UTC()
	stored.Version = current.Version + 1

	r.data[stored.ID] = stored
	return stored.Clone(), nil
}

// Delete removes the workflow.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[id]; !ok {
		return domain.ErrWorkflowNotFound
	}
	delete(r.data, id)
	return nil
}
