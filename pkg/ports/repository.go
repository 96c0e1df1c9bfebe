package ports

import (
	"context"

	"github.com/aretw0/autoflow/pkg/domain"
)

// WorkflowRepository persists workflow definitions.
type WorkflowRepository interface {
	// Get returns a copy of the stored workflow.
	// Returns domain.ErrWorkflowNotFound if the id does not exist.
	Get(ctx context.Context, id string) (*domain.Workflow, error)

	// List returns summaries of every stored workflow, most recently updated first.
	List(ctx context.Context) ([]domain.WorkflowSummary, error)

	// Create stores a new workflow with version 1.
	// Returns domain.ErrWriteConflict if the id is already taken.
	Create(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, error)

	// Replace overwrites an existing workflow and increments its version.
	// A non-zero wf.Version must match the stored version, otherwise
	// domain.ErrWriteConflict is returned. Returns domain.ErrWorkflowNotFound
	// when there is nothing to replace.
	Replace(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, error)

	// Delete removes a workflow.
	// Returns domain.ErrWorkflowNotFound if the id does not exist.
	Delete(ctx context.Context, id string) error
}

// RunLog records finished runs.
type RunLog interface {
	// Append stores a run record.
	Append(ctx context.Context, rec domain.RunRecord) error

	// List returns up to limit records for a workflow, newest first.
	// A limit <= 0 returns every retained record.
	List(ctx context.Context, workflowID string, limit int) ([]domain.RunRecord, error)
}
