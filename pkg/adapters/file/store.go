package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/autoflow/pkg/domain"
)

// Repository implements ports.WorkflowRepository on the local filesystem.
// Each workflow is one JSON file named <id>.json in BasePath.
type Repository struct {
	BasePath string

	mu  sync.Mutex
	now func() time.Time
}

// NewRepository creates a repository rooted at basePath.
// If basePath is empty, it defaults to ".autoflow/workflows".
func NewRepository(basePath string) *Repository {
	if basePath == "" {
		basePath = filepath.Join(".autoflow", "workflows")
	}
	return &Repository{BasePath: basePath, now: time.Now}
}

func (r *Repository) path(id string) (string, error) {
	// Dot-prefixed names are reserved for temp files and never listed.
	if id == "" || strings.HasPrefix(id, ".") || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: id %q cannot be used as a file name", domain.ErrInvalidWorkflow, id)
	}
	return filepath.Join(r.BasePath, id+".json"), nil
}

// Get reads the workflow file.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read(id)
}

func (r *Repository) read(id string) (*domain.Workflow, error) {
	p, err := r.path(id)
	if err != nil {
		return nil, domain.ErrWorkflowNotFound
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	var wf domain.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
	}
	return &wf, nil
}

// List returns summaries, most recently updated first.
// Files that fail to parse are skipped.
func (r *Repository) List(ctx context.Context) ([]domain.WorkflowSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.WorkflowSummary{}, nil
		}
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	out := make([]domain.WorkflowSummary, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, ".") {
			continue
		}
		wf, err := r.read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		out = append(out, wf.Summary())
	}
	domain.SortSummaries(out)
	return out, nil
}

// Create writes a new workflow file with version 1.
func (r *Repository) Create(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.path(wf.ID)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(p); err == nil {
		return nil, fmt.Errorf("%w: id %q already exists", domain.ErrWriteConflict, wf.ID)
	}

	stored := wf.Clone()
	now := r.now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	stored.Version = 1

	if err := r.write(stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// Replace overwrites an existing workflow file, enforcing optimistic versioning.
func (r *Repository) Replace(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.read(wf.ID)
	if err != nil {
		return nil, err
	}
	if wf.Version != 0 && wf.Version != current.Version {
		return nil, fmt.Errorf("%w: have version %d, stored %d", domain.ErrWriteConflict, wf.Version, current.Version)
	}

	stored := wf.Clone()
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = r.now().UTC()
	stored.Version = current.Version + 1

	if err := r.write(stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// Delete removes the workflow file.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.path(id)
	if err != nil {
		return domain.ErrWorkflowNotFound
	}
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return domain.ErrWorkflowNotFound
		}
		return fmt.Errorf("failed to delete workflow file: %w", err)
	}
	return nil
}

// write persists the workflow atomically: temp file, fsync, rename.
func (r *Repository) write(wf *domain.Workflow) error {
	if err := os.MkdirAll(r.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure workflow directory: %w", err)
	}

	dest, err := r.path(wf.ID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	tmp, err := os.CreateTemp(r.BasePath, ".tmp-"+wf.ID+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Windows refuses to rename over an existing file.
	if _, err := os.Stat(dest); err == nil {
		if err := os.Remove(dest); err != nil {
			return fmt.Errorf("failed to remove existing workflow file: %w", err)
		}
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
