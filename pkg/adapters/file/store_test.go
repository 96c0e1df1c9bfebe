package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/autoflow/pkg/adapters/file"
	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/aretw0/autoflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.WorkflowRepository = (*file.Repository)(nil)

func TestFileRepository_Contract(t *testing.T) {
	ports.RunWorkflowRepositoryContract(t, file.NewRepository(t.TempDir()))
}

func TestFileRepository_RejectsPathIDs(t *testing.T) {
	repo := file.NewRepository(t.TempDir())
	ctx := context.Background()

	_, err := repo.Create(ctx, &domain.Workflow{ID: "../escape"})
	assert.ErrorIs(t, err, domain.ErrInvalidWorkflow)

	_, err = repo.Get(ctx, "../escape")
	assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)

	_, err = repo.Create(ctx, &domain.Workflow{ID: ".hidden"})
	assert.ErrorIs(t, err, domain.ErrInvalidWorkflow)
}

func TestFileRepository_ListsTmpPrefixedIDs(t *testing.T) {
	dir := t.TempDir()
	repo := file.NewRepository(dir)
	ctx := context.Background()

	_, err := repo.Create(ctx, &domain.Workflow{ID: "tmp-report", Name: "Report"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-wf-1-123.json"), []byte("{"), 0o644))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "tmp-report", list[0].ID)
}

func TestFileRepository_ListSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	repo := file.NewRepository(dir)
	ctx := context.Background()

	_, err := repo.Create(ctx, &domain.Workflow{ID: "wf-1", Name: "One"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "wf-1", list[0].ID)
}

func TestFileRepository_ListMissingDir(t *testing.T) {
	repo := file.NewRepository(filepath.Join(t.TempDir(), "absent"))
	list, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}
