package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunWorkflowRepositoryContract runs a suite of tests to verify that a WorkflowRepository
// implementation adheres to the defined interface contract.
func RunWorkflowRepositoryContract(t *testing.T, repo WorkflowRepository) {
	ctx := context.Background()
	prefix := "contract-wf-" + time.Now().Format("20060102150405")

	sample := func(id string) *domain.Workflow {
		return &domain.Workflow{
			ID:   id,
			Name: "Contract " + id,
			Nodes: []domain.Node{
				{ID: "t", Capability: domain.CapabilityTrigger},
				{ID: "f", Capability: domain.CapabilityFetch, Config: map[string]string{"url": "http://example.test"}},
			},
			Edges: []domain.Edge{{Source: "t", Target: "f"}},
		}
	}

	t.Run("Create and Get", func(t *testing.T) {
		id := prefix + "-create"
		created, err := repo.Create(ctx, sample(id))
		require.NoError(t, err, "Create should not return error")
		assert.Equal(t, int64(1), created.Version)

		loaded, err := repo.Get(ctx, id)
		require.NoError(t, err, "Get should not return error")
		assert.Equal(t, "Contract "+id, loaded.Name)
		require.Len(t, loaded.Nodes, 2)
		assert.Equal(t, domain.CapabilityFetch, loaded.Nodes[1].Capability)
		assert.Equal(t, "http://example.test", loaded.Nodes[1].Config["url"])
		assert.Len(t, loaded.Edges, 1)
	})

	t.Run("Create Duplicate", func(t *testing.T) {
		id := prefix + "-dup"
		_, err := repo.Create(ctx, sample(id))
		require.NoError(t, err)

		_, err = repo.Create(ctx, sample(id))
		assert.ErrorIs(t, err, domain.ErrWriteConflict)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := repo.Get(ctx, "non-existent-"+prefix)
		assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
	})

	t.Run("Get Returns Copy", func(t *testing.T) {
		id := prefix + "-copy"
		_, err := repo.Create(ctx, sample(id))
		require.NoError(t, err)

		first, err := repo.Get(ctx, id)
		require.NoError(t, err)
		first.Nodes[1].Config["url"] = "http://mutated"

		second, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "http://example.test", second.Nodes[1].Config["url"])
	})

	t.Run("Replace Increments Version", func(t *testing.T) {
		id := prefix + "-replace"
		created, err := repo.Create(ctx, sample(id))
		require.NoError(t, err)

		created.Name = "Renamed"
		replaced, err := repo.Replace(ctx, created)
		require.NoError(t, err)
		assert.Equal(t, int64(2), replaced.Version)

		loaded, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", loaded.Name)
		assert.Equal(t, int64(2), loaded.Version)
	})

	t.Run("Replace Stale Version", func(t *testing.T) {
		id := prefix + "-stale"
		created, err := repo.Create(ctx, sample(id))
		require.NoError(t, err)

		_, err = repo.Replace(ctx, created)
		require.NoError(t, err)

		// created still carries version 1
		_, err = repo.Replace(ctx, created)
		assert.ErrorIs(t, err, domain.ErrWriteConflict)
	})

	t.Run("Replace Non-Existent", func(t *testing.T) {
		_, err := repo.Replace(ctx, sample("non-existent-"+prefix))
		assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		id := prefix + "-delete"
		_, err := repo.Create(ctx, sample(id))
		require.NoError(t, err)

		require.NoError(t, repo.Delete(ctx, id), "Delete should not return error")

		_, err = repo.Get(ctx, id)
		assert.ErrorIs(t, err, domain.ErrWorkflowNotFound, "Get after Delete should return ErrWorkflowNotFound")

		assert.ErrorIs(t, repo.Delete(ctx, id), domain.ErrWorkflowNotFound)
	})

	t.Run("List", func(t *testing.T) {
		id1 := prefix + "-list-1"
		id2 := prefix + "-list-2"
		_, err := repo.Create(ctx, sample(id1))
		require.NoError(t, err)
		_, err = repo.Create(ctx, sample(id2))
		require.NoError(t, err)

		summaries, err := repo.List(ctx)
		require.NoError(t, err)

		ids := make([]string, 0, len(summaries))
		for _, s := range summaries {
			ids = append(ids, s.ID)
			if s.ID == id1 {
				assert.Equal(t, 2, s.Nodes)
				assert.Equal(t, 1, s.Edges)
			}
		}
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}

// RunRunLogContract verifies that a RunLog implementation adheres to the interface contract.
func RunRunLogContract(t *testing.T, log RunLog) {
	ctx := context.Background()
	wfID := "contract-log-" + time.Now().Format("20060102150405")

	t.Run("Append and List Newest First", func(t *testing.T) {
		base := time.Now().UTC()
		for i := 0; i < 3; i++ {
			err := log.Append(ctx, domain.RunRecord{
				RunID:      fmt.Sprintf("run-%d", i),
				WorkflowID: wfID,
				Status:     domain.RunStatusSuccess,
				Mode:       domain.RunModeManual,
				Timestamp:  base.Add(time.Duration(i) * time.Second),
			})
			require.NoError(t, err)
		}

		all, err := log.List(ctx, wfID, 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "run-2", all[0].RunID)
		assert.Equal(t, "run-0", all[2].RunID)

		limited, err := log.List(ctx, wfID, 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("List Unknown Workflow", func(t *testing.T) {
		recs, err := log.List(ctx, "unknown-"+wfID, 10)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})
}
