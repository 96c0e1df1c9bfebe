package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/autoflow/pkg/adapters/memory"
	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/aretw0/autoflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_Contract(t *testing.T) {
	repo := memory.NewRepository()
	ports.RunWorkflowRepositoryContract(t, repo)
}

func TestMemoryRunLog_Contract(t *testing.T) {
	ports.RunRunLogContract(t, memory.NewRunLog(0))
}

func TestMemoryRunLog_Capacity(t *testing.T) {
	log := memory.NewRunLog(2)
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, log.Append(ctx, domain.RunRecord{RunID: id, WorkflowID: "wf"}))
	}

	recs, err := log.List(ctx, "wf", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "r3", recs[0].RunID)
	assert.Equal(t, "r2", recs[1].RunID)
}
