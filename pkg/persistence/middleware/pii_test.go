package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/autoflow/pkg/adapters/memory"
	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/aretw0/autoflow/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	inner := memory.NewRunLog(10)
	log := middleware.NewPIIMiddleware(middleware.DefaultPIIPatterns)(inner)
	ctx := context.Background()

	rec := domain.RunRecord{
		RunID:      "r1",
		WorkflowID: "wf",
		Input: map[string]any{
			"identity": "a@x.com",
			"name":     "Sam",
			"answers":  map[string]any{"respondentEmail": "a@x.com", "rating": 5},
		},
	}
	require.NoError(t, log.Append(ctx, rec))

	assert.Equal(t, "a@x.com", rec.Input["identity"], "caller's record must not be modified")

	stored, err := log.List(ctx, "wf", 1)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "***", stored[0].Input["identity"])
	assert.Equal(t, "Sam", stored[0].Input["name"])
	answers := stored[0].Input["answers"].(map[string]any)
	assert.Equal(t, "***", answers["respondentEmail"])
	assert.Equal(t, 5, answers["rating"])
}
