package middleware_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aretw0/autoflow/pkg/adapters/memory"
	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/aretw0/autoflow/pkg/persistence/middleware"
	"github.com/aretw0/autoflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(b byte) []byte { return bytes.Repeat([]byte{b}, 32) }

func secretWorkflow() *domain.Workflow {
	return &domain.Workflow{
		ID: "wf-secret",
		Nodes: []domain.Node{{
			ID:         "http",
			Capability: domain.CapabilityFetch,
			Config:     map[string]string{"url": "https://api.example.test", "api_key": "sk-live-123"},
		}},
	}
}

func TestEncryptionMiddleware_SealsSecrets(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewRepository()
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key(1)})
	require.NoError(t, err)
	repo := mw(inner)

	created, err := repo.Create(ctx, secretWorkflow())
	require.NoError(t, err)
	assert.Equal(t, "sk-live-123", created.Nodes[0].Config["api_key"])

	raw, err := inner.Get(ctx, "wf-secret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw.Nodes[0].Config["api_key"], "enc:v1:"), "secret must be sealed at rest")
	assert.Equal(t, "https://api.example.test", raw.Nodes[0].Config["url"], "non-secret values stay readable")

	loaded, err := repo.Get(ctx, "wf-secret")
	require.NoError(t, err)
	assert.Equal(t, "sk-live-123", loaded.Nodes[0].Config["api_key"])

	loaded.Nodes[0].Config["api_key"] = "sk-live-456"
	replaced, err := repo.Replace(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, "sk-live-456", replaced.Nodes[0].Config["api_key"])
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewRepository()

	oldMW, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key(1)})
	require.NoError(t, err)
	_, err = oldMW(inner).Create(ctx, secretWorkflow())
	require.NoError(t, err)

	rotated, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key(2), FallbackKeys: [][]byte{key(1)}})
	require.NoError(t, err)
	loaded, err := rotated(inner).Get(ctx, "wf-secret")
	require.NoError(t, err)
	assert.Equal(t, "sk-live-123", loaded.Nodes[0].Config["api_key"])

	wrong, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key(3)})
	require.NoError(t, err)
	_, err = wrong(inner).Get(ctx, "wf-secret")
	assert.Error(t, err)
}

func TestEncryptionMiddleware_PlainValuesPassThrough(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewRepository()
	_, err := inner.Create(ctx, secretWorkflow())
	require.NoError(t, err)

	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key(1)})
	require.NoError(t, err)
	loaded, err := mw(inner).Get(ctx, "wf-secret")
	require.NoError(t, err)
	assert.Equal(t, "sk-live-123", loaded.Nodes[0].Config["api_key"])
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	assert.Error(t, err)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key(7)})
	require.NoError(t, err)
	ports.RunWorkflowRepositoryContract(t, mw(memory.NewRepository()))
}
