package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/autoflow/internal/config"
	"github.com/aretw0/autoflow/internal/logging"
	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/aretw0/autoflow/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T, cfg *config.Config) *Runtime {
	t.Helper()
	rt, err := NewEngine(cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.Engine.Shutdown(ctx)
		_ = rt.Close()
	})
	return rt
}

func gateOnly(id string) *domain.Workflow {
	b := dsl.New(id, "Gate")
	b.Trigger("start")
	return b.MustBuild()
}

func TestNewEngine_MemoryMasksRunInput(t *testing.T) {
	rt := newTestRuntime(t, config.Default())
	ctx := context.Background()

	_, err := rt.Engine.Create(ctx, gateOnly("wf-1"))
	require.NoError(t, err)
	_, err = rt.Engine.RunSync(ctx, "wf-1", map[string]any{domain.SlotIdentity: "sam@example.com", "answer": "yes"})
	require.NoError(t, err)

	runs, err := rt.Engine.Runs(ctx, "wf-1", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "***", runs[0].Input[domain.SlotIdentity])
	assert.Equal(t, "yes", runs[0].Input["answer"])
}

func TestNewEngine_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Storage.Driver = config.DriverRedis
	cfg.Storage.Redis.Addr = mr.Addr()
	cfg.Storage.Redis.Prefix = "test:wf:"

	rt := newTestRuntime(t, cfg)
	_, err := rt.Engine.Create(context.Background(), gateOnly("wf-1"))
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:wf:wf-1"))
}

func TestNewEngine_FileWithEncryption(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Driver = config.DriverFile
	cfg.Storage.Dir = dir
	cfg.Storage.EncryptionKey = strings.Repeat("ab", 32)

	rt := newTestRuntime(t, cfg)
	ctx := context.Background()

	b := dsl.New("wf-1", "Fetch")
	b.Fetch("data").URL("http://example.test").APIKey("very-secret")
	_, err := rt.Engine.Create(ctx, b.MustBuild())
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "wf-1.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "very-secret")

	loaded, err := rt.Engine.Get(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "very-secret", loaded.Nodes[0].Config["api_key"])
}

func TestNewEngine_BadEncryptionKey(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.EncryptionKey = "short"
	_, err := NewEngine(cfg, logging.NewNop())
	assert.ErrorContains(t, err, "encryption key")
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantLen int
		wantErr bool
	}{
		{"hex", strings.Repeat("0f", 32), 32, false},
		{"raw", strings.Repeat("k", 32), 32, false},
		{"64 chars not hex", strings.Repeat("z", 64), 0, true},
		{"too short", "abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParseKey(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, key, tt.wantLen)
		})
	}
}

func TestProviders(t *testing.T) {
	empty := Providers(config.Default().Providers, logging.NewNop())
	assert.Nil(t, empty.Text)
	assert.Nil(t, empty.Message)
	assert.Nil(t, empty.Mail)

	cfg := config.Default().Providers
	cfg.Gemini.APIKey = "g"
	cfg.Twilio.AccountSID = "sid"
	cfg.Twilio.AuthToken = "tok"
	cfg.Mail.Username = "u"
	cfg.Mail.Password = "p"

	full := Providers(cfg, logging.NewNop())
	assert.NotNil(t, full.Text)
	assert.NotNil(t, full.Message)
	assert.NotNil(t, full.Mail)
}

func TestNewLogger(t *testing.T) {
	_, err := NewLogger(config.LogConfig{Level: "info"}, "")
	require.NoError(t, err)

	_, err = NewLogger(config.LogConfig{Level: "info", Format: "json"}, "debug")
	require.NoError(t, err)

	_, err = NewLogger(config.LogConfig{Level: "info"}, "loud")
	assert.Error(t, err)
}
