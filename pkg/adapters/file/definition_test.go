package file_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/autoflow/pkg/adapters/file"
	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlDefinition = `
name: Form follow-up
nodes:
  - id: start
    type: trigger
    config:
      filter: sam@example.com
  - id: ai
    type: transform
    config:
      instruction: "Thank {{name}}"
  - id: mail
    type: notify-email
edges:
  - source: start
    target: ai
  - source: ai
    target: mail
`

const jsonDefinition = `{
  "id": "json-flow",
  "name": "Json",
  "nodes": [{"id": "start", "type": "trigger"}],
  "edges": []
}`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "follow-up.yaml")
	js := filepath.Join(dir, "other.json")
	txt := filepath.Join(dir, "flow.txt")
	require.NoError(t, os.WriteFile(yml, []byte(yamlDefinition), 0o644))
	require.NoError(t, os.WriteFile(js, []byte(jsonDefinition), 0o644))
	require.NoError(t, os.WriteFile(txt, []byte(jsonDefinition), 0o644))

	t.Run("yaml takes id from file name", func(t *testing.T) {
		wf, err := file.Load(yml)
		require.NoError(t, err)
		assert.Equal(t, "follow-up", wf.ID)
		assert.Equal(t, "Form follow-up", wf.Name)
		require.Len(t, wf.Nodes, 3)
		assert.Equal(t, domain.CapabilityTrigger, wf.Nodes[0].Capability)
		assert.Equal(t, "sam@example.com", wf.Nodes[0].Config["filter"])
		assert.Len(t, wf.Edges, 2)
		assert.NoError(t, wf.Validate())
	})

	t.Run("json keeps declared id", func(t *testing.T) {
		wf, err := file.Load(js)
		require.NoError(t, err)
		assert.Equal(t, "json-flow", wf.ID)
	})

	t.Run("unknown extension", func(t *testing.T) {
		_, err := file.Load(txt)
		assert.ErrorContains(t, err, "unsupported definition format")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := file.Load(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestDecode_SniffsFormat(t *testing.T) {
	wf, err := file.Decode([]byte(jsonDefinition), "")
	require.NoError(t, err)
	assert.Equal(t, "json-flow", wf.ID)

	wf, err = file.Decode([]byte(yamlDefinition), "")
	require.NoError(t, err)
	assert.Equal(t, "Form follow-up", wf.Name)

	_, err = file.Decode([]byte("nodes: ["), ".yml")
	assert.Error(t, err)
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(yamlDefinition), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(jsonDefinition), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# flows"), 0o644))

	all, err := file.LoadAll(dir)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "json-flow", all[0].ID)
	assert.Equal(t, "b", all[1].ID)

	single, err := file.LoadAll(filepath.Join(dir, "b.yaml"))
	require.NoError(t, err)
	require.Len(t, single, 1)

	_, err = file.LoadAll(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
