package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlDef = `
workflowId: wf-1
workflowName: Greeter
nodes:
  - nodeId: start
    nodeName: Start
    runtimeType: noop
connections: []
`

const jsonDef = `{
  "workflowId": "wf-2",
  "workflowName": "Greeter JSON",
  "nodes": [{"id": "start", "name": "Start", "runtimeType": "noop"}],
  "connections": []
}`

func TestLoader_LoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlDef), 0o644))

	def, err := New("").Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wf-1", def.WorkflowID)
	assert.Len(t, def.Nodes, 1)
}

func TestLoader_LoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wf.json")
	require.NoError(t, os.WriteFile(path, []byte(jsonDef), 0o644))

	def, err := New("").Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wf-2", def.WorkflowID)
}

func TestLoader_RelativePathResolvesAgainstBaseDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wf.yaml"), []byte(yamlDef), 0o644))

	def, err := New(dir).Load("wf.yaml")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", def.WorkflowID)
}

func TestLoader_InvalidDefinitionFailsValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workflowId: \"\"\nnodes: []\n"), 0o644))

	_, err := New("").Load(path)
	require.Error(t, err)
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := New("").Load("/nonexistent/wf.yaml")
	require.Error(t, err)
}

func TestLoader_ConnectionOmittingEnabledDefaultsTrue(t *testing.T) {
	const def = `
workflowId: wf-enabled
workflowName: Enabled Defaulting
nodes:
  - nodeId: a
    nodeName: A
    runtimeType: noop
  - nodeId: b
    nodeName: B
    runtimeType: noop
  - nodeId: c
    nodeName: C
    runtimeType: noop
connections:
  - from: a
    to: b
    trigger: Complete
  - from: b
    to: c
    trigger: Complete
    enabled: false
`
	dir := t.TempDir()
	path := filepath.Join(dir, "wf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(def), 0o644))

	parsed, err := New("").Load(path)
	require.NoError(t, err)
	require.Len(t, parsed.Connections, 2)
	assert.True(t, parsed.Connections[0].Enabled, "connection omitting enabled must default to true")
	assert.False(t, parsed.Connections[1].Enabled, "connection explicitly disabled must stay disabled")
}

func TestLoader_ChildConnectionOmittingEnabledDefaultsTrue(t *testing.T) {
	const def = `
workflowId: wf-enabled-nested
workflowName: Nested Enabled Defaulting
nodes:
  - nodeId: box
    nodeName: Box
    runtimeType: container
    childNodes:
      - nodeId: childA
        nodeName: ChildA
        runtimeType: noop
      - nodeId: childB
        nodeName: ChildB
        runtimeType: noop
    childConnections:
      - from: childA
        to: childB
        trigger: Complete
connections: []
`
	dir := t.TempDir()
	path := filepath.Join(dir, "wf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(def), 0o644))

	parsed, err := New("").Load(path)
	require.NoError(t, err)
	require.Len(t, parsed.Nodes[0].ChildConnections, 1)
	assert.True(t, parsed.Nodes[0].ChildConnections[0].Enabled)
}
