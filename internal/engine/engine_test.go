package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/internal/expreval"
	"github.com/smilemakc/mbflow/internal/nodes"
	"github.com/smilemakc/mbflow/pkg/models"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.WorkerPollInterval = 10 * time.Millisecond
	cfg.CompletionGraceWindow = 30 * time.Millisecond
	cfg.WorkflowTimeout = 5 * time.Second
	return cfg
}

func runDef(t *testing.T, def *models.WorkflowDefinition, vars map[string]interface{}) (*Result, []Event) {
	t.Helper()
	require.Empty(t, def.Validate())

	var mu sync.Mutex
	var events []Event
	eng, err := New(def, vars, nodes.DefaultRegistry(), expreval.New(64), nil, testConfig(), nil)
	require.NoError(t, err)
	eng.AddObserver(ObserverFunc(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}))

	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	return result, events
}

func TestEngine_SequentialChain(t *testing.T) {
	def := &models.WorkflowDefinition{
		WorkflowID: "seq",
		Nodes: []*models.NodeDefinition{
			{ID: "A", Name: "A", RuntimeType: models.RuntimeNoop},
			{ID: "B", Name: "B", RuntimeType: models.RuntimeNoop},
			{ID: "C", Name: "C", RuntimeType: models.RuntimeNoop},
		},
		Connections: []*models.NodeConnection{
			{From: "A", To: "B", Trigger: models.TriggerComplete, Enabled: true},
			{From: "B", To: "C", Trigger: models.TriggerComplete, Enabled: true},
		},
	}

	result, _ := runDef(t, def, nil)
	assert.Equal(t, models.WorkflowRunCompleted, result.Status)

	var order []string
	for _, inst := range result.NodeInstances {
		order = append(order, inst.NodeID)
	}
	assert.Equal(t, []string{"A", "B", "C"}, order)
}

func TestEngine_ParallelFanOut(t *testing.T) {
	def := &models.WorkflowDefinition{
		WorkflowID: "fanout",
		Nodes: []*models.NodeDefinition{
			{ID: "A", Name: "A", RuntimeType: models.RuntimeNoop},
			{ID: "B", Name: "B", RuntimeType: models.RuntimeNoop},
			{ID: "C", Name: "C", RuntimeType: models.RuntimeNoop},
			{ID: "D", Name: "D", RuntimeType: models.RuntimeNoop},
		},
		Connections: []*models.NodeConnection{
			{From: "A", To: "B", Trigger: models.TriggerComplete, Enabled: true},
			{From: "A", To: "C", Trigger: models.TriggerComplete, Enabled: true},
			{From: "A", To: "D", Trigger: models.TriggerComplete, Enabled: true},
		},
	}

	result, _ := runDef(t, def, nil)
	assert.Equal(t, models.WorkflowRunCompleted, result.Status)

	seen := map[string]bool{}
	for _, inst := range result.NodeInstances {
		seen[inst.NodeID] = true
	}
	assert.True(t, seen["A"] && seen["B"] && seen["C"] && seen["D"])
}

func TestEngine_IfElseRoutesTrueBranchOnly(t *testing.T) {
	def := &models.WorkflowDefinition{
		WorkflowID: "ifelse",
		Nodes: []*models.NodeDefinition{
			{ID: "Check", Name: "Check", RuntimeType: models.RuntimeIfElse, Config: map[string]interface{}{"condition": `GetGlobal("x") < 5`}},
			{ID: "Done", Name: "Done", RuntimeType: models.RuntimeNoop},
			{ID: "Skip", Name: "Skip", RuntimeType: models.RuntimeNoop},
		},
		Connections: []*models.NodeConnection{
			{From: "Check", To: "Done", Trigger: models.TriggerComplete, SourcePort: "True", Enabled: true},
			{From: "Check", To: "Skip", Trigger: models.TriggerComplete, SourcePort: "False", Enabled: true},
		},
	}

	result, _ := runDef(t, def, map[string]interface{}{"x": 3})
	assert.Equal(t, models.WorkflowRunCompleted, result.Status)

	executed := map[string]bool{}
	var checkPort string
	for _, inst := range result.NodeInstances {
		executed[inst.NodeID] = true
		if inst.NodeID == "Check" {
			checkPort = inst.SourcePort
		}
	}
	assert.True(t, executed["Done"])
	assert.False(t, executed["Skip"])
	assert.Equal(t, "True", checkPort)
}
