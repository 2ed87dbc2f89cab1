package nodes_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/internal/engine"
	"github.com/smilemakc/mbflow/internal/expreval"
	"github.com/smilemakc/mbflow/internal/nodes"
	"github.com/smilemakc/mbflow/pkg/models"
)

func subflowTestConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.WorkerPollInterval = 10 * time.Millisecond
	cfg.CompletionGraceWindow = 30 * time.Millisecond
	cfg.WorkflowTimeout = 5 * time.Second
	return cfg
}

// TestSubflowNode_MapsVariablesInThenOut drives scenario 7: a parent
// workflow with x=10 maps x into a child workflow's "value" variable, the
// child doubles it into "result", and the subflow node maps "result" back
// out to the parent's "doubled", through a real engine.Run (not a bare
// SubflowNode.Execute call), exactly the way internal/engine wires a
// Subflow node's SubRunner and WorkflowLoader in production.
func TestSubflowNode_MapsVariablesInThenOut(t *testing.T) {
	childDef := &models.WorkflowDefinition{
		WorkflowID:   "child",
		WorkflowName: "Doubler",
		Nodes: []*models.NodeDefinition{
			{
				ID: "Double", Name: "Double", RuntimeType: models.RuntimeCSharpTask,
				Config: map[string]interface{}{
					"script":         `SetGlobal("result", GetGlobal("value") * 2)`,
					"outputVariable": "result",
				},
			},
		},
	}

	parentDef := &models.WorkflowDefinition{
		WorkflowID:   "parent",
		WorkflowName: "Caller",
		Nodes: []*models.NodeDefinition{
			{
				ID: "Sub", Name: "Sub", RuntimeType: models.RuntimeSubflow,
				InlineWorkflow: childDef,
				InputMappings:  map[string]string{"x": "value"},
				OutputMappings: map[string]string{"result": "doubled"},
			},
		},
	}
	require.Empty(t, parentDef.Validate())

	eng, err := engine.New(parentDef, map[string]interface{}{"x": 10}, nodes.DefaultRegistry(), expreval.New(64), nil, subflowTestConfig(), nil)
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.WorkflowRunCompleted, result.Status)

	doubled, ok := result.Variables["doubled"]
	require.True(t, ok, "parent's doubled variable must be set from the child's result")
	assert.EqualValues(t, 20, doubled)

	require.Len(t, result.NodeInstances, 1)
	assert.Equal(t, models.InstanceCompleted, result.NodeInstances[0].Status)
}

// TestSubflowNode_ChildFailurePropagatesAsSubflowFailure exercises the
// failure side of the same contract: a child node that fails surfaces as a
// Failed subflow instance whose error message names the failing child node,
// and (absent a Fail-trigger route out of the subflow) fails the parent
// workflow overall.
func TestSubflowNode_ChildFailurePropagatesAsSubflowFailure(t *testing.T) {
	childDef := &models.WorkflowDefinition{
		WorkflowID: "child-fail",
		Nodes: []*models.NodeDefinition{
			{
				ID: "Boom", Name: "Boom", RuntimeType: models.RuntimeCSharpTask,
				Config: map[string]interface{}{"script": `1 +`},
			},
		},
	}

	parentDef := &models.WorkflowDefinition{
		WorkflowID: "parent-fail",
		Nodes: []*models.NodeDefinition{
			{ID: "Sub", Name: "Sub", RuntimeType: models.RuntimeSubflow, InlineWorkflow: childDef},
		},
	}
	require.Empty(t, parentDef.Validate())

	eng, err := engine.New(parentDef, nil, nodes.DefaultRegistry(), expreval.New(64), nil, subflowTestConfig(), nil)
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowRunFailed, result.Status)

	require.Len(t, result.NodeInstances, 1)
	assert.Equal(t, models.InstanceFailed, result.NodeInstances[0].Status)
	assert.Contains(t, result.NodeInstances[0].ErrorMessage, "Boom")
}
