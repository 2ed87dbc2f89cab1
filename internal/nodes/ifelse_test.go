package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/internal/expreval"
	"github.com/smilemakc/mbflow/pkg/models"
)

func newRunContext(vars map[string]interface{}) *RunContext {
	return &RunContext{
		InstanceID: "run-1",
		WorkflowID: "wf-1",
		Variables:  models.NewVariableStore(vars),
		Evaluator:  expreval.New(16),
	}
}

func TestIfElseNode_TrueBranch(t *testing.T) {
	n := &IfElseNode{}
	require.NoError(t, n.Initialize(&models.NodeDefinition{ID: "a", Config: map[string]interface{}{"condition": `GetGlobal("x") < 5`}}))

	run := newRunContext(map[string]interface{}{"x": 3})
	inst, err := n.Execute(context.Background(), run, models.NewNodeExecutionContext())
	require.NoError(t, err)
	assert.Equal(t, models.InstanceCompleted, inst.Status)
	assert.Equal(t, "True", inst.SourcePort)
}

func TestIfElseNode_FalseBranch(t *testing.T) {
	n := &IfElseNode{}
	require.NoError(t, n.Initialize(&models.NodeDefinition{ID: "a", Config: map[string]interface{}{"condition": `GetGlobal("x") < 5`}}))

	run := newRunContext(map[string]interface{}{"x": 10})
	inst, err := n.Execute(context.Background(), run, models.NewNodeExecutionContext())
	require.NoError(t, err)
	assert.Equal(t, "False", inst.SourcePort)
}

func TestIfElseNode_NonBooleanConditionFails(t *testing.T) {
	n := &IfElseNode{}
	require.NoError(t, n.Initialize(&models.NodeDefinition{ID: "a", Config: map[string]interface{}{"condition": `GetGlobal("x")`}}))

	run := newRunContext(map[string]interface{}{"x": 10})
	inst, err := n.Execute(context.Background(), run, models.NewNodeExecutionContext())
	require.NoError(t, err)
	assert.Equal(t, models.InstanceFailed, inst.Status)
	assert.Contains(t, inst.ErrorMessage, "did not return a boolean")
}
