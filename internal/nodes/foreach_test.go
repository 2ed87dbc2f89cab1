package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/pkg/models"
)

func TestForEachNode_IteratesThenSignalsDone(t *testing.T) {
	n := &ForEachNode{}
	require.NoError(t, n.Initialize(&models.NodeDefinition{ID: "f", Config: map[string]interface{}{
		"collection":   `["a", "b", "c"]`,
		"itemVariable": "value",
	}}))

	run := &RunContext{Variables: models.NewVariableStore(nil), Evaluator: newTestEvaluator()}

	var items []interface{}
	for i := 0; i < 3; i++ {
		nodeCtx := models.NewNodeExecutionContext()
		inst, err := n.Execute(context.Background(), run, nodeCtx)
		require.NoError(t, err)
		require.Equal(t, models.InstanceCompleted, inst.Status)
		require.Equal(t, "LoopBody", inst.SourcePort)
		v, ok := nodeCtx.OutputData.Get("value")
		require.True(t, ok)
		items = append(items, v)
	}
	assert.Equal(t, []interface{}{"a", "b", "c"}, items)

	finalCtx := models.NewNodeExecutionContext()
	inst, err := n.Execute(context.Background(), run, finalCtx)
	require.NoError(t, err)
	done, _ := finalCtx.OutputData.Get("Done")
	assert.Equal(t, true, done)
	count, _ := finalCtx.OutputData.Get("IterationCount")
	assert.Equal(t, 3, count)
	_, hasItem := inst.ExecutionContext.OutputData.Get("value")
	assert.False(t, hasItem)
}
