package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/internal/expreval"
	"github.com/smilemakc/mbflow/internal/queue"
	"github.com/smilemakc/mbflow/pkg/models"
)

func newTestRouter(t *testing.T, def *models.WorkflowDefinition, variables map[string]interface{}) (*MessageRouter, map[string]*queue.NodeMessageQueue, *queue.DeadLetterQueue) {
	t.Helper()
	dlq := queue.NewDeadLetterQueue(10)
	queues := make(map[string]*queue.NodeMessageQueue)
	for _, n := range def.Nodes {
		queues[n.ID] = queue.NewNodeMessageQueue(n.ID, 10, dlq, time.Second, 2)
	}
	vars := models.NewVariableStore(variables)
	r := New(def, vars, expreval.New(10), dlq, queues)
	return r, queues, dlq
}

func TestRouter_FiltersOnTriggerEnabledAndPort(t *testing.T) {
	def := &models.WorkflowDefinition{
		Nodes: []*models.NodeDefinition{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}},
		Connections: []*models.NodeConnection{
			{From: "a", To: "b", Trigger: models.TriggerComplete, SourcePort: "True", Enabled: true},
			{From: "a", To: "c", Trigger: models.TriggerComplete, SourcePort: "False", Enabled: true},
			{From: "a", To: "d", Trigger: models.TriggerComplete, Enabled: false},
		},
	}
	r, queues, _ := newTestRouter(t, def, nil)

	n := r.RouteMessage(models.NewNodeComplete("m1", "a", "True", nil), nil)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, queues["b"].Len())
	assert.Equal(t, 0, queues["c"].Len())
	assert.Equal(t, 0, queues["d"].Len())
}

func TestRouter_PortMatchIsCaseInsensitiveAndEmptyMatchesAny(t *testing.T) {
	def := &models.WorkflowDefinition{
		Nodes: []*models.NodeDefinition{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Connections: []*models.NodeConnection{
			{From: "a", To: "b", Trigger: models.TriggerComplete, SourcePort: "true", Enabled: true},
			{From: "a", To: "c", Trigger: models.TriggerComplete, SourcePort: "", Enabled: true},
		},
	}
	r, queues, _ := newTestRouter(t, def, nil)

	r.RouteMessage(models.NewNodeComplete("m1", "a", "True", nil), nil)
	assert.Equal(t, 1, queues["b"].Len())
	assert.Equal(t, 1, queues["c"].Len())
}

func TestRouter_GuardExpressionGatesDelivery(t *testing.T) {
	def := &models.WorkflowDefinition{
		Nodes: []*models.NodeDefinition{{ID: "a"}, {ID: "b"}},
		Connections: []*models.NodeConnection{
			{From: "a", To: "b", Trigger: models.TriggerComplete, Guard: `GetGlobal("x") < 5`, Enabled: true},
		},
	}
	r, queues, _ := newTestRouter(t, def, map[string]interface{}{"x": 10})

	r.RouteMessage(models.NewNodeComplete("m1", "a", "", nil), nil)
	assert.Equal(t, 0, queues["b"].Len())
}

func TestRouter_GuardEvaluationErrorIsFalse(t *testing.T) {
	def := &models.WorkflowDefinition{
		Nodes: []*models.NodeDefinition{{ID: "a"}, {ID: "b"}},
		Connections: []*models.NodeConnection{
			{From: "a", To: "b", Trigger: models.TriggerComplete, Guard: `1 +`, Enabled: true},
		},
	}
	r, queues, _ := newTestRouter(t, def, nil)

	n := r.RouteMessage(models.NewNodeComplete("m1", "a", "", nil), nil)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, queues["b"].Len())
}

func TestRouter_FanOutToMultipleTargetsIsIndependent(t *testing.T) {
	def := &models.WorkflowDefinition{
		Nodes: []*models.NodeDefinition{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}},
		Connections: []*models.NodeConnection{
			{From: "a", To: "b", Trigger: models.TriggerComplete, Enabled: true},
			{From: "a", To: "c", Trigger: models.TriggerComplete, Enabled: true},
			{From: "a", To: "d", Trigger: models.TriggerComplete, Enabled: true},
		},
	}
	r, queues, _ := newTestRouter(t, def, nil)

	n := r.RouteMessage(models.NewNodeComplete("m1", "a", "", nil), nil)
	assert.Equal(t, 3, n)
	for _, id := range []string{"b", "c", "d"} {
		assert.Equal(t, 1, queues[id].Len())
	}
}

func TestRouter_DeliveryFailureDeadLettersButContinues(t *testing.T) {
	def := &models.WorkflowDefinition{
		Nodes: []*models.NodeDefinition{{ID: "a"}, {ID: "b"}},
		Connections: []*models.NodeConnection{
			{From: "a", To: "missing", Trigger: models.TriggerComplete, Enabled: true},
			{From: "a", To: "b", Trigger: models.TriggerComplete, Enabled: true},
		},
	}
	r, queues, dlq := newTestRouter(t, def, nil)

	n := r.RouteMessage(models.NewNodeComplete("m1", "a", "", nil), nil)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, queues["b"].Len())
	require.Equal(t, 1, dlq.Len())
	assert.Contains(t, dlq.List()[0].Reason, "Failed to route to missing")
}
