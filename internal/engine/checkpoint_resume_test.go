package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/internal/expreval"
	"github.com/smilemakc/mbflow/internal/nodes"
	"github.com/smilemakc/mbflow/pkg/models"
)

// gateNode blocks inside Execute until released, signaling entered the
// instant it starts so a test can deterministically observe a mid-run,
// in-flight state without relying on timing.
type gateNode struct {
	id      string
	entered chan struct{}
	release chan struct{}
}

func (n *gateNode) Initialize(def *models.NodeDefinition) error {
	n.id = def.ID
	return nil
}

func (n *gateNode) Execute(ctx context.Context, run *nodes.RunContext, nodeCtx *models.NodeExecutionContext) (*models.NodeInstance, error) {
	start := time.Now()
	close(n.entered)
	select {
	case <-n.release:
	case <-ctx.Done():
		return &models.NodeInstance{NodeID: n.id, Status: models.InstanceCancelled, StartTime: start, EndTime: time.Now()}, nil
	}
	return &models.NodeInstance{NodeID: n.id, Status: models.InstanceCompleted, StartTime: start, EndTime: time.Now()}, nil
}

func (n *gateNode) Ports() []string { return []string{""} }

const runtimeGate models.RuntimeType = "test_checkpoint_gate"

// TestCheckpointResume_MidRunSaveLoadResumeCompletes drives spec scenario 8:
// a 5-node chain is checkpointed while its middle node is in flight, and a
// freshly built engine resumed from that checkpoint reaches the same
// terminal status with every node completed.
func TestCheckpointResume_MidRunSaveLoadResumeCompletes(t *testing.T) {
	def := &models.WorkflowDefinition{
		WorkflowID: "checkpoint-chain",
		Nodes: []*models.NodeDefinition{
			{ID: "A", Name: "A", RuntimeType: models.RuntimeNoop},
			{ID: "B", Name: "B", RuntimeType: models.RuntimeNoop},
			{ID: "Gate", Name: "Gate", RuntimeType: runtimeGate},
			{ID: "D", Name: "D", RuntimeType: models.RuntimeNoop},
			{ID: "E", Name: "E", RuntimeType: models.RuntimeNoop},
		},
		Connections: []*models.NodeConnection{
			{From: "A", To: "B", Trigger: models.TriggerComplete, Enabled: true},
			{From: "B", To: "Gate", Trigger: models.TriggerComplete, Enabled: true},
			{From: "Gate", To: "D", Trigger: models.TriggerComplete, Enabled: true},
			{From: "D", To: "E", Trigger: models.TriggerComplete, Enabled: true},
		},
	}
	require.Empty(t, def.Validate())

	gate := &gateNode{entered: make(chan struct{}), release: make(chan struct{})}
	origRegistry := nodes.DefaultRegistry()
	require.NoError(t, origRegistry.Register(runtimeGate, func() nodes.Node { return gate }))

	eng, err := New(def, nil, origRegistry, expreval.New(64), nil, testConfig(), nil)
	require.NoError(t, err)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_, _ = eng.Run(context.Background())
	}()

	select {
	case <-gate.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("Gate node never started")
	}

	cp, err := eng.Checkpoint("mid-run")
	require.NoError(t, err)

	var completed, pending int
	for _, ci := range cp.NodeInstances {
		if ci.Status.IsTerminal() {
			completed++
		} else {
			pending++
		}
	}
	assert.Equal(t, 2, completed, "A and B must already be Completed at checkpoint time")
	assert.Equal(t, 0, pending)
	assert.NotEmpty(t, cp.MessageQueues["Gate"], "Gate's in-flight envelope must be captured")

	close(gate.release)
	<-runDone

	resumeRegistry := nodes.DefaultRegistry()
	require.NoError(t, resumeRegistry.Register(runtimeGate, func() nodes.Node { return &nodes.NoopNode{} }))

	resumed, err := Resume(cp, def, resumeRegistry, expreval.New(64), nil, testConfig(), nil)
	require.NoError(t, err)

	result, err := resumed.RunResumed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowRunCompleted, result.Status)

	statuses := make(map[string]models.InstanceStatus, len(result.NodeInstances))
	for _, inst := range result.NodeInstances {
		statuses[inst.NodeID] = inst.Status
	}
	for _, id := range []string{"A", "B", "Gate", "D", "E"} {
		assert.Equal(t, models.InstanceCompleted, statuses[id], "node %s must be Completed in the resumed run", id)
	}
}
