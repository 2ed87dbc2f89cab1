package nodes

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/mbflow/pkg/models"
)

// NoopNode does nothing but complete. It exists so workflow graphs can model
// pass-through join/fan-in points and so scenario tests (spec.md §8
// scenarios 1-2) have a minimal leaf to chain.
type NoopNode struct {
	def *models.NodeDefinition
}

func (n *NoopNode) Initialize(def *models.NodeDefinition) error {
	n.def = def
	return nil
}

func (n *NoopNode) Execute(ctx context.Context, run *RunContext, nodeCtx *models.NodeExecutionContext) (*models.NodeInstance, error) {
	start := time.Now()
	inst := &models.NodeInstance{
		InstanceID:         uuid.NewString(),
		NodeID:             n.def.ID,
		WorkflowInstanceID: run.InstanceID,
		Status:             models.InstanceCompleted,
		StartTime:          start,
		EndTime:            time.Now(),
		ExecutionContext:   nodeCtx,
	}
	return inst, nil
}

func (n *NoopNode) Ports() []string { return []string{""} }
