package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/mbflow/pkg/models"
)

// ExecutionMode is Container's child-scheduling strategy. It is advisory
// only: whether children actually run concurrently or chained is entirely
// driven by ChildConnections (a chain of connections yields one entry point
// and sequential execution; disjoint child subgraphs yield multiple entry
// points and the engine's per-node workers naturally run them concurrently),
// the same way the top-level WorkflowDefinition.EntryPoints already works.
type ExecutionMode string

const (
	ExecutionSequential ExecutionMode = "Sequential"
	ExecutionParallel   ExecutionMode = "Parallel"
)

func init() {
	models.RegisterDefinitionValidator(models.RuntimeContainer, func(def *models.NodeDefinition) []string {
		if len(def.ChildNodes) == 0 {
			return []string{fmt.Sprintf("node %q: container requires at least one child node", def.ID)}
		}
		return nil
	})
}

// ContainerNode owns a nested child graph and runs it to completion via the
// engine-supplied SubRunner, per spec.md §4.6. Unlike Subflow, a container
// shares its parent's variable scope rather than mapping variables across a
// boundary.
type ContainerNode struct {
	def         *models.NodeDefinition
	childDef    *models.WorkflowDefinition
	mode        ExecutionMode
	cancelOnFail bool
}

func (n *ContainerNode) Initialize(def *models.NodeDefinition) error {
	n.def = def
	n.mode = ExecutionSequential
	if v, ok := def.Config["mode"].(string); ok && ExecutionMode(v) == ExecutionParallel {
		n.mode = ExecutionParallel
	}
	n.cancelOnFail = true
	if v, ok := def.Config["cancelSiblingsOnFailure"].(bool); ok {
		n.cancelOnFail = v
	}

	n.childDef = &models.WorkflowDefinition{
		WorkflowID:   def.ID + "/container",
		WorkflowName: def.Name + " (container)",
		Nodes:        def.ChildNodes,
		Connections:  def.ChildConnections,
		Metadata:     map[string]interface{}{"executionMode": string(n.mode), "cancelSiblingsOnFailure": n.cancelOnFail},
	}
	return nil
}

func (n *ContainerNode) Execute(ctx context.Context, run *RunContext, nodeCtx *models.NodeExecutionContext) (*models.NodeInstance, error) {
	start := time.Now()
	inst := &models.NodeInstance{
		InstanceID:         uuid.NewString(),
		NodeID:             n.def.ID,
		WorkflowInstanceID: run.InstanceID,
		StartTime:          start,
		ExecutionContext:   nodeCtx,
	}

	if run.SubRunner == nil {
		inst.EndTime = time.Now()
		inst.Status = models.InstanceFailed
		inst.ErrorMessage = "container node requires a SubRunner"
		return inst, nil
	}

	result, err := run.SubRunner.RunToCompletion(ctx, n.childDef, run.Variables.Snapshot())
	inst.EndTime = time.Now()
	if err != nil {
		inst.Status = models.InstanceFailed
		inst.ErrorMessage = err.Error()
		inst.Exception = err
		return inst, nil
	}

	for _, child := range result.NodeInstances {
		if run.Observer != nil {
			run.Observer.OnNodeStarted(fmt.Sprintf("%s/%s", n.def.ID, child.NodeID), child.InstanceID)
		}
	}

	for k, v := range result.Variables {
		run.Variables.Set(k, v)
	}

	switch result.Status {
	case models.WorkflowRunCompleted:
		inst.Status = models.InstanceCompleted
	case models.WorkflowRunCancelled:
		inst.Status = models.InstanceCancelled
		inst.ErrorMessage = result.ErrorMessage
	default:
		inst.Status = models.InstanceFailed
		inst.ErrorMessage = fmt.Sprintf("child node %s failed: %s", result.FailureNodeID, result.ErrorMessage)
	}
	return inst, nil
}

func (n *ContainerNode) Ports() []string { return []string{""} }
