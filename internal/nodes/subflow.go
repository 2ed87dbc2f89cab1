package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/mbflow/pkg/models"
)

func init() {
	models.RegisterDefinitionValidator(models.RuntimeSubflow, func(def *models.NodeDefinition) []string {
		if def.WorkflowFilePath == "" && def.InlineWorkflow == nil {
			return []string{fmt.Sprintf("node %q: subflow requires workflowFilePath or an inline workflow", def.ID)}
		}
		return nil
	})
}

// SubflowNode loads a child WorkflowDefinition, maps parent variables into
// it, runs it to completion via the engine-supplied SubRunner, then maps
// results back, per spec.md §4.6. Unlike Container, parent and child
// variable scopes are isolated; only the configured mappings cross the
// boundary.
type SubflowNode struct {
	def            *models.NodeDefinition
	inputMappings  map[string]string
	outputMappings map[string]string
	timeout        time.Duration
}

func (n *SubflowNode) Initialize(def *models.NodeDefinition) error {
	n.def = def
	n.inputMappings = def.InputMappings
	n.outputMappings = def.OutputMappings
	if v, ok := def.Config["timeoutSeconds"].(float64); ok && v > 0 {
		n.timeout = time.Duration(v) * time.Second
	} else if v, ok := def.Config["timeoutSeconds"].(int); ok && v > 0 {
		n.timeout = time.Duration(v) * time.Second
	}
	return nil
}

func (n *SubflowNode) resolveChildDefinition(run *RunContext) (*models.WorkflowDefinition, error) {
	if n.def.InlineWorkflow != nil {
		return n.def.InlineWorkflow, nil
	}
	if run.Loader == nil {
		return nil, fmt.Errorf("subflow node %q requires a WorkflowLoader to resolve %q", n.def.ID, n.def.WorkflowFilePath)
	}
	return run.Loader.Load(n.def.WorkflowFilePath)
}

func (n *SubflowNode) Execute(ctx context.Context, run *RunContext, nodeCtx *models.NodeExecutionContext) (*models.NodeInstance, error) {
	start := time.Now()
	inst := &models.NodeInstance{
		InstanceID:         uuid.NewString(),
		NodeID:             n.def.ID,
		WorkflowInstanceID: run.InstanceID,
		StartTime:          start,
		ExecutionContext:   nodeCtx,
	}

	childDef, err := n.resolveChildDefinition(run)
	if err != nil {
		inst.EndTime = time.Now()
		inst.Status = models.InstanceFailed
		inst.ErrorMessage = err.Error()
		inst.Exception = err
		return inst, nil
	}

	if errs := childDef.Validate(); len(errs) > 0 {
		inst.EndTime = time.Now()
		inst.Status = models.InstanceFailed
		inst.ErrorMessage = fmt.Sprintf("invalid child workflow: %s", errs.Error())
		return inst, nil
	}

	if run.SubRunner == nil {
		inst.EndTime = time.Now()
		inst.Status = models.InstanceFailed
		inst.ErrorMessage = "subflow node requires a SubRunner"
		return inst, nil
	}

	childVars := make(map[string]interface{}, len(childDef.DefaultVariables)+len(n.inputMappings))
	for k, v := range childDef.DefaultVariables {
		childVars[k] = v
	}
	for parentKey, childKey := range n.inputMappings {
		if v, ok := run.Variables.Get(parentKey); ok {
			childVars[childKey] = v
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if n.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	result, err := run.SubRunner.RunToCompletion(runCtx, childDef, childVars)
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

	switch result.Status {
	case models.WorkflowRunCompleted:
		for childKey, parentKey := range n.outputMappings {
			if v, ok := result.Variables[childKey]; ok {
				run.Variables.Set(parentKey, v)
				nodeCtx.OutputData.Set(parentKey, v)
			}
		}
		inst.Status = models.InstanceCompleted
	case models.WorkflowRunCancelled:
		inst.Status = models.InstanceCancelled
		inst.ErrorMessage = result.ErrorMessage
	default:
		inst.Status = models.InstanceFailed
		inst.ErrorMessage = fmt.Sprintf("child workflow failed at node %s: %s", result.FailureNodeID, result.ErrorMessage)
	}
	return inst, nil
}

func (n *SubflowNode) Ports() []string { return []string{""} }
