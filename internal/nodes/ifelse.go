package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/mbflow/internal/expreval"
	"github.com/smilemakc/mbflow/pkg/models"
)

func init() {
	models.RegisterDefinitionValidator(models.RuntimeIfElse, func(def *models.NodeDefinition) []string {
		if _, ok := def.Config["condition"]; !ok {
			return []string{fmt.Sprintf("node %q: config.condition is required", def.ID)}
		}
		return nil
	})
}

// IfElseNode evaluates its condition over {variables, input, local, helpers}
// and emits Completed on the "True" or "False" source port, per spec.md §4.6.
type IfElseNode struct {
	def       *models.NodeDefinition
	condition string
}

func (n *IfElseNode) Initialize(def *models.NodeDefinition) error {
	n.def = def
	cond, _ := def.Config["condition"].(string)
	n.condition = cond
	return nil
}

func (n *IfElseNode) Execute(ctx context.Context, run *RunContext, nodeCtx *models.NodeExecutionContext) (*models.NodeInstance, error) {
	start := time.Now()
	inst := &models.NodeInstance{
		InstanceID:         uuid.NewString(),
		NodeID:             n.def.ID,
		WorkflowInstanceID: run.InstanceID,
		StartTime:          start,
		ExecutionContext:   nodeCtx,
	}

	env := expreval.BuildEnvironment(run.Variables, nodeCtx)
	result, err := run.Evaluator.EvaluateBool(n.condition, env)
	inst.EndTime = time.Now()
	if err != nil {
		inst.Status = models.InstanceFailed
		inst.ErrorMessage = err.Error()
		inst.Exception = err
		return inst, nil
	}

	inst.Status = models.InstanceCompleted
	if result {
		inst.SourcePort = "True"
	} else {
		inst.SourcePort = "False"
	}
	return inst, nil
}

func (n *IfElseNode) Ports() []string { return []string{"True", "False"} }
