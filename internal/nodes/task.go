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
	for _, rt := range []models.RuntimeType{
		models.RuntimeCSharpTask, models.RuntimeCSharpScript,
		models.RuntimePowerShellTask, models.RuntimePowerShellScript,
	} {
		models.RegisterDefinitionValidator(rt, func(def *models.NodeDefinition) []string {
			if _, ok := def.Config["script"]; !ok {
				return []string{fmt.Sprintf("node %q: config.script is required", def.ID)}
			}
			return nil
		})
	}
}

// TaskNode is the leaf execution kind backing CSharpTask/CSharpScript/
// PowerShellTask/PowerShellScript: it evaluates config["script"] as an expr
// expression against {variables, input, local, helpers} and sets the result
// under config["outputVariable"] (default "result"). The four runtime types
// share one implementation the way the teacher's built-in executors share
// executor.BaseExecutor's config helpers -- the actual shelling-out to a
// .NET/PowerShell host that the original C#-named runtimes imply is out of
// scope here (see SPEC_FULL.md); this node is the scriptable-leaf shape the
// rest of the engine needs to exercise the queue/router/worker pipeline.
type TaskNode struct {
	def    *models.NodeDefinition
	script string
	output string
}

func (n *TaskNode) Initialize(def *models.NodeDefinition) error {
	n.def = def
	script, _ := def.Config["script"].(string)
	n.script = script
	n.output = "result"
	if v, ok := def.Config["outputVariable"].(string); ok && v != "" {
		n.output = v
	}
	return nil
}

func (n *TaskNode) Execute(ctx context.Context, run *RunContext, nodeCtx *models.NodeExecutionContext) (*models.NodeInstance, error) {
	start := time.Now()
	inst := &models.NodeInstance{
		InstanceID:         uuid.NewString(),
		NodeID:             n.def.ID,
		WorkflowInstanceID: run.InstanceID,
		StartTime:          start,
		ExecutionContext:   nodeCtx,
	}

	select {
	case <-ctx.Done():
		inst.Status = models.InstanceCancelled
		inst.EndTime = time.Now()
		inst.ErrorMessage = ctx.Err().Error()
		return inst, nil
	default:
	}

	env := expreval.BuildEnvironment(run.Variables, nodeCtx)
	result, err := run.Evaluator.Evaluate(n.script, env)
	inst.EndTime = time.Now()
	if err != nil {
		inst.Status = models.InstanceFailed
		inst.ErrorMessage = err.Error()
		inst.Exception = err
		return inst, nil
	}

	nodeCtx.OutputData.Set(n.output, result)
	inst.Status = models.InstanceCompleted
	return inst, nil
}

func (n *TaskNode) Ports() []string { return []string{""} }
