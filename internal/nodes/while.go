package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/mbflow/internal/expreval"
	"github.com/smilemakc/mbflow/pkg/models"
)

// DefaultMaxIterations caps a While loop when the definition does not
// configure one, so a mistyped always-true condition cannot spin forever.
const DefaultMaxIterations = 10000

func init() {
	models.RegisterDefinitionValidator(models.RuntimeWhile, func(def *models.NodeDefinition) []string {
		if _, ok := def.Config["condition"]; !ok {
			return []string{fmt.Sprintf("node %q: config.condition is required", def.ID)}
		}
		return nil
	})
}

// WhileNode implements the feedback-loop iteration protocol spec.md §4.6
// calls out as the subtlest contract in the design: one Execute call
// evaluates the condition exactly once. A single WhileNode value is
// constructed per workflow run (see Registry.New), and since the worker
// loop guarantees at most one Execute in flight per node at a time, the
// running iteration count is kept as a plain struct field rather than
// behind a mutex or in the per-message NodeExecutionContext, which does not
// survive across re-enqueues.
type WhileNode struct {
	def           *models.NodeDefinition
	condition     string
	maxIterations int
	iteration     int
}

func (n *WhileNode) Initialize(def *models.NodeDefinition) error {
	n.def = def
	cond, _ := def.Config["condition"].(string)
	n.condition = cond

	n.maxIterations = DefaultMaxIterations
	if v, ok := def.Config["maxIterations"].(int); ok && v > 0 {
		n.maxIterations = v
	} else if v, ok := def.Config["maxIterations"].(float64); ok && v > 0 {
		n.maxIterations = int(v)
	}
	return nil
}

func (n *WhileNode) Execute(ctx context.Context, run *RunContext, nodeCtx *models.NodeExecutionContext) (*models.NodeInstance, error) {
	start := time.Now()
	inst := &models.NodeInstance{
		InstanceID:         uuid.NewString(),
		NodeID:             n.def.ID,
		WorkflowInstanceID: run.InstanceID,
		StartTime:          start,
		ExecutionContext:   nodeCtx,
	}

	if n.condition == "" {
		inst.EndTime = time.Now()
		inst.Status = models.InstanceFailed
		inst.ErrorMessage = "while condition is empty or invalid"
		return inst, nil
	}

	if n.iteration >= n.maxIterations {
		inst.EndTime = time.Now()
		inst.Status = models.InstanceFailed
		inst.ErrorMessage = fmt.Sprintf("Maximum iterations exceeded (%d)", n.maxIterations)
		return inst, nil
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
		if run.Observer != nil {
			run.Observer.OnNodeNext(n.def.ID, inst.InstanceID, n.iteration)
		}
		n.iteration++
		inst.SourcePort = "IterationCheck"
		return inst, nil
	}

	nodeCtx.OutputData.Set("IterationCount", n.iteration)
	inst.SourcePort = "LoopBody"
	return inst, nil
}

func (n *WhileNode) Ports() []string { return []string{"IterationCheck", "LoopBody"} }
