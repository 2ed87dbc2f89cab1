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
	models.RegisterDefinitionValidator(models.RuntimeForEach, func(def *models.NodeDefinition) []string {
		if _, ok := def.Config["collection"]; !ok {
			return []string{fmt.Sprintf("node %q: config.collection is required", def.ID)}
		}
		return nil
	})
}

// ForEachNode evaluates its collection expression once, then hands out one
// item per Execute call on the "LoopBody" port, mirroring While's
// non-blocking, re-enqueue-driven iteration (spec.md §9: "While and ForEach
// do not block across iterations"). The loop-body subgraph is expected to
// route back to this node so a subsequent Execute call can hand out the next
// item; the final call (once every item has been dispatched) carries no item
// and sets outputData["Done"] so a connection guard such as
// `GetInput("Done")` can route it to the after-loop path while a sibling
// connection guarded on `!GetInput("Done")` routes the per-item path -- both
// share the LoopBody port per spec.md §4.6.
type ForEachNode struct {
	def          *models.NodeDefinition
	collection   string
	itemVar      string
	indexVar     string
	items        []interface{}
	index        int
	evaluated    bool
}

func (n *ForEachNode) Initialize(def *models.NodeDefinition) error {
	n.def = def
	coll, _ := def.Config["collection"].(string)
	n.collection = coll

	n.itemVar = "item"
	if v, ok := def.Config["itemVariable"].(string); ok && v != "" {
		n.itemVar = v
	}
	n.indexVar = "iterationIndex"
	return nil
}

func (n *ForEachNode) Execute(ctx context.Context, run *RunContext, nodeCtx *models.NodeExecutionContext) (*models.NodeInstance, error) {
	start := time.Now()
	inst := &models.NodeInstance{
		InstanceID:         uuid.NewString(),
		NodeID:             n.def.ID,
		WorkflowInstanceID: run.InstanceID,
		StartTime:          start,
		ExecutionContext:   nodeCtx,
		SourcePort:         "LoopBody",
	}

	if !n.evaluated {
		env := expreval.BuildEnvironment(run.Variables, nodeCtx)
		items, err := run.Evaluator.EvaluateCollection(n.collection, env)
		inst.EndTime = time.Now()
		if err != nil {
			inst.Status = models.InstanceFailed
			inst.ErrorMessage = err.Error()
			inst.Exception = err
			return inst, nil
		}
		n.items = items
		n.evaluated = true
	}

	inst.EndTime = time.Now()
	inst.Status = models.InstanceCompleted

	if n.index < len(n.items) {
		nodeCtx.OutputData.Set(n.itemVar, n.items[n.index])
		nodeCtx.OutputData.Set(n.indexVar, n.index)
		if run.Observer != nil {
			run.Observer.OnNodeNext(n.def.ID, inst.InstanceID, n.index)
		}
		n.index++
		return inst, nil
	}

	nodeCtx.OutputData.Set("Done", true)
	nodeCtx.OutputData.Set("IterationCount", len(n.items))
	return inst, nil
}

func (n *ForEachNode) Ports() []string { return []string{"LoopBody"} }
