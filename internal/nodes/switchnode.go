package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/mbflow/internal/expreval"
	"github.com/smilemakc/mbflow/pkg/models"
)

// DefaultSwitchPort is the sentinel source port a SwitchNode emits on when
// its expression's value matches none of the configured cases.
const DefaultSwitchPort = "Default"

func init() {
	models.RegisterDefinitionValidator(models.RuntimeSwitch, func(def *models.NodeDefinition) []string {
		if _, ok := def.Config["expression"]; !ok {
			return []string{fmt.Sprintf("node %q: config.expression is required", def.ID)}
		}
		return nil
	})
}

// SwitchNode evaluates an expression to a string and emits Completed with
// sourcePort equal to the matched case key, or DefaultSwitchPort if the
// value matches none of the declared cases. The case->target mapping itself
// lives entirely in the graph's connections (spec.md §4.6); this node only
// needs to know the set of valid case keys so it can tell "matched a case"
// from "fell through to default".
type SwitchNode struct {
	def        *models.NodeDefinition
	expression string
	cases      map[string]bool
}

func (n *SwitchNode) Initialize(def *models.NodeDefinition) error {
	n.def = def
	expr, _ := def.Config["expression"].(string)
	n.expression = expr

	n.cases = make(map[string]bool)
	if raw, ok := def.Config["cases"]; ok {
		switch cases := raw.(type) {
		case []interface{}:
			for _, c := range cases {
				if s, ok := c.(string); ok {
					n.cases[s] = true
				}
			}
		case map[string]interface{}:
			for k := range cases {
				n.cases[k] = true
			}
		}
	}
	return nil
}

func (n *SwitchNode) Execute(ctx context.Context, run *RunContext, nodeCtx *models.NodeExecutionContext) (*models.NodeInstance, error) {
	start := time.Now()
	inst := &models.NodeInstance{
		InstanceID:         uuid.NewString(),
		NodeID:             n.def.ID,
		WorkflowInstanceID: run.InstanceID,
		StartTime:          start,
		ExecutionContext:   nodeCtx,
	}

	env := expreval.BuildEnvironment(run.Variables, nodeCtx)
	value, err := run.Evaluator.EvaluateString(n.expression, env)
	inst.EndTime = time.Now()
	if err != nil {
		inst.Status = models.InstanceFailed
		inst.ErrorMessage = err.Error()
		inst.Exception = err
		return inst, nil
	}

	inst.Status = models.InstanceCompleted
	if len(n.cases) == 0 || n.cases[value] {
		inst.SourcePort = value
	} else {
		inst.SourcePort = DefaultSwitchPort
	}
	return inst, nil
}

func (n *SwitchNode) Ports() []string {
	ports := make([]string, 0, len(n.cases)+1)
	for c := range n.cases {
		ports = append(ports, c)
	}
	return append(ports, DefaultSwitchPort)
}
