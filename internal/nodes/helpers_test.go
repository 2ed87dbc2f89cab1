package nodes

import "github.com/smilemakc/mbflow/internal/expreval"

func newTestEvaluator() *expreval.Evaluator {
	return expreval.New(16)
}
