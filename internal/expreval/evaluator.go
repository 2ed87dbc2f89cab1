package expreval

import (
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/smilemakc/mbflow/pkg/models"
)

// Environment is the (variables, input, local, helpers) bundle spec.md §9
// says every condition/guard/collection expression evaluates against.
type Environment struct {
	Variables map[string]interface{} `expr:"variables"`
	Input     map[string]interface{} `expr:"input"`
	Local     map[string]interface{} `expr:"local"`
}

// BuildEnvironment assembles an Environment from the live execution state,
// plus the GetGlobal/SetGlobal/GetInput/SetOutput helper closures bound
// against the same WorkflowExecutionContext/NodeExecutionContext.
func BuildEnvironment(variables *models.VariableStore, nodeCtx *models.NodeExecutionContext) map[string]interface{} {
	env := map[string]interface{}{
		"variables": variables.Snapshot(),
		"input":     map[string]interface{}{},
		"local":     map[string]interface{}{},
		"GetGlobal": func(name string) interface{} {
			v, _ := variables.Get(name)
			return v
		},
		"SetGlobal": func(name string, value interface{}) bool {
			variables.Set(name, value)
			return true
		},
	}
	if nodeCtx != nil {
		env["input"] = nodeCtx.InputData.ToMap()
		env["local"] = nodeCtx.LocalVariables.Snapshot()
		env["GetInput"] = func(name string) interface{} {
			v, _ := nodeCtx.InputData.Get(name)
			return v
		}
		env["SetOutput"] = func(name string, value interface{}) bool {
			nodeCtx.OutputData.Set(name, value)
			return true
		}
	}
	return env
}

// Evaluator compiles and caches expr programs and runs them against a
// supplied environment.
type Evaluator struct {
	cache *programCache
}

// New creates an Evaluator with the given compiled-program cache capacity.
func New(cacheCapacity int) *Evaluator {
	return &Evaluator{cache: newProgramCache(cacheCapacity)}
}

// Evaluate compiles (or reuses a cached compile of) source and runs it
// against env, returning the raw result.
func (e *Evaluator) Evaluate(source string, env map[string]interface{}) (interface{}, error) {
	if source == "" {
		return nil, nil
	}

	program, ok := e.cache.get(source)
	if !ok {
		compiled, err := expr.Compile(source, expr.Env(env), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression %q: %w", source, err)
		}
		program = compiled
		e.cache.put(source, program)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", source, err)
	}
	return result, nil
}

// EvaluateBool evaluates source and requires the result to be a bool. An
// absent (empty) source evaluates to true, matching the guard-expression
// and If/Else/While "empty means true/required" conventions used across
// spec.md §3 (connections) and §4.6 (control-flow conditions).
func (e *Evaluator) EvaluateBool(source string, env map[string]interface{}) (bool, error) {
	if source == "" {
		return true, nil
	}

	result, err := e.Evaluate(source, env)
	if err != nil {
		return false, err
	}

	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("%w: got %T", models.ErrConditionNotBoolean, result)
	}
	return b, nil
}

// EvaluateCollection evaluates source and requires a slice-like result,
// used by ForEach to obtain the items to iterate.
func (e *Evaluator) EvaluateCollection(source string, env map[string]interface{}) ([]interface{}, error) {
	result, err := e.Evaluate(source, env)
	if err != nil {
		return nil, err
	}

	switch v := result.(type) {
	case []interface{}:
		return v, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("collection expression %q did not return a list, got %T", source, result)
	}
}

// EvaluateString evaluates source and requires a string result, used by
// Switch to obtain its case-selector value.
func (e *Evaluator) EvaluateString(source string, env map[string]interface{}) (string, error) {
	result, err := e.Evaluate(source, env)
	if err != nil {
		return "", err
	}
	if s, ok := result.(string); ok {
		return s, nil
	}
	return fmt.Sprintf("%v", result), nil
}

// Len reports how many compiled programs are currently cached.
func (e *Evaluator) Len() int {
	return e.cache.len()
}
