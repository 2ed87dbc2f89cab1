// Package nodes implements the polymorphic node family spec.md §4.6 and
// §9 describe: a common capability interface plus one implementation per
// RuntimeType, registered in a reflection-free Registry -- the direct
// generalization of pkg/executor.Registry's Register/Get/Has/List/
// Unregister shape.
package nodes

import (
	"context"

	"github.com/smilemakc/mbflow/pkg/models"
)

// RunContext bundles what a Node.Execute call needs from the owning
// workflow instance: its variable store, an expression evaluator, and
// (for Container/Subflow) a way to run a nested definition to completion.
type RunContext struct {
	InstanceID string
	WorkflowID string
	Variables  *models.VariableStore
	Evaluator  Evaluator
	SubRunner  SubRunner
	Loader     WorkflowLoader
	Observer   Observer
}

// WorkflowLoader resolves a Subflow node's WorkflowFilePath to a parsed
// definition. internal/engine wires this to internal/loader; nodes itself
// stays free of file-format concerns.
type WorkflowLoader interface {
	Load(path string) (*models.WorkflowDefinition, error)
}

// Evaluator is the narrow slice of internal/expreval.Evaluator the node
// package needs, kept as an interface here to avoid nodes depending on
// expreval's concrete cache type.
type Evaluator interface {
	EvaluateBool(source string, env map[string]interface{}) (bool, error)
	EvaluateString(source string, env map[string]interface{}) (string, error)
	EvaluateCollection(source string, env map[string]interface{}) ([]interface{}, error)
	Evaluate(source string, env map[string]interface{}) (interface{}, error)
}

// SubRunner runs a nested WorkflowDefinition (a Container's child graph or
// a Subflow's target workflow) to terminal status and returns the resulting
// per-node instances plus the final variable snapshot. internal/engine
// implements this by recursively invoking itself; nodes never imports
// internal/engine (that would cycle), so the dependency is inverted here.
type SubRunner interface {
	RunToCompletion(ctx context.Context, def *models.WorkflowDefinition, initialVariables map[string]interface{}) (*SubRunResult, error)
}

// SubRunResult is what a nested run reports back to its owning Container or
// Subflow node.
type SubRunResult struct {
	Status        models.WorkflowRunStatus
	Variables     map[string]interface{}
	NodeInstances []*models.NodeInstance
	FailureNodeID string
	ErrorMessage  string
}

// Node is the capability every RuntimeType implementation provides.
type Node interface {
	// Initialize binds the node to its definition. Called once at
	// workflow-engine startup, before any Execute call.
	Initialize(def *models.NodeDefinition) error

	// Execute runs one instance of the node and returns its outcome. It
	// must observe cancel for cooperative cancellation (spec.md §5).
	Execute(ctx context.Context, run *RunContext, nodeCtx *models.NodeExecutionContext) (*models.NodeInstance, error)

	// Ports lists every source port this node kind may emit Completed on,
	// for documentation/validation purposes (the router itself only cares
	// about the port string on the emitted message).
	Ports() []string
}

// Observer receives lifecycle notifications as a node instance progresses.
// Implementations must not block (spec.md §4.5/§9: synchronous,
// non-blocking observers).
type Observer interface {
	OnNodeStarted(nodeID, instanceID string)
	OnNodeNext(nodeID, instanceID string, iterationIndex int)
}
