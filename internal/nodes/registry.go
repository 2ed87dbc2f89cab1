package nodes

import (
	"fmt"
	"sync"

	"github.com/smilemakc/mbflow/pkg/models"
)

// Constructor builds a fresh Node instance for one NodeDefinition. A new
// Node is constructed per node id at engine-start time (not per execution:
// a single Node value handles many executions sequentially, per spec.md §5
// "at most one message per node executing at any time").
type Constructor func() Node

// Registry maps RuntimeType to a Constructor, avoiding reflection-based
// factories per spec.md §9. Grounded on pkg/executor.Registry.
type Registry struct {
	mu           sync.RWMutex
	constructors map[models.RuntimeType]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[models.RuntimeType]Constructor)}
}

// Register wires rt to a Constructor.
func (r *Registry) Register(rt models.RuntimeType, ctor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rt == "" {
		return fmt.Errorf("runtime type cannot be empty")
	}
	if ctor == nil {
		return fmt.Errorf("constructor cannot be nil")
	}
	r.constructors[rt] = ctor
	return nil
}

// New instantiates and initializes a Node for def.
func (r *Registry) New(def *models.NodeDefinition) (Node, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[def.RuntimeType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownRuntimeType, def.RuntimeType)
	}

	node := ctor()
	if err := node.Initialize(def); err != nil {
		return nil, fmt.Errorf("initializing node %q: %w", def.ID, err)
	}
	return node, nil
}

// Has reports whether rt has a registered constructor.
func (r *Registry) Has(rt models.RuntimeType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.constructors[rt]
	return ok
}

// List returns every registered RuntimeType.
func (r *Registry) List() []models.RuntimeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.RuntimeType, 0, len(r.constructors))
	for rt := range r.constructors {
		out = append(out, rt)
	}
	return out
}

// DefaultRegistry builds a Registry with every built-in node kind
// registered, the way pkg/executor/builtin.RegisterBuiltins wires the
// teacher's executors.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(models.RuntimeNoop, func() Node { return &NoopNode{} })
	_ = r.Register(models.RuntimeCSharpTask, func() Node { return &TaskNode{} })
	_ = r.Register(models.RuntimeCSharpScript, func() Node { return &TaskNode{} })
	_ = r.Register(models.RuntimePowerShellTask, func() Node { return &TaskNode{} })
	_ = r.Register(models.RuntimePowerShellScript, func() Node { return &TaskNode{} })
	_ = r.Register(models.RuntimeIfElse, func() Node { return &IfElseNode{} })
	_ = r.Register(models.RuntimeSwitch, func() Node { return &SwitchNode{} })
	_ = r.Register(models.RuntimeForEach, func() Node { return &ForEachNode{} })
	_ = r.Register(models.RuntimeWhile, func() Node { return &WhileNode{} })
	_ = r.Register(models.RuntimeContainer, func() Node { return &ContainerNode{} })
	_ = r.Register(models.RuntimeSubflow, func() Node { return &SubflowNode{} })
	_ = r.Register(models.RuntimeHTTPTask, NewHTTPTaskNode(nil))
	return r
}

// WithRateLimiter replaces the registered task_http constructor with one
// that enforces limiter on every call, e.g. wiring internal/nodes.
// RedisRateLimiter in cmd/server so rateLimit config on an HTTP task node
// is actually enforced.
func (r *Registry) WithRateLimiter(limiter RateLimiter) *Registry {
	_ = r.Register(models.RuntimeHTTPTask, NewHTTPTaskNode(limiter))
	return r
}
