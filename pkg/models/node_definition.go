package models

import "fmt"

// RuntimeType identifies the concrete behavior a NodeDefinition carries out
// when the engine instantiates it.
type RuntimeType string

const (
	RuntimeNoop             RuntimeType = "noop"
	RuntimeCSharpTask       RuntimeType = "task"
	RuntimeCSharpScript     RuntimeType = "script"
	RuntimePowerShellTask   RuntimeType = "powershell_task"
	RuntimePowerShellScript RuntimeType = "powershell_script"
	RuntimeIfElse           RuntimeType = "if_else"
	RuntimeSwitch           RuntimeType = "switch"
	RuntimeForEach          RuntimeType = "for_each"
	RuntimeWhile            RuntimeType = "while"
	RuntimeContainer        RuntimeType = "container"
	RuntimeSubflow          RuntimeType = "subflow"
	RuntimeHTTPTask         RuntimeType = "task_http"
)

// definitionValidator is registered per RuntimeType so NodeDefinition.Validate
// can dispatch without reflection, mirroring pkg/executor.Registry's shape.
type definitionValidator func(*NodeDefinition) []string

var definitionValidators = map[RuntimeType]definitionValidator{}

// RegisterDefinitionValidator wires a RuntimeType-specific validation routine.
// Node packages call this from an init() so pkg/models stays decoupled from
// node implementations.
func RegisterDefinitionValidator(rt RuntimeType, fn definitionValidator) {
	definitionValidators[rt] = fn
}

// NodeDefinition is one vertex of a WorkflowDefinition's graph.
type NodeDefinition struct {
	ID             string                 `json:"id" yaml:"nodeId"`
	Name           string                 `json:"name" yaml:"nodeName"`
	RuntimeType    RuntimeType            `json:"runtimeType" yaml:"runtimeType"`
	Config         map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
	MaxConcurrency int                    `json:"maxConcurrency,omitempty" yaml:"maxConcurrency,omitempty"`
	Priority       int                    `json:"priority,omitempty" yaml:"priority,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// ChildNodes/ChildConnections are populated only for RuntimeContainer.
	ChildNodes       []*NodeDefinition `json:"childNodes,omitempty" yaml:"childNodes,omitempty"`
	ChildConnections []*NodeConnection `json:"childConnections,omitempty" yaml:"childConnections,omitempty"`

	// Subflow-only fields.
	WorkflowFilePath string              `json:"workflowFilePath,omitempty" yaml:"workflowFilePath,omitempty"`
	InlineWorkflow   *WorkflowDefinition `json:"inlineWorkflow,omitempty" yaml:"inlineWorkflow,omitempty"`
	InputMappings    map[string]string   `json:"inputMappings,omitempty" yaml:"inputMappings,omitempty"`
	OutputMappings   map[string]string   `json:"outputMappings,omitempty" yaml:"outputMappings,omitempty"`
}

// Validate returns human-readable diagnostics for this node definition. An
// empty slice means the node is structurally sound.
func (n *NodeDefinition) Validate() []string {
	var diags []string

	if n.ID == "" {
		diags = append(diags, "node id is required")
	}
	if n.Name == "" {
		diags = append(diags, fmt.Sprintf("node %q: name is required", n.ID))
	}
	if n.RuntimeType == "" {
		diags = append(diags, fmt.Sprintf("node %q: runtimeType is required", n.ID))
	}
	if n.MaxConcurrency < 0 {
		diags = append(diags, fmt.Sprintf("node %q: maxConcurrency must be >= 0", n.ID))
	}

	if fn, ok := definitionValidators[n.RuntimeType]; ok {
		diags = append(diags, fn(n)...)
	}

	return diags
}

// IsContainer reports whether this node owns a nested child graph.
func (n *NodeDefinition) IsContainer() bool {
	return n.RuntimeType == RuntimeContainer
}

// IsSubflow reports whether this node invokes a child workflow.
func (n *NodeDefinition) IsSubflow() bool {
	return n.RuntimeType == RuntimeSubflow
}
