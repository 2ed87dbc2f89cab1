package models

import "fmt"

// WorkflowDefinition is the immutable (post-validation) description of a
// workflow graph: its nodes, the connections wiring them, and run defaults.
type WorkflowDefinition struct {
	WorkflowID        string                 `json:"workflowId" yaml:"workflowId"`
	WorkflowName      string                 `json:"workflowName" yaml:"workflowName"`
	Description       string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Version           string                 `json:"version,omitempty" yaml:"version,omitempty"`
	EntryPointNodeID  string                 `json:"entryPointNodeId,omitempty" yaml:"entryPointNodeId,omitempty"`
	MaxConcurrency    int                    `json:"maxConcurrency,omitempty" yaml:"maxConcurrency,omitempty"`
	AllowPause        bool                   `json:"allowPause,omitempty" yaml:"allowPause,omitempty"`
	TimeoutSeconds    int                    `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
	DefaultVariables  map[string]interface{} `json:"defaultVariables,omitempty" yaml:"defaultVariables,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Nodes             []*NodeDefinition      `json:"nodes" yaml:"nodes"`
	Connections       []*NodeConnection      `json:"connections" yaml:"connections"`
}

// Validate checks structural integrity: unique node ids, connections
// referencing real nodes, and per-node/per-connection diagnostics. It
// returns every diagnostic found rather than stopping at the first.
func (w *WorkflowDefinition) Validate() ValidationErrors {
	var errs ValidationErrors

	if w.WorkflowID == "" {
		errs = append(errs, ValidationError{Field: "workflowId", Message: "workflowId is required"})
	}
	if len(w.Nodes) == 0 {
		errs = append(errs, ValidationError{Field: "nodes", Message: "at least one node is required"})
	}

	nodeIDs := make(map[string]bool, len(w.Nodes))
	for _, n := range w.Nodes {
		for _, d := range n.Validate() {
			errs = append(errs, ValidationError{Field: "nodes", Message: d})
		}
		if n.ID == "" {
			continue
		}
		if nodeIDs[n.ID] {
			errs = append(errs, ValidationError{Field: "nodes", Message: fmt.Sprintf("duplicate node id: %s", n.ID)})
		}
		nodeIDs[n.ID] = true
	}

	connIDs := make(map[string]bool, len(w.Connections))
	for _, c := range w.Connections {
		for _, d := range c.Validate() {
			errs = append(errs, ValidationError{Field: "connections", Message: d})
		}
		if c.ID != "" {
			if connIDs[c.ID] {
				errs = append(errs, ValidationError{Field: "connections", Message: fmt.Sprintf("duplicate connection id: %s", c.ID)})
			}
			connIDs[c.ID] = true
		}
		if c.From != "" && !nodeIDs[c.From] {
			errs = append(errs, ValidationError{Field: "connections", Message: fmt.Sprintf("connection references unknown source node: %s", c.From)})
		}
		if c.To != "" && !nodeIDs[c.To] {
			errs = append(errs, ValidationError{Field: "connections", Message: fmt.Sprintf("connection references unknown target node: %s", c.To)})
		}
	}

	if w.EntryPointNodeID != "" && !nodeIDs[w.EntryPointNodeID] {
		errs = append(errs, ValidationError{Field: "entryPointNodeId", Message: "entryPointNodeId references unknown node"})
	}

	return errs
}

// GetNode returns a node definition by id.
func (w *WorkflowDefinition) GetNode(id string) (*NodeDefinition, error) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, ErrNodeNotFound
}

// ConnectionsFrom returns every connection whose source is nodeID, in
// definition order.
func (w *WorkflowDefinition) ConnectionsFrom(nodeID string) []*NodeConnection {
	var out []*NodeConnection
	for _, c := range w.Connections {
		if c.From == nodeID {
			out = append(out, c)
		}
	}
	return out
}

// EntryPoints returns nodes with no enabled incoming connection, i.e. the
// nodes the engine synthesizes a start trigger for. If EntryPointNodeID is
// set explicitly it is the sole entry point.
func (w *WorkflowDefinition) EntryPoints() []*NodeDefinition {
	if w.EntryPointNodeID != "" {
		if n, err := w.GetNode(w.EntryPointNodeID); err == nil {
			return []*NodeDefinition{n}
		}
	}

	hasIncoming := make(map[string]bool, len(w.Nodes))
	for _, c := range w.Connections {
		if c.Enabled {
			hasIncoming[c.To] = true
		}
	}

	var entries []*NodeDefinition
	for _, n := range w.Nodes {
		if !hasIncoming[n.ID] {
			entries = append(entries, n)
		}
	}
	return entries
}
