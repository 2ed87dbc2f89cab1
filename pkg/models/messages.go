package models

import "time"

// Message is the common capability of every payload the router and queues
// move around: NodeComplete, NodeFail, NodeNext, NodeCancel, Progress.
type Message interface {
	MessageKind() TriggerKind
	Emitter() string
	EmittedAt() time.Time
	ID() string
}

type messageBase struct {
	MessageIDValue string    `json:"messageId"`
	NodeIDValue    string    `json:"nodeId"`
	TimestampValue time.Time `json:"timestamp"`
}

func (m messageBase) ID() string            { return m.MessageIDValue }
func (m messageBase) Emitter() string       { return m.NodeIDValue }
func (m messageBase) EmittedAt() time.Time  { return m.TimestampValue }

// NewMessageBase builds the shared fields every message embeds.
func NewMessageBase(messageID, nodeID string) messageBase {
	return messageBase{MessageIDValue: messageID, NodeIDValue: nodeID, TimestampValue: time.Now()}
}

// NodeComplete signals a node finished successfully on a given source port.
type NodeComplete struct {
	messageBase
	SourcePort string
	Context    *NodeExecutionContext
}

func (NodeComplete) MessageKind() TriggerKind { return TriggerComplete }

// NewNodeComplete builds a NodeComplete with a fresh message id and
// timestamp.
func NewNodeComplete(messageID, nodeID, sourcePort string, ctx *NodeExecutionContext) NodeComplete {
	return NodeComplete{messageBase: NewMessageBase(messageID, nodeID), SourcePort: sourcePort, Context: ctx}
}

// NodeFail signals a node execution failed.
type NodeFail struct {
	messageBase
	Error     string
	Exception error
	Context   *NodeExecutionContext
}

func (NodeFail) MessageKind() TriggerKind { return TriggerFail }

// NewNodeFail builds a NodeFail with a fresh message id and timestamp.
func NewNodeFail(messageID, nodeID, errMsg string, exception error, ctx *NodeExecutionContext) NodeFail {
	return NodeFail{messageBase: NewMessageBase(messageID, nodeID), Error: errMsg, Exception: exception, Context: ctx}
}

// NodeNext signals one iteration of a looping/iterating node (ForEach/
// While).
type NodeNext struct {
	messageBase
	IterationIndex int
	IterationCtx   *NodeExecutionContext
}

func (NodeNext) MessageKind() TriggerKind { return TriggerNext }

// NewNodeNext builds a NodeNext with a fresh message id and timestamp.
func NewNodeNext(messageID, nodeID string, iterationIndex int, iterationCtx *NodeExecutionContext) NodeNext {
	return NodeNext{messageBase: NewMessageBase(messageID, nodeID), IterationIndex: iterationIndex, IterationCtx: iterationCtx}
}

// NodeCancel signals a node execution was cancelled.
type NodeCancel struct {
	messageBase
	Reason string
}

func (NodeCancel) MessageKind() TriggerKind { return TriggerCancel }

// NewNodeCancel builds a NodeCancel with a fresh message id and timestamp.
func NewNodeCancel(messageID, nodeID, reason string) NodeCancel {
	return NodeCancel{messageBase: NewMessageBase(messageID, nodeID), Reason: reason}
}

// Progress carries an in-flight percent-complete/status-text update. It is
// never routed by MessageRouter (observability only) but shares the
// Message shape for uniform observer plumbing.
type Progress struct {
	messageBase
	Percent    float64
	StatusText string
}

func (Progress) MessageKind() TriggerKind { return "" }

// NewProgress builds a Progress message with a fresh message id and
// timestamp.
func NewProgress(messageID, nodeID string, percent float64, statusText string) Progress {
	return Progress{messageBase: NewMessageBase(messageID, nodeID), Percent: percent, StatusText: statusText}
}
