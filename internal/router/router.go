// Package router implements MessageRouter: given a completion/failure/
// progress signal from a source node, it delivers the signal to the queues
// of downstream nodes after evaluating enabled-flag, trigger-type,
// source-port, and guard-expression filters (spec.md §4.4). It is grounded
// directly on the teacher's DAGExecutor.shouldExecuteNode edge-filter loop,
// re-targeted at delivering into NodeMessageQueues instead of deciding wave
// membership.
package router

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/mbflow/internal/expreval"
	"github.com/smilemakc/mbflow/internal/queue"
	"github.com/smilemakc/mbflow/pkg/models"
)

// sourcePortOf extracts the port a message was emitted on. Only NodeComplete
// and NodeNext carry a meaningful port; everything else routes on the empty
// (default) port.
func sourcePortOf(msg models.Message) string {
	switch m := msg.(type) {
	case models.NodeComplete:
		return m.SourcePort
	case *models.NodeComplete:
		return m.SourcePort
	}
	return ""
}

// MessageRouter holds the connection table for one workflow instance and
// routes emitted messages to downstream NodeMessageQueues.
type MessageRouter struct {
	connectionsBySource map[string][]*models.NodeConnection
	evaluator           *expreval.Evaluator
	variables           *models.VariableStore
	deadLetter          *queue.DeadLetterQueue
	queues              map[string]*queue.NodeMessageQueue
}

// New builds a router seeded with def's connections. queues must already
// contain an entry for every node id def declares; additional entries may
// be added later via SetQueue (e.g. as a container/subflow wires its
// children incrementally).
func New(def *models.WorkflowDefinition, variables *models.VariableStore, evaluator *expreval.Evaluator, dlq *queue.DeadLetterQueue, queues map[string]*queue.NodeMessageQueue) *MessageRouter {
	r := &MessageRouter{
		connectionsBySource: make(map[string][]*models.NodeConnection),
		evaluator:           evaluator,
		variables:           variables,
		deadLetter:          dlq,
		queues:              queues,
	}
	for _, c := range def.Connections {
		r.connectionsBySource[c.From] = append(r.connectionsBySource[c.From], c)
	}
	return r
}

// SetQueue registers (or replaces) the queue a node id routes into.
func (r *MessageRouter) SetQueue(nodeID string, q *queue.NodeMessageQueue) {
	r.queues[nodeID] = q
}

// RouteMessage delivers msg (emitted by sourceCtx's owning node) to every
// downstream connection whose filters pass. It returns the number of
// successful deliveries; per-connection failures are dead-lettered but
// never abort routing of the remaining connections (fan-out is not atomic).
func (r *MessageRouter) RouteMessage(msg models.Message, sourceCtx *models.NodeExecutionContext) int {
	sourceNodeID := msg.Emitter()
	trigger := msg.MessageKind()
	port := sourcePortOf(msg)

	delivered := 0
	for _, conn := range r.connectionsBySource[sourceNodeID] {
		if !conn.Matches(trigger, port) {
			continue
		}

		guardOK, err := r.evaluateGuard(conn.Guard, sourceCtx)
		if err != nil {
			// spec.md §4.4: guard evaluation errors are treated as false;
			// syntactic errors are meant to surface at workflow-load time,
			// not here, so this only catches runtime eval failures.
			continue
		}
		if !guardOK {
			continue
		}

		if r.deliver(conn, msg) {
			delivered++
		}
	}
	return delivered
}

func (r *MessageRouter) deliver(conn *models.NodeConnection, msg models.Message) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.deadLetterFailedRoute(conn.To, msg, fmt.Errorf("panic during delivery: %v", rec))
			ok = false
		}
	}()

	target, found := r.queues[conn.To]
	if !found {
		r.deadLetterFailedRoute(conn.To, msg, nil)
		return false
	}

	target.Enqueue(msg)
	return true
}

func (r *MessageRouter) deadLetterFailedRoute(targetNodeID string, msg models.Message, cause error) {
	env := &models.MessageEnvelope{
		MessageID:       msg.ID(),
		MessageTypeName: fmt.Sprintf("%T", msg),
		Payload:         msg,
		Status:          models.EnvelopeCompleted,
		EnqueuedAt:      time.Now(),
	}
	r.deadLetter.Add(uuid.NewString(), env, fmt.Sprintf("Failed to route to %s", targetNodeID), cause)
}

func (r *MessageRouter) evaluateGuard(guard string, sourceCtx *models.NodeExecutionContext) (bool, error) {
	if guard == "" {
		return true, nil
	}
	env := expreval.BuildEnvironment(r.variables, sourceCtx)
	return r.evaluator.EvaluateBool(guard, env)
}
