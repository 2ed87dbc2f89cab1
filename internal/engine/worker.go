package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/mbflow/pkg/models"
)

// runWorker is the per-node worker loop spec.md §4.5 specifies: parallel
// across nodes, strictly sequential within one node. It wakes on the
// queue's coalescing signal or a short poll tick (the latter drives lease-
// expiry recovery when no new message arrives), leases everything currently
// eligible, executes it, and routes whatever the node emits.
func (e *WorkflowEngine) runWorker(ctx context.Context, nodeID string, rt *nodeRuntime) {
	handlerID := uuid.NewString()
	ticker := time.NewTicker(e.cfg.WorkerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-rt.queue.Signal():
		case <-ticker.C:
		}

		for {
			if ctx.Err() != nil {
				return
			}
			env, ok := rt.queue.Lease(handlerID)
			if !ok {
				break
			}
			e.processEnvelope(ctx, nodeID, rt, env)
		}
	}
}

// contextFromMessage extracts the NodeExecutionContext an incoming trigger
// carries (the snapshot its emitter captured), falling back to a fresh one
// for messages that carry none (e.g. the synthesized entry trigger).
func contextFromMessage(msg models.Message) *models.NodeExecutionContext {
	switch m := msg.(type) {
	case models.NodeComplete:
		if m.Context != nil {
			return m.Context
		}
	case models.NodeFail:
		if m.Context != nil {
			return m.Context
		}
	case models.NodeNext:
		if m.IterationCtx != nil {
			return m.IterationCtx
		}
	}
	return models.NewNodeExecutionContext()
}

// nodeTimeout reads a node's optional per-execution timeout from its
// definition config, implementing spec.md §4.5's "node-level timeouts".
func nodeTimeout(def *models.NodeDefinition) time.Duration {
	switch v := def.Config["timeoutSeconds"].(type) {
	case float64:
		return time.Duration(v) * time.Second
	case int:
		return time.Duration(v) * time.Second
	}
	return 0
}

func (e *WorkflowEngine) hasFailureRoute(nodeID string) bool {
	for _, c := range e.def.ConnectionsFrom(nodeID) {
		if c.Enabled && c.Trigger == models.TriggerFail {
			return true
		}
	}
	return false
}

// processEnvelope executes one leased message against its owning node and
// routes the resulting emission, per the worker-loop pseudocode in
// spec.md §4.5.
func (e *WorkflowEngine) processEnvelope(ctx context.Context, nodeID string, rt *nodeRuntime, env *models.MessageEnvelope) {
	atomic.AddInt64(&e.inFlight, 1)
	defer atomic.AddInt64(&e.inFlight, -1)

	instanceID := uuid.NewString()
	e.obs.Notify(Event{Type: EventNodeStarted, WorkflowID: e.def.WorkflowID, NodeID: nodeID, InstanceID: instanceID, Timestamp: time.Now()})

	nodeCtx := contextFromMessage(env.Payload)

	execCtx := ctx
	if timeout := nodeTimeout(rt.def); timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	inst, err := rt.node.Execute(execCtx, e.runContextFor(), nodeCtx)
	if err != nil {
		// A Node implementation returning a Go error (as opposed to a
		// Failed-status NodeInstance) is a programming error in the node
		// itself; treat it as a fatal node failure rather than crash the
		// worker, per spec.md §5 "errors are never raised across worker
		// boundaries".
		inst = &models.NodeInstance{
			InstanceID:         instanceID,
			NodeID:             nodeID,
			WorkflowInstanceID: e.instanceID,
			Status:             models.InstanceFailed,
			StartTime:          time.Now(),
			EndTime:            time.Now(),
			ErrorMessage:       err.Error(),
			Exception:          err,
			ExecutionContext:   nodeCtx,
		}
	}
	inst.InstanceID = instanceID
	e.recordInstance(inst)

	var emit models.Message
	switch inst.Status {
	case models.InstanceCompleted:
		emit = models.NewNodeComplete(uuid.NewString(), nodeID, inst.SourcePort, nodeCtx.Snapshot())
		e.obs.Notify(Event{Type: EventNodeCompleted, WorkflowID: e.def.WorkflowID, NodeID: nodeID, InstanceID: instanceID, Duration: inst.Duration(), Timestamp: time.Now()})
	case models.InstanceFailed:
		emit = models.NewNodeFail(uuid.NewString(), nodeID, inst.ErrorMessage, inst.Exception, nodeCtx.Snapshot())
		e.obs.Notify(Event{Type: EventNodeFailed, WorkflowID: e.def.WorkflowID, NodeID: nodeID, InstanceID: instanceID, Error: inst.ErrorMessage, Timestamp: time.Now()})
		if !e.hasFailureRoute(nodeID) {
			e.setStatus(models.WorkflowRunFailed, nodeID, inst.ErrorMessage)
		}
	case models.InstanceCancelled:
		emit = models.NewNodeCancel(uuid.NewString(), nodeID, inst.ErrorMessage)
		e.obs.Notify(Event{Type: EventNodeCancelled, WorkflowID: e.def.WorkflowID, NodeID: nodeID, InstanceID: instanceID, Timestamp: time.Now()})
	default:
		emit = models.NewNodeComplete(uuid.NewString(), nodeID, inst.SourcePort, nodeCtx.Snapshot())
	}

	rt.queue.Complete(env.MessageID)
	e.router.RouteMessage(emit, nodeCtx)
}
