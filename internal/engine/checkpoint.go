package engine

import (
	"context"
	"fmt"

	"github.com/smilemakc/mbflow/internal/checkpoint"
	"github.com/smilemakc/mbflow/internal/expreval"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	"github.com/smilemakc/mbflow/internal/nodes"
	"github.com/smilemakc/mbflow/pkg/models"
)

// checkpointView adapts a WorkflowEngine to checkpoint.EngineState without
// internal/checkpoint importing internal/engine (the dependency points the
// other way: engine imports checkpoint).
type checkpointView struct{ e *WorkflowEngine }

func (v checkpointView) InstanceID() string                 { return v.e.instanceID }
func (v checkpointView) WorkflowID() string                 { return v.e.def.WorkflowID }
func (v checkpointView) Variables() map[string]interface{}  { return v.e.variables.Snapshot() }
func (v checkpointView) Instances() []*models.NodeInstance {
	_, _, _, instances := v.e.snapshotStatus()
	return instances
}

func (v checkpointView) Status() models.WorkflowRunStatus {
	status, _, _, _ := v.e.snapshotStatus()
	return status
}

func (v checkpointView) QueueSnapshots() map[string][]*models.MessageEnvelope {
	out := make(map[string][]*models.MessageEnvelope, len(v.e.rts))
	for nodeID, rt := range v.e.rts {
		out[nodeID] = rt.queue.Snapshot()
	}
	return out
}

// Checkpoint captures the engine's current state as a point-in-time
// Checkpoint document, per spec.md §4.7. Safe to call concurrently with a
// running Run -- every source it reads (variables, instances, queues) is
// already synchronized internally.
func (e *WorkflowEngine) Checkpoint(description string) (*models.Checkpoint, error) {
	return checkpoint.Capture(checkpointView{e}, description)
}

// Resume rebuilds a WorkflowEngine from a previously captured Checkpoint and
// resumes it: every node's queue is reseeded from the checkpoint's
// MessageQueues (so in-flight-at-snapshot-time work is redelivered) instead
// of synthesizing entry-point triggers, variables are restored verbatim, and
// prior node instances are preserved in the returned Result's history.
func Resume(cp *models.Checkpoint, def *models.WorkflowDefinition, registry *nodes.Registry, evaluator *expreval.Evaluator, loader nodes.WorkflowLoader, cfg Config, log *logger.Logger) (*WorkflowEngine, error) {
	e, err := New(def, cp.Context.Variables, registry, evaluator, loader, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("rebuilding engine for resume: %w", err)
	}
	e.instanceID = cp.Metadata.WorkflowInstanceID

	queues, err := checkpoint.Restore(cp)
	if err != nil {
		return nil, fmt.Errorf("restoring checkpoint: %w", err)
	}
	for nodeID, envs := range queues {
		rt, ok := e.rts[nodeID]
		if !ok {
			continue
		}
		for _, env := range envs {
			rt.queue.RestoreFromCheckpoint(env)
		}
	}

	for _, ci := range cp.NodeInstances {
		inst := &models.NodeInstance{
			InstanceID:         ci.NodeInstanceID,
			NodeID:             ci.NodeID,
			WorkflowInstanceID: e.instanceID,
			Status:             ci.Status,
			ErrorMessage:       ci.ErrorMessage,
		}
		if ci.StartTime != nil {
			inst.StartTime = *ci.StartTime
		}
		if ci.EndTime != nil {
			inst.EndTime = *ci.EndTime
		}
		e.recordInstance(inst)
	}

	return e, nil
}

// RunResumed starts a checkpoint-restored engine's workers directly,
// skipping entry-trigger synthesis since the restored queues already carry
// whatever work was pending at snapshot time.
func (e *WorkflowEngine) RunResumed(ctx context.Context) (*Result, error) {
	return e.run(ctx, false)
}
