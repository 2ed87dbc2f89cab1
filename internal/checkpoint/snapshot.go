package checkpoint

import (
	"fmt"
	"time"

	"github.com/smilemakc/mbflow/pkg/models"
)

// EngineState is the minimal view of a running WorkflowEngine a Capture call
// needs. internal/engine.WorkflowEngine satisfies this without importing
// this package in the other direction (checkpoint never imports engine).
type EngineState interface {
	InstanceID() string
	WorkflowID() string
	Status() models.WorkflowRunStatus
	Variables() map[string]interface{}
	Instances() []*models.NodeInstance
	QueueSnapshots() map[string][]*models.MessageEnvelope
}

// Capture builds a Checkpoint document from a running engine's current
// state, per spec.md §4.7's "a checkpoint is a point-in-time snapshot of
// the full set of pending messages, node instances, and variables".
func Capture(state EngineState, description string) (*models.Checkpoint, error) {
	queues := state.QueueSnapshots()

	messageQueues := make(map[string][]models.SerializedMessage, len(queues))
	pending := 0
	for nodeID, envs := range queues {
		serialized := make([]models.SerializedMessage, 0, len(envs))
		for _, env := range envs {
			sm, err := EncodeEnvelope(env)
			if err != nil {
				return nil, err
			}
			serialized = append(serialized, sm)
		}
		messageQueues[nodeID] = serialized
		pending += len(envs)
	}

	instances := state.Instances()
	checkpointInstances := make([]models.CheckpointNodeInstance, 0, len(instances))
	completed := 0
	for _, inst := range instances {
		checkpointInstances = append(checkpointInstances, EncodeNodeInstance(inst))
		if inst.Status.IsTerminal() {
			completed++
		}
	}

	cp := &models.Checkpoint{
		Metadata: models.CheckpointMetadata{
			WorkflowInstanceID: state.InstanceID(),
			WorkflowID:         state.WorkflowID(),
			Timestamp:          time.Now(),
			TotalNodes:         len(instances),
			CompletedNodes:     completed,
			PendingNodes:       pending,
			Description:        description,
		},
		NodeInstances: checkpointInstances,
		MessageQueues: messageQueues,
	}
	cp.Context.Status = state.Status()
	cp.Context.Variables = state.Variables()
	cp.Context.StartTime = time.Now()

	return cp, nil
}

// Restore decodes every queued envelope in cp back into live
// *models.MessageEnvelope values, grouped by node id, ready to hand to each
// node's NodeMessageQueue.RestoreFromCheckpoint.
func Restore(cp *models.Checkpoint) (map[string][]*models.MessageEnvelope, error) {
	out := make(map[string][]*models.MessageEnvelope, len(cp.MessageQueues))
	for nodeID, serialized := range cp.MessageQueues {
		envs := make([]*models.MessageEnvelope, 0, len(serialized))
		for _, sm := range serialized {
			env, err := DecodeEnvelope(sm)
			if err != nil {
				return nil, fmt.Errorf("restoring node %q queue: %w", nodeID, err)
			}
			envs = append(envs, env)
		}
		out[nodeID] = envs
	}
	return out, nil
}
