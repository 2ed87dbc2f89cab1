// Package checkpoint implements save/restore of a running workflow instance
// to the schema defined in pkg/models.Checkpoint (spec.md §4.7 and §6): the
// workflow's status and variables, every node instance recorded so far, and
// the envelopes still sitting in each node's queue.
//
// Grounded on the teacher's internal/application/engine snapshot/restore
// conventions (state is captured as plain data, never by serializing Go
// channels or goroutines) and on internal/queue.NodeMessageQueue's existing
// Snapshot/RestoreFromCheckpoint pair, which this package is the other end
// of.
package checkpoint

import (
	"encoding/json"
	"fmt"

	"github.com/smilemakc/mbflow/pkg/models"
)

// messageTypeNames mirrors internal/queue's unexported typeName(), duplicated
// here because the two packages intentionally share no code: queue only
// needs the discriminator to drive its own Lease scan, checkpoint only needs
// it to pick a concrete Go type back out of encoded bytes.
const (
	typeNodeComplete = "models.NodeComplete"
	typeNodeFail     = "models.NodeFail"
	typeNodeNext     = "models.NodeNext"
	typeNodeCancel   = "models.NodeCancel"
	typeProgress     = "models.Progress"
)

// EncodeEnvelope converts a live queue envelope into its on-disk form.
func EncodeEnvelope(env *models.MessageEnvelope) (models.SerializedMessage, error) {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return models.SerializedMessage{}, fmt.Errorf("encoding envelope %s payload: %w", env.MessageID, err)
	}
	return models.SerializedMessage{
		MessageID:   env.MessageID,
		MessageType: env.MessageTypeName,
		PayloadJSON: payload,
		RetryCount:  env.RetryCount,
		NotBefore:   env.NotBefore,
		Status:      env.Status,
		MaxRetries:  env.MaxRetries,
	}, nil
}

// DecodeEnvelope reverses EncodeEnvelope, restoring the original concrete
// Message type so MessageRouter/NodeMessageQueue can keep treating it
// uniformly through the Message interface.
func DecodeEnvelope(sm models.SerializedMessage) (*models.MessageEnvelope, error) {
	payload, err := decodePayload(sm.MessageType, sm.PayloadJSON)
	if err != nil {
		return nil, fmt.Errorf("decoding envelope %s: %w", sm.MessageID, err)
	}
	// A checkpoint never captures an active Lease (leases are a runtime-only
	// concept tied to a handler goroutine that no longer exists after
	// restore). An envelope that was InFlight at snapshot time is restored
	// as Ready so the next worker picks it up directly instead of waiting on
	// recoverExpiredLeasesLocked to notice a lease that was never recorded.
	status := sm.Status
	if status == models.EnvelopeInFlight {
		status = models.EnvelopeReady
	}
	return &models.MessageEnvelope{
		MessageID:       sm.MessageID,
		MessageTypeName: sm.MessageType,
		Payload:         payload,
		Status:          status,
		RetryCount:      sm.RetryCount,
		MaxRetries:      sm.MaxRetries,
		NotBefore:       sm.NotBefore,
		EnqueuedAt:      payload.EmittedAt(),
	}, nil
}

func decodePayload(messageType string, raw []byte) (models.Message, error) {
	switch messageType {
	case typeNodeComplete:
		var m models.NodeComplete
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case typeNodeFail:
		var m models.NodeFail
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case typeNodeNext:
		var m models.NodeNext
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case typeNodeCancel:
		var m models.NodeCancel
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case typeProgress:
		var m models.Progress
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", messageType)
	}
}

// EncodeNodeInstance converts a live NodeInstance into its on-disk form.
func EncodeNodeInstance(inst *models.NodeInstance) models.CheckpointNodeInstance {
	c := models.CheckpointNodeInstance{
		NodeInstanceID: inst.InstanceID,
		NodeID:         inst.NodeID,
		Status:         inst.Status,
		ErrorMessage:   inst.ErrorMessage,
	}
	if !inst.StartTime.IsZero() {
		t := inst.StartTime
		c.StartTime = &t
	}
	if !inst.EndTime.IsZero() {
		t := inst.EndTime
		c.EndTime = &t
	}
	if inst.ExecutionContext != nil {
		c.InputData = inst.ExecutionContext.InputData.ToMap()
		c.OutputData = inst.ExecutionContext.OutputData.ToMap()
	}
	return c
}
