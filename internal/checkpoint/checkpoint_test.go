package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/pkg/models"
)

func TestEncodeDecodeEnvelope_RoundTrips(t *testing.T) {
	env := &models.MessageEnvelope{
		MessageID:       "m1",
		MessageTypeName: "models.NodeComplete",
		Payload:         models.NewNodeComplete("m1", "node-a", "", models.NewNodeExecutionContext()),
		Status:          models.EnvelopeReady,
		RetryCount:      1,
		MaxRetries:      3,
		EnqueuedAt:      time.Now(),
	}

	sm, err := EncodeEnvelope(env)
	require.NoError(t, err)
	assert.Equal(t, "m1", sm.MessageID)

	decoded, err := DecodeEnvelope(sm)
	require.NoError(t, err)
	assert.Equal(t, env.MessageID, decoded.MessageID)
	assert.Equal(t, models.EnvelopeReady, decoded.Status)
	assert.IsType(t, models.NodeComplete{}, decoded.Payload)
}

func TestDecodeEnvelope_InFlightRestoresAsReady(t *testing.T) {
	env := &models.MessageEnvelope{
		MessageID:       "m2",
		MessageTypeName: "models.NodeComplete",
		Payload:         models.NewNodeComplete("m2", "node-a", "", models.NewNodeExecutionContext()),
		Status:          models.EnvelopeInFlight,
	}
	sm, err := EncodeEnvelope(env)
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(sm)
	require.NoError(t, err)
	assert.Equal(t, models.EnvelopeReady, decoded.Status, "InFlight envelopes must not be restored as InFlight with no lease")
	assert.Nil(t, decoded.Lease)
}

func TestDecodeEnvelope_UnknownMessageTypeFails(t *testing.T) {
	_, err := DecodeEnvelope(models.SerializedMessage{MessageType: "models.Bogus", PayloadJSON: []byte(`{}`)})
	require.Error(t, err)
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	cp := &models.Checkpoint{
		Metadata: models.CheckpointMetadata{
			WorkflowInstanceID: "inst-1",
			WorkflowID:         "wf-1",
			Description:        "mid-run snapshot",
		},
	}
	cp.Context.Status = models.WorkflowRunRunning
	cp.Context.Variables = map[string]interface{}{"x": 1}

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, cp))
	assert.NotEmpty(t, cp.Metadata.CheckpointID)
	assert.Positive(t, cp.Metadata.SizeBytes)

	loaded, err := store.Load(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "mid-run snapshot", loaded.Metadata.Description)
	assert.Equal(t, float64(1), loaded.Context.Variables["x"])
}

func TestFileStore_LoadMissingInstanceFails(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = store.Load(context.Background(), "no-such-instance")
	assert.ErrorIs(t, err, models.ErrCheckpointNotFound)
}

func TestFileStore_LoadReturnsMostRecent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	first := &models.Checkpoint{Metadata: models.CheckpointMetadata{WorkflowInstanceID: "inst-2", Description: "first"}}
	require.NoError(t, store.Save(ctx, first))
	time.Sleep(5 * time.Millisecond)
	second := &models.Checkpoint{Metadata: models.CheckpointMetadata{WorkflowInstanceID: "inst-2", Description: "second"}}
	require.NoError(t, store.Save(ctx, second))

	loaded, err := store.Load(ctx, "inst-2")
	require.NoError(t, err)
	assert.Equal(t, "second", loaded.Metadata.Description)
}

func TestFileStore_DeleteRemovesCheckpoint(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	cp := &models.Checkpoint{Metadata: models.CheckpointMetadata{WorkflowInstanceID: "inst-3"}}
	require.NoError(t, store.Save(ctx, cp))
	require.NoError(t, store.Delete(ctx, cp.Metadata.CheckpointID))

	_, err = store.Load(ctx, "inst-3")
	assert.ErrorIs(t, err, models.ErrCheckpointNotFound)
}

func TestRestore_GroupsEnvelopesByNode(t *testing.T) {
	sm, err := EncodeEnvelope(&models.MessageEnvelope{
		MessageID:       "m3",
		MessageTypeName: "models.NodeComplete",
		Payload:         models.NewNodeComplete("m3", "node-b", "", models.NewNodeExecutionContext()),
		Status:          models.EnvelopeReady,
	})
	require.NoError(t, err)

	cp := &models.Checkpoint{MessageQueues: map[string][]models.SerializedMessage{"node-b": {sm}}}
	queues, err := Restore(cp)
	require.NoError(t, err)
	require.Len(t, queues["node-b"], 1)
	assert.Equal(t, "m3", queues["node-b"][0].MessageID)
}
