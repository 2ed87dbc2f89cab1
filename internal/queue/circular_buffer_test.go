package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/pkg/models"
)

func newTestEnvelope(id, typeName string, maxRetries int) *models.MessageEnvelope {
	return &models.MessageEnvelope{
		MessageID:       id,
		MessageTypeName: typeName,
		Status:          models.EnvelopeReady,
		MaxRetries:      maxRetries,
		EnqueuedAt:      time.Now(),
	}
}

func TestCircularBuffer_CapacityInvariant(t *testing.T) {
	cb := NewCircularBuffer(2)
	cb.Enqueue(newTestEnvelope("1", "T", 3))
	cb.Enqueue(newTestEnvelope("2", "T", 3))
	cb.Enqueue(newTestEnvelope("3", "T", 3))

	assert.LessOrEqual(t, cb.Len(), 2)
	// the oldest Ready envelope (1) should have been evicted.
	all := cb.GetAll()
	ids := map[string]bool{}
	for _, e := range all {
		ids[e.MessageID] = true
	}
	assert.False(t, ids["1"])
	assert.True(t, ids["2"])
	assert.True(t, ids["3"])
}

func TestCircularBuffer_CheckoutFIFO(t *testing.T) {
	cb := NewCircularBuffer(10)
	cb.Enqueue(newTestEnvelope("1", "T", 3))
	time.Sleep(time.Millisecond)
	cb.Enqueue(newTestEnvelope("2", "T", 3))

	env, ok := cb.Checkout("T", "worker-1", time.Second)
	require.True(t, ok)
	assert.Equal(t, "1", env.MessageID)
}

func TestCircularBuffer_LeaseExpiryRecoversWithRetry(t *testing.T) {
	cb := NewCircularBuffer(10)
	cb.Enqueue(newTestEnvelope("1", "T", 3))

	env, ok := cb.Checkout("T", "worker-1", 10*time.Millisecond)
	require.True(t, ok)
	require.Equal(t, 0, env.RetryCount)

	time.Sleep(20 * time.Millisecond)

	// A checkout attempt for any type triggers JIT recovery; requeue sets
	// NotBefore in the future so it will not be immediately re-leasable.
	_, ok = cb.Checkout("other-type", "worker-2", time.Second)
	assert.False(t, ok)

	all := cb.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, models.EnvelopeReady, all[0].Status)
	assert.Equal(t, 1, all[0].RetryCount)
	require.NotNil(t, all[0].NotBefore)
	assert.True(t, all[0].NotBefore.After(time.Now()))
}

func TestCircularBuffer_LeaseExpiryExhaustsRetriesToSuperseded(t *testing.T) {
	cb := NewCircularBuffer(10)
	env := newTestEnvelope("1", "T", 0)
	cb.Enqueue(env)

	_, ok := cb.Checkout("T", "worker-1", 5*time.Millisecond)
	require.True(t, ok)

	time.Sleep(15 * time.Millisecond)
	_, ok = cb.Checkout("T", "worker-2", time.Second)
	assert.False(t, ok)

	all := cb.GetAll()
	require.Len(t, all, 1)
	assert.True(t, all[0].IsSuperseded)
}

func TestCircularBuffer_AcknowledgeRemovesEnvelope(t *testing.T) {
	cb := NewCircularBuffer(10)
	cb.Enqueue(newTestEnvelope("1", "T", 3))
	env, ok := cb.Checkout("T", "worker-1", time.Second)
	require.True(t, ok)

	assert.True(t, cb.Acknowledge(env.MessageID))
	assert.Equal(t, 0, cb.Len())
	assert.False(t, cb.Acknowledge(env.MessageID))
}

func TestCircularBuffer_RequeueOnlyAllowedWhileInFlight(t *testing.T) {
	cb := NewCircularBuffer(10)
	cb.Enqueue(newTestEnvelope("1", "T", 3))

	assert.False(t, cb.Requeue("1", nil))

	env, ok := cb.Checkout("T", "worker-1", time.Second)
	require.True(t, ok)
	assert.True(t, cb.Requeue(env.MessageID, nil))

	all := cb.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, models.EnvelopeReady, all[0].Status)
	assert.Equal(t, 1, all[0].RetryCount)
}

func TestCircularBuffer_ReplaceSupersedesMatchingKey(t *testing.T) {
	cb := NewCircularBuffer(10)
	old := newTestEnvelope("1", "T", 3)
	old.DeduplicationKey = "dedupe-key"
	cb.Enqueue(old)

	newer := newTestEnvelope("2", "T", 3)
	newer.DeduplicationKey = "dedupe-key"
	cb.Replace(newer, "dedupe-key")

	all := cb.GetAll()
	var supersededCount int
	for _, e := range all {
		if e.MessageID == "1" {
			assert.True(t, e.IsSuperseded)
			supersededCount++
		}
	}
	assert.Equal(t, 1, supersededCount)

	_, ok := cb.Checkout("T", "worker-1", time.Second)
	require.True(t, ok)
}

func TestCircularBuffer_RestorePreservesStatusAndLease(t *testing.T) {
	cb := NewCircularBuffer(10)
	env := newTestEnvelope("1", "T", 3)
	env.Status = models.EnvelopeInFlight
	env.Lease = &models.Lease{HandlerID: "old-worker", ExpiresAt: time.Now().Add(time.Hour)}
	cb.Restore(env)

	all := cb.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, models.EnvelopeInFlight, all[0].Status)
	require.NotNil(t, all[0].Lease)
	assert.Equal(t, "old-worker", all[0].Lease.HandlerID)
}
