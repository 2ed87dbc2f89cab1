package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/pkg/models"
)

func TestDeadLetterQueue_EvictsOldestOnOverflow(t *testing.T) {
	dlq := NewDeadLetterQueue(2)
	dlq.Add("1", &models.MessageEnvelope{MessageID: "1"}, "reason-1", nil)
	dlq.Add("2", &models.MessageEnvelope{MessageID: "2"}, "reason-2", nil)
	dlq.Add("3", &models.MessageEnvelope{MessageID: "3"}, "reason-3", nil)

	assert.Equal(t, 2, dlq.Len())
	_, ok := dlq.Get("1")
	assert.False(t, ok)

	entries := dlq.List()
	require.Len(t, entries, 2)
	assert.Equal(t, "2", entries[0].EntryID)
	assert.Equal(t, "3", entries[1].EntryID)
}

func TestDeadLetterQueue_RemoveAndClear(t *testing.T) {
	dlq := NewDeadLetterQueue(10)
	dlq.Add("1", &models.MessageEnvelope{MessageID: "1"}, "reason", nil)

	assert.True(t, dlq.Remove("1"))
	assert.False(t, dlq.Remove("1"))

	dlq.Add("2", &models.MessageEnvelope{MessageID: "2"}, "reason", nil)
	dlq.Clear()
	assert.Equal(t, 0, dlq.Len())
}
