package queue

import (
	"container/list"
	"sync"
	"time"

	"github.com/smilemakc/mbflow/pkg/models"
)

// DeadLetterEntry is one permanently-failed message retained for
// diagnostics.
type DeadLetterEntry struct {
	EntryID   string
	Envelope  *models.MessageEnvelope
	Reason    string
	Exception error
	Timestamp time.Time
}

// DeadLetterQueue is a bounded FIFO tail of DeadLetterEntry, grounded on the
// teacher's ConditionCache LRU-list shape: a container/list.List plus a
// lookup map, evicting the oldest entry on overflow instead of the least
// recently used one.
type DeadLetterQueue struct {
	mu       sync.RWMutex
	capacity int
	entries  *list.List
	index    map[string]*list.Element
}

// NewDeadLetterQueue creates a DLQ bounded at capacity entries.
func NewDeadLetterQueue(capacity int) *DeadLetterQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &DeadLetterQueue{
		capacity: capacity,
		entries:  list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Add appends a new dead-letter entry, evicting the oldest one if the queue
// is at capacity.
func (dlq *DeadLetterQueue) Add(entryID string, env *models.MessageEnvelope, reason string, exception error) {
	dlq.mu.Lock()
	defer dlq.mu.Unlock()

	entry := &DeadLetterEntry{
		EntryID:   entryID,
		Envelope:  env,
		Reason:    reason,
		Exception: exception,
		Timestamp: time.Now(),
	}
	elem := dlq.entries.PushBack(entry)
	dlq.index[entryID] = elem

	if dlq.entries.Len() > dlq.capacity {
		oldest := dlq.entries.Front()
		if oldest != nil {
			dlq.entries.Remove(oldest)
			delete(dlq.index, oldest.Value.(*DeadLetterEntry).EntryID)
		}
	}
}

// List returns every retained entry, oldest first.
func (dlq *DeadLetterQueue) List() []*DeadLetterEntry {
	dlq.mu.RLock()
	defer dlq.mu.RUnlock()

	out := make([]*DeadLetterEntry, 0, dlq.entries.Len())
	for e := dlq.entries.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*DeadLetterEntry))
	}
	return out
}

// Get returns a single entry by id.
func (dlq *DeadLetterQueue) Get(entryID string) (*DeadLetterEntry, bool) {
	dlq.mu.RLock()
	defer dlq.mu.RUnlock()

	elem, ok := dlq.index[entryID]
	if !ok {
		return nil, false
	}
	return elem.Value.(*DeadLetterEntry), true
}

// Remove deletes an entry by id.
func (dlq *DeadLetterQueue) Remove(entryID string) bool {
	dlq.mu.Lock()
	defer dlq.mu.Unlock()

	elem, ok := dlq.index[entryID]
	if !ok {
		return false
	}
	dlq.entries.Remove(elem)
	delete(dlq.index, entryID)
	return true
}

// Clear empties the queue.
func (dlq *DeadLetterQueue) Clear() {
	dlq.mu.Lock()
	defer dlq.mu.Unlock()
	dlq.entries = list.New()
	dlq.index = make(map[string]*list.Element)
}

// Len returns the number of retained entries.
func (dlq *DeadLetterQueue) Len() int {
	dlq.mu.RLock()
	defer dlq.mu.RUnlock()
	return dlq.entries.Len()
}
