// Package queue implements the per-node message storage layer: a fixed
// capacity CircularBuffer with lease semantics, a bounded DeadLetterQueue,
// and NodeMessageQueue, the typed facade workers interact with.
package queue

import (
	"sync"
	"time"

	"github.com/smilemakc/mbflow/pkg/models"
)

// DefaultLeaseRecoveryBackoff is the per-retry linear back-off applied to an
// envelope's NotBefore when just-in-time recovery requeues it after a lease
// expired (spec.md §4.1: "exponential-ish linear back-off").
const DefaultLeaseRecoveryBackoff = 2 * time.Second

// CircularBuffer is a fixed-capacity, mutex-guarded store of MessageEnvelopes
// with checkout/acknowledge/requeue lease semantics. All status transitions
// happen under cb.mu, matching spec.md §4.1's concurrency invariant.
type CircularBuffer struct {
	mu       sync.Mutex
	capacity int
	slots    []*models.MessageEnvelope
}

// NewCircularBuffer creates a buffer bounded at capacity entries. A
// non-positive capacity is rejected up to a floor of 1 so the buffer is
// never unbounded.
func NewCircularBuffer(capacity int) *CircularBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &CircularBuffer{capacity: capacity}
}

// Enqueue inserts env. If the buffer is full, the oldest Ready envelope is
// evicted first; if none is Ready (everything InFlight), the oldest slot is
// force-overwritten regardless of status. Always returns true -- the buffer
// never rejects an enqueue, it sheds old messages instead (spec.md §5
// backpressure).
func (cb *CircularBuffer) Enqueue(env *models.MessageEnvelope) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.slots = append(cb.slots, env)
	if len(cb.slots) > cb.capacity {
		cb.evictLocked()
	}
	return true
}

// evictLocked removes one envelope to bring the buffer back within
// capacity. Must be called with cb.mu held.
func (cb *CircularBuffer) evictLocked() {
	for i, env := range cb.slots {
		if env.Status == models.EnvelopeReady {
			cb.removeAtLocked(i)
			return
		}
	}
	// No Ready envelope to sacrifice: force-overwrite the oldest slot.
	if len(cb.slots) > 0 {
		cb.removeAtLocked(0)
	}
}

func (cb *CircularBuffer) removeAtLocked(i int) {
	cb.slots = append(cb.slots[:i], cb.slots[i+1:]...)
}

// recoverExpiredLeasesLocked performs the just-in-time recovery pass
// described in spec.md §4.1: any InFlight envelope whose lease has expired
// is either requeued (if retry budget remains) or marked Superseded.
func (cb *CircularBuffer) recoverExpiredLeasesLocked(now time.Time) {
	for _, env := range cb.slots {
		if env.Status != models.EnvelopeInFlight || !env.Lease.Expired(now) {
			continue
		}
		if env.RetryCount < env.MaxRetries {
			env.RetryCount++
			notBefore := now.Add(time.Duration(env.RetryCount) * DefaultLeaseRecoveryBackoff)
			env.NotBefore = &notBefore
			env.Status = models.EnvelopeReady
			env.Lease = nil
		} else {
			env.IsSuperseded = true
		}
	}
}

// Checkout scans for the oldest Ready, visible, non-superseded envelope
// whose MessageTypeName matches messageTypeName, running lease-expiry
// recovery first. On a match it transitions the envelope to InFlight under
// a new lease and returns a snapshot clone.
func (cb *CircularBuffer) Checkout(messageTypeName, handlerID string, leaseDuration time.Duration) (*models.MessageEnvelope, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.recoverExpiredLeasesLocked(now)

	for _, env := range cb.slots {
		if env.MessageTypeName != messageTypeName || !env.Eligible(now) {
			continue
		}
		env.Status = models.EnvelopeInFlight
		env.Lease = &models.Lease{HandlerID: handlerID, CheckoutAt: now, ExpiresAt: now.Add(leaseDuration)}
		return env.Clone(), true
	}
	return nil, false
}

// Acknowledge marks an InFlight envelope Completed and removes it from the
// buffer, reclaiming its slot. Returns false if messageID is unknown or not
// InFlight.
func (cb *CircularBuffer) Acknowledge(messageID string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	for i, env := range cb.slots {
		if env.MessageID != messageID {
			continue
		}
		if env.Status != models.EnvelopeInFlight {
			return false
		}
		cb.removeAtLocked(i)
		return true
	}
	return false
}

// Requeue transitions an InFlight envelope back to Ready, clearing its lease
// and incrementing RetryCount. notBefore, if non-nil, delays its next
// eligibility.
func (cb *CircularBuffer) Requeue(messageID string, notBefore *time.Time) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	for _, env := range cb.slots {
		if env.MessageID != messageID {
			continue
		}
		if env.Status != models.EnvelopeInFlight {
			return false
		}
		env.Status = models.EnvelopeReady
		env.Lease = nil
		env.RetryCount++
		env.NotBefore = notBefore
		return true
	}
	return false
}

// Replace marks any envelope (Ready or InFlight) carrying deduplicationKey
// as Superseded, then enqueues newEnv. This is the spec.md §9 "one
// reasonable reading" of replace(): supersede unconditionally regardless of
// the matched envelope's current status.
func (cb *CircularBuffer) Replace(newEnv *models.MessageEnvelope, deduplicationKey string) {
	cb.mu.Lock()
	if deduplicationKey != "" {
		for _, env := range cb.slots {
			if env.DeduplicationKey == deduplicationKey {
				env.IsSuperseded = true
				env.Status = models.EnvelopeSuperseded
			}
		}
	}
	cb.slots = append(cb.slots, newEnv)
	if len(cb.slots) > cb.capacity {
		cb.evictLocked()
	}
	cb.mu.Unlock()
}

// Remove deletes an envelope by id regardless of status. Returns false if
// not found.
func (cb *CircularBuffer) Remove(messageID string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	for i, env := range cb.slots {
		if env.MessageID == messageID {
			cb.removeAtLocked(i)
			return true
		}
	}
	return false
}

// Restore inserts env verbatim, preserving its status and lease exactly. An
// InFlight envelope restored with a lease is recovered by a later Checkout's
// JIT recovery pass once that lease expires; checkpoint load hands in
// envelopes that internal/checkpoint has already decoded InFlight -> Ready.
func (cb *CircularBuffer) Restore(env *models.MessageEnvelope) {
	cb.mu.Lock()
	cb.slots = append(cb.slots, env)
	if len(cb.slots) > cb.capacity {
		cb.evictLocked()
	}
	cb.mu.Unlock()
}

// GetAll returns a snapshot of every non-Completed envelope currently held
// (Completed envelopes are pruned eagerly by Acknowledge, so in practice
// this is everything in the buffer).
func (cb *CircularBuffer) GetAll() []*models.MessageEnvelope {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	out := make([]*models.MessageEnvelope, 0, len(cb.slots))
	for _, env := range cb.slots {
		if env.Status == models.EnvelopeCompleted {
			continue
		}
		out = append(out, env.Clone())
	}
	return out
}

// Len returns the current number of stored envelopes (the capacity
// invariant: Len() <= capacity always holds after every operation above).
func (cb *CircularBuffer) Len() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return len(cb.slots)
}

// Capacity returns the buffer's fixed capacity.
func (cb *CircularBuffer) Capacity() int {
	return cb.capacity
}
