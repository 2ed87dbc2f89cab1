package queue

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/mbflow/pkg/models"
)

// knownPayloadTypes lists every Message implementation NodeMessageQueue.Lease
// scans for, in the order it scans them. Progress is included for
// completeness even though MessageRouter never routes it (spec.md §4.4).
var knownPayloadTypes = []string{
	typeName(models.NodeComplete{}),
	typeName(models.NodeFail{}),
	typeName(models.NodeNext{}),
	typeName(models.NodeCancel{}),
	typeName(models.Progress{}),
}

func typeName(v interface{}) string {
	return fmt.Sprintf("%T", v)
}

// DefaultVisibilityTimeout is applied to an abandoned envelope's NotBefore
// when the queue itself has no configured override.
const DefaultVisibilityTimeout = 30 * time.Second

// DefaultMaxRetries bounds queue-level abandon retries absent an explicit
// per-queue override.
const DefaultMaxRetries = 3

// NodeMessageQueue is the typed, per-node facade over a CircularBuffer: it
// wraps messages in envelopes, exposes lease/complete/abandon operations,
// and coalesces worker wake-ups through a capacity-1 signal channel.
type NodeMessageQueue struct {
	NodeID             string
	buffer             *CircularBuffer
	deadLetter         *DeadLetterQueue
	visibilityTimeout  time.Duration
	maxRetries         int
	signal             chan struct{}
}

// NewNodeMessageQueue creates a queue backed by a CircularBuffer of the
// given capacity and a shared DeadLetterQueue for fatal/exhausted messages.
func NewNodeMessageQueue(nodeID string, capacity int, dlq *DeadLetterQueue, visibilityTimeout time.Duration, maxRetries int) *NodeMessageQueue {
	if visibilityTimeout <= 0 {
		visibilityTimeout = DefaultVisibilityTimeout
	}
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &NodeMessageQueue{
		NodeID:            nodeID,
		buffer:            NewCircularBuffer(capacity),
		deadLetter:        dlq,
		visibilityTimeout: visibilityTimeout,
		maxRetries:        maxRetries,
		signal:            make(chan struct{}, 1),
	}
}

// Signal returns the coalescing wake-up channel. Workers select on it (with
// a short timeout for lease-expiry recovery) between lease attempts. A
// received token only means "something may be ready" -- the worker must
// re-check queue state, never assume the token maps to a specific message.
func (q *NodeMessageQueue) Signal() <-chan struct{} {
	return q.signal
}

func (q *NodeMessageQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Enqueue wraps message in a fresh Ready envelope (retryCount=0) and stores
// it, waking one worker.
func (q *NodeMessageQueue) Enqueue(message models.Message) *models.MessageEnvelope {
	env := &models.MessageEnvelope{
		MessageID:       uuid.NewString(),
		MessageTypeName: typeName(message),
		Payload:         message,
		Status:          models.EnvelopeReady,
		RetryCount:      0,
		MaxRetries:      q.maxRetries,
		EnqueuedAt:      time.Now(),
	}
	q.buffer.Enqueue(env)
	q.notify()
	return env
}

// EnqueueDeduplicated is the replace() path: any envelope already carrying
// deduplicationKey is superseded before message is enqueued.
func (q *NodeMessageQueue) EnqueueDeduplicated(message models.Message, deduplicationKey string) *models.MessageEnvelope {
	env := &models.MessageEnvelope{
		MessageID:        uuid.NewString(),
		MessageTypeName:  typeName(message),
		Payload:          message,
		Status:           models.EnvelopeReady,
		RetryCount:       0,
		MaxRetries:       q.maxRetries,
		EnqueuedAt:       time.Now(),
		DeduplicationKey: deduplicationKey,
	}
	q.buffer.Replace(env, deduplicationKey)
	q.notify()
	return env
}

// Lease scans every known payload type for the oldest eligible envelope and
// checks it out under a new lease; no other envelope is leased. Returns nil,
// false if nothing is ready (the Checkout call still runs lease-expiry
// recovery).
func (q *NodeMessageQueue) Lease(handlerID string) (*models.MessageEnvelope, bool) {
	now := time.Now()
	bestType, found := knownPayloadTypes[0], false
	var bestAt time.Time
	for _, env := range q.buffer.GetAll() {
		if !env.Eligible(now) || !slices.Contains(knownPayloadTypes, env.MessageTypeName) || (found && !env.EnqueuedAt.Before(bestAt)) {
			continue
		}
		bestType, bestAt, found = env.MessageTypeName, env.EnqueuedAt, true
	}
	return q.buffer.Checkout(bestType, handlerID, q.visibilityTimeout)
}

// Complete acknowledges a successfully processed envelope.
func (q *NodeMessageQueue) Complete(messageID string) bool {
	return q.buffer.Acknowledge(messageID)
}

// Abandon is the retry path for a lease the worker could not honor (as
// opposed to a node-level Fail, which is not retried by the queue -- it is
// routed as a NodeFail message instead, per spec.md §4.3). If the
// incremented retry count still fits within maxRetries the envelope is
// requeued with a visibility-timeout delay; otherwise it is moved to the
// dead-letter queue.
func (q *NodeMessageQueue) Abandon(env *models.MessageEnvelope, reason string) {
	nextRetry := env.RetryCount + 1
	if nextRetry > q.maxRetries {
		q.moveToDeadLetterLocked(env, fmt.Sprintf("exceeded max retries: %s", reason), nil)
		return
	}
	notBefore := time.Now().Add(q.visibilityTimeout)
	q.buffer.Requeue(env.MessageID, &notBefore)
	q.notify()
}

// MoveToDeadLetter is the fatal path: no retry, straight to the DLQ.
func (q *NodeMessageQueue) MoveToDeadLetter(env *models.MessageEnvelope, reason string, exception error) {
	q.moveToDeadLetterLocked(env, reason, exception)
}

func (q *NodeMessageQueue) moveToDeadLetterLocked(env *models.MessageEnvelope, reason string, exception error) {
	q.deadLetter.Add(uuid.NewString(), env, reason, exception)
	q.buffer.Remove(env.MessageID)
}

// RestoreFromCheckpoint re-inserts env verbatim (status and lease preserved)
// and wakes a worker iff the envelope is Ready and currently visible.
func (q *NodeMessageQueue) RestoreFromCheckpoint(env *models.MessageEnvelope) {
	q.buffer.Restore(env)
	if env.Status == models.EnvelopeReady && env.IsVisible(time.Now()) {
		q.notify()
	}
}

// Snapshot returns every non-Completed envelope currently queued, for
// checkpoint save.
func (q *NodeMessageQueue) Snapshot() []*models.MessageEnvelope {
	return q.buffer.GetAll()
}

// Len returns the number of envelopes currently stored (including InFlight
// ones, per spec.md scenario 5: "queue count for that node is 0" after DLQ
// eviction).
func (q *NodeMessageQueue) Len() int {
	return q.buffer.Len()
}
