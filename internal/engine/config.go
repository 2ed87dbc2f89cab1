package engine

import "time"

// Config tunes the knobs spec.md leaves as defaults-with-override: per-queue
// buffer/visibility/retry limits, the worker's lease-expiry poll interval,
// and the completion detector's grace window. Grounded on the teacher's
// ExecutionOptions (internal/application/engine/types.go), generalized from
// per-execution options to per-engine-instance configuration.
type Config struct {
	QueueCapacity         int
	DeadLetterCapacity    int
	VisibilityTimeout     time.Duration
	MaxRetries            int
	WorkerPollInterval    time.Duration
	CompletionGraceWindow time.Duration
	ExpressionCacheSize   int
	WorkflowTimeout       time.Duration

	// CancelSiblingsOnFailure controls whether an uncompensated node failure
	// immediately cancels every other in-flight node in the same engine
	// instance, or lets them drain to their own terminal state first. A
	// Container node overrides this per-instance via its child
	// WorkflowDefinition's Metadata["cancelSiblingsOnFailure"] (spec.md §4.6's
	// open question on Parallel-Container sibling cancellation); every other
	// caller gets the default.
	CancelSiblingsOnFailure bool
}

// DefaultConfig returns the engine's out-of-the-box tuning.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:           256,
		DeadLetterCapacity:      256,
		VisibilityTimeout:       30 * time.Second,
		MaxRetries:              3,
		WorkerPollInterval:      100 * time.Millisecond,
		CompletionGraceWindow:   150 * time.Millisecond,
		ExpressionCacheSize:     256,
		CancelSiblingsOnFailure: true,
	}
}
