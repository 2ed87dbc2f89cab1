package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/smilemakc/mbflow/pkg/models"
)

// watchCompletion implements spec.md §4.5's completion detector: the
// workflow is done when the in-flight counter is zero and every queue is
// empty, sustained across a short grace window so a just-enqueued message
// is not missed. It cancels the run context once a terminal state is
// reached (including when a worker already marked the run Failed).
//
// A Failed status is treated differently depending on
// Config.CancelSiblingsOnFailure: when true (the default), siblings are
// cancelled the moment the failure is observed. When false -- a Container
// node's per-instance opt-out, spec.md §4.6/§9's open question -- the
// failure is recorded but siblings are left to reach their own terminal
// state naturally, same as the success path, before the run context is
// cancelled.
func (e *WorkflowEngine) watchCompletion(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(e.cfg.WorkerPollInterval / 2)
	defer ticker.Stop()

	var quietSince time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, _, _, _ := e.snapshotStatus()
		if status.IsTerminal() && (status != models.WorkflowRunFailed || e.cfg.CancelSiblingsOnFailure) {
			cancel()
			return
		}

		quiet := atomic.LoadInt64(&e.inFlight) == 0 && !e.hasQueuedWork()
		if !quiet {
			quietSince = time.Time{}
			continue
		}
		if quietSince.IsZero() {
			quietSince = time.Now()
			continue
		}
		if time.Since(quietSince) < e.cfg.CompletionGraceWindow {
			continue
		}
		if !status.IsTerminal() {
			e.setStatus(models.WorkflowRunCompleted, "", "")
		}
		cancel()
		return
	}
}

func (e *WorkflowEngine) hasQueuedWork() bool {
	for _, rt := range e.rts {
		if rt.queue.Len() > 0 {
			return true
		}
	}
	return false
}
