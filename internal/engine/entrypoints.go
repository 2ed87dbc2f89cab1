package engine

import (
	"github.com/google/uuid"

	"github.com/smilemakc/mbflow/pkg/models"
)

// synthesizeEntryTriggers enqueues a virtual NodeComplete into every
// entry-point node's queue so its worker can begin, per spec.md §4.5.
func (e *WorkflowEngine) synthesizeEntryTriggers() {
	for _, nd := range e.def.EntryPoints() {
		rt, ok := e.rts[nd.ID]
		if !ok {
			continue
		}
		trigger := models.NewNodeComplete(uuid.NewString(), "__entry__", "", models.NewNodeExecutionContext())
		rt.queue.Enqueue(trigger)
	}
}
