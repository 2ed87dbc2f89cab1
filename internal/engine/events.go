package engine

import "time"

// EventType names one of the observability events spec.md §4.5 lists.
type EventType string

const (
	EventNodeCreated       EventType = "NodeCreated"
	EventNodeStarted       EventType = "NodeStarted"
	EventNodeCompleted     EventType = "NodeCompleted"
	EventNodeFailed        EventType = "NodeFailed"
	EventNodeCancelled     EventType = "NodeCancelled"
	EventNodeNext          EventType = "NodeNext"
	EventWorkflowCompleted EventType = "WorkflowCompleted"
	EventWorkflowFailed    EventType = "WorkflowFailed"
	EventWorkflowCancelled EventType = "WorkflowCancelled"
)

// Event is the payload delivered to every registered Observer.
type Event struct {
	Type           EventType
	WorkflowID     string
	NodeID         string
	InstanceID     string
	Timestamp      time.Time
	Duration       time.Duration
	Error          string
	IterationIndex int
}

// Observer receives workflow-engine lifecycle events. Implementations must
// not block -- they are invoked synchronously on the emitting worker, the
// same contract the teacher's observer.ObserverManager.Notify documents.
type Observer interface {
	Notify(event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Notify(event Event) { f(event) }

// multiObserver fans one event out to every registered Observer, recovering
// from panics the way the teacher's DAGExecutor.safeNotify does so one
// misbehaving observer can never take down a worker.
type multiObserver struct {
	observers []Observer
}

func (m *multiObserver) add(o Observer) {
	if o != nil {
		m.observers = append(m.observers, o)
	}
}

func (m *multiObserver) Notify(event Event) {
	for _, o := range m.observers {
		m.safeNotify(o, event)
	}
}

func (m *multiObserver) safeNotify(o Observer, event Event) {
	defer func() {
		_ = recover()
	}()
	o.Notify(event)
}
