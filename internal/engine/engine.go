// Package engine implements WorkflowEngine: it instantiates every node in a
// WorkflowDefinition, wires a MessageRouter and one NodeMessageQueue per
// node, launches one worker goroutine per node, synthesizes triggers for
// entry-point nodes, and detects workflow completion. Grounded on the
// teacher's internal/application/engine.DAGExecutor/ExecutionManager, but
// re-targeted from wave-based topological execution at message-driven
// per-node workers (spec.md §4.5).
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/mbflow/internal/expreval"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	"github.com/smilemakc/mbflow/internal/nodes"
	"github.com/smilemakc/mbflow/internal/queue"
	"github.com/smilemakc/mbflow/internal/router"
	"github.com/smilemakc/mbflow/pkg/models"
)

// nodeRuntime bundles one node's instantiated behavior with its dedicated
// queue.
type nodeRuntime struct {
	def   *models.NodeDefinition
	node  nodes.Node
	queue *queue.NodeMessageQueue
}

// Result is what Run (and, recursively, RunToCompletion) reports back.
type Result struct {
	Status        models.WorkflowRunStatus
	Variables     map[string]interface{}
	NodeInstances []*models.NodeInstance
	FailureNodeID string
	ErrorMessage  string
}

// WorkflowEngine runs one instance of a WorkflowDefinition to completion. A
// fresh WorkflowEngine is built per run (top-level or nested, via
// RunToCompletion), mirroring the teacher's one-ExecutionState-per-run
// design.
type WorkflowEngine struct {
	instanceID string
	def        *models.WorkflowDefinition
	cfg        Config
	log        *logger.Logger

	variables *models.VariableStore
	evaluator *expreval.Evaluator
	registry  *nodes.Registry
	loader    nodes.WorkflowLoader

	dlq    *queue.DeadLetterQueue
	router *router.MessageRouter
	rts    map[string]*nodeRuntime

	obs *multiObserver

	inFlight int64

	mu            sync.Mutex
	status        models.WorkflowRunStatus
	failureNodeID string
	errorMessage  string
	instances     []*models.NodeInstance
}

// New builds a WorkflowEngine ready to Run def. registry supplies node
// behavior, evaluator compiles/evaluates guard and node-config expressions,
// loader resolves Subflow nodes' WorkflowFilePath (nil is fine for
// definitions with only inline subflows or none at all).
func New(def *models.WorkflowDefinition, initialVariables map[string]interface{}, registry *nodes.Registry, evaluator *expreval.Evaluator, loader nodes.WorkflowLoader, cfg Config, log *logger.Logger) (*WorkflowEngine, error) {
	if log == nil {
		log = logger.Default()
	}

	if v, ok := def.Metadata["cancelSiblingsOnFailure"].(bool); ok {
		cfg.CancelSiblingsOnFailure = v
	}

	vars := models.NewVariableStore(def.DefaultVariables)
	for k, v := range initialVariables {
		vars.Set(k, v)
	}

	e := &WorkflowEngine{
		instanceID: uuid.NewString(),
		def:        def,
		cfg:        cfg,
		log:        log,
		variables:  vars,
		evaluator:  evaluator,
		registry:   registry,
		loader:     loader,
		dlq:        queue.NewDeadLetterQueue(cfg.DeadLetterCapacity),
		rts:        make(map[string]*nodeRuntime, len(def.Nodes)),
		obs:        &multiObserver{},
		status:     models.WorkflowRunPending,
	}

	queues := make(map[string]*queue.NodeMessageQueue, len(def.Nodes))
	for _, nd := range def.Nodes {
		n, err := registry.New(nd)
		if err != nil {
			return nil, fmt.Errorf("instantiating node %q: %w", nd.ID, err)
		}
		q := queue.NewNodeMessageQueue(nd.ID, cfg.QueueCapacity, e.dlq, cfg.VisibilityTimeout, cfg.MaxRetries)
		e.rts[nd.ID] = &nodeRuntime{def: nd, node: n, queue: q}
		queues[nd.ID] = q
		e.obs.Notify(Event{Type: EventNodeCreated, WorkflowID: def.WorkflowID, NodeID: nd.ID, Timestamp: time.Now()})
	}

	e.router = router.New(def, vars, evaluator, e.dlq, queues)
	return e, nil
}

// AddObserver registers an additional lifecycle observer. Must be called
// before Run.
func (e *WorkflowEngine) AddObserver(o Observer) {
	e.obs.add(o)
}

// DeadLetterQueue exposes the engine's shared DLQ, e.g. for inspection after
// a run or wiring into internal/observerws.
func (e *WorkflowEngine) DeadLetterQueue() *queue.DeadLetterQueue {
	return e.dlq
}

// Variables exposes the workflow's live variable store.
func (e *WorkflowEngine) Variables() *models.VariableStore {
	return e.variables
}

// InstanceID returns this run's unique workflow instance id.
func (e *WorkflowEngine) InstanceID() string {
	return e.instanceID
}

func (e *WorkflowEngine) setStatus(status models.WorkflowRunStatus, failureNodeID, errMsg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.IsTerminal() {
		return
	}
	e.status = status
	e.failureNodeID = failureNodeID
	e.errorMessage = errMsg
}

func (e *WorkflowEngine) recordInstance(inst *models.NodeInstance) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.instances = append(e.instances, inst)
}

func (e *WorkflowEngine) snapshotStatus() (models.WorkflowRunStatus, string, string, []*models.NodeInstance) {
	e.mu.Lock()
	defer e.mu.Unlock()
	instances := make([]*models.NodeInstance, len(e.instances))
	copy(instances, e.instances)
	return e.status, e.failureNodeID, e.errorMessage, instances
}

// OnNodeStarted implements nodes.Observer, forwarding to the engine's
// registered lifecycle Observers.
func (e *WorkflowEngine) OnNodeStarted(nodeID, instanceID string) {
	e.obs.Notify(Event{Type: EventNodeStarted, WorkflowID: e.def.WorkflowID, NodeID: nodeID, InstanceID: instanceID, Timestamp: time.Now()})
}

// OnNodeNext implements nodes.Observer. Beyond notifying observers, it
// routes an actual NodeNext message through the router so connections
// configured with Trigger=Next (e.g. a progress-display sibling of the
// loop body) receive it, per spec.md §4.6's "emit one NodeNext" wording for
// While/ForEach.
func (e *WorkflowEngine) OnNodeNext(nodeID, instanceID string, iterationIndex int) {
	e.obs.Notify(Event{Type: EventNodeNext, WorkflowID: e.def.WorkflowID, NodeID: nodeID, InstanceID: instanceID, IterationIndex: iterationIndex, Timestamp: time.Now()})
	msg := models.NewNodeNext(uuid.NewString(), nodeID, iterationIndex, nil)
	e.router.RouteMessage(msg, nil)
}

// RunToCompletion implements nodes.SubRunner: Container and Subflow nodes
// call back into the engine package through this method, which builds and
// runs a fresh nested WorkflowEngine over def, recursively.
func (e *WorkflowEngine) RunToCompletion(ctx context.Context, def *models.WorkflowDefinition, initialVariables map[string]interface{}) (*nodes.SubRunResult, error) {
	child, err := New(def, initialVariables, e.registry, e.evaluator, e.loader, e.cfg, e.log)
	if err != nil {
		return nil, err
	}
	result, err := child.Run(ctx)
	if err != nil {
		return nil, err
	}
	return &nodes.SubRunResult{
		Status:        result.Status,
		Variables:     result.Variables,
		NodeInstances: result.NodeInstances,
		FailureNodeID: result.FailureNodeID,
		ErrorMessage:  result.ErrorMessage,
	}, nil
}

// runContextFor builds the per-execute RunContext a node's Execute call
// receives.
func (e *WorkflowEngine) runContextFor() *nodes.RunContext {
	return &nodes.RunContext{
		InstanceID: e.instanceID,
		WorkflowID: e.def.WorkflowID,
		Variables:  e.variables,
		Evaluator:  e.evaluator,
		SubRunner:  e,
		Loader:     e.loader,
		Observer:   e,
	}
}

// Run starts every node's worker, synthesizes entry-point triggers, waits
// for completion detection (or ctx cancellation / workflow timeout), and
// returns the terminal result.
func (e *WorkflowEngine) Run(ctx context.Context) (*Result, error) {
	return e.run(ctx, true)
}

// run is the shared lifecycle behind Run and RunResumed. synthesizeEntries
// is false for a checkpoint-restored engine, whose queues already carry
// whatever work was pending at snapshot time.
func (e *WorkflowEngine) run(ctx context.Context, synthesizeEntries bool) (*Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if e.cfg.WorkflowTimeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, e.cfg.WorkflowTimeout)
		defer timeoutCancel()
	}

	e.setStatus(models.WorkflowRunRunning, "", "")
	if synthesizeEntries {
		e.synthesizeEntryTriggers()
	}

	var wg sync.WaitGroup
	for id, rt := range e.rts {
		wg.Add(1)
		go func(nodeID string, rt *nodeRuntime) {
			defer wg.Done()
			e.runWorker(runCtx, nodeID, rt)
		}(id, rt)
	}

	doneCh := make(chan struct{})
	go func() {
		e.watchCompletion(runCtx, cancel)
		close(doneCh)
	}()

	<-runCtx.Done()
	if ctx.Err() == nil && runCtx.Err() == context.DeadlineExceeded {
		e.setStatus(models.WorkflowRunFailed, "", models.ErrWorkflowTimeout.Error())
	} else if ctx.Err() != nil {
		e.setStatus(models.WorkflowRunCancelled, "", "context cancelled")
	}
	wg.Wait()
	<-doneCh

	status, failureNodeID, errMsg, instances := e.snapshotStatus()
	result := &Result{
		Status:        status,
		Variables:     e.variables.Snapshot(),
		NodeInstances: instances,
		FailureNodeID: failureNodeID,
		ErrorMessage:  errMsg,
	}

	switch status {
	case models.WorkflowRunCompleted:
		e.obs.Notify(Event{Type: EventWorkflowCompleted, WorkflowID: e.def.WorkflowID, Timestamp: time.Now()})
	case models.WorkflowRunFailed:
		e.obs.Notify(Event{Type: EventWorkflowFailed, WorkflowID: e.def.WorkflowID, Error: errMsg, Timestamp: time.Now()})
	case models.WorkflowRunCancelled:
		e.obs.Notify(Event{Type: EventWorkflowCancelled, WorkflowID: e.def.WorkflowID, Timestamp: time.Now()})
	}

	return result, nil
}
