package rest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smilemakc/mbflow/internal/checkpoint"
	"github.com/smilemakc/mbflow/internal/engine"
	"github.com/smilemakc/mbflow/internal/expreval"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	"github.com/smilemakc/mbflow/internal/loader"
	"github.com/smilemakc/mbflow/internal/nodes"
	"github.com/smilemakc/mbflow/pkg/models"
)

// runningFlow tracks one in-flight or completed message-driven workflow run
// so the control endpoints below (cancel/checkpoint/resume) can reach back
// into a live *engine.WorkflowEngine by instance id.
type runningFlow struct {
	eng    *engine.WorkflowEngine
	cancel context.CancelFunc

	mu     sync.Mutex
	result *engine.Result
	err    error
	done   bool
}

// FlowExecutionHandlers exposes spec.md §4.7's execution-control surface
// (start/inspect/cancel/checkpoint/resume) over internal/engine's
// message-driven WorkflowEngine, using this package's handler/response
// conventions (NewAPIError, respondJSON, bindJSON).
type FlowExecutionHandlers struct {
	wfLoader   *loader.Loader
	registry   *nodes.Registry
	evaluator  *expreval.Evaluator
	engineCfg  engine.Config
	store      checkpoint.Store
	log        *logger.Logger
	subRunner  nodes.WorkflowLoader
	addObserv  func(*engine.WorkflowEngine)

	mu    sync.RWMutex
	flows map[string]*runningFlow
}

// NewFlowExecutionHandlers wires a FlowExecutionHandlers. addObserver, if
// non-nil, is called on every freshly built engine before Run so callers
// can attach e.g. an observerws.Observer.
func NewFlowExecutionHandlers(wfLoader *loader.Loader, registry *nodes.Registry, evaluator *expreval.Evaluator, engineCfg engine.Config, store checkpoint.Store, log *logger.Logger, addObserver func(*engine.WorkflowEngine)) *FlowExecutionHandlers {
	if log == nil {
		log = logger.Default()
	}
	return &FlowExecutionHandlers{
		wfLoader:  wfLoader,
		registry:  registry,
		evaluator: evaluator,
		engineCfg: engineCfg,
		store:     store,
		log:       log,
		addObserv: addObserver,
		flows:     make(map[string]*runningFlow),
	}
}

func (h *FlowExecutionHandlers) track(rf *runningFlow, instanceID string) {
	h.mu.Lock()
	h.flows[instanceID] = rf
	h.mu.Unlock()
}

func (h *FlowExecutionHandlers) get(instanceID string) (*runningFlow, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rf, ok := h.flows[instanceID]
	return rf, ok
}

// Start launches a fresh run of def with the given input variables, outside
// of any HTTP request — used directly by both HandleStart and
// internal/scheduler's cron-triggered runs.
func (h *FlowExecutionHandlers) Start(def *models.WorkflowDefinition, input map[string]interface{}) (*runningFlow, error) {
	eng, err := engine.New(def, input, h.registry, h.evaluator, h.wfLoader, h.engineCfg, h.log)
	if err != nil {
		return nil, fmt.Errorf("building engine: %w", err)
	}
	if h.addObserv != nil {
		h.addObserv(eng)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rf := &runningFlow{eng: eng, cancel: cancel}
	h.track(rf, eng.InstanceID())

	go func() {
		result, err := eng.Run(ctx)
		rf.mu.Lock()
		rf.result, rf.err, rf.done = result, err, true
		rf.mu.Unlock()
	}()

	return rf, nil
}

// HandleStart handles POST /api/v1/flows/:workflow_id/executions.
func (h *FlowExecutionHandlers) HandleStart(c *gin.Context) {
	workflowID := c.Param("workflow_id")
	var req struct {
		Input map[string]interface{} `json:"input"`
	}
	if err := bindJSON(c, &req); err != nil {
		return
	}

	def, err := h.wfLoader.Load(workflowID + ".yaml")
	if err != nil {
		respondAPIError(c, NewAPIError("WORKFLOW_NOT_FOUND", err.Error(), http.StatusNotFound))
		return
	}

	rf, err := h.Start(def, req.Input)
	if err != nil {
		respondAPIError(c, NewAPIError("EXECUTION_START_FAILED", err.Error(), http.StatusInternalServerError))
		return
	}

	respondJSON(c, http.StatusAccepted, gin.H{
		"instanceId": rf.eng.InstanceID(),
		"status":     string(models.WorkflowRunRunning),
	})
}

// HandleGet handles GET /api/v1/flows/executions/:id.
func (h *FlowExecutionHandlers) HandleGet(c *gin.Context) {
	rf, ok := h.get(c.Param("id"))
	if !ok {
		respondAPIError(c, NewAPIError("EXECUTION_NOT_FOUND", "no such execution instance", http.StatusNotFound))
		return
	}

	rf.mu.Lock()
	defer rf.mu.Unlock()
	if !rf.done {
		respondJSON(c, http.StatusOK, gin.H{"instanceId": c.Param("id"), "status": string(models.WorkflowRunRunning)})
		return
	}
	if rf.err != nil {
		respondAPIError(c, NewAPIError("EXECUTION_ERROR", rf.err.Error(), http.StatusInternalServerError))
		return
	}
	respondJSON(c, http.StatusOK, rf.result)
}

// HandleCancel handles POST /api/v1/flows/executions/:id/cancel.
func (h *FlowExecutionHandlers) HandleCancel(c *gin.Context) {
	rf, ok := h.get(c.Param("id"))
	if !ok {
		respondAPIError(c, NewAPIError("EXECUTION_NOT_FOUND", "no such execution instance", http.StatusNotFound))
		return
	}
	rf.cancel()
	respondJSON(c, http.StatusAccepted, gin.H{"instanceId": c.Param("id"), "status": "cancelling"})
}

// HandleCheckpoint handles POST /api/v1/flows/executions/:id/checkpoints.
func (h *FlowExecutionHandlers) HandleCheckpoint(c *gin.Context) {
	rf, ok := h.get(c.Param("id"))
	if !ok {
		respondAPIError(c, NewAPIError("EXECUTION_NOT_FOUND", "no such execution instance", http.StatusNotFound))
		return
	}

	var req struct {
		Description string `json:"description"`
	}
	_ = bindJSON(c, &req)

	cp, err := rf.eng.Checkpoint(req.Description)
	if err != nil {
		respondAPIError(c, NewAPIError("CHECKPOINT_FAILED", err.Error(), http.StatusInternalServerError))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	if err := h.store.Save(ctx, cp); err != nil {
		respondAPIError(c, NewAPIError("CHECKPOINT_SAVE_FAILED", err.Error(), http.StatusInternalServerError))
		return
	}

	respondJSON(c, http.StatusCreated, gin.H{"checkpointId": cp.Metadata.CheckpointID, "instanceId": cp.Metadata.WorkflowInstanceID})
}

// HandleResume handles POST /api/v1/flows/executions/:id/resume. The path
// id names the workflow instance whose most recently saved checkpoint
// should be restored.
func (h *FlowExecutionHandlers) HandleResume(c *gin.Context) {
	instanceID := c.Param("id")
	var req struct {
		WorkflowID string                 `json:"workflowId"`
		Input      map[string]interface{} `json:"input"`
	}
	_ = bindJSON(c, &req)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	cp, err := h.store.Load(ctx, instanceID)
	if err != nil {
		respondAPIError(c, NewAPIError("CHECKPOINT_NOT_FOUND", err.Error(), http.StatusNotFound))
		return
	}

	if req.WorkflowID == "" {
		req.WorkflowID = cp.Metadata.WorkflowID
	}
	def, err := h.wfLoader.Load(req.WorkflowID + ".yaml")
	if err != nil {
		respondAPIError(c, NewAPIError("WORKFLOW_NOT_FOUND", err.Error(), http.StatusNotFound))
		return
	}

	eng, err := engine.Resume(cp, def, h.registry, h.evaluator, h.wfLoader, h.engineCfg, h.log)
	if err != nil {
		respondAPIError(c, NewAPIError("RESUME_FAILED", err.Error(), http.StatusInternalServerError))
		return
	}
	if h.addObserv != nil {
		h.addObserv(eng)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	rf := &runningFlow{eng: eng, cancel: runCancel}
	h.track(rf, eng.InstanceID())

	go func() {
		result, err := eng.RunResumed(runCtx)
		rf.mu.Lock()
		rf.result, rf.err, rf.done = result, err, true
		rf.mu.Unlock()
	}()

	respondJSON(c, http.StatusAccepted, gin.H{"instanceId": eng.InstanceID(), "status": string(models.WorkflowRunRunning)})
}
