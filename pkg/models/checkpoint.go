package models

import "time"

// SerializedMessage is the on-disk/DB representation of one queued envelope,
// per spec.md §6's checkpoint format.
type SerializedMessage struct {
	MessageID   string          `json:"messageId"`
	MessageType string          `json:"messageType"`
	PayloadJSON []byte          `json:"payloadJson"`
	RetryCount  int             `json:"retryCount"`
	NotBefore   *time.Time      `json:"notBefore,omitempty"`
	Status      EnvelopeStatus  `json:"status"`
	MaxRetries  int             `json:"maxRetries"`
}

// CheckpointNodeInstance is the on-disk representation of one NodeInstance.
type CheckpointNodeInstance struct {
	NodeInstanceID string                 `json:"nodeInstanceId"`
	NodeID         string                 `json:"nodeId"`
	Status         InstanceStatus         `json:"status"`
	StartTime      *time.Time             `json:"startTime,omitempty"`
	EndTime        *time.Time             `json:"endTime,omitempty"`
	ErrorMessage   string                 `json:"errorMessage,omitempty"`
	InputData      map[string]interface{} `json:"inputData,omitempty"`
	OutputData     map[string]interface{} `json:"outputData,omitempty"`
}

// CheckpointMetadata is the descriptive header of a checkpoint document.
type CheckpointMetadata struct {
	CheckpointID       string    `json:"checkpointId"`
	WorkflowInstanceID string    `json:"workflowInstanceId"`
	WorkflowID         string    `json:"workflowId"`
	Timestamp          time.Time `json:"timestamp"`
	TotalNodes         int       `json:"totalNodes"`
	CompletedNodes     int       `json:"completedNodes"`
	PendingNodes       int       `json:"pendingNodes"`
	SizeBytes          int64     `json:"sizeBytes"`
	Description        string    `json:"description,omitempty"`
}

// Checkpoint is the full, stable-schema snapshot of a running workflow,
// suitable for save -> load -> resume.
type Checkpoint struct {
	Metadata CheckpointMetadata `json:"metadata"`

	Context struct {
		Status    WorkflowRunStatus      `json:"status"`
		Variables map[string]interface{} `json:"variables"`
		StartTime time.Time              `json:"startTime"`
		EndTime   *time.Time             `json:"endTime,omitempty"`
	} `json:"context"`

	NodeInstances []CheckpointNodeInstance `json:"nodeInstances"`

	// MessageQueues maps node id to the envelopes pending in that node's
	// queue at snapshot time.
	MessageQueues map[string][]SerializedMessage `json:"messageQueues"`
}
