package workflow

import (
	"fmt"
	"time"
)

// Workflow is a persisted workflow definition: a graph of typed nodes plus
// the connections between them. Mutated only through Manager create/update.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Active      bool           `json:"active"`
	Nodes       []Node         `json:"nodes"`
	Connections Connections    `json:"connections"`
	Settings    *Settings      `json:"settings,omitempty"`
	StaticData  map[string]any `json:"staticData,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Node is a single typed step in a workflow graph. Parameters are opaque to
// the engine and validated against the node type's schema before execution.
type Node struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Name           string         `json:"name"`
	Position       Position       `json:"position"`
	Parameters     map[string]any `json:"parameters"`
	ExecuteOnce    bool           `json:"executeOnce,omitempty"`
	RetryOnFail    bool           `json:"retryOnFail,omitempty"`
	RetryTimes     int            `json:"retryTimes,omitempty"`
	ContinueOnFail bool           `json:"continueOnFail,omitempty"`
}

// Position holds x/y coordinates for rendering the node on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Connection is one directed edge: it names the target node and the input
// port index the data arrives on.
type Connection struct {
	Node  string `json:"node"`
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// NodeOutputs groups a source node's outgoing edges by output port.
type NodeOutputs struct {
	Main [][]Connection `json:"main,omitempty"`
}

// Connections maps a source node id to its outgoing edges.
type Connections map[string]NodeOutputs

// Settings holds optional per-workflow execution settings.
type Settings struct {
	ExecutionTimeout      int    `json:"executionTimeout,omitempty"` // milliseconds
	SaveExecutionProgress bool   `json:"saveExecutionProgress,omitempty"`
	SaveManualExecutions  bool   `json:"saveManualExecutions,omitempty"`
	CallerPolicy          string `json:"callerPolicy,omitempty"`
	ErrorWorkflow         string `json:"errorWorkflow,omitempty"`
}

// DefaultExecutionTimeout applies when settings omit executionTimeout.
const DefaultExecutionTimeout = 300000 * time.Millisecond

// Mode identifies what kicked off an execution.
type Mode string

const (
	ModeManual  Mode = "manual"
	ModeTrigger Mode = "trigger"
	ModeWebhook Mode = "webhook"
	ModeCron    Mode = "cron"
)

// Status is an execution's lifecycle state. Transitions are monotonic:
// new -> running -> one of the terminal states, set exactly once.
type Status string

const (
	StatusNew      Status = "new"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusError    Status = "error"
	StatusCanceled Status = "canceled"
)

// Terminal reports whether s is a final execution state.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusCanceled
}

// Execution is one run of a workflow. The run goroutine owns the record; the
// engine's inspection accessors hand out snapshot copies.
type Execution struct {
	ID          string                `json:"id"`
	WorkflowID  string                `json:"workflowId"`
	Mode        Mode                  `json:"mode"`
	Status      Status                `json:"status"`
	StartedAt   time.Time             `json:"startedAt"`
	FinishedAt  *time.Time            `json:"finishedAt,omitempty"`
	RunData     map[string][]RunEntry `json:"runData"`
	ContextData map[string]any        `json:"contextData,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// RunEntry records one invocation of one node within an execution.
type RunEntry struct {
	StartTime     time.Time       `json:"startTime"`
	ExecutionTime time.Duration   `json:"executionTime"`
	Data          [][]Item        `json:"data,omitempty"`
	Error         *ExecutionError `json:"error,omitempty"`
}

// Item is one unit of data flowing along a connection. Nodes receive and
// produce lists of items, never a single scalar.
type Item struct {
	JSON       map[string]any        `json:"json"`
	Binary     map[string]BinaryData `json:"binary,omitempty"`
	PairedItem *PairedItem           `json:"pairedItem,omitempty"`
}

// BinaryData is an optional binary attachment on an item.
type BinaryData struct {
	Data          string `json:"data"`
	MimeType      string `json:"mimeType"`
	FileName      string `json:"fileName,omitempty"`
	FileExtension string `json:"fileExtension,omitempty"`
	FileSize      int64  `json:"fileSize,omitempty"`
}

// PairedItem links an output item back to the input item it derives from.
type PairedItem struct {
	Item  int `json:"item"`
	Input int `json:"input,omitempty"`
}

// Error taxonomy names.
const (
	ErrValidation    = "ValidationError"
	ErrNodeExecution = "NodeExecutionError"
	ErrExecution     = "ExecutionError"
)

// ExecutionError is the structured error used uniformly for validation
// failures, node failures, and workflow-level failures.
type ExecutionError struct {
	Message     string        `json:"message"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Context     *ErrorContext `json:"context,omitempty"`
	Cause       error         `json:"-"`
	Timestamp   time.Time     `json:"timestamp"`
}

// ErrorContext carries the failing node's identity and parameters.
type ErrorContext struct {
	NodeID     string         `json:"nodeId,omitempty"`
	NodeType   string         `json:"nodeType,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

func (e *ExecutionError) Error() string { return e.Message }

func (e *ExecutionError) Unwrap() error { return e.Cause }

// NewValidationError builds a schema-violation error.
func NewValidationError(format string, args ...any) *ExecutionError {
	return &ExecutionError{
		Message:   fmt.Sprintf(format, args...),
		Name:      ErrValidation,
		Timestamp: time.Now().UTC(),
	}
}

// NewNodeError wraps a node failure with that node's context. An error that
// already carries node context passes through unchanged.
func NewNodeError(node *Node, cause error) *ExecutionError {
	if ee, ok := cause.(*ExecutionError); ok && ee.Context != nil {
		return ee
	}
	name := ErrNodeExecution
	if ee, ok := cause.(*ExecutionError); ok && ee.Name != "" {
		name = ee.Name
	}
	return &ExecutionError{
		Message:     cause.Error(),
		Name:        name,
		Description: fmt.Sprintf("Error in node %s (%s)", node.Name, node.Type),
		Context: &ErrorContext{
			NodeID:     node.ID,
			NodeType:   node.Type,
			Parameters: node.Parameters,
		},
		Cause:     cause,
		Timestamp: time.Now().UTC(),
	}
}

// Stats aggregates a workflow's execution history.
type Stats struct {
	TotalExecutions      int           `json:"totalExecutions"`
	SuccessfulExecutions int           `json:"successfulExecutions"`
	FailedExecutions     int           `json:"failedExecutions"`
	AverageExecutionTime time.Duration `json:"averageExecutionTime"`
	LastExecution        *time.Time    `json:"lastExecution,omitempty"`
}

// WorkflowUpdate is a partial update applied by Manager.UpdateWorkflow.
// Nil fields are left untouched.
type WorkflowUpdate struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Active      *bool           `json:"active,omitempty"`
	Nodes       []Node          `json:"nodes,omitempty"`
	Connections Connections     `json:"connections,omitempty"`
	Settings    *Settings       `json:"settings,omitempty"`
	StaticData  *map[string]any `json:"staticData,omitempty"`
	Tags        *[]string       `json:"tags,omitempty"`
}
