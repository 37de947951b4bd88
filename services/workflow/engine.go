package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Hooks are the engine's lifecycle notifications: explicit subscriber
// callbacks rather than a global listener registry. Nil callbacks are
// skipped. Callbacks run synchronously on the executing goroutine.
type Hooks struct {
	ExecutionStart    func(*Execution)
	ExecutionComplete func(*Execution)
	ExecutionError    func(*Execution, *ExecutionError)
	NodeStart         func(nodeID string, exec *Execution)
	NodeComplete      func(nodeID string, exec *Execution, output [][]Item)
	NodeError         func(nodeID string, exec *Execution, err *ExecutionError)
}

const (
	defaultHistoryLimit = 100
	defaultRetryTimes   = 3
)

// Engine executes one validated workflow to a terminal execution record.
// Multiple executions may run concurrently. The active registry, the history
// buffer and every in-flight execution's Status and RunData are guarded by
// mu; the inspection accessors hand out snapshot copies, never the record a
// run goroutine is still writing to.
type Engine struct {
	registry Registry
	hooks    Hooks

	mu           sync.Mutex
	active       map[string]*Execution
	history      []*Execution
	historyLimit int
}

// NewEngine creates an Engine dispatching to the given node registry.
func NewEngine(registry Registry) *Engine {
	return &Engine{
		registry:     registry,
		active:       make(map[string]*Execution),
		historyLimit: defaultHistoryLimit,
	}
}

// SetHooks installs lifecycle callbacks. Must be called before executions
// start.
func (e *Engine) SetHooks(hooks Hooks) { e.hooks = hooks }

// ExecuteWorkflow runs one workflow to completion and always returns an
// execution with a terminal status; it never returns an error.
func (e *Engine) ExecuteWorkflow(ctx context.Context, wf *Workflow, mode Mode, initialData map[string]any) *Execution {
	exec := &Execution{
		ID:          uuid.NewString(),
		WorkflowID:  wf.ID,
		Mode:        mode,
		Status:      StatusNew,
		StartedAt:   time.Now().UTC(),
		RunData:     make(map[string][]RunEntry),
		ContextData: initialData,
	}

	e.mu.Lock()
	e.active[exec.ID] = exec
	exec.Status = StatusRunning
	e.mu.Unlock()

	if e.hooks.ExecutionStart != nil {
		e.hooks.ExecutionStart(exec)
	}
	slog.Debug("Execution started", "executionId", exec.ID, "workflowId", wf.ID, "mode", mode)

	timeout := DefaultExecutionTimeout
	if wf.Settings != nil && wf.Settings.ExecutionTimeout > 0 {
		timeout = time.Duration(wf.Settings.ExecutionTimeout) * time.Millisecond
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execErr := e.runGraph(runCtx, wf, exec)

	e.mu.Lock()
	canceled := exec.Status == StatusCanceled
	if !canceled {
		now := time.Now().UTC()
		exec.FinishedAt = &now
		if execErr != nil {
			exec.Status = StatusError
			exec.Error = execErr.Message
		} else {
			exec.Status = StatusSuccess
		}
		delete(e.active, exec.ID)
		e.pushHistoryLocked(exec)
	}
	e.mu.Unlock()

	switch {
	case canceled:
		slog.Info("Execution canceled", "executionId", exec.ID)
	case execErr != nil:
		slog.Warn("Execution failed", "executionId", exec.ID, "error", execErr.Message)
		if e.hooks.ExecutionError != nil {
			e.hooks.ExecutionError(exec, execErr)
		}
	default:
		slog.Debug("Execution completed", "executionId", exec.ID)
		if e.hooks.ExecutionComplete != nil {
			e.hooks.ExecutionComplete(exec)
		}
	}

	return exec
}

type queueEntry struct {
	node  *Node
	input [][]Item
}

// runGraph walks the workflow graph: a FIFO queue seeded with the starting
// nodes, first-arrival-wins for nodes reachable by more than one path.
// Returns the workflow-level error when an unrecovered node failure aborts
// the run.
func (e *Engine) runGraph(ctx context.Context, wf *Workflow, exec *Execution) *ExecutionError {
	nodeByID := make(map[string]*Node, len(wf.Nodes))
	for i := range wf.Nodes {
		nodeByID[wf.Nodes[i].ID] = &wf.Nodes[i]
	}

	starting := startingNodes(wf)
	if len(starting) == 0 {
		return &ExecutionError{
			Message:   "no starting nodes found in workflow",
			Name:      ErrExecution,
			Timestamp: time.Now().UTC(),
		}
	}

	queue := make([]queueEntry, 0, len(starting))
	for _, node := range starting {
		queue = append(queue, queueEntry{node: node, input: [][]Item{{}}})
	}
	executed := make(map[string]bool, len(wf.Nodes))

	for len(queue) > 0 {
		if e.isCanceled(exec.ID) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			message := "execution deadline exceeded"
			if errors.Is(err, context.Canceled) {
				message = "execution canceled"
			}
			return &ExecutionError{
				Message:   message,
				Name:      ErrExecution,
				Cause:     err,
				Timestamp: time.Now().UTC(),
			}
		}

		entry := queue[0]
		queue = queue[1:]
		node := entry.node
		if executed[node.ID] {
			continue
		}

		if e.hooks.NodeStart != nil {
			e.hooks.NodeStart(node.ID, exec)
		}

		ec := &ExecContext{
			Workflow: WorkflowInfo{
				ID:         wf.ID,
				Name:       wf.Name,
				StaticData: wf.StaticData,
			},
			Execution: ExecutionInfo{
				ID:          exec.ID,
				Mode:        exec.Mode,
				InitialData: exec.ContextData,
			},
			Input:          entry.input,
			Node:           node,
			ContinueOnFail: node.ContinueOnFail,
			ExecuteOnce:    node.ExecuteOnce,
		}

		start := time.Now()
		result := e.runWithRetry(ctx, ec)
		executed[node.ID] = true

		e.recordRun(exec, node.ID, RunEntry{
			StartTime:     start.UTC(),
			ExecutionTime: time.Since(start),
			Data:          result.Output,
			Error:         result.Err,
		})

		if result.Err != nil {
			slog.Warn("Node failed", "executionId", exec.ID, "nodeId", node.ID, "nodeType", node.Type,
				"continueOnFail", node.ContinueOnFail, "error", result.Err.Message)
			if e.hooks.NodeError != nil {
				e.hooks.NodeError(node.ID, exec, result.Err)
			}
			if !node.ContinueOnFail {
				return &ExecutionError{
					Message:     result.Err.Message,
					Name:        ErrExecution,
					Description: "Workflow execution failed",
					Context:     result.Err.Context,
					Cause:       result.Err,
					Timestamp:   time.Now().UTC(),
				}
			}
			// Failure recorded on this node only; downstream nodes run only
			// if reachable from another path.
			continue
		}

		if e.hooks.NodeComplete != nil {
			e.hooks.NodeComplete(node.ID, exec, result.Output)
		}

		for portIdx, group := range wf.Connections[node.ID].Main {
			items := outputForPort(result.Output, portIdx)
			for _, conn := range group {
				target, ok := nodeByID[conn.Node]
				if !ok || executed[conn.Node] {
					continue
				}
				input := make([][]Item, conn.Index+1)
				input[conn.Index] = items
				queue = append(queue, queueEntry{node: target, input: input})
			}
		}
	}

	return nil
}

// runWithRetry honors the node's declared retryOnFail/retryTimes uniformly
// for every node type; retryTimes defaults to 3 when unset.
func (e *Engine) runWithRetry(ctx context.Context, ec *ExecContext) *NodeResult {
	attempts := 1
	if ec.Node.RetryOnFail {
		times := ec.Node.RetryTimes
		if times <= 0 {
			times = defaultRetryTimes
		}
		attempts += times
	}

	var result *NodeResult
	for i := 0; i < attempts; i++ {
		result = runNode(ctx, e.registry, ec)
		if result.Err == nil || ctx.Err() != nil {
			return result
		}
	}
	return result
}

// startingNodes returns the nodes execution begins from: trigger nodes plus
// any node with no incoming connection.
func startingNodes(wf *Workflow) []*Node {
	hasIncoming := make(map[string]bool)
	for _, outputs := range wf.Connections {
		for _, group := range outputs.Main {
			for _, conn := range group {
				hasIncoming[conn.Node] = true
			}
		}
	}

	var starting []*Node
	for i := range wf.Nodes {
		node := &wf.Nodes[i]
		if node.Type == NodeTypeTrigger || !hasIncoming[node.ID] {
			starting = append(starting, node)
		}
	}
	return starting
}

// outputForPort returns the items a node produced on one output port, or nil
// when the node produced no such port.
func outputForPort(output [][]Item, port int) []Item {
	if port < len(output) {
		return output[port]
	}
	return nil
}

func (e *Engine) isCanceled(executionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, active := e.active[executionID]
	return !active
}

// CancelExecution removes an active execution and marks it canceled. It is
// cooperative: a node call already in flight is not interrupted, but no
// further nodes run.
func (e *Engine) CancelExecution(executionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	exec, ok := e.active[executionID]
	if !ok {
		return false
	}
	exec.Status = StatusCanceled
	now := time.Now().UTC()
	exec.FinishedAt = &now
	delete(e.active, executionID)
	e.pushHistoryLocked(exec)
	return true
}

// ActiveExecutions lists snapshots of the executions currently running.
func (e *Engine) ActiveExecutions() []*Execution {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Execution, 0, len(e.active))
	for _, exec := range e.active {
		out = append(out, snapshotLocked(exec))
	}
	return out
}

// ExecutionHistory returns snapshots of terminal executions, oldest first,
// bounded by the history cap.
func (e *Engine) ExecutionHistory() []*Execution {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Execution, 0, len(e.history))
	for _, exec := range e.history {
		out = append(out, snapshotLocked(exec))
	}
	return out
}

// GetExecution finds an execution by id in the active registry or history and
// returns a snapshot of it.
func (e *Engine) GetExecution(executionID string) *Execution {
	e.mu.Lock()
	defer e.mu.Unlock()
	if exec, ok := e.active[executionID]; ok {
		return snapshotLocked(exec)
	}
	for _, exec := range e.history {
		if exec.ID == executionID {
			return snapshotLocked(exec)
		}
	}
	return nil
}

// recordRun appends a node invocation to the execution's run data. The walker
// is the only writer, but readers snapshot RunData under the same mutex.
func (e *Engine) recordRun(exec *Execution, nodeID string, entry RunEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec.RunData[nodeID] = append(exec.RunData[nodeID], entry)
}

// snapshotLocked copies an execution record for hand-out. The RunData map and
// its entry slices are copied; a canceled execution's walker may still be
// appending to the original. Callers must hold e.mu.
func snapshotLocked(exec *Execution) *Execution {
	copied := *exec
	copied.RunData = make(map[string][]RunEntry, len(exec.RunData))
	for nodeID, entries := range exec.RunData {
		copied.RunData[nodeID] = append([]RunEntry(nil), entries...)
	}
	return &copied
}

func (e *Engine) pushHistoryLocked(exec *Execution) {
	e.history = append(e.history, exec)
	if len(e.history) > e.historyLimit {
		e.history = e.history[len(e.history)-e.historyLimit:]
	}
}
