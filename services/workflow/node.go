package workflow

import (
	"context"
	"fmt"
)

// Built-in node type tags.
const (
	NodeTypeTrigger     = "trigger"
	NodeTypeAgentTask   = "agentTask"
	NodeTypeChainSubmit = "chainSubmit"
)

// PortMain is the default connection port.
const PortMain = "main"

// WorkflowInfo is the slice of the owning workflow a node may read.
type WorkflowInfo struct {
	ID         string
	Name       string
	StaticData map[string]any
}

// ExecutionInfo identifies the run a node executes within.
type ExecutionInfo struct {
	ID          string
	Mode        Mode
	InitialData map[string]any
}

// ExecContext bundles everything a node invocation may see: the owning
// workflow, the execution, the items arriving on each input port, and the
// node's own declaration and effective flags.
type ExecContext struct {
	Workflow       WorkflowInfo
	Execution      ExecutionInfo
	Input          [][]Item
	Node           *Node
	ContinueOnFail bool
	ExecuteOnce    bool
}

// inputItems returns the items on one input port. With executeOnce set, only
// the first item is processed.
func (ec *ExecContext) inputItems(port int) []Item {
	if port >= len(ec.Input) {
		return nil
	}
	items := ec.Input[port]
	if ec.ExecuteOnce && len(items) > 1 {
		return items[:1]
	}
	return items
}

// newItem wraps a JSON payload as an execution item paired to input item 0.
func newItem(data map[string]any) Item {
	return Item{JSON: data, PairedItem: &PairedItem{Item: 0}}
}

// itemFor wraps a JSON payload as an item paired to the input item it was
// produced from, preserving lineage through fan-out.
func itemFor(data map[string]any, sourceIndex int) Item {
	return Item{JSON: data, PairedItem: &PairedItem{Item: sourceIndex}}
}

// Executor is the single capability every node type implements.
type Executor interface {
	// Inputs and Outputs declare the node's ports.
	Inputs() []string
	Outputs() []string
	// Execute runs the node's business logic. Failures are returned, never
	// panicked; the runNode wrapper adds node context.
	Execute(ctx context.Context, ec *ExecContext) ([][]Item, error)
}

// Registry maps a node type tag to a constructor for its executor. Adding a
// node type means adding a registry entry.
type Registry map[string]func() Executor

// NewRegistry returns the closed built-in node set wired to the given
// external clients.
func NewRegistry(agent AgentClient, chain ChainClient) Registry {
	return Registry{
		NodeTypeTrigger:     func() Executor { return &TriggerExecutor{} },
		NodeTypeAgentTask:   func() Executor { return &AgentTaskExecutor{client: agent} },
		NodeTypeChainSubmit: func() Executor { return &ChainSubmitExecutor{client: chain} },
	}
}

// NodeResult is the outcome of one node invocation. Output is non-nil when
// the invocation produced data or absorbed its failure via continueOnFail.
type NodeResult struct {
	Output [][]Item
	Err    *ExecutionError
}

// runNode is the shared node contract: validate the node's declared
// parameters against its type schema, invoke the executor, and convert every
// failure - including panics - into a structured ExecutionError. With
// continueOnFail the result still carries an empty item list alongside the
// error.
func runNode(ctx context.Context, registry Registry, ec *ExecContext) (result *NodeResult) {
	defer func() {
		if r := recover(); r != nil {
			nodeErr := NewNodeError(ec.Node, fmt.Errorf("node panicked: %v", r))
			result = failedResult(ec, nodeErr)
		}
	}()

	factory, ok := registry[ec.Node.Type]
	if !ok {
		return failedResult(ec, NewNodeError(ec.Node, NewValidationError("unknown node type: %s", ec.Node.Type)))
	}

	if err := ValidateNodeParameters(ec.Node.Type, ec.Node.Parameters); err != nil {
		return failedResult(ec, NewNodeError(ec.Node, err))
	}

	output, err := factory().Execute(ctx, ec)
	if err != nil {
		return failedResult(ec, NewNodeError(ec.Node, err))
	}
	if output == nil {
		output = [][]Item{{}}
	}
	return &NodeResult{Output: output}
}

func failedResult(ec *ExecContext, err *ExecutionError) *NodeResult {
	if ec.ContinueOnFail {
		return &NodeResult{Output: [][]Item{{}}, Err: err}
	}
	return &NodeResult{Err: err}
}
