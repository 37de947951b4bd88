package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAgentClient fails its first failures calls, then returns result.
type mockAgentClient struct {
	mu       sync.Mutex
	result   *TaskResult
	failures int
	calls    int
	requests []TaskRequest
}

func (m *mockAgentClient) ExecuteTask(_ context.Context, req TaskRequest) (*TaskResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.requests = append(m.requests, req)
	if m.calls <= m.failures {
		return nil, errors.New("agent backend unavailable")
	}
	res := *m.result
	if res.Metadata != nil {
		res.Metadata = cloneJSON(res.Metadata)
	}
	return &res, nil
}

func (m *mockAgentClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func agentContext(params map[string]any, items ...Item) *ExecContext {
	return &ExecContext{
		Workflow:  WorkflowInfo{ID: "wf-1", Name: "Agents"},
		Execution: ExecutionInfo{ID: "exec-1", Mode: ModeManual},
		Input:     [][]Item{items},
		Node:      &Node{ID: "agent-1", Type: NodeTypeAgentTask, Name: "Agent", Parameters: params},
	}
}

func TestAgentTask_PerItemExecution(t *testing.T) {
	client := &mockAgentClient{result: &TaskResult{Result: "done", Confidence: 0.9}}
	executor := &AgentTaskExecutor{client: client}

	ec := agentContext(
		map[string]any{
			"agentId":         "{{$json.agent}}",
			"taskDescription": "classify the record",
		},
		newItem(map[string]any{"agent": "agent-a", "text": "first"}),
		newItem(map[string]any{"agent": "agent-b", "text": "second"}),
	)

	output, err := executor.Execute(context.Background(), ec)
	require.NoError(t, err)
	require.Len(t, output, 1)
	require.Len(t, output[0], 2)
	assert.Equal(t, 2, client.callCount())

	for i, wantAgent := range []string{"agent-a", "agent-b"} {
		task := output[0][i].JSON["agentTask"].(map[string]any)
		assert.Equal(t, wantAgent, task["agentId"])
		assert.Equal(t, "success", task["status"])
		assert.Equal(t, "done", task["result"])
		assert.Equal(t, 0.9, task["confidence"])
		require.NotNil(t, output[0][i].PairedItem)
		assert.Equal(t, i, output[0][i].PairedItem.Item)
	}

	// Input items stay untouched; output items carry copies.
	assert.NotContains(t, ec.Input[0][0].JSON, "agentTask")
}

func TestAgentTask_ItemFailureDoesNotAbort(t *testing.T) {
	client := &mockAgentClient{failures: 100}
	executor := &AgentTaskExecutor{client: client, retryDelay: time.Millisecond}

	ec := agentContext(
		map[string]any{"agentId": "agent-a", "taskDescription": "classify", "retryOnFailure": false},
		newItem(map[string]any{"text": "hello"}),
	)

	output, err := executor.Execute(context.Background(), ec)
	require.NoError(t, err, "item failures are recorded on the item, not returned")
	assert.Equal(t, 1, client.callCount())

	task := output[0][0].JSON["agentTask"].(map[string]any)
	assert.Equal(t, "failed", task["status"])
	assert.Contains(t, task["error"], "agent backend unavailable")
}

func TestAgentTask_RetrySucceeds(t *testing.T) {
	client := &mockAgentClient{failures: 1, result: &TaskResult{Result: "ok"}}
	executor := &AgentTaskExecutor{client: client, retryDelay: time.Millisecond}

	ec := agentContext(
		map[string]any{"agentId": "agent-a", "taskDescription": "classify"},
		newItem(map[string]any{"text": "hello"}),
	)

	output, err := executor.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, 2, client.callCount())

	task := output[0][0].JSON["agentTask"].(map[string]any)
	assert.Equal(t, "success", task["status"])
	meta := task["metadata"].(map[string]any)
	assert.Equal(t, true, meta["retried"])
}

func TestAgentTask_RetryExhausted(t *testing.T) {
	client := &mockAgentClient{failures: 100}
	executor := &AgentTaskExecutor{client: client, retryDelay: time.Millisecond}

	ec := agentContext(
		map[string]any{"agentId": "agent-a", "taskDescription": "classify"},
		newItem(map[string]any{"text": "hello"}),
	)

	output, err := executor.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, 2, client.callCount(), "exactly one retry per item")

	task := output[0][0].JSON["agentTask"].(map[string]any)
	assert.Equal(t, "failed", task["status"])
}

func TestAgentTask_ExecuteOnce(t *testing.T) {
	client := &mockAgentClient{result: &TaskResult{Result: "ok"}}
	executor := &AgentTaskExecutor{client: client}

	ec := agentContext(
		map[string]any{"agentId": "agent-a", "taskDescription": "classify"},
		newItem(map[string]any{"n": 1}),
		newItem(map[string]any{"n": 2}),
		newItem(map[string]any{"n": 3}),
	)
	ec.ExecuteOnce = true

	output, err := executor.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Len(t, output[0], 1)
	assert.Equal(t, 1, client.callCount())
}

func TestSimulatedAgentClient(t *testing.T) {
	client := &SimulatedAgentClient{}

	t.Run("sentiment", func(t *testing.T) {
		result, err := client.ExecuteTask(context.Background(), TaskRequest{
			AgentID: "agent-007", TaskDescription: "Run sentiment analysis on this text",
		})
		require.NoError(t, err)
		assert.Contains(t, []string{"positive", "negative", "neutral"}, result.Result)
		assert.GreaterOrEqual(t, result.Confidence, 0.7)
		assert.LessOrEqual(t, result.Confidence, 1.0)
	})

	t.Run("summarize", func(t *testing.T) {
		result, err := client.ExecuteTask(context.Background(), TaskRequest{
			AgentID: "agent-007", TaskDescription: "Summarize the document",
		})
		require.NoError(t, err)
		assert.Contains(t, result.Result, "Summary")
	})

	t.Run("classify", func(t *testing.T) {
		result, err := client.ExecuteTask(context.Background(), TaskRequest{
			AgentID: "agent-007", TaskDescription: "Classify this article",
		})
		require.NoError(t, err)
		assert.Contains(t, []string{"technology", "finance", "health", "education", "entertainment"}, result.Result)
	})

	t.Run("metadata", func(t *testing.T) {
		result, err := client.ExecuteTask(context.Background(), TaskRequest{
			AgentID: "agent-007", TaskDescription: "anything else",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, result.Model)
		assert.Greater(t, result.TokensUsed, 0)
		proof, _ := result.Metadata["zkVMProof"].(string)
		assert.Len(t, proof, 66)
	})
}
