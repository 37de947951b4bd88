package workflow

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// TaskRequest describes one unit of work delegated to an external agent.
type TaskRequest struct {
	AgentID         string
	TaskDescription string
	InputData       any
	Context         map[string]any
}

// TaskResult is the agent's answer to a task.
type TaskResult struct {
	Result     string
	Confidence float64
	Model      string
	TokensUsed int
	Metadata   map[string]any
}

// AgentClient executes tasks against an external agent backend.
type AgentClient interface {
	ExecuteTask(ctx context.Context, req TaskRequest) (*TaskResult, error)
}

const (
	defaultAgentTimeout = 30000 * time.Millisecond
	agentRetryDelay     = time.Second
)

// AgentTaskExecutor delegates each input item to an agent. Item failures are
// recorded on that item's output instead of aborting the node, so one bad
// item in a batch does not discard the rest.
type AgentTaskExecutor struct {
	client AgentClient
	// retryDelay overrides the fixed delay before the single retry; zero
	// means agentRetryDelay.
	retryDelay time.Duration
}

func (e *AgentTaskExecutor) Inputs() []string  { return []string{PortMain} }
func (e *AgentTaskExecutor) Outputs() []string { return []string{PortMain} }

func (e *AgentTaskExecutor) Execute(ctx context.Context, ec *ExecContext) ([][]Item, error) {
	params := ec.Node.Parameters
	timeout := durationParam(params, "timeout", defaultAgentTimeout)
	retryOnFailure := boolParam(params, "retryOnFailure", true)

	items := ec.inputItems(0)
	results := make([]Item, 0, len(items))

	for i := range items {
		item := &items[i]
		req := TaskRequest{
			AgentID:         resolveString(params["agentId"], ec, item),
			TaskDescription: resolveString(params["taskDescription"], ec, item),
			InputData:       resolveParameter(params["inputData"], ec, item),
			Context:         item.JSON,
		}

		result, err := e.callWithRetry(ctx, req, timeout, retryOnFailure)

		out := cloneJSON(item.JSON)
		if err != nil {
			out["agentTask"] = map[string]any{
				"agentId":         req.AgentID,
				"taskDescription": req.TaskDescription,
				"error":           err.Error(),
				"status":          "failed",
			}
		} else {
			out["agentTask"] = map[string]any{
				"agentId":         req.AgentID,
				"taskDescription": req.TaskDescription,
				"result":          result.Result,
				"status":          "success",
				"confidence":      result.Confidence,
				"metadata":        result.Metadata,
			}
		}
		results = append(results, itemFor(out, i))
	}

	return [][]Item{results}, nil
}

// callWithRetry performs the agent call with a per-call timeout and, when
// retryOnFailure is set, exactly one retry after a fixed delay.
func (e *AgentTaskExecutor) callWithRetry(ctx context.Context, req TaskRequest, timeout time.Duration, retry bool) (*TaskResult, error) {
	result, err := e.call(ctx, req, timeout)
	if err == nil || !retry {
		return result, err
	}

	delay := e.retryDelay
	if delay <= 0 {
		delay = agentRetryDelay
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, err
	}

	if result, retryErr := e.call(ctx, req, timeout); retryErr == nil {
		if result.Metadata == nil {
			result.Metadata = map[string]any{}
		}
		result.Metadata["retried"] = true
		return result, nil
	}
	// Retry failed too; report the original error.
	return nil, err
}

func (e *AgentTaskExecutor) call(ctx context.Context, req TaskRequest, timeout time.Duration) (*TaskResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	result, err := e.client.ExecuteTask(callCtx, req)
	if err != nil {
		return nil, fmt.Errorf("agent task execution failed: %w", err)
	}
	return result, nil
}

func cloneJSON(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SimulatedAgentClient stands in for the real agent backend, shaping its
// answers after the task description the way the eventual service will.
type SimulatedAgentClient struct {
	// Latency is added to every call to mimic a remote agent.
	Latency time.Duration
}

func (c *SimulatedAgentClient) ExecuteTask(ctx context.Context, req TaskRequest) (*TaskResult, error) {
	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	task := strings.ToLower(req.TaskDescription)
	var output string
	var confidence float64

	switch {
	case strings.Contains(task, "sentiment"):
		sentiments := []string{"positive", "negative", "neutral"}
		output = sentiments[rand.Intn(len(sentiments))]
		confidence = 0.7 + rand.Float64()*0.3
	case strings.Contains(task, "summarize"):
		output = fmt.Sprintf("Summary of the text: a brief summary of %v.", req.InputData)
		confidence = 0.8 + rand.Float64()*0.2
	case strings.Contains(task, "classify"), strings.Contains(task, "category"):
		categories := []string{"technology", "finance", "health", "education", "entertainment"}
		output = categories[rand.Intn(len(categories))]
		confidence = 0.75 + rand.Float64()*0.25
	default:
		output = fmt.Sprintf("Agent %s task completed: %s", req.AgentID, req.TaskDescription)
		confidence = 0.6 + rand.Float64()*0.4
	}

	return &TaskResult{
		Result:     output,
		Confidence: confidence,
		Model:      "BitNet-Agent-v1.0",
		TokensUsed: rand.Intn(500) + 100,
		Metadata: map[string]any{
			"agentVersion": "1.0.0",
			"zkVMProof":    randomHex(64),
			"gasUsed":      rand.Intn(50000) + 10000,
		},
	}, nil
}

func randomHex(n int) string {
	const digits = "0123456789abcdef"
	b := make([]byte, n+2)
	b[0], b[1] = '0', 'x'
	for i := 2; i < len(b); i++ {
		b[i] = digits[rand.Intn(16)]
	}
	return string(b)
}
