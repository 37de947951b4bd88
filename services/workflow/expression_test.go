package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func exprContext() *ExecContext {
	return &ExecContext{
		Workflow: WorkflowInfo{
			ID:   "wf-1",
			Name: "Expressions",
			StaticData: map[string]any{
				"endpoint": map[string]any{"url": "https://example.com"},
			},
		},
		Node: &Node{
			ID:   "node-1",
			Type: NodeTypeAgentTask,
			Parameters: map[string]any{
				"agentId": "agent-7",
			},
		},
	}
}

func TestResolveParameter_JSONPath(t *testing.T) {
	item := newItem(map[string]any{
		"text": "great news",
		"user": map[string]any{"name": "Alice"},
	})

	ec := exprContext()
	assert.Equal(t, "great news", resolveParameter("{{$json.text}}", ec, &item))
	assert.Equal(t, "Alice", resolveParameter("{{$json.user.name}}", ec, &item))
	assert.Nil(t, resolveParameter("{{$json.user.missing}}", ec, &item))
}

func TestResolveParameter_StaticDataAndNode(t *testing.T) {
	ec := exprContext()

	assert.Equal(t, "https://example.com", resolveParameter("{{$workflow.staticData.endpoint.url}}", ec, nil))
	assert.Equal(t, "agent-7", resolveParameter("{{$node.agentId}}", ec, nil))
}

func TestResolveParameter_PassThrough(t *testing.T) {
	item := newItem(map[string]any{"text": "hello"})
	ec := exprContext()

	tests := []struct {
		name  string
		value any
	}{
		{"plain string", "just a string"},
		{"embedded expression is not exact form", "prefix {{$json.text}}"},
		{"unknown root", "{{$env.HOME}}"},
		{"number", 42},
		{"bool", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.value, resolveParameter(tt.value, ec, &item))
		})
	}
}

func TestResolveParameter_JSONPathWithoutItem(t *testing.T) {
	ec := exprContext()
	assert.Nil(t, resolveParameter("{{$json.text}}", ec, nil))
}

func TestResolveString(t *testing.T) {
	item := newItem(map[string]any{"count": 3})
	ec := exprContext()

	// Non-string resolution falls back to empty.
	assert.Equal(t, "", resolveString("{{$json.count}}", ec, &item))
	assert.Equal(t, "literal", resolveString("literal", ec, &item))
}
