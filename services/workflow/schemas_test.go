package workflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWorkflow() *Workflow {
	wf := sentimentWorkflow()
	wf.ID = "11111111-1111-1111-1111-111111111111"
	return wf
}

func TestValidateWorkflow_Valid(t *testing.T) {
	assert.NoError(t, ValidateWorkflow(validWorkflow()))
}

func TestValidateWorkflow_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Workflow)
	}{
		{"missing name", func(wf *Workflow) { wf.Name = "" }},
		{"name too long", func(wf *Workflow) { wf.Name = strings.Repeat("x", 101) }},
		{"no nodes", func(wf *Workflow) { wf.Nodes = nil }},
		{"node without id", func(wf *Workflow) { wf.Nodes[0].ID = "" }},
		{"duplicate node ids", func(wf *Workflow) { wf.Nodes[1].ID = wf.Nodes[0].ID }},
		{"connection target does not exist", func(wf *Workflow) {
			wf.Connections["trigger-1"] = NodeOutputs{Main: [][]Connection{{{Node: "ghost"}}}}
		}},
		{"connection source does not exist", func(wf *Workflow) {
			wf.Connections["ghost"] = NodeOutputs{Main: [][]Connection{{{Node: "agent-1"}}}}
		}},
		{"execution timeout too small", func(wf *Workflow) {
			wf.Settings = &Settings{ExecutionTimeout: 500}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := validWorkflow()
			tt.mutate(wf)

			err := ValidateWorkflow(wf)
			require.Error(t, err)
			assert.True(t, isValidationError(err), "expected a validation error, got %v", err)
		})
	}
}

func TestValidateNodeParameters(t *testing.T) {
	tests := []struct {
		name     string
		nodeType string
		params   map[string]any
		wantErr  bool
	}{
		{"manual trigger", NodeTypeTrigger, map[string]any{"eventType": "manual"}, false},
		{"cron trigger with schedule", NodeTypeTrigger, map[string]any{"eventType": "cron", "schedule": "* * * * *"}, false},
		{"cron trigger without schedule", NodeTypeTrigger, map[string]any{"eventType": "cron"}, true},
		{"webhook trigger without path", NodeTypeTrigger, map[string]any{"eventType": "webhook"}, true},
		{"unknown event type", NodeTypeTrigger, map[string]any{"eventType": "carrier-pigeon"}, true},
		{"trigger with stray property", NodeTypeTrigger, map[string]any{"eventType": "manual", "bogus": 1}, true},

		{"agent task valid", NodeTypeAgentTask, map[string]any{"agentId": "a", "taskDescription": "classify"}, false},
		{"agent task missing agentId", NodeTypeAgentTask, map[string]any{"taskDescription": "classify"}, true},
		{"agent task description too long", NodeTypeAgentTask, map[string]any{"agentId": "a", "taskDescription": strings.Repeat("x", 1001)}, true},
		{"agent task timeout below minimum", NodeTypeAgentTask, map[string]any{"agentId": "a", "taskDescription": "classify", "timeout": 500}, true},

		{"chain submit valid", NodeTypeChainSubmit, map[string]any{"contractAddress": testContractAddress, "functionName": "submitResult"}, false},
		{"chain submit missing function", NodeTypeChainSubmit, map[string]any{"contractAddress": testContractAddress}, true},
		{"chain submit gas limit too low", NodeTypeChainSubmit, map[string]any{"contractAddress": testContractAddress, "functionName": "f", "gasLimit": 20000}, true},
		{"chain submit non-numeric value", NodeTypeChainSubmit, map[string]any{"contractAddress": testContractAddress, "functionName": "f", "value": "lots"}, true},

		{"unknown node type", "teleport", map[string]any{}, true},
		{"nil parameters rejected when required fields exist", NodeTypeAgentTask, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNodeParameters(tt.nodeType, tt.params)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, isValidationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
