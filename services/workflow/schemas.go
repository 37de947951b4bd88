package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Workflow definitions and node parameters are validated against JSON
// schemas before any persistence or execution. Cross-field checks that a
// schema cannot express (connection targets existing, unique node ids) live
// in validateConnections below.

const workflowSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"name": {"type": "string", "minLength": 1, "maxLength": 100},
		"description": {"type": "string", "maxLength": 500},
		"active": {"type": "boolean"},
		"nodes": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"type": {"type": "string", "minLength": 1},
					"name": {"type": "string", "minLength": 1},
					"position": {
						"type": "object",
						"properties": {"x": {"type": "number"}, "y": {"type": "number"}}
					},
					"parameters": {"type": "object"},
					"executeOnce": {"type": "boolean"},
					"retryOnFail": {"type": "boolean"},
					"retryTimes": {"type": "integer", "minimum": 0, "maximum": 10},
					"continueOnFail": {"type": "boolean"}
				},
				"required": ["id", "type", "name"]
			}
		},
		"connections": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"properties": {
					"main": {
						"type": "array",
						"items": {
							"type": "array",
							"items": {
								"type": "object",
								"properties": {
									"node": {"type": "string", "minLength": 1},
									"type": {"type": "string"},
									"index": {"type": "integer", "minimum": 0}
								},
								"required": ["node"]
							}
						}
					}
				}
			}
		},
		"settings": {
			"type": "object",
			"properties": {
				"executionTimeout": {"type": "integer", "minimum": 1000, "maximum": 3600000},
				"saveExecutionProgress": {"type": "boolean"},
				"saveManualExecutions": {"type": "boolean"},
				"callerPolicy": {"enum": ["any", "workflowsFromSameOwner"]},
				"errorWorkflow": {"type": "string"}
			}
		},
		"staticData": {"type": "object"},
		"tags": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["id", "name", "nodes", "connections"]
}`

const triggerSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"eventType": {"enum": ["manual", "webhook", "cron"]},
		"schedule": {"type": "string", "minLength": 1},
		"webhookPath": {"type": "string", "minLength": 1}
	},
	"required": ["eventType"],
	"allOf": [
		{
			"if": {"properties": {"eventType": {"const": "cron"}}},
			"then": {"required": ["schedule"]}
		},
		{
			"if": {"properties": {"eventType": {"const": "webhook"}}},
			"then": {"required": ["webhookPath"]}
		}
	],
	"additionalProperties": false
}`

const agentTaskSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"agentId": {"type": "string", "minLength": 1},
		"taskDescription": {"type": "string", "minLength": 1, "maxLength": 1000},
		"inputData": {"type": ["object", "string"]},
		"timeout": {"type": "integer", "minimum": 1000, "maximum": 300000},
		"retryOnFailure": {"type": "boolean"}
	},
	"required": ["agentId", "taskDescription"],
	"additionalProperties": false
}`

const chainSubmitSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"contractAddress": {"type": "string", "minLength": 1},
		"functionName": {"type": "string", "minLength": 1},
		"parameters": {"type": "array"},
		"gasLimit": {"type": "integer", "minimum": 21000, "maximum": 10000000},
		"value": {"type": "string", "pattern": "^\\d+$"}
	},
	"required": ["contractAddress", "functionName"],
	"additionalProperties": false
}`

var (
	workflowSchema = jsonschema.MustCompileString("workflow.json", workflowSchemaJSON)

	nodeTypeSchemas = map[string]*jsonschema.Schema{
		NodeTypeTrigger:     jsonschema.MustCompileString("trigger.json", triggerSchemaJSON),
		NodeTypeAgentTask:   jsonschema.MustCompileString("agentTask.json", agentTaskSchemaJSON),
		NodeTypeChainSubmit: jsonschema.MustCompileString("chainSubmit.json", chainSubmitSchemaJSON),
	}
)

// ValidateWorkflow checks a workflow definition against the workflow schema
// and the structural connection invariants. Returns a ValidationError on the
// first violation.
func ValidateWorkflow(wf *Workflow) error {
	doc, err := toJSONValue(wf)
	if err != nil {
		return NewValidationError("invalid workflow: %v", err)
	}
	if err := workflowSchema.Validate(doc); err != nil {
		return schemaViolation("invalid workflow", err)
	}
	return validateConnections(wf)
}

// ValidateNodeParameters checks parameters against the schema registered for
// the node type. Unknown node types are rejected.
func ValidateNodeParameters(nodeType string, parameters map[string]any) error {
	schema, ok := nodeTypeSchemas[nodeType]
	if !ok {
		return NewValidationError("unknown node type: %s", nodeType)
	}
	if parameters == nil {
		parameters = map[string]any{}
	}
	doc, err := toJSONValue(parameters)
	if err != nil {
		return NewValidationError("invalid parameters: %v", err)
	}
	if err := schema.Validate(doc); err != nil {
		return schemaViolation(fmt.Sprintf("parameter validation failed for %s", nodeType), err)
	}
	return nil
}

// validateConnections enforces that every connection source and target names
// an existing node, and that node ids are unique within the workflow.
func validateConnections(wf *Workflow) error {
	ids := make(map[string]bool, len(wf.Nodes))
	for _, n := range wf.Nodes {
		if ids[n.ID] {
			return NewValidationError("duplicate node id %q", n.ID)
		}
		ids[n.ID] = true
	}
	for source, outputs := range wf.Connections {
		if !ids[source] {
			return NewValidationError("connection source %q does not exist in workflow", source)
		}
		for _, group := range outputs.Main {
			for _, conn := range group {
				if !ids[conn.Node] {
					return NewValidationError("connection target %q does not exist in workflow", conn.Node)
				}
			}
		}
	}
	return nil
}

func schemaViolation(prefix string, err error) error {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		loc := leaf.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return NewValidationError("%s: %s at %s", prefix, leaf.Message, loc)
	}
	return NewValidationError("%s: %v", prefix, err)
}

// toJSONValue round-trips a Go value through encoding/json, which is the
// representation the schema validator operates on.
func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
