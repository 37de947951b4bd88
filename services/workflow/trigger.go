package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Static-data keys populated by the webhook dispatcher before a webhook
// execution starts.
const (
	StaticKeyWebhookData    = "webhookData"
	StaticKeyWebhookHeaders = "webhookHeaders"
)

// TriggerExecutor seeds an execution with its initial item(s). It has no
// inputs; the engine always treats trigger nodes as starting nodes.
type TriggerExecutor struct{}

func (t *TriggerExecutor) Inputs() []string  { return nil }
func (t *TriggerExecutor) Outputs() []string { return []string{PortMain} }

func (t *TriggerExecutor) Execute(_ context.Context, ec *ExecContext) ([][]Item, error) {
	eventType, _ := ec.Node.Parameters["eventType"].(string)

	switch eventType {
	case "manual":
		return t.manual(ec), nil
	case "webhook":
		return t.webhook(ec), nil
	case "cron":
		schedule, _ := ec.Node.Parameters["schedule"].(string)
		return t.cron(schedule)
	default:
		return nil, fmt.Errorf("unsupported trigger type: %s", eventType)
	}
}

// manual produces one seed item: the caller's initial data merged under the
// execution metadata, so downstream {{$json.x}} references can see it.
func (t *TriggerExecutor) manual(ec *ExecContext) [][]Item {
	seed := make(map[string]any, len(ec.Execution.InitialData)+5)
	for k, v := range ec.Execution.InitialData {
		seed[k] = v
	}
	seed["trigger"] = "manual"
	seed["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	seed["workflowId"] = ec.Workflow.ID
	seed["executionId"] = ec.Execution.ID
	seed["mode"] = string(ec.Execution.Mode)

	return [][]Item{{newItem(seed)}}
}

// webhook pulls the payload and headers the external webhook dispatcher left
// in the workflow's static data.
func (t *TriggerExecutor) webhook(ec *ExecContext) [][]Item {
	payload, _ := ec.Workflow.StaticData[StaticKeyWebhookData].(map[string]any)
	headers, _ := ec.Workflow.StaticData[StaticKeyWebhookHeaders].(map[string]any)
	if payload == nil {
		payload = map[string]any{}
	}
	if headers == nil {
		headers = map[string]any{}
	}
	webhookPath, _ := ec.Node.Parameters["webhookPath"].(string)

	seed := map[string]any{
		"trigger":     "webhook",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"webhookPath": webhookPath,
		"payload":     payload,
		"headers":     headers,
		"method":      "POST",
	}
	return [][]Item{{newItem(seed)}}
}

// cron validates the schedule expression and reports the next run time.
func (t *TriggerExecutor) cron(schedule string) ([][]Item, error) {
	sched, err := parseCronSchedule(schedule)
	if err != nil {
		return nil, err
	}

	seed := map[string]any{
		"trigger":       "cron",
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"schedule":      schedule,
		"nextExecution": sched.Next(time.Now().UTC()).Format(time.RFC3339),
	}
	return [][]Item{{newItem(seed)}}, nil
}

var (
	cronParserStandard    = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	cronParserWithSeconds = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
)

// parseCronSchedule accepts 5-field (standard) and 6-field (with seconds)
// cron expressions.
func parseCronSchedule(expression string) (cron.Schedule, error) {
	fields := strings.Fields(expression)

	var sched cron.Schedule
	var err error
	switch len(fields) {
	case 5:
		sched, err = cronParserStandard.Parse(expression)
	case 6:
		sched, err = cronParserWithSeconds.Parse(expression)
	default:
		return nil, NewValidationError("invalid cron expression: %s", expression)
	}
	if err != nil {
		return nil, NewValidationError("invalid cron expression: %s: %v", expression, err)
	}
	return sched, nil
}
