package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrWorkflowNotFound is returned when an operation names a workflow id that
// is not persisted.
var ErrWorkflowNotFound = errors.New("workflow not found")

// Manager owns workflow definitions and their activation state, and is the
// single entry point for creating, modifying, running and inspecting
// workflows. Persistence goes through the injected Storage port; execution
// is delegated to the Engine.
type Manager struct {
	storage Storage
	engine  *Engine

	mu     sync.RWMutex
	active map[string]*Workflow
}

func NewManager(storage Storage, engine *Engine) *Manager {
	return &Manager{
		storage: storage,
		engine:  engine,
		active:  make(map[string]*Workflow),
	}
}

// Initialize loads all persisted workflows and rebuilds the active-workflow
// index. Must be called once before accepting webhook or trigger traffic.
func (m *Manager) Initialize(ctx context.Context) error {
	all, err := m.storage.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load workflows: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = make(map[string]*Workflow)
	for _, wf := range all {
		if wf.Active {
			m.active[wf.ID] = wf
		}
	}
	slog.Info("Workflow manager initialized", "totalWorkflows", len(all), "activeWorkflows", len(m.active))
	return nil
}

// CreateWorkflow validates and persists a new workflow definition. The id
// and timestamps are assigned here; a validation failure leaves nothing
// persisted.
func (m *Manager) CreateWorkflow(ctx context.Context, wf *Workflow) (*Workflow, error) {
	now := time.Now().UTC()
	wf.ID = uuid.NewString()
	wf.CreatedAt = now
	wf.UpdatedAt = now

	if err := ValidateWorkflow(wf); err != nil {
		return nil, err
	}
	if err := m.storage.Save(ctx, wf); err != nil {
		return nil, err
	}

	m.setActiveIndex(wf)
	slog.Debug("Workflow created", "id", wf.ID, "name", wf.Name, "active", wf.Active)
	return wf, nil
}

// UpdateWorkflow applies a partial update, re-validates, persists and bumps
// UpdatedAt. The id never changes.
func (m *Manager) UpdateWorkflow(ctx context.Context, id string, update *WorkflowUpdate) (*Workflow, error) {
	wf, err := m.storage.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}

	if update.Name != nil {
		wf.Name = *update.Name
	}
	if update.Description != nil {
		wf.Description = *update.Description
	}
	if update.Active != nil {
		wf.Active = *update.Active
	}
	if update.Nodes != nil {
		wf.Nodes = update.Nodes
	}
	if update.Connections != nil {
		wf.Connections = update.Connections
	}
	if update.Settings != nil {
		wf.Settings = update.Settings
	}
	if update.StaticData != nil {
		wf.StaticData = *update.StaticData
	}
	if update.Tags != nil {
		wf.Tags = *update.Tags
	}

	now := time.Now().UTC()
	if !now.After(wf.UpdatedAt) {
		now = wf.UpdatedAt.Add(time.Nanosecond)
	}
	wf.UpdatedAt = now

	if err := ValidateWorkflow(wf); err != nil {
		return nil, err
	}
	if err := m.storage.Save(ctx, wf); err != nil {
		return nil, err
	}

	m.setActiveIndex(wf)
	slog.Debug("Workflow updated", "id", wf.ID, "active", wf.Active)
	return wf, nil
}

// GetWorkflow returns nil, nil when the id is unknown.
func (m *Manager) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	return m.storage.Load(ctx, id)
}

func (m *Manager) GetAllWorkflows(ctx context.Context) ([]*Workflow, error) {
	return m.storage.LoadAll(ctx)
}

// SearchWorkflows matches query case-insensitively over name, description
// and tags.
func (m *Manager) SearchWorkflows(ctx context.Context, query string) ([]*Workflow, error) {
	return m.storage.Search(ctx, query)
}

func (m *Manager) DeleteWorkflow(ctx context.Context, id string) (bool, error) {
	deleted, err := m.storage.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		m.mu.Lock()
		delete(m.active, id)
		m.mu.Unlock()
		slog.Debug("Workflow deleted", "id", id)
	}
	return deleted, nil
}

// ExecuteWorkflow loads the definition and runs it with mode manual.
func (m *Manager) ExecuteWorkflow(ctx context.Context, id string, initialData map[string]any) (*Execution, error) {
	wf, err := m.storage.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return m.engine.ExecuteWorkflow(ctx, wf, ModeManual, initialData), nil
}

// ExecuteWorkflowByWebhook fires one execution per active workflow that has
// a webhook trigger registered for the given path. One external event may
// fan out to multiple runs.
func (m *Manager) ExecuteWorkflowByWebhook(ctx context.Context, path string, payload map[string]any) ([]*Execution, error) {
	all, err := m.storage.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	var executions []*Execution
	for _, wf := range all {
		if !wf.Active || !hasWebhookTrigger(wf, path) {
			continue
		}

		// The dispatcher hands the payload to the trigger node through the
		// workflow's static data; the definition itself stays untouched.
		run := *wf
		run.StaticData = cloneJSON(wf.StaticData)
		run.StaticData[StaticKeyWebhookData] = payload

		executions = append(executions, m.engine.ExecuteWorkflow(ctx, &run, ModeWebhook, payload))
	}
	return executions, nil
}

func hasWebhookTrigger(wf *Workflow, path string) bool {
	for _, node := range wf.Nodes {
		if node.Type != NodeTypeTrigger {
			continue
		}
		eventType, _ := node.Parameters["eventType"].(string)
		webhookPath, _ := node.Parameters["webhookPath"].(string)
		if eventType == "webhook" && webhookPath == path {
			return true
		}
	}
	return false
}

// SetWorkflowActive is a convenience wrapper over UpdateWorkflow.
func (m *Manager) SetWorkflowActive(ctx context.Context, id string, active bool) (*Workflow, error) {
	return m.UpdateWorkflow(ctx, id, &WorkflowUpdate{Active: &active})
}

// ActiveWorkflows lists the workflows currently in the active index.
func (m *Manager) ActiveWorkflows() []*Workflow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Workflow, 0, len(m.active))
	for _, wf := range m.active {
		out = append(out, wf)
	}
	return out
}

// WorkflowStats aggregates one workflow's execution history.
func (m *Manager) WorkflowStats(id string) *Stats {
	stats := &Stats{}
	var totalDuration time.Duration
	var finished int

	for _, exec := range m.engine.ExecutionHistory() {
		if exec.WorkflowID != id {
			continue
		}
		stats.TotalExecutions++
		switch exec.Status {
		case StatusSuccess:
			stats.SuccessfulExecutions++
		case StatusError:
			stats.FailedExecutions++
		}
		if exec.FinishedAt != nil {
			totalDuration += exec.FinishedAt.Sub(exec.StartedAt)
			finished++
		}
		started := exec.StartedAt
		if stats.LastExecution == nil || started.After(*stats.LastExecution) {
			stats.LastExecution = &started
		}
	}

	if finished > 0 {
		stats.AverageExecutionTime = totalDuration / time.Duration(finished)
	}
	return stats
}

// Execution inspection and cancellation pass through to the engine.

func (m *Manager) ExecutionHistory() []*Execution    { return m.engine.ExecutionHistory() }
func (m *Manager) ActiveExecutions() []*Execution    { return m.engine.ActiveExecutions() }
func (m *Manager) GetExecution(id string) *Execution { return m.engine.GetExecution(id) }
func (m *Manager) CancelExecution(id string) bool    { return m.engine.CancelExecution(id) }

func (m *Manager) setActiveIndex(wf *Workflow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wf.Active {
		m.active[wf.ID] = wf
	} else {
		delete(m.active, wf.ID)
	}
}
