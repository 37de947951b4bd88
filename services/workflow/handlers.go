package workflow

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// HandleCreateWorkflow validates and persists a new workflow definition.
func (s *Service) HandleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := s.manager.CreateWorkflow(r.Context(), &wf)
	if err != nil {
		s.writeManagerError(w, "create workflow", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// HandleListWorkflows returns all workflows, or a case-insensitive search
// over name/description/tags when ?q= is present.
func (s *Service) HandleListWorkflows(w http.ResponseWriter, r *http.Request) {
	var (
		workflows []*Workflow
		err       error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		workflows, err = s.manager.SearchWorkflows(r.Context(), q)
	} else {
		workflows, err = s.manager.GetAllWorkflows(r.Context())
	}
	if err != nil {
		slog.Error("Failed to list workflows", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if workflows == nil {
		workflows = []*Workflow{}
	}
	writeJSON(w, http.StatusOK, workflows)
}

func (s *Service) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	wf, err := s.manager.GetWorkflow(r.Context(), id)
	if err != nil {
		slog.Error("Failed to get workflow", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if wf == nil {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Service) HandleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var update WorkflowUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wf, err := s.manager.UpdateWorkflow(r.Context(), id, &update)
	if err != nil {
		s.writeManagerError(w, "update workflow", err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Service) HandleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	deleted, err := s.manager.DeleteWorkflow(r.Context(), id)
	if err != nil {
		slog.Error("Failed to delete workflow", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleExecuteWorkflow runs a workflow with mode manual. The request body
// is the initial data handed to the trigger node.
func (s *Service) HandleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	slog.Debug("Executing workflow", "id", id)

	initialData := map[string]any{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&initialData); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	exec, err := s.manager.ExecuteWorkflow(r.Context(), id, initialData)
	if err != nil {
		s.writeManagerError(w, "execute workflow", err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Service) HandleActivateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wf, err := s.manager.SetWorkflowActive(r.Context(), id, body.Active)
	if err != nil {
		s.writeManagerError(w, "activate workflow", err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Service) HandleWorkflowStats(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	wf, err := s.manager.GetWorkflow(r.Context(), id)
	if err != nil {
		slog.Error("Failed to get workflow for stats", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if wf == nil {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, s.manager.WorkflowStats(id))
}

func (s *Service) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  s.manager.ActiveExecutions(),
		"history": s.manager.ExecutionHistory(),
	})
}

func (s *Service) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	exec := s.manager.GetExecution(id)
	if exec == nil {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Service) HandleCancelExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.manager.CancelExecution(id) {
		writeError(w, http.StatusNotFound, "no active execution with that id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(StatusCanceled)})
}

// HandleWebhook fans an external event out to every active workflow with a
// webhook trigger on this path.
func (s *Service) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]

	payload := map[string]any{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	executions, err := s.manager.ExecuteWorkflowByWebhook(r.Context(), path, payload)
	if err != nil {
		slog.Error("Webhook dispatch failed", "path", path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if executions == nil {
		executions = []*Execution{}
	}
	writeJSON(w, http.StatusOK, executions)
}

func (s *Service) writeManagerError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrWorkflowNotFound):
		writeError(w, http.StatusNotFound, "workflow not found")
	case isValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("Failed to "+op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func isValidationError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee) && ee.Name == ErrValidation
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
