package workflow

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
)

// Service wires the storage port, node registry, engine and manager together
// and exposes the workflow domain over HTTP.
type Service struct {
	manager *Manager
}

// NewService creates a Service over the given storage backend, with the
// built-in node set wired to the simulated agent and chain clients.
func NewService(storage Storage) *Service {
	registry := NewRegistry(&SimulatedAgentClient{}, &SimulatedChainClient{})
	engine := NewEngine(registry)
	return &Service{manager: NewManager(storage, engine)}
}

// Manager exposes the underlying manager for embedding callers.
func (s *Service) Manager() *Manager { return s.manager }

// Initialize loads persisted workflows; call once before serving traffic.
func (s *Service) Initialize(ctx context.Context) error {
	return s.manager.Initialize(ctx)
}

// jsonMiddleware sets the Content-Type header to application/json.
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// LoadRoutes registers workflow HTTP handlers on the given router.
func (s *Service) LoadRoutes(parentRouter *mux.Router) {
	router := parentRouter.PathPrefix("/").Subrouter()
	router.StrictSlash(false)
	router.Use(jsonMiddleware)

	router.HandleFunc("/workflows", s.HandleCreateWorkflow).Methods("POST")
	router.HandleFunc("/workflows", s.HandleListWorkflows).Methods("GET")
	router.HandleFunc("/workflows/{id}", s.HandleGetWorkflow).Methods("GET")
	router.HandleFunc("/workflows/{id}", s.HandleUpdateWorkflow).Methods("PUT")
	router.HandleFunc("/workflows/{id}", s.HandleDeleteWorkflow).Methods("DELETE")
	router.HandleFunc("/workflows/{id}/execute", s.HandleExecuteWorkflow).Methods("POST")
	router.HandleFunc("/workflows/{id}/activate", s.HandleActivateWorkflow).Methods("POST")
	router.HandleFunc("/workflows/{id}/stats", s.HandleWorkflowStats).Methods("GET")

	router.HandleFunc("/executions", s.HandleListExecutions).Methods("GET")
	router.HandleFunc("/executions/{id}", s.HandleGetExecution).Methods("GET")
	router.HandleFunc("/executions/{id}/cancel", s.HandleCancelExecution).Methods("POST")

	router.HandleFunc("/webhooks/{path}", s.HandleWebhook).Methods("POST")
}
