package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	svc := NewService(NewMemoryStorage())
	require.NoError(t, svc.Initialize(context.Background()))

	router := mux.NewRouter()
	svc.LoadRoutes(router.PathPrefix("/api/v1").Subrouter())
	return router
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestHandleWorkflowLifecycle(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/workflows", draftWorkflow("HTTP Pipeline"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[Workflow](t, rec)
	require.NotEmpty(t, created.ID)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/workflows/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HTTP Pipeline", decodeBody[Workflow](t, rec).Name)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/workflows", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]Workflow](t, rec), 1)

	rec = doJSON(t, router, http.MethodPut, "/api/v1/workflows/"+created.ID, map[string]any{"name": "Renamed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Renamed", decodeBody[Workflow](t, rec).Name)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/workflows?q=renamed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]Workflow](t, rec), 1)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/workflows/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/workflows/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCreateWorkflow_Invalid(t *testing.T) {
	router := newTestRouter(t)

	wf := draftWorkflow("Broken")
	wf.Nodes = nil

	rec := doJSON(t, router, http.MethodPost, "/api/v1/workflows", wf)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleExecuteWorkflow(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/workflows", draftWorkflow("Runnable"))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[Workflow](t, rec)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/workflows/"+created.ID+"/execute", map[string]any{"text": "hi"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	exec := decodeBody[Execution](t, rec)
	assert.Equal(t, StatusSuccess, exec.Status)
	assert.Equal(t, created.ID, exec.WorkflowID)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/executions/"+exec.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, exec.ID, decodeBody[Execution](t, rec).ID)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/executions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listing := decodeBody[map[string][]Execution](t, rec)
	assert.Empty(t, listing["active"])
	assert.Len(t, listing["history"], 1)
}

func TestHandleExecuteWorkflow_Unknown(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/workflows/no-such-id/execute", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleActivateAndWebhook(t *testing.T) {
	router := newTestRouter(t)

	wf := draftWorkflow("Hooked")
	wf.Nodes[0].Parameters = map[string]any{"eventType": "webhook", "webhookPath": "events"}

	rec := doJSON(t, router, http.MethodPost, "/api/v1/workflows", wf)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[Workflow](t, rec)

	// Not active yet: the webhook matches nothing.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/webhooks/events", map[string]any{"orderId": "o-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]Execution](t, rec))

	rec = doJSON(t, router, http.MethodPost, "/api/v1/workflows/"+created.ID+"/activate", map[string]any{"active": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[Workflow](t, rec).Active)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/webhooks/events", map[string]any{"orderId": "o-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	executions := decodeBody[[]Execution](t, rec)
	require.Len(t, executions, 1)
	assert.Equal(t, StatusSuccess, executions[0].Status)
	assert.Equal(t, ModeWebhook, executions[0].Mode)
}

func TestHandleWorkflowStats(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/workflows", draftWorkflow("Measured"))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[Workflow](t, rec)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/workflows/"+created.ID+"/execute", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/workflows/"+created.ID+"/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[Stats](t, rec)
	assert.Equal(t, 1, stats.TotalExecutions)
	assert.Equal(t, 1, stats.SuccessfulExecutions)
}

func TestHandleCancelExecution_Unknown(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/executions/no-such-id/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
