package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/service"
	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	domainwf "github.com/garyjia/approval-engine/internal/domain/workflow"
)

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

// mockWorkflowService implements service.WorkflowService
type mockWorkflowService struct {
	mock.Mock
}

func (m *mockWorkflowService) GetWorkflowDefinitions(ctx context.Context, objectType string) ([]*entity.WorkflowDefinition, error) {
	args := m.Called(objectType)
	defs, _ := args.Get(0).([]*entity.WorkflowDefinition)
	return defs, args.Error(1)
}

func (m *mockWorkflowService) GetWorkflowSteps(ctx context.Context, workflowID string) ([]*entity.WorkflowStep, error) {
	args := m.Called(workflowID)
	steps, _ := args.Get(0).([]*entity.WorkflowStep)
	return steps, args.Error(1)
}

func (m *mockWorkflowService) CreateWorkflowInstance(ctx context.Context, req workflow.CreateInstanceRequest) *service.CreateInstanceResult {
	return m.Called(req).Get(0).(*service.CreateInstanceResult)
}

func (m *mockWorkflowService) GetActiveWorkflows(ctx context.Context, filter port.InstanceFilter) ([]*entity.WorkflowInstance, error) {
	args := m.Called(filter)
	instances, _ := args.Get(0).([]*entity.WorkflowInstance)
	return instances, args.Error(1)
}

func (m *mockWorkflowService) GetInstance(ctx context.Context, instanceID string) (*service.InstanceDetail, error) {
	args := m.Called(instanceID)
	detail, _ := args.Get(0).(*service.InstanceDetail)
	return detail, args.Error(1)
}

func (m *mockWorkflowService) CancelInstance(ctx context.Context, instanceID, reason string) *service.Result {
	return m.Called(instanceID, reason).Get(0).(*service.Result)
}

func (m *mockWorkflowService) GetPendingApprovals(ctx context.Context, agentID string) ([]*entity.PendingApproval, error) {
	args := m.Called(agentID)
	pending, _ := args.Get(0).([]*entity.PendingApproval)
	return pending, args.Error(1)
}

func (m *mockWorkflowService) GetAgentWorkload(ctx context.Context, agentID string) (*entity.AgentWorkload, error) {
	args := m.Called(agentID)
	workload, _ := args.Get(0).(*entity.AgentWorkload)
	return workload, args.Error(1)
}

func (m *mockWorkflowService) ProcessApproval(ctx context.Context, stepInstanceID, action, comments string) *service.DecisionResult {
	return m.Called(stepInstanceID, action, comments).Get(0).(*service.DecisionResult)
}

func (m *mockWorkflowService) BulkProcessApproval(ctx context.Context, stepInstanceIDs []string, action, comments string) *service.BulkResult {
	return m.Called(stepInstanceIDs, action, comments).Get(0).(*service.BulkResult)
}

func (m *mockWorkflowService) GetWorkflowMetrics(ctx context.Context, filter port.MetricsFilter) ([]*entity.WorkflowMetric, error) {
	args := m.Called(filter)
	metrics, _ := args.Get(0).([]*entity.WorkflowMetric)
	return metrics, args.Error(1)
}

func newTestServer(svc service.WorkflowService, opts ...ServerOption) *Server {
	cfg := DefaultServerConfig()
	cfg.Mode = gin.TestMode
	return NewServer(cfg, svc, &mockLogger{}, opts...)
}

func do(t *testing.T, s *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	var resp Response
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestHealthCheck(t *testing.T) {
	w, resp := do(t, newTestServer(&mockWorkflowService{}), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	down := newTestServer(&mockWorkflowService{}, WithHealthCheck(func(ctx context.Context) error {
		return errors.New("database is closed")
	}))
	w, resp = do(t, down, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, resp.Success)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("approval_workflow_events_total 1\n"))
	})

	w, _ := do(t, newTestServer(&mockWorkflowService{}, WithMetricsHandler(metrics)), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "approval_workflow_events_total")

	w, _ = do(t, newTestServer(&mockWorkflowService{}), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateInstance(t *testing.T) {
	req := workflow.CreateInstanceRequest{
		ObjectType:  "PURCHASE_REQ",
		ObjectID:    "PR-1",
		RequesterID: "E015",
		ContextData: map[string]interface{}{"amount": 1200.0},
	}

	t.Run("created", func(t *testing.T) {
		svc := &mockWorkflowService{}
		svc.On("CreateWorkflowInstance", req).Return(&service.CreateInstanceResult{
			Result:   service.Result{Success: true, Message: "Workflow instance created successfully"},
			Instance: &entity.WorkflowInstance{ID: "i-1"},
		})

		w, resp := do(t, newTestServer(svc), http.MethodPost, "/api/v1/instances", req)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.True(t, resp.Success)
		assert.Equal(t, "Workflow instance created successfully", resp.Message)
		svc.AssertExpectations(t)
	})

	t.Run("no matching workflow", func(t *testing.T) {
		svc := &mockWorkflowService{}
		err := domainwf.ErrNoMatchingWorkflow
		svc.On("CreateWorkflowInstance", req).Return(&service.CreateInstanceResult{
			Result: service.Result{Success: false, Message: err.Error(), Err: err},
		})

		w, resp := do(t, newTestServer(svc), http.MethodPost, "/api/v1/instances", req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, err.Error(), resp.Error)
	})

	t.Run("missing fields", func(t *testing.T) {
		svc := &mockWorkflowService{}
		w, _ := do(t, newTestServer(svc), http.MethodPost, "/api/v1/instances", map[string]string{"object_type": "PURCHASE_REQ"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "CreateWorkflowInstance", mock.Anything)
	})
}

func TestListInstances_PassesFilter(t *testing.T) {
	svc := &mockWorkflowService{}
	svc.On("GetActiveWorkflows", port.InstanceFilter{ObjectType: "CAPEX", Status: "COMPLETED", Limit: maxListLimit, Offset: 10}).
		Return([]*entity.WorkflowInstance{{ID: "i-1"}}, nil)

	w, resp := do(t, newTestServer(svc), http.MethodGet, "/api/v1/instances?object_type=CAPEX&status=completed&limit=999&offset=10", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	svc.AssertExpectations(t)
}

func TestDecide_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid input", domainwf.ErrInvalidInput, http.StatusBadRequest},
		{"not found", domainwf.ErrStepInstanceNotFound, http.StatusNotFound},
		{"already decided", domainwf.ErrStepAlreadyDecided, http.StatusConflict},
		{"not current", domainwf.ErrStepNotCurrent, http.StatusConflict},
		{"store failure", errors.New("disk I/O error"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockWorkflowService{}
			svc.On("ProcessApproval", "si-1", "APPROVE", "ok").Return(&service.DecisionResult{
				Result: service.Result{Success: false, Message: tt.err.Error(), Err: tt.err},
			})

			w, resp := do(t, newTestServer(svc), http.MethodPost, "/api/v1/step-instances/si-1/decision",
				DecisionRequest{Action: "APPROVE", Comments: "ok"})

			assert.Equal(t, tt.status, w.Code)
			assert.False(t, resp.Success)
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "internal error", resp.Error)
			}
		})
	}

	t.Run("approved", func(t *testing.T) {
		svc := &mockWorkflowService{}
		svc.On("ProcessApproval", "si-1", "APPROVE", "").Return(&service.DecisionResult{
			Result:      service.Result{Success: true, Message: "Request approved successfully"},
			StepDecided: true,
		})

		w, resp := do(t, newTestServer(svc), http.MethodPost, "/api/v1/step-instances/si-1/decision", DecisionRequest{Action: "APPROVE"})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Request approved successfully", resp.Message)
	})
}

func TestBulkDecide(t *testing.T) {
	ids := []string{"a", "b"}
	svc := &mockWorkflowService{}
	svc.On("BulkProcessApproval", ids, "REJECT", "").Return(&service.BulkResult{
		Result:    service.Result{Success: false, Message: "1 processed, 1 failed"},
		Processed: 1,
		Failed:    1,
	})

	w, resp := do(t, newTestServer(svc), http.MethodPost, "/api/v1/step-instances/bulk-decision",
		BulkDecisionRequest{StepInstanceIDs: ids, Action: "REJECT"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "1 processed, 1 failed", resp.Message)
}

func TestCancelInstance_OptionalBody(t *testing.T) {
	svc := &mockWorkflowService{}
	svc.On("CancelInstance", "i-1", "").Return(&service.Result{Success: true, Message: "Workflow instance cancelled successfully"})
	svc.On("CancelInstance", "i-2", "duplicate").Return(&service.Result{Success: false, Message: "not active", Err: domainwf.ErrInstanceNotActive})

	w, _ := do(t, newTestServer(svc), http.MethodPost, "/api/v1/instances/i-1/cancel", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, newTestServer(svc), http.MethodPost, "/api/v1/instances/i-2/cancel", CancelRequest{Reason: "duplicate"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetWorkflowMetrics_ParsesRange(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

	svc := &mockWorkflowService{}
	svc.On("GetWorkflowMetrics", port.MetricsFilter{WorkflowID: "wf-1", From: &from, To: &to}).
		Return([]*entity.WorkflowMetric{}, nil)

	w, _ := do(t, newTestServer(svc), http.MethodGet, "/api/v1/metrics/workflows?workflow_id=wf-1&from=2026-03-01&to=2026-03-31T12:00:00Z", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)

	w, _ = do(t, newTestServer(svc), http.MethodGet, "/api/v1/metrics/workflows?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAgentRoutes(t *testing.T) {
	svc := &mockWorkflowService{}
	svc.On("GetPendingApprovals", "M010").Return([]*entity.PendingApproval{{ObjectID: "PR-1"}}, nil)
	svc.On("GetAgentWorkload", "M010").Return(&entity.AgentWorkload{AgentID: "M010", TotalPending: 1}, nil)
	svc.On("GetInstance", "missing").Return(nil, domainwf.ErrInstanceNotFound)

	s := newTestServer(svc)

	w, resp := do(t, s, http.MethodGet, "/api/v1/agents/M010/pending", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)

	w, _ = do(t, s, http.MethodGet, "/api/v1/agents/M010/workload", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, s, http.MethodGet, "/api/v1/instances/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
