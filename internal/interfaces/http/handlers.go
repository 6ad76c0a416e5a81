package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/service"
	"github.com/garyjia/approval-engine/internal/application/workflow"
	domainwf "github.com/garyjia/approval-engine/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	workflowService service.WorkflowService
	healthCheck     func(ctx context.Context) error
	logger          Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(workflowService service.WorkflowService, logger Logger, healthCheck func(ctx context.Context) error) *Handlers {
	return &Handlers{
		workflowService: workflowService,
		healthCheck:     healthCheck,
		logger:          logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// Version is reported by the health check
var Version = "dev"

// CreateInstanceRequest is the body of POST /api/v1/instances
type CreateInstanceRequest struct {
	ObjectType  string                 `json:"object_type" binding:"required"`
	ObjectID    string                 `json:"object_id" binding:"required"`
	RequesterID string                 `json:"requester_id" binding:"required"`
	ContextData map[string]interface{} `json:"context_data"`
}

// ListInstancesRequest represents query parameters for listing instances
type ListInstancesRequest struct {
	ObjectType  string `form:"object_type"`
	ObjectID    string `form:"object_id"`
	RequesterID string `form:"requester_id"`
	WorkflowID  string `form:"workflow_id"`
	Status      string `form:"status"`
	Limit       int    `form:"limit"`
	Offset      int    `form:"offset"`
}

// CancelRequest is the body of POST /api/v1/instances/:id/cancel
type CancelRequest struct {
	Reason string `json:"reason"`
}

// DecisionRequest is the body of POST /api/v1/step-instances/:id/decision
type DecisionRequest struct {
	Action   string `json:"action" binding:"required"`
	Comments string `json:"comments"`
}

// BulkDecisionRequest is the body of POST /api/v1/step-instances/bulk-decision
type BulkDecisionRequest struct {
	StepInstanceIDs []string `json:"step_instance_ids" binding:"required"`
	Action          string   `json:"action" binding:"required"`
	Comments        string   `json:"comments"`
}

// MetricsRequest represents query parameters of the metrics report
type MetricsRequest struct {
	WorkflowID string `form:"workflow_id"`
	From       string `form:"from"`
	To         string `form:"to"`
}

const maxListLimit = 200

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
	}

	if h.healthCheck != nil {
		if err := h.healthCheck(c.Request.Context()); err != nil {
			h.logger.Error("Health check failed", "error", err)
			response.Status = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, Response{Success: false, Data: response, Error: "database unavailable"})
			return
		}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: response})
}

// ListWorkflows handles GET /api/v1/workflows
func (h *Handlers) ListWorkflows(c *gin.Context) {
	defs, err := h.workflowService.GetWorkflowDefinitions(c.Request.Context(), c.Query("object_type"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: defs})
}

// GetWorkflowSteps handles GET /api/v1/workflows/:id/steps
func (h *Handlers) GetWorkflowSteps(c *gin.Context) {
	steps, err := h.workflowService.GetWorkflowSteps(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: steps})
}

// CreateInstance handles POST /api/v1/instances
func (h *Handlers) CreateInstance(c *gin.Context) {
	var req CreateInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	result := h.workflowService.CreateWorkflowInstance(c.Request.Context(), workflow.CreateInstanceRequest{
		ObjectType:  req.ObjectType,
		ObjectID:    req.ObjectID,
		RequesterID: req.RequesterID,
		ContextData: req.ContextData,
	})
	if !result.Success {
		h.failResult(c, result.Result)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Message: result.Message, Data: result.Instance})
}

// ListInstances handles GET /api/v1/instances
func (h *Handlers) ListInstances(c *gin.Context) {
	var req ListInstancesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if req.Limit > maxListLimit {
		req.Limit = maxListLimit
	}

	instances, err := h.workflowService.GetActiveWorkflows(c.Request.Context(), port.InstanceFilter{
		ObjectType:  req.ObjectType,
		ObjectID:    req.ObjectID,
		RequesterID: req.RequesterID,
		WorkflowID:  req.WorkflowID,
		Status:      strings.ToUpper(req.Status),
		Limit:       req.Limit,
		Offset:      req.Offset,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: instances})
}

// GetInstance handles GET /api/v1/instances/:id
func (h *Handlers) GetInstance(c *gin.Context) {
	detail, err := h.workflowService.GetInstance(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: detail})
}

// CancelInstance handles POST /api/v1/instances/:id/cancel
func (h *Handlers) CancelInstance(c *gin.Context) {
	var req CancelRequest
	// the body is optional
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}

	result := h.workflowService.CancelInstance(c.Request.Context(), c.Param("id"), req.Reason)
	if !result.Success {
		h.failResult(c, *result)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: result.Message})
}

// GetPendingApprovals handles GET /api/v1/agents/:id/pending
func (h *Handlers) GetPendingApprovals(c *gin.Context) {
	pending, err := h.workflowService.GetPendingApprovals(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: pending})
}

// GetAgentWorkload handles GET /api/v1/agents/:id/workload
func (h *Handlers) GetAgentWorkload(c *gin.Context) {
	workload, err := h.workflowService.GetAgentWorkload(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: workload})
}

// Decide handles POST /api/v1/step-instances/:id/decision
func (h *Handlers) Decide(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	result := h.workflowService.ProcessApproval(c.Request.Context(), c.Param("id"), req.Action, req.Comments)
	if !result.Success {
		h.failResult(c, result.Result)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: result.Message, Data: result})
}

// BulkDecide handles POST /api/v1/step-instances/bulk-decision. Partial
// failures still answer 200 with per-item results.
func (h *Handlers) BulkDecide(c *gin.Context) {
	var req BulkDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	result := h.workflowService.BulkProcessApproval(c.Request.Context(), req.StepInstanceIDs, req.Action, req.Comments)
	if result.Err != nil {
		h.failResult(c, result.Result)
		return
	}
	c.JSON(http.StatusOK, Response{Success: result.Success, Message: result.Message, Data: result})
}

// GetWorkflowMetrics handles GET /api/v1/metrics/workflows
func (h *Handlers) GetWorkflowMetrics(c *gin.Context) {
	var req MetricsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	filter := port.MetricsFilter{WorkflowID: req.WorkflowID}
	var err error
	if filter.From, err = parseTime("from", req.From); err != nil {
		h.fail(c, err)
		return
	}
	if filter.To, err = parseTime("to", req.To); err != nil {
		h.fail(c, err)
		return
	}

	metrics, err := h.workflowService.GetWorkflowMetrics(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: metrics})
}

// parseTime accepts RFC3339 timestamps and plain dates, read as UTC
func parseTime(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := cast.ToTimeInDefaultLocationE(value, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a valid time", domainwf.ErrInvalidInput, name)
	}
	t = t.UTC()
	return &t, nil
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	h.logger.Error("Invalid request", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request: " + err.Error()})
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, Response{Success: false, Error: publicMessage(err)})
}

func (h *Handlers) failResult(c *gin.Context, result service.Result) {
	if result.Err == nil {
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: result.Message})
		return
	}
	h.fail(c, result.Err)
}
