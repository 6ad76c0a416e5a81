package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	domainwf "github.com/garyjia/approval-engine/internal/domain/workflow"
)

const (
	// DefaultActiveLimit is the page size of GetActiveWorkflows
	DefaultActiveLimit = 50
	// MaxBulkSize caps the step instances of one bulk decision
	MaxBulkSize = 100
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Result reports the outcome of a state-changing operation. Failures carry
// the error message; Err keeps the error for callers that classify it.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Err     error  `json:"-"`
}

// CreateInstanceResult is returned by CreateWorkflowInstance
type CreateInstanceResult struct {
	Result
	Instance *entity.WorkflowInstance `json:"instance,omitempty"`
}

// DecisionResult is returned by ProcessApproval
type DecisionResult struct {
	Result
	InstanceID     string `json:"instance_id,omitempty"`
	InstanceStatus string `json:"instance_status,omitempty"`
	CurrentStep    int    `json:"current_step,omitempty"`
	StepDecided    bool   `json:"step_decided"`
}

// BulkItemResult is the outcome for one step instance of a bulk decision
type BulkItemResult struct {
	StepInstanceID string `json:"step_instance_id"`
	Success        bool   `json:"success"`
	Message        string `json:"message,omitempty"`
}

// BulkResult is returned by BulkProcessApproval
type BulkResult struct {
	Result
	Processed int              `json:"processed"`
	Failed    int              `json:"failed"`
	Items     []BulkItemResult `json:"items"`
}

// InstanceDetail is an instance with its step instance history
type InstanceDetail struct {
	Instance *entity.WorkflowInstance `json:"instance"`
	History  []*entity.StepInstance   `json:"history"`
}

// WorkflowService exposes the workflow engine to the outer layers
type WorkflowService interface {
	GetWorkflowDefinitions(ctx context.Context, objectType string) ([]*entity.WorkflowDefinition, error)
	GetWorkflowSteps(ctx context.Context, workflowID string) ([]*entity.WorkflowStep, error)
	CreateWorkflowInstance(ctx context.Context, req workflow.CreateInstanceRequest) *CreateInstanceResult
	GetActiveWorkflows(ctx context.Context, filter port.InstanceFilter) ([]*entity.WorkflowInstance, error)
	GetInstance(ctx context.Context, instanceID string) (*InstanceDetail, error)
	CancelInstance(ctx context.Context, instanceID, reason string) *Result
	GetPendingApprovals(ctx context.Context, agentID string) ([]*entity.PendingApproval, error)
	GetAgentWorkload(ctx context.Context, agentID string) (*entity.AgentWorkload, error)
	ProcessApproval(ctx context.Context, stepInstanceID, action, comments string) *DecisionResult
	BulkProcessApproval(ctx context.Context, stepInstanceIDs []string, action, comments string) *BulkResult
	GetWorkflowMetrics(ctx context.Context, filter port.MetricsFilter) ([]*entity.WorkflowMetric, error)
}

type workflowServiceImpl struct {
	engine workflow.Engine
	repo   port.WorkflowRepository
	logger Logger
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(engine workflow.Engine, repo port.WorkflowRepository, logger Logger) WorkflowService {
	return &workflowServiceImpl{
		engine: engine,
		repo:   repo,
		logger: logger,
	}
}

func (s *workflowServiceImpl) GetWorkflowDefinitions(ctx context.Context, objectType string) ([]*entity.WorkflowDefinition, error) {
	defs, err := s.repo.ListDefinitions(ctx, strings.TrimSpace(objectType), true)
	if err != nil {
		s.logger.Error("Failed to get workflow definitions", "error", err, "object_type", objectType)
		return nil, err
	}
	if defs == nil {
		defs = []*entity.WorkflowDefinition{}
	}
	return defs, nil
}

func (s *workflowServiceImpl) GetWorkflowSteps(ctx context.Context, workflowID string) ([]*entity.WorkflowStep, error) {
	if strings.TrimSpace(workflowID) == "" {
		return nil, fmt.Errorf("%w: workflow id is required", domainwf.ErrInvalidInput)
	}

	steps, err := s.repo.ListSteps(ctx, workflowID)
	if err != nil {
		s.logger.Error("Failed to get workflow steps", "error", err, "workflow_id", workflowID)
		return nil, err
	}
	if steps == nil {
		steps = []*entity.WorkflowStep{}
	}
	return steps, nil
}

func (s *workflowServiceImpl) CreateWorkflowInstance(ctx context.Context, req workflow.CreateInstanceRequest) *CreateInstanceResult {
	instance, err := s.engine.CreateInstance(ctx, req)
	if err != nil {
		s.logger.Error("Failed to create workflow instance",
			"error", err,
			"object_type", req.ObjectType,
			"object_id", req.ObjectID,
		)
		return &CreateInstanceResult{Result: failure(err)}
	}

	return &CreateInstanceResult{
		Result:   Result{Success: true, Message: "Workflow instance created successfully"},
		Instance: instance,
	}
}

// GetActiveWorkflows lists ACTIVE instances unless filter names another status
func (s *workflowServiceImpl) GetActiveWorkflows(ctx context.Context, filter port.InstanceFilter) ([]*entity.WorkflowInstance, error) {
	if filter.Status == "" {
		filter.Status = entity.InstanceStatusActive
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultActiveLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	instances, err := s.repo.ListInstances(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to get active workflows", "error", err, "status", filter.Status)
		return nil, err
	}
	if instances == nil {
		instances = []*entity.WorkflowInstance{}
	}
	return instances, nil
}

func (s *workflowServiceImpl) GetInstance(ctx context.Context, instanceID string) (*InstanceDetail, error) {
	if err := validateUUID("instance id", instanceID); err != nil {
		return nil, err
	}

	instance, err := s.repo.GetInstance(ctx, instanceID)
	if err != nil {
		s.logger.Error("Failed to get instance", "error", err, "instance_id", instanceID)
		return nil, err
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: %s", domainwf.ErrInstanceNotFound, instanceID)
	}

	history, err := s.repo.ListInstanceHistory(ctx, instanceID)
	if err != nil {
		s.logger.Error("Failed to get instance history", "error", err, "instance_id", instanceID)
		return nil, err
	}
	if history == nil {
		history = []*entity.StepInstance{}
	}

	return &InstanceDetail{Instance: instance, History: history}, nil
}

func (s *workflowServiceImpl) CancelInstance(ctx context.Context, instanceID, reason string) *Result {
	if err := validateUUID("instance id", instanceID); err != nil {
		r := failure(err)
		return &r
	}

	if _, err := s.engine.CancelInstance(ctx, instanceID, reason); err != nil {
		s.logger.Error("Failed to cancel instance", "error", err, "instance_id", instanceID)
		r := failure(err)
		return &r
	}

	return &Result{Success: true, Message: "Workflow instance cancelled successfully"}
}

func (s *workflowServiceImpl) GetPendingApprovals(ctx context.Context, agentID string) ([]*entity.PendingApproval, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent id is required", domainwf.ErrInvalidInput)
	}

	pending, err := s.repo.ListPendingApprovals(ctx, agentID)
	if err != nil {
		s.logger.Error("Failed to get pending approvals", "error", err, "agent_id", agentID)
		return nil, err
	}
	if pending == nil {
		pending = []*entity.PendingApproval{}
	}
	return pending, nil
}

func (s *workflowServiceImpl) GetAgentWorkload(ctx context.Context, agentID string) (*entity.AgentWorkload, error) {
	pending, err := s.GetPendingApprovals(ctx, agentID)
	if err != nil {
		return nil, err
	}

	workload := &entity.AgentWorkload{
		AgentID:      strings.TrimSpace(agentID),
		TotalPending: len(pending),
		ByObjectType: make(map[string]int),
	}
	for _, p := range pending {
		workload.ByObjectType[p.ObjectType]++
	}
	return workload, nil
}

func (s *workflowServiceImpl) ProcessApproval(ctx context.Context, stepInstanceID, action, comments string) *DecisionResult {
	if err := validateUUID("step instance id", stepInstanceID); err != nil {
		return &DecisionResult{Result: failure(err)}
	}

	res, err := s.engine.RecordApproval(ctx, stepInstanceID, action, comments)
	if err != nil {
		s.logger.Error("Failed to process approval",
			"error", err,
			"step_instance_id", stepInstanceID,
			"action", action,
		)
		return &DecisionResult{Result: failure(err)}
	}

	message := "Request approved successfully"
	if res.StepInstance.Status == entity.StepStatusRejected {
		message = "Request rejected successfully"
	}

	return &DecisionResult{
		Result:         Result{Success: true, Message: message},
		InstanceID:     res.Instance.ID,
		InstanceStatus: res.Instance.Status,
		CurrentStep:    res.Instance.CurrentStepSequence,
		StepDecided:    res.Outcome.Decided,
	}
}

// BulkProcessApproval applies one decision to several step instances. Each
// decision commits on its own; a failure does not undo the others.
func (s *workflowServiceImpl) BulkProcessApproval(ctx context.Context, stepInstanceIDs []string, action, comments string) *BulkResult {
	if len(stepInstanceIDs) == 0 {
		return &BulkResult{Result: failure(fmt.Errorf("%w: no step instances given", domainwf.ErrInvalidInput))}
	}
	if len(stepInstanceIDs) > MaxBulkSize {
		return &BulkResult{Result: failure(fmt.Errorf("%w: at most %d step instances per request", domainwf.ErrInvalidInput, MaxBulkSize))}
	}

	result := &BulkResult{Items: make([]BulkItemResult, 0, len(stepInstanceIDs))}
	for _, id := range stepInstanceIDs {
		r := s.ProcessApproval(ctx, id, action, comments)
		result.Items = append(result.Items, BulkItemResult{
			StepInstanceID: id,
			Success:        r.Success,
			Message:        r.Message,
		})
		if r.Success {
			result.Processed++
		} else {
			result.Failed++
		}
	}

	result.Success = result.Failed == 0
	result.Message = fmt.Sprintf("%d processed, %d failed", result.Processed, result.Failed)
	s.logger.Info("Bulk approval processed",
		"action", action,
		"processed", result.Processed,
		"failed", result.Failed,
	)
	return result
}

func (s *workflowServiceImpl) GetWorkflowMetrics(ctx context.Context, filter port.MetricsFilter) ([]*entity.WorkflowMetric, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, fmt.Errorf("%w: metrics range ends before it starts", domainwf.ErrInvalidInput)
	}

	metrics, err := s.repo.GetWorkflowMetrics(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to get workflow metrics", "error", err)
		return nil, err
	}
	if metrics == nil {
		metrics = []*entity.WorkflowMetric{}
	}
	return metrics, nil
}

func failure(err error) Result {
	return Result{Success: false, Message: err.Error(), Err: err}
}

func validateUUID(name, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %s is required", domainwf.ErrInvalidInput, name)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s is not a valid id", domainwf.ErrInvalidInput, name)
	}
	return nil
}
