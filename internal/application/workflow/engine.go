package workflow

import (
	"context"
	"time"

	"github.com/garyjia/approval-engine/internal/domain/entity"
	domainwf "github.com/garyjia/approval-engine/internal/domain/workflow"
)

// Engine drives workflow instances through their steps
type Engine interface {
	// SelectWorkflow picks the best active definition for an object type
	SelectWorkflow(ctx context.Context, objectType string, contextData map[string]interface{}) (*entity.WorkflowDefinition, error)

	// CreateInstance matches a workflow, persists the instance on step 1 and initializes that step
	CreateInstance(ctx context.Context, req CreateInstanceRequest) (*entity.WorkflowInstance, error)

	// InitializeStep creates one PENDING step instance per resolved agent.
	// A sequence with no step definition is a no-op.
	InitializeStep(ctx context.Context, instanceID string, stepSequence int) ([]*entity.StepInstance, error)

	// RecordApproval decides a step instance and settles its step
	RecordApproval(ctx context.Context, stepInstanceID string, action string, comments string) (*ApprovalResult, error)

	// Advance moves an instance to its next step, or completes it after the last one
	Advance(ctx context.Context, instanceID string) (*entity.WorkflowInstance, error)

	// IsStepComplete reports whether a step reached its completion rule
	IsStepComplete(ctx context.Context, instanceID string, stepSequence int) (bool, error)

	// EvaluateStep reports whether a step is decided and with which result
	EvaluateStep(ctx context.Context, instanceID string, stepSequence int) (domainwf.StepOutcome, error)

	// CancelInstance withdraws an active instance and cancels its pending step instances
	CancelInstance(ctx context.Context, instanceID string, reason string) (*entity.WorkflowInstance, error)

	// HandleTimeout applies the configured timeout action to an expired step instance
	HandleTimeout(ctx context.Context, stepInstanceID string) (*TimeoutResult, error)

	// SweepTimeouts handles up to limit expired step instances and returns how many were handled
	SweepTimeouts(ctx context.Context, limit int) (int, error)
}

// CreateInstanceRequest carries the business object entering approval
type CreateInstanceRequest struct {
	ObjectType  string                 `json:"object_type"`
	ObjectID    string                 `json:"object_id"`
	RequesterID string                 `json:"requester_id"`
	ContextData map[string]interface{} `json:"context_data"`
}

// ApprovalResult describes the effect of one approval action
type ApprovalResult struct {
	StepInstance *entity.StepInstance     `json:"step_instance"`
	Instance     *entity.WorkflowInstance `json:"instance"`
	Outcome      domainwf.StepOutcome     `json:"outcome"`
}

// TimeoutResult describes the effect of handling one expired step instance
type TimeoutResult struct {
	StepInstanceID string                   `json:"step_instance_id"`
	Action         TimeoutAction            `json:"action"`
	EscalatedTo    *entity.StepInstance     `json:"escalated_to,omitempty"`
	Instance       *entity.WorkflowInstance `json:"instance,omitempty"`
	HandledAt      time.Time                `json:"handled_at"`
}
