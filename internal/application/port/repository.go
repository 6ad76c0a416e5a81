package port

import (
	"context"
	"time"

	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// InstanceFilter narrows instance listings. Zero values mean "any".
type InstanceFilter struct {
	ObjectType  string
	ObjectID    string
	RequesterID string
	WorkflowID  string
	Status      string
	Limit       int
	Offset      int
}

// MetricsFilter narrows the workflow performance report
type MetricsFilter struct {
	WorkflowID string
	From       *time.Time
	To         *time.Time
}

// DefinitionRepository reads workflow configuration. Lookups that find
// nothing return nil without an error.
type DefinitionRepository interface {
	// ListDefinitions returns definitions ordered by priority DESC, workflow_code ASC.
	// An empty objectType lists every object type.
	ListDefinitions(ctx context.Context, objectType string, activeOnly bool) ([]*entity.WorkflowDefinition, error)
	GetDefinition(ctx context.Context, id string) (*entity.WorkflowDefinition, error)

	// ListSteps returns the active steps of a workflow by sequence, with their agent rules
	ListSteps(ctx context.Context, workflowID string) ([]*entity.WorkflowStep, error)
	GetStep(ctx context.Context, workflowID string, sequence int) (*entity.WorkflowStep, error)
}

// InstanceRepository persists workflow instances
type InstanceRepository interface {
	CreateInstance(ctx context.Context, instance *entity.WorkflowInstance) error
	GetInstance(ctx context.Context, id string) (*entity.WorkflowInstance, error)
	ListInstances(ctx context.Context, filter InstanceFilter) ([]*entity.WorkflowInstance, error)

	// AdvanceInstance moves an ACTIVE instance at the given version to nextSequence.
	// It reports false when the instance changed since it was read.
	AdvanceInstance(ctx context.Context, id string, version int, nextSequence int) (bool, error)

	// FinishInstance moves an ACTIVE instance at the given version to a terminal status
	FinishInstance(ctx context.Context, id string, version int, status string) (bool, error)
}

// StepInstanceRepository persists step instances. Rows form an append-only
// log per instance and are never deleted.
type StepInstanceRepository interface {
	CreateStepInstance(ctx context.Context, si *entity.StepInstance) error
	GetStepInstance(ctx context.Context, id string) (*entity.StepInstance, error)

	// ListStepInstances returns the step instances of one step of an instance
	ListStepInstances(ctx context.Context, instanceID string, sequence int) ([]*entity.StepInstance, error)

	// ListInstanceHistory returns every step instance of an instance by sequence and creation
	ListInstanceHistory(ctx context.Context, instanceID string) ([]*entity.StepInstance, error)

	// DecideStepInstance moves a PENDING step instance to status. It reports
	// false when the step instance was no longer pending.
	DecideStepInstance(ctx context.Context, id string, status string, comments string, decidedAt time.Time) (bool, error)

	// CancelPendingStepInstances cancels the PENDING step instances of one step,
	// or of every step when sequence is 0
	CancelPendingStepInstances(ctx context.Context, instanceID string, sequence int, decidedAt time.Time) (int64, error)

	// ListPendingApprovals returns the actionable step instances of an agent:
	// PENDING, on the current step of an ACTIVE instance
	ListPendingApprovals(ctx context.Context, agentID string) ([]*entity.PendingApproval, error)

	// ListExpiredStepInstances returns actionable step instances whose timeout passed
	ListExpiredStepInstances(ctx context.Context, now time.Time, limit int) ([]*entity.StepInstance, error)
}

// MetricsRepository reports on instance throughput
type MetricsRepository interface {
	GetWorkflowMetrics(ctx context.Context, filter MetricsFilter) ([]*entity.WorkflowMetric, error)
}

// WorkflowRepository is the single data-access interface of the workflow engine
type WorkflowRepository interface {
	DefinitionRepository
	InstanceRepository
	StepInstanceRepository
	MetricsRepository
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
