package port

import (
	"context"

	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// ConfigurationStore writes the configuration the engine treats as read-only:
// workflow definitions, steps, agent rules and organisation data.
type ConfigurationStore interface {
	// UpsertDefinition inserts or updates a definition keyed by workflow_code and sets its ID
	UpsertDefinition(ctx context.Context, def *entity.WorkflowDefinition) error

	// ReplaceSteps replaces the steps of a workflow, including their agent rule links
	ReplaceSteps(ctx context.Context, workflowID string, steps []*entity.WorkflowStep) error

	UpsertEmployee(ctx context.Context, emp *entity.Employee) error
	UpsertRoleAssignment(ctx context.Context, ra *entity.RoleAssignment) error
	UpsertResponsibilityAssignment(ctx context.Context, ra *entity.ResponsibilityAssignment) error
}
