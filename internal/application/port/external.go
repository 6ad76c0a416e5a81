package port

import (
	"context"

	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// OrgDirectory supplies the organisational data agent resolution runs on.
// It is owned by an external system; the engine only reads it.
type OrgDirectory interface {
	// GetEmployeeByID returns nil when the employee is unknown
	GetEmployeeByID(ctx context.Context, employeeID string) (*entity.Employee, error)

	// GetRoleAssignments returns active assignments of a role ordered by employee id
	GetRoleAssignments(ctx context.Context, roleCode string) ([]*entity.RoleAssignment, error)

	// GetResponsibilityAssignments returns active assignments ordered by employee id
	GetResponsibilityAssignments(ctx context.Context, responsibilityCode string) ([]*entity.ResponsibilityAssignment, error)
}
