package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
)

// OrgRepository implements port.OrgDirectory over the mirrored organisation tables
type OrgRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewOrgRepository creates a new organisation repository
func NewOrgRepository(db *sqlite.DB, logger *zap.Logger) *OrgRepository {
	return &OrgRepository{
		db:     db,
		logger: logger,
	}
}

// GetEmployeeByID retrieves an employee, active or not
func (r *OrgRepository) GetEmployeeByID(ctx context.Context, employeeID string) (*entity.Employee, error) {
	query := `
		SELECT employee_id, employee_name, manager_id, position_title,
			department_code, plant_code, is_active
		FROM org_hierarchy
		WHERE employee_id = ?
	`

	var emp entity.Employee
	var managerID sql.NullString

	err := r.db.Executor(ctx).QueryRowContext(ctx, query, employeeID).Scan(
		&emp.EmployeeID,
		&emp.EmployeeName,
		&managerID,
		&emp.PositionTitle,
		&emp.DepartmentCode,
		&emp.PlantCode,
		&emp.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get employee", zap.String("employee_id", employeeID), zap.Error(err))
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}

	emp.ManagerID = managerID.String
	return &emp, nil
}

// GetRoleAssignments retrieves the active holders of a role with their names
func (r *OrgRepository) GetRoleAssignments(ctx context.Context, roleCode string) ([]*entity.RoleAssignment, error) {
	query := `
		SELECT ra.employee_id, oh.employee_name, ra.role_code, ra.scope_value, ra.is_active
		FROM role_assignments ra
		JOIN org_hierarchy oh ON oh.employee_id = ra.employee_id
		WHERE ra.role_code = ? AND ra.is_active = 1 AND oh.is_active = 1
		ORDER BY ra.employee_id, ra.scope_value
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, roleCode)
	if err != nil {
		r.logger.Error("Failed to get role assignments", zap.String("role_code", roleCode), zap.Error(err))
		return nil, fmt.Errorf("failed to get role assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*entity.RoleAssignment
	for rows.Next() {
		var ra entity.RoleAssignment
		if err := rows.Scan(&ra.EmployeeID, &ra.EmployeeName, &ra.RoleCode, &ra.ScopeValue, &ra.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan role assignment: %w", err)
		}
		assignments = append(assignments, &ra)
	}

	return assignments, rows.Err()
}

// GetResponsibilityAssignments retrieves the active holders of a responsibility with their names
func (r *OrgRepository) GetResponsibilityAssignments(ctx context.Context, responsibilityCode string) ([]*entity.ResponsibilityAssignment, error) {
	query := `
		SELECT ra.employee_id, oh.employee_name, ra.responsibility_code, ra.is_active
		FROM responsibility_assignments ra
		JOIN org_hierarchy oh ON oh.employee_id = ra.employee_id
		WHERE ra.responsibility_code = ? AND ra.is_active = 1 AND oh.is_active = 1
		ORDER BY ra.employee_id
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, responsibilityCode)
	if err != nil {
		r.logger.Error("Failed to get responsibility assignments",
			zap.String("responsibility_code", responsibilityCode), zap.Error(err))
		return nil, fmt.Errorf("failed to get responsibility assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*entity.ResponsibilityAssignment
	for rows.Next() {
		var ra entity.ResponsibilityAssignment
		if err := rows.Scan(&ra.EmployeeID, &ra.EmployeeName, &ra.ResponsibilityCode, &ra.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan responsibility assignment: %w", err)
		}
		assignments = append(assignments, &ra)
	}

	return assignments, rows.Err()
}

// Verify interface compliance
var _ port.OrgDirectory = (*OrgRepository)(nil)
