package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
)

// ConfigRepository implements port.ConfigurationStore
type ConfigRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewConfigRepository creates a new configuration repository
func NewConfigRepository(db *sqlite.DB, logger *zap.Logger) *ConfigRepository {
	return &ConfigRepository{
		db:     db,
		logger: logger,
	}
}

// UpsertDefinition inserts or updates a definition keyed by workflow_code
func (r *ConfigRepository) UpsertDefinition(ctx context.Context, def *entity.WorkflowDefinition) error {
	query := `
		INSERT INTO workflow_definitions (
			id, workflow_code, workflow_name, object_type, activation_conditions,
			priority, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workflow_code) DO UPDATE SET
			workflow_name = excluded.workflow_name,
			object_type = excluded.object_type,
			activation_conditions = excluded.activation_conditions,
			priority = excluded.priority,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`

	if def.ID == "" {
		def.ID = uuid.NewString()
	}

	var conditions interface{}
	if def.ActivationConditions != nil {
		encoded, err := encodeJSON(def.ActivationConditions)
		if err != nil {
			return err
		}
		conditions = encoded
	}

	now := formatTime(time.Now())
	exec := r.db.Executor(ctx)
	_, err := exec.ExecContext(ctx, query,
		def.ID,
		def.WorkflowCode,
		def.WorkflowName,
		def.ObjectType,
		conditions,
		def.Priority,
		def.IsActive,
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to upsert workflow definition", zap.String("workflow_code", def.WorkflowCode), zap.Error(err))
		return fmt.Errorf("failed to upsert workflow definition %s: %w", def.WorkflowCode, err)
	}

	// an existing row keeps its id
	if err := exec.QueryRowContext(ctx,
		`SELECT id FROM workflow_definitions WHERE workflow_code = ?`, def.WorkflowCode,
	).Scan(&def.ID); err != nil {
		return fmt.Errorf("failed to read workflow definition id: %w", err)
	}

	return nil
}

// ReplaceSteps makes steps the active steps of a workflow. Steps keep their id
// per sequence; sequences no longer listed are deactivated.
func (r *ConfigRepository) ReplaceSteps(ctx context.Context, workflowID string, steps []*entity.WorkflowStep) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		exec := r.db.Executor(ctx)
		sequences := make([]interface{}, 0, len(steps))

		for _, step := range steps {
			if step.StepSequence < 1 {
				return fmt.Errorf("invalid step sequence %d for step %s", step.StepSequence, step.StepCode)
			}
			step.WorkflowID = workflowID

			var existingID string
			err := exec.QueryRowContext(ctx,
				`SELECT id FROM workflow_steps WHERE workflow_id = ? AND step_sequence = ?`,
				workflowID, step.StepSequence,
			).Scan(&existingID)
			switch {
			case err == nil:
				step.ID = existingID
			case err != sql.ErrNoRows:
				return fmt.Errorf("failed to look up step %d: %w", step.StepSequence, err)
			case step.ID == "":
				step.ID = uuid.NewString()
			}

			_, err = exec.ExecContext(ctx, `
				INSERT INTO workflow_steps (
					id, workflow_id, step_sequence, step_code, step_name,
					completion_rule, min_approvals, timeout_hours, is_active
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					step_code = excluded.step_code,
					step_name = excluded.step_name,
					completion_rule = excluded.completion_rule,
					min_approvals = excluded.min_approvals,
					timeout_hours = excluded.timeout_hours,
					is_active = excluded.is_active
			`,
				step.ID,
				workflowID,
				step.StepSequence,
				step.StepCode,
				step.StepName,
				string(step.CompletionRule),
				nullInt(step.MinApprovals),
				nullInt(step.TimeoutHours),
				step.IsActive,
			)
			if err != nil {
				r.logger.Error("Failed to upsert workflow step",
					zap.String("workflow_id", workflowID),
					zap.String("step_code", step.StepCode),
					zap.Error(err))
				return fmt.Errorf("failed to upsert workflow step %s: %w", step.StepCode, err)
			}

			if _, err := exec.ExecContext(ctx, `DELETE FROM step_agent_rules WHERE step_id = ?`, step.ID); err != nil {
				return fmt.Errorf("failed to clear agent rules of step %s: %w", step.StepCode, err)
			}
			for i := range step.AgentRules {
				ruleID, err := r.upsertAgentRule(ctx, &step.AgentRules[i])
				if err != nil {
					return err
				}
				if _, err := exec.ExecContext(ctx,
					`INSERT INTO step_agent_rules (step_id, agent_rule_id, rule_order) VALUES (?, ?, ?)`,
					step.ID, ruleID, i,
				); err != nil {
					return fmt.Errorf("failed to link agent rule %s: %w", step.AgentRules[i].RuleCode, err)
				}
			}

			sequences = append(sequences, step.StepSequence)
		}

		query := `UPDATE workflow_steps SET is_active = 0 WHERE workflow_id = ?`
		args := []interface{}{workflowID}
		if len(sequences) > 0 {
			query += ` AND step_sequence NOT IN (` + strings.TrimSuffix(strings.Repeat("?, ", len(sequences)), ", ") + `)`
			args = append(args, sequences...)
		}
		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to deactivate removed steps: %w", err)
		}

		return nil
	})
}

func (r *ConfigRepository) upsertAgentRule(ctx context.Context, rule *entity.AgentRule) (string, error) {
	if rule.RuleCode == "" {
		return "", fmt.Errorf("agent rule without rule_code")
	}

	logic, err := encodeJSON(rule.ResolutionLogic)
	if err != nil {
		return "", err
	}

	exec := r.db.Executor(ctx)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO agent_rules (id, rule_code, rule_name, rule_type, resolution_logic, description)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(rule_code) DO UPDATE SET
			rule_name = excluded.rule_name,
			rule_type = excluded.rule_type,
			resolution_logic = excluded.resolution_logic,
			description = excluded.description
	`, uuid.NewString(), rule.RuleCode, rule.RuleName, string(rule.RuleType), logic, rule.Description)
	if err != nil {
		r.logger.Error("Failed to upsert agent rule", zap.String("rule_code", rule.RuleCode), zap.Error(err))
		return "", fmt.Errorf("failed to upsert agent rule %s: %w", rule.RuleCode, err)
	}

	var id string
	if err := exec.QueryRowContext(ctx, `SELECT id FROM agent_rules WHERE rule_code = ?`, rule.RuleCode).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to read agent rule id: %w", err)
	}
	return id, nil
}

// UpsertEmployee inserts or updates an employee
func (r *ConfigRepository) UpsertEmployee(ctx context.Context, emp *entity.Employee) error {
	query := `
		INSERT INTO org_hierarchy (
			employee_id, employee_name, manager_id, position_title,
			department_code, plant_code, is_active
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id) DO UPDATE SET
			employee_name = excluded.employee_name,
			manager_id = excluded.manager_id,
			position_title = excluded.position_title,
			department_code = excluded.department_code,
			plant_code = excluded.plant_code,
			is_active = excluded.is_active
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		emp.EmployeeID,
		emp.EmployeeName,
		nullString(emp.ManagerID),
		emp.PositionTitle,
		emp.DepartmentCode,
		emp.PlantCode,
		emp.IsActive,
	)
	if err != nil {
		r.logger.Error("Failed to upsert employee", zap.String("employee_id", emp.EmployeeID), zap.Error(err))
		return fmt.Errorf("failed to upsert employee %s: %w", emp.EmployeeID, err)
	}
	return nil
}

// UpsertRoleAssignment inserts or updates a role assignment
func (r *ConfigRepository) UpsertRoleAssignment(ctx context.Context, ra *entity.RoleAssignment) error {
	query := `
		INSERT INTO role_assignments (employee_id, role_code, scope_value, is_active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(employee_id, role_code, scope_value) DO UPDATE SET
			is_active = excluded.is_active
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query, ra.EmployeeID, ra.RoleCode, ra.ScopeValue, ra.IsActive)
	if err != nil {
		r.logger.Error("Failed to upsert role assignment",
			zap.String("employee_id", ra.EmployeeID),
			zap.String("role_code", ra.RoleCode),
			zap.Error(err))
		return fmt.Errorf("failed to upsert role assignment: %w", err)
	}
	return nil
}

// UpsertResponsibilityAssignment inserts or updates a responsibility assignment
func (r *ConfigRepository) UpsertResponsibilityAssignment(ctx context.Context, ra *entity.ResponsibilityAssignment) error {
	query := `
		INSERT INTO responsibility_assignments (employee_id, responsibility_code, is_active)
		VALUES (?, ?, ?)
		ON CONFLICT(employee_id, responsibility_code) DO UPDATE SET
			is_active = excluded.is_active
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query, ra.EmployeeID, ra.ResponsibilityCode, ra.IsActive)
	if err != nil {
		r.logger.Error("Failed to upsert responsibility assignment",
			zap.String("employee_id", ra.EmployeeID),
			zap.String("responsibility_code", ra.ResponsibilityCode),
			zap.Error(err))
		return fmt.Errorf("failed to upsert responsibility assignment: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.ConfigurationStore = (*ConfigRepository)(nil)
