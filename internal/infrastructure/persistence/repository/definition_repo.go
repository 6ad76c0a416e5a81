package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
)

// DefinitionRepository implements port.DefinitionRepository
type DefinitionRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewDefinitionRepository creates a new definition repository
func NewDefinitionRepository(db *sqlite.DB, logger *zap.Logger) *DefinitionRepository {
	return &DefinitionRepository{
		db:     db,
		logger: logger,
	}
}

const definitionColumns = `
	id, workflow_code, workflow_name, object_type, activation_conditions,
	priority, is_active, created_at, updated_at`

// ListDefinitions retrieves definitions, highest priority first
func (r *DefinitionRepository) ListDefinitions(ctx context.Context, objectType string, activeOnly bool) ([]*entity.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + `
		FROM workflow_definitions
		WHERE (? = '' OR object_type = ?)
		  AND (? = 0 OR is_active = 1)
		ORDER BY priority DESC, workflow_code ASC
	`

	active := 0
	if activeOnly {
		active = 1
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, objectType, objectType, active)
	if err != nil {
		r.logger.Error("Failed to list workflow definitions", zap.String("object_type", objectType), zap.Error(err))
		return nil, fmt.Errorf("failed to list workflow definitions: %w", err)
	}
	defer rows.Close()

	var defs []*entity.WorkflowDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	return defs, rows.Err()
}

// GetDefinition retrieves a definition by ID
func (r *DefinitionRepository) GetDefinition(ctx context.Context, id string) (*entity.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE id = ?`

	def, err := scanDefinition(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow definition", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return def, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDefinition(row rowScanner) (*entity.WorkflowDefinition, error) {
	var def entity.WorkflowDefinition
	var conditions sql.NullString

	err := row.Scan(
		&def.ID,
		&def.WorkflowCode,
		&def.WorkflowName,
		&def.ObjectType,
		&conditions,
		&def.Priority,
		&def.IsActive,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
	}

	if conditions.Valid && conditions.String != "" && conditions.String != "null" {
		var ac entity.ActivationConditions
		if err := json.Unmarshal([]byte(conditions.String), &ac); err != nil {
			return nil, fmt.Errorf("invalid activation_conditions of %s: %w", def.WorkflowCode, err)
		}
		def.ActivationConditions = &ac
	}

	return &def, nil
}

const stepColumns = `
	id, workflow_id, step_sequence, step_code, step_name,
	completion_rule, min_approvals, timeout_hours, is_active`

// ListSteps retrieves the active steps of a workflow with their agent rules
func (r *DefinitionRepository) ListSteps(ctx context.Context, workflowID string) ([]*entity.WorkflowStep, error) {
	query := `SELECT ` + stepColumns + `
		FROM workflow_steps
		WHERE workflow_id = ? AND is_active = 1
		ORDER BY step_sequence
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, workflowID)
	if err != nil {
		r.logger.Error("Failed to list workflow steps", zap.String("workflow_id", workflowID), zap.Error(err))
		return nil, fmt.Errorf("failed to list workflow steps: %w", err)
	}

	var steps []*entity.WorkflowStep
	byID := make(map[string]*entity.WorkflowStep)
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		steps = append(steps, step)
		byID[step.ID] = step
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(steps) == 0 {
		return steps, nil
	}

	rules, err := r.listRules(ctx, `ws.workflow_id = ?`, workflowID)
	if err != nil {
		return nil, err
	}
	for _, sr := range rules {
		if step, ok := byID[sr.stepID]; ok {
			step.AgentRules = append(step.AgentRules, sr.rule)
		}
	}

	return steps, nil
}

// GetStep retrieves the active step with the given sequence, or nil past the last step
func (r *DefinitionRepository) GetStep(ctx context.Context, workflowID string, sequence int) (*entity.WorkflowStep, error) {
	query := `SELECT ` + stepColumns + `
		FROM workflow_steps
		WHERE workflow_id = ? AND step_sequence = ? AND is_active = 1
	`

	step, err := scanStep(r.db.Executor(ctx).QueryRowContext(ctx, query, workflowID, sequence))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow step",
			zap.String("workflow_id", workflowID),
			zap.Int("step_sequence", sequence),
			zap.Error(err))
		return nil, err
	}

	rules, err := r.listRules(ctx, `sar.step_id = ?`, step.ID)
	if err != nil {
		return nil, err
	}
	for _, sr := range rules {
		step.AgentRules = append(step.AgentRules, sr.rule)
	}

	return step, nil
}

func scanStep(row rowScanner) (*entity.WorkflowStep, error) {
	var step entity.WorkflowStep
	var minApprovals, timeoutHours sql.NullInt64

	err := row.Scan(
		&step.ID,
		&step.WorkflowID,
		&step.StepSequence,
		&step.StepCode,
		&step.StepName,
		&step.CompletionRule,
		&minApprovals,
		&timeoutHours,
		&step.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow step: %w", err)
	}

	step.MinApprovals = intPtr(minApprovals)
	step.TimeoutHours = intPtr(timeoutHours)
	step.AgentRules = []entity.AgentRule{}
	return &step, nil
}

type stepRule struct {
	stepID string
	rule   entity.AgentRule
}

// listRules loads agent rules linked to steps, in rule order
func (r *DefinitionRepository) listRules(ctx context.Context, where string, arg interface{}) ([]stepRule, error) {
	query := `
		SELECT sar.step_id, ar.rule_code, ar.rule_name, ar.rule_type,
			ar.resolution_logic, ar.description
		FROM step_agent_rules sar
		JOIN agent_rules ar ON ar.id = sar.agent_rule_id
		JOIN workflow_steps ws ON ws.id = sar.step_id
		WHERE ` + where + `
		ORDER BY sar.rule_order, ar.rule_code
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, arg)
	if err != nil {
		r.logger.Error("Failed to list agent rules", zap.Error(err))
		return nil, fmt.Errorf("failed to list agent rules: %w", err)
	}
	defer rows.Close()

	var rules []stepRule
	for rows.Next() {
		var sr stepRule
		var logic string
		if err := rows.Scan(
			&sr.stepID,
			&sr.rule.RuleCode,
			&sr.rule.RuleName,
			&sr.rule.RuleType,
			&logic,
			&sr.rule.Description,
		); err != nil {
			return nil, fmt.Errorf("failed to scan agent rule: %w", err)
		}
		if logic != "" {
			if err := json.Unmarshal([]byte(logic), &sr.rule.ResolutionLogic); err != nil {
				return nil, fmt.Errorf("invalid resolution_logic of rule %s: %w", sr.rule.RuleCode, err)
			}
		}
		rules = append(rules, sr)
	}

	return rules, rows.Err()
}

// Verify interface compliance
var _ port.DefinitionRepository = (*DefinitionRepository)(nil)
