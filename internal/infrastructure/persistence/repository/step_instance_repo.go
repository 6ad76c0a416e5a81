package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
)

// StepInstanceRepository implements port.StepInstanceRepository
type StepInstanceRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewStepInstanceRepository creates a new step instance repository
func NewStepInstanceRepository(db *sqlite.DB, logger *zap.Logger) *StepInstanceRepository {
	return &StepInstanceRepository{
		db:     db,
		logger: logger,
	}
}

const stepInstanceColumns = `
	si.id, si.workflow_instance_id, si.workflow_step_id, si.step_sequence,
	si.assigned_agent_id, si.assigned_agent_name, si.assigned_agent_role,
	si.status, si.timeout_at, si.comments, si.decided_at, si.escalated_from, si.created_at`

// CreateStepInstance creates a new step instance
func (r *StepInstanceRepository) CreateStepInstance(ctx context.Context, si *entity.StepInstance) error {
	query := `
		INSERT INTO step_instances (
			id, workflow_instance_id, workflow_step_id, step_sequence,
			assigned_agent_id, assigned_agent_name, assigned_agent_role,
			status, timeout_at, comments, decided_at, escalated_from, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		si.ID,
		si.WorkflowInstanceID,
		si.WorkflowStepID,
		si.StepSequence,
		si.AssignedAgentID,
		si.AssignedAgentName,
		si.AssignedAgentRole,
		si.Status,
		formatTime(si.TimeoutAt),
		si.Comments,
		nullTime(si.DecidedAt),
		nullString(si.EscalatedFrom),
		formatTime(si.CreatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create step instance",
			zap.String("instance_id", si.WorkflowInstanceID),
			zap.String("agent_id", si.AssignedAgentID),
			zap.Error(err))
		return fmt.Errorf("failed to create step instance: %w", err)
	}

	return nil
}

// GetStepInstance retrieves a step instance by ID
func (r *StepInstanceRepository) GetStepInstance(ctx context.Context, id string) (*entity.StepInstance, error) {
	query := `SELECT ` + stepInstanceColumns + ` FROM step_instances si WHERE si.id = ?`

	si, err := scanStepInstance(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get step instance", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	return si, nil
}

// ListStepInstances retrieves the step instances of one step of an instance
func (r *StepInstanceRepository) ListStepInstances(ctx context.Context, instanceID string, sequence int) ([]*entity.StepInstance, error) {
	query := `SELECT ` + stepInstanceColumns + `
		FROM step_instances si
		WHERE si.workflow_instance_id = ? AND si.step_sequence = ?
		ORDER BY si.created_at, si.rowid
	`

	return r.list(ctx, query, instanceID, sequence)
}

// ListInstanceHistory retrieves every step instance of an instance
func (r *StepInstanceRepository) ListInstanceHistory(ctx context.Context, instanceID string) ([]*entity.StepInstance, error) {
	query := `SELECT ` + stepInstanceColumns + `
		FROM step_instances si
		WHERE si.workflow_instance_id = ?
		ORDER BY si.step_sequence, si.created_at, si.rowid
	`

	return r.list(ctx, query, instanceID)
}

// ListExpiredStepInstances retrieves actionable step instances whose timeout passed, oldest first
func (r *StepInstanceRepository) ListExpiredStepInstances(ctx context.Context, now time.Time, limit int) ([]*entity.StepInstance, error) {
	query := `SELECT ` + stepInstanceColumns + `
		FROM step_instances si
		JOIN workflow_instances wi ON wi.id = si.workflow_instance_id
		WHERE si.status = ?
		  AND si.timeout_at < ?
		  AND wi.status = ?
		  AND wi.current_step_sequence = si.step_sequence
		ORDER BY si.timeout_at, si.rowid
		LIMIT ?
	`

	if limit <= 0 {
		limit = -1
	}

	return r.list(ctx, query,
		entity.StepStatusPending, formatTime(now), entity.InstanceStatusActive, limit)
}

func (r *StepInstanceRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.StepInstance, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list step instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list step instances: %w", err)
	}
	defer rows.Close()

	var out []*entity.StepInstance
	for rows.Next() {
		si, err := scanStepInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, si)
	}

	return out, rows.Err()
}

// DecideStepInstance moves a PENDING step instance to status
func (r *StepInstanceRepository) DecideStepInstance(ctx context.Context, id string, status string, comments string, decidedAt time.Time) (bool, error) {
	query := `
		UPDATE step_instances
		SET status = ?, comments = ?, decided_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		status, comments, formatTime(decidedAt), id, entity.StepStatusPending)
	if err != nil {
		r.logger.Error("Failed to decide step instance", zap.String("id", id), zap.String("status", status), zap.Error(err))
		return false, fmt.Errorf("failed to decide step instance: %w", err)
	}

	return affectedOne(result)
}

// CancelPendingStepInstances cancels PENDING step instances of one step, or of all steps when sequence is 0
func (r *StepInstanceRepository) CancelPendingStepInstances(ctx context.Context, instanceID string, sequence int, decidedAt time.Time) (int64, error) {
	query := `
		UPDATE step_instances
		SET status = ?, decided_at = ?
		WHERE workflow_instance_id = ? AND status = ?
		  AND (? = 0 OR step_sequence = ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		entity.StepStatusCancelled, formatTime(decidedAt),
		instanceID, entity.StepStatusPending,
		sequence, sequence)
	if err != nil {
		r.logger.Error("Failed to cancel pending step instances",
			zap.String("instance_id", instanceID),
			zap.Int("step_sequence", sequence),
			zap.Error(err))
		return 0, fmt.Errorf("failed to cancel pending step instances: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// ListPendingApprovals retrieves the actionable step instances of an agent, oldest first
func (r *StepInstanceRepository) ListPendingApprovals(ctx context.Context, agentID string) ([]*entity.PendingApproval, error) {
	query := `SELECT ` + stepInstanceColumns + `,
			wi.object_type, wi.object_id, wi.context_data,
			wd.workflow_name, COALESCE(ws.step_name, '')
		FROM step_instances si
		JOIN workflow_instances wi ON wi.id = si.workflow_instance_id
		JOIN workflow_definitions wd ON wd.id = wi.workflow_id
		LEFT JOIN workflow_steps ws ON ws.id = si.workflow_step_id
		WHERE si.assigned_agent_id = ?
		  AND si.status = ?
		  AND wi.status = ?
		  AND wi.current_step_sequence = si.step_sequence
		ORDER BY si.created_at, si.rowid
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query,
		agentID, entity.StepStatusPending, entity.InstanceStatusActive)
	if err != nil {
		r.logger.Error("Failed to list pending approvals", zap.String("agent_id", agentID), zap.Error(err))
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	defer rows.Close()

	var out []*entity.PendingApproval
	for rows.Next() {
		var pa entity.PendingApproval
		var decidedAt sql.NullTime
		var escalatedFrom sql.NullString
		var contextData string

		err := rows.Scan(
			&pa.ID,
			&pa.WorkflowInstanceID,
			&pa.WorkflowStepID,
			&pa.StepSequence,
			&pa.AssignedAgentID,
			&pa.AssignedAgentName,
			&pa.AssignedAgentRole,
			&pa.Status,
			&pa.TimeoutAt,
			&pa.Comments,
			&decidedAt,
			&escalatedFrom,
			&pa.CreatedAt,
			&pa.ObjectType,
			&pa.ObjectID,
			&contextData,
			&pa.WorkflowName,
			&pa.StepName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending approval: %w", err)
		}

		pa.DecidedAt = timePtr(decidedAt)
		pa.EscalatedFrom = escalatedFrom.String
		pa.ContextData = make(map[string]interface{})
		if contextData != "" {
			if err := json.Unmarshal([]byte(contextData), &pa.ContextData); err != nil {
				return nil, fmt.Errorf("invalid context_data of instance %s: %w", pa.WorkflowInstanceID, err)
			}
		}

		out = append(out, &pa)
	}

	return out, rows.Err()
}

func scanStepInstance(row rowScanner) (*entity.StepInstance, error) {
	var si entity.StepInstance
	var decidedAt sql.NullTime
	var escalatedFrom sql.NullString

	err := row.Scan(
		&si.ID,
		&si.WorkflowInstanceID,
		&si.WorkflowStepID,
		&si.StepSequence,
		&si.AssignedAgentID,
		&si.AssignedAgentName,
		&si.AssignedAgentRole,
		&si.Status,
		&si.TimeoutAt,
		&si.Comments,
		&decidedAt,
		&escalatedFrom,
		&si.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan step instance: %w", err)
	}

	si.DecidedAt = timePtr(decidedAt)
	si.EscalatedFrom = escalatedFrom.String
	return &si, nil
}

// Verify interface compliance
var _ port.StepInstanceRepository = (*StepInstanceRepository)(nil)
