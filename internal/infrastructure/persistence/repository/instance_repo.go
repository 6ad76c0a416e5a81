package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
)

// defaultListLimit caps instance listings without an explicit limit
const defaultListLimit = 50

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sqlite.DB, logger *zap.Logger) *InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

const instanceColumns = `
	id, workflow_id, object_type, object_id, requester_id, context_data,
	current_step_sequence, status, version, created_at, updated_at, completed_at`

// CreateInstance creates a new workflow instance
func (r *InstanceRepository) CreateInstance(ctx context.Context, instance *entity.WorkflowInstance) error {
	query := `
		INSERT INTO workflow_instances (
			id, workflow_id, object_type, object_id, requester_id, context_data,
			current_step_sequence, status, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	contextData := instance.ContextData
	if contextData == nil {
		contextData = map[string]interface{}{}
	}
	data, err := encodeJSON(contextData)
	if err != nil {
		return err
	}

	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		instance.ID,
		instance.WorkflowID,
		instance.ObjectType,
		instance.ObjectID,
		instance.RequesterID,
		data,
		instance.CurrentStepSequence,
		instance.Status,
		instance.Version,
		formatTime(instance.CreatedAt),
		formatTime(instance.UpdatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create instance", zap.String("object_id", instance.ObjectID), zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	return nil
}

// GetInstance retrieves a workflow instance by ID
func (r *InstanceRepository) GetInstance(ctx context.Context, id string) (*entity.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = ?`

	instance, err := scanInstance(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance by ID", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	return instance, nil
}

// ListInstances retrieves instances matching filter, newest first
func (r *InstanceRepository) ListInstances(ctx context.Context, filter port.InstanceFilter) ([]*entity.WorkflowInstance, error) {
	var conds []string
	var args []interface{}

	add := func(column, value string) {
		if value != "" {
			conds = append(conds, column+" = ?")
			args = append(args, value)
		}
	}
	add("status", filter.Status)
	add("object_type", filter.ObjectType)
	add("object_id", filter.ObjectID)
	add("requester_id", filter.RequesterID)
	add("workflow_id", filter.WorkflowID)

	query := `SELECT ` + instanceColumns + ` FROM workflow_instances`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit, filter.Offset)

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var instances []*entity.WorkflowInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}

	return instances, rows.Err()
}

// AdvanceInstance moves the instance to nextSequence if it is still ACTIVE at version
func (r *InstanceRepository) AdvanceInstance(ctx context.Context, id string, version int, nextSequence int) (bool, error) {
	query := `
		UPDATE workflow_instances
		SET current_step_sequence = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND status = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		nextSequence, formatTime(time.Now()), id, version, entity.InstanceStatusActive)
	if err != nil {
		r.logger.Error("Failed to advance instance", zap.String("id", id), zap.Int("next_step", nextSequence), zap.Error(err))
		return false, fmt.Errorf("failed to advance instance: %w", err)
	}

	return affectedOne(result)
}

// FinishInstance moves the instance to a terminal status if it is still ACTIVE at version
func (r *InstanceRepository) FinishInstance(ctx context.Context, id string, version int, status string) (bool, error) {
	query := `
		UPDATE workflow_instances
		SET status = ?, version = version + 1, updated_at = ?, completed_at = ?
		WHERE id = ? AND version = ? AND status = ?
	`

	now := formatTime(time.Now())
	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		status, now, now, id, version, entity.InstanceStatusActive)
	if err != nil {
		r.logger.Error("Failed to finish instance", zap.String("id", id), zap.String("status", status), zap.Error(err))
		return false, fmt.Errorf("failed to finish instance: %w", err)
	}

	return affectedOne(result)
}

func affectedOne(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func scanInstance(row rowScanner) (*entity.WorkflowInstance, error) {
	var instance entity.WorkflowInstance
	var contextData string
	var completedAt sql.NullTime

	err := row.Scan(
		&instance.ID,
		&instance.WorkflowID,
		&instance.ObjectType,
		&instance.ObjectID,
		&instance.RequesterID,
		&contextData,
		&instance.CurrentStepSequence,
		&instance.Status,
		&instance.Version,
		&instance.CreatedAt,
		&instance.UpdatedAt,
		&completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}

	instance.ContextData = make(map[string]interface{})
	if contextData != "" {
		if err := json.Unmarshal([]byte(contextData), &instance.ContextData); err != nil {
			return nil, fmt.Errorf("invalid context_data of instance %s: %w", instance.ID, err)
		}
	}
	instance.CompletedAt = timePtr(completedAt)

	return &instance, nil
}

// Verify interface compliance
var _ port.InstanceRepository = (*InstanceRepository)(nil)
