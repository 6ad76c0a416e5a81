package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
)

// MetricsRepository implements port.MetricsRepository
type MetricsRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewMetricsRepository creates a new metrics repository
func NewMetricsRepository(db *sqlite.DB, logger *zap.Logger) *MetricsRepository {
	return &MetricsRepository{
		db:     db,
		logger: logger,
	}
}

// GetWorkflowMetrics lists instances with their workflow, newest first
func (r *MetricsRepository) GetWorkflowMetrics(ctx context.Context, filter port.MetricsFilter) ([]*entity.WorkflowMetric, error) {
	var conds []string
	var args []interface{}

	if filter.WorkflowID != "" {
		conds = append(conds, "wi.workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.From != nil {
		conds = append(conds, "wi.created_at >= ?")
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		conds = append(conds, "wi.created_at <= ?")
		args = append(args, formatTime(*filter.To))
	}

	query := `
		SELECT wi.id, wi.workflow_id, wd.workflow_code, wd.workflow_name,
			wi.object_type, wi.status, wi.created_at, wi.completed_at
		FROM workflow_instances wi
		JOIN workflow_definitions wd ON wd.id = wi.workflow_id
	`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY wi.created_at DESC, wi.id`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to get workflow metrics", zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*entity.WorkflowMetric
	for rows.Next() {
		var m entity.WorkflowMetric
		var completedAt sql.NullTime

		if err := rows.Scan(
			&m.InstanceID,
			&m.WorkflowID,
			&m.WorkflowCode,
			&m.WorkflowName,
			&m.ObjectType,
			&m.Status,
			&m.CreatedAt,
			&completedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan workflow metric: %w", err)
		}

		m.CompletedAt = timePtr(completedAt)
		metrics = append(metrics, &m)
	}

	return metrics, rows.Err()
}

// Verify interface compliance
var _ port.MetricsRepository = (*MetricsRepository)(nil)
