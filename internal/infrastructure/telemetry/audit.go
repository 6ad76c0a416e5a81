package telemetry

import (
	"context"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/domain/event"
)

// AuditLogger writes every engine event as one structured log line
type AuditLogger struct {
	logger *zap.Logger
}

// NewAuditLogger creates an audit logger writing under the "audit" name
func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	return &AuditLogger{logger: logger.Named("audit")}
}

// Register subscribes the audit logger to every engine event
func (a *AuditLogger) Register(d dispatcher.Dispatcher) {
	d.SubscribeAll("audit-log", a.Handle)
}

// Handle logs one event
func (a *AuditLogger) Handle(ctx context.Context, evt *event.Event) error {
	fields := []zap.Field{
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Type.String()),
		zap.String("instance_id", evt.InstanceID),
		zap.String("correlation_id", evt.CorrelationID),
		zap.Time("occurred_at", evt.Timestamp),
		zap.Any("payload", evt.Payload),
	}

	switch evt.Type {
	case event.TypeApprovalEscalated, event.TypeApprovalTimedOut, event.TypeInstanceRejected:
		a.logger.Warn("Workflow event", fields...)
	default:
		a.logger.Info("Workflow event", fields...)
	}
	return nil
}
