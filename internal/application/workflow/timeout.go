package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
	domainwf "github.com/garyjia/approval-engine/internal/domain/workflow"
)

// HandleTimeout acts on a step instance whose decision window has passed.
// Callers select expired step instances; the timeout itself is not rechecked.
func (e *engineImpl) HandleTimeout(ctx context.Context, stepInstanceID string) (*TimeoutResult, error) {
	if err := validateID("step instance id", stepInstanceID); err != nil {
		return nil, err
	}

	result := &TimeoutResult{
		StepInstanceID: stepInstanceID,
		Action:         e.cfg.TimeoutAction,
		HandledAt:      e.now(),
	}

	if e.cfg.TimeoutAction == TimeoutNone {
		e.logInfo("Step instance timed out, no action configured", "step_instance_id", stepInstanceID)
		return result, nil
	}

	rec := newRecorder()
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		si, instance, err := e.loadActionable(txCtx, stepInstanceID)
		if err != nil {
			return err
		}
		result.Instance = instance

		if e.cfg.TimeoutAction == TimeoutEscalate {
			escalated, err := e.escalate(txCtx, rec, instance, si)
			if err != nil {
				return err
			}
			if escalated != nil {
				result.EscalatedTo = escalated
				return nil
			}
			// nobody to escalate to
			result.Action = TimeoutReject
		}

		return e.autoReject(txCtx, rec, instance, si)
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, rec)
	e.logInfo("Step instance timeout handled",
		"step_instance_id", stepInstanceID,
		"action", result.Action,
		"instance_id", result.Instance.ID,
		"instance_status", result.Instance.Status,
	)
	return result, nil
}

// escalate hands a step instance over to the assignee's direct manager. It
// returns nil without changes when the assignee has no manager on record.
func (e *engineImpl) escalate(ctx context.Context, rec *recorder, instance *entity.WorkflowInstance, si *entity.StepInstance) (*entity.StepInstance, error) {
	assignee, err := e.org.GetEmployeeByID(ctx, si.AssignedAgentID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up assignee %s: %w", si.AssignedAgentID, err)
	}
	if assignee == nil || assignee.ManagerID == "" {
		return nil, nil
	}
	manager, err := e.org.GetEmployeeByID(ctx, assignee.ManagerID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up manager %s: %w", assignee.ManagerID, err)
	}
	if manager == nil || !manager.IsActive {
		return nil, nil
	}

	now := e.now()
	ok, err := e.repo.DecideStepInstance(ctx, si.ID, entity.StepStatusEscalated, escalationComment, now)
	if err != nil {
		return nil, fmt.Errorf("failed to escalate step instance: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domainwf.ErrStepAlreadyDecided, si.ID)
	}

	step, err := e.repo.GetStep(ctx, instance.WorkflowID, si.StepSequence)
	if err != nil {
		return nil, fmt.Errorf("failed to get step %d: %w", si.StepSequence, err)
	}
	timeout := e.cfg.DefaultStepTimeout
	if step != nil {
		timeout = e.stepTimeout(step)
	}

	replacement := &entity.StepInstance{
		ID:                 uuid.NewString(),
		WorkflowInstanceID: instance.ID,
		WorkflowStepID:     si.WorkflowStepID,
		StepSequence:       si.StepSequence,
		AssignedAgentID:    manager.EmployeeID,
		AssignedAgentName:  truncate(manager.EmployeeName, AgentFieldMaxLength),
		AssignedAgentRole:  truncate(manager.PositionTitle, AgentFieldMaxLength),
		Status:             entity.StepStatusPending,
		TimeoutAt:          now.Add(timeout),
		EscalatedFrom:      si.ID,
		CreatedAt:          now,
	}
	if err := e.repo.CreateStepInstance(ctx, replacement); err != nil {
		return nil, fmt.Errorf("failed to create escalated step instance: %w", err)
	}

	rec.record(event.TypeApprovalEscalated, instance.ID, map[string]interface{}{
		"step_instance_id": si.ID,
		"step_sequence":    si.StepSequence,
		"from_agent_id":    si.AssignedAgentID,
		"to_agent_id":      manager.EmployeeID,
		"escalated_to":     replacement.ID,
	})

	return replacement, nil
}

// autoReject records a rejection on behalf of an agent who did not decide in time
func (e *engineImpl) autoReject(ctx context.Context, rec *recorder, instance *entity.WorkflowInstance, si *entity.StepInstance) error {
	ok, err := e.repo.DecideStepInstance(ctx, si.ID, entity.StepStatusRejected, timeoutComment, e.now())
	if err != nil {
		return fmt.Errorf("failed to auto-reject step instance: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", domainwf.ErrStepAlreadyDecided, si.ID)
	}

	rec.record(event.TypeApprovalTimedOut, instance.ID, map[string]interface{}{
		"step_instance_id": si.ID,
		"step_sequence":    si.StepSequence,
		"agent_id":         si.AssignedAgentID,
	})

	_, err = e.settleStep(ctx, rec, instance, si.StepSequence)
	return err
}

func (e *engineImpl) SweepTimeouts(ctx context.Context, limit int) (int, error) {
	expired, err := e.repo.ListExpiredStepInstances(ctx, e.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired step instances: %w", err)
	}

	handled := 0
	for _, si := range expired {
		if err := ctx.Err(); err != nil {
			return handled, err
		}

		if _, err := e.HandleTimeout(ctx, si.ID); err != nil {
			// decided or advanced by someone else since it was listed
			if errors.Is(err, domainwf.ErrStepAlreadyDecided) ||
				errors.Is(err, domainwf.ErrStepNotCurrent) ||
				errors.Is(err, domainwf.ErrInstanceNotActive) {
				continue
			}
			e.logError("Failed to handle step instance timeout",
				"step_instance_id", si.ID,
				"instance_id", si.WorkflowInstanceID,
				"error", err,
			)
			continue
		}
		handled++
	}

	return handled, nil
}
