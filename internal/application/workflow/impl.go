package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/matcher"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/resolver"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
	domainwf "github.com/garyjia/approval-engine/internal/domain/workflow"
)

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	repo       port.WorkflowRepository
	org        port.OrgDirectory
	resolver   *resolver.Resolver
	txManager  port.TransactionManager
	dispatcher dispatcher.Dispatcher
	logger     Logger
	cfg        Config
	now        func() time.Time
}

// NewEngine creates a new workflow engine
func NewEngine(
	repo port.WorkflowRepository,
	org port.OrgDirectory,
	agents *resolver.Resolver,
	txManager port.TransactionManager,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		repo:      repo,
		org:       org,
		resolver:  agents,
		txManager: txManager,
		cfg:       DefaultConfig(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// recorder collects the events of one logical operation. They are published
// only after its transaction committed.
type recorder struct {
	correlationID string
	events        []*event.Event
}

func newRecorder() *recorder {
	return &recorder{correlationID: uuid.NewString()}
}

func (r *recorder) record(t event.Type, instanceID string, payload map[string]interface{}) {
	r.events = append(r.events, event.NewEventWithCorrelation(t, instanceID, payload, r.correlationID))
}

func (e *engineImpl) publish(ctx context.Context, rec *recorder) {
	if e.dispatcher == nil || len(rec.events) == 0 {
		return
	}
	e.dispatcher.Publish(ctx, rec.events...)
}

func (e *engineImpl) SelectWorkflow(ctx context.Context, objectType string, contextData map[string]interface{}) (*entity.WorkflowDefinition, error) {
	candidates, err := e.repo.ListDefinitions(ctx, objectType, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow definitions: %w", err)
	}

	selected := matcher.SelectWorkflow(candidates, contextData)
	if selected == nil {
		return nil, fmt.Errorf("%w: object type %s", domainwf.ErrNoMatchingWorkflow, objectType)
	}
	return selected, nil
}

func (e *engineImpl) CreateInstance(ctx context.Context, req CreateInstanceRequest) (*entity.WorkflowInstance, error) {
	req.ObjectType = strings.TrimSpace(req.ObjectType)
	req.ObjectID = strings.TrimSpace(req.ObjectID)
	req.RequesterID = strings.TrimSpace(req.RequesterID)

	if req.ObjectType == "" || req.ObjectID == "" || req.RequesterID == "" {
		return nil, fmt.Errorf("%w: missing required fields: object_type, object_id, requester_id", domainwf.ErrInvalidInput)
	}
	if len(req.ObjectID) > ObjectIDMaxLength {
		return nil, fmt.Errorf("%w: object_id exceeds %d characters", domainwf.ErrInvalidInput, ObjectIDMaxLength)
	}
	if len(req.RequesterID) > RequesterIDMaxLength {
		return nil, fmt.Errorf("%w: requester_id exceeds %d characters", domainwf.ErrInvalidInput, RequesterIDMaxLength)
	}
	if req.ContextData == nil {
		req.ContextData = make(map[string]interface{})
	}

	def, err := e.SelectWorkflow(ctx, req.ObjectType, req.ContextData)
	if err != nil {
		return nil, err
	}

	now := e.now()
	instance := &entity.WorkflowInstance{
		ID:                  uuid.NewString(),
		WorkflowID:          def.ID,
		ObjectType:          req.ObjectType,
		ObjectID:            req.ObjectID,
		RequesterID:         req.RequesterID,
		ContextData:         req.ContextData,
		CurrentStepSequence: 1,
		Status:              entity.InstanceStatusActive,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	rec := newRecorder()
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.repo.CreateInstance(txCtx, instance); err != nil {
			return fmt.Errorf("failed to create instance: %w", err)
		}
		rec.record(event.TypeInstanceCreated, instance.ID, map[string]interface{}{
			"workflow_id":   def.ID,
			"workflow_code": def.WorkflowCode,
			"object_type":   instance.ObjectType,
			"object_id":     instance.ObjectID,
			"requester_id":  instance.RequesterID,
		})

		step, err := e.repo.GetStep(txCtx, def.ID, 1)
		if err != nil {
			return fmt.Errorf("failed to get first step: %w", err)
		}
		if step == nil {
			e.logError("Workflow has no first step", "workflow_code", def.WorkflowCode, "instance_id", instance.ID)
			return nil
		}

		_, err = e.initializeStep(txCtx, rec, instance, step)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, rec)
	e.logInfo("Workflow instance created",
		"instance_id", instance.ID,
		"workflow_code", def.WorkflowCode,
		"object_type", instance.ObjectType,
		"object_id", instance.ObjectID,
	)

	return instance, nil
}

func (e *engineImpl) InitializeStep(ctx context.Context, instanceID string, stepSequence int) ([]*entity.StepInstance, error) {
	if err := validateID("instance id", instanceID); err != nil {
		return nil, err
	}
	if stepSequence < 1 {
		return nil, fmt.Errorf("%w: step sequence must be positive", domainwf.ErrInvalidInput)
	}

	rec := newRecorder()
	var created []*entity.StepInstance
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		instance, err := e.loadInstance(txCtx, instanceID)
		if err != nil {
			return err
		}

		step, err := e.repo.GetStep(txCtx, instance.WorkflowID, stepSequence)
		if err != nil {
			return fmt.Errorf("failed to get step %d: %w", stepSequence, err)
		}
		if step == nil {
			return nil
		}

		created, err = e.initializeStep(txCtx, rec, instance, step)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, rec)
	return created, nil
}

// initializeStep resolves the step's agents and persists one PENDING step instance per agent
func (e *engineImpl) initializeStep(ctx context.Context, rec *recorder, instance *entity.WorkflowInstance, step *entity.WorkflowStep) ([]*entity.StepInstance, error) {
	agents := e.resolver.ResolveStepAgents(ctx, step, resolver.ResolutionContext{
		RequesterID: instance.RequesterID,
		Data:        instance.ContextData,
	})

	if len(agents) == 0 && !e.cfg.AllowEmptySteps {
		return nil, fmt.Errorf("%w: step %d (%s) of instance %s",
			domainwf.ErrNoAgentsResolved, step.StepSequence, step.StepCode, instance.ID)
	}

	now := e.now()
	timeoutAt := now.Add(e.stepTimeout(step))
	created := make([]*entity.StepInstance, 0, len(agents))

	for _, agent := range agents {
		si := &entity.StepInstance{
			ID:                 uuid.NewString(),
			WorkflowInstanceID: instance.ID,
			WorkflowStepID:     step.ID,
			StepSequence:       step.StepSequence,
			AssignedAgentID:    agent.AgentID,
			AssignedAgentName:  truncate(agent.AgentName, AgentFieldMaxLength),
			AssignedAgentRole:  truncate(agent.AgentRole, AgentFieldMaxLength),
			Status:             entity.StepStatusPending,
			TimeoutAt:          timeoutAt,
			CreatedAt:          now,
		}
		if err := e.repo.CreateStepInstance(ctx, si); err != nil {
			return nil, fmt.Errorf("failed to create step instance: %w", err)
		}
		created = append(created, si)
	}

	rec.record(event.TypeStepInitialized, instance.ID, map[string]interface{}{
		"step_sequence": step.StepSequence,
		"step_code":     step.StepCode,
		"agent_count":   len(created),
	})

	return created, nil
}

func (e *engineImpl) stepTimeout(step *entity.WorkflowStep) time.Duration {
	if step.TimeoutHours != nil && *step.TimeoutHours > 0 {
		return time.Duration(*step.TimeoutHours) * time.Hour
	}
	return e.cfg.DefaultStepTimeout
}

func (e *engineImpl) RecordApproval(ctx context.Context, stepInstanceID string, action string, comments string) (*ApprovalResult, error) {
	if err := validateID("step instance id", stepInstanceID); err != nil {
		return nil, err
	}
	action = strings.ToUpper(strings.TrimSpace(action))
	status, ok := entity.StatusForAction(action)
	if !ok {
		return nil, fmt.Errorf("%w: action must be %s or %s", domainwf.ErrInvalidInput, entity.ActionApprove, entity.ActionReject)
	}
	comments = truncate(strings.TrimSpace(comments), e.cfg.CommentMaxLength)

	rec := newRecorder()
	result := &ApprovalResult{}
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		si, instance, err := e.loadActionable(txCtx, stepInstanceID)
		if err != nil {
			return err
		}

		now := e.now()
		decided, err := e.repo.DecideStepInstance(txCtx, si.ID, status, comments, now)
		if err != nil {
			return fmt.Errorf("failed to record decision: %w", err)
		}
		if !decided {
			return fmt.Errorf("%w: %s", domainwf.ErrStepAlreadyDecided, si.ID)
		}
		si.Status = status
		si.Comments = comments
		si.DecidedAt = &now

		rec.record(event.TypeApprovalRecorded, instance.ID, map[string]interface{}{
			"step_instance_id": si.ID,
			"step_sequence":    si.StepSequence,
			"agent_id":         si.AssignedAgentID,
			"action":           action,
		})

		outcome, err := e.settleStep(txCtx, rec, instance, si.StepSequence)
		if err != nil {
			return err
		}

		result.StepInstance = si
		result.Instance = instance
		result.Outcome = outcome
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, rec)
	e.logInfo("Approval recorded",
		"step_instance_id", stepInstanceID,
		"action", action,
		"instance_id", result.Instance.ID,
		"instance_status", result.Instance.Status,
		"current_step", result.Instance.CurrentStepSequence,
	)

	return result, nil
}

// loadActionable loads a step instance that may still be decided, with its instance
func (e *engineImpl) loadActionable(ctx context.Context, stepInstanceID string) (*entity.StepInstance, *entity.WorkflowInstance, error) {
	si, err := e.repo.GetStepInstance(ctx, stepInstanceID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get step instance: %w", err)
	}
	if si == nil {
		return nil, nil, fmt.Errorf("%w: %s", domainwf.ErrStepInstanceNotFound, stepInstanceID)
	}
	if !si.IsPending() {
		return nil, nil, fmt.Errorf("%w: %s is %s", domainwf.ErrStepAlreadyDecided, si.ID, si.Status)
	}

	instance, err := e.loadInstance(ctx, si.WorkflowInstanceID)
	if err != nil {
		return nil, nil, err
	}
	if !instance.IsActive() {
		return nil, nil, fmt.Errorf("%w: %s is %s", domainwf.ErrInstanceNotActive, instance.ID, instance.Status)
	}
	if si.StepSequence != instance.CurrentStepSequence {
		return nil, nil, fmt.Errorf("%w: step %d, instance is on step %d",
			domainwf.ErrStepNotCurrent, si.StepSequence, instance.CurrentStepSequence)
	}

	return si, instance, nil
}

// settleStep evaluates a step after a decision and moves the instance on once
// the step is decided
func (e *engineImpl) settleStep(ctx context.Context, rec *recorder, instance *entity.WorkflowInstance, sequence int) (domainwf.StepOutcome, error) {
	step, err := e.repo.GetStep(ctx, instance.WorkflowID, sequence)
	if err != nil {
		return domainwf.StepOutcome{}, fmt.Errorf("failed to get step %d: %w", sequence, err)
	}
	if step == nil {
		return domainwf.StepOutcome{}, fmt.Errorf("step %d of workflow %s no longer exists", sequence, instance.WorkflowID)
	}

	stepInstances, err := e.repo.ListStepInstances(ctx, instance.ID, sequence)
	if err != nil {
		return domainwf.StepOutcome{}, fmt.Errorf("failed to list step instances: %w", err)
	}
	counts := domainwf.CountDecisions(stepInstances)
	outcome := domainwf.Evaluate(step.CompletionRule, step.MinApprovals, counts)

	if e.cfg.RejectionPolicy == RejectionAdvance {
		if !domainwf.IsComplete(step.CompletionRule, step.MinApprovals, counts) {
			return domainwf.StepOutcome{}, nil
		}
		if !outcome.Decided {
			outcome = domainwf.StepOutcome{Decided: true, Result: domainwf.StepApproved}
		}
	}
	if !outcome.Decided {
		return outcome, nil
	}

	now := e.now()
	cancelled, err := e.repo.CancelPendingStepInstances(ctx, instance.ID, sequence, now)
	if err != nil {
		return outcome, fmt.Errorf("failed to cancel remaining step instances: %w", err)
	}
	rec.record(event.TypeStepDecided, instance.ID, map[string]interface{}{
		"step_sequence": sequence,
		"step_code":     step.StepCode,
		"result":        string(outcome.Result),
		"approved":      counts.Approved,
		"rejected":      counts.Rejected,
		"cancelled":     cancelled,
	})

	if outcome.Result == domainwf.StepRejected && e.cfg.RejectionPolicy != RejectionAdvance {
		return outcome, e.finish(ctx, rec, instance, domainwf.TriggerReject, map[string]interface{}{
			"step_sequence": sequence,
		})
	}
	return outcome, e.advance(ctx, rec, instance)
}

func (e *engineImpl) Advance(ctx context.Context, instanceID string) (*entity.WorkflowInstance, error) {
	if err := validateID("instance id", instanceID); err != nil {
		return nil, err
	}

	rec := newRecorder()
	var instance *entity.WorkflowInstance
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		instance, err = e.loadInstance(txCtx, instanceID)
		if err != nil {
			return err
		}
		if !instance.IsActive() {
			return fmt.Errorf("%w: %s is %s", domainwf.ErrInstanceNotActive, instance.ID, instance.Status)
		}
		return e.advance(txCtx, rec, instance)
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, rec)
	return instance, nil
}

// advance initializes the next step, or completes the instance after the last one.
// The instance row is updated only if nobody changed it since it was read.
func (e *engineImpl) advance(ctx context.Context, rec *recorder, instance *entity.WorkflowInstance) error {
	next := instance.CurrentStepSequence + 1

	step, err := e.repo.GetStep(ctx, instance.WorkflowID, next)
	if err != nil {
		return fmt.Errorf("failed to get step %d: %w", next, err)
	}
	if step == nil {
		return e.finish(ctx, rec, instance, domainwf.TriggerComplete, nil)
	}

	machine := domainwf.BuildInstanceStateMachine(domainwf.State(instance.Status))
	if err := machine.Fire(ctx, domainwf.TriggerAdvance); err != nil {
		return err
	}

	ok, err := e.repo.AdvanceInstance(ctx, instance.ID, instance.Version, next)
	if err != nil {
		return fmt.Errorf("failed to advance instance: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", domainwf.ErrConcurrentUpdate, instance.ID)
	}

	previous := instance.CurrentStepSequence
	instance.CurrentStepSequence = next
	instance.Version++
	instance.UpdatedAt = e.now()

	rec.record(event.TypeInstanceAdvanced, instance.ID, map[string]interface{}{
		"from_step": previous,
		"to_step":   next,
	})

	_, err = e.initializeStep(ctx, rec, instance, step)
	return err
}

// finish moves an instance into a terminal state
func (e *engineImpl) finish(ctx context.Context, rec *recorder, instance *entity.WorkflowInstance, trigger domainwf.Trigger, payload map[string]interface{}) error {
	machine := domainwf.BuildInstanceStateMachine(domainwf.State(instance.Status))
	if err := machine.Fire(ctx, trigger); err != nil {
		return err
	}
	status := machine.State().String()

	ok, err := e.repo.FinishInstance(ctx, instance.ID, instance.Version, status)
	if err != nil {
		return fmt.Errorf("failed to finish instance: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", domainwf.ErrConcurrentUpdate, instance.ID)
	}

	now := e.now()
	instance.Status = status
	instance.Version++
	instance.UpdatedAt = now
	instance.CompletedAt = &now

	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["step_sequence"] = instance.CurrentStepSequence
	payload["workflow_id"] = instance.WorkflowID
	payload["object_type"] = instance.ObjectType
	payload["duration_seconds"] = now.Sub(instance.CreatedAt).Seconds()

	rec.record(terminalEventType(status), instance.ID, payload)
	return nil
}

func terminalEventType(status string) event.Type {
	switch status {
	case entity.InstanceStatusRejected:
		return event.TypeInstanceRejected
	case entity.InstanceStatusCancelled:
		return event.TypeInstanceCancelled
	default:
		return event.TypeInstanceCompleted
	}
}

func (e *engineImpl) IsStepComplete(ctx context.Context, instanceID string, stepSequence int) (bool, error) {
	step, counts, err := e.stepCounts(ctx, instanceID, stepSequence)
	if err != nil || step == nil {
		return false, err
	}
	return domainwf.IsComplete(step.CompletionRule, step.MinApprovals, counts), nil
}

func (e *engineImpl) EvaluateStep(ctx context.Context, instanceID string, stepSequence int) (domainwf.StepOutcome, error) {
	step, counts, err := e.stepCounts(ctx, instanceID, stepSequence)
	if err != nil || step == nil {
		return domainwf.StepOutcome{}, err
	}
	return domainwf.Evaluate(step.CompletionRule, step.MinApprovals, counts), nil
}

func (e *engineImpl) stepCounts(ctx context.Context, instanceID string, stepSequence int) (*entity.WorkflowStep, domainwf.CompletionCounts, error) {
	var counts domainwf.CompletionCounts
	if err := validateID("instance id", instanceID); err != nil {
		return nil, counts, err
	}

	instance, err := e.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, counts, err
	}
	step, err := e.repo.GetStep(ctx, instance.WorkflowID, stepSequence)
	if err != nil {
		return nil, counts, fmt.Errorf("failed to get step %d: %w", stepSequence, err)
	}
	if step == nil {
		return nil, counts, nil
	}

	stepInstances, err := e.repo.ListStepInstances(ctx, instanceID, stepSequence)
	if err != nil {
		return nil, counts, fmt.Errorf("failed to list step instances: %w", err)
	}
	return step, domainwf.CountDecisions(stepInstances), nil
}

func (e *engineImpl) CancelInstance(ctx context.Context, instanceID string, reason string) (*entity.WorkflowInstance, error) {
	if err := validateID("instance id", instanceID); err != nil {
		return nil, err
	}
	reason = truncate(strings.TrimSpace(reason), e.cfg.CommentMaxLength)

	rec := newRecorder()
	var instance *entity.WorkflowInstance
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		instance, err = e.loadInstance(txCtx, instanceID)
		if err != nil {
			return err
		}
		if !instance.IsActive() {
			return fmt.Errorf("%w: %s is %s", domainwf.ErrInstanceNotActive, instance.ID, instance.Status)
		}

		cancelled, err := e.repo.CancelPendingStepInstances(txCtx, instance.ID, 0, e.now())
		if err != nil {
			return fmt.Errorf("failed to cancel step instances: %w", err)
		}

		return e.finish(txCtx, rec, instance, domainwf.TriggerCancel, map[string]interface{}{
			"reason":    reason,
			"cancelled": cancelled,
		})
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, rec)
	e.logInfo("Workflow instance cancelled", "instance_id", instanceID, "reason", reason)
	return instance, nil
}

func (e *engineImpl) loadInstance(ctx context.Context, instanceID string) (*entity.WorkflowInstance, error) {
	instance, err := e.repo.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: %s", domainwf.ErrInstanceNotFound, instanceID)
	}
	return instance, nil
}

func (e *engineImpl) logInfo(msg string, keysAndValues ...interface{}) {
	if e.logger != nil {
		e.logger.Info(msg, keysAndValues...)
	}
}

func (e *engineImpl) logError(msg string, keysAndValues ...interface{}) {
	if e.logger != nil {
		e.logger.Error(msg, keysAndValues...)
	}
}

func validateID(name, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %s is required", domainwf.ErrInvalidInput, name)
	}
	return nil
}

// truncate shortens s to at most max runes
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// Verify interface compliance
var _ Engine = (*engineImpl)(nil)
