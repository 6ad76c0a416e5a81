package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// fakeStore is an in-memory port.WorkflowRepository, port.OrgDirectory and
// port.TransactionManager. Transactions are serialized and roll back on error.
type fakeStore struct {
	mu sync.Mutex

	definitions   []*entity.WorkflowDefinition
	steps         map[string][]*entity.WorkflowStep
	instances     map[string]*entity.WorkflowInstance
	stepInstances []*entity.StepInstance

	employees        map[string]*entity.Employee
	roles            map[string][]*entity.RoleAssignment
	responsibilities map[string][]*entity.ResponsibilityAssignment

	// staleAdvance makes the next AdvanceInstance lose its compare-and-swap
	staleAdvance bool
	commits      int
}

type txMarker struct{}

func newFakeStore() *fakeStore {
	return &fakeStore{
		steps:            make(map[string][]*entity.WorkflowStep),
		instances:        make(map[string]*entity.WorkflowInstance),
		employees:        make(map[string]*entity.Employee),
		roles:            make(map[string][]*entity.RoleAssignment),
		responsibilities: make(map[string][]*entity.ResponsibilityAssignment),
	}
}

func (s *fakeStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	instances := make(map[string]entity.WorkflowInstance, len(s.instances))
	for id, inst := range s.instances {
		instances[id] = *inst
	}
	stepInstances := make([]entity.StepInstance, len(s.stepInstances))
	for i, si := range s.stepInstances {
		stepInstances[i] = *si
	}

	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		s.instances = make(map[string]*entity.WorkflowInstance, len(instances))
		for id := range instances {
			inst := instances[id]
			s.instances[id] = &inst
		}
		s.stepInstances = make([]*entity.StepInstance, len(stepInstances))
		for i := range stepInstances {
			si := stepInstances[i]
			s.stepInstances[i] = &si
		}
		return err
	}

	s.commits++
	return nil
}

// definitions

func (s *fakeStore) ListDefinitions(ctx context.Context, objectType string, activeOnly bool) ([]*entity.WorkflowDefinition, error) {
	var out []*entity.WorkflowDefinition
	for _, d := range s.definitions {
		if (objectType == "" || d.ObjectType == objectType) && (!activeOnly || d.IsActive) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].WorkflowCode < out[j].WorkflowCode
	})
	return out, nil
}

func (s *fakeStore) GetDefinition(ctx context.Context, id string) (*entity.WorkflowDefinition, error) {
	for _, d := range s.definitions {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ListSteps(ctx context.Context, workflowID string) ([]*entity.WorkflowStep, error) {
	return s.steps[workflowID], nil
}

func (s *fakeStore) GetStep(ctx context.Context, workflowID string, sequence int) (*entity.WorkflowStep, error) {
	for _, st := range s.steps[workflowID] {
		if st.StepSequence == sequence {
			return st, nil
		}
	}
	return nil, nil
}

// instances

func (s *fakeStore) CreateInstance(ctx context.Context, instance *entity.WorkflowInstance) error {
	cp := *instance
	s.instances[instance.ID] = &cp
	return nil
}

func (s *fakeStore) GetInstance(ctx context.Context, id string) (*entity.WorkflowInstance, error) {
	inst, ok := s.instances[id]
	if !ok {
		return nil, nil
	}
	cp := *inst
	return &cp, nil
}

func (s *fakeStore) ListInstances(ctx context.Context, filter port.InstanceFilter) ([]*entity.WorkflowInstance, error) {
	var out []*entity.WorkflowInstance
	for _, inst := range s.instances {
		if filter.Status != "" && inst.Status != filter.Status {
			continue
		}
		if filter.ObjectType != "" && inst.ObjectType != filter.ObjectType {
			continue
		}
		cp := *inst
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeStore) AdvanceInstance(ctx context.Context, id string, version int, nextSequence int) (bool, error) {
	inst, ok := s.instances[id]
	if !ok || inst.Version != version || inst.Status != entity.InstanceStatusActive {
		return false, nil
	}
	if s.staleAdvance {
		s.staleAdvance = false
		return false, nil
	}
	inst.CurrentStepSequence = nextSequence
	inst.Version++
	return true, nil
}

func (s *fakeStore) FinishInstance(ctx context.Context, id string, version int, status string) (bool, error) {
	inst, ok := s.instances[id]
	if !ok || inst.Version != version || inst.Status != entity.InstanceStatusActive {
		return false, nil
	}
	now := time.Now()
	inst.Status = status
	inst.Version++
	inst.CompletedAt = &now
	return true, nil
}

// step instances

func (s *fakeStore) CreateStepInstance(ctx context.Context, si *entity.StepInstance) error {
	cp := *si
	s.stepInstances = append(s.stepInstances, &cp)
	return nil
}

func (s *fakeStore) GetStepInstance(ctx context.Context, id string) (*entity.StepInstance, error) {
	for _, si := range s.stepInstances {
		if si.ID == id {
			cp := *si
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ListStepInstances(ctx context.Context, instanceID string, sequence int) ([]*entity.StepInstance, error) {
	var out []*entity.StepInstance
	for _, si := range s.stepInstances {
		if si.WorkflowInstanceID == instanceID && si.StepSequence == sequence {
			cp := *si
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) ListInstanceHistory(ctx context.Context, instanceID string) ([]*entity.StepInstance, error) {
	var out []*entity.StepInstance
	for _, si := range s.stepInstances {
		if si.WorkflowInstanceID == instanceID {
			cp := *si
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) DecideStepInstance(ctx context.Context, id string, status string, comments string, decidedAt time.Time) (bool, error) {
	for _, si := range s.stepInstances {
		if si.ID == id {
			if si.Status != entity.StepStatusPending {
				return false, nil
			}
			si.Status = status
			si.Comments = comments
			si.DecidedAt = &decidedAt
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) CancelPendingStepInstances(ctx context.Context, instanceID string, sequence int, decidedAt time.Time) (int64, error) {
	var n int64
	for _, si := range s.stepInstances {
		if si.WorkflowInstanceID != instanceID || si.Status != entity.StepStatusPending {
			continue
		}
		if sequence != 0 && si.StepSequence != sequence {
			continue
		}
		si.Status = entity.StepStatusCancelled
		si.DecidedAt = &decidedAt
		n++
	}
	return n, nil
}

func (s *fakeStore) ListPendingApprovals(ctx context.Context, agentID string) ([]*entity.PendingApproval, error) {
	var out []*entity.PendingApproval
	for _, si := range s.stepInstances {
		inst := s.instances[si.WorkflowInstanceID]
		if si.AssignedAgentID != agentID || si.Status != entity.StepStatusPending ||
			inst == nil || inst.Status != entity.InstanceStatusActive || inst.CurrentStepSequence != si.StepSequence {
			continue
		}
		out = append(out, &entity.PendingApproval{StepInstance: *si, ObjectType: inst.ObjectType, ObjectID: inst.ObjectID})
	}
	return out, nil
}

func (s *fakeStore) ListExpiredStepInstances(ctx context.Context, now time.Time, limit int) ([]*entity.StepInstance, error) {
	var out []*entity.StepInstance
	for _, si := range s.stepInstances {
		inst := s.instances[si.WorkflowInstanceID]
		if si.Status != entity.StepStatusPending || !si.TimeoutAt.Before(now) ||
			inst == nil || inst.Status != entity.InstanceStatusActive || inst.CurrentStepSequence != si.StepSequence {
			continue
		}
		cp := *si
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) GetWorkflowMetrics(ctx context.Context, filter port.MetricsFilter) ([]*entity.WorkflowMetric, error) {
	return nil, nil
}

// org directory

func (s *fakeStore) GetEmployeeByID(ctx context.Context, employeeID string) (*entity.Employee, error) {
	return s.employees[employeeID], nil
}

func (s *fakeStore) GetRoleAssignments(ctx context.Context, roleCode string) ([]*entity.RoleAssignment, error) {
	return s.roles[roleCode], nil
}

func (s *fakeStore) GetResponsibilityAssignments(ctx context.Context, code string) ([]*entity.ResponsibilityAssignment, error) {
	return s.responsibilities[code], nil
}

// fixtures

func (s *fakeStore) addEmployee(id, name, title, managerID string) {
	s.employees[id] = &entity.Employee{EmployeeID: id, EmployeeName: name, PositionTitle: title, ManagerID: managerID, IsActive: true}
}

func (s *fakeStore) addRole(roleCode string, employeeIDs ...string) {
	for _, id := range employeeIDs {
		s.roles[roleCode] = append(s.roles[roleCode], &entity.RoleAssignment{
			EmployeeID:   id,
			EmployeeName: "Holder " + id,
			RoleCode:     roleCode,
			IsActive:     true,
		})
	}
}

func (s *fakeStore) addDefinition(id, objectType string, steps ...*entity.WorkflowStep) *entity.WorkflowDefinition {
	def := &entity.WorkflowDefinition{
		ID:           id,
		WorkflowCode: id,
		WorkflowName: id + " workflow",
		ObjectType:   objectType,
		IsActive:     true,
	}
	s.definitions = append(s.definitions, def)
	for i, st := range steps {
		st.ID = id + "-step-" + string(rune('1'+i))
		st.WorkflowID = id
		st.StepSequence = i + 1
		st.IsActive = true
	}
	s.steps[id] = steps
	return def
}

func (s *fakeStore) pendingFor(instanceID string, sequence int) []*entity.StepInstance {
	var out []*entity.StepInstance
	for _, si := range s.stepInstances {
		if si.WorkflowInstanceID == instanceID && si.StepSequence == sequence && si.Status == entity.StepStatusPending {
			out = append(out, si)
		}
	}
	return out
}

func hierarchyStep(code string) *entity.WorkflowStep {
	return &entity.WorkflowStep{
		StepCode:   code,
		StepName:   code,
		AgentRules: []entity.AgentRule{{RuleCode: "DIRECT_MANAGER", RuleType: entity.RuleTypeHierarchy}},
	}
}

func roleStep(code string, rule entity.CompletionRule, minApprovals *int, roleCode string) *entity.WorkflowStep {
	return &entity.WorkflowStep{
		StepCode:       code,
		StepName:       code,
		CompletionRule: rule,
		MinApprovals:   minApprovals,
		AgentRules: []entity.AgentRule{{
			RuleCode:        "ROLE_" + roleCode,
			RuleType:        entity.RuleTypeRole,
			ResolutionLogic: entity.ResolutionLogic{RoleCode: roleCode},
		}},
	}
}

var (
	_ port.WorkflowRepository = (*fakeStore)(nil)
	_ port.OrgDirectory       = (*fakeStore)(nil)
	_ port.TransactionManager = (*fakeStore)(nil)
)
