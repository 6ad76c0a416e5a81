package resolver

import (
	"context"
	"fmt"

	"github.com/spf13/cast"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// HierarchyStrategy routes a step to the requester's direct manager. It does
// not walk further up the hierarchy.
type HierarchyStrategy struct {
	dir port.OrgDirectory
}

// NewHierarchyStrategy creates the HIERARCHY strategy
func NewHierarchyStrategy(dir port.OrgDirectory) *HierarchyStrategy {
	return &HierarchyStrategy{dir: dir}
}

func (s *HierarchyStrategy) Type() entity.RuleType { return entity.RuleTypeHierarchy }

func (s *HierarchyStrategy) Resolve(ctx context.Context, rule entity.AgentRule, rc ResolutionContext) ([]entity.ResolvedAgent, error) {
	if rc.RequesterID == "" {
		return nil, nil
	}

	requester, err := s.dir.GetEmployeeByID(ctx, rc.RequesterID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up requester %s: %w", rc.RequesterID, err)
	}
	if requester == nil || requester.ManagerID == "" {
		return nil, nil
	}

	manager, err := s.dir.GetEmployeeByID(ctx, requester.ManagerID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up manager %s: %w", requester.ManagerID, err)
	}
	if manager == nil || !manager.IsActive {
		return nil, nil
	}

	return []entity.ResolvedAgent{{
		AgentID:   manager.EmployeeID,
		AgentName: manager.EmployeeName,
		AgentRole: manager.PositionTitle,
	}}, nil
}

// RoleStrategy routes a step to every holder of a role, optionally limited
// to holders whose scope matches the request
type RoleStrategy struct {
	dir port.OrgDirectory
}

// NewRoleStrategy creates the ROLE strategy
func NewRoleStrategy(dir port.OrgDirectory) *RoleStrategy {
	return &RoleStrategy{dir: dir}
}

func (s *RoleStrategy) Type() entity.RuleType { return entity.RuleTypeRole }

func (s *RoleStrategy) Resolve(ctx context.Context, rule entity.AgentRule, rc ResolutionContext) ([]entity.ResolvedAgent, error) {
	logic := rule.ResolutionLogic
	if logic.RoleCode == "" {
		return nil, fmt.Errorf("rule %s has no role_code", rule.RuleCode)
	}

	assignments, err := s.dir.GetRoleAssignments(ctx, logic.RoleCode)
	if err != nil {
		return nil, fmt.Errorf("failed to get role assignments for %s: %w", logic.RoleCode, err)
	}

	agents := make([]entity.ResolvedAgent, 0, len(assignments))
	for _, a := range assignments {
		if !inScope(a.ScopeValue, logic.ScopeFilter, rc.Data) {
			continue
		}
		agents = append(agents, entity.ResolvedAgent{
			AgentID:   a.EmployeeID,
			AgentName: a.EmployeeName,
			AgentRole: a.RoleCode,
		})
	}
	return agents, nil
}

// inScope requires the assignment's scope value to equal the context value
// of every key named by the filter
func inScope(scopeValue string, filter entity.ScopeFilter, data map[string]interface{}) bool {
	for _, key := range filter {
		if scopeValue != cast.ToString(data[key]) {
			return false
		}
	}
	return true
}

// ResponsibilityStrategy routes a step to everyone holding a responsibility
type ResponsibilityStrategy struct {
	dir port.OrgDirectory
}

// NewResponsibilityStrategy creates the RESPONSIBILITY strategy
func NewResponsibilityStrategy(dir port.OrgDirectory) *ResponsibilityStrategy {
	return &ResponsibilityStrategy{dir: dir}
}

func (s *ResponsibilityStrategy) Type() entity.RuleType { return entity.RuleTypeResponsibility }

func (s *ResponsibilityStrategy) Resolve(ctx context.Context, rule entity.AgentRule, rc ResolutionContext) ([]entity.ResolvedAgent, error) {
	code := rule.ResolutionLogic.ResponsibilityCode
	if code == "" {
		return nil, fmt.Errorf("rule %s has no responsibility_code", rule.RuleCode)
	}

	assignments, err := s.dir.GetResponsibilityAssignments(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get responsibility assignments for %s: %w", code, err)
	}

	agents := make([]entity.ResolvedAgent, 0, len(assignments))
	for _, a := range assignments {
		agents = append(agents, entity.ResolvedAgent{
			AgentID:   a.EmployeeID,
			AgentName: a.EmployeeName,
			AgentRole: a.ResponsibilityCode,
		})
	}
	return agents, nil
}
