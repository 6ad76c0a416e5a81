package seed

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// File is the YAML layout of a configuration seed
type File struct {
	Employees        []Employee       `yaml:"employees"`
	Roles            []Assignment     `yaml:"role_assignments"`
	Responsibilities []Assignment     `yaml:"responsibility_assignments"`
	AgentRules       []AgentRule      `yaml:"agent_rules"`
	Workflows        []WorkflowConfig `yaml:"workflows"`
}

// Employee is an org hierarchy entry; IsActive defaults to true
type Employee struct {
	EmployeeID     string `yaml:"employee_id"`
	EmployeeName   string `yaml:"employee_name"`
	ManagerID      string `yaml:"manager_id"`
	PositionTitle  string `yaml:"position_title"`
	DepartmentCode string `yaml:"department_code"`
	PlantCode      string `yaml:"plant_code"`
	IsActive       *bool  `yaml:"is_active"`
}

// Assignment is a role or responsibility assignment; Code names the role or responsibility
type Assignment struct {
	EmployeeID string `yaml:"employee_id"`
	Code       string `yaml:"code"`
	ScopeValue string `yaml:"scope_value"`
	IsActive   *bool  `yaml:"is_active"`
}

// AgentRule is a reusable rule that steps reference by code
type AgentRule struct {
	RuleCode        string                 `yaml:"rule_code"`
	RuleName        string                 `yaml:"rule_name"`
	RuleType        entity.RuleType        `yaml:"rule_type"`
	ResolutionLogic entity.ResolutionLogic `yaml:"resolution_logic"`
	Description     string                 `yaml:"description"`
}

// WorkflowConfig is a workflow definition with its steps
type WorkflowConfig struct {
	WorkflowCode         string                       `yaml:"workflow_code"`
	WorkflowName         string                       `yaml:"workflow_name"`
	ObjectType           string                       `yaml:"object_type"`
	ActivationConditions *entity.ActivationConditions `yaml:"activation_conditions"`
	Priority             int                          `yaml:"priority"`
	IsActive             *bool                        `yaml:"is_active"`
	Steps                []StepConfig                 `yaml:"steps"`
}

// StepConfig is one workflow step; AgentRules lists rule codes
type StepConfig struct {
	StepSequence   int                   `yaml:"step_sequence"`
	StepCode       string                `yaml:"step_code"`
	StepName       string                `yaml:"step_name"`
	CompletionRule entity.CompletionRule `yaml:"completion_rule"`
	MinApprovals   *int                  `yaml:"min_approvals"`
	TimeoutHours   *int                  `yaml:"timeout_hours"`
	IsActive       *bool                 `yaml:"is_active"`
	AgentRules     []string              `yaml:"agent_rules"`
}

// Summary counts what a seed wrote
type Summary struct {
	Employees        int
	Roles            int
	Responsibilities int
	Workflows        int
	Steps            int
}

// Loader writes seed files through the configuration store
type Loader struct {
	store     port.ConfigurationStore
	txManager port.TransactionManager
	logger    *zap.Logger
}

// NewLoader creates a new seed loader
func NewLoader(store port.ConfigurationStore, txManager port.TransactionManager, logger *zap.Logger) *Loader {
	return &Loader{
		store:     store,
		txManager: txManager,
		logger:    logger,
	}
}

// Parse decodes and validates a seed document
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode seed: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFile parses a seed file and applies it
func (l *Loader) LoadFile(ctx context.Context, path string) (*Summary, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer fh.Close()

	f, err := Parse(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l.Apply(ctx, f)
}

// Apply writes a seed in one transaction. Existing rows are updated in place.
func (l *Loader) Apply(ctx context.Context, f *File) (*Summary, error) {
	rules := make(map[string]AgentRule, len(f.AgentRules))
	for _, r := range f.AgentRules {
		rules[r.RuleCode] = r
	}

	summary := &Summary{}
	err := l.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, e := range f.Employees {
			if err := l.store.UpsertEmployee(txCtx, &entity.Employee{
				EmployeeID:     e.EmployeeID,
				EmployeeName:   e.EmployeeName,
				ManagerID:      e.ManagerID,
				PositionTitle:  e.PositionTitle,
				DepartmentCode: e.DepartmentCode,
				PlantCode:      e.PlantCode,
				IsActive:       active(e.IsActive),
			}); err != nil {
				return fmt.Errorf("employee %s: %w", e.EmployeeID, err)
			}
			summary.Employees++
		}

		for _, a := range f.Roles {
			if err := l.store.UpsertRoleAssignment(txCtx, &entity.RoleAssignment{
				EmployeeID: a.EmployeeID,
				RoleCode:   a.Code,
				ScopeValue: a.ScopeValue,
				IsActive:   active(a.IsActive),
			}); err != nil {
				return fmt.Errorf("role %s for %s: %w", a.Code, a.EmployeeID, err)
			}
			summary.Roles++
		}

		for _, a := range f.Responsibilities {
			if err := l.store.UpsertResponsibilityAssignment(txCtx, &entity.ResponsibilityAssignment{
				EmployeeID:         a.EmployeeID,
				ResponsibilityCode: a.Code,
				IsActive:           active(a.IsActive),
			}); err != nil {
				return fmt.Errorf("responsibility %s for %s: %w", a.Code, a.EmployeeID, err)
			}
			summary.Responsibilities++
		}

		for _, wf := range f.Workflows {
			def := &entity.WorkflowDefinition{
				WorkflowCode:         wf.WorkflowCode,
				WorkflowName:         wf.WorkflowName,
				ObjectType:           wf.ObjectType,
				ActivationConditions: wf.ActivationConditions,
				Priority:             wf.Priority,
				IsActive:             active(wf.IsActive),
			}
			if err := l.store.UpsertDefinition(txCtx, def); err != nil {
				return fmt.Errorf("workflow %s: %w", wf.WorkflowCode, err)
			}

			steps := make([]*entity.WorkflowStep, 0, len(wf.Steps))
			for _, s := range wf.Steps {
				step := &entity.WorkflowStep{
					WorkflowID:     def.ID,
					StepSequence:   s.StepSequence,
					StepCode:       s.StepCode,
					StepName:       s.StepName,
					CompletionRule: s.CompletionRule,
					MinApprovals:   s.MinApprovals,
					TimeoutHours:   s.TimeoutHours,
					IsActive:       active(s.IsActive),
				}
				for _, code := range s.AgentRules {
					r := rules[code]
					step.AgentRules = append(step.AgentRules, entity.AgentRule{
						RuleCode:        r.RuleCode,
						RuleName:        r.RuleName,
						RuleType:        r.RuleType,
						ResolutionLogic: r.ResolutionLogic,
						Description:     r.Description,
					})
				}
				steps = append(steps, step)
			}
			if err := l.store.ReplaceSteps(txCtx, def.ID, steps); err != nil {
				return fmt.Errorf("steps of workflow %s: %w", wf.WorkflowCode, err)
			}
			summary.Workflows++
			summary.Steps += len(steps)
		}
		return nil
	})
	if err != nil {
		l.logger.Error("Seed failed", zap.Error(err))
		return nil, err
	}

	l.logger.Info("Seed applied",
		zap.Int("employees", summary.Employees),
		zap.Int("role_assignments", summary.Roles),
		zap.Int("responsibility_assignments", summary.Responsibilities),
		zap.Int("workflows", summary.Workflows),
		zap.Int("steps", summary.Steps))
	return summary, nil
}

// Validate checks references and required fields, reporting every problem found
func (f *File) Validate() error {
	var problems []string
	addf := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	for i, e := range f.Employees {
		if strings.TrimSpace(e.EmployeeID) == "" {
			addf("employees[%d]: employee_id is required", i)
		}
	}
	for i, a := range f.Roles {
		if a.EmployeeID == "" || a.Code == "" {
			addf("role_assignments[%d]: employee_id and code are required", i)
		}
	}
	for i, a := range f.Responsibilities {
		if a.EmployeeID == "" || a.Code == "" {
			addf("responsibility_assignments[%d]: employee_id and code are required", i)
		}
	}

	rules := make(map[string]bool, len(f.AgentRules))
	for i, r := range f.AgentRules {
		switch {
		case r.RuleCode == "":
			addf("agent_rules[%d]: rule_code is required", i)
			continue
		case rules[r.RuleCode]:
			addf("agent_rules[%d]: duplicate rule_code %s", i, r.RuleCode)
		}
		rules[r.RuleCode] = true

		switch r.RuleType {
		case entity.RuleTypeHierarchy:
		case entity.RuleTypeRole:
			if r.ResolutionLogic.RoleCode == "" {
				addf("agent rule %s: role_code is required", r.RuleCode)
			}
		case entity.RuleTypeResponsibility:
			if r.ResolutionLogic.ResponsibilityCode == "" {
				addf("agent rule %s: responsibility_code is required", r.RuleCode)
			}
		default:
			addf("agent rule %s: unknown rule_type %q", r.RuleCode, r.RuleType)
		}
	}

	codes := make(map[string]bool, len(f.Workflows))
	for i, wf := range f.Workflows {
		if wf.WorkflowCode == "" || wf.ObjectType == "" {
			addf("workflows[%d]: workflow_code and object_type are required", i)
			continue
		}
		if codes[wf.WorkflowCode] {
			addf("workflow %s: duplicate workflow_code", wf.WorkflowCode)
		}
		codes[wf.WorkflowCode] = true

		sequences := make(map[int]bool, len(wf.Steps))
		for _, s := range wf.Steps {
			if s.StepSequence < 1 {
				addf("workflow %s step %s: step_sequence must be positive", wf.WorkflowCode, s.StepCode)
			}
			if sequences[s.StepSequence] {
				addf("workflow %s: duplicate step_sequence %d", wf.WorkflowCode, s.StepSequence)
			}
			sequences[s.StepSequence] = true

			switch s.CompletionRule {
			case entity.CompletionDefault, entity.CompletionAll, entity.CompletionAny:
			case entity.CompletionMinN:
				if s.MinApprovals != nil && *s.MinApprovals < 1 {
					addf("workflow %s step %d: min_approvals must be positive", wf.WorkflowCode, s.StepSequence)
				}
			default:
				addf("workflow %s step %d: unknown completion_rule %q", wf.WorkflowCode, s.StepSequence, s.CompletionRule)
			}
			if s.TimeoutHours != nil && *s.TimeoutHours < 1 {
				addf("workflow %s step %d: timeout_hours must be positive", wf.WorkflowCode, s.StepSequence)
			}
			for _, code := range s.AgentRules {
				if !rules[code] {
					addf("workflow %s step %d: unknown agent rule %s", wf.WorkflowCode, s.StepSequence, code)
				}
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid seed: %s", strings.Join(problems, "; "))
	}
	return nil
}

func active(flag *bool) bool {
	return flag == nil || *flag
}
