package entity

import (
	"encoding/json"
	"fmt"
	"sort"
)

// CompletionRule decides how many assigned agents must act before a step resolves
type CompletionRule string

const (
	CompletionAll     CompletionRule = "ALL"
	CompletionAny     CompletionRule = "ANY"
	CompletionMinN    CompletionRule = "MIN_N"
	CompletionDefault CompletionRule = ""
)

// RuleType identifies an agent resolution strategy
type RuleType string

const (
	RuleTypeHierarchy      RuleType = "HIERARCHY"
	RuleTypeRole           RuleType = "ROLE"
	RuleTypeResponsibility RuleType = "RESPONSIBILITY"
)

// WorkflowStep is one ordered stage of a workflow definition
type WorkflowStep struct {
	ID             string         `json:"id"`
	WorkflowID     string         `json:"workflow_id"`
	StepSequence   int            `json:"step_sequence"`
	StepCode       string         `json:"step_code"`
	StepName       string         `json:"step_name"`
	CompletionRule CompletionRule `json:"completion_rule"`
	MinApprovals   *int           `json:"min_approvals,omitempty"`
	// TimeoutHours overrides the engine's default decision window when set
	TimeoutHours *int        `json:"timeout_hours,omitempty"`
	IsActive     bool        `json:"is_active"`
	AgentRules   []AgentRule `json:"agent_rules"`
}

// AgentRule is a named strategy for resolving the concrete approvers of a step
type AgentRule struct {
	RuleCode        string          `json:"rule_code"`
	RuleName        string          `json:"rule_name"`
	RuleType        RuleType        `json:"rule_type"`
	ResolutionLogic ResolutionLogic `json:"resolution_logic"`
	Description     string          `json:"description,omitempty"`
}

// ResolutionLogic is the strategy-specific payload of an AgentRule
type ResolutionLogic struct {
	RoleCode           string      `json:"role_code,omitempty" yaml:"role_code,omitempty"`
	ScopeFilter        ScopeFilter `json:"scope_filter,omitempty" yaml:"scope_filter,omitempty"`
	ResponsibilityCode string      `json:"responsibility_code,omitempty" yaml:"responsibility_code,omitempty"`
}

// ScopeFilter lists the context keys (plant_code, department_code, ...) an
// assignment's scope value has to match.
//
// It accepts three encodings: a single key ("plant_code"), a list of keys, or
// an object whose truthy entries name the keys ({"plant_code": true}).
type ScopeFilter []string

// UnmarshalJSON implements json.Unmarshaler
func (f *ScopeFilter) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid scope_filter: %w", err)
	}
	keys, err := scopeKeys(raw)
	if err != nil {
		return err
	}
	*f = keys
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (f *ScopeFilter) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return fmt.Errorf("invalid scope_filter: %w", err)
	}
	keys, err := scopeKeys(raw)
	if err != nil {
		return err
	}
	*f = keys
	return nil
}

// MarshalJSON encodes the filter in its object form
func (f ScopeFilter) MarshalJSON() ([]byte, error) {
	if len(f) == 0 {
		return []byte("null"), nil
	}
	obj := make(map[string]bool, len(f))
	for _, k := range f {
		obj[k] = true
	}
	return json.Marshal(obj)
}

func scopeKeys(raw interface{}) (ScopeFilter, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return ScopeFilter{v}, nil
	case []interface{}:
		keys := make(ScopeFilter, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("invalid scope_filter entry: %v", item)
			}
			keys = append(keys, s)
		}
		return keys, nil
	case map[string]interface{}:
		keys := make(ScopeFilter, 0, len(v))
		for k, enabled := range v {
			if truthy(enabled) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		return keys, nil
	default:
		return nil, fmt.Errorf("invalid scope_filter type %T", raw)
	}
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		return true
	}
}
