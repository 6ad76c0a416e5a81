package entity

import "time"

// PriorityEmergency marks a definition that should win for emergency requests
const PriorityEmergency = "EMERGENCY"

// ActivationConditions describes when a workflow definition is preferred over
// other definitions for the same object type. All fields are optional.
type ActivationConditions struct {
	AmountMin    *float64 `json:"amount_min,omitempty" yaml:"amount_min,omitempty"`
	AmountMax    *float64 `json:"amount_max,omitempty" yaml:"amount_max,omitempty"`
	MaterialType string   `json:"material_type,omitempty" yaml:"material_type,omitempty"`
	Priority     string   `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// WorkflowDefinition is configuration describing which object type an approval
// flow applies to. Read-only at runtime.
type WorkflowDefinition struct {
	ID                   string                `json:"id"`
	WorkflowCode         string                `json:"workflow_code"`
	WorkflowName         string                `json:"workflow_name"`
	ObjectType           string                `json:"object_type"`
	ActivationConditions *ActivationConditions `json:"activation_conditions,omitempty"`
	// Priority orders retrieval (higher first) and therefore breaks score ties
	Priority  int       `json:"priority"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
