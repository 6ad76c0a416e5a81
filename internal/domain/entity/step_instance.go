package entity

import "time"

// Step instance status constants
const (
	StepStatusPending   = "PENDING"
	StepStatusApproved  = "APPROVED"
	StepStatusRejected  = "REJECTED"
	StepStatusCancelled = "CANCELLED"
	StepStatusEscalated = "ESCALATED"
)

// Approval actions
const (
	ActionApprove = "APPROVE"
	ActionReject  = "REJECT"
)

// StepInstance is one agent's approval task within a specific step of a
// workflow instance. Rows are never reused across steps or deleted.
type StepInstance struct {
	ID                 string     `json:"id"`
	WorkflowInstanceID string     `json:"workflow_instance_id"`
	WorkflowStepID     string     `json:"workflow_step_id"`
	StepSequence       int        `json:"step_sequence"`
	AssignedAgentID    string     `json:"assigned_agent_id"`
	AssignedAgentName  string     `json:"assigned_agent_name"`
	AssignedAgentRole  string     `json:"assigned_agent_role"`
	Status             string     `json:"status"`
	TimeoutAt          time.Time  `json:"timeout_at"`
	Comments           string     `json:"comments,omitempty"`
	DecidedAt          *time.Time `json:"decided_at,omitempty"`
	EscalatedFrom      string     `json:"escalated_from,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// IsPending reports whether the step instance still awaits a decision
func (s *StepInstance) IsPending() bool {
	return s.Status == StepStatusPending
}

// PendingApproval is a pending step instance enriched with the data an agent
// needs to act on it
type PendingApproval struct {
	StepInstance
	ObjectType   string                 `json:"object_type"`
	ObjectID     string                 `json:"object_id"`
	ContextData  map[string]interface{} `json:"context_data"`
	WorkflowName string                 `json:"workflow_name"`
	StepName     string                 `json:"step_name"`
}

// StatusForAction maps an approval action to the resulting step instance status
func StatusForAction(action string) (string, bool) {
	switch action {
	case ActionApprove:
		return StepStatusApproved, true
	case ActionReject:
		return StepStatusRejected, true
	default:
		return "", false
	}
}
