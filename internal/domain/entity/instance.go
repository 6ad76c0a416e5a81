package entity

import "time"

// Instance status constants
const (
	InstanceStatusActive    = "ACTIVE"
	InstanceStatusCompleted = "COMPLETED"
	InstanceStatusRejected  = "REJECTED"
	InstanceStatusCancelled = "CANCELLED"
)

// WorkflowInstance is one approval episode for a business object
type WorkflowInstance struct {
	ID                  string                 `json:"id"`
	WorkflowID          string                 `json:"workflow_id"`
	ObjectType          string                 `json:"object_type"`
	ObjectID            string                 `json:"object_id"`
	RequesterID         string                 `json:"requester_id"`
	ContextData         map[string]interface{} `json:"context_data"`
	CurrentStepSequence int                    `json:"current_step_sequence"`
	Status              string                 `json:"status"`
	// Version is bumped on every instance transition and guards concurrent advancement
	Version     int        `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsActive reports whether the instance still accepts decisions
func (i *WorkflowInstance) IsActive() bool {
	return i.Status == InstanceStatusActive
}
