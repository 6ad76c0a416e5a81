package entity

import "time"

// WorkflowMetric is one instance row of the workflow performance report
type WorkflowMetric struct {
	InstanceID   string     `json:"instance_id"`
	WorkflowID   string     `json:"workflow_id"`
	WorkflowCode string     `json:"workflow_code"`
	WorkflowName string     `json:"workflow_name"`
	ObjectType   string     `json:"object_type"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// AgentWorkload summarises the pending approvals of a single agent
type AgentWorkload struct {
	AgentID      string         `json:"agent_id"`
	TotalPending int            `json:"total_pending"`
	ByObjectType map[string]int `json:"by_object_type"`
}
