package event

// Type identifies the type of domain event
type Type string

const (
	TypeInstanceCreated   Type = "instance.created"
	TypeInstanceAdvanced  Type = "instance.advanced"
	TypeInstanceCompleted Type = "instance.completed"
	TypeInstanceRejected  Type = "instance.rejected"
	TypeInstanceCancelled Type = "instance.cancelled"
	TypeStepInitialized   Type = "step.initialized"
	TypeStepDecided       Type = "step.decided"
	TypeApprovalRecorded  Type = "approval.recorded"
	TypeApprovalEscalated Type = "approval.escalated"
	TypeApprovalTimedOut  Type = "approval.timed_out"
)

var allTypes = []Type{
	TypeInstanceCreated,
	TypeInstanceAdvanced,
	TypeInstanceCompleted,
	TypeInstanceRejected,
	TypeInstanceCancelled,
	TypeStepInitialized,
	TypeStepDecided,
	TypeApprovalRecorded,
	TypeApprovalEscalated,
	TypeApprovalTimedOut,
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	for _, known := range allTypes {
		if t == known {
			return true
		}
	}
	return false
}

// AllTypes returns every defined event type
func AllTypes() []Type {
	return append([]Type(nil), allTypes...)
}
