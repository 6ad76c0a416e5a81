package workflow

import "github.com/garyjia/approval-engine/internal/domain/entity"

// StepResult is the net result of a decided step
type StepResult string

const (
	StepApproved StepResult = "APPROVED"
	StepRejected StepResult = "REJECTED"
)

// CompletionCounts tallies the step instances of one step
type CompletionCounts struct {
	Approved int
	Rejected int
	Total    int
}

// StepOutcome reports whether a step is decided and which way
type StepOutcome struct {
	Decided bool
	Result  StepResult
}

// CountDecisions tallies step instances. ESCALATED rows were replaced by
// another step instance and are not counted.
func CountDecisions(stepInstances []*entity.StepInstance) CompletionCounts {
	var c CompletionCounts
	for _, si := range stepInstances {
		switch si.Status {
		case entity.StepStatusEscalated:
			continue
		case entity.StepStatusApproved:
			c.Approved++
		case entity.StepStatusRejected:
			c.Rejected++
		}
		c.Total++
	}
	return c
}

// RequiredApprovals returns the approval threshold of a MIN_N step
func RequiredApprovals(minApprovals *int) int {
	if minApprovals == nil || *minApprovals < 1 {
		return 1
	}
	return *minApprovals
}

// IsComplete reports whether a step has reached its completion rule.
// A rejection satisfies ANY exactly like an approval does.
func IsComplete(rule entity.CompletionRule, minApprovals *int, c CompletionCounts) bool {
	if c.Total == 0 {
		return false
	}

	switch rule {
	case entity.CompletionAll:
		return c.Approved == c.Total
	case entity.CompletionAny:
		return c.Approved > 0 || c.Rejected > 0
	case entity.CompletionMinN:
		return c.Approved >= RequiredApprovals(minApprovals)
	default:
		return c.Approved > 0
	}
}

// Evaluate decides the net result of a step. Unlike IsComplete it separates an
// approved step from one that can no longer be approved.
func Evaluate(rule entity.CompletionRule, minApprovals *int, c CompletionCounts) StepOutcome {
	if c.Total == 0 {
		return StepOutcome{}
	}

	switch rule {
	case entity.CompletionAll:
		if c.Rejected > 0 {
			return StepOutcome{Decided: true, Result: StepRejected}
		}
		if c.Approved == c.Total {
			return StepOutcome{Decided: true, Result: StepApproved}
		}
	case entity.CompletionAny:
		if c.Approved > 0 {
			return StepOutcome{Decided: true, Result: StepApproved}
		}
		if c.Rejected > 0 {
			return StepOutcome{Decided: true, Result: StepRejected}
		}
	case entity.CompletionMinN:
		required := RequiredApprovals(minApprovals)
		if c.Approved >= required {
			return StepOutcome{Decided: true, Result: StepApproved}
		}
		// the remaining agents can no longer reach the threshold
		if c.Rejected > 0 && c.Total-c.Rejected < required {
			return StepOutcome{Decided: true, Result: StepRejected}
		}
	default:
		if c.Approved > 0 {
			return StepOutcome{Decided: true, Result: StepApproved}
		}
		if c.Rejected == c.Total {
			return StepOutcome{Decided: true, Result: StepRejected}
		}
	}

	return StepOutcome{}
}
