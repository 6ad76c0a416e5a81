// Package matcher selects the workflow definition that best fits a business object.
package matcher

import (
	"sort"

	"github.com/spf13/cast"

	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// Context keys read from an instance's context data
const (
	KeyAmount       = "amount"
	KeyMaterialType = "material_type"
)

const (
	scoreAmountBound  = 10
	scoreMaterialType = 20
	scoreEmergency    = 50
	scoreFallback     = 1
)

// SelectWorkflow returns the best-fitting candidate, or nil when there are none.
// Candidates must be in retrieval order; equal scores keep that order.
func SelectWorkflow(candidates []*entity.WorkflowDefinition, contextData map[string]interface{}) *entity.WorkflowDefinition {
	switch len(candidates) {
	case 0:
		return nil
	case 1:
		return candidates[0]
	}

	type scored struct {
		def   *entity.WorkflowDefinition
		score int
	}

	ranked := make([]scored, len(candidates))
	for i, def := range candidates {
		ranked[i] = scored{def: def, score: Score(def, contextData)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	return ranked[0].def
}

// Score rates how well a definition's activation conditions fit the context
func Score(def *entity.WorkflowDefinition, contextData map[string]interface{}) int {
	cond := def.ActivationConditions
	if cond == nil {
		return scoreFallback
	}

	score := 0

	if amount, ok := contextAmount(contextData); ok {
		if cond.AmountMin != nil && amount >= *cond.AmountMin {
			score += scoreAmountBound
		}
		if cond.AmountMax != nil && amount <= *cond.AmountMax {
			score += scoreAmountBound
		}
	}

	materialType := cast.ToString(contextData[KeyMaterialType])
	if cond.MaterialType != "" && materialType == cond.MaterialType {
		score += scoreMaterialType
	}
	if cond.Priority == entity.PriorityEmergency && materialType == entity.PriorityEmergency {
		score += scoreEmergency
	}

	return score
}

// contextAmount reads the amount as a number. JSON numbers and numeric strings
// are accepted; anything else counts as absent.
func contextAmount(contextData map[string]interface{}) (float64, bool) {
	raw, ok := contextData[KeyAmount]
	if !ok || raw == nil {
		return 0, false
	}
	amount, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, false
	}
	return amount, true
}
