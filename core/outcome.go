package core

import "time"

// VerificationOutcome is the result of verifying one requirement. It is never
// mutated after creation, only superseded by a fresh evaluation.
type VerificationOutcome struct {
	RequirementID string `json:"requirementId"`
	IsMet         bool   `json:"isMet"`
	CurrentValue  string `json:"currentValue,omitempty"`
	Error         string `json:"error,omitempty"`
}

// CategoryResult is one category's verdict plus the full per-requirement
// outcome list, in the lock's declared order.
type CategoryResult struct {
	Type       CategoryType          `json:"type"`
	Met        bool                  `json:"met"`
	RequireAll bool                  `json:"requireAll"`
	Outcomes   []VerificationOutcome `json:"requirements"`
}

// LockDecision is the final access decision for one (identity, lock) pair.
type LockDecision struct {
	LockID      string           `json:"lockId"`
	Identity    string           `json:"identity"`
	Granted     bool             `json:"granted"`
	Categories  []CategoryResult `json:"perCategory"`
	EvaluatedAt time.Time        `json:"evaluatedAt"`
}

// CombineVerdicts folds child verdicts per the fulfillment mode. An empty
// verdict list is never satisfied: an empty "ALL" must not vacuously grant.
func CombineVerdicts(requireAll bool, verdicts []bool) bool {
	if len(verdicts) == 0 {
		return false
	}
	if requireAll {
		for _, v := range verdicts {
			if !v {
				return false
			}
		}
		return true
	}
	for _, v := range verdicts {
		if v {
			return true
		}
	}
	return false
}
