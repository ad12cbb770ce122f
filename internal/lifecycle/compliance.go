// Package lifecycle holds the admission rules shared by services and the
// stores that enforce them: the document compliance gate and the permitted
// status transitions for enquiries and admissions.
package lifecycle

import "github.com/noah-isme/sma-admissions-api/internal/models"

// Compliance is the outcome of evaluating an admission's document requirements.
type Compliance struct {
	Cleared     bool `json:"cleared"`
	Outstanding int  `json:"outstanding"`
	Total       int  `json:"total"`
	Mandatory   int  `json:"mandatory"`
}

// Evaluate reports whether every mandatory requirement is verified.
// An empty requirement set is never cleared.
func Evaluate(requirements []models.DocumentRequirement) Compliance {
	result := Compliance{Total: len(requirements)}
	for _, req := range requirements {
		if !req.IsMandatory {
			continue
		}
		result.Mandatory++
		if req.Status != models.DocumentStatusVerified {
			result.Outstanding++
		}
	}
	result.Cleared = result.Total > 0 && result.Outstanding == 0
	return result
}
