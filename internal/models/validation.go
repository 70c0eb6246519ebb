// Package models defines the pre-flight validation result structure.
package models

// ValidationResult is the outcome of the cheap pre-flight content check that
// runs before the expensive full analysis.
type ValidationResult struct {
	IsValid    bool                 `json:"is_valid"`
	Confidence float64              `json:"confidence"` // in [0,1]
	Reason     string               `json:"reason,omitempty"`
	Angles     map[CameraAngle]bool `json:"angles,omitempty"` // per-angle presence flags
	// AssumedValid marks a fail-open outcome: the validation call timed out or
	// failed and validity was assumed rather than surfaced as an error.
	AssumedValid bool `json:"assumed_valid,omitempty"`
}
