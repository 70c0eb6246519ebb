// Package models defines flow type definitions to avoid circular imports.
package models

// FlowType represents a specific analysis flow offered by the app.
type FlowType string

// StageID names one step in a linear user-facing flow.
type StageID string

// DataKey represents a key for persisting stage-specific data.
// Keys exist only at the persistence boundary; in-memory flow context is typed.
type DataKey string

// Flow type constants.
const (
	FlowTypeShotAnalysis  FlowType = "shot_analysis"
	FlowTypeSkillAnalysis FlowType = "skill_analysis"
)

// Stage constants shared by the analysis flows.
const (
	StageSelection    StageID = "SELECTION"     // pick the analysis feature
	StageProfile      StageID = "PROFILE"       // enter player profile
	StageCaptureFront StageID = "CAPTURE_FRONT" // record the front-angle clip
	StageCaptureSide  StageID = "CAPTURE_SIDE"  // record the side-angle clip
	StageValidation   StageID = "VALIDATION"    // cheap pre-flight content check
	StageProcessing   StageID = "PROCESSING"    // full analysis in progress
	StageResults      StageID = "RESULTS"       // render the analysis card
	StageErrorResults StageID = "ERROR_RESULTS" // terminal stage for rejected content
)

// Data key constants for persisted flow snapshots.
const (
	DataKeyProfile    DataKey = "profile"    // JSON-encoded PlayerProfile
	DataKeyClips      DataKey = "clips"      // JSON-encoded []MediaClip
	DataKeyValidation DataKey = "validation" // JSON-encoded ValidationResult
	DataKeyAnalysis   DataKey = "analysisID" // ID of the stored AnalysisResult
	DataKeyCoachNotes DataKey = "coachNotes" // generated training notes text
	DataKeyLastError  DataKey = "lastError"  // transient; cleared on restart
)

// IsValidFlowType checks if the given flow type is supported.
func IsValidFlowType(ft FlowType) bool {
	switch ft {
	case FlowTypeShotAnalysis, FlowTypeSkillAnalysis:
		return true
	default:
		return false
	}
}

// StagesFor returns the ordered stage list for a flow type.
// Skill analysis uses a single capture angle; shot analysis captures two.
func StagesFor(ft FlowType) []StageID {
	switch ft {
	case FlowTypeShotAnalysis:
		return []StageID{StageSelection, StageProfile, StageCaptureFront, StageCaptureSide, StageValidation, StageProcessing, StageResults}
	case FlowTypeSkillAnalysis:
		return []StageID{StageSelection, StageProfile, StageCaptureFront, StageValidation, StageProcessing, StageResults}
	default:
		return nil
	}
}
