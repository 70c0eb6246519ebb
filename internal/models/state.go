// Package models defines state management structures for ShotScope flows.
package models

import "time"

// FlowState is the persisted snapshot of an in-progress flow, used for the
// "resume where you left off" prompt after an interruption or restart.
type FlowState struct {
	FlowID       string             `json:"flow_id"`
	UserID       string             `json:"user_id"`
	FlowType     FlowType           `json:"flow_type"`
	CurrentStage StageID            `json:"current_stage"`
	StageData    map[DataKey]string `json:"stage_data,omitempty"` // typed flow context, serialized per key
	Completed    bool               `json:"completed"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}
