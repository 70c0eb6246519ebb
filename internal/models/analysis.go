// Package models defines the analysis result structures returned by the AI endpoint.
package models

import "time"

// MetricScore is one scored aspect of the analysis: a 0-100 score with the
// model's free-text reasoning for it.
type MetricScore struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning,omitempty"`
}

// ShotBreakdown holds the per-metric scores for a shot analysis.
type ShotBreakdown struct {
	Stance         MetricScore `json:"stance"`
	WeightTransfer MetricScore `json:"weight_transfer"`
	PuckPosition   MetricScore `json:"puck_position"`
	Release        MetricScore `json:"release"`
	FollowThrough  MetricScore `json:"follow_through"`
	Accuracy       MetricScore `json:"accuracy"`
	Power          MetricScore `json:"power"`
}

// AnalysisResult is the full structured output of one successful analysis
// call. Immutable after creation; cached per user and feature.
type AnalysisResult struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	Feature        FlowType      `json:"feature"`
	OverallScore   int           `json:"overall_score"`
	Summary        string        `json:"summary,omitempty"`
	Breakdown      ShotBreakdown `json:"breakdown"`
	FrameCount     int           `json:"frame_count,omitempty"`
	AnglesAnalyzed []CameraAngle `json:"angles_analyzed,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}
