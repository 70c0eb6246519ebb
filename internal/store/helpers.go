package store

import (
	"encoding/json"
	"fmt"

	"github.com/RinkLab/ShotScope/internal/models"
)

// encodeStageData converts the stage-data map to a JSON string for storage.
// An empty map is stored as an empty string, which reads back as nil.
func encodeStageData(data map[models.DataKey]string) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal stage data: %w", err)
	}
	return string(b), nil
}

// decodeStageData populates state.StageData from the stored JSON string.
func decodeStageData(raw string, state *models.FlowState) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &state.StageData); err != nil {
		return fmt.Errorf("failed to unmarshal stage data for %s: %w", state.FlowID, err)
	}
	return nil
}

// decodeAnalysisPayload deserializes an analysis result blob.
func decodeAnalysisPayload(payload string) (*models.AnalysisResult, error) {
	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis result payload: %w", err)
	}
	return &result, nil
}
