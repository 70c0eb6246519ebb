// Package flow: typed per-flow context and its persistence snapshot.
package flow

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/RinkLab/ShotScope/internal/models"
)

// Context holds everything a flow accumulates as the user progresses. One
// typed field per piece of data, so a stage can never read a wrong-type
// value out of an untyped map.
type Context struct {
	Profile    *models.PlayerProfile
	Clips      []models.MediaClip
	Validation *models.ValidationResult
	AnalysisID string
	CoachNotes string
	// LastError is transient display state; Restart clears it but keeps the
	// rest of the accumulated context.
	LastError string
}

// Snapshot serializes the context into the flat key-value form persisted for
// resume. Only set fields produce keys.
func (c *Context) Snapshot() (map[models.DataKey]string, error) {
	data := make(map[models.DataKey]string)

	if c.Profile != nil {
		b, err := json.Marshal(c.Profile)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profile: %w", err)
		}
		data[models.DataKeyProfile] = string(b)
	}
	if len(c.Clips) > 0 {
		b, err := json.Marshal(c.Clips)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal clips: %w", err)
		}
		data[models.DataKeyClips] = string(b)
	}
	if c.Validation != nil {
		b, err := json.Marshal(c.Validation)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal validation result: %w", err)
		}
		data[models.DataKeyValidation] = string(b)
	}
	if c.AnalysisID != "" {
		data[models.DataKeyAnalysis] = c.AnalysisID
	}
	if c.CoachNotes != "" {
		data[models.DataKeyCoachNotes] = c.CoachNotes
	}
	if c.LastError != "" {
		data[models.DataKeyLastError] = c.LastError
	}
	return data, nil
}

// contextFromSnapshot rebuilds a typed Context from persisted key-value data.
// Unknown keys are ignored; malformed values fail loudly rather than resume
// a corrupt flow.
func contextFromSnapshot(data map[models.DataKey]string) (*Context, error) {
	c := &Context{}
	if data == nil {
		return c, nil
	}

	if v, ok := data[models.DataKeyProfile]; ok {
		var p models.PlayerProfile
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
		}
		c.Profile = &p
	}
	if v, ok := data[models.DataKeyClips]; ok {
		if err := json.Unmarshal([]byte(v), &c.Clips); err != nil {
			return nil, fmt.Errorf("failed to unmarshal clips: %w", err)
		}
	}
	if v, ok := data[models.DataKeyValidation]; ok {
		var vr models.ValidationResult
		if err := json.Unmarshal([]byte(v), &vr); err != nil {
			return nil, fmt.Errorf("failed to unmarshal validation result: %w", err)
		}
		c.Validation = &vr
	}
	c.AnalysisID = data[models.DataKeyAnalysis]
	c.CoachNotes = data[models.DataKeyCoachNotes]
	c.LastError = data[models.DataKeyLastError]

	slog.Debug("Flow context restored from snapshot", "keys", len(data))
	return c, nil
}
