// Package analysis orchestrates the full shot and skill analysis pipeline:
// pre-flight validation, the model call, result persistence, coach notes, and
// completion notification.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RinkLab/ShotScope/internal/genai"
	"github.com/RinkLab/ShotScope/internal/models"
	"github.com/RinkLab/ShotScope/internal/notify"
	"github.com/RinkLab/ShotScope/internal/store"
	"github.com/RinkLab/ShotScope/internal/validation"
)

// AnalysisFrameRate samples four frames per second for the full analysis,
// compared to one frame per second in the validation gate.
const AnalysisFrameRate = 4.0

const analysisBasePrompt = "You are an expert hockey shooting coach. Analyze the provided footage " +
	"of a player shooting and score each mechanical aspect from 0 to 100 with brief reasoning. " +
	"Respond with JSON only."

// analysisSchema constrains the model's analysis reply.
var analysisSchema = json.RawMessage(`{
	"type": "OBJECT",
	"properties": {
		"overall_score": {"type": "INTEGER"},
		"summary": {"type": "STRING"},
		"breakdown": {
			"type": "OBJECT",
			"properties": {
				"stance": {"type": "OBJECT", "properties": {"score": {"type": "INTEGER"}, "reasoning": {"type": "STRING"}}},
				"weight_transfer": {"type": "OBJECT", "properties": {"score": {"type": "INTEGER"}, "reasoning": {"type": "STRING"}}},
				"puck_position": {"type": "OBJECT", "properties": {"score": {"type": "INTEGER"}, "reasoning": {"type": "STRING"}}},
				"release": {"type": "OBJECT", "properties": {"score": {"type": "INTEGER"}, "reasoning": {"type": "STRING"}}},
				"follow_through": {"type": "OBJECT", "properties": {"score": {"type": "INTEGER"}, "reasoning": {"type": "STRING"}}},
				"accuracy": {"type": "OBJECT", "properties": {"score": {"type": "INTEGER"}, "reasoning": {"type": "STRING"}}},
				"power": {"type": "OBJECT", "properties": {"score": {"type": "INTEGER"}, "reasoning": {"type": "STRING"}}}
			}
		},
		"frame_count": {"type": "INTEGER"}
	},
	"required": ["overall_score", "breakdown"]
}`)

// Analyzer is the slice of the GenAI client the service uses.
type Analyzer interface {
	GenerateContent(ctx context.Context, req genai.Request) (string, error)
}

// Opts holds configuration options for the analysis service.
type Opts struct {
	Notes    genai.NotesGenerator
	Notifier notify.Notifier
}

// Option defines a configuration option for the analysis service.
type Option func(*Opts)

// WithNotesGenerator enables coach-note generation after each analysis.
func WithNotesGenerator(n genai.NotesGenerator) Option {
	return func(o *Opts) { o.Notes = n }
}

// WithNotifier enables completion notifications.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Opts) { o.Notifier = n }
}

// Service runs analyses end to end. At most one analysis is in flight per
// flow; starting a new one cancels the previous.
type Service struct {
	client   Analyzer
	gate     *validation.Gate
	st       store.Store
	notes    genai.NotesGenerator
	notifier notify.Notifier
	runs     *runManager
}

// NewService creates an analysis service around the given analyzer, gate, and store.
func NewService(client Analyzer, gate *validation.Gate, st store.Store, opts ...Option) *Service {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NoopNotifier{}
	}
	return &Service{
		client:   client,
		gate:     gate,
		st:       st,
		notes:    cfg.Notes,
		notifier: cfg.Notifier,
		runs:     newRunManager(),
	}
}

// Request describes one analysis run.
type Request struct {
	FlowID      string
	UserID      string
	Feature     models.FlowType
	Clips       []models.MediaClip
	Profile     models.PlayerProfile
	CustomNote  string
	NotifyPhone string
}

// Outcome is the result of one analysis run.
type Outcome struct {
	Result     models.AnalysisResult
	Validation models.ValidationResult
	CoachNotes string
}

func (r Request) validate() error {
	if r.UserID == "" {
		return models.ErrEmptyUserID
	}
	if !models.IsValidFlowType(r.Feature) {
		return fmt.Errorf("%w: %s", models.ErrInvalidFlowType, r.Feature)
	}
	if len(r.Clips) == 0 {
		return models.ErrNoClips
	}
	if len(r.Clips) > models.MaxClipsPerRequest {
		return fmt.Errorf("%w: got %d, max %d", models.ErrTooManyClips, len(r.Clips), models.MaxClipsPerRequest)
	}
	if len(r.CustomNote) > models.MaxPromptLength {
		return models.ErrPromptTooLong
	}
	for _, clip := range r.Clips {
		if err := clip.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Analyze runs the full pipeline for one flow: validation gate, model call,
// persistence, then best-effort coach notes and notification. A second call
// for the same flow cancels the first.
func (s *Service) Analyze(ctx context.Context, req Request) (Outcome, error) {
	if err := req.validate(); err != nil {
		return Outcome{}, err
	}
	if req.FlowID == "" {
		req.FlowID = uuid.NewString()
	}
	slog.Debug("Service Analyze invoked", "flowID", req.FlowID, "userID", req.UserID, "feature", req.Feature, "clips", len(req.Clips))

	runCtx, done := s.runs.begin(ctx, req.FlowID)
	defer done()

	gateRes, err := s.gate.ValidateClips(runCtx, req.Clips)
	if err != nil {
		return Outcome{}, fmt.Errorf("pre-flight validation failed: %w", err)
	}
	if !gateRes.IsValid {
		slog.Info("Service Analyze rejected by gate", "flowID", req.FlowID, "reason", gateRes.Reason)
		return Outcome{Validation: gateRes}, fmt.Errorf("%w: %s", models.ErrContentRejected, gateRes.Reason)
	}

	text, err := s.client.GenerateContent(runCtx, genai.Request{
		Prompt: s.buildPrompt(req),
		Clips:  req.Clips,
		Config: models.GenerationConfig{
			Temperature:    0.2,
			ResponseMIME:   "application/json",
			ResponseSchema: analysisSchema,
		},
		FrameRate: AnalysisFrameRate,
	})
	if err != nil {
		slog.Error("Service Analyze model call failed", "error", err, "flowID", req.FlowID)
		return Outcome{Validation: gateRes}, fmt.Errorf("analysis call failed: %w", err)
	}

	// The full analysis fails CLOSED on a malformed reply; only the
	// pre-flight gate assumes validity on failure.
	var parsed analysisResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		slog.Error("Service Analyze decode failed", "error", err, "flowID", req.FlowID)
		return Outcome{Validation: gateRes}, fmt.Errorf("%w: %v", models.ErrAnalysisParse, err)
	}

	result := models.AnalysisResult{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		Feature:        req.Feature,
		OverallScore:   parsed.OverallScore,
		Summary:        parsed.Summary,
		Breakdown:      parsed.Breakdown,
		FrameCount:     parsed.FrameCount,
		AnglesAnalyzed: anglesOf(req.Clips),
		CreatedAt:      time.Now().UTC(),
	}

	// Persistence failure does not discard a completed analysis; the caller
	// still gets the result.
	if err := s.st.SaveAnalysisResult(result); err != nil {
		slog.Error("Service Analyze failed to persist result", "error", err, "analysisID", result.ID)
	}

	out := Outcome{Result: result, Validation: gateRes}

	if s.notes != nil {
		notes, err := s.notes.TrainingNotes(runCtx, result, req.Profile)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return Outcome{}, err
			}
			slog.Warn("Service Analyze coach notes failed", "error", err, "analysisID", result.ID)
		} else {
			out.CoachNotes = notes
		}
	}

	if req.NotifyPhone != "" {
		if err := s.notifier.NotifyAnalysisComplete(runCtx, req.NotifyPhone, result); err != nil {
			slog.Warn("Service Analyze notification failed", "error", err, "analysisID", result.ID)
		}
	}

	slog.Info("Service Analyze finished", "flowID", req.FlowID, "analysisID", result.ID, "overall", result.OverallScore)
	return out, nil
}

// Latest returns the cached most-recent result for a user and feature; nil if none.
func (s *Service) Latest(userID string, feature models.FlowType) (*models.AnalysisResult, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	if !models.IsValidFlowType(feature) {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidFlowType, feature)
	}
	return s.st.GetLatestAnalysisResult(userID, feature)
}

// Get returns a stored result by ID; nil if absent.
func (s *Service) Get(id string) (*models.AnalysisResult, error) {
	return s.st.GetAnalysisResult(id)
}

// analysisResponse is the wire shape of the constrained analysis reply.
type analysisResponse struct {
	OverallScore int                  `json:"overall_score"`
	Summary      string               `json:"summary"`
	Breakdown    models.ShotBreakdown `json:"breakdown"`
	FrameCount   int                  `json:"frame_count"`
}

func (s *Service) buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(analysisBasePrompt)
	if req.Feature == models.FlowTypeSkillAnalysis {
		b.WriteString(" The footage shows skating drills rather than shooting; score the transferable mechanics.")
	}
	if req.Profile.Age > 0 {
		fmt.Fprintf(&b, " The player is %d years old", req.Profile.Age)
		if req.Profile.SkillLevel != "" {
			fmt.Fprintf(&b, " at %s level", req.Profile.SkillLevel)
		}
		b.WriteString("; calibrate expectations accordingly.")
	}
	if req.CustomNote != "" {
		fmt.Fprintf(&b, " Additional context from the player: %s", req.CustomNote)
	}
	return b.String()
}

func anglesOf(clips []models.MediaClip) []models.CameraAngle {
	var angles []models.CameraAngle
	seen := make(map[models.CameraAngle]bool)
	for _, clip := range clips {
		if clip.Angle == "" || seen[clip.Angle] {
			continue
		}
		seen[clip.Angle] = true
		angles = append(angles, clip.Angle)
	}
	return angles
}
