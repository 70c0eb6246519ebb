// Package validation implements the pre-flight content gate that cheaply
// rejects non-hockey media before the expensive full analysis call.
//
// The gate runs the same network wrapper at a much lower sampling rate with a
// constrained response schema. Policy: on timeout or any validation failure
// the gate fails OPEN — validity is assumed rather than blocking the user on
// a transient fault. The full-analysis path fails closed; the asymmetry is
// deliberate.
package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/RinkLab/ShotScope/internal/genai"
	"github.com/RinkLab/ShotScope/internal/models"
)

// Gate configuration constants.
const (
	// ValidationFrameRate samples one frame per second for the cheap check.
	ValidationFrameRate = 1.0
	// DefaultClipTimeout caps each clip's validation call.
	DefaultClipTimeout = 120 * time.Second
	// DefaultFallbackConfidence is the confidence assigned to assumed-valid
	// outcomes when the gate fails open.
	DefaultFallbackConfidence = 0.7
)

const validationPrompt = "You are verifying hockey training footage. Determine whether the media " +
	"shows a hockey player performing the expected action (shooting or skating drills). " +
	"Respond with JSON only."

// validationSchema constrains the model's response to the fields the gate decodes.
var validationSchema = json.RawMessage(`{
	"type": "OBJECT",
	"properties": {
		"is_valid": {"type": "BOOLEAN"},
		"confidence": {"type": "NUMBER"},
		"reason": {"type": "STRING"},
		"angles": {
			"type": "OBJECT",
			"properties": {
				"front": {"type": "BOOLEAN"},
				"side": {"type": "BOOLEAN"}
			}
		}
	},
	"required": ["is_valid", "confidence"]
}`)

// Analyzer is the slice of the GenAI client the gate uses.
type Analyzer interface {
	GenerateContent(ctx context.Context, req genai.Request) (string, error)
}

// Opts holds configuration options for the validation gate.
type Opts struct {
	FailClosed         bool
	FallbackConfidence float64
	ClipTimeout        time.Duration
}

// Option defines a configuration option for the validation gate.
type Option func(*Opts)

// WithFailClosed makes validation failures surface as errors instead of
// assuming validity. The original product policy fails open.
func WithFailClosed() Option {
	return func(o *Opts) { o.FailClosed = true }
}

// WithFallbackConfidence overrides the assumed-valid confidence cap.
func WithFallbackConfidence(c float64) Option {
	return func(o *Opts) { o.FallbackConfidence = c }
}

// WithClipTimeout overrides the per-clip validation timeout.
func WithClipTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ClipTimeout = d }
}

// Gate runs pre-flight validation against the AI endpoint.
type Gate struct {
	client             Analyzer
	failClosed         bool
	fallbackConfidence float64
	clipTimeout        time.Duration
}

// NewGate creates a validation gate around the given analyzer.
func NewGate(client Analyzer, opts ...Option) *Gate {
	cfg := Opts{
		FallbackConfidence: DefaultFallbackConfidence,
		ClipTimeout:        DefaultClipTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Gate{
		client:             client,
		failClosed:         cfg.FailClosed,
		fallbackConfidence: cfg.FallbackConfidence,
		clipTimeout:        cfg.ClipTimeout,
	}
}

// validationResponse is the wire shape of the constrained validation reply.
type validationResponse struct {
	IsValid    bool            `json:"is_valid"`
	Confidence float64         `json:"confidence"`
	Reason     string          `json:"reason,omitempty"`
	Angles     map[string]bool `json:"angles,omitempty"`
}

// ValidateClips validates clips sequentially in list order. Sequential rather
// than parallel: latency is traded for reduced concurrent load and rate-limit
// risk. The aggregate is valid only if every clip is valid; confidence is the
// minimum across clips; reasons are concatenated.
func (g *Gate) ValidateClips(ctx context.Context, clips []models.MediaClip) (models.ValidationResult, error) {
	if len(clips) == 0 {
		return models.ValidationResult{}, models.ErrNoClips
	}
	slog.Debug("Gate ValidateClips invoked", "clips", len(clips))

	agg := models.ValidationResult{IsValid: true, Confidence: 1.0}
	var reasons []string

	for i, clip := range clips {
		res, err := g.validateClip(ctx, clip)
		if err != nil {
			// Fail-closed mode, or caller cancellation, surfaces the error.
			return models.ValidationResult{}, err
		}
		slog.Debug("Gate clip validated", "index", i, "valid", res.IsValid, "confidence", res.Confidence, "assumed", res.AssumedValid)

		if !res.IsValid {
			agg.IsValid = false
		}
		if res.Confidence < agg.Confidence {
			agg.Confidence = res.Confidence
		}
		if res.Reason != "" {
			reasons = append(reasons, res.Reason)
		}
		if res.AssumedValid {
			agg.AssumedValid = true
		}
		for angle, present := range res.Angles {
			if agg.Angles == nil {
				agg.Angles = make(map[models.CameraAngle]bool)
			}
			agg.Angles[angle] = present
		}
	}

	agg.Reason = strings.Join(reasons, "; ")
	slog.Info("Gate ValidateClips finished", "valid", agg.IsValid, "confidence", agg.Confidence, "assumed", agg.AssumedValid)
	return agg, nil
}

// validateClip runs the cheap classification call for one clip and applies
// the fail-open policy to its outcome.
func (g *Gate) validateClip(ctx context.Context, clip models.MediaClip) (models.ValidationResult, error) {
	clipCtx, cancel := context.WithTimeout(ctx, g.clipTimeout)
	defer cancel()

	text, err := g.client.GenerateContent(clipCtx, genai.Request{
		Prompt: validationPrompt,
		Clips:  []models.MediaClip{clip},
		Config: models.GenerationConfig{
			Temperature:    0.1,
			ResponseMIME:   "application/json",
			ResponseSchema: validationSchema,
		},
		FrameRate: ValidationFrameRate,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return models.ValidationResult{}, err
		}
		return g.failureOutcome(clip, fmt.Errorf("validation call failed: %w", err))
	}

	var parsed validationResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return g.failureOutcome(clip, fmt.Errorf("%w: %v", models.ErrValidationParse, err))
	}

	res := models.ValidationResult{
		IsValid:    parsed.IsValid,
		Confidence: clamp01(parsed.Confidence),
		Reason:     parsed.Reason,
	}
	for k, v := range parsed.Angles {
		if res.Angles == nil {
			res.Angles = make(map[models.CameraAngle]bool)
		}
		res.Angles[models.CameraAngle(k)] = v
	}
	return res, nil
}

// failureOutcome implements the fail-open policy: assume validity with the
// fallback confidence, never surfacing the underlying error to the user.
func (g *Gate) failureOutcome(clip models.MediaClip, err error) (models.ValidationResult, error) {
	if g.failClosed {
		slog.Warn("Gate validation failed (fail-closed)", "error", err, "path", clip.Path)
		return models.ValidationResult{}, err
	}
	slog.Warn("Gate validation failed, assuming valid", "error", err, "path", clip.Path)
	return models.ValidationResult{
		IsValid:      true,
		Confidence:   g.fallbackConfidence,
		AssumedValid: true,
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
