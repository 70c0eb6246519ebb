package validation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/RinkLab/ShotScope/internal/genai"
	"github.com/RinkLab/ShotScope/internal/models"
)

// scriptedAnalyzer returns canned responses per call, in order.
type scriptedAnalyzer struct {
	replies []string
	errs    []error
	calls   int
	seen    []genai.Request
}

func (a *scriptedAnalyzer) GenerateContent(ctx context.Context, req genai.Request) (string, error) {
	i := a.calls
	a.calls++
	a.seen = append(a.seen, req)
	var err error
	if i < len(a.errs) {
		err = a.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(a.replies) {
		return a.replies[i], nil
	}
	return `{"is_valid": true, "confidence": 1.0}`, nil
}

func validReply(confidence float64) string {
	return fmt.Sprintf(`{"is_valid": true, "confidence": %g}`, confidence)
}

func TestValidateClipsAllValid(t *testing.T) {
	a := &scriptedAnalyzer{replies: []string{validReply(0.9), validReply(0.8)}}
	g := NewGate(a)

	res, err := g.ValidateClips(context.Background(), []models.MediaClip{
		{Path: "/tmp/front.mp4", Angle: models.AngleFront},
		{Path: "/tmp/side.mp4", Angle: models.AngleSide},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsValid {
		t.Error("expected aggregate valid")
	}
	if res.Confidence != 0.8 {
		t.Errorf("expected min confidence 0.8, got %g", res.Confidence)
	}
	if a.calls != 2 {
		t.Errorf("expected 2 sequential calls, got %d", a.calls)
	}
}

func TestValidateClipsSecondInvalid(t *testing.T) {
	// Clip 2 of 3 invalid: aggregate invalid, confidence is the minimum.
	a := &scriptedAnalyzer{replies: []string{
		validReply(0.9),
		`{"is_valid": false, "confidence": 0.4, "reason": "no hockey net visible"}`,
		validReply(0.95),
	}}
	g := NewGate(a)

	res, err := g.ValidateClips(context.Background(), []models.MediaClip{
		{Path: "/tmp/a.mp4"}, {Path: "/tmp/b.mp4"}, {Path: "/tmp/c.mp4"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsValid {
		t.Error("aggregate should be invalid when any clip is invalid")
	}
	if res.Confidence != 0.4 {
		t.Errorf("expected min confidence 0.4, got %g", res.Confidence)
	}
	if res.Reason != "no hockey net visible" {
		t.Errorf("unexpected reason %q", res.Reason)
	}
	if a.calls != 3 {
		t.Errorf("all clips should still be validated, got %d calls", a.calls)
	}
}

func TestValidateClipsConcatenatesReasons(t *testing.T) {
	a := &scriptedAnalyzer{replies: []string{
		`{"is_valid": false, "confidence": 0.3, "reason": "too dark"}`,
		`{"is_valid": false, "confidence": 0.2, "reason": "wrong sport"}`,
	}}
	g := NewGate(a)

	res, err := g.ValidateClips(context.Background(), []models.MediaClip{
		{Path: "/tmp/a.mp4"}, {Path: "/tmp/b.mp4"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Reason != "too dark; wrong sport" {
		t.Errorf("unexpected concatenated reason %q", res.Reason)
	}
}

func TestTimeoutFailsOpenWithFallbackConfidence(t *testing.T) {
	a := &scriptedAnalyzer{errs: []error{fmt.Errorf("call: %w", models.ErrTimeout)}}
	g := NewGate(a)

	res, err := g.ValidateClips(context.Background(), []models.MediaClip{{Path: "/tmp/a.mp4"}})
	if err != nil {
		t.Fatalf("fail-open must not surface an error, got %v", err)
	}
	if !res.IsValid || !res.AssumedValid {
		t.Errorf("expected assumed-valid result, got %+v", res)
	}
	if res.Confidence != DefaultFallbackConfidence {
		t.Errorf("expected fallback confidence %g, got %g", DefaultFallbackConfidence, res.Confidence)
	}
}

func TestParseFailureFailsOpen(t *testing.T) {
	a := &scriptedAnalyzer{replies: []string{"definitely hockey, trust me"}}
	g := NewGate(a)

	res, err := g.ValidateClips(context.Background(), []models.MediaClip{{Path: "/tmp/a.mp4"}})
	if err != nil {
		t.Fatalf("fail-open must not surface an error, got %v", err)
	}
	if !res.AssumedValid {
		t.Error("expected assumed-valid result on parse failure")
	}
}

func TestFailClosedSurfacesErrors(t *testing.T) {
	a := &scriptedAnalyzer{errs: []error{fmt.Errorf("call: %w", models.ErrTimeout)}}
	g := NewGate(a, WithFailClosed())

	_, err := g.ValidateClips(context.Background(), []models.MediaClip{{Path: "/tmp/a.mp4"}})
	if !errors.Is(err, models.ErrTimeout) {
		t.Errorf("expected surfaced timeout, got %v", err)
	}
}

func TestCancellationIsNotFailOpen(t *testing.T) {
	a := &scriptedAnalyzer{errs: []error{context.Canceled}}
	g := NewGate(a)

	_, err := g.ValidateClips(context.Background(), []models.MediaClip{{Path: "/tmp/a.mp4"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancellation should propagate, got %v", err)
	}
}

func TestValidationRequestShape(t *testing.T) {
	a := &scriptedAnalyzer{}
	g := NewGate(a, WithClipTimeout(30*time.Second))

	_, err := g.ValidateClips(context.Background(), []models.MediaClip{{Path: "/tmp/a.mp4"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := a.seen[0]
	if req.FrameRate != ValidationFrameRate {
		t.Errorf("expected frame rate %g, got %g", ValidationFrameRate, req.FrameRate)
	}
	if len(req.Config.ResponseSchema) == 0 {
		t.Error("expected constrained response schema")
	}
	if req.Config.ResponseMIME != "application/json" {
		t.Errorf("expected JSON response mime, got %s", req.Config.ResponseMIME)
	}
}

func TestValidateClipsRequiresClips(t *testing.T) {
	g := NewGate(&scriptedAnalyzer{})
	if _, err := g.ValidateClips(context.Background(), nil); !errors.Is(err, models.ErrNoClips) {
		t.Errorf("expected ErrNoClips, got %v", err)
	}
}

func TestAngleFlagsMerged(t *testing.T) {
	a := &scriptedAnalyzer{replies: []string{
		`{"is_valid": true, "confidence": 0.9, "angles": {"front": true}}`,
		`{"is_valid": true, "confidence": 0.85, "angles": {"side": false}}`,
	}}
	g := NewGate(a)

	res, err := g.ValidateClips(context.Background(), []models.MediaClip{
		{Path: "/tmp/a.mp4"}, {Path: "/tmp/b.mp4"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Angles[models.AngleFront] {
		t.Error("front angle flag lost")
	}
	if v, ok := res.Angles[models.AngleSide]; !ok || v {
		t.Error("side angle flag should be present and false")
	}
}
