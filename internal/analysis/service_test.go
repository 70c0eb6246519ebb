package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/RinkLab/ShotScope/internal/genai"
	"github.com/RinkLab/ShotScope/internal/models"
	"github.com/RinkLab/ShotScope/internal/store"
	"github.com/RinkLab/ShotScope/internal/validation"
)

const analysisReply = `{
	"overall_score": 78,
	"summary": "Solid mechanics with a late release.",
	"breakdown": {
		"stance": {"score": 82, "reasoning": "good base"},
		"release": {"score": 64, "reasoning": "puck held too long"}
	},
	"frame_count": 96
}`

// fakeAnalyzer answers the gate's validation calls and the full analysis call
// from one script, keyed on the request frame rate.
type fakeAnalyzer struct {
	mu            sync.Mutex
	analysisReply string
	analysisErr   error
	gateReply     string
	calls         []genai.Request
	block         chan struct{} // when set, analysis calls wait for ctx or close
}

func (a *fakeAnalyzer) GenerateContent(ctx context.Context, req genai.Request) (string, error) {
	a.mu.Lock()
	a.calls = append(a.calls, req)
	block := a.block
	a.mu.Unlock()

	if req.FrameRate == validation.ValidationFrameRate {
		if a.gateReply != "" {
			return a.gateReply, nil
		}
		return `{"is_valid": true, "confidence": 0.95}`, nil
	}
	if block != nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-block:
		}
	}
	if a.analysisErr != nil {
		return "", a.analysisErr
	}
	return a.analysisReply, nil
}

func (a *fakeAnalyzer) analysisCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		if c.FrameRate == AnalysisFrameRate {
			n++
		}
	}
	return n
}

func newTestService(a *fakeAnalyzer, opts ...Option) (*Service, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	svc := NewService(a, validation.NewGate(a), st, opts...)
	return svc, st
}

func testRequest() Request {
	return Request{
		FlowID:  "flow-1",
		UserID:  "user-1",
		Feature: models.FlowTypeShotAnalysis,
		Clips: []models.MediaClip{
			{Path: "/tmp/front.mp4", Angle: models.AngleFront},
			{Path: "/tmp/side.mp4", Angle: models.AngleSide},
		},
	}
}

func TestAnalyzeHappyPath(t *testing.T) {
	a := &fakeAnalyzer{analysisReply: analysisReply}
	svc, st := newTestService(a)

	out, err := svc.Analyze(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Result.OverallScore != 78 {
		t.Errorf("expected overall 78, got %d", out.Result.OverallScore)
	}
	if out.Result.Breakdown.Release.Score != 64 {
		t.Errorf("expected release 64, got %d", out.Result.Breakdown.Release.Score)
	}
	if out.Result.ID == "" {
		t.Error("expected generated analysis ID")
	}
	if len(out.Result.AnglesAnalyzed) != 2 {
		t.Errorf("expected both angles recorded, got %v", out.Result.AnglesAnalyzed)
	}

	cached, err := st.GetAnalysisResult(out.Result.ID)
	if err != nil || cached == nil {
		t.Fatalf("result not persisted: %v", err)
	}
	latest, err := svc.Latest("user-1", models.FlowTypeShotAnalysis)
	if err != nil || latest == nil || latest.ID != out.Result.ID {
		t.Errorf("Latest did not return the stored result: %v, %v", latest, err)
	}
}

func TestAnalyzeRejectedContent(t *testing.T) {
	a := &fakeAnalyzer{
		analysisReply: analysisReply,
		gateReply:     `{"is_valid": false, "confidence": 0.3, "reason": "not hockey footage"}`,
	}
	svc, _ := newTestService(a)

	_, err := svc.Analyze(context.Background(), testRequest())
	if !errors.Is(err, models.ErrContentRejected) {
		t.Fatalf("expected ErrContentRejected, got %v", err)
	}
	if a.analysisCalls() != 0 {
		t.Errorf("full analysis must not run on rejected content, got %d calls", a.analysisCalls())
	}
}

func TestAnalyzeParseFailureFailsClosed(t *testing.T) {
	a := &fakeAnalyzer{analysisReply: "the player looked great"}
	svc, st := newTestService(a)

	_, err := svc.Analyze(context.Background(), testRequest())
	if !errors.Is(err, models.ErrAnalysisParse) {
		t.Fatalf("expected ErrAnalysisParse, got %v", err)
	}
	latest, _ := st.GetLatestAnalysisResult("user-1", models.FlowTypeShotAnalysis)
	if latest != nil {
		t.Error("malformed analysis must not be persisted")
	}
}

func TestAnalyzeModelErrorSurfaces(t *testing.T) {
	a := &fakeAnalyzer{analysisErr: fmt.Errorf("call: %w", models.ErrUpstream)}
	svc, _ := newTestService(a)

	_, err := svc.Analyze(context.Background(), testRequest())
	if !errors.Is(err, models.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestAnalyzeCancelsPriorRun(t *testing.T) {
	a := &fakeAnalyzer{analysisReply: analysisReply, block: make(chan struct{})}
	svc, _ := newTestService(a)

	errCh := make(chan error, 1)
	go func() {
		_, err := svc.Analyze(context.Background(), testRequest())
		errCh <- err
	}()

	// Wait until the first run is blocked inside its analysis call.
	deadline := time.After(2 * time.Second)
	for a.analysisCalls() == 0 {
		select {
		case <-deadline:
			t.Fatal("first run never reached the analysis call")
		case <-time.After(5 * time.Millisecond):
		}
	}

	a.mu.Lock()
	a.block = nil
	a.mu.Unlock()

	out, err := svc.Analyze(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if out.Result.OverallScore != 78 {
		t.Errorf("second run returned wrong result: %+v", out.Result)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("first run should be cancelled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first run never returned")
	}
}

func TestAnalyzeInputValidation(t *testing.T) {
	svc, _ := newTestService(&fakeAnalyzer{analysisReply: analysisReply})
	ctx := context.Background()

	req := testRequest()
	req.UserID = ""
	if _, err := svc.Analyze(ctx, req); !errors.Is(err, models.ErrEmptyUserID) {
		t.Errorf("expected ErrEmptyUserID, got %v", err)
	}

	req = testRequest()
	req.Feature = "figure_skating"
	if _, err := svc.Analyze(ctx, req); !errors.Is(err, models.ErrInvalidFlowType) {
		t.Errorf("expected ErrInvalidFlowType, got %v", err)
	}

	req = testRequest()
	req.Clips = nil
	if _, err := svc.Analyze(ctx, req); !errors.Is(err, models.ErrNoClips) {
		t.Errorf("expected ErrNoClips, got %v", err)
	}

	req = testRequest()
	req.Clips = make([]models.MediaClip, models.MaxClipsPerRequest+1)
	for i := range req.Clips {
		req.Clips[i] = models.MediaClip{Path: fmt.Sprintf("/tmp/%d.mp4", i)}
	}
	if _, err := svc.Analyze(ctx, req); !errors.Is(err, models.ErrTooManyClips) {
		t.Errorf("expected ErrTooManyClips, got %v", err)
	}
}

func TestAnalyzeCoachNotesAndNotify(t *testing.T) {
	a := &fakeAnalyzer{analysisReply: analysisReply}
	notes := &fakeNotes{text: "Keep your blade closed on the release."}
	notifier := &recordingNotifier{}
	svc, _ := newTestService(a, WithNotesGenerator(notes), WithNotifier(notifier))

	req := testRequest()
	req.NotifyPhone = "+1 416 555 0199"
	out, err := svc.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.CoachNotes != notes.text {
		t.Errorf("expected coach notes %q, got %q", notes.text, out.CoachNotes)
	}
	if notifier.to != req.NotifyPhone {
		t.Errorf("expected notification to %q, got %q", req.NotifyPhone, notifier.to)
	}
}

func TestAnalyzeCoachNotesFailureIsBestEffort(t *testing.T) {
	a := &fakeAnalyzer{analysisReply: analysisReply}
	notes := &fakeNotes{err: errors.New("quota exceeded")}
	svc, _ := newTestService(a, WithNotesGenerator(notes))

	out, err := svc.Analyze(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("notes failure must not fail the analysis: %v", err)
	}
	if out.CoachNotes != "" {
		t.Errorf("expected empty coach notes, got %q", out.CoachNotes)
	}
}

type fakeNotes struct {
	text string
	err  error
}

func (f *fakeNotes) TrainingNotes(ctx context.Context, result models.AnalysisResult, profile models.PlayerProfile) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type recordingNotifier struct {
	to string
}

func (r *recordingNotifier) NotifyAnalysisComplete(ctx context.Context, to string, result models.AnalysisResult) error {
	r.to = to
	return nil
}
