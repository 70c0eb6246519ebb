package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsValidFlowType(t *testing.T) {
	if !IsValidFlowType(FlowTypeShotAnalysis) {
		t.Error("shot_analysis should be valid")
	}
	if !IsValidFlowType(FlowTypeSkillAnalysis) {
		t.Error("skill_analysis should be valid")
	}
	if IsValidFlowType(FlowType("figure_skating")) {
		t.Error("unknown flow type should be invalid")
	}
}

func TestStagesFor(t *testing.T) {
	shot := StagesFor(FlowTypeShotAnalysis)
	if len(shot) == 0 {
		t.Fatal("expected stages for shot analysis")
	}
	if shot[0] != StageSelection {
		t.Errorf("expected first stage %s, got %s", StageSelection, shot[0])
	}
	if shot[len(shot)-1] != StageResults {
		t.Errorf("expected last stage %s, got %s", StageResults, shot[len(shot)-1])
	}

	skill := StagesFor(FlowTypeSkillAnalysis)
	if len(skill) != len(shot)-1 {
		t.Errorf("skill flow should have one fewer capture stage: shot=%d skill=%d", len(shot), len(skill))
	}
	for _, st := range skill {
		if st == StageCaptureSide {
			t.Error("skill flow should not include side capture")
		}
	}

	if StagesFor(FlowType("bogus")) != nil {
		t.Error("unknown flow type should have no stages")
	}
}

func TestMediaClipValidate(t *testing.T) {
	c := MediaClip{}
	if err := c.Validate(); !errors.Is(err, ErrEmptyClipPath) {
		t.Errorf("expected ErrEmptyClipPath, got %v", err)
	}
	c.Path = "/tmp/clip.mp4"
	if err := c.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPlayerProfileValidate(t *testing.T) {
	cases := []struct {
		age     int
		wantErr bool
	}{
		{0, false}, // unset is allowed
		{MinPlayerAge, false},
		{MaxPlayerAge, false},
		{MinPlayerAge - 1, true},
		{MaxPlayerAge + 1, true},
	}
	for _, tc := range cases {
		p := PlayerProfile{Age: tc.age}
		err := p.Validate()
		if tc.wantErr && !errors.Is(err, ErrInvalidAge) {
			t.Errorf("age %d: expected ErrInvalidAge, got %v", tc.age, err)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("age %d: unexpected error: %v", tc.age, err)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []error{ErrConnectivity, ErrTimeout, ErrUpstream}
	for _, e := range retryable {
		if !IsRetryable(fmt.Errorf("wrapped: %w", e)) {
			t.Errorf("%v should be retryable", e)
		}
	}
	terminal := []error{ErrContentRejected, ErrValidationParse, ErrAnalysisParse, errors.New("other")}
	for _, e := range terminal {
		if IsRetryable(e) {
			t.Errorf("%v should not be retryable", e)
		}
	}
}

func TestAPIResponseBuilders(t *testing.T) {
	resp := Success(map[string]string{"flow_id": "f1"})
	if resp.Status != string(APIStatusOK) {
		t.Errorf("expected ok status, got %s", resp.Status)
	}
	if resp.Result == nil {
		t.Error("expected result to be set")
	}

	errResp := Error("boom")
	if errResp.Status != string(APIStatusError) || errResp.Message != "boom" {
		t.Errorf("unexpected error response: %+v", errResp)
	}
}
