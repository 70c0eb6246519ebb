package genai

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestSanitizeBareJSONUnchanged(t *testing.T) {
	raw := `{"is_valid": true, "confidence": 0.9}`
	if got := SanitizeModelOutput(raw); got != raw {
		t.Errorf("bare JSON should pass through, got %q", got)
	}
}

func TestSanitizeRoundTripEquivalence(t *testing.T) {
	// A fenced response with trailing commentary must decode to the same
	// structure as the equivalent bare JSON.
	bare := `{"is_valid": true, "confidence": 0.85, "reason": "clear hockey shot"}`
	wrapped := "Here is the validation result:\n```json\n" + bare + "\n```\nLet me know if you need anything else!"

	var fromBare, fromWrapped map[string]interface{}
	if err := json.Unmarshal([]byte(SanitizeModelOutput(bare)), &fromBare); err != nil {
		t.Fatalf("bare decode failed: %v", err)
	}
	if err := json.Unmarshal([]byte(SanitizeModelOutput(wrapped)), &fromWrapped); err != nil {
		t.Fatalf("wrapped decode failed: %v", err)
	}
	if !reflect.DeepEqual(fromBare, fromWrapped) {
		t.Errorf("wrapped response decoded differently: %v vs %v", fromWrapped, fromBare)
	}
}

func TestSanitizeStripsThinkingTags(t *testing.T) {
	raw := "<thinking>the player seems to be shooting</thinking>{\"score\": 72}"
	got := SanitizeModelOutput(raw)
	var parsed struct {
		Score int `json:"score"`
	}
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("decode failed on %q: %v", got, err)
	}
	if parsed.Score != 72 {
		t.Errorf("expected score 72, got %d", parsed.Score)
	}
}

func TestSanitizeFixesTrailingCommas(t *testing.T) {
	raw := `{"scores": [1, 2, 3,], "summary": "ok",}`
	got := SanitizeModelOutput(raw)
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("decode failed on %q: %v", got, err)
	}
}

func TestSanitizeKeepsCommasInsideStrings(t *testing.T) {
	// A comma followed by a closing brace inside a string value is real
	// content, not a trailing-comma artifact.
	raw := `{"reason": "keep your elbow in, } then release"}`
	got := SanitizeModelOutput(raw)
	if got != raw {
		t.Fatalf("in-string comma mangled: %q", got)
	}
	var parsed struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("decode failed on %q: %v", got, err)
	}
	if parsed.Reason != "keep your elbow in, } then release" {
		t.Errorf("unexpected reason: %q", parsed.Reason)
	}

	// Trailing commas outside strings are still repaired in the same input.
	mixed := `{"reason": "low, ] wide,", "tips": ["bend knees",],}`
	var fixed struct {
		Reason string   `json:"reason"`
		Tips   []string `json:"tips"`
	}
	if err := json.Unmarshal([]byte(SanitizeModelOutput(mixed)), &fixed); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if fixed.Reason != "low, ] wide," || len(fixed.Tips) != 1 {
		t.Errorf("unexpected repair result: %+v", fixed)
	}
}

func TestSanitizeTrailingCommentaryWithoutFence(t *testing.T) {
	raw := `{"overall_score": 88} I hope this helps with your training.`
	got := SanitizeModelOutput(raw)
	if got != `{"overall_score": 88}` {
		t.Errorf("expected trailing commentary stripped, got %q", got)
	}
}

func TestSanitizeIgnoresBracesInsideStrings(t *testing.T) {
	raw := `{"reason": "player said \"go {fast}\""} trailing`
	got := SanitizeModelOutput(raw)
	var parsed struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("decode failed on %q: %v", got, err)
	}
	if parsed.Reason != `player said "go {fast}"` {
		t.Errorf("unexpected reason: %q", parsed.Reason)
	}
}

func TestSanitizeNoJSONReturnsInput(t *testing.T) {
	raw := "sorry, I cannot analyze this video"
	if got := SanitizeModelOutput(raw); got != raw {
		t.Errorf("non-JSON text should pass through, got %q", got)
	}
}
