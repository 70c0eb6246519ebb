// Package genai: coach-notes generation from completed analysis results.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/RinkLab/ShotScope/internal/models"
)

const coachSystemPrompt = "You are a hockey skills coach. Given structured shot analysis scores, " +
	"write three short, encouraging training notes for the player. Plain text, no markdown."

// NotesGenerator turns a completed analysis into human-readable training notes.
type NotesGenerator interface {
	TrainingNotes(ctx context.Context, result models.AnalysisResult, profile models.PlayerProfile) (string, error)
}

// CoachClient wraps the OpenAI chat completion service for coach notes.
type CoachClient struct {
	client openai.Client
	model  openai.ChatModel
}

// NewCoachClient initializes a coach-notes client using the OPENAI_API_KEY
// environment variable when no key is supplied.
func NewCoachClient(apiKey string) (*CoachClient, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	return &CoachClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.ChatModelGPT4oMini,
	}, nil
}

// TrainingNotes generates training notes for the given analysis result.
func (c *CoachClient) TrainingNotes(ctx context.Context, result models.AnalysisResult, profile models.PlayerProfile) (string, error) {
	slog.Debug("CoachClient TrainingNotes invoked", "analysisID", result.ID, "overall", result.OverallScore)

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(coachSystemPrompt),
			openai.UserMessage(coachUserPrompt(result, profile)),
		},
	})
	if err != nil {
		slog.Error("CoachClient TrainingNotes failed", "error", err, "analysisID", result.ID)
		return "", fmt.Errorf("failed to generate training notes: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// coachUserPrompt flattens the analysis into a compact prompt.
func coachUserPrompt(result models.AnalysisResult, profile models.PlayerProfile) string {
	var b strings.Builder
	if profile.Name != "" {
		fmt.Fprintf(&b, "Player: %s", profile.Name)
		if profile.Position != "" {
			fmt.Fprintf(&b, " (%s)", profile.Position)
		}
		if profile.SkillLevel != "" {
			fmt.Fprintf(&b, ", level %s", profile.SkillLevel)
		}
		b.WriteString(".\n")
	}
	fmt.Fprintf(&b, "Overall score: %d/100.\n", result.OverallScore)
	metrics := []struct {
		name   string
		metric models.MetricScore
	}{
		{"stance", result.Breakdown.Stance},
		{"weight transfer", result.Breakdown.WeightTransfer},
		{"puck position", result.Breakdown.PuckPosition},
		{"release", result.Breakdown.Release},
		{"follow through", result.Breakdown.FollowThrough},
		{"accuracy", result.Breakdown.Accuracy},
		{"power", result.Breakdown.Power},
	}
	for _, m := range metrics {
		if m.metric.Score > 0 {
			fmt.Fprintf(&b, "%s: %d/100. %s\n", m.name, m.metric.Score, m.metric.Reasoning)
		}
	}
	if result.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", result.Summary)
	}
	return b.String()
}
