// Package api provides analysis handlers for ShotScope endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/RinkLab/ShotScope/internal/analysis"
	"github.com/RinkLab/ShotScope/internal/flow"
	"github.com/RinkLab/ShotScope/internal/models"
)

// analyzeRequest is the body of POST /flows/{id}/analyze.
type analyzeRequest struct {
	Clips       []models.MediaClip   `json:"clips"`
	Profile     models.PlayerProfile `json:"profile"`
	CustomNote  string               `json:"custom_note,omitempty"`
	NotifyPhone string               `json:"notify_phone,omitempty"`
}

// analyzeResponse is the success payload of POST /flows/{id}/analyze.
type analyzeResponse struct {
	Analysis   models.AnalysisResult   `json:"analysis"`
	Validation models.ValidationResult `json:"validation"`
	CoachNotes string                  `json:"coach_notes,omitempty"`
	Stage      models.StageID          `json:"stage"`
}

// analyzeHandler handles POST /flows/{id}/analyze. It runs the full pipeline
// and moves the flow to the results stage, or to error results on rejection.
func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request, flowID string) {
	slog.Debug("analyzeHandler invoked", "flowID", flowID, "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("analyzeHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Profile.Validate(); err != nil {
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}

	state, seq, ok := s.loadFlow(w, r, flowID)
	if !ok {
		return
	}

	// Clips may come from the request or from what the capture stages stored.
	clips := req.Clips
	if len(clips) == 0 {
		clips = seq.Context().Clips
	}

	out, err := s.svc.Analyze(r.Context(), analysis.Request{
		FlowID:      flowID,
		UserID:      state.UserID,
		Feature:     state.FlowType,
		Clips:       clips,
		Profile:     req.Profile,
		CustomNote:  req.CustomNote,
		NotifyPhone: req.NotifyPhone,
	})
	if err != nil {
		if errors.Is(err, models.ErrContentRejected) {
			s.rejectFlow(r, flowID, state.UserID, seq, out.Validation, err)
			writeJSONResponse(w, http.StatusUnprocessableEntity, models.NewAPIResponseBuilder().
				WithStatus(models.APIStatusError).
				WithMessage(err.Error()).
				WithResult(out.Validation).
				Build())
			return
		}
		slog.Error("analyzeHandler pipeline failed", "error", err, "flowID", flowID)
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}

	ctx := seq.Context()
	ctx.Clips = clips
	ctx.Profile = &req.Profile
	ctx.Validation = &out.Validation
	ctx.AnalysisID = out.Result.ID
	ctx.CoachNotes = out.CoachNotes
	ctx.LastError = ""
	if err := seq.JumpTo(models.StageResults); err != nil {
		slog.Error("analyzeHandler jump to results failed", "error", err, "flowID", flowID)
	}
	if err := s.stateManager.SaveFlow(r.Context(), flowID, state.UserID, seq); err != nil {
		slog.Error("analyzeHandler save failed", "error", err, "flowID", flowID)
	}

	slog.Info("analyzeHandler analysis complete", "flowID", flowID, "analysisID", out.Result.ID, "overall", out.Result.OverallScore)
	writeJSONResponse(w, http.StatusOK, models.Success(analyzeResponse{
		Analysis:   out.Result,
		Validation: out.Validation,
		CoachNotes: out.CoachNotes,
		Stage:      seq.Current(),
	}))
}

// rejectFlow records a content rejection and parks the flow on the
// error-results stage.
func (s *Server) rejectFlow(r *http.Request, flowID, userID string, seq *flow.Sequencer, vr models.ValidationResult, cause error) {
	ctx := seq.Context()
	ctx.Validation = &vr
	ctx.LastError = cause.Error()
	if err := seq.JumpTo(models.StageErrorResults); err != nil {
		slog.Error("rejectFlow jump failed", "error", err, "flowID", flowID)
	}
	if err := s.stateManager.SaveFlow(r.Context(), flowID, userID, seq); err != nil {
		slog.Error("rejectFlow save failed", "error", err, "flowID", flowID)
	}
}

// latestAnalysisHandler handles GET /analyses/latest?user_id=...&feature=...
func (s *Server) latestAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("latestAnalysisHandler invoked", "method", r.Method)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	userID := r.URL.Query().Get("user_id")
	feature := models.FlowType(r.URL.Query().Get("feature"))
	result, err := s.svc.Latest(userID, feature)
	if err != nil {
		slog.Warn("latestAnalysisHandler failed", "error", err, "userID", userID, "feature", feature)
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}
	if result == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("No analysis found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// getAnalysisHandler handles GET /analyses/{id}.
func (s *Server) getAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("getAnalysisHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/analyses/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown analysis endpoint"))
		return
	}

	result, err := s.svc.Get(id)
	if err != nil {
		slog.Error("getAnalysisHandler failed", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch analysis"))
		return
	}
	if result == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Analysis not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// healthHandler provides a health check endpoint for monitoring.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := s.st.ListFlowStates(); err != nil {
		slog.Warn("Health check: store probe failed", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "store unavailable"
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, statusCode, healthData)
}
