// Package api provides flow lifecycle handlers for ShotScope endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/RinkLab/ShotScope/internal/flow"
	"github.com/RinkLab/ShotScope/internal/models"
	"github.com/RinkLab/ShotScope/internal/util"
)

// createFlowRequest is the body of POST /flows.
type createFlowRequest struct {
	UserID   string          `json:"user_id"`
	FlowType models.FlowType `json:"flow_type"`
}

// flowView is the wire representation of a flow's position.
type flowView struct {
	FlowID    string           `json:"flow_id"`
	UserID    string           `json:"user_id"`
	FlowType  models.FlowType  `json:"flow_type"`
	Stage     models.StageID   `json:"stage"`
	Stages    []models.StageID `json:"stages"`
	Completed bool             `json:"completed"`
}

func viewOf(flowID, userID string, seq *flow.Sequencer) flowView {
	return flowView{
		FlowID:    flowID,
		UserID:    userID,
		FlowType:  seq.FlowType(),
		Stage:     seq.Current(),
		Stages:    seq.Stages(),
		Completed: seq.Completed(),
	}
}

// createFlowHandler handles POST /flows.
func (s *Server) createFlowHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("createFlowHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	var req createFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("createFlowHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.UserID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyUserID.Error()))
		return
	}

	seq, err := flow.NewSequencer(req.FlowType)
	if err != nil {
		slog.Warn("createFlowHandler invalid flow type", "error", err, "flowType", req.FlowType)
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}

	flowID := util.GenerateFlowID()
	if err := s.stateManager.SaveFlow(r.Context(), flowID, req.UserID, seq); err != nil {
		slog.Error("createFlowHandler save failed", "error", err, "flowID", flowID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to persist flow"))
		return
	}

	slog.Info("createFlowHandler flow created", "flowID", flowID, "userID", req.UserID, "flowType", req.FlowType)
	writeJSONResponse(w, http.StatusCreated, models.Success(viewOf(flowID, req.UserID, seq)))
}

// flowRouter dispatches /flows/{id} and /flows/{id}/{action}.
func (s *Server) flowRouter(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/flows/")
	segments := strings.Split(strings.Trim(path, "/"), "/")

	if len(segments) == 0 || segments[0] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Missing flow ID"))
		return
	}
	flowID := segments[0]

	if len(segments) == 1 {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			return
		}
		s.getFlowHandler(w, r, flowID)
		return
	}

	if len(segments) == 2 {
		action := segments[1]
		if action == "analyze" {
			s.analyzeHandler(w, r, flowID)
			return
		}
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			return
		}
		s.transitionHandler(w, r, flowID, action)
		return
	}

	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown flow endpoint"))
}

// loadFlow fetches the persisted snapshot and rebuilds the sequencer.
func (s *Server) loadFlow(w http.ResponseWriter, r *http.Request, flowID string) (*models.FlowState, *flow.Sequencer, bool) {
	state, seq, err := s.stateManager.LoadFlow(r.Context(), flowID)
	if err != nil {
		slog.Error("loadFlow failed", "error", err, "flowID", flowID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load flow"))
		return nil, nil, false
	}
	if state == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Flow not found"))
		return nil, nil, false
	}
	return state, seq, true
}

// getFlowHandler handles GET /flows/{id}.
func (s *Server) getFlowHandler(w http.ResponseWriter, r *http.Request, flowID string) {
	slog.Debug("getFlowHandler invoked", "flowID", flowID)
	state, seq, ok := s.loadFlow(w, r, flowID)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(viewOf(flowID, state.UserID, seq)))
}

// transitionHandler handles POST /flows/{id}/{advance|back|restart}.
func (s *Server) transitionHandler(w http.ResponseWriter, r *http.Request, flowID, action string) {
	slog.Debug("transitionHandler invoked", "flowID", flowID, "action", action)
	state, seq, ok := s.loadFlow(w, r, flowID)
	if !ok {
		return
	}

	switch action {
	case "advance":
		seq.Proceed()
	case "back":
		seq.GoBack()
	case "restart":
		seq.Restart()
	default:
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown flow action: "+action))
		return
	}

	if err := s.stateManager.SaveFlow(r.Context(), flowID, state.UserID, seq); err != nil {
		slog.Error("transitionHandler save failed", "error", err, "flowID", flowID, "action", action)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to persist flow"))
		return
	}

	slog.Info("transitionHandler applied", "flowID", flowID, "action", action, "stage", seq.Current())
	writeJSONResponse(w, http.StatusOK, models.Success(viewOf(flowID, state.UserID, seq)))
}

// resumableHandler handles GET /resumable?user_id=... and returns flows
// eligible for a resume prompt.
func (s *Server) resumableHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("resumableHandler invoked", "method", r.Method)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	userID := r.URL.Query().Get("user_id")
	flows, err := s.recov.ResumableFor(r.Context(), userID)
	if err != nil {
		slog.Warn("resumableHandler failed", "error", err, "userID", userID)
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(flows))
}
