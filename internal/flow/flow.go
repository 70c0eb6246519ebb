// Package flow implements the linear stage sequencer that drives ShotScope's
// user-facing analysis flows.
//
// A Sequencer tracks an ordered list of named stages, the current position,
// and the typed flow context. Transitions are strictly linear apart from
// explicit GoBack, Restart, and programmatic JumpTo (used to redirect an
// invalid-content flow straight to the error-results stage).
package flow

import (
	"fmt"
	"log/slog"

	"github.com/RinkLab/ShotScope/internal/models"
)

// Sequencer is a linear stage machine for one flow instance. It is not
// safe for concurrent use; callers serialize access per flow.
type Sequencer struct {
	flowType  models.FlowType
	stages    []models.StageID
	idx       int
	completed bool
	ctx       *Context
}

// NewSequencer creates a sequencer positioned at the first stage of the
// flow type's stage list.
func NewSequencer(ft models.FlowType) (*Sequencer, error) {
	stages := models.StagesFor(ft)
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidFlowType, ft)
	}
	slog.Debug("Sequencer created", "flowType", ft, "stages", len(stages))
	return &Sequencer{
		flowType: ft,
		stages:   stages,
		ctx:      &Context{},
	}, nil
}

// FlowType returns the flow type this sequencer runs.
func (s *Sequencer) FlowType() models.FlowType { return s.flowType }

// Current returns the current stage.
func (s *Sequencer) Current() models.StageID {
	return s.stages[s.idx]
}

// Stages returns the ordered stage list.
func (s *Sequencer) Stages() []models.StageID {
	out := make([]models.StageID, len(s.stages))
	copy(out, s.stages)
	return out
}

// Completed reports whether Proceed was called at the last stage.
func (s *Sequencer) Completed() bool { return s.completed }

// Context returns the typed flow context for reading and mutation.
func (s *Sequencer) Context() *Context { return s.ctx }

// Proceed advances to the next stage in list order. At the last stage it is
// an idempotent no-op that marks the flow completed; the index never exceeds
// bounds. Call sites gate progression themselves (e.g. requiring a profile
// before leaving the profile stage).
func (s *Sequencer) Proceed() models.StageID {
	if s.idx >= len(s.stages)-1 {
		if !s.completed {
			s.completed = true
			slog.Info("Sequencer flow completed", "flowType", s.flowType, "stage", s.Current())
		}
		return s.Current()
	}
	s.idx++
	slog.Debug("Sequencer proceeded", "flowType", s.flowType, "stage", s.Current())
	return s.Current()
}

// GoBack moves to the previous stage; at the first stage it is an idempotent
// no-op. Going back from the last stage un-completes the flow.
func (s *Sequencer) GoBack() models.StageID {
	if s.idx == 0 {
		return s.Current()
	}
	s.idx--
	s.completed = false
	slog.Debug("Sequencer went back", "flowType", s.flowType, "stage", s.Current())
	return s.Current()
}

// Restart resets to the first stage and clears the transient error, keeping
// the accumulated context data.
func (s *Sequencer) Restart() models.StageID {
	s.idx = 0
	s.completed = false
	s.ctx.LastError = ""
	slog.Info("Sequencer restarted", "flowType", s.flowType)
	return s.Current()
}

// JumpTo moves directly to a named stage. Used once per flow at most, to
// redirect to the error-results stage when content validation rejects the
// media. Unknown stages are an error.
func (s *Sequencer) JumpTo(stage models.StageID) error {
	for i, st := range s.stages {
		if st == stage {
			s.idx = i
			s.completed = false
			slog.Info("Sequencer jumped", "flowType", s.flowType, "stage", stage)
			return nil
		}
	}
	if stage == models.StageErrorResults {
		// The error stage sits outside the happy-path list; append on demand.
		s.stages = append(s.stages, stage)
		s.idx = len(s.stages) - 1
		slog.Info("Sequencer jumped to error results", "flowType", s.flowType)
		return nil
	}
	return fmt.Errorf("unknown stage %s for flow type %s", stage, s.flowType)
}

// State captures the sequencer into a persistable FlowState. FlowID, UserID
// and timestamps are filled by the state manager.
func (s *Sequencer) State() (models.FlowState, error) {
	data, err := s.ctx.Snapshot()
	if err != nil {
		return models.FlowState{}, err
	}
	return models.FlowState{
		FlowType:     s.flowType,
		CurrentStage: s.Current(),
		StageData:    data,
		Completed:    s.completed,
	}, nil
}

// Resume rebuilds a sequencer from a persisted FlowState.
func Resume(state models.FlowState) (*Sequencer, error) {
	s, err := NewSequencer(state.FlowType)
	if err != nil {
		return nil, err
	}
	if err := s.JumpTo(state.CurrentStage); err != nil {
		return nil, fmt.Errorf("cannot resume: %w", err)
	}
	ctx, err := contextFromSnapshot(state.StageData)
	if err != nil {
		return nil, fmt.Errorf("cannot resume: %w", err)
	}
	s.ctx = ctx
	s.completed = state.Completed
	slog.Debug("Sequencer resumed", "flowType", state.FlowType, "stage", state.CurrentStage)
	return s, nil
}
