// Package flow provides concrete implementations of flow state persistence.
package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/RinkLab/ShotScope/internal/models"
	"github.com/RinkLab/ShotScope/internal/store"
)

// StateManager defines the interface for persisting flow state across
// interruptions and process restarts.
type StateManager interface {
	// SaveFlow snapshots a sequencer under the given flow ID
	SaveFlow(ctx context.Context, flowID, userID string, seq *Sequencer) error

	// LoadFlow rebuilds a sequencer from the persisted snapshot along with
	// the snapshot itself; both are nil when no snapshot exists
	LoadFlow(ctx context.Context, flowID string) (*models.FlowState, *Sequencer, error)
}

// StoreBasedStateManager implements StateManager using a Store backend.
type StoreBasedStateManager struct {
	store store.Store
}

// NewStoreBasedStateManager creates a new StateManager backed by a Store.
func NewStoreBasedStateManager(st store.Store) *StoreBasedStateManager {
	slog.Debug("Creating StoreBasedStateManager")
	return &StoreBasedStateManager{store: st}
}

// SaveFlow snapshots a sequencer under the given flow ID.
func (sm *StoreBasedStateManager) SaveFlow(ctx context.Context, flowID, userID string, seq *Sequencer) error {
	slog.Debug("StateManager SaveFlow", "flowID", flowID, "stage", seq.Current())

	state, err := seq.State()
	if err != nil {
		slog.Error("StateManager SaveFlow snapshot error", "error", err, "flowID", flowID)
		return err
	}
	state.FlowID = flowID
	state.UserID = userID

	existing, err := sm.store.GetFlowState(flowID)
	if err != nil {
		slog.Error("StateManager SaveFlow get error", "error", err, "flowID", flowID)
		return err
	}

	now := time.Now()
	if existing != nil {
		state.CreatedAt = existing.CreatedAt
	} else {
		state.CreatedAt = now
	}
	state.UpdatedAt = now

	if err := sm.store.SaveFlowState(state); err != nil {
		slog.Error("StateManager SaveFlow save error", "error", err, "flowID", flowID)
		return err
	}
	slog.Debug("StateManager SaveFlow succeeded", "flowID", flowID, "stage", state.CurrentStage)
	return nil
}

// LoadFlow rebuilds a sequencer from the persisted snapshot and returns the
// snapshot alongside it. Returns nils without error when no snapshot exists.
func (sm *StoreBasedStateManager) LoadFlow(ctx context.Context, flowID string) (*models.FlowState, *Sequencer, error) {
	slog.Debug("StateManager LoadFlow", "flowID", flowID)

	state, err := sm.store.GetFlowState(flowID)
	if err != nil {
		slog.Error("StateManager LoadFlow error", "error", err, "flowID", flowID)
		return nil, nil, err
	}
	if state == nil {
		slog.Debug("StateManager LoadFlow not found", "flowID", flowID)
		return nil, nil, nil
	}

	seq, err := Resume(*state)
	if err != nil {
		slog.Error("StateManager LoadFlow resume error", "error", err, "flowID", flowID)
		return nil, nil, err
	}
	return state, seq, nil
}
