package flow

import (
	"context"
	"testing"

	"github.com/RinkLab/ShotScope/internal/models"
	"github.com/RinkLab/ShotScope/internal/store"
)

func TestStateManagerSaveAndLoadFlow(t *testing.T) {
	sm := NewStoreBasedStateManager(store.NewInMemoryStore())
	ctx := context.Background()

	seq, err := NewSequencer(models.FlowTypeSkillAnalysis)
	if err != nil {
		t.Fatalf("NewSequencer: %v", err)
	}
	seq.Proceed()
	seq.Context().Profile = &models.PlayerProfile{Name: "Riley"}

	if err := sm.SaveFlow(ctx, "flow-1", "user-1", seq); err != nil {
		t.Fatalf("SaveFlow: %v", err)
	}

	state, loaded, err := sm.LoadFlow(ctx, "flow-1")
	if err != nil {
		t.Fatalf("LoadFlow: %v", err)
	}
	if state == nil || loaded == nil {
		t.Fatal("expected state and sequencer for saved flow")
	}
	if state.FlowID != "flow-1" || state.UserID != "user-1" {
		t.Errorf("snapshot identity mismatch: %q/%q", state.FlowID, state.UserID)
	}
	if loaded.Current() != seq.Current() {
		t.Errorf("loaded at %s, expected %s", loaded.Current(), seq.Current())
	}
	if loaded.Context().Profile == nil || loaded.Context().Profile.Name != "Riley" {
		t.Error("profile not persisted through save/load")
	}
	if loaded.FlowType() != models.FlowTypeSkillAnalysis {
		t.Errorf("unexpected flow type %s", loaded.FlowType())
	}
}

func TestStateManagerLoadMissingFlow(t *testing.T) {
	sm := NewStoreBasedStateManager(store.NewInMemoryStore())
	state, loaded, err := sm.LoadFlow(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != nil || loaded != nil {
		t.Error("expected nils for missing flow")
	}
}

func TestStateManagerSavePreservesCreatedAt(t *testing.T) {
	sm := NewStoreBasedStateManager(store.NewInMemoryStore())
	ctx := context.Background()

	seq, _ := NewSequencer(models.FlowTypeShotAnalysis)
	if err := sm.SaveFlow(ctx, "flow-2", "user-1", seq); err != nil {
		t.Fatalf("first SaveFlow: %v", err)
	}
	first, _, err := sm.LoadFlow(ctx, "flow-2")
	if err != nil || first == nil {
		t.Fatalf("LoadFlow after first save: %v", err)
	}

	seq.Proceed()
	if err := sm.SaveFlow(ctx, "flow-2", "user-1", seq); err != nil {
		t.Fatalf("second SaveFlow: %v", err)
	}
	second, reloaded, err := sm.LoadFlow(ctx, "flow-2")
	if err != nil || second == nil {
		t.Fatalf("LoadFlow after second save: %v", err)
	}

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed across saves: %v vs %v", second.CreatedAt, first.CreatedAt)
	}
	if second.UpdatedAt.Before(first.UpdatedAt) {
		t.Errorf("UpdatedAt went backwards: %v vs %v", second.UpdatedAt, first.UpdatedAt)
	}
	if reloaded.Current() != seq.Current() {
		t.Errorf("reloaded at %s, expected %s", reloaded.Current(), seq.Current())
	}
}
