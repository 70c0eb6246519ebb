// Package recovery restores flow state after an application restart.
//
// On startup it scans persisted flow snapshots, drops completed and stale
// ones, and reports which flows are eligible for a resume prompt.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RinkLab/ShotScope/internal/models"
	"github.com/RinkLab/ShotScope/internal/store"
)

// DefaultStaleAfter is how long an untouched flow snapshot stays resumable.
const DefaultStaleAfter = 7 * 24 * time.Hour

// Opts holds configuration options for the recovery manager.
type Opts struct {
	StaleAfter time.Duration
	Now        func() time.Time
}

// Option defines a configuration option for the recovery manager.
type Option func(*Opts)

// WithStaleAfter overrides the snapshot staleness cutoff.
func WithStaleAfter(d time.Duration) Option {
	return func(o *Opts) { o.StaleAfter = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Manager scans and prunes persisted flow state at startup.
type Manager struct {
	st         store.Store
	staleAfter time.Duration
	now        func() time.Time
}

// NewManager creates a recovery manager over the given store.
func NewManager(st store.Store, opts ...Option) *Manager {
	cfg := Opts{StaleAfter: DefaultStaleAfter, Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Manager{st: st, staleAfter: cfg.StaleAfter, now: cfg.Now}
}

// Report summarizes one recovery pass.
type Report struct {
	Resumable []models.FlowState
	Dropped   int
}

// RecoverAll scans persisted flows, deletes completed and stale snapshots,
// and returns the flows that remain resumable.
func (m *Manager) RecoverAll(ctx context.Context) (Report, error) {
	states, err := m.st.ListFlowStates()
	if err != nil {
		return Report{}, fmt.Errorf("failed to list flow states: %w", err)
	}
	slog.Info("Recovery scan started", "flows", len(states))

	cutoff := m.now().Add(-m.staleAfter)
	var report Report
	for _, state := range states {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		switch {
		case state.Completed:
			if err := m.st.DeleteFlowState(state.FlowID); err != nil {
				slog.Error("Recovery failed to drop completed flow", "error", err, "flowID", state.FlowID)
				continue
			}
			report.Dropped++
		case state.UpdatedAt.Before(cutoff):
			slog.Info("Recovery dropping stale flow", "flowID", state.FlowID, "updatedAt", state.UpdatedAt)
			if err := m.st.DeleteFlowState(state.FlowID); err != nil {
				slog.Error("Recovery failed to drop stale flow", "error", err, "flowID", state.FlowID)
				continue
			}
			report.Dropped++
		default:
			slog.Info("Recovery found resumable flow", "flowID", state.FlowID, "userID", state.UserID, "stage", state.CurrentStage)
			report.Resumable = append(report.Resumable, state)
		}
	}

	slog.Info("Recovery scan completed", "resumable", len(report.Resumable), "dropped", report.Dropped)
	return report, nil
}

// ResumableFor returns the resumable flows belonging to one user, newest first.
func (m *Manager) ResumableFor(ctx context.Context, userID string) ([]models.FlowState, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	report, err := m.RecoverAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.FlowState
	for i := len(report.Resumable) - 1; i >= 0; i-- {
		if report.Resumable[i].UserID == userID {
			out = append(out, report.Resumable[i])
		}
	}
	return out, nil
}
