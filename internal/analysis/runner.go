package analysis

import (
	"context"
	"log/slog"
	"sync"
)

// runHandle identifies one registered analysis run.
type runHandle struct {
	cancel context.CancelFunc
}

// runManager serializes analysis work per flow: starting a new run cancels
// any prior in-flight run for the same flow before the next one is issued.
type runManager struct {
	mu   sync.Mutex
	runs map[string]*runHandle
}

func newRunManager() *runManager {
	return &runManager{runs: make(map[string]*runHandle)}
}

// begin cancels any outstanding run for flowID and registers a new one. The
// returned context is cancelled when a later run supersedes this one; the
// returned release func must be deferred by the caller.
func (m *runManager) begin(ctx context.Context, flowID string) (context.Context, func()) {
	runCtx, cancel := context.WithCancel(ctx)
	h := &runHandle{cancel: cancel}

	m.mu.Lock()
	if prior, ok := m.runs[flowID]; ok {
		slog.Info("Cancelling prior in-flight analysis", "flowID", flowID)
		prior.cancel()
	}
	m.runs[flowID] = h
	m.mu.Unlock()

	return runCtx, func() {
		m.mu.Lock()
		// Deregister only if a newer run has not replaced this entry.
		if current, ok := m.runs[flowID]; ok && current == h {
			delete(m.runs, flowID)
		}
		m.mu.Unlock()
		cancel()
	}
}
